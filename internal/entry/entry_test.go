package entry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	e := New("GitHub")
	assert.NotEqual(t, [16]byte{}, [16]byte(e.ID))
	assert.Equal(t, "GitHub", e.Title)
	assert.True(t, e.AutoType.Enabled)
	assert.False(t, e.Created.IsZero())
}

func TestFieldLookupCaseInsensitive(t *testing.T) {
	e := New("bank")
	e.SetField(Field{Name: "PIN", Value: "1234", Secret: true})

	f, ok := e.Field("pin")
	require.True(t, ok)
	assert.Equal(t, "1234", f.Value)
	assert.True(t, f.Secret)

	_, ok = e.Field("missing")
	assert.False(t, ok)
}

func TestSetFieldReplaces(t *testing.T) {
	e := New("bank")
	e.SetField(Field{Name: "PIN", Value: "1234"})
	e.SetField(Field{Name: "pin", Value: "5678"})

	require.Len(t, e.Fields, 1)
	f, _ := e.Field("PIN")
	assert.Equal(t, "5678", f.Value)
}

func TestEffectiveSequencePrecedence(t *testing.T) {
	e := New("mail")
	const def = "{USERNAME}{TAB}{PASSWORD}{ENTER}"

	assert.Equal(t, def, e.EffectiveSequence("", def))

	e.AutoType.Sequence = "{PASSWORD}{ENTER}"
	assert.Equal(t, "{PASSWORD}{ENTER}", e.EffectiveSequence("", def))

	assert.Equal(t, "{USERNAME}{ENTER}", e.EffectiveSequence("{USERNAME}{ENTER}", def))
}
