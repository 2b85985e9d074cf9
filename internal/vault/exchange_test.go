package vault

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autotyped/internal/entry"
)

func TestExchangeRoundTripJSON(t *testing.T) {
	want := sampleEntry()
	data, err := Export([]*entry.Entry{want}, FormatJSON)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"version": 1`)

	got, err := Import(data, FormatJSON)
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, want.ID, got[0].ID)
	assert.Equal(t, want.Username, got[0].Username)
	assert.Equal(t, want.Password, got[0].Password)
	assert.Equal(t, want.Fields, got[0].Fields)
	assert.Equal(t, want.AutoType, got[0].AutoType)
}

func TestExchangeRoundTripYAML(t *testing.T) {
	want := sampleEntry()
	data, err := Export([]*entry.Entry{want}, FormatYAML)
	require.NoError(t, err)

	got, err := Import(data, FormatYAML)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, want.Password, got[0].Password)
	assert.Equal(t, want.AutoType.Associations, got[0].AutoType.Associations)
}

func TestImportHandwrittenYAML(t *testing.T) {
	const doc = `
version: 1
entries:
  - title: Bank
    username: alice
    password: hunter2
    auto_type:
      obfuscate: true
      associations:
        - window: "*bank*"
`
	got, err := Import([]byte(doc), FormatYAML)
	require.NoError(t, err)
	require.Len(t, got, 1)

	ent := got[0]
	assert.Equal(t, "Bank", ent.Title)
	assert.True(t, ent.AutoType.Enabled, "enabled defaults to true when omitted")
	assert.True(t, ent.AutoType.Obfuscate)
	assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", ent.ID.String(),
		"imports without an id get a fresh one")
}

func TestImportRejectsSchemaViolations(t *testing.T) {
	cases := map[string]string{
		"missing title":    `{"version":1,"entries":[{"username":"x"}]}`,
		"wrong version":    `{"version":2,"entries":[]}`,
		"bad uuid":         `{"version":1,"entries":[{"title":"a","id":"not-a-uuid"}]}`,
		"unknown key":      `{"version":1,"entries":[],"extra":true}`,
		"bad association":  `{"version":1,"entries":[{"title":"a","auto_type":{"associations":[{"sequence":"{ENTER}"}]}}]}`,
		"missing entries":  `{"version":1}`,
		"field sans value": `{"version":1,"entries":[{"title":"a","fields":[{"name":"PIN"}]}]}`,
	}
	for name, doc := range cases {
		_, err := Import([]byte(doc), FormatJSON)
		assert.Error(t, err, name)
	}
}

// The schema must see the raw document for either encoding; a stray key in
// YAML input is as invalid as one in JSON.
func TestImportRejectsYAMLSchemaViolations(t *testing.T) {
	const doc = "version: 1\nextra: true\nentries: []\n"
	_, err := Import([]byte(doc), FormatYAML)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema")
}

func TestImportRejectsBadSequence(t *testing.T) {
	const doc = `{"version":1,"entries":[{"title":"a","auto_type":{"sequence":"{UNTERMINATED"}}]}`
	_, err := Import([]byte(doc), FormatJSON)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sequence")
}

func TestImportRejectsBadAssociationSequence(t *testing.T) {
	const doc = `{"version":1,"entries":[{"title":"a","auto_type":{"associations":[{"window":"*x*","sequence":"+"}]}}]}`
	_, err := Import([]byte(doc), FormatJSON)
	require.Error(t, err)
}

func TestImportIntoStore(t *testing.T) {
	s := testStore(t)
	const doc = `{"version":1,"entries":[{"title":"API Console","password":"tok"}]}`
	entries, err := Import([]byte(doc), FormatJSON)
	require.NoError(t, err)
	for _, ent := range entries {
		require.NoError(t, s.Put(ent))
	}

	stored, err := s.List()
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "tok", stored[0].Password)
}
