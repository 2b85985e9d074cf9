package vault

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autotyped/internal/entry"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Create(filepath.Join(t.TempDir(), "personal"+Ext), "correct horse")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleEntry() *entry.Entry {
	ent := entry.New("Webmail")
	ent.Username = "alice@example.com"
	ent.Password = "s3cret!"
	ent.URL = "https://mail.example.com"
	ent.Notes = "work account"
	ent.SetField(entry.Field{Name: "PIN", Value: "0420", Secret: true})
	ent.AutoType.Obfuscate = true
	ent.AutoType.Sequence = "{USERNAME}{ENTER}"
	ent.AutoType.Associations = []entry.Association{
		{Window: "*Roundcube*", Sequence: "{PASSWORD}{ENTER}"},
		{Window: "*webmail*"},
	}
	return ent
}

func TestPutGetRoundTrip(t *testing.T) {
	s := testStore(t)
	want := sampleEntry()
	require.NoError(t, s.Put(want))

	got, err := s.Get(want.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, want.Title, got.Title)
	assert.Equal(t, want.Username, got.Username)
	assert.Equal(t, want.Password, got.Password)
	assert.Equal(t, want.URL, got.URL)
	assert.Equal(t, want.Notes, got.Notes)
	assert.Equal(t, want.Fields, got.Fields)
	assert.Equal(t, want.AutoType, got.AutoType)
	assert.Equal(t, want.Created.UnixNano(), got.Created.UnixNano())
}

func TestGetMissingEntry(t *testing.T) {
	s := testStore(t)
	got, err := s.Get(uuid.New())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestLockedStoreRejectsReads(t *testing.T) {
	s := testStore(t)
	require.NoError(t, s.Put(sampleEntry()))
	s.Lock()

	_, err := s.List()
	assert.ErrorIs(t, err, ErrLocked)
	_, err = s.Get(uuid.New())
	assert.ErrorIs(t, err, ErrLocked)
	assert.ErrorIs(t, s.Put(sampleEntry()), ErrLocked)

	// Counting works locked; it reveals nothing sealed.
	n, err := s.EntryCount()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUnlockWrongPassphrase(t *testing.T) {
	s := testStore(t)
	s.Lock()
	assert.ErrorIs(t, s.Unlock("incorrect donkey"), ErrWrongPassphrase)
	assert.False(t, s.IsOpen())

	require.NoError(t, s.Unlock("correct horse"))
	assert.True(t, s.IsOpen())
}

func TestReopenFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "team"+Ext)
	s, err := Create(path, "pw")
	require.NoError(t, err)
	want := sampleEntry()
	require.NoError(t, s.Put(want))
	require.NoError(t, s.Close())

	s2, err := OpenFile(path)
	require.NoError(t, err)
	defer s2.Close()

	assert.Equal(t, "team", s2.Name())
	assert.False(t, s2.IsOpen())
	require.NoError(t, s2.Unlock("pw"))

	entries, err := s2.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, want.Password, entries[0].Password)
}

func TestPutReplaces(t *testing.T) {
	s := testStore(t)
	ent := sampleEntry()
	require.NoError(t, s.Put(ent))

	ent.Title = "Webmail (new)"
	ent.Fields = nil
	ent.AutoType.Associations = ent.AutoType.Associations[:1]
	require.NoError(t, s.Put(ent))

	got, err := s.Get(ent.ID)
	require.NoError(t, err)
	assert.Equal(t, "Webmail (new)", got.Title)
	assert.Empty(t, got.Fields)
	assert.Len(t, got.AutoType.Associations, 1)

	entries, err := s.List()
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestDelete(t *testing.T) {
	s := testStore(t)
	ent := sampleEntry()
	require.NoError(t, s.Put(ent))
	require.NoError(t, s.Delete(ent.ID))

	got, err := s.Get(ent.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.Error(t, s.Delete(ent.ID))
}

func TestCreateRefusesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dup"+Ext)
	s, err := Create(path, "pw")
	require.NoError(t, err)
	defer s.Close()

	_, err = Create(path, "pw")
	assert.Error(t, err)
}

func TestSealBindsLabel(t *testing.T) {
	salt, err := newSalt()
	require.NoError(t, err)
	key := deriveKey("pw", salt)

	blob, err := seal(key, "value", "entry1:password")
	require.NoError(t, err)

	got, err := unseal(key, blob, "entry1:password")
	require.NoError(t, err)
	assert.Equal(t, "value", got)

	// The same ciphertext must not open under another slot's label.
	_, err = unseal(key, blob, "entry2:password")
	assert.ErrorIs(t, err, ErrWrongPassphrase)
}
