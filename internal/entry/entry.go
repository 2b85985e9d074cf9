// Package entry defines credential entries and their auto-type settings.
package entry

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Entry is one stored credential. Field values are held decrypted in memory
// only while the owning store is open; they are never written to logs.
type Entry struct {
	ID       uuid.UUID
	Title    string
	Username string
	Password string
	URL      string
	Notes    string

	// Fields are additional named values (PINs, recovery codes, ...).
	Fields []Field

	AutoType AutoType

	Created time.Time
	Updated time.Time
}

// Field is a custom named value on an entry.
type Field struct {
	Name   string
	Value  string
	Secret bool
}

// AutoType holds an entry's typing configuration.
type AutoType struct {
	// Enabled gates the entry out of auto-type entirely when false.
	Enabled bool

	// Obfuscate requests the two-channel typing technique for this entry.
	Obfuscate bool

	// Sequence overrides the global default template when non-empty.
	Sequence string

	// Associations bind the entry to foreground windows.
	Associations []Association
}

// Association matches the entry to a window by title pattern, optionally
// with its own sequence override.
type Association struct {
	// Window is a case-insensitive glob ('*', '?') matched against the
	// foreground window title.
	Window string

	// Sequence overrides the entry sequence for this association.
	Sequence string
}

// New returns an entry with a fresh ID, auto-type enabled, and timestamps
// set to now.
func New(title string) *Entry {
	now := time.Now()
	return &Entry{
		ID:       uuid.New(),
		Title:    title,
		AutoType: AutoType{Enabled: true},
		Created:  now,
		Updated:  now,
	}
}

// Field looks up a custom field by name, case-insensitively.
func (e *Entry) Field(name string) (Field, bool) {
	for _, f := range e.Fields {
		if strings.EqualFold(f.Name, name) {
			return f, true
		}
	}
	return Field{}, false
}

// SetField adds or replaces a custom field, matching names
// case-insensitively.
func (e *Entry) SetField(f Field) {
	for i := range e.Fields {
		if strings.EqualFold(e.Fields[i].Name, f.Name) {
			e.Fields[i] = f
			return
		}
	}
	e.Fields = append(e.Fields, f)
}

// EffectiveSequence picks the template for a run: the matched association's
// override wins, then the entry override, then the supplied default.
func (e *Entry) EffectiveSequence(associationSeq, def string) string {
	if associationSeq != "" {
		return associationSeq
	}
	if e.AutoType.Sequence != "" {
		return e.AutoType.Sequence
	}
	return def
}
