package vault

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"autotyped/internal/entry"
	"autotyped/internal/sequence"
)

// Format selects the exchange encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

//go:embed exchange.schema.json
var exchangeSchema []byte

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func loadSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		const name = "exchange-v1.schema.json"
		if err := compiler.AddResource(name, bytes.NewReader(exchangeSchema)); err != nil {
			schemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile(name)
	})
	return compiledSchema, schemaErr
}

// Document is the plaintext exchange format. Exports contain secrets in the
// clear; handling the output safely is the caller's problem.
type Document struct {
	Version    int        `json:"version" yaml:"version"`
	ExportedAt *time.Time `json:"exported_at,omitempty" yaml:"exported_at,omitempty"`
	Entries    []Record   `json:"entries" yaml:"entries"`
}

// Record is one entry in a Document.
type Record struct {
	ID       string          `json:"id,omitempty" yaml:"id,omitempty"`
	Title    string          `json:"title" yaml:"title"`
	Username string          `json:"username,omitempty" yaml:"username,omitempty"`
	Password string          `json:"password,omitempty" yaml:"password,omitempty"`
	URL      string          `json:"url,omitempty" yaml:"url,omitempty"`
	Notes    string          `json:"notes,omitempty" yaml:"notes,omitempty"`
	Fields   []FieldRecord   `json:"fields,omitempty" yaml:"fields,omitempty"`
	AutoType *AutoTypeRecord `json:"auto_type,omitempty" yaml:"auto_type,omitempty"`
	Created  *time.Time      `json:"created,omitempty" yaml:"created,omitempty"`
	Updated  *time.Time      `json:"updated,omitempty" yaml:"updated,omitempty"`
}

type FieldRecord struct {
	Name   string `json:"name" yaml:"name"`
	Value  string `json:"value" yaml:"value"`
	Secret bool   `json:"secret,omitempty" yaml:"secret,omitempty"`
}

type AutoTypeRecord struct {
	Enabled      *bool               `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Obfuscate    bool                `json:"obfuscate,omitempty" yaml:"obfuscate,omitempty"`
	Sequence     string              `json:"sequence,omitempty" yaml:"sequence,omitempty"`
	Associations []AssociationRecord `json:"associations,omitempty" yaml:"associations,omitempty"`
}

type AssociationRecord struct {
	Window   string `json:"window" yaml:"window"`
	Sequence string `json:"sequence,omitempty" yaml:"sequence,omitempty"`
}

// Import parses, schema-validates and converts an exchange document.
// Sequence templates are parsed so a bad template is rejected at import
// time instead of at the first trigger.
func Import(data []byte, format Format) ([]*entry.Entry, error) {
	if err := validateRaw(data, format); err != nil {
		return nil, err
	}

	var doc Document
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}

	entries := make([]*entry.Entry, 0, len(doc.Entries))
	for i, rec := range doc.Entries {
		ent, err := rec.toEntry()
		if err != nil {
			return nil, fmt.Errorf("entry %d (%q): %w", i, rec.Title, err)
		}
		entries = append(entries, ent)
	}
	return entries, nil
}

// validateRaw checks the undecoded document against the schema. Decoding
// into Document first would hide exactly what the schema exists to catch:
// the struct decode drops unknown keys and zero-fills missing required
// fields.
func validateRaw(data []byte, format Format) error {
	schema, err := loadSchema()
	if err != nil {
		return err
	}

	var instance any
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &instance); err != nil {
			return fmt.Errorf("decode json: %w", err)
		}
	case FormatYAML:
		var tree any
		if err := yaml.Unmarshal(data, &tree); err != nil {
			return fmt.Errorf("decode yaml: %w", err)
		}
		// The schema library understands JSON types only; round-trip the
		// generic tree so YAML scalars arrive as their JSON equivalents.
		canonical, err := json.Marshal(tree)
		if err != nil {
			return fmt.Errorf("canonicalize yaml: %w", err)
		}
		if err := json.Unmarshal(canonical, &instance); err != nil {
			return fmt.Errorf("canonicalize yaml: %w", err)
		}
	default:
		return fmt.Errorf("unknown format %q", format)
	}

	if err := schema.Validate(instance); err != nil {
		return fmt.Errorf("document does not match exchange schema: %w", err)
	}
	return nil
}

func (rec Record) toEntry() (*entry.Entry, error) {
	ent := entry.New(rec.Title)
	if rec.ID != "" {
		id, err := uuid.Parse(rec.ID)
		if err != nil {
			return nil, fmt.Errorf("parse id: %w", err)
		}
		ent.ID = id
	}
	ent.Username = rec.Username
	ent.Password = rec.Password
	ent.URL = rec.URL
	ent.Notes = rec.Notes
	for _, f := range rec.Fields {
		ent.SetField(entry.Field{Name: f.Name, Value: f.Value, Secret: f.Secret})
	}
	if rec.Created != nil {
		ent.Created = *rec.Created
	}
	if rec.Updated != nil {
		ent.Updated = *rec.Updated
	}

	if at := rec.AutoType; at != nil {
		if at.Enabled != nil {
			ent.AutoType.Enabled = *at.Enabled
		}
		ent.AutoType.Obfuscate = at.Obfuscate
		ent.AutoType.Sequence = at.Sequence
		for _, a := range at.Associations {
			ent.AutoType.Associations = append(ent.AutoType.Associations,
				entry.Association{Window: a.Window, Sequence: a.Sequence})
		}
	}

	if ent.AutoType.Sequence != "" {
		if _, err := sequence.Parse(ent.AutoType.Sequence); err != nil {
			return nil, fmt.Errorf("sequence: %w", err)
		}
	}
	for _, a := range ent.AutoType.Associations {
		if a.Sequence == "" {
			continue
		}
		if _, err := sequence.Parse(a.Sequence); err != nil {
			return nil, fmt.Errorf("association %q sequence: %w", a.Window, err)
		}
	}
	return ent, nil
}

// Export serializes entries, secrets included.
func Export(entries []*entry.Entry, format Format) ([]byte, error) {
	now := time.Now().UTC().Truncate(time.Second)
	doc := Document{Version: FormatVersion, ExportedAt: &now}
	for _, ent := range entries {
		doc.Entries = append(doc.Entries, recordFrom(ent))
	}
	if doc.Entries == nil {
		doc.Entries = []Record{}
	}

	switch format {
	case FormatJSON:
		out, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode json: %w", err)
		}
		return append(out, '\n'), nil
	case FormatYAML:
		out, err := yaml.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("encode yaml: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}

func recordFrom(ent *entry.Entry) Record {
	rec := Record{
		ID:       ent.ID.String(),
		Title:    ent.Title,
		Username: ent.Username,
		Password: ent.Password,
		URL:      ent.URL,
		Notes:    ent.Notes,
	}
	for _, f := range ent.Fields {
		rec.Fields = append(rec.Fields, FieldRecord{Name: f.Name, Value: f.Value, Secret: f.Secret})
	}
	if !ent.Created.IsZero() {
		created := ent.Created
		rec.Created = &created
	}
	if !ent.Updated.IsZero() {
		updated := ent.Updated
		rec.Updated = &updated
	}

	enabled := ent.AutoType.Enabled
	rec.AutoType = &AutoTypeRecord{
		Enabled:   &enabled,
		Obfuscate: ent.AutoType.Obfuscate,
		Sequence:  ent.AutoType.Sequence,
	}
	for _, a := range ent.AutoType.Associations {
		rec.AutoType.Associations = append(rec.AutoType.Associations,
			AssociationRecord{Window: a.Window, Sequence: a.Sequence})
	}
	return rec
}
