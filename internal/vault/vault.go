// Package vault stores credential entries in per-file encrypted SQLite
// databases and tracks which stores are currently unlocked.
//
// Secrets (usernames, passwords, notes, custom field values) are sealed
// per-value with XChaCha20-Poly1305 under a key stretched from the store
// passphrase with argon2id. Titles, URLs and sequence templates stay
// plaintext: they are auto-type routing metadata, not credentials, and the
// window filter needs them on every trigger.
package vault

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"autotyped/internal/entry"
)

// FormatVersion identifies the on-disk layout.
const FormatVersion = 1

// Ext is the conventional vault file extension.
const Ext = ".atdb"

const schema = `
CREATE TABLE IF NOT EXISTS meta (
    k   TEXT PRIMARY KEY,
    v   BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS entries (
    id                  TEXT PRIMARY KEY,
    title               TEXT NOT NULL,
    username            BLOB,
    password            BLOB,
    url                 TEXT,
    notes               BLOB,
    autotype_enabled    INTEGER NOT NULL DEFAULT 1,
    autotype_obfuscate  INTEGER NOT NULL DEFAULT 0,
    autotype_sequence   TEXT NOT NULL DEFAULT '',
    created_ns          INTEGER NOT NULL,
    updated_ns          INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entries_title ON entries(title);

CREATE TABLE IF NOT EXISTS fields (
    entry_id    TEXT NOT NULL REFERENCES entries(id) ON DELETE CASCADE,
    name        TEXT NOT NULL,
    value       BLOB NOT NULL,
    secret      INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (entry_id, name)
);

CREATE TABLE IF NOT EXISTS associations (
    entry_id    TEXT NOT NULL REFERENCES entries(id) ON DELETE CASCADE,
    ordinal     INTEGER NOT NULL,
    window      TEXT NOT NULL,
    sequence    TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (entry_id, ordinal)
);
`

// Store is one vault file. A store is "open" once its passphrase has been
// verified; locking wipes the derived key but keeps the database handle.
type Store struct {
	name string
	path string
	db   *sql.DB

	mu  sync.RWMutex
	key []byte
}

// Create initializes a new vault file at path and leaves it unlocked.
func Create(path, passphrase string) (*Store, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("vault %s already exists", path)
	}
	s, err := openDB(path)
	if err != nil {
		return nil, err
	}

	salt, err := newSalt()
	if err != nil {
		s.db.Close()
		return nil, err
	}
	key := deriveKey(passphrase, salt)
	check, err := seal(key, keyCheckDomain, "keycheck")
	if err != nil {
		s.db.Close()
		return nil, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		s.db.Close()
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()
	for k, v := range map[string][]byte{
		"version":  []byte(fmt.Sprintf("%d", FormatVersion)),
		"salt":     salt,
		"keycheck": check,
	} {
		if _, err := tx.Exec(`INSERT INTO meta (k, v) VALUES (?, ?)`, k, v); err != nil {
			s.db.Close()
			return nil, fmt.Errorf("write meta %s: %w", k, err)
		}
	}
	if err := tx.Commit(); err != nil {
		s.db.Close()
		return nil, fmt.Errorf("commit meta: %w", err)
	}

	s.key = key
	return s, nil
}

// OpenFile opens an existing vault file in the locked state.
func OpenFile(path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("vault file: %w", err)
	}
	s, err := openDB(path)
	if err != nil {
		return nil, err
	}
	var version string
	err = s.db.QueryRow(`SELECT v FROM meta WHERE k = 'version'`).Scan(&version)
	if err != nil {
		s.db.Close()
		return nil, fmt.Errorf("read vault version: %w", err)
	}
	if version != fmt.Sprintf("%d", FormatVersion) {
		s.db.Close()
		return nil, fmt.Errorf("unsupported vault version %s", version)
	}
	return s, nil
}

func openDB(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create vault directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	name := strings.TrimSuffix(filepath.Base(path), Ext)
	return &Store{name: name, path: path, db: db}, nil
}

// Name is the store's short name, the file base without extension.
func (s *Store) Name() string { return s.name }

// Path is the vault file location.
func (s *Store) Path() string { return s.path }

// IsOpen reports whether the store is unlocked.
func (s *Store) IsOpen() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.key != nil
}

// Unlock derives the key from passphrase and verifies it against the
// stored key check. Unlocking an open store is a no-op.
func (s *Store) Unlock(passphrase string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key != nil {
		return nil
	}

	var salt, check []byte
	if err := s.db.QueryRow(`SELECT v FROM meta WHERE k = 'salt'`).Scan(&salt); err != nil {
		return fmt.Errorf("read salt: %w", err)
	}
	if err := s.db.QueryRow(`SELECT v FROM meta WHERE k = 'keycheck'`).Scan(&check); err != nil {
		return fmt.Errorf("read key check: %w", err)
	}

	key := deriveKey(passphrase, salt)
	got, err := unseal(key, check, "keycheck")
	if err != nil || got != keyCheckDomain {
		wipe(key)
		return ErrWrongPassphrase
	}
	s.key = key
	return nil
}

// Lock wipes the derived key. The database handle stays open so the store
// can be unlocked again without reopening the file.
func (s *Store) Lock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key != nil {
		wipe(s.key)
		s.key = nil
	}
}

// Close locks the store and releases the database.
func (s *Store) Close() error {
	s.Lock()
	return s.db.Close()
}

// Put inserts or replaces an entry. Zero timestamps are filled in.
func (s *Store) Put(ent *entry.Entry) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.key == nil {
		return ErrLocked
	}

	now := time.Now()
	if ent.Created.IsZero() {
		ent.Created = now
	}
	if ent.Updated.IsZero() {
		ent.Updated = now
	}

	id := ent.ID.String()
	username, err := seal(s.key, ent.Username, id+":username")
	if err != nil {
		return fmt.Errorf("seal username: %w", err)
	}
	password, err := seal(s.key, ent.Password, id+":password")
	if err != nil {
		return fmt.Errorf("seal password: %w", err)
	}
	notes, err := seal(s.key, ent.Notes, id+":notes")
	if err != nil {
		return fmt.Errorf("seal notes: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT OR REPLACE INTO entries
		(id, title, username, password, url, notes, autotype_enabled, autotype_obfuscate, autotype_sequence, created_ns, updated_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, ent.Title, username, password, ent.URL, notes,
		boolToInt(ent.AutoType.Enabled), boolToInt(ent.AutoType.Obfuscate), ent.AutoType.Sequence,
		ent.Created.UnixNano(), ent.Updated.UnixNano(),
	); err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM fields WHERE entry_id = ?`, id); err != nil {
		return fmt.Errorf("clear fields: %w", err)
	}
	fieldStmt, err := tx.Prepare(`INSERT INTO fields (entry_id, name, value, secret) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare field insert: %w", err)
	}
	defer fieldStmt.Close()
	for _, f := range ent.Fields {
		sealed, err := seal(s.key, f.Value, id+":field:"+f.Name)
		if err != nil {
			return fmt.Errorf("seal field %s: %w", f.Name, err)
		}
		if _, err := fieldStmt.Exec(id, f.Name, sealed, boolToInt(f.Secret)); err != nil {
			return fmt.Errorf("insert field %s: %w", f.Name, err)
		}
	}

	if _, err := tx.Exec(`DELETE FROM associations WHERE entry_id = ?`, id); err != nil {
		return fmt.Errorf("clear associations: %w", err)
	}
	assocStmt, err := tx.Prepare(`INSERT INTO associations (entry_id, ordinal, window, sequence) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare association insert: %w", err)
	}
	defer assocStmt.Close()
	for i, a := range ent.AutoType.Associations {
		if _, err := assocStmt.Exec(id, i, a.Window, a.Sequence); err != nil {
			return fmt.Errorf("insert association %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit entry: %w", err)
	}
	return nil
}

// Get retrieves one entry by ID. A missing entry returns (nil, nil).
func (s *Store) Get(id uuid.UUID) (*entry.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.key == nil {
		return nil, ErrLocked
	}

	row := s.db.QueryRow(`
		SELECT id, title, username, password, url, notes, autotype_enabled, autotype_obfuscate, autotype_sequence, created_ns, updated_ns
		FROM entries WHERE id = ?`, id.String())
	ent, err := s.scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get entry: %w", err)
	}
	if err := s.loadChildren(ent); err != nil {
		return nil, err
	}
	return ent, nil
}

// List returns every entry, decrypted, ordered by title.
func (s *Store) List() ([]*entry.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.key == nil {
		return nil, ErrLocked
	}

	rows, err := s.db.Query(`
		SELECT id, title, username, password, url, notes, autotype_enabled, autotype_obfuscate, autotype_sequence, created_ns, updated_ns
		FROM entries ORDER BY title ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var entries []*entry.Entry
	for rows.Next() {
		ent, err := s.scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, ent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}

	for _, ent := range entries {
		if err := s.loadChildren(ent); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

// Delete removes an entry and its fields and associations.
func (s *Store) Delete(id uuid.UUID) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.key == nil {
		return ErrLocked
	}
	result, err := s.db.Exec(`DELETE FROM entries WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("entry not found: %s", id)
	}
	return nil
}

// EntryCount returns the number of stored entries. It works on a locked
// store; the count is metadata, not a secret.
func (s *Store) EntryCount() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanEntry(row rowScanner) (*entry.Entry, error) {
	var (
		ent                       entry.Entry
		idStr                     string
		username, password, notes []byte
		enabled, obfuscate        int
		createdNs, updatedNs      int64
	)
	if err := row.Scan(&idStr, &ent.Title, &username, &password, &ent.URL, &notes,
		&enabled, &obfuscate, &ent.AutoType.Sequence, &createdNs, &updatedNs); err != nil {
		return nil, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("parse entry id: %w", err)
	}
	ent.ID = id
	ent.AutoType.Enabled = enabled != 0
	ent.AutoType.Obfuscate = obfuscate != 0
	ent.Created = time.Unix(0, createdNs)
	ent.Updated = time.Unix(0, updatedNs)

	if ent.Username, err = unseal(s.key, username, idStr+":username"); err != nil {
		return nil, fmt.Errorf("unseal username: %w", err)
	}
	if ent.Password, err = unseal(s.key, password, idStr+":password"); err != nil {
		return nil, fmt.Errorf("unseal password: %w", err)
	}
	if ent.Notes, err = unseal(s.key, notes, idStr+":notes"); err != nil {
		return nil, fmt.Errorf("unseal notes: %w", err)
	}
	return &ent, nil
}

func (s *Store) loadChildren(ent *entry.Entry) error {
	id := ent.ID.String()

	rows, err := s.db.Query(`SELECT name, value, secret FROM fields WHERE entry_id = ? ORDER BY name ASC`, id)
	if err != nil {
		return fmt.Errorf("query fields: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			f      entry.Field
			sealed []byte
			secret int
		)
		if err := rows.Scan(&f.Name, &sealed, &secret); err != nil {
			return fmt.Errorf("scan field: %w", err)
		}
		if f.Value, err = unseal(s.key, sealed, id+":field:"+f.Name); err != nil {
			return fmt.Errorf("unseal field %s: %w", f.Name, err)
		}
		f.Secret = secret != 0
		ent.Fields = append(ent.Fields, f)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate fields: %w", err)
	}

	assocRows, err := s.db.Query(`SELECT window, sequence FROM associations WHERE entry_id = ? ORDER BY ordinal ASC`, id)
	if err != nil {
		return fmt.Errorf("query associations: %w", err)
	}
	defer assocRows.Close()
	for assocRows.Next() {
		var a entry.Association
		if err := assocRows.Scan(&a.Window, &a.Sequence); err != nil {
			return fmt.Errorf("scan association: %w", err)
		}
		ent.AutoType.Associations = append(ent.AutoType.Associations, a)
	}
	if err := assocRows.Err(); err != nil {
		return fmt.Errorf("iterate associations: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
