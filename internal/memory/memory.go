// Copyright (c) 2025 Plume Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package memory

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/plumeforge/plume-tui/internal/model"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrNotFound      = errors.New("memory not found")
	ErrDatabaseError = errors.New("database error")
)

// =============================================================================
// SCHEMA
// =============================================================================

const schema = `
CREATE TABLE IF NOT EXISTS memories (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	timestamp  INTEGER NOT NULL,
	name       TEXT NOT NULL DEFAULT '',
	is_pinned  INTEGER NOT NULL DEFAULT 0,
	messages   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_memories_session ON memories(session_id, timestamp);
`

// =============================================================================
// SQLITE STORE
// =============================================================================

// SQLiteStore persists memory records in a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// DefaultPath returns the database location under the app's home directory.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".plume", "memories.db"), nil
}

// Open opens (creating if needed) the memory database at path.
func Open(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// =============================================================================
// RECORD OPERATIONS
// =============================================================================

// Put creates or replaces a memory record.
func (s *SQLiteStore) Put(mem *model.Memory) error {
	payload, err := json.Marshal(mem.Messages)
	if err != nil {
		return fmt.Errorf("encode messages: %w", err)
	}
	pinned := 0
	if mem.IsPinned {
		pinned = 1
	}
	_, err = s.db.Exec(`
		INSERT INTO memories (id, session_id, timestamp, name, is_pinned, messages)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			session_id = excluded.session_id,
			timestamp  = excluded.timestamp,
			name       = excluded.name,
			is_pinned  = excluded.is_pinned,
			messages   = excluded.messages`,
		mem.ID, mem.SessionID, mem.Timestamp.UnixMilli(), mem.Name, pinned, string(payload))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return nil
}

// Get returns one record by ID.
func (s *SQLiteStore) Get(id string) (*model.Memory, error) {
	row := s.db.QueryRow(`
		SELECT id, session_id, timestamp, name, is_pinned, messages
		FROM memories WHERE id = ?`, id)
	mem, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return mem, err
}

// GetAll returns every record, pinned first, then newest first.
func (s *SQLiteStore) GetAll() ([]*model.Memory, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, timestamp, name, is_pinned, messages
		FROM memories ORDER BY is_pinned DESC, timestamp DESC`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	var out []*model.Memory
	for rows.Next() {
		mem, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, mem)
	}
	return out, rows.Err()
}

// FindBySession returns a session's records, newest first.
func (s *SQLiteStore) FindBySession(sessionID string) ([]*model.Memory, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, timestamp, name, is_pinned, messages
		FROM memories WHERE session_id = ? ORDER BY timestamp DESC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	var out []*model.Memory
	for rows.Next() {
		mem, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, mem)
	}
	return out, rows.Err()
}

// Delete removes one record.
func (s *SQLiteStore) Delete(id string) error {
	res, err := s.db.Exec(`DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Clear removes every record.
func (s *SQLiteStore) Clear() error {
	if _, err := s.db.Exec(`DELETE FROM memories`); err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return nil
}

// SetPinned toggles a record's pin flag.
func (s *SQLiteStore) SetPinned(id string, pinned bool) error {
	val := 0
	if pinned {
		val = 1
	}
	res, err := s.db.Exec(`UPDATE memories SET is_pinned = ? WHERE id = ?`, val, id)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetName assigns a record's display title.
func (s *SQLiteStore) SetName(id, name string) error {
	res, err := s.db.Exec(`UPDATE memories SET name = ? WHERE id = ?`, name, id)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Unnamed returns records still waiting for a title.
func (s *SQLiteStore) Unnamed() ([]*model.Memory, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, timestamp, name, is_pinned, messages
		FROM memories WHERE name = '' ORDER BY timestamp ASC`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	var out []*model.Memory
	for rows.Next() {
		mem, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, mem)
	}
	return out, rows.Err()
}

// =============================================================================
// STORE PERSISTENCE BRIDGE
// =============================================================================

// SaveSession upserts the latest record for a session. A session keeps one
// rolling record so repeated saves replace its snapshot in place.
func (s *SQLiteStore) SaveSession(sessionID string, messages []model.Message) error {
	existing, err := s.FindBySession(sessionID)
	if err != nil {
		return err
	}

	var mem *model.Memory
	if len(existing) > 0 {
		mem = existing[0]
		mem.Messages = messages
		mem.Timestamp = time.Now()
	} else {
		mem = model.NewMemory(sessionID, messages)
	}
	return s.Put(mem)
}

// LatestForSession returns the most recent snapshot for a session.
func (s *SQLiteStore) LatestForSession(sessionID string) (*model.Memory, bool, error) {
	all, err := s.FindBySession(sessionID)
	if err != nil {
		return nil, false, err
	}
	if len(all) == 0 {
		return nil, false, nil
	}
	return all[0], true, nil
}

// =============================================================================
// INTERNAL
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemory(row rowScanner) (*model.Memory, error) {
	var (
		mem     model.Memory
		ts      int64
		pinned  int
		payload string
	)
	if err := row.Scan(&mem.ID, &mem.SessionID, &ts, &mem.Name, &pinned, &payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	mem.Timestamp = time.UnixMilli(ts)
	mem.IsPinned = pinned == 1
	if err := json.Unmarshal([]byte(payload), &mem.Messages); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	return &mem, nil
}
