package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kokistudios/xlmatch/internal/record"
)

// Slot names, one per independently persisted piece of state.
const (
	SlotReference = "xlmatch_reference"
	SlotResults   = "xlmatch_results"
	SlotStatus    = "xlmatch_status"
)

const slotsSchema = `
CREATE TABLE IF NOT EXISTS slots (
	name       TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);`

// Slots is a durable key/value table backed by SQLite.
type Slots struct {
	db *sql.DB
}

// OpenSlots opens (creating if needed) the slot database at path.
func OpenSlots(path string) (*Slots, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// A single connection keeps writes ordered and avoids SQLITE_BUSY between our own goroutines.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(slotsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create slots table: %w", err)
	}
	return &Slots{db: db}, nil
}

// Close releases the database.
func (s *Slots) Close() error {
	return s.db.Close()
}

// Get returns the value stored under name and whether it exists.
func (s *Slots) Get(ctx context.Context, name string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM slots WHERE name = ?`, name).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read slot %s: %w", name, err)
	}
	return v, true, nil
}

// Put stores value under name, replacing any previous value.
func (s *Slots) Put(ctx context.Context, name, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO slots (name, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		name, value, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("write slot %s: %w", name, err)
	}
	return nil
}

// Delete removes the named slots. Missing slots are ignored.
func (s *Slots) Delete(ctx context.Context, names ...string) error {
	for _, name := range names {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM slots WHERE name = ?`, name); err != nil {
			return fmt.Errorf("delete slot %s: %w", name, err)
		}
	}
	return nil
}

// State is the persisted application state as read back from the slots.
// Zero values mean the slot was absent.
type State struct {
	Reference []record.Record
	Results   []record.MatchedResult
	Status    string
}

// LoadState reads all three slots. A slot with content that fails to decode
// is reported in the returned warnings and treated as absent.
func (s *Slots) LoadState(ctx context.Context) (State, []string, error) {
	var (
		st       State
		warnings []string
	)

	if raw, ok, err := s.Get(ctx, SlotReference); err != nil {
		return State{}, nil, err
	} else if ok {
		if err := json.Unmarshal([]byte(raw), &st.Reference); err != nil {
			st.Reference = nil
			warnings = append(warnings, fmt.Sprintf("ignoring corrupt %s slot: %v", SlotReference, err))
		}
	}

	if raw, ok, err := s.Get(ctx, SlotResults); err != nil {
		return State{}, nil, err
	} else if ok {
		if err := json.Unmarshal([]byte(raw), &st.Results); err != nil {
			st.Results = nil
			warnings = append(warnings, fmt.Sprintf("ignoring corrupt %s slot: %v", SlotResults, err))
		}
	}

	raw, ok, err := s.Get(ctx, SlotStatus)
	if err != nil {
		return State{}, nil, err
	}
	if ok {
		st.Status = raw
	}
	return st, warnings, nil
}

// SaveReference persists the reference set.
func (s *Slots) SaveReference(ctx context.Context, ref []record.Record) error {
	return s.putJSON(ctx, SlotReference, nonNil(ref))
}

// SaveResults persists the ledger entries in order.
func (s *Slots) SaveResults(ctx context.Context, results []record.MatchedResult) error {
	return s.putJSON(ctx, SlotResults, nonNil(results))
}

// SaveStatus persists the status token as plain text.
func (s *Slots) SaveStatus(ctx context.Context, status string) error {
	return s.Put(ctx, SlotStatus, status)
}

// ClearState deletes every slot.
func (s *Slots) ClearState(ctx context.Context) error {
	return s.Delete(ctx, SlotReference, SlotResults, SlotStatus)
}

func (s *Slots) putJSON(ctx context.Context, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode slot %s: %w", name, err)
	}
	return s.Put(ctx, name, string(data))
}

// nonNil makes empty collections serialize as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
