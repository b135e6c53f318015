// Package storage persists allocation runs so repeated runs of a plan can
// be listed and compared. Backends: in-memory (default) and SQLite.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure go sqlite driver

	"arealloc/core/output"
	"arealloc/internal/errors"
)

// Backend is a storage backend type
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendSQLite Backend = "sqlite"
)

// StoredRun is one persisted allocation run
type StoredRun struct {
	// ID is the unique run identifier
	ID string `json:"id"`

	// Plan names the allocation plan that produced the run
	Plan string `json:"plan"`

	// CreatedAt is when the run was stored
	CreatedAt time.Time `json:"created_at"`

	// Mode is the share mode the run used
	Mode string `json:"mode"`

	// Rows is the number of allocated rows
	Rows int `json:"rows"`

	// Clean reports whether validation passed with no findings
	Clean bool `json:"clean"`

	// MaxDiscrepancy is the largest absolute conservation discrepancy
	MaxDiscrepancy string `json:"max_discrepancy"`

	// Output is the full run output
	Output *output.RunOutput `json:"output,omitempty"`
}

// Store persists allocation runs
type Store interface {
	// Save stores a run
	Save(ctx context.Context, run *StoredRun) error

	// Get retrieves a run by ID
	Get(ctx context.Context, id string) (*StoredRun, error)

	// List lists runs for a plan, newest first; empty plan lists all
	List(ctx context.Context, plan string) ([]*StoredRun, error)

	// Latest returns the newest run for a plan
	Latest(ctx context.Context, plan string) (*StoredRun, error)

	// Close closes the store
	Close() error
}

// NewRun wraps a run output with identity and summary fields
func NewRun(plan string, out *output.RunOutput) *StoredRun {
	run := &StoredRun{
		ID:        uuid.NewString(),
		Plan:      plan,
		CreatedAt: time.Now().UTC(),
		Mode:      out.Mode,
		Rows:      len(out.Rows),
		Output:    out,
	}
	if out.Report != nil {
		run.Clean = out.Report.Clean()
		run.MaxDiscrepancy = out.Report.MaxDiscrepancy().String()
	}
	return run
}

// New creates a store for the backend
func New(backend Backend, path string) (Store, error) {
	switch backend {
	case BackendMemory, "":
		return NewMemoryStore(), nil
	case BackendSQLite:
		return NewSQLiteStore(path)
	default:
		return nil, errors.Newf(errors.TypeInput, "unknown storage backend %q", backend)
	}
}

// MemoryStore keeps runs in memory for the lifetime of the process
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string]*StoredRun
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string]*StoredRun)}
}

// Save stores a run
func (s *MemoryStore) Save(_ context.Context, run *StoredRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = run
	return nil
}

// Get retrieves a run by ID
func (s *MemoryStore) Get(_ context.Context, id string) (*StoredRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, errors.NotFound("run", id)
	}
	return run, nil
}

// List lists runs for a plan, newest first
func (s *MemoryStore) List(_ context.Context, plan string) ([]*StoredRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*StoredRun
	for _, run := range s.runs {
		if plan == "" || run.Plan == plan {
			out = append(out, run)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Latest returns the newest run for a plan
func (s *MemoryStore) Latest(ctx context.Context, plan string) (*StoredRun, error) {
	runs, err := s.List(ctx, plan)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, errors.NotFound("run for plan", plan)
	}
	return runs[0], nil
}

// Close is a no-op for the memory store
func (s *MemoryStore) Close() error { return nil }

// SQLiteStore persists runs to a single SQLite table as JSON payloads
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) a SQLite-backed store
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = "arealloc.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, errors.Internal("create store directory", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Internal("open sqlite store", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		plan TEXT NOT NULL,
		created_at TEXT NOT NULL,
		payload BLOB NOT NULL
	)`); err != nil {
		return nil, errors.Internal("create runs table", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Save stores a run
func (s *SQLiteStore) Save(ctx context.Context, run *StoredRun) error {
	payload, err := json.Marshal(run)
	if err != nil {
		return errors.Internal("encode run", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, plan, created_at, payload) VALUES (?, ?, ?, ?)`,
		run.ID, run.Plan, run.CreatedAt.Format(time.RFC3339Nano), payload)
	if err != nil {
		return errors.Internal("insert run", err)
	}
	return nil
}

// Get retrieves a run by ID
func (s *SQLiteStore) Get(ctx context.Context, id string) (*StoredRun, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM runs WHERE id = ?`, id).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("run", id)
	}
	if err != nil {
		return nil, errors.Internal("select run", err)
	}
	return decodeRun(payload)
}

// List lists runs for a plan, newest first
func (s *SQLiteStore) List(ctx context.Context, plan string) ([]*StoredRun, error) {
	query := `SELECT payload FROM runs ORDER BY created_at DESC, id`
	args := []interface{}{}
	if plan != "" {
		query = `SELECT payload FROM runs WHERE plan = ? ORDER BY created_at DESC, id`
		args = append(args, plan)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Internal("select runs", err)
	}
	defer rows.Close()

	var out []*StoredRun
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, errors.Internal("scan run", err)
		}
		run, err := decodeRun(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// Latest returns the newest run for a plan
func (s *SQLiteStore) Latest(ctx context.Context, plan string) (*StoredRun, error) {
	runs, err := s.List(ctx, plan)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, errors.NotFound("run for plan", plan)
	}
	return runs[0], nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func decodeRun(payload []byte) (*StoredRun, error) {
	var run StoredRun
	if err := json.Unmarshal(payload, &run); err != nil {
		return nil, errors.Internal("decode run", err)
	}
	return &run, nil
}
