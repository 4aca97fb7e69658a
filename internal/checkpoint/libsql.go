package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/hoferino/manda/pkg/schema"
)

// LibSQLStore persists snapshots in a libSQL (embedded SQLite) database.
// SQLite serializes writers, which gives the last-writer-wins contract for
// concurrent turns on the same key.
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path, e.g.
// "file:/path/to/manda.db", and applies migrations.
func NewLibSQLStore(ctx context.Context, dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	s := &LibSQLStore{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

const checkpointSchema = `CREATE TABLE IF NOT EXISTS checkpoints (
	thread_key TEXT PRIMARY KEY,
	snapshot TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`

func (s *LibSQLStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, checkpointSchema); err != nil {
		return fmt.Errorf("create checkpoints table: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

func (s *LibSQLStore) Get(ctx context.Context, key schema.ThreadKey) (*Snapshot, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT snapshot FROM checkpoints WHERE thread_key = ?`, key.Encode(),
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeContext, "read checkpoint: %s", err.Error()).WithCause(err)
	}

	snap := &Snapshot{}
	if err := json.Unmarshal([]byte(raw), snap); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeState, "decode checkpoint: %s", err.Error()).WithCause(err)
	}
	return snap, nil
}

func (s *LibSQLStore) Put(ctx context.Context, key schema.ThreadKey, snap *Snapshot) error {
	if snap == nil {
		return schema.NewError(schema.ErrCodeValidation, "snapshot is nil")
	}
	if snap.UpdatedAt.IsZero() {
		snap.UpdatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeState, "encode checkpoint: %s", err.Error()).WithCause(err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (thread_key, snapshot, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(thread_key) DO UPDATE SET snapshot=excluded.snapshot, updated_at=excluded.updated_at`,
		key.Encode(), string(data), snap.UpdatedAt,
	)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeContext, "write checkpoint: %s", err.Error()).WithCause(err)
	}
	return nil
}

func (s *LibSQLStore) Delete(ctx context.Context, key schema.ThreadKey) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM checkpoints WHERE thread_key = ?`, key.Encode())
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeContext, "delete checkpoint: %s", err.Error()).WithCause(err)
	}
	return nil
}

func (s *LibSQLStore) Sweep(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM checkpoints WHERE updated_at < ?`, olderThan)
	if err != nil {
		return 0, schema.NewErrorf(schema.ErrCodeContext, "sweep checkpoints: %s", err.Error()).WithCause(err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

var _ Store = (*LibSQLStore)(nil)
