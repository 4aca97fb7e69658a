package artifacts

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/hoferino/manda/pkg/schema"
)

// LibSQLStore persists artifacts in a libSQL (embedded SQLite) database.
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and applies
// migrations. The path may be the same file the checkpoint store uses.
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

const artifactSchema = `CREATE TABLE IF NOT EXISTS artifacts (
	id TEXT PRIMARY KEY,
	section_id TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	content TEXT NOT NULL DEFAULT '',
	refs TEXT NOT NULL DEFAULT '[]',
	updated_at TIMESTAMP NOT NULL
)`

func (s *LibSQLStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, artifactSchema); err != nil {
		return fmt.Errorf("create artifacts table: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

func (s *LibSQLStore) Get(ctx context.Context, id string) (*Artifact, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, section_id, title, status, content, refs, updated_at FROM artifacts WHERE id = ?`, id)
	art, err := scanArtifact(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeContext, "read artifact: %s", err.Error()).WithCause(err)
	}
	return art, nil
}

func (s *LibSQLStore) Put(ctx context.Context, art *Artifact) error {
	if err := art.Validate(); err != nil {
		return err
	}
	updatedAt := art.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	refs, err := json.Marshal(art.References)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeState, "encode references: %s", err.Error()).WithCause(err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO artifacts (id, section_id, title, status, content, refs, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			section_id=excluded.section_id, title=excluded.title, status=excluded.status,
			content=excluded.content, refs=excluded.refs, updated_at=excluded.updated_at`,
		art.ID, art.SectionID, art.Title, string(art.Status), art.Content, string(refs), updatedAt,
	)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeContext, "write artifact: %s", err.Error()).WithCause(err)
	}
	return nil
}

func (s *LibSQLStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM artifacts WHERE id = ?`, id); err != nil {
		return schema.NewErrorf(schema.ErrCodeContext, "delete artifact: %s", err.Error()).WithCause(err)
	}
	return nil
}

func (s *LibSQLStore) List(ctx context.Context) ([]*Artifact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, section_id, title, status, content, refs, updated_at FROM artifacts ORDER BY id`)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeContext, "list artifacts: %s", err.Error()).WithCause(err)
	}
	defer rows.Close()

	var out []*Artifact
	for rows.Next() {
		art, err := scanArtifact(rows.Scan)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeContext, "scan artifact: %s", err.Error()).WithCause(err)
		}
		out = append(out, art)
	}
	if err := rows.Err(); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeContext, "list artifacts: %s", err.Error()).WithCause(err)
	}
	return out, nil
}

func scanArtifact(scan func(dest ...any) error) (*Artifact, error) {
	art := &Artifact{}
	var status, refs string
	if err := scan(&art.ID, &art.SectionID, &art.Title, &status, &art.Content, &refs, &art.UpdatedAt); err != nil {
		return nil, err
	}
	art.Status = schema.ArtifactStatus(status)
	if err := json.Unmarshal([]byte(refs), &art.References); err != nil {
		return nil, fmt.Errorf("decode references: %w", err)
	}
	return art, nil
}

var _ Store = (*LibSQLStore)(nil)
