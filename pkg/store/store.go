// Package store keeps the project catalog and the saved project snapshots
// in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/buger/jsonparser"
	_ "modernc.org/sqlite"

	"github.com/patternkit/patternkit/pkg/constants"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Record is one catalog entry.
type Record struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Path      string    `json:"path,omitempty"`
	Draft     bool      `json:"draft"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DataHost is the catalog of known projects and their saved snapshots.
type DataHost interface {
	List(ctx context.Context) ([]Record, error)
	Get(ctx context.Context, id string) (Record, error)
	FindByPath(ctx context.Context, path string) (Record, error)
	Put(ctx context.Context, r Record) error
	Delete(ctx context.Context, id string) error
	SaveSnapshot(ctx context.Context, id string, disk []byte) error
	LoadSnapshot(ctx context.Context, id string) ([]byte, error)
}

type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ DataHost = (*SQLiteStore)(nil)

// Open opens or creates the database at path. MemoryPath gives a private
// database that lives as long as the store.
func Open(path string) (*SQLiteStore, error) {
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("store: create data dir: %w", err)
		}
	}

	db, err := openDB("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	if path == MemoryPath {
		// every pooled connection would see its own empty database
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	if path != MemoryPath {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL", "PRAGMA synchronous = NORMAL")
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: pragma %q: %w", p, err)
		}
	}

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migration: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS projects (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL DEFAULT '',
			path       TEXT NOT NULL DEFAULT '',
			draft      INTEGER NOT NULL DEFAULT 0,
			updated_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_projects_path ON projects(path);

		CREATE TABLE IF NOT EXISTS snapshots (
			project_id TEXT PRIMARY KEY REFERENCES projects(id) ON DELETE CASCADE,
			data       BLOB NOT NULL,
			saved_at   INTEGER NOT NULL
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

const recordColumns = "id, name, path, draft, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		r       Record
		draft   int
		updated int64
	)
	if err := row.Scan(&r.ID, &r.Name, &r.Path, &draft, &updated); err != nil {
		return Record{}, err
	}
	r.Draft = draft != 0
	r.UpdatedAt = time.UnixMilli(updated).UTC()
	return r, nil
}

// List returns every record, most recently updated first.
func (s *SQLiteStore) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+recordColumns+" FROM projects ORDER BY updated_at DESC, id")
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("store: list: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (Record, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+recordColumns+" FROM projects WHERE id = ?", id)
	return s.one(row, "project "+id)
}

func (s *SQLiteStore) FindByPath(ctx context.Context, path string) (Record, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM projects WHERE path = ? ORDER BY updated_at DESC LIMIT 1", path)
	return s.one(row, "project at "+path)
}

func (s *SQLiteStore) one(row *sql.Row, what string) (Record, error) {
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: %s", constants.ErrNotFound, what)
	}
	if err != nil {
		return Record{}, fmt.Errorf("store: get %s: %w", what, err)
	}
	return r, nil
}

// Put inserts or replaces r. A zero UpdatedAt is set to now.
func (s *SQLiteStore) Put(ctx context.Context, r Record) error {
	if r.ID == "" {
		return errors.New("store: record without id")
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, name, path, draft, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			path = excluded.path,
			draft = excluded.draft,
			updated_at = excluded.updated_at`,
		r.ID, r.Name, r.Path, boolInt(r.Draft), r.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("store: put %s: %w", r.ID, err)
	}
	return nil
}

// Delete removes a record and its snapshot.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM projects WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("store: delete %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: project %s", constants.ErrNotFound, id)
	}
	return nil
}

// SaveSnapshot stores the disk form of a project and refreshes its record
// from the snapshot's name, path and draft flag.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, id string, disk []byte) error {
	r := Record{ID: id, UpdatedAt: s.now()}
	r.Name, _ = jsonparser.GetString(disk, "name")
	r.Path, _ = jsonparser.GetString(disk, "path")
	r.Draft, _ = jsonparser.GetBoolean(disk, "draft")

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: save %s: %w", id, err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projects (id, name, path, draft, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			path = excluded.path,
			draft = excluded.draft,
			updated_at = excluded.updated_at`,
		r.ID, r.Name, r.Path, boolInt(r.Draft), r.UpdatedAt.UnixMilli()); err != nil {
		return fmt.Errorf("store: save %s record: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO snapshots (project_id, data, saved_at) VALUES (?, ?, ?)
		ON CONFLICT(project_id) DO UPDATE SET data = excluded.data, saved_at = excluded.saved_at`,
		id, disk, r.UpdatedAt.UnixMilli()); err != nil {
		return fmt.Errorf("store: save %s snapshot: %w", id, err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) LoadSnapshot(ctx context.Context, id string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT data FROM snapshots WHERE project_id = ?", id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: snapshot of %s", constants.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("store: load %s: %w", id, err)
	}
	return data, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
