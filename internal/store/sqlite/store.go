// Package sqlite is the embedded document store backed by modernc.org/sqlite.
// Optimistic transactions compare the version column on commit.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"finboard/internal/core"
	"finboard/internal/store"
)

type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates the database directory if needed, opens the file and
// applies migrations.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// one writer at a time; sqlite serializes anyway
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	slog.Info("SQLite document store ready", "path", path)
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Get(ctx context.Context, key string) (store.Document, error) {
	return get(ctx, s.db, key)
}

func (s *Store) Set(ctx context.Context, key string, data []byte) error {
	_, err := s.db.ExecContext(ctx, upsertSQL, key, string(data), s.stamp())
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, key string, patch map[string]any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	doc, err := get(ctx, tx, key)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return err
	}
	merged, err := store.Merge(doc.Data, patch)
	if err != nil {
		return fmt.Errorf("update %s: %w", key, err)
	}
	if _, err := tx.ExecContext(ctx, upsertSQL, key, string(merged), s.stamp()); err != nil {
		return fmt.Errorf("update %s: %w", key, err)
	}
	return tx.Commit()
}

func (s *Store) RunTransaction(ctx context.Context, fn store.TxFunc) error {
	t := &sqlTx{
		ctx:    ctx,
		db:     s.db,
		reads:  make(map[string]int64),
		writes: make(map[string][]byte),
	}
	if err := fn(ctx, t); err != nil {
		return err
	}
	if len(t.writes) == 0 && len(t.reads) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	now := s.stamp()
	for _, key := range sortedKeys(t.reads) {
		if _, written := t.writes[key]; written {
			continue
		}
		doc, err := get(ctx, tx, key)
		if err != nil && !errors.Is(err, core.ErrNotFound) {
			return err
		}
		if doc.Version != t.reads[key] {
			return store.Stale(key)
		}
	}
	for _, key := range sortedKeys(t.writes) {
		data := string(t.writes[key])
		version, read := t.reads[key]
		var res sql.Result
		switch {
		case !read:
			res, err = tx.ExecContext(ctx, upsertSQL, key, data, now)
		case version == 0:
			res, err = tx.ExecContext(ctx, insertIfAbsentSQL, key, data, now)
		default:
			res, err = tx.ExecContext(ctx, compareAndSwapSQL, data, now, key, version)
		}
		if err != nil {
			return fmt.Errorf("write %s: %w", key, err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("write %s: %w", key, err)
		} else if n == 0 {
			return store.Stale(key)
		}
	}
	return tx.Commit()
}

func (s *Store) stamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

const (
	upsertSQL = `INSERT INTO documents (key, data, version, updated_at) VALUES (?, ?, 1, ?)
ON CONFLICT(key) DO UPDATE SET data = excluded.data, version = documents.version + 1, updated_at = excluded.updated_at`
	insertIfAbsentSQL = `INSERT INTO documents (key, data, version, updated_at) VALUES (?, ?, 1, ?)
ON CONFLICT(key) DO NOTHING`
	compareAndSwapSQL = `UPDATE documents SET data = ?, version = version + 1, updated_at = ?
WHERE key = ? AND version = ?`
	selectSQL = `SELECT data, version, updated_at FROM documents WHERE key = ?`
)

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func get(ctx context.Context, q queryer, key string) (store.Document, error) {
	var (
		data      string
		version   int64
		updatedAt string
	)
	err := q.QueryRowContext(ctx, selectSQL, key).Scan(&data, &version, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Document{}, fmt.Errorf("%s: %w", key, core.ErrNotFound)
	}
	if err != nil {
		return store.Document{}, fmt.Errorf("get %s: %w", key, err)
	}
	ts, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(updatedAt))
	if err != nil {
		return store.Document{}, fmt.Errorf("parse updated_at for %s: %w", key, err)
	}
	return store.Document{Key: key, Data: []byte(data), Version: version, UpdatedAt: ts}, nil
}

type sqlTx struct {
	ctx    context.Context
	db     *sql.DB
	reads  map[string]int64
	writes map[string][]byte
}

func (t *sqlTx) Get(key string) (store.Document, error) {
	if data, ok := t.writes[key]; ok {
		return store.Document{Key: key, Data: append([]byte(nil), data...), Version: t.reads[key]}, nil
	}
	doc, err := get(t.ctx, t.db, key)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return store.Document{}, err
	}
	if _, seen := t.reads[key]; !seen {
		t.reads[key] = doc.Version
	}
	return doc, err
}

func (t *sqlTx) Set(key string, data []byte) error {
	t.writes[key] = append([]byte(nil), data...)
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
