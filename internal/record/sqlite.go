package record

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// busyTimeoutMillis bounds how long a writer waits for another process holding the database
const busyTimeoutMillis = 5000

type sqliteStore struct {
	db *sql.DB
}

func openSQLite(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// sqlite serializes writers; one connection also keeps ":memory:" databases shared
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeoutMillis)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	return db, nil
}

// NewSQLiteStore opens (or creates) a sqlite database at dbPath and applies pending schema
// migrations. Use ":memory:" for a throwaway in-memory database.
func NewSQLiteStore(dbPath string) (Store, error) {
	db, err := openSQLite(dbPath)
	if err != nil {
		return nil, err
	}
	if err := migrateUp(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &sqliteStore{db: db}, nil
}

// querier is satisfied by both *sql.DB and *sql.Conn
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func loadValues(ctx context.Context, q querier, namespace string) (Values, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT key, value FROM app_records WHERE namespace = ?", namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to query record '%s': %w", namespace, err)
	}
	defer func() { _ = rows.Close() }()

	values := Values{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan record '%s': %w", namespace, err)
		}
		values[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate record '%s': %w", namespace, err)
	}
	if len(values) == 0 {
		return nil, ErrNotFound
	}
	return values, nil
}

func writeValues(ctx context.Context, q querier, namespace string, set Values, deleted []string) error {
	for key, value := range set {
		if _, err := q.ExecContext(ctx,
			"INSERT OR REPLACE INTO app_records (namespace, key, value) VALUES (?, ?, ?)",
			namespace, key, value); err != nil {
			return fmt.Errorf("failed to write key '%s' of record '%s': %w", key, namespace, err)
		}
	}
	for _, key := range deleted {
		if _, err := q.ExecContext(ctx,
			"DELETE FROM app_records WHERE namespace = ? AND key = ?", namespace, key); err != nil {
			return fmt.Errorf("failed to delete key '%s' of record '%s': %w", key, namespace, err)
		}
	}
	return nil
}

func (s *sqliteStore) Load(ctx context.Context, namespace string) (Values, error) {
	return loadValues(ctx, s.db, namespace)
}

func (s *sqliteStore) Commit(ctx context.Context, namespace string, set Values, deleted []string) error {
	return s.Modify(ctx, namespace, func(Values) (Values, []string, bool) {
		return set, deleted, true
	})
}

// Modify runs fn inside an IMMEDIATE transaction, which takes the database write lock
// before the read so that other processes cannot commit in between.
func (s *sqliteStore) Modify(ctx context.Context, namespace string, fn ModifyFunc) (retErr error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if retErr != nil {
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	current, err := loadValues(ctx, conn, namespace)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	set, deleted, commit := fn(current)
	if commit {
		if err := writeValues(ctx, conn, namespace, set, deleted); err != nil {
			return err
		}
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("failed to commit record '%s': %w", namespace, err)
	}
	return nil
}

func (s *sqliteStore) DeleteNamespace(ctx context.Context, namespace string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM app_records WHERE namespace = ?", namespace); err != nil {
		return fmt.Errorf("failed to delete record '%s': %w", namespace, err)
	}
	return nil
}

func (s *sqliteStore) Namespaces(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT namespace FROM app_records ORDER BY namespace")
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var ns string
		if err := rows.Scan(&ns); err != nil {
			return nil, fmt.Errorf("failed to scan namespace: %w", err)
		}
		out = append(out, ns)
	}
	return out, rows.Err()
}

func (s *sqliteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
