package record

import (
	"context"
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStores(t *testing.T) map[string]Store {
	t.Helper()

	fileStore, err := NewFileStore(filepath.Join(t.TempDir(), "records"))
	require.NoError(t, err)

	sqliteStore, err := NewSQLiteStore(filepath.Join(t.TempDir(), "records.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqliteStore.Close() })

	return map[string]Store{
		"file":   fileStore,
		"sqlite": sqliteStore,
	}
}

func TestStore_Conformance(t *testing.T) {
	t.Parallel()

	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			const app = "https://example.com/app/?id=1#frag"

			_, err := store.Load(ctx, app)
			require.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, store.Commit(ctx, app, Values{"a": "1", "b": "two"}, nil))
			got, err := store.Load(ctx, app)
			require.NoError(t, err)
			assert.Equal(t, Values{"a": "1", "b": "two"}, got)

			// set and delete are applied together and merge with existing keys
			require.NoError(t, store.Commit(ctx, app, Values{"c": "3"}, []string{"a"}))
			got, err = store.Load(ctx, app)
			require.NoError(t, err)
			assert.Equal(t, Values{"b": "two", "c": "3"}, got)

			require.NoError(t, store.Commit(ctx, "https://other.example/", Values{"x": "y"}, nil))
			namespaces, err := store.Namespaces(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{app, "https://other.example/"}, namespaces)

			require.NoError(t, store.DeleteNamespace(ctx, app))
			_, err = store.Load(ctx, app)
			require.ErrorIs(t, err, ErrNotFound)

			// deleting a missing namespace is not an error
			require.NoError(t, store.DeleteNamespace(ctx, app))

			namespaces, err = store.Namespaces(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"https://other.example/"}, namespaces)
		})
	}
}

func TestFileStore_Persists(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()

	first, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, first.Commit(ctx, "app", Values{KeyForceUpdate: "true"}, nil))

	second, err := NewFileStore(dir)
	require.NoError(t, err)
	got, err := second.Load(ctx, "app")
	require.NoError(t, err)
	assert.True(t, got.Bool(KeyForceUpdate, false))
}

func TestValues(t *testing.T) {
	t.Parallel()

	v := Values{}
	v.SetString("s", "hello")
	v.SetInt64("n", 1700000000123)
	v.SetInt("i", 7)
	v.SetBool("b", true)
	v["bad"] = "not-a-number"

	assert.Equal(t, "hello", v.String("s", "x"))
	assert.Equal(t, "x", v.String("missing", "x"))
	assert.Equal(t, int64(1700000000123), v.Int64("n", 0))
	assert.Equal(t, 7, v.Int("i", 0))
	assert.Equal(t, 3, v.Int("bad", 3))
	assert.True(t, v.Bool("b", false))
	assert.True(t, v.Bool("bad", true))
}

func TestStore_Modify(t *testing.T) {
	t.Parallel()

	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			const app = "https://example.com/modify/"

			// a declined modification of a missing namespace creates nothing
			require.NoError(t, store.Modify(ctx, app, func(current Values) (Values, []string, bool) {
				assert.Nil(t, current)
				return Values{"a": "1"}, nil, false
			}))
			_, err := store.Load(ctx, app)
			require.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, store.Modify(ctx, app, func(current Values) (Values, []string, bool) {
				assert.Nil(t, current)
				return Values{"a": "1", "b": "2"}, nil, true
			}))
			require.NoError(t, store.Modify(ctx, app, func(current Values) (Values, []string, bool) {
				assert.Equal(t, Values{"a": "1", "b": "2"}, current)
				return Values{"c": current["a"] + current["b"]}, []string{"a"}, true
			}))

			got, err := store.Load(ctx, app)
			require.NoError(t, err)
			assert.Equal(t, Values{"b": "2", "c": "12"}, got)
		})
	}
}

func TestSQLiteMigrator(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "records.db")
	m, err := NewSQLiteMigrator(dbPath)
	require.NoError(t, err)

	_, _, err = m.Version()
	require.Error(t, err, "a fresh database has no schema version")

	fnames, err := fs.Glob(migrationsFS, "migrations/*.up.sql")
	require.NoError(t, err)
	require.NotEmpty(t, fnames)

	for i := 1; i <= len(fnames); i++ {
		require.NoError(t, m.Steps(i))
		require.NoError(t, m.Steps(-i))
		require.NoError(t, m.Steps(i))
		require.NoError(t, m.Down())
	}

	require.NoError(t, m.Up())
	version, dirty, err := m.Version()
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(len(fnames)), version)
	require.NoError(t, m.Close())

	// a store over an already migrated database starts without reapplying anything
	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Commit(context.Background(), "app", Values{"a": "1"}, nil))
}
