// Package record provides the durable per-app record used by every stage of the update
// pipeline, on top of a small namespaced key/value store.
package record

import (
	"context"
	"errors"
	"strconv"
)

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks -source=store.go Store

// ErrNotFound is returned when a namespace holds no keys
var ErrNotFound = errors.New("record not found")

// ModifyFunc receives the current keys of a namespace (nil when it holds none) and returns
// the keys to set, the keys to remove and whether to write them at all.
type ModifyFunc func(current Values) (set Values, deleted []string, commit bool)

// Store is a durable key/value substrate partitioned into namespaces, one per app.
// Implementations must make Commit and Modify atomic for a namespace, across processes
// sharing the same backing storage.
type Store interface {
	// Load returns every key of the namespace. A missing namespace yields ErrNotFound.
	Load(ctx context.Context, namespace string) (Values, error)

	// Commit sets the given keys and removes the deleted ones in a single write
	Commit(ctx context.Context, namespace string, set Values, deleted []string) error

	// Modify reads the namespace and commits what fn returns while holding the namespace
	// exclusively, so no other writer can interleave between the read and the write
	Modify(ctx context.Context, namespace string, fn ModifyFunc) error

	// DeleteNamespace removes the namespace and all its keys
	DeleteNamespace(ctx context.Context, namespace string) error

	// Namespaces lists the namespaces that hold at least one key
	Namespaces(ctx context.Context) ([]string, error)

	// Close releases the resources held by the store
	Close() error
}

// Values is a set of string-encoded keys with typed accessors
type Values map[string]string

// String returns the value of key, or def when absent
func (v Values) String(key, def string) string {
	if s, ok := v[key]; ok {
		return s
	}
	return def
}

// Int64 returns the value of key parsed as an integer, or def when absent or malformed
func (v Values) Int64(key string, def int64) int64 {
	s, ok := v[key]
	if !ok {
		return def
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return def
	}
	return n
}

// Int returns the value of key parsed as an int, or def when absent or malformed
func (v Values) Int(key string, def int) int {
	return int(v.Int64(key, int64(def)))
}

// Bool returns the value of key parsed as a boolean, or def when absent or malformed
func (v Values) Bool(key string, def bool) bool {
	s, ok := v[key]
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return def
	}
	return b
}

// SetString stores a string value
func (v Values) SetString(key, value string) {
	v[key] = value
}

// SetInt64 stores an integer value
func (v Values) SetInt64(key string, value int64) {
	v[key] = strconv.FormatInt(value, 10)
}

// SetInt stores an int value
func (v Values) SetInt(key string, value int) {
	v.SetInt64(key, int64(value))
}

// SetBool stores a boolean value
func (v Values) SetBool(key string, value bool) {
	v[key] = strconv.FormatBool(value)
}
