package record

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

const (
	recordFileSuffix = ".json"
	lockFileSuffix   = ".lock"
	lockRetryDelay   = 10 * time.Millisecond
)

// fileStore keeps one JSON document per namespace. Writes go to a temporary file that is
// renamed over the document, under an advisory file lock shared with other processes.
type fileStore struct {
	basePath string
}

// NewFileStore creates a file-backed store rooted at basePath
func NewFileStore(basePath string) (Store, error) {
	if err := os.MkdirAll(basePath, 0750); err != nil {
		return nil, fmt.Errorf("failed to create record directory: %w", err)
	}
	return &fileStore{basePath: basePath}, nil
}

func (f *fileStore) documentPath(namespace string) string {
	return filepath.Join(f.basePath, url.PathEscape(namespace)+recordFileSuffix)
}

func (f *fileStore) lock(ctx context.Context, namespace string, exclusive bool) (*flock.Flock, error) {
	fl := flock.New(filepath.Join(f.basePath, url.PathEscape(namespace)+lockFileSuffix))
	var (
		locked bool
		err    error
	)
	if exclusive {
		locked, err = fl.TryLockContext(ctx, lockRetryDelay)
	} else {
		locked, err = fl.TryRLockContext(ctx, lockRetryDelay)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock record '%s': %w", namespace, err)
	}
	if !locked {
		return nil, fmt.Errorf("failed to lock record '%s'", namespace)
	}
	return fl, nil
}

func (f *fileStore) read(namespace string) (Values, error) {
	// #nosec G304 -- path is built from the base directory and an escaped namespace
	data, err := os.ReadFile(f.documentPath(namespace))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read record '%s': %w", namespace, err)
	}
	values := Values{}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record '%s': %w", namespace, err)
	}
	return values, nil
}

func (f *fileStore) Load(ctx context.Context, namespace string) (Values, error) {
	fl, err := f.lock(ctx, namespace, false)
	if err != nil {
		return nil, err
	}
	defer func() { _ = fl.Unlock() }()

	return f.read(namespace)
}

func (f *fileStore) Commit(ctx context.Context, namespace string, set Values, deleted []string) error {
	return f.Modify(ctx, namespace, func(Values) (Values, []string, bool) {
		return set, deleted, true
	})
}

func (f *fileStore) Modify(ctx context.Context, namespace string, fn ModifyFunc) error {
	fl, err := f.lock(ctx, namespace, true)
	if err != nil {
		return err
	}
	defer func() { _ = fl.Unlock() }()

	current, err := f.read(namespace)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	set, deleted, commit := fn(current)
	if !commit {
		return nil
	}

	values := Values{}
	for k, v := range current {
		values[k] = v
	}
	for k, v := range set {
		values[k] = v
	}
	for _, k := range deleted {
		delete(values, k)
	}
	return f.write(namespace, values)
}

// write replaces the namespace document; the caller holds the exclusive lock
func (f *fileStore) write(namespace string, values Values) error {
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal record '%s': %w", namespace, err)
	}

	filePath := f.documentPath(namespace)
	tempPath := filePath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary record file '%s': %w", namespace, err)
	}
	if err := os.Rename(tempPath, filePath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename record file '%s': %w", namespace, err)
	}
	return nil
}

func (f *fileStore) DeleteNamespace(ctx context.Context, namespace string) error {
	fl, err := f.lock(ctx, namespace, true)
	if err != nil {
		return err
	}
	defer func() {
		_ = fl.Unlock()
		_ = os.Remove(fl.Path())
	}()

	if err := os.Remove(f.documentPath(namespace)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete record '%s': %w", namespace, err)
	}
	return nil
}

func (f *fileStore) Namespaces(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(f.basePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read record directory: %w", err)
	}

	var out []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, recordFileSuffix) {
			continue
		}
		ns, err := url.PathUnescape(strings.TrimSuffix(name, recordFileSuffix))
		if err != nil {
			continue
		}
		out = append(out, ns)
	}
	sort.Strings(out)
	return out, nil
}

func (*fileStore) Close() error {
	return nil
}
