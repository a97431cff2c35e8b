package record

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Repository gives typed, per-app access to a Store. Read-modify-write cycles on the
// same app are serialized within the process.
type Repository struct {
	store Store
	now   func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// RepositoryOption configures a Repository
type RepositoryOption func(*Repository)

// WithClock overrides the time source used to stamp new records
func WithClock(now func() time.Time) RepositoryOption {
	return func(r *Repository) {
		r.now = now
	}
}

// NewRepository creates a repository over store
func NewRepository(store Store, opts ...RepositoryOption) *Repository {
	r := &Repository{
		store: store,
		now:   time.Now,
		locks: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Repository) appLock(appID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[appID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[appID] = l
	}
	return l
}

// Get returns the record of appID. A missing record yields ErrNotFound.
func (r *Repository) Get(ctx context.Context, appID string) (*Record, error) {
	values, err := r.store.Load(ctx, appID)
	if err != nil {
		return nil, err
	}
	return decode(appID, values), nil
}

// Update loads the record of appID (creating an empty one when missing), passes it to
// testAndUpdateFn and persists it if the function returns true. The store holds the app
// exclusively from the read to the write, so updates from other processes sharing the
// store are not lost. It returns the record as it stands after the call and whether it
// was written.
func (r *Repository) Update(
	ctx context.Context,
	appID string,
	testAndUpdateFn func(rec *Record) bool,
) (*Record, bool, error) {
	l := r.appLock(appID)
	l.Lock()
	defer l.Unlock()

	var (
		rec     *Record
		written bool
	)
	err := r.store.Modify(ctx, appID, func(current Values) (Values, []string, bool) {
		if current == nil {
			rec = &Record{AppID: appID, CreatedTime: r.now()}
		} else {
			rec = decode(appID, current)
		}
		if !testAndUpdateFn(rec) {
			return nil, nil, false
		}
		written = true
		set, deleted := rec.encode()
		return set, deleted, true
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to persist record for app '%s': %w", appID, err)
	}
	return rec, written, nil
}

// Delete removes the record of appID
func (r *Repository) Delete(ctx context.Context, appID string) error {
	l := r.appLock(appID)
	l.Lock()
	defer l.Unlock()

	return r.store.DeleteNamespace(ctx, appID)
}

// List returns every stored record
func (r *Repository) List(ctx context.Context) ([]*Record, error) {
	namespaces, err := r.store.Namespaces(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*Record, 0, len(namespaces))
	for _, ns := range namespaces {
		rec, err := r.Get(ctx, ns)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// ApprovedIdentityHash returns the identity hash the user last approved for appID
func (r *Repository) ApprovedIdentityHash(ctx context.Context, appID string) (string, error) {
	rec, err := r.Get(ctx, appID)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return rec.ApprovedIdentityHash, nil
}

// SetApprovedIdentityHash stores the identity hash the user approved for appID
func (r *Repository) SetApprovedIdentityHash(ctx context.Context, appID, hash string) error {
	_, _, err := r.Update(ctx, appID, func(rec *Record) bool {
		rec.ApprovedIdentityHash = hash
		return true
	})
	return err
}

// Close closes the underlying store
func (r *Repository) Close() error {
	return r.store.Close()
}
