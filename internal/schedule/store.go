package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

const lockRetryDelay = 10 * time.Millisecond

// FileStore keeps each job in its own slot file so the job survives restarts and is
// visible to separate delivery processes
type FileStore struct {
	dir string
}

var _ Scheduler = (*FileStore)(nil)

// NewFileStore creates a job store in dir
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create job directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the directory holding the slot files
func (s *FileStore) Dir() string {
	return s.dir
}

// SlotPath returns the slot file of jobID
func (s *FileStore) SlotPath(jobID string) string {
	return filepath.Join(s.dir, url.PathEscape(jobID)+".json")
}

func (s *FileStore) lock(ctx context.Context, jobID string) (*flock.Flock, error) {
	fl := flock.New(filepath.Join(s.dir, url.PathEscape(jobID)+".lock"))
	locked, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to lock job slot '%s': %w", jobID, err)
	}
	if !locked {
		return nil, fmt.Errorf("failed to lock job slot '%s'", jobID)
	}
	return fl, nil
}

// ScheduleOrReplace stores job in its slot, replacing any job with the same ID
func (s *FileStore) ScheduleOrReplace(ctx context.Context, job Job) error {
	if job.ID == "" {
		return errors.New("job ID is required")
	}
	fl, err := s.lock(ctx, job.ID)
	if err != nil {
		return err
	}
	defer func() { _ = fl.Unlock() }()

	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	path := s.SlotPath(job.ID)
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write job slot: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("failed to rename job slot: %w", err)
	}

	slog.Info("Delivery job scheduled",
		"job_id", job.ID,
		"forced", job.Forced,
		"window_start", job.WindowStart,
		"window_end", job.WindowEnd)
	return nil
}

// Load returns the job in the slot of jobID, or nil when the slot is empty
func (s *FileStore) Load(ctx context.Context, jobID string) (*Job, error) {
	fl, err := s.lock(ctx, jobID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = fl.Unlock() }()

	return s.read(jobID)
}

func (s *FileStore) read(jobID string) (*Job, error) {
	// #nosec G304 -- path is built from the store directory and an escaped job ID
	data, err := os.ReadFile(s.SlotPath(jobID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read job slot: %w", err)
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to decode job slot: %w", err)
	}
	return &job, nil
}

// Complete empties the slot if it still holds generation. It reports whether the job
// was removed; a job replaced in the meantime is kept.
func (s *FileStore) Complete(ctx context.Context, jobID, generation string) (bool, error) {
	fl, err := s.lock(ctx, jobID)
	if err != nil {
		return false, err
	}
	defer func() { _ = fl.Unlock() }()

	job, err := s.read(jobID)
	if err != nil || job == nil {
		return false, err
	}
	if job.Generation != generation {
		return false, nil
	}
	if err := os.Remove(s.SlotPath(jobID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("failed to remove job slot: %w", err)
	}
	return true, nil
}
