package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultPollInterval is how often the runner checks the job slot
const DefaultPollInterval = time.Minute

// Task is the work a due job performs
type Task interface {
	Run(ctx context.Context) error
}

// TaskFunc adapts a function to Task
type TaskFunc func(ctx context.Context) error

// Run calls f
func (f TaskFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// DeviceSource reports the current device state
type DeviceSource interface {
	State() DeviceState
}

// Runner executes the job in one slot when it becomes due
type Runner struct {
	store        *FileStore
	task         Task
	device       DeviceSource
	jobID        string
	pollInterval time.Duration
	now          func() time.Time

	// runMu serializes runs started by the ticker and by file events
	runMu sync.Mutex
}

// RunnerOption configures a Runner
type RunnerOption func(*Runner)

// WithJobID selects the slot the runner serves
func WithJobID(id string) RunnerOption {
	return func(r *Runner) {
		r.jobID = id
	}
}

// WithPollInterval sets the base polling interval
func WithPollInterval(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.pollInterval = d
		}
	}
}

// WithRunnerClock overrides the time source
func WithRunnerClock(now func() time.Time) RunnerOption {
	return func(r *Runner) {
		r.now = now
	}
}

// NewRunner creates a runner for the jobs in store
func NewRunner(store *FileStore, task Task, device DeviceSource, opts ...RunnerOption) *Runner {
	r := &Runner{
		store:        store,
		task:         task,
		device:       device,
		jobID:        DefaultJobID,
		pollInterval: DefaultPollInterval,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// nextInterval applies up to ±25% jitter to the poll interval
func (r *Runner) nextInterval() time.Duration {
	jitter := int64(r.pollInterval / 4)
	if jitter <= 0 {
		return r.pollInterval
	}
	//nolint:gosec // G404: Non-cryptographic randomness is sufficient for polling jitter
	return r.pollInterval + time.Duration(rand.Int64N(2*jitter)-jitter)
}

// RunOnce runs the job if one is due. The job is retired only after the task succeeds,
// and only if it was not replaced while running.
func (r *Runner) RunOnce(ctx context.Context) (bool, error) {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	job, err := r.store.Load(ctx, r.jobID)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	if !job.Due(r.now(), r.device.State()) {
		slog.Debug("Delivery job not due", "job_id", job.ID, "window_start", job.WindowStart)
		return false, nil
	}

	slog.Info("Running delivery job", "job_id", job.ID, "generation", job.Generation, "forced", job.Forced)
	if err := r.task.Run(ctx); err != nil {
		return true, fmt.Errorf("delivery job failed: %w", err)
	}

	removed, err := r.store.Complete(ctx, job.ID, job.Generation)
	if err != nil {
		return true, err
	}
	if !removed {
		slog.Info("Delivery job was replaced while running, keeping it", "job_id", job.ID)
	}
	return true, nil
}

func (r *Runner) tick(ctx context.Context) {
	if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
		slog.Error("Delivery job run failed", "job_id", r.jobID, "error", err)
	}
}

// Start polls the slot and reacts to slot file changes until ctx is cancelled
func (r *Runner) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(r.store.Dir()); err != nil {
		return fmt.Errorf("failed to watch job directory %s: %w", r.store.Dir(), err)
	}
	slotName := filepath.Base(r.store.SlotPath(r.jobID))

	slog.Info("Starting delivery job runner", "job_id", r.jobID, "poll_interval", r.pollInterval)

	ticker := time.NewTicker(r.nextInterval())
	defer ticker.Stop()

	r.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Delivery job runner stopping")
			return nil

		case <-ticker.C:
			r.tick(ctx)
			ticker.Reset(r.nextInterval())

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher event channel closed")
			}
			// Slots are replaced by rename, which surfaces as Create on the target
			if filepath.Base(event.Name) == slotName && (event.Has(fsnotify.Create) || event.Has(fsnotify.Write)) {
				r.tick(ctx)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher error channel closed")
			}
			slog.Error("Job directory watcher error", "error", err)
		}
	}
}
