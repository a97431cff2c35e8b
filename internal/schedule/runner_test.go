package schedule

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedDevice DeviceState

func (d fixedDevice) State() DeviceState { return DeviceState(d) }

func newStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestFileStore_SingleSlot(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newStore(t)
	now := time.Now()

	job, err := s.Load(ctx, DefaultJobID)
	require.NoError(t, err)
	assert.Nil(t, job)

	first := Forced(DefaultJobID, now)
	second := Opportunistic(DefaultJobID, now, time.Hour, 23*time.Hour)
	require.NoError(t, s.ScheduleOrReplace(ctx, first))
	require.NoError(t, s.ScheduleOrReplace(ctx, second))

	job, err = s.Load(ctx, DefaultJobID)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, second.Generation, job.Generation)
	assert.False(t, job.Forced)
	assert.Equal(t, second.Constraints, job.Constraints)

	removed, err := s.Complete(ctx, DefaultJobID, first.Generation)
	require.NoError(t, err)
	assert.False(t, removed)

	removed, err = s.Complete(ctx, DefaultJobID, second.Generation)
	require.NoError(t, err)
	assert.True(t, removed)

	job, err = s.Load(ctx, DefaultJobID)
	require.NoError(t, err)
	assert.Nil(t, job)

	require.Error(t, s.ScheduleOrReplace(ctx, Job{}))
}

func TestRunner_RunOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("no job", func(t *testing.T) {
		t.Parallel()
		var runs atomic.Int32
		r := NewRunner(newStore(t), TaskFunc(func(context.Context) error { runs.Add(1); return nil }), fixedDevice{})
		ran, err := r.RunOnce(ctx)
		require.NoError(t, err)
		assert.False(t, ran)
		assert.Zero(t, runs.Load())
	})

	t.Run("job not due stays", func(t *testing.T) {
		t.Parallel()
		s := newStore(t)
		require.NoError(t, s.ScheduleOrReplace(ctx, Opportunistic(DefaultJobID, now, time.Hour, 23*time.Hour)))

		r := NewRunner(s, TaskFunc(func(context.Context) error { return nil }), fixedDevice{Unmetered: true, Charging: true},
			WithRunnerClock(func() time.Time { return now.Add(time.Minute) }))
		ran, err := r.RunOnce(ctx)
		require.NoError(t, err)
		assert.False(t, ran)

		job, err := s.Load(ctx, DefaultJobID)
		require.NoError(t, err)
		assert.NotNil(t, job)
	})

	t.Run("due job runs and is retired", func(t *testing.T) {
		t.Parallel()
		s := newStore(t)
		require.NoError(t, s.ScheduleOrReplace(ctx, Forced(DefaultJobID, now)))

		var runs atomic.Int32
		r := NewRunner(s, TaskFunc(func(context.Context) error { runs.Add(1); return nil }), fixedDevice{},
			WithRunnerClock(func() time.Time { return now }))
		ran, err := r.RunOnce(ctx)
		require.NoError(t, err)
		assert.True(t, ran)
		assert.Equal(t, int32(1), runs.Load())

		ran, err = r.RunOnce(ctx)
		require.NoError(t, err)
		assert.False(t, ran)
	})

	t.Run("failed run keeps the job", func(t *testing.T) {
		t.Parallel()
		s := newStore(t)
		require.NoError(t, s.ScheduleOrReplace(ctx, Forced(DefaultJobID, now)))

		r := NewRunner(s, TaskFunc(func(context.Context) error { return errors.New("boom") }), fixedDevice{})
		ran, err := r.RunOnce(ctx)
		require.Error(t, err)
		assert.True(t, ran)

		job, err := s.Load(ctx, DefaultJobID)
		require.NoError(t, err)
		assert.NotNil(t, job)
	})

	t.Run("job replaced while running survives", func(t *testing.T) {
		t.Parallel()
		s := newStore(t)
		require.NoError(t, s.ScheduleOrReplace(ctx, Forced(DefaultJobID, now)))

		replacement := Opportunistic(DefaultJobID, now, time.Hour, 23*time.Hour)
		r := NewRunner(s, TaskFunc(func(ctx context.Context) error {
			return s.ScheduleOrReplace(ctx, replacement)
		}), fixedDevice{})
		ran, err := r.RunOnce(ctx)
		require.NoError(t, err)
		assert.True(t, ran)

		job, err := s.Load(ctx, DefaultJobID)
		require.NoError(t, err)
		require.NotNil(t, job)
		assert.Equal(t, replacement.Generation, job.Generation)
	})
}

func TestRunner_StartWakesOnSchedule(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	ran := make(chan struct{}, 1)
	r := NewRunner(s, TaskFunc(func(context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	}), fixedDevice{}, WithPollInterval(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Start(ctx) }()

	// the watcher is installed before the first poll; keep scheduling until it fires
	require.Eventually(t, func() bool {
		assert.NoError(t, s.ScheduleOrReplace(context.Background(), Forced(DefaultJobID, time.Now())))
		select {
		case <-ran:
			return true
		default:
			return false
		}
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
