// Package schedule runs the deferred delivery step under device constraints, with a
// single durable job slot shared by every app.
package schedule

import (
	"context"
	"time"

	"github.com/google/uuid"
)

//go:generate mockgen -destination=mocks/mock_schedule.go -package=mocks -source=job.go Scheduler

const (
	// DefaultJobID keys the single delivery job
	DefaultJobID = "webapk-update"

	// DefaultWindowStart is the earliest an opportunistic job runs after scheduling
	DefaultWindowStart = time.Hour

	// DefaultWindowEnd is when an opportunistic job runs regardless of constraints
	DefaultWindowEnd = 23 * time.Hour
)

// Constraints are the device conditions an opportunistic job waits for
type Constraints struct {
	RequireUnmetered bool `json:"requireUnmetered"`
	RequireCharging  bool `json:"requireCharging"`
}

// DeviceState is the current network and power state
type DeviceState struct {
	Unmetered bool `json:"unmetered"`
	Charging  bool `json:"charging"`
}

// Satisfies reports whether the device state meets c
func (c Constraints) Satisfies(state DeviceState) bool {
	if c.RequireUnmetered && !state.Unmetered {
		return false
	}
	if c.RequireCharging && !state.Charging {
		return false
	}
	return true
}

// Job is the pending delivery job
type Job struct {
	ID string `json:"id"`

	// Generation changes on every schedule call, so a run only retires the job it started
	Generation string `json:"generation"`

	Forced      bool        `json:"forced"`
	Constraints Constraints `json:"constraints"`
	ScheduledAt time.Time   `json:"scheduledAt"`
	WindowStart time.Time   `json:"windowStart"`
	WindowEnd   time.Time   `json:"windowEnd"`
}

// Forced returns a job that runs as soon as possible without constraints
func Forced(jobID string, now time.Time) Job {
	return Job{
		ID:          jobID,
		Generation:  uuid.NewString(),
		Forced:      true,
		ScheduledAt: now,
		WindowStart: now,
		WindowEnd:   now,
	}
}

// Opportunistic returns a job that waits at least start, then runs once the device is on
// an unmetered network and charging, or unconditionally after end
func Opportunistic(jobID string, now time.Time, start, end time.Duration) Job {
	return Job{
		ID:         jobID,
		Generation: uuid.NewString(),
		Constraints: Constraints{
			RequireUnmetered: true,
			RequireCharging:  true,
		},
		ScheduledAt: now,
		WindowStart: now.Add(start),
		WindowEnd:   now.Add(end),
	}
}

// Due reports whether the job should run at now given the device state
func (j *Job) Due(now time.Time, state DeviceState) bool {
	if j.Forced || !now.Before(j.WindowEnd) {
		return true
	}
	return !now.Before(j.WindowStart) && j.Constraints.Satisfies(state)
}

// Scheduler is the scheduling primitive: one job per ID, each call replaces the last
type Scheduler interface {
	ScheduleOrReplace(ctx context.Context, job Job) error
}
