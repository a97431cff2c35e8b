package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/stacklok/pwa-update-manager/internal/approval"
	"github.com/stacklok/pwa-update-manager/internal/config"
	"github.com/stacklok/pwa-update-manager/internal/delivery"
	"github.com/stacklok/pwa-update-manager/internal/dialog"
	"github.com/stacklok/pwa-update-manager/internal/fetch"
	"github.com/stacklok/pwa-update-manager/internal/reasons"
	"github.com/stacklok/pwa-update-manager/internal/record"
	"github.com/stacklok/pwa-update-manager/internal/request"
	"github.com/stacklok/pwa-update-manager/internal/schedule"
	"github.com/stacklok/pwa-update-manager/internal/telemetry"
	"github.com/stacklok/pwa-update-manager/internal/versions"
	"github.com/stacklok/pwa-update-manager/internal/webapp"
)

// ErrClosed is returned by OnActivation after Close
var ErrClosed = errors.New("coordinator is closed")

// ErrNoPendingDelivery is returned by OnDeliveryComplete when the reported delivery is not
// the outstanding request of the app
var ErrNoPendingDelivery = errors.New("no matching delivery outstanding")

// State is the in-memory state of an app's update cycle
type State string

// Cycle states
const (
	StateIdle             State = "idle"
	StateChecking         State = "checking"
	StateAwaitingApproval State = "awaiting_approval"
	StateApproved         State = "approved"
	StateScheduled        State = "scheduled"
)

// Activation results reported by OnActivation
const (
	ReasonUnbound         = "package not managed"
	ReasonInProgress      = "update cycle in progress"
	ReasonDeliveryPending = "update delivery pending"
	ReasonManualTrigger   = "manual trigger"
	ReasonForceUpdate     = "force update"
	ReasonStaleRuntime    = "stale runtime"
	ReasonIntervalElapsed = "check interval elapsed"
	ReasonCheckedRecently = "checked recently"
)

// Check outcomes reported to telemetry
const (
	outcomeNoUpdate  = "no_update"
	outcomeRequested = "requested"
	outcomeDeclined  = "declined"
	outcomeFailed    = "failed"
)

// AppStatus is the record of an app together with its cycle state
type AppStatus struct {
	State  State          `json:"state"`
	Record *record.Record `json:"record"`
}

// cycle is the per-app lock. A cycle that scheduled a delivery stays in place, parked in
// StateScheduled, until the delivery completes.
type cycle struct {
	state   State
	started time.Time
	cancel  context.CancelFunc
	done    chan struct{}
}

// Coordinator runs update cycles. It is safe for concurrent use.
type Coordinator struct {
	records    *record.Repository
	engine     *reasons.Engine
	gate       *approval.Gate
	fetcher    fetch.Fetcher
	serializer *request.Serializer
	scheduler  schedule.Scheduler
	dialog     dialog.Presenter
	metrics    *telemetry.UpdateMetrics
	tracer     trace.Tracer
	now        func() time.Time

	interval       time.Duration
	relaxedFactor  int
	fetchTimeout   time.Duration
	lateWindow     time.Duration
	boundPrefix    string
	manualTrigger  bool
	jobID          string
	windowStart    time.Duration
	windowEnd      time.Duration
	lifetime       context.Context
	cancelLifetime context.CancelFunc

	mu     sync.Mutex
	cycles map[string]*cycle
	wg     sync.WaitGroup
}

var _ delivery.CompletionHandler = (*Coordinator)(nil)

// New creates a coordinator configured from cfg
func New(cfg *config.Config, opts ...Option) (*Coordinator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	lifetime, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		tracer:         noop.NewTracerProvider().Tracer(telemetry.TracerName),
		now:            time.Now,
		interval:       cfg.Update.GetInterval(),
		relaxedFactor:  cfg.Update.GetRelaxedMultiplier(),
		fetchTimeout:   cfg.Update.GetFetchTimeout(),
		lateWindow:     cfg.Update.GetLateManifestWindow(),
		boundPrefix:    cfg.Update.GetBoundPackagePrefix(),
		manualTrigger:  cfg.Update.ManualTrigger,
		jobID:          cfg.Scheduler.GetJobID(),
		windowStart:    cfg.Scheduler.GetWindowStart(),
		windowEnd:      cfg.Scheduler.GetWindowEnd(),
		lifetime:       lifetime,
		cancelLifetime: cancel,
		cycles:         make(map[string]*cycle),
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.validate(); err != nil {
		cancel()
		return nil, err
	}
	return c, nil
}

func (c *Coordinator) validate() error {
	var errs []error
	if c.records == nil {
		errs = append(errs, errors.New("record repository is required"))
	}
	if c.engine == nil {
		errs = append(errs, errors.New("reason engine is required"))
	}
	if c.gate == nil {
		errs = append(errs, errors.New("approval gate is required"))
	}
	if c.fetcher == nil {
		errs = append(errs, errors.New("manifest fetcher is required"))
	}
	if c.serializer == nil {
		errs = append(errs, errors.New("request serializer is required"))
	}
	if c.scheduler == nil {
		errs = append(errs, errors.New("scheduler is required"))
	}
	if c.dialog == nil {
		errs = append(errs, errors.New("dialog presenter is required"))
	}
	return errors.Join(errs...)
}

// OnActivation starts an update cycle for app when it is due. It returns whether a cycle
// was started and why (or why not). The cycle itself continues in the background.
func (c *Coordinator) OnActivation(ctx context.Context, app *webapp.App) (bool, string, error) {
	if app == nil || app.ID == "" {
		return false, "", errors.New("app ID is required")
	}
	if c.lifetime.Err() != nil {
		return false, "", ErrClosed
	}
	if !app.IsBound(c.boundPrefix) {
		slog.Debug("Skipping update check for unmanaged package",
			"app_id", app.ID,
			"package", app.PackageName)
		return false, ReasonUnbound, nil
	}

	// The cycle outlives the activation request but not the coordinator
	cycleCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(c.lifetime, cancel)
	cy, busy := c.claim(app.ID, func() {
		stop()
		cancel()
	})
	if busy != "" {
		stop()
		cancel()
		if busy == StateScheduled {
			return false, ReasonDeliveryPending, nil
		}
		return false, ReasonInProgress, nil
	}

	started := false
	defer func() {
		if !started {
			c.release(app.ID, cy)
		}
	}()

	rec, err := c.register(ctx, app)
	if err != nil {
		return false, "", err
	}

	// A delivery scheduled before a restart still holds the app
	if rec.UpdateScheduled {
		c.setState(cy, StateScheduled)
		slog.Debug("Update delivery still pending", "app_id", app.ID, "path", rec.PendingRequestPath)
		return false, ReasonDeliveryPending, nil
	}

	due, why := c.eligible(app, rec, c.now())
	if !due {
		slog.Debug("Update check not due", "app_id", app.ID, "reason", why)
		return false, why, nil
	}

	session, err := c.fetcher.Start(ctx, fetch.Request{
		AppID:       app.ID,
		StartURL:    app.Snapshot.StartURL,
		Scope:       app.Snapshot.Scope,
		ManifestURL: app.Snapshot.ManifestURL,
		ManifestID:  app.Snapshot.ManifestID,
	})
	if err != nil {
		return false, "", fmt.Errorf("failed to start manifest fetch for app '%s': %w", app.ID, err)
	}

	slog.Info("Starting update check", "app_id", app.ID, "reason", why)
	started = true
	c.wg.Add(1)
	go c.run(cycleCtx, cy, app, session)
	return true, why, nil
}

// claim registers a Checking cycle for appID. When the app is already held it returns the
// state of the holding cycle instead.
func (c *Coordinator) claim(appID string, cancel context.CancelFunc) (*cycle, State) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if held, ok := c.cycles[appID]; ok {
		return nil, held.state
	}
	cy := &cycle{
		state:   StateChecking,
		started: c.now(),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	c.cycles[appID] = cy
	return cy, ""
}

// release ends the cycle's goroutine side. A cycle that reached StateScheduled keeps
// holding the app until unpark.
func (c *Coordinator) release(appID string, cy *cycle) {
	c.mu.Lock()
	if c.cycles[appID] == cy && cy.state != StateScheduled {
		delete(c.cycles, appID)
	}
	c.mu.Unlock()

	cy.cancel()
	close(cy.done)
}

// unpark drops the hold of a cycle whose delivery has completed. A live cycle that has
// not finished scheduling yet is dropped too, its delivery already being accounted for.
func (c *Coordinator) unpark(appID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cy, ok := c.cycles[appID]; ok && (cy.state == StateScheduled || cy.state == StateApproved) {
		delete(c.cycles, appID)
	}
}

func (c *Coordinator) setState(cy *cycle, state State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cy.state = state
}

// register creates the record of a newly seen app. The first check of a new app is due
// one interval after registration.
func (c *Coordinator) register(ctx context.Context, app *webapp.App) (*record.Record, error) {
	rec, _, err := c.records.Update(ctx, app.ID, func(r *record.Record) bool {
		changed := false
		if r.PackageName != app.PackageName {
			r.PackageName = app.PackageName
			changed = true
		}
		if r.LastCheckTime.IsZero() {
			r.LastCheckTime = r.CreatedTime
			if r.LastCheckTime.IsZero() {
				r.LastCheckTime = c.now()
			}
			changed = true
		}
		return changed
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register app '%s': %w", app.ID, err)
	}
	return rec, nil
}

// eligible decides from the persisted record whether app is due for a check
func (c *Coordinator) eligible(app *webapp.App, rec *record.Record, now time.Time) (bool, string) {
	switch {
	case c.manualTrigger:
		return true, ReasonManualTrigger
	case rec.ForceUpdate:
		return true, ReasonForceUpdate
	case c.engine.IsStale(app) &&
		versions.IsNewerVersion(c.engine.TargetRuntimeVersion(), rec.LastRequestedRuntimeVersion):
		return true, ReasonStaleRuntime
	}

	interval := c.interval
	if rec.RelaxUpdates {
		interval *= time.Duration(c.relaxedFactor)
	}
	if now.Sub(rec.LastCheckTime) >= interval {
		return true, ReasonIntervalElapsed
	}
	return false, ReasonCheckedRecently
}

// run waits for the manifest and drives the cycle to its end
func (c *Coordinator) run(ctx context.Context, cy *cycle, app *webapp.App, session fetch.Session) {
	defer c.wg.Done()
	defer c.release(app.ID, cy)

	closeSession := sync.OnceFunc(session.Close)
	defer closeSession()

	ctx, span := c.tracer.Start(ctx, "update.cycle", trace.WithAttributes(
		attribute.String("app.id", app.ID),
		attribute.String("app.package", app.PackageName),
	))
	defer span.End()

	deadline := time.NewTimer(c.fetchTimeout)
	defer deadline.Stop()
	var lateWindow <-chan time.Time

	for {
		select {
		case fetched := <-session.Results():
			// A session delivers at most once
			span.AddEvent("manifest fetched", trace.WithAttributes(attribute.Bool("found", fetched != nil)))
			c.interpret(ctx, cy, app, fetched, closeSession)
			return
		case <-deadline.C:
			slog.Info("Manifest fetch timed out", "app_id", app.ID, "timeout", c.fetchTimeout)
			span.AddEvent("fetch deadline expired")
			c.metrics.RecordFetchTimeout(ctx)
			if c.interpret(ctx, cy, app, nil, closeSession) {
				return
			}
			lateWindow = time.After(c.lateWindow)
		case <-lateWindow:
			slog.Debug("No late manifest arrived", "app_id", app.ID)
			return
		case <-ctx.Done():
			slog.Info("Update cycle abandoned", "app_id", app.ID)
			return
		}
	}
}

// interpret handles one fetch outcome. fetched is nil when no manifest is available.
// It returns true when the cycle is over.
func (c *Coordinator) interpret(
	ctx context.Context,
	cy *cycle,
	app *webapp.App,
	fetched *webapp.Fetched,
	closeSession func(),
) bool {
	now := c.now()
	rec, _, err := c.records.Update(ctx, app.ID, func(r *record.Record) bool {
		r.LastCheckTime = now
		return true
	})
	if err != nil {
		slog.Error("Failed to record update check", "app_id", app.ID, "error", err)
		return true
	}

	rs := c.engine.Reasons(app, fetched)
	if c.manualTrigger {
		rs = rs.Prepend(reasons.ManuallyTriggered)
	}
	if fetched != nil {
		rs = c.gate.Filter(rs)
	}

	if len(rs) == 0 {
		c.noUpdateNeeded(ctx, rec)
		c.metrics.RecordCheck(ctx, outcomeNoUpdate, c.now().Sub(cy.started))
		return fetched != nil
	}

	closeSession()
	c.metrics.RecordReasons(ctx, rs.Strings())
	c.update(ctx, cy, app, fetched, rs)
	return true
}

// noUpdateNeeded clears a previous failure or a pending force flag
func (c *Coordinator) noUpdateNeeded(ctx context.Context, rec *record.Record) {
	if rec.PreviousUpdateSucceeded() && !rec.ForceUpdate {
		slog.Debug("No update needed", "app_id", rec.AppID)
		return
	}
	slog.Info("Update no longer needed, clearing failure state", "app_id", rec.AppID)
	if _, err := c.finish(ctx, rec.AppID, true, false, nil); err != nil {
		slog.Error("Failed to record update outcome", "app_id", rec.AppID, "error", err)
	}
}

// update drives an update with a non-empty reason set through approval and scheduling
func (c *Coordinator) update(
	ctx context.Context,
	cy *cycle,
	app *webapp.App,
	fetched *webapp.Fetched,
	rs reasons.List,
) {
	// Any path that does not reach the end leaves the attempt marked failed
	outcome, failed := outcomeFailed, true
	defer func() {
		if failed {
			if _, err := c.finish(context.WithoutCancel(ctx), app.ID, false, false, nil); err != nil {
				slog.Error("Failed to record update outcome", "app_id", app.ID, "error", err)
			}
		}
		c.metrics.RecordCheck(ctx, outcome, c.now().Sub(cy.started))
	}()

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.StringSlice("update.reasons", rs.Strings()))

	// Without a fresh manifest the identity cannot change and the gate is not consulted
	if fetched != nil {
		decision, err := c.gate.Decide(ctx, app.ID, app, fetched, rs)
		if err != nil {
			slog.Error("Identity approval failed", "app_id", app.ID, "error", err)
			span.RecordError(err)
			return
		}
		c.metrics.RecordDialog(ctx, decision.Outcome.String())

		if decision.Outcome == approval.Prompt {
			action, err := c.ask(ctx, cy, app.ID, decision.Prompt)
			if err != nil {
				slog.Warn("Identity update prompt abandoned", "app_id", app.ID, "error", err)
				return
			}
			if !action.Approves() {
				slog.Info("Identity update declined", "app_id", app.ID)
				outcome = outcomeDeclined
				return
			}
			if err := c.gate.Approve(ctx, app.ID, decision.Hash); err != nil {
				slog.Error("Failed to store identity approval", "app_id", app.ID, "error", err)
				span.RecordError(err)
				return
			}
		}
	}

	if err := c.request(ctx, cy, app, fetched, rs); err != nil {
		slog.Error("Failed to request update", "app_id", app.ID, "error", err)
		span.RecordError(err)
		return
	}
	outcome, failed = outcomeRequested, false
}

// ask presents an identity update prompt and waits for the answer
func (c *Coordinator) ask(
	ctx context.Context,
	cy *cycle,
	appID string,
	prompt *approval.PromptDetails,
) (dialog.Action, error) {
	c.setState(cy, StateAwaitingApproval)

	answers := make(chan dialog.Action, 1)
	var once sync.Once
	onAnswer := func(action dialog.Action) {
		once.Do(func() { answers <- action })
	}
	if err := c.dialog.Present(ctx, appID, prompt, onAnswer); err != nil {
		return "", fmt.Errorf("failed to present prompt: %w", err)
	}

	select {
	case action := <-answers:
		return action, nil
	case <-ctx.Done():
		c.withdraw(appID)
		return "", ctx.Err()
	}
}

func (c *Coordinator) withdraw(appID string) {
	if w, ok := c.dialog.(interface{ Withdraw(appID string) }); ok {
		w.Withdraw(appID)
	}
}

// request issues the pending update request and schedules its delivery
func (c *Coordinator) request(
	ctx context.Context,
	cy *cycle,
	app *webapp.App,
	fetched *webapp.Fetched,
	rs reasons.List,
) error {
	c.setState(cy, StateApproved)

	now := c.now()
	target := c.engine.TargetRuntimeVersion()
	path := c.serializer.NextPath(app.ID)

	// The path is stored first so a failed write can still be cleaned up
	rec, _, err := c.records.Update(ctx, app.ID, func(r *record.Record) bool {
		r.RecordRequestIssued(now, target)
		r.PendingRequestPath = path
		return true
	})
	if err != nil {
		return err
	}

	err = c.serializer.Write(ctx, path, request.Input{
		App:                     app,
		Fetched:                 fetched,
		Reasons:                 rs.Strings(),
		IdentityUpdatePermitted: c.gate.IdentityUpdatePermitted(),
		RuntimeVersion:          target,
	})
	if err != nil {
		return fmt.Errorf("failed to write pending request: %w", err)
	}

	// Mark the record before scheduling so a job that fires right away finds it
	if _, _, err := c.records.Update(ctx, app.ID, func(r *record.Record) bool {
		r.UpdateScheduled = true
		return true
	}); err != nil {
		return err
	}

	job := schedule.Opportunistic(c.jobID, now, c.windowStart, c.windowEnd)
	if rec.ForceUpdate {
		job = schedule.Forced(c.jobID, now)
	}
	if err := c.scheduler.ScheduleOrReplace(ctx, job); err != nil {
		return fmt.Errorf("failed to schedule delivery: %w", err)
	}

	c.setState(cy, StateScheduled)
	c.metrics.RecordRequest(ctx, job.Forced)
	slog.Info("Update requested",
		"app_id", app.ID,
		"reasons", rs.String(),
		"stale", fetched == nil,
		"forced", job.Forced)
	return nil
}

// finish records the terminal outcome of an update attempt and removes its artifact. When
// accept is set the outcome is only recorded if accept approves the current record; the
// returned flag reports whether it was.
func (c *Coordinator) finish(
	ctx context.Context,
	appID string,
	success, relaxUpdates bool,
	accept func(r *record.Record) bool,
) (bool, error) {
	var artifact string
	_, written, err := c.records.Update(ctx, appID, func(r *record.Record) bool {
		if accept != nil && !accept(r) {
			return false
		}
		artifact = r.PendingRequestPath
		r.PendingRequestPath = ""
		r.RecordOutcome(c.now(), success, relaxUpdates)
		return true
	})
	if err != nil || !written {
		return false, err
	}

	if err := request.Delete(artifact); err != nil {
		slog.Warn("Failed to delete pending request", "app_id", appID, "path", artifact, "error", err)
	}
	return true, nil
}

// SetForceUpdate makes the next activation of appID check and update immediately.
// It is a no-op for packages this service does not manage.
func (c *Coordinator) SetForceUpdate(ctx context.Context, appID, packageName string) error {
	if appID == "" {
		return errors.New("app ID is required")
	}
	app := webapp.App{ID: appID, PackageName: packageName}
	if !app.IsBound(c.boundPrefix) {
		slog.Debug("Ignoring force update of unmanaged package", "app_id", appID, "package", packageName)
		return nil
	}

	_, _, err := c.records.Update(ctx, appID, func(r *record.Record) bool {
		r.PackageName = packageName
		r.ForceUpdate = true
		return true
	})
	if err != nil {
		return err
	}
	slog.Info("Force update requested", "app_id", appID)
	return nil
}

// OnDeliveryComplete implements delivery.CompletionHandler. It records the outcome only
// while a delivery is outstanding for appID and, when outcome names the delivered
// artifact, only if that artifact is the current pending request.
func (c *Coordinator) OnDeliveryComplete(ctx context.Context, appID string, outcome delivery.Outcome) error {
	if _, err := c.records.Get(ctx, appID); err != nil {
		return err
	}
	accepted, err := c.finish(ctx, appID, outcome.Succeeded(), outcome.RelaxUpdates, func(r *record.Record) bool {
		return r.UpdateScheduled && (outcome.Path == "" || outcome.Path == r.PendingRequestPath)
	})
	if err != nil {
		return err
	}
	if !accepted {
		slog.Warn("Ignoring completion of a delivery that is not outstanding",
			"app_id", appID,
			"path", outcome.Path)
		return fmt.Errorf("%w for app '%s'", ErrNoPendingDelivery, appID)
	}
	c.unpark(appID)

	c.metrics.RecordDelivery(ctx, outcome.Succeeded())
	slog.Info("Update delivery completed",
		"app_id", appID,
		"result", outcome.Result,
		"relax_updates", outcome.RelaxUpdates)
	return nil
}

// State returns the in-memory cycle state of appID
func (c *Coordinator) State(appID string) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cy, ok := c.cycles[appID]; ok {
		return cy.state
	}
	return StateIdle
}

// Status returns the record of appID with its cycle state. An idle app whose delivery is
// still outstanding is reported as Scheduled.
func (c *Coordinator) Status(ctx context.Context, appID string) (*AppStatus, error) {
	rec, err := c.records.Get(ctx, appID)
	if err != nil {
		return nil, err
	}
	state := c.State(appID)
	if state == StateIdle && rec.UpdateScheduled {
		state = StateScheduled
	}
	return &AppStatus{State: state, Record: rec}, nil
}

// Forget removes everything known about an uninstalled app: its in-flight cycle, any
// prompt, pending artifacts and the record
func (c *Coordinator) Forget(ctx context.Context, appID string) error {
	c.mu.Lock()
	cy := c.cycles[appID]
	c.mu.Unlock()

	if cy != nil {
		cy.cancel()
		select {
		case <-cy.done:
		case <-ctx.Done():
			return ctx.Err()
		}
		c.mu.Lock()
		if c.cycles[appID] == cy {
			delete(c.cycles, appID)
		}
		c.mu.Unlock()
	}

	c.withdraw(appID)
	if err := c.serializer.DeleteApp(appID); err != nil {
		slog.Warn("Failed to delete pending requests", "app_id", appID, "error", err)
	}
	if err := c.records.Delete(ctx, appID); err != nil && !errors.Is(err, record.ErrNotFound) {
		return fmt.Errorf("failed to delete record of app '%s': %w", appID, err)
	}
	slog.Info("App forgotten", "app_id", appID)
	return nil
}

// CheckReadiness reports whether the coordinator still accepts activations
func (c *Coordinator) CheckReadiness(_ context.Context) error {
	if c.lifetime.Err() != nil {
		return ErrClosed
	}
	return nil
}

// Wait blocks until every in-flight cycle has ended
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Close abandons in-flight cycles and waits for them to end
func (c *Coordinator) Close() {
	c.cancelLifetime()
	c.wg.Wait()
}
