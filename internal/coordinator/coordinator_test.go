package coordinator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/pwa-update-manager/internal/approval"
	"github.com/stacklok/pwa-update-manager/internal/config"
	"github.com/stacklok/pwa-update-manager/internal/delivery"
	"github.com/stacklok/pwa-update-manager/internal/dialog"
	dialogmocks "github.com/stacklok/pwa-update-manager/internal/dialog/mocks"
	"github.com/stacklok/pwa-update-manager/internal/fetch"
	fetchmocks "github.com/stacklok/pwa-update-manager/internal/fetch/mocks"
	"github.com/stacklok/pwa-update-manager/internal/reasons"
	"github.com/stacklok/pwa-update-manager/internal/record"
	"github.com/stacklok/pwa-update-manager/internal/request"
	"github.com/stacklok/pwa-update-manager/internal/schedule"
	schedulemocks "github.com/stacklok/pwa-update-manager/internal/schedule/mocks"
	"github.com/stacklok/pwa-update-manager/internal/webapp"
)

const (
	testAppID   = "https://pwa.example/"
	testPackage = "org.chromium.webapk.a1b2"
	testTarget  = "153"
	iconURL     = "https://pwa.example/icon.png"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

type harness struct {
	c          *Coordinator
	repo       *record.Repository
	clock      *fakeClock
	fetcher    *fetchmocks.MockFetcher
	scheduler  *schedulemocks.MockScheduler
	dialog     *dialogmocks.MockPresenter
	serializer *request.Serializer
	cfg        *config.Config
}

func testConfig() *config.Config {
	return &config.Config{
		Update: config.UpdateConfig{
			TargetRuntimeVersion: testTarget,
			FetchTimeout:         "100ms",
			LateManifestWindow:   "300ms",
		},
	}
}

func newHarness(t *testing.T, cfg *config.Config) *harness {
	t.Helper()

	ctrl := gomock.NewController(t)
	clock := &fakeClock{now: time.UnixMilli(1_750_000_000_000)}

	store, err := record.NewFileStore(filepath.Join(t.TempDir(), "records"))
	require.NoError(t, err)
	repo := record.NewRepository(store, record.WithClock(clock.Now))

	serializer, err := request.NewSerializer(filepath.Join(t.TempDir(), "pending"), request.WithClock(clock.Now))
	require.NoError(t, err)

	h := &harness{
		repo:       repo,
		clock:      clock,
		fetcher:    fetchmocks.NewMockFetcher(ctrl),
		scheduler:  schedulemocks.NewMockScheduler(ctrl),
		dialog:     dialogmocks.NewMockPresenter(ctrl),
		serializer: serializer,
		cfg:        cfg,
	}
	h.c = h.newCoordinator(t, h.dialog)
	return h
}

func (h *harness) newCoordinator(t *testing.T, presenter dialog.Presenter) *Coordinator {
	t.Helper()

	gate, err := approval.NewGate(h.repo, approval.Policy{
		NameEnabled: h.cfg.IdentityDialogs.GetNameEnabled(),
		IconEnabled: h.cfg.IdentityDialogs.GetIconEnabled(),
	})
	require.NoError(t, err)

	c, err := New(h.cfg,
		WithRecords(h.repo),
		WithEngine(reasons.NewEngine(h.cfg.Update.TargetRuntimeVersion)),
		WithGate(gate),
		WithFetcher(h.fetcher),
		WithSerializer(h.serializer),
		WithScheduler(h.scheduler),
		WithDialog(presenter),
		WithClock(h.clock.Now),
	)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

// seed stores a record last checked long enough ago for the app to be due
func (h *harness) seed(t *testing.T, fn func(r *record.Record)) {
	t.Helper()
	_, _, err := h.repo.Update(context.Background(), testAppID, func(r *record.Record) bool {
		r.PackageName = testPackage
		r.LastCheckTime = h.clock.Now().Add(-25 * time.Hour)
		if fn != nil {
			fn(r)
		}
		return true
	})
	require.NoError(t, err)
}

func (h *harness) get(t *testing.T) *record.Record {
	t.Helper()
	rec, err := h.repo.Get(context.Background(), testAppID)
	require.NoError(t, err)
	return rec
}

// expectFetch returns the channel feeding the session's result
func (h *harness) expectFetch(t *testing.T) chan *webapp.Fetched {
	t.Helper()
	results := make(chan *webapp.Fetched, 1)
	session := fetchmocks.NewMockSession(gomock.NewController(t))
	session.EXPECT().Results().Return((<-chan *webapp.Fetched)(results)).AnyTimes()
	session.EXPECT().Close().MinTimes(1)

	h.fetcher.EXPECT().Start(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req fetch.Request) (fetch.Session, error) {
			assert.Equal(t, testAppID, req.AppID)
			assert.Equal(t, "https://pwa.example/start", req.StartURL)
			return session, nil
		})
	return results
}

func installedApp(runtime string) *webapp.App {
	return &webapp.App{
		ID:          testAppID,
		PackageName: testPackage,
		Snapshot: webapp.Snapshot{
			StartURL:       "https://pwa.example/start",
			Scope:          "https://pwa.example/",
			ManifestURL:    "https://pwa.example/manifest.json",
			Name:           "Foo",
			ShortName:      "F",
			PrimaryIconURL: iconURL,
			IconHashes:     map[string]string{iconURL: "1"},
			ThemeColor:     webapp.Colors{Light: "#ffffff"},
			RuntimeVersion: runtime,
		},
	}
}

func fetchedFrom(app *webapp.App) *webapp.Fetched {
	return &webapp.Fetched{
		Snapshot:       app.Snapshot,
		PrimaryIconURL: app.Snapshot.PrimaryIconURL,
		Icons:          map[string][]byte{iconURL: []byte("icon")},
	}
}

func TestNew_RequiresDependencies(t *testing.T) {
	t.Parallel()

	_, err := New(nil)
	require.Error(t, err)

	_, err = New(testConfig(), WithRecords(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record repository is required")
	assert.Contains(t, err.Error(), "dialog presenter is required")
}

func TestEligible(t *testing.T) {
	t.Parallel()

	now := time.UnixMilli(1_750_000_000_000)

	tests := []struct {
		name    string
		runtime string
		manual  bool
		rec     record.Record
		want    bool
		reason  string
	}{
		{
			name:    "checked recently",
			runtime: testTarget,
			rec:     record.Record{LastCheckTime: now.Add(-time.Hour)},
			want:    false,
			reason:  ReasonCheckedRecently,
		},
		{
			name:    "interval elapsed",
			runtime: testTarget,
			rec:     record.Record{LastCheckTime: now.Add(-24 * time.Hour)},
			want:    true,
			reason:  ReasonIntervalElapsed,
		},
		{
			name:    "relaxed interval not elapsed",
			runtime: testTarget,
			rec:     record.Record{LastCheckTime: now.Add(-48 * time.Hour), RelaxUpdates: true},
			want:    false,
			reason:  ReasonCheckedRecently,
		},
		{
			name:    "relaxed interval elapsed",
			runtime: testTarget,
			rec:     record.Record{LastCheckTime: now.Add(-30 * 24 * time.Hour), RelaxUpdates: true},
			want:    true,
			reason:  ReasonIntervalElapsed,
		},
		{
			name:    "force flag",
			runtime: testTarget,
			rec:     record.Record{LastCheckTime: now, ForceUpdate: true},
			want:    true,
			reason:  ReasonForceUpdate,
		},
		{
			name:    "stale runtime never requested",
			runtime: "152",
			rec:     record.Record{LastCheckTime: now},
			want:    true,
			reason:  ReasonStaleRuntime,
		},
		{
			name:    "stale runtime already requested for this target",
			runtime: "152",
			rec:     record.Record{LastCheckTime: now.Add(-time.Minute), LastRequestedRuntimeVersion: testTarget},
			want:    false,
			reason:  ReasonCheckedRecently,
		},
		{
			name:    "stale runtime requested for an older target",
			runtime: "151",
			rec:     record.Record{LastCheckTime: now, LastRequestedRuntimeVersion: "152"},
			want:    true,
			reason:  ReasonStaleRuntime,
		},
		{
			name:    "manual trigger",
			runtime: testTarget,
			manual:  true,
			rec:     record.Record{LastCheckTime: now},
			want:    true,
			reason:  ReasonManualTrigger,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := &Coordinator{
				engine:        reasons.NewEngine(testTarget),
				interval:      config.DefaultUpdateInterval,
				relaxedFactor: config.DefaultRelaxedMultiplier,
				manualTrigger: tt.manual,
			}
			got, reason := c.eligible(installedApp(tt.runtime), &tt.rec, now)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestOnActivation_Unbound(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig())
	app := installedApp("100")
	app.PackageName = "com.example.native"

	started, reason, err := h.c.OnActivation(context.Background(), app)
	require.NoError(t, err)
	assert.False(t, started)
	assert.Equal(t, ReasonUnbound, reason)

	_, err = h.repo.Get(context.Background(), testAppID)
	require.ErrorIs(t, err, record.ErrNotFound)
}

func TestOnActivation_NewAppIsNotDueImmediately(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig())

	started, reason, err := h.c.OnActivation(context.Background(), installedApp(testTarget))
	require.NoError(t, err)
	assert.False(t, started)
	assert.Equal(t, ReasonCheckedRecently, reason)

	rec := h.get(t)
	assert.Equal(t, testPackage, rec.PackageName)
	assert.True(t, rec.LastCheckTime.Equal(h.clock.Now()))
	assert.Equal(t, StateIdle, h.c.State(testAppID))
}

func TestOnActivation_FetchStartError(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig())
	h.seed(t, nil)
	h.fetcher.EXPECT().Start(gomock.Any(), gomock.Any()).Return(nil, errors.New("bad start url"))

	started, _, err := h.c.OnActivation(context.Background(), installedApp(testTarget))
	require.Error(t, err)
	assert.False(t, started)
	assert.Equal(t, StateIdle, h.c.State(testAppID))
}

func TestCycle_UnchangedManifest(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig())
	h.seed(t, nil)
	app := installedApp(testTarget)
	results := h.expectFetch(t)

	started, reason, err := h.c.OnActivation(context.Background(), app)
	require.NoError(t, err)
	require.True(t, started)
	assert.Equal(t, ReasonIntervalElapsed, reason)

	results <- fetchedFrom(app)
	h.c.Wait()

	rec := h.get(t)
	assert.True(t, rec.LastCheckTime.Equal(h.clock.Now()))
	assert.True(t, rec.LastRequestCompletionTime.IsZero())
	assert.False(t, rec.UpdateScheduled)

	// a second activation is within the interval
	started, _, err = h.c.OnActivation(context.Background(), app)
	require.NoError(t, err)
	assert.False(t, started)
}

func TestCycle_NoUpdateClearsPreviousFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig())
	h.seed(t, func(r *record.Record) {
		r.LastRequestCompletionTime = h.clock.Now().Add(-48 * time.Hour)
		r.LastRequestSucceeded = false
	})
	app := installedApp(testTarget)
	results := h.expectFetch(t)

	_, _, err := h.c.OnActivation(context.Background(), app)
	require.NoError(t, err)
	results <- fetchedFrom(app)
	h.c.Wait()

	rec := h.get(t)
	assert.True(t, rec.LastRequestSucceeded)
	assert.True(t, rec.LastRequestCompletionTime.Equal(h.clock.Now()))
}

func TestCycle_ForcedWithoutManifestClearsForce(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig())
	require.NoError(t, h.c.SetForceUpdate(context.Background(), testAppID, testPackage))
	results := h.expectFetch(t)

	started, reason, err := h.c.OnActivation(context.Background(), installedApp(testTarget))
	require.NoError(t, err)
	require.True(t, started)
	assert.Equal(t, ReasonForceUpdate, reason)

	// the fetch ends without a manifest
	close(results)
	h.c.Wait()

	rec := h.get(t)
	assert.False(t, rec.ForceUpdate)
	assert.True(t, rec.LastRequestSucceeded)
	assert.Empty(t, rec.PendingRequestPath)
}

func TestSetForceUpdate_UnboundIsNoop(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig())
	require.NoError(t, h.c.SetForceUpdate(context.Background(), testAppID, "com.example.native"))

	_, err := h.repo.Get(context.Background(), testAppID)
	require.ErrorIs(t, err, record.ErrNotFound)
	require.Error(t, h.c.SetForceUpdate(context.Background(), "", testPackage))
}

func TestCycle_StaleRuntimeUpdatesWithoutPrompt(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig())
	app := installedApp("152")
	results := h.expectFetch(t)

	var job schedule.Job
	h.scheduler.EXPECT().ScheduleOrReplace(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, j schedule.Job) error {
			job = j
			return nil
		})
	// no dialog expectations: the gate must not prompt

	started, reason, err := h.c.OnActivation(context.Background(), app)
	require.NoError(t, err)
	require.True(t, started)
	assert.Equal(t, ReasonStaleRuntime, reason)

	results <- fetchedFrom(app)
	h.c.Wait()

	assert.False(t, job.Forced)
	assert.True(t, job.Constraints.RequireUnmetered)
	assert.True(t, job.Constraints.RequireCharging)
	assert.Equal(t, h.clock.Now().Add(config.DefaultWindowStart), job.WindowStart)
	assert.Equal(t, h.clock.Now().Add(config.DefaultWindowEnd), job.WindowEnd)

	rec := h.get(t)
	assert.True(t, rec.UpdateScheduled)
	assert.False(t, rec.LastRequestSucceeded)
	assert.True(t, rec.LastRequestCompletionTime.Equal(h.clock.Now()))
	assert.Equal(t, testTarget, rec.LastRequestedRuntimeVersion)
	require.NotEmpty(t, rec.PendingRequestPath)

	req, err := request.Load(rec.PendingRequestPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"stale-runtime"}, req.Reasons)
	assert.False(t, req.Stale)
	assert.True(t, req.IdentityUpdatePermitted)
	assert.Equal(t, testTarget, req.RuntimeVersion)
	require.NotNil(t, req.PrimaryIcon)

	status, err := h.c.Status(context.Background(), testAppID)
	require.NoError(t, err)
	assert.Equal(t, StateScheduled, status.State)

	// delivery reports back
	h.clock.Advance(time.Hour)
	require.NoError(t, h.c.OnDeliveryComplete(context.Background(), testAppID,
		delivery.Outcome{Result: delivery.ResultSuccess, RelaxUpdates: true}))

	rec = h.get(t)
	assert.True(t, rec.LastRequestSucceeded)
	assert.True(t, rec.RelaxUpdates)
	assert.False(t, rec.UpdateScheduled)
	assert.False(t, rec.ForceUpdate)
	assert.Empty(t, rec.PendingRequestPath)
	assert.True(t, rec.LastRequestCompletionTime.Equal(h.clock.Now()))
	_, err = request.Load(status.Record.PendingRequestPath)
	require.ErrorIs(t, err, request.ErrArtifactNotFound)

	// the runtime was requested for this target, so the interval applies again
	started, _, err = h.c.OnActivation(context.Background(), app)
	require.NoError(t, err)
	assert.False(t, started)
}

func TestCycle_FetchTimeoutFallsBackToStaleness(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig())
	app := installedApp("152")
	h.expectFetch(t)
	h.scheduler.EXPECT().ScheduleOrReplace(gomock.Any(), gomock.Any()).Return(nil)

	started, _, err := h.c.OnActivation(context.Background(), app)
	require.NoError(t, err)
	require.True(t, started)

	// nothing is ever delivered; the deadline expires
	h.c.Wait()

	rec := h.get(t)
	assert.True(t, rec.UpdateScheduled)
	assert.True(t, rec.LastCheckTime.Equal(h.clock.Now()))

	req, err := request.Load(rec.PendingRequestPath)
	require.NoError(t, err)
	assert.True(t, req.Stale)
	assert.Equal(t, []string{"stale-runtime"}, req.Reasons)
	assert.Equal(t, "Foo", req.Snapshot.Name)
}

func TestCycle_LateManifestIsProcessed(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig())
	h.seed(t, nil)
	app := installedApp(testTarget)
	results := h.expectFetch(t)
	h.scheduler.EXPECT().ScheduleOrReplace(gomock.Any(), gomock.Any()).Return(nil)

	before := h.get(t).LastCheckTime
	_, _, err := h.c.OnActivation(context.Background(), app)
	require.NoError(t, err)

	// the deadline is interpreted as "no manifest" and the last check is recorded
	require.Eventually(t, func() bool {
		return h.get(t).LastCheckTime.After(before)
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, StateChecking, h.c.State(testAppID))

	changed := fetchedFrom(app)
	changed.Snapshot.ThemeColor = webapp.Colors{Light: "#000000"}
	results <- changed
	h.c.Wait()

	rec := h.get(t)
	assert.True(t, rec.UpdateScheduled)
	req, err := request.Load(rec.PendingRequestPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"theme-color-differs"}, req.Reasons)
	assert.False(t, req.Stale)
}

func TestCycle_LateWindowExpires(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig())
	h.seed(t, nil)
	h.expectFetch(t)

	_, _, err := h.c.OnActivation(context.Background(), installedApp(testTarget))
	require.NoError(t, err)
	h.c.Wait()

	assert.Equal(t, StateIdle, h.c.State(testAppID))
	rec := h.get(t)
	assert.True(t, rec.LastCheckTime.Equal(h.clock.Now()))
	assert.False(t, rec.UpdateScheduled)
}

func TestCycle_ForcedUpdateSchedulesForcedJob(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig())
	h.seed(t, func(r *record.Record) { r.ForceUpdate = true })
	app := installedApp(testTarget)
	results := h.expectFetch(t)

	var job schedule.Job
	h.scheduler.EXPECT().ScheduleOrReplace(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, j schedule.Job) error {
			job = j
			return nil
		})

	_, _, err := h.c.OnActivation(context.Background(), app)
	require.NoError(t, err)
	changed := fetchedFrom(app)
	changed.Snapshot.DisplayMode = "fullscreen"
	results <- changed
	h.c.Wait()

	assert.True(t, job.Forced)
	assert.Equal(t, config.DefaultJobID, job.ID)

	require.NoError(t, h.c.OnDeliveryComplete(context.Background(), testAppID,
		delivery.Outcome{Result: delivery.ResultFailure}))
	rec := h.get(t)
	assert.False(t, rec.ForceUpdate)
	assert.False(t, rec.LastRequestSucceeded)
}

func TestCycle_ScheduleFailureCleansUp(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig())
	h.seed(t, nil)
	app := installedApp(testTarget)
	results := h.expectFetch(t)

	var artifact string
	h.scheduler.EXPECT().ScheduleOrReplace(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ schedule.Job) error {
			rec, err := h.repo.Get(ctx, testAppID)
			if assert.NoError(t, err) {
				artifact = rec.PendingRequestPath
			}
			return errors.New("job store unavailable")
		})

	_, _, err := h.c.OnActivation(context.Background(), app)
	require.NoError(t, err)
	changed := fetchedFrom(app)
	changed.Snapshot.Orientation = "landscape"
	results <- changed
	h.c.Wait()

	require.NotEmpty(t, artifact)
	_, err = os.Stat(artifact)
	assert.True(t, os.IsNotExist(err))

	rec := h.get(t)
	assert.Empty(t, rec.PendingRequestPath)
	assert.False(t, rec.UpdateScheduled)
	assert.False(t, rec.LastRequestSucceeded)
}

func TestCycle_IdentityPrompt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		action        dialog.Action
		wantScheduled bool
	}{
		{name: "positive", action: dialog.ActionPositive, wantScheduled: true},
		{name: "dismiss counts as approval", action: dialog.ActionDismiss, wantScheduled: true},
		{name: "negative declines", action: dialog.ActionNegative, wantScheduled: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t, testConfig())
			h.seed(t, nil)
			app := installedApp(testTarget)
			results := h.expectFetch(t)

			h.dialog.EXPECT().Present(gomock.Any(), testAppID, gomock.Any(), gomock.Any()).
				DoAndReturn(func(_ context.Context, _ string, p *approval.PromptDetails, onAnswer func(dialog.Action)) error {
					assert.True(t, p.NameChanging)
					assert.False(t, p.IconChanging)
					assert.Equal(t, "Bar", p.NewName)
					onAnswer(tt.action)
					return nil
				})
			if tt.wantScheduled {
				h.scheduler.EXPECT().ScheduleOrReplace(gomock.Any(), gomock.Any()).Return(nil)
			}

			_, _, err := h.c.OnActivation(context.Background(), app)
			require.NoError(t, err)
			renamed := fetchedFrom(app)
			renamed.Snapshot.Name = "Bar"
			results <- renamed
			h.c.Wait()

			rec := h.get(t)
			assert.Equal(t, tt.wantScheduled, rec.UpdateScheduled)
			assert.False(t, rec.LastRequestSucceeded)
			if tt.wantScheduled {
				assert.Equal(t, "Bar|F|1|NotAdaptive", rec.ApprovedIdentityHash)
				assert.NotEmpty(t, rec.PendingRequestPath)
			} else {
				assert.Empty(t, rec.ApprovedIdentityHash)
				assert.Empty(t, rec.PendingRequestPath)
			}
		})
	}
}

func TestCycle_ApprovalSurvivesRestart(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig())
	h.seed(t, nil)
	app := installedApp(testTarget)
	renamed := fetchedFrom(app)
	renamed.Snapshot.Name = "Bar"

	results := h.expectFetch(t)
	h.dialog.EXPECT().Present(gomock.Any(), testAppID, gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, _ *approval.PromptDetails, onAnswer func(dialog.Action)) error {
			onAnswer(dialog.ActionPositive)
			return nil
		})
	h.scheduler.EXPECT().ScheduleOrReplace(gomock.Any(), gomock.Any()).Return(nil).Times(2)

	_, _, err := h.c.OnActivation(context.Background(), app)
	require.NoError(t, err)
	results <- renamed
	h.c.Wait()
	first := h.get(t).PendingRequestPath

	// the process restarts before delivery completes
	h.c.Close()
	presenter := dialogmocks.NewMockPresenter(gomock.NewController(t))
	restarted := h.newCoordinator(t, presenter)
	h.clock.Advance(config.DefaultUpdateInterval)

	results = h.expectFetch(t)
	started, _, err := restarted.OnActivation(context.Background(), app)
	require.NoError(t, err)
	require.True(t, started)
	results <- renamed
	restarted.Wait()

	rec := h.get(t)
	assert.True(t, rec.UpdateScheduled)
	assert.NotEqual(t, first, rec.PendingRequestPath)
	_, err = os.Stat(first)
	assert.True(t, os.IsNotExist(err))
}

func TestCycle_SingleCycleInFlight(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig())
	h.seed(t, nil)
	app := installedApp(testTarget)
	results := h.expectFetch(t)

	answer := make(chan func(dialog.Action), 1)
	h.dialog.EXPECT().Present(gomock.Any(), testAppID, gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, _ *approval.PromptDetails, onAnswer func(dialog.Action)) error {
			answer <- onAnswer
			return nil
		})

	_, _, err := h.c.OnActivation(context.Background(), app)
	require.NoError(t, err)
	renamed := fetchedFrom(app)
	renamed.Snapshot.ShortName = "B"
	results <- renamed

	onAnswer := <-answer
	require.Eventually(t, func() bool {
		return h.c.State(testAppID) == StateAwaitingApproval
	}, time.Second, 5*time.Millisecond)

	started, reason, err := h.c.OnActivation(context.Background(), app)
	require.NoError(t, err)
	assert.False(t, started)
	assert.Equal(t, ReasonInProgress, reason)

	onAnswer(dialog.ActionNegative)
	h.c.Wait()
	assert.Equal(t, StateIdle, h.c.State(testAppID))
	assert.False(t, h.get(t).LastRequestSucceeded)
}

func TestCycle_ManualTrigger(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Update.ManualTrigger = true
	h := newHarness(t, cfg)
	h.seed(t, func(r *record.Record) { r.LastCheckTime = h.clock.Now() })
	app := installedApp(testTarget)
	results := h.expectFetch(t)
	h.scheduler.EXPECT().ScheduleOrReplace(gomock.Any(), gomock.Any()).Return(nil)

	started, reason, err := h.c.OnActivation(context.Background(), app)
	require.NoError(t, err)
	require.True(t, started)
	assert.Equal(t, ReasonManualTrigger, reason)

	results <- fetchedFrom(app)
	h.c.Wait()

	req, err := request.Load(h.get(t).PendingRequestPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"manually-triggered"}, req.Reasons)
}

func TestCycle_DisabledDialogDropsIdentityReasons(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	disabled := false
	cfg.IdentityDialogs.NameEnabled = &disabled
	h := newHarness(t, cfg)
	h.seed(t, nil)
	app := installedApp(testTarget)
	results := h.expectFetch(t)

	_, _, err := h.c.OnActivation(context.Background(), app)
	require.NoError(t, err)
	renamed := fetchedFrom(app)
	renamed.Snapshot.Name = "Bar"
	results <- renamed
	h.c.Wait()

	rec := h.get(t)
	assert.False(t, rec.UpdateScheduled)
	assert.Empty(t, rec.PendingRequestPath)
}

func TestForget(t *testing.T) {
	t.Parallel()

	q := dialog.NewQueue()
	h := newHarness(t, testConfig())
	c := h.newCoordinator(t, q)
	h.seed(t, nil)
	app := installedApp(testTarget)
	results := h.expectFetch(t)

	_, _, err := c.OnActivation(context.Background(), app)
	require.NoError(t, err)
	renamed := fetchedFrom(app)
	renamed.Snapshot.Name = "Bar"
	results <- renamed

	require.Eventually(t, func() bool {
		_, err := q.Get(testAppID)
		return err == nil
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, c.Forget(context.Background(), testAppID))
	assert.Equal(t, StateIdle, c.State(testAppID))
	assert.Empty(t, q.List())
	_, err = h.repo.Get(context.Background(), testAppID)
	require.ErrorIs(t, err, record.ErrNotFound)
}

func TestOnDeliveryComplete_UnknownApp(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig())
	err := h.c.OnDeliveryComplete(context.Background(), "https://unknown.example/",
		delivery.Outcome{Result: delivery.ResultSuccess})
	require.ErrorIs(t, err, record.ErrNotFound)
}

func TestOnActivation_AfterClose(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig())
	h.c.Close()
	_, _, err := h.c.OnActivation(context.Background(), installedApp(testTarget))
	require.ErrorIs(t, err, ErrClosed)
}

func TestCycle_ActivationWhileScheduledIsNoop(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig())
	h.seed(t, func(r *record.Record) { r.ForceUpdate = true })
	app := installedApp(testTarget)
	// a single fetch: later activations must not start another cycle
	results := h.expectFetch(t)
	h.scheduler.EXPECT().ScheduleOrReplace(gomock.Any(), gomock.Any()).Return(nil)

	started, _, err := h.c.OnActivation(context.Background(), app)
	require.NoError(t, err)
	require.True(t, started)
	changed := fetchedFrom(app)
	changed.Snapshot.DisplayMode = "fullscreen"
	results <- changed
	h.c.Wait()

	assert.Equal(t, StateScheduled, h.c.State(testAppID))
	pending := h.get(t).PendingRequestPath
	require.NotEmpty(t, pending)

	// the force flag is still set but the outstanding delivery holds the app
	for range 2 {
		started, reason, err := h.c.OnActivation(context.Background(), app)
		require.NoError(t, err)
		assert.False(t, started)
		assert.Equal(t, ReasonDeliveryPending, reason)
	}
	rec := h.get(t)
	assert.Equal(t, pending, rec.PendingRequestPath)
	assert.True(t, rec.ForceUpdate)
	_, err = os.Stat(pending)
	require.NoError(t, err)

	// a report for some other artifact changes nothing
	err = h.c.OnDeliveryComplete(context.Background(), testAppID,
		delivery.Outcome{Result: delivery.ResultSuccess, Path: pending + ".old"})
	require.ErrorIs(t, err, ErrNoPendingDelivery)
	rec = h.get(t)
	assert.True(t, rec.UpdateScheduled)
	assert.False(t, rec.LastRequestSucceeded)
	assert.Equal(t, StateScheduled, h.c.State(testAppID))

	require.NoError(t, h.c.OnDeliveryComplete(context.Background(), testAppID,
		delivery.Outcome{Result: delivery.ResultSuccess, Path: pending}))
	rec = h.get(t)
	assert.False(t, rec.UpdateScheduled)
	assert.False(t, rec.ForceUpdate)
	assert.True(t, rec.LastRequestSucceeded)
	assert.Equal(t, StateIdle, h.c.State(testAppID))

	// a duplicate report arrives after the delivery was settled
	err = h.c.OnDeliveryComplete(context.Background(), testAppID,
		delivery.Outcome{Result: delivery.ResultFailure})
	require.ErrorIs(t, err, ErrNoPendingDelivery)
	assert.True(t, h.get(t).LastRequestSucceeded)

	started, reason, err := h.c.OnActivation(context.Background(), app)
	require.NoError(t, err)
	assert.False(t, started)
	assert.Equal(t, ReasonCheckedRecently, reason)
}

func TestOnActivation_PendingDeliverySurvivesRestart(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig())
	h.seed(t, func(r *record.Record) {
		r.ForceUpdate = true
		r.UpdateScheduled = true
		r.PendingRequestPath = "/pending/request.json"
	})
	// no fetch expectation: the app is held by the delivery scheduled before the restart

	started, reason, err := h.c.OnActivation(context.Background(), installedApp("152"))
	require.NoError(t, err)
	assert.False(t, started)
	assert.Equal(t, ReasonDeliveryPending, reason)
	assert.Equal(t, StateScheduled, h.c.State(testAppID))

	require.NoError(t, h.c.OnDeliveryComplete(context.Background(), testAppID,
		delivery.Outcome{Result: delivery.ResultFailure}))
	assert.Equal(t, StateIdle, h.c.State(testAppID))
	assert.False(t, h.get(t).UpdateScheduled)
}

func TestForget_ReleasesScheduledApp(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig())
	h.seed(t, func(r *record.Record) { r.UpdateScheduled = true })

	_, reason, err := h.c.OnActivation(context.Background(), installedApp(testTarget))
	require.NoError(t, err)
	require.Equal(t, ReasonDeliveryPending, reason)

	require.NoError(t, h.c.Forget(context.Background(), testAppID))
	assert.Equal(t, StateIdle, h.c.State(testAppID))
}
