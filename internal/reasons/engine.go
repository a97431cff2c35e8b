package reasons

import (
	"time"

	"github.com/stacklok/pwa-update-manager/internal/versions"
	"github.com/stacklok/pwa-update-manager/internal/webapp"
)

// Engine diffs an installed app against a freshly fetched manifest.
// It holds no mutable state and is safe for concurrent use.
type Engine struct {
	targetRuntimeVersion     string
	platformSupportsMaskable bool
	oldShellMaxAge           time.Duration
	now                      func() time.Time
}

// Option configures an Engine
type Option func(*Engine)

// WithPlatformSupportsMaskable sets whether the platform can render maskable icons
func WithPlatformSupportsMaskable(supported bool) Option {
	return func(e *Engine) {
		e.platformSupportsMaskable = supported
	}
}

// WithOldShellMaxAge treats installations last updated longer ago than age as stale.
// Zero disables the age check.
func WithOldShellMaxAge(age time.Duration) Option {
	return func(e *Engine) {
		e.oldShellMaxAge = age
	}
}

// WithClock overrides the time source used for the age check
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates an engine that treats runtimes older than targetRuntimeVersion as stale
func NewEngine(targetRuntimeVersion string, opts ...Option) *Engine {
	e := &Engine{
		targetRuntimeVersion:     targetRuntimeVersion,
		platformSupportsMaskable: true,
		now:                      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// TargetRuntimeVersion returns the runtime version installations are expected to run
func (e *Engine) TargetRuntimeVersion() string {
	return e.targetRuntimeVersion
}

// IsRuntimeBehind reports whether the installed runtime is older than the target
func (e *Engine) IsRuntimeBehind(app *webapp.App) bool {
	return versions.IsNewerVersion(e.targetRuntimeVersion, app.Snapshot.RuntimeVersion)
}

// IsStale reports whether the installation needs republishing regardless of manifest changes
func (e *Engine) IsStale(app *webapp.App) bool {
	if e.IsRuntimeBehind(app) {
		return true
	}
	if e.oldShellMaxAge > 0 && !app.LastUpdateTime.IsZero() {
		return e.now().Sub(app.LastUpdateTime) > e.oldShellMaxAge
	}
	return false
}

// Reasons returns why app should be republished given the fetched manifest.
// A nil fetched means the manifest could not be obtained; only staleness counts then.
func (e *Engine) Reasons(app *webapp.App, fetched *webapp.Fetched) List {
	var out List
	if e.IsStale(app) {
		out = append(out, StaleRuntime)
	}
	if fetched == nil {
		return out
	}

	old := &app.Snapshot
	cur := &fetched.Snapshot

	if iconDiffers(old, cur, fetched.PrimaryIconURL) {
		out = append(out, PrimaryIconHashDiffers)
	}
	if iconDiffers(old, cur, fetched.SplashIconURL) {
		out = append(out, SplashIconHashDiffers)
	}
	if !webapp.SameURL(old.Scope, cur.Scope) {
		out = append(out, ScopeDiffers)
	}
	if !webapp.SameURL(old.StartURL, cur.StartURL) {
		out = append(out, StartURLDiffers)
	}
	if !app.HasCustomName {
		if old.ShortName != cur.ShortName {
			out = append(out, ShortNameDiffers)
		}
		if old.Name != cur.Name {
			out = append(out, NameDiffers)
		}
	}
	if old.BackgroundColor != cur.BackgroundColor {
		out = append(out, BackgroundColorDiffers)
	}
	if old.ThemeColor != cur.ThemeColor {
		out = append(out, ThemeColorDiffers)
	}
	if old.Orientation != cur.Orientation {
		out = append(out, OrientationDiffers)
	}
	if old.DisplayMode != cur.DisplayMode {
		out = append(out, DisplayModeDiffers)
	}
	if !old.ShareTarget.Equal(cur.ShareTarget) {
		out = append(out, ShareTargetDiffers)
	}
	if old.IsIconAdaptive != cur.IsIconAdaptive && (!cur.IsIconAdaptive || e.platformSupportsMaskable) {
		out = append(out, IconMaskableDiffers)
	}
	if shortcutsDiffer(old.Shortcuts, cur.Shortcuts) {
		out = append(out, ShortcutsDiffer)
	}
	return out
}

// iconDiffers compares the hash recorded for the selected icon URL in both snapshots.
// The lookup ignores fragments, so a fragment added by a redirect does not register as a
// change. A URL hashed in neither snapshot counts as unchanged.
func iconDiffers(old, cur *webapp.Snapshot, selectedURL string) bool {
	oldHash, inOld := old.IconHash(selectedURL)
	newHash, inNew := cur.IconHash(selectedURL)
	return inOld != inNew || oldHash != newHash
}

func shortcutsDiffer(old, cur []webapp.Shortcut) bool {
	if len(old) != len(cur) {
		return true
	}
	for i := range old {
		if old[i].Name != cur[i].Name ||
			old[i].ShortName != cur[i].ShortName ||
			!webapp.SameURL(old[i].LaunchURL, cur[i].LaunchURL) ||
			old[i].IconHash != cur[i].IconHash {
			return true
		}
	}
	return false
}
