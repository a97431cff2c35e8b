// Package config provides configuration loading and management for the update manager.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"github.com/stacklok/pwa-update-manager/internal/telemetry"
)

// EnvPrefix is the prefix of environment variables read by the command line
const EnvPrefix = "PWA_UPDATER"

const (
	// StorageTypeFile keeps one JSON document per app under the data directory
	StorageTypeFile = "file"

	// StorageTypeSQLite keeps all app records in a sqlite database
	StorageTypeSQLite = "sqlite"
)

// Defaults
const (
	DefaultDataDir            = "./data"
	DefaultUpdateInterval     = 24 * time.Hour
	DefaultRelaxedMultiplier  = 30
	DefaultFetchTimeout       = 30 * time.Second
	DefaultLateManifestWindow = 5 * time.Minute
	DefaultBoundPackagePrefix = "org.chromium.webapk"
	DefaultJobID              = "webapk-update"
	DefaultWindowStart        = time.Hour
	DefaultWindowEnd          = 23 * time.Hour
	DefaultSchedulerPoll      = time.Minute
	DefaultSerializerWorkers  = 4
	DefaultFetcherTimeout     = 10 * time.Second
	DefaultDeliveryTimeout    = 2 * time.Minute
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}
		if !filepath.IsAbs(realPath) && !filepath.IsLocal(realPath) {
			return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	// DataDir holds records, pending update artifacts and the scheduler job slot
	DataDir string `yaml:"dataDir,omitempty"`

	Storage         StorageConfig     `yaml:"storage,omitempty"`
	Update          UpdateConfig      `yaml:"update"`
	IdentityDialogs DialogConfig      `yaml:"identityDialogs,omitempty"`
	Scheduler       SchedulerConfig   `yaml:"scheduler,omitempty"`
	Serializer      SerializerConfig  `yaml:"serializer,omitempty"`
	Fetcher         FetcherConfig     `yaml:"fetcher,omitempty"`
	Delivery        DeliveryConfig    `yaml:"delivery,omitempty"`
	Telemetry       *telemetry.Config `yaml:"telemetry,omitempty"`
}

// StorageConfig selects the record store backend
type StorageConfig struct {
	// Type is "file" (default) or "sqlite"
	Type   string        `yaml:"type,omitempty"`
	SQLite *SQLiteConfig `yaml:"sqlite,omitempty"`
}

// SQLiteConfig configures the sqlite record store
type SQLiteConfig struct {
	// Path of the database file. Defaults to <dataDir>/records.db
	Path string `yaml:"path,omitempty"`
}

// UpdateConfig controls when apps are checked and what counts as stale
type UpdateConfig struct {
	// Interval between manifest checks, e.g. "24h"
	Interval string `yaml:"interval,omitempty"`

	// RelaxedMultiplier scales Interval for apps in relaxed mode
	RelaxedMultiplier int `yaml:"relaxedMultiplier,omitempty"`

	// FetchTimeout bounds how long a check waits for the manifest
	FetchTimeout string `yaml:"fetchTimeout,omitempty"`

	// LateManifestWindow is how long a timed-out fetch is kept open for a late manifest
	LateManifestWindow string `yaml:"lateManifestWindow,omitempty"`

	// TargetRuntimeVersion is the runtime version every installation should run
	TargetRuntimeVersion string `yaml:"targetRuntimeVersion"`

	// OldShellMaxAge marks installations older than this as stale. Empty disables it.
	OldShellMaxAge string `yaml:"oldShellMaxAge,omitempty"`

	// BoundPackagePrefix selects the packages managed by this service
	BoundPackagePrefix string `yaml:"boundPackagePrefix,omitempty"`

	// PlatformSupportsMaskable reports whether adaptive icons can be rendered
	PlatformSupportsMaskable *bool `yaml:"platformSupportsMaskable,omitempty"`

	// ManualTrigger checks every app on every activation and always requests an update
	ManualTrigger bool `yaml:"manualTrigger,omitempty"`
}

// DialogConfig is the identity update prompt policy
type DialogConfig struct {
	NameEnabled *bool `yaml:"nameEnabled,omitempty"`
	IconEnabled *bool `yaml:"iconEnabled,omitempty"`

	// PlatformVersion is the host platform version checked against SilentIconUpdatePlatforms
	PlatformVersion string `yaml:"platformVersion,omitempty"`

	// SilentIconUpdatePlatforms is a semver constraint of platforms allowed to change
	// icons without prompting
	SilentIconUpdatePlatforms string `yaml:"silentIconUpdatePlatforms,omitempty"`
}

// SchedulerConfig configures the background delivery job
type SchedulerConfig struct {
	JobID        string `yaml:"jobID,omitempty"`
	WindowStart  string `yaml:"windowStart,omitempty"`
	WindowEnd    string `yaml:"windowEnd,omitempty"`
	PollInterval string `yaml:"pollInterval,omitempty"`
}

// SerializerConfig configures pending request serialization
type SerializerConfig struct {
	// Workers bounds concurrent icon encodings
	Workers int `yaml:"workers,omitempty"`
}

// FetcherConfig configures the manifest snapshot service
type FetcherConfig struct {
	// Endpoint is the base URL of the manifest snapshot service
	Endpoint string `yaml:"endpoint,omitempty"`

	// Timeout bounds a single HTTP request
	Timeout string `yaml:"timeout,omitempty"`
}

// DeliveryConfig configures the packaging service collaborator
type DeliveryConfig struct {
	// Command is the argv run per pending request; the artifact path is appended
	Command []string `yaml:"command,omitempty"`
	Timeout string   `yaml:"timeout,omitempty"`
}

// LoadConfig loads and parses configuration from a YAML file
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}
	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func (c *Config) validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	var errs []error

	switch c.Storage.Type {
	case "", StorageTypeFile, StorageTypeSQLite:
	default:
		errs = append(errs, fmt.Errorf("storage.type must be '%s' or '%s', got '%s'",
			StorageTypeFile, StorageTypeSQLite, c.Storage.Type))
	}

	if c.Update.TargetRuntimeVersion == "" {
		errs = append(errs, fmt.Errorf("update.targetRuntimeVersion is required"))
	}
	if c.Update.RelaxedMultiplier < 0 {
		errs = append(errs, fmt.Errorf("update.relaxedMultiplier must not be negative"))
	}

	durations := map[string]string{
		"update.interval":           c.Update.Interval,
		"update.fetchTimeout":       c.Update.FetchTimeout,
		"update.lateManifestWindow": c.Update.LateManifestWindow,
		"update.oldShellMaxAge":     c.Update.OldShellMaxAge,
		"scheduler.windowStart":     c.Scheduler.WindowStart,
		"scheduler.windowEnd":       c.Scheduler.WindowEnd,
		"scheduler.pollInterval":    c.Scheduler.PollInterval,
		"fetcher.timeout":           c.Fetcher.Timeout,
		"delivery.timeout":          c.Delivery.Timeout,
	}
	for key, value := range durations {
		if value == "" {
			continue
		}
		if d, err := time.ParseDuration(value); err != nil {
			errs = append(errs, fmt.Errorf("%s must be a valid duration (e.g., '30m', '1h'): %w", key, err))
		} else if d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", key))
		}
	}

	if c.Scheduler.GetWindowEnd() < c.Scheduler.GetWindowStart() {
		errs = append(errs, fmt.Errorf("scheduler.windowEnd must not be before scheduler.windowStart"))
	}

	if c.IdentityDialogs.SilentIconUpdatePlatforms != "" {
		if _, err := semver.NewConstraint(c.IdentityDialogs.SilentIconUpdatePlatforms); err != nil {
			errs = append(errs, fmt.Errorf("identityDialogs.silentIconUpdatePlatforms is not a valid constraint: %w", err))
		}
	}

	if c.Serializer.Workers < 0 {
		errs = append(errs, fmt.Errorf("serializer.workers must not be negative"))
	}

	if err := c.Telemetry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("telemetry: %w", err))
	}

	return errors.Join(errs...)
}

// durationOr parses value, returning def when it is empty or invalid
func durationOr(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return d
}

// GetDataDir returns the data directory, using the default if not specified
func (c *Config) GetDataDir() string {
	if c.DataDir == "" {
		return DefaultDataDir
	}
	return c.DataDir
}

// GetStorageType returns the record store backend
func (c *Config) GetStorageType() string {
	if c.Storage.Type == "" {
		return StorageTypeFile
	}
	return c.Storage.Type
}

// GetSQLitePath returns the sqlite database path
func (c *Config) GetSQLitePath() string {
	if c.Storage.SQLite != nil && c.Storage.SQLite.Path != "" {
		return c.Storage.SQLite.Path
	}
	return filepath.Join(c.GetDataDir(), "records.db")
}

// GetRecordsDir returns the directory of the file record store
func (c *Config) GetRecordsDir() string {
	return filepath.Join(c.GetDataDir(), "records")
}

// GetPendingDir returns the directory holding pending update artifacts
func (c *Config) GetPendingDir() string {
	return filepath.Join(c.GetDataDir(), "pending")
}

// GetJobsDir returns the directory holding the scheduler job slot
func (c *Config) GetJobsDir() string {
	return filepath.Join(c.GetDataDir(), "jobs")
}

// GetInterval returns the nominal check interval
func (u *UpdateConfig) GetInterval() time.Duration {
	return durationOr(u.Interval, DefaultUpdateInterval)
}

// GetRelaxedMultiplier returns the relaxed interval multiplier
func (u *UpdateConfig) GetRelaxedMultiplier() int {
	if u.RelaxedMultiplier == 0 {
		return DefaultRelaxedMultiplier
	}
	return u.RelaxedMultiplier
}

// GetFetchTimeout returns the manifest fetch deadline
func (u *UpdateConfig) GetFetchTimeout() time.Duration {
	return durationOr(u.FetchTimeout, DefaultFetchTimeout)
}

// GetLateManifestWindow returns how long a timed-out fetch stays open
func (u *UpdateConfig) GetLateManifestWindow() time.Duration {
	return durationOr(u.LateManifestWindow, DefaultLateManifestWindow)
}

// GetOldShellMaxAge returns the installation age after which an app is stale, 0 if disabled
func (u *UpdateConfig) GetOldShellMaxAge() time.Duration {
	return durationOr(u.OldShellMaxAge, 0)
}

// GetBoundPackagePrefix returns the package prefix of managed apps
func (u *UpdateConfig) GetBoundPackagePrefix() string {
	if u.BoundPackagePrefix == "" {
		return DefaultBoundPackagePrefix
	}
	return u.BoundPackagePrefix
}

// GetPlatformSupportsMaskable returns whether adaptive icons are supported, true by default
func (u *UpdateConfig) GetPlatformSupportsMaskable() bool {
	return u.PlatformSupportsMaskable == nil || *u.PlatformSupportsMaskable
}

// GetNameEnabled returns whether name changes may be prompted, true by default
func (d *DialogConfig) GetNameEnabled() bool {
	return d.NameEnabled == nil || *d.NameEnabled
}

// GetIconEnabled returns whether icon changes may be prompted, true by default
func (d *DialogConfig) GetIconEnabled() bool {
	return d.IconEnabled == nil || *d.IconEnabled
}

// GetJobID returns the fixed identifier of the delivery job
func (s *SchedulerConfig) GetJobID() string {
	if s.JobID == "" {
		return DefaultJobID
	}
	return s.JobID
}

// GetWindowStart returns the earliest delay of an opportunistic delivery
func (s *SchedulerConfig) GetWindowStart() time.Duration {
	return durationOr(s.WindowStart, DefaultWindowStart)
}

// GetWindowEnd returns the latest delay of an opportunistic delivery
func (s *SchedulerConfig) GetWindowEnd() time.Duration {
	return durationOr(s.WindowEnd, DefaultWindowEnd)
}

// GetPollInterval returns how often the runner polls the job slot
func (s *SchedulerConfig) GetPollInterval() time.Duration {
	return durationOr(s.PollInterval, DefaultSchedulerPoll)
}

// GetWorkers returns the icon encoding pool size
func (s *SerializerConfig) GetWorkers() int {
	if s.Workers == 0 {
		return DefaultSerializerWorkers
	}
	return s.Workers
}

// GetTimeout returns the HTTP timeout of the manifest snapshot service
func (f *FetcherConfig) GetTimeout() time.Duration {
	return durationOr(f.Timeout, DefaultFetcherTimeout)
}

// GetTimeout returns the timeout of one delivery
func (d *DeliveryConfig) GetTimeout() time.Duration {
	return durationOr(d.Timeout, DefaultDeliveryTimeout)
}
