package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/maestro/internal/errors"
)

// DefaultCacheDirName is the per-project state directory created under the
// watched working directory.
const DefaultCacheDirName = ".maestro"

// Config holds all tunables for the orchestration engine.
// Every field has a working default; a config file only overrides.
type Config struct {
	// Sizing holds the size-class breakpoints and the base timeout table.
	Sizing SizingConfig `yaml:"sizing"`

	// Lock holds lock manager settings.
	Lock LockConfig `yaml:"lock"`

	// Cache holds fingerprinting thresholds.
	Cache CacheConfig `yaml:"cache"`

	// Conductor holds decision-layer settings.
	Conductor ConductorConfig `yaml:"conductor"`

	// Provider describes the external reasoning CLI.
	Provider ProviderConfig `yaml:"provider"`

	// Maintenance holds settings for post-response maintenance runs.
	Maintenance MaintenanceConfig `yaml:"maintenance"`
}

// SizingConfig defines how project size maps to time budgets.
type SizingConfig struct {
	// SmallMaxFiles is the exclusive upper bound of the "small" class.
	SmallMaxFiles int `yaml:"small_max_files"`

	// MediumMaxFiles is the exclusive upper bound of the "medium" class.
	MediumMaxFiles int `yaml:"medium_max_files"`

	// BaseTimeoutSmall/Medium/Large form the base timeout step function.
	BaseTimeoutSmall  time.Duration `yaml:"base_timeout_small"`
	BaseTimeoutMedium time.Duration `yaml:"base_timeout_medium"`
	BaseTimeoutLarge  time.Duration `yaml:"base_timeout_large"`

	// PerChangedFileBonus is added to the base timeout per changed file.
	PerChangedFileBonus time.Duration `yaml:"per_changed_file_bonus"`

	// ChangedFileBonusCap bounds the total change bonus.
	ChangedFileBonusCap time.Duration `yaml:"changed_file_bonus_cap"`
}

// LockConfig defines lock manager behavior.
type LockConfig struct {
	// StaleAfter is the age beyond which a marker is reclaimable
	// regardless of holder liveness.
	StaleAfter time.Duration `yaml:"stale_after"`

	// PollInterval is the delay between attempts in blocking mode.
	PollInterval time.Duration `yaml:"poll_interval"`

	// BlockTimeout bounds how long a blocking Acquire waits.
	BlockTimeout time.Duration `yaml:"block_timeout"`
}

// CacheConfig defines fingerprinting thresholds.
type CacheConfig struct {
	// HashMaxBytes is the largest file that gets a content hash.
	HashMaxBytes int64 `yaml:"hash_max_bytes"`

	// MtimeMaxBytes is the largest file fingerprinted by size and mtime.
	// Files above it are recorded but not measured.
	MtimeMaxBytes int64 `yaml:"mtime_max_bytes"`
}

// ConductorConfig defines decision-layer settings.
type ConductorConfig struct {
	// DecisionTimeout bounds the reasoning call itself.
	DecisionTimeout time.Duration `yaml:"decision_timeout"`

	// Model is the model hint passed to the provider for decisions.
	Model string `yaml:"model"`
}

// ProviderConfig describes the external reasoning CLI executable.
type ProviderConfig struct {
	// Path is the executable path or name resolved via PATH.
	Path string `yaml:"path"`

	// Args are fixed arguments placed before per-call flags.
	Args []string `yaml:"args"`

	// Model is the default model hint for agent calls.
	Model string `yaml:"model"`
}

// MaintenanceConfig defines the post-response maintenance run.
type MaintenanceConfig struct {
	// TaskTimeout is the generous per-task budget for background
	// maintenance agents.
	TaskTimeout time.Duration `yaml:"task_timeout"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Sizing: SizingConfig{
			SmallMaxFiles:       100,
			MediumMaxFiles:      500,
			BaseTimeoutSmall:    60 * time.Second,
			BaseTimeoutMedium:   120 * time.Second,
			BaseTimeoutLarge:    180 * time.Second,
			PerChangedFileBonus: 10 * time.Second,
			ChangedFileBonusCap: 120 * time.Second,
		},
		Lock: LockConfig{
			StaleAfter:   10 * time.Minute,
			PollInterval: 100 * time.Millisecond,
			BlockTimeout: 5 * time.Minute,
		},
		Cache: CacheConfig{
			HashMaxBytes:  1 << 20,  // 1 MiB
			MtimeMaxBytes: 64 << 20, // 64 MiB
		},
		Conductor: ConductorConfig{
			DecisionTimeout: 10 * time.Second,
			Model:           "haiku",
		},
		Provider: ProviderConfig{
			Path:  "claude",
			Args:  []string{"--dangerously-skip-permissions", "--print"},
			Model: "sonnet",
		},
		Maintenance: MaintenanceConfig{
			TaskTimeout: 10 * time.Minute,
		},
	}
}

// Load reads configuration from the conventional location under the cache
// root, falling back to defaults when no file exists.
func Load(cacheRoot string) (*Config, error) {
	return LoadFile(filepath.Join(cacheRoot, "config.yaml"))
}

// LoadFile reads configuration from an explicit path. A missing file yields
// the defaults; an unparseable file is an error so misconfiguration is loud.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, errors.Wrap(errors.ErrCodeFileReadFailed, fmt.Sprintf("failed to read config: %s", path), err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.NewFileUnmarshalError(path, "YAML", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks invariants the rest of the engine relies on.
func (c *Config) Validate() error {
	if c.Sizing.SmallMaxFiles <= 0 || c.Sizing.MediumMaxFiles <= c.Sizing.SmallMaxFiles {
		return errors.New(errors.ErrCodeFileUnmarshal,
			"config invalid: size-class breakpoints must satisfy 0 < small_max_files < medium_max_files")
	}
	if c.Sizing.BaseTimeoutSmall > c.Sizing.BaseTimeoutMedium ||
		c.Sizing.BaseTimeoutMedium > c.Sizing.BaseTimeoutLarge {
		return errors.New(errors.ErrCodeFileUnmarshal,
			"config invalid: base timeouts must be non-decreasing across size classes")
	}
	if c.Lock.StaleAfter <= 0 {
		return errors.New(errors.ErrCodeFileUnmarshal,
			"config invalid: lock.stale_after must be positive")
	}
	if c.Cache.HashMaxBytes <= 0 || c.Cache.MtimeMaxBytes < c.Cache.HashMaxBytes {
		return errors.New(errors.ErrCodeFileUnmarshal,
			"config invalid: cache thresholds must satisfy 0 < hash_max_bytes <= mtime_max_bytes")
	}
	if c.Conductor.DecisionTimeout <= 0 {
		return errors.New(errors.ErrCodeFileUnmarshal,
			"config invalid: conductor.decision_timeout must be positive")
	}
	return nil
}

// CacheRoot returns the state directory for a watched working directory.
func CacheRoot(workDir string) string {
	return filepath.Join(workDir, DefaultCacheDirName)
}
