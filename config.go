package forgeq

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/genforge/forgeq/job"
	"github.com/genforge/forgeq/store"
)

// Config carries every tunable of the service.
//
// Configuration is a plain value passed explicitly to each component at
// construction; there is no process-level configuration state.
type Config struct {
	Redis   RedisConfig             `yaml:"redis"`
	HTTP    HTTPConfig              `yaml:"http"`
	Queue   QueueConfig             `yaml:"queue"`
	Workers WorkersConfig           `yaml:"workers"`
	Engine  EngineConfig            `yaml:"engine"`
	Tiers   map[job.Tier]job.Limits `yaml:"tiers"`
}

// RedisConfig is the file-facing subset of the store connection options.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// Options merges the file values into the default store options.
func (c RedisConfig) Options() store.Options {
	opts := store.DefaultOptions()
	if c.Addr != "" {
		opts.Addr = c.Addr
	}
	opts.Password = c.Password
	opts.DB = c.DB
	if c.PoolSize > 0 {
		opts.PoolSize = c.PoolSize
	}
	return opts
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr                   string  `yaml:"addr"`
	ReadTimeoutSeconds     float64 `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds    float64 `yaml:"write_timeout_seconds"`
	ShutdownTimeoutSeconds float64 `yaml:"shutdown_timeout_seconds"`
}

// QueueConfig bounds the queue and drives the recovery machinery.
type QueueConfig struct {
	// MaxConcurrentJobs caps the in-flight list; claims return nothing
	// while the cap is reached.
	MaxConcurrentJobs int `yaml:"max_concurrent_jobs"`

	// MaxQueueSize caps the pending index; admission rejects beyond it.
	MaxQueueSize int64 `yaml:"max_queue_size"`

	// JobTimeoutSeconds is the lease TTL. A job whose lease expires is
	// presumed abandoned and handled by the reaper.
	JobTimeoutSeconds float64 `yaml:"job_timeout_seconds"`

	// MaxAttempts bounds executions per job, counting the first. Set to 1
	// to disable retries entirely.
	MaxAttempts int `yaml:"max_attempts"`

	ReaperIntervalSeconds    float64 `yaml:"reaper_interval_seconds"`
	HousekeepIntervalSeconds float64 `yaml:"housekeep_interval_seconds"`

	// GhostAgeSeconds is the minimum age before a queued job record that
	// is missing from every active index is returned to the queue.
	GhostAgeSeconds float64 `yaml:"ghost_age_seconds"`

	// AvgJobSecondsSeed seeds the rolling processing-time mean before any
	// completion has been observed.
	AvgJobSecondsSeed float64 `yaml:"avg_job_seconds_seed"`

	// RingCap caps the completed and failed rings.
	RingCap int64 `yaml:"ring_cap"`

	// RetentionDays keeps terminal job records readable for status
	// queries before they expire from the store.
	RetentionDays int `yaml:"retention_days"`
}

// JobTimeout returns the lease TTL as a duration.
func (c QueueConfig) JobTimeout() time.Duration { return seconds(c.JobTimeoutSeconds) }

// ReaperInterval returns the sweep period as a duration.
func (c QueueConfig) ReaperInterval() time.Duration { return seconds(c.ReaperIntervalSeconds) }

// HousekeepInterval returns the ghost-sweep period as a duration.
func (c QueueConfig) HousekeepInterval() time.Duration { return seconds(c.HousekeepIntervalSeconds) }

// GhostAge returns the orphan age threshold as a duration.
func (c QueueConfig) GhostAge() time.Duration { return seconds(c.GhostAgeSeconds) }

// Retention returns the terminal record retention window as a duration.
func (c QueueConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// WorkersConfig configures the pull loops.
type WorkersConfig struct {
	// Count is the number of parallel worker loops in this process.
	Count int `yaml:"count"`

	// PollIntervalSeconds is the idle sleep between empty claims.
	PollIntervalSeconds float64 `yaml:"poll_interval_seconds"`

	// JitterFactor randomizes the idle sleep by +/- the given fraction so
	// workers do not poll in lockstep.
	JitterFactor float64 `yaml:"jitter_factor"`

	// DeadlineMarginSeconds is subtracted from the lease TTL to form the
	// soft generation deadline, leaving the worker room to report an
	// outcome before the reaper takes over.
	DeadlineMarginSeconds float64 `yaml:"deadline_margin_seconds"`
}

// PollInterval returns the idle sleep as a duration.
func (c WorkersConfig) PollInterval() time.Duration { return seconds(c.PollIntervalSeconds) }

// DeadlineMargin returns the soft-deadline margin as a duration.
func (c WorkersConfig) DeadlineMargin() time.Duration { return seconds(c.DeadlineMarginSeconds) }

// EngineConfig locates the external generation engine.
type EngineConfig struct {
	URL string `yaml:"url"`
}

// DefaultConfig returns the built-in configuration. Load applies a YAML
// file on top of it.
func DefaultConfig() Config {
	return Config{
		Redis: RedisConfig{Addr: "localhost:6379"},
		HTTP: HTTPConfig{
			Addr:                   ":8080",
			ReadTimeoutSeconds:     10,
			WriteTimeoutSeconds:    30,
			ShutdownTimeoutSeconds: 15,
		},
		Queue: QueueConfig{
			MaxConcurrentJobs:        3,
			MaxQueueSize:             1000,
			JobTimeoutSeconds:        3600,
			MaxAttempts:              3,
			ReaperIntervalSeconds:    30,
			HousekeepIntervalSeconds: 600,
			GhostAgeSeconds:          3600,
			AvgJobSecondsSeed:        600,
			RingCap:                  10000,
			RetentionDays:            7,
		},
		Workers: WorkersConfig{
			Count:                 3,
			PollIntervalSeconds:   5,
			JitterFactor:          0.2,
			DeadlineMarginSeconds: 60,
		},
		Tiers: job.DefaultLimits(),
	}
}

// Load reads a YAML configuration file over the defaults.
//
// Values absent from the file keep their defaults; an empty path returns
// the defaults unchanged. A tier named in the file replaces that tier's
// built-in limits as a whole: its fields absent from the file are zero,
// not the defaults. Tiers not named in the file keep their defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}
