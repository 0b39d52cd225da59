package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/kode4food/timebox"
)

type (
	// Config holds configuration settings for the workflow engine
	Config struct {
		// API Server
		APIHost  string
		APIPort  int
		LogLevel string

		// Stores & Archiving
		EngineStore      timebox.StoreConfig
		ExecutionStore   timebox.StoreConfig
		WorkflowRedis    RedisConfig
		ArchiveBucketURL string
		ArchivePrefix    string

		// Simulation
		SimSeed       int64
		SimMinLatency time.Duration
		SimMaxLatency time.Duration
		SimFailRate   float64

		// Engine
		StepTimeout        time.Duration
		ExecutionCacheSize int
		ShutdownTimeout    time.Duration
	}

	// RedisConfig identifies the Redis instance holding workflow definitions
	RedisConfig struct {
		Addr     string
		Password string
		DB       int
		Prefix   string
	}
)

const (
	DefaultStepTimeout     = 30 * time.Second
	DefaultShutdownTimeout = 10 * time.Second

	DefaultAPIPort = 8080
	DefaultAPIHost = "0.0.0.0"
	MaxTCPPort     = 65535
	DefaultRedisDB = 0

	DefaultRedisEndpoint       = "localhost:6379"
	DefaultRedisPrefix         = "loom"
	DefaultSnapshotWorkers     = 4
	DefaultSnapshotQueueSize   = 1000
	DefaultSnapshotSaveTimeout = 30 * time.Second
	DefaultCacheSize           = 4096

	DefaultSimMinLatency = 10 * time.Millisecond
	DefaultSimMaxLatency = 250 * time.Millisecond

	MaxExecutionCacheSize = 1_000_000
	MaxStepTimeoutSeconds = 24 * 60 * 60
)

var (
	ErrInvalidAPIPort     = errors.New("invalid API port")
	ErrInvalidStepTimeout = errors.New("step timeout must be positive")
	ErrInvalidSimFailRate = errors.New("sim fail rate must be within [0, 1]")
	ErrInvalidSimLatency  = errors.New(
		"sim max latency must be >= min latency",
	)
)

// NewDefaultConfig creates a configuration with sensible defaults for the
// engine, its stores, and the simulator
func NewDefaultConfig() *Config {
	return &Config{
		APIPort: DefaultAPIPort,
		APIHost: DefaultAPIHost,
		EngineStore: timebox.StoreConfig{
			Addr:         DefaultRedisEndpoint,
			Password:     "",
			DB:           DefaultRedisDB,
			Prefix:       DefaultRedisPrefix,
			WorkerCount:  DefaultSnapshotWorkers,
			MaxQueueSize: DefaultSnapshotQueueSize,
			SaveTimeout:  DefaultSnapshotSaveTimeout,
			TrimEvents:   true,
		},
		ExecutionStore: timebox.StoreConfig{
			Addr:         DefaultRedisEndpoint,
			Password:     "",
			DB:           DefaultRedisDB,
			Prefix:       DefaultRedisPrefix,
			WorkerCount:  DefaultSnapshotWorkers,
			MaxQueueSize: DefaultSnapshotQueueSize,
			SaveTimeout:  DefaultSnapshotSaveTimeout,
		},
		WorkflowRedis: RedisConfig{
			Addr:   DefaultRedisEndpoint,
			DB:     DefaultRedisDB,
			Prefix: DefaultRedisPrefix,
		},
		ArchivePrefix:      "executions",
		SimMinLatency:      DefaultSimMinLatency,
		SimMaxLatency:      DefaultSimMaxLatency,
		StepTimeout:        DefaultStepTimeout,
		ExecutionCacheSize: DefaultCacheSize,
		ShutdownTimeout:    DefaultShutdownTimeout,
		LogLevel:           "info",
	}
}

// LoadFromEnv populates configuration values from environment variables.
// Returns an error if any env var cannot be parsed.
func (c *Config) LoadFromEnv() error {
	LoadStoreConfigFromEnv(&c.EngineStore, "ENGINE")
	LoadStoreConfigFromEnv(&c.ExecutionStore, "EXECUTION")

	if addr := os.Getenv("WORKFLOW_REDIS_ADDR"); addr != "" {
		c.WorkflowRedis.Addr = addr
	}
	if password := os.Getenv("WORKFLOW_REDIS_PASSWORD"); password != "" {
		c.WorkflowRedis.Password = password
	}
	if prefix := os.Getenv("WORKFLOW_REDIS_PREFIX"); prefix != "" {
		c.WorkflowRedis.Prefix = prefix
	}
	if err := loadEnvInt(
		"WORKFLOW_REDIS_DB", &c.WorkflowRedis.DB, -1, 15,
	); err != nil {
		return err
	}

	if apiHost := os.Getenv("API_HOST"); apiHost != "" {
		c.APIHost = apiHost
	}
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.LogLevel = logLevel
	}
	if bucketURL := os.Getenv("ARCHIVE_BUCKET_URL"); bucketURL != "" {
		c.ArchiveBucketURL = bucketURL
	}
	if prefix := os.Getenv("ARCHIVE_PREFIX"); prefix != "" {
		c.ArchivePrefix = prefix
	}

	if err := loadEnvInt("API_PORT", &c.APIPort, 0, MaxTCPPort); err != nil {
		return err
	}

	if err := loadEnvInt(
		"EXECUTION_CACHE_SIZE", &c.ExecutionCacheSize, 0,
		MaxExecutionCacheSize,
	); err != nil {
		return err
	}

	var stepTimeoutSecs int64
	if err := loadEnvInt(
		"STEP_TIMEOUT", &stepTimeoutSecs, 0, MaxStepTimeoutSeconds,
	); err != nil {
		return err
	}
	if stepTimeoutSecs > 0 {
		c.StepTimeout = time.Duration(stepTimeoutSecs) * time.Second
	}

	if err := loadEnvInt("SIM_SEED", &c.SimSeed, 0, 1<<62); err != nil {
		return err
	}
	if rate := os.Getenv("SIM_FAIL_RATE"); rate != "" {
		f, err := strconv.ParseFloat(rate, 64)
		if err != nil {
			return fmt.Errorf("invalid SIM_FAIL_RATE: %q", rate)
		}
		c.SimFailRate = f
	}

	return nil
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if c.APIPort <= 0 || c.APIPort > MaxTCPPort {
		return fmt.Errorf("%w: %d", ErrInvalidAPIPort, c.APIPort)
	}

	if c.StepTimeout <= 0 {
		return ErrInvalidStepTimeout
	}

	if c.SimFailRate < 0 || c.SimFailRate > 1 {
		return fmt.Errorf("%w: %f", ErrInvalidSimFailRate, c.SimFailRate)
	}

	if c.SimMaxLatency < c.SimMinLatency {
		return ErrInvalidSimLatency
	}

	return nil
}

// LoadStoreConfigFromEnv loads Redis store configuration from environment
// variables with the given prefix (e.g., "ENGINE" or "EXECUTION")
func LoadStoreConfigFromEnv(s *timebox.StoreConfig, prefix string) {
	if addr := os.Getenv(prefix + "_REDIS_ADDR"); addr != "" {
		s.Addr = addr
	}
	if password := os.Getenv(prefix + "_REDIS_PASSWORD"); password != "" {
		s.Password = password
	}
	if dbStr := os.Getenv(prefix + "_REDIS_DB"); dbStr != "" {
		db, err := strconv.Atoi(dbStr)
		if err == nil {
			s.DB = db
		}
	}
	if envPrefix := os.Getenv(prefix + "_REDIS_PREFIX"); envPrefix != "" {
		s.Prefix = envPrefix
	}
	if envCount := os.Getenv(prefix + "_SNAPSHOT_WORKERS"); envCount != "" {
		if wc, err := strconv.Atoi(envCount); err == nil && wc >= 0 {
			s.WorkerCount = wc
		}
	}
}

// loadEnvInt reads key from the environment, parses it as an integer, and
// sets *dst if the value is in the range (min, max). Returns an error if
// the value cannot be parsed or falls outside the valid range.
func loadEnvInt[T ~int | ~int64](key string, dst *T, min, max T) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %q", key, s)
	}
	tv := T(v)
	if tv <= min || tv > max {
		return fmt.Errorf("invalid %s: %d out of range [%d, %d]",
			key, tv, min+1, max)
	}
	*dst = tv
	return nil
}
