package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/loomworks/loom/internal/config"
)

func TestNewDefaultConfig(t *testing.T) {
	as := assert.New(t)

	cfg := config.NewDefaultConfig()
	as.Equal(config.DefaultAPIPort, cfg.APIPort)
	as.Equal(config.DefaultAPIHost, cfg.APIHost)
	as.Equal(config.DefaultRedisEndpoint, cfg.EngineStore.Addr)
	as.Equal(config.DefaultRedisPrefix, cfg.WorkflowRedis.Prefix)
	as.Equal(config.DefaultStepTimeout, cfg.StepTimeout)
	as.Equal("info", cfg.LogLevel)
	as.True(cfg.EngineStore.TrimEvents)
	as.NoError(cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	as := assert.New(t)

	t.Setenv("ENGINE_REDIS_ADDR", "redis-engine:6379")
	t.Setenv("EXECUTION_REDIS_ADDR", "redis-exec:6379")
	t.Setenv("WORKFLOW_REDIS_ADDR", "redis-wf:6379")
	t.Setenv("WORKFLOW_REDIS_PREFIX", "staging")
	t.Setenv("API_HOST", "127.0.0.1")
	t.Setenv("API_PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("STEP_TIMEOUT", "60")
	t.Setenv("ARCHIVE_BUCKET_URL", "mem://")
	t.Setenv("SIM_FAIL_RATE", "0.25")

	cfg := config.NewDefaultConfig()
	as.NoError(cfg.LoadFromEnv())

	as.Equal("redis-engine:6379", cfg.EngineStore.Addr)
	as.Equal("redis-exec:6379", cfg.ExecutionStore.Addr)
	as.Equal("redis-wf:6379", cfg.WorkflowRedis.Addr)
	as.Equal("staging", cfg.WorkflowRedis.Prefix)
	as.Equal("127.0.0.1", cfg.APIHost)
	as.Equal(9090, cfg.APIPort)
	as.Equal("debug", cfg.LogLevel)
	as.Equal(60*time.Second, cfg.StepTimeout)
	as.Equal("mem://", cfg.ArchiveBucketURL)
	as.Equal(0.25, cfg.SimFailRate)
	as.NoError(cfg.Validate())
}

func TestLoadFromEnvInvalidPort(t *testing.T) {
	as := assert.New(t)

	t.Setenv("API_PORT", "not-a-port")
	cfg := config.NewDefaultConfig()
	as.Error(cfg.LoadFromEnv())

	t.Setenv("API_PORT", "70000")
	cfg = config.NewDefaultConfig()
	as.Error(cfg.LoadFromEnv())
}

func TestLoadFromEnvInvalidFailRate(t *testing.T) {
	as := assert.New(t)

	t.Setenv("SIM_FAIL_RATE", "often")
	cfg := config.NewDefaultConfig()
	as.Error(cfg.LoadFromEnv())
}

func TestValidate(t *testing.T) {
	as := assert.New(t)

	cfg := config.NewDefaultConfig()
	cfg.APIPort = 0
	as.ErrorIs(cfg.Validate(), config.ErrInvalidAPIPort)

	cfg = config.NewDefaultConfig()
	cfg.StepTimeout = 0
	as.ErrorIs(cfg.Validate(), config.ErrInvalidStepTimeout)

	cfg = config.NewDefaultConfig()
	cfg.SimFailRate = 1.5
	as.ErrorIs(cfg.Validate(), config.ErrInvalidSimFailRate)

	cfg = config.NewDefaultConfig()
	cfg.SimMinLatency = time.Second
	cfg.SimMaxLatency = time.Millisecond
	as.ErrorIs(cfg.Validate(), config.ErrInvalidSimLatency)
}
