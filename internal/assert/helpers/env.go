// Package helpers provides a self-contained engine environment for tests:
// an in-memory Redis backend, a scripted step executor, and waiters over
// the event hub.
package helpers

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/kode4food/timebox"
	"github.com/stretchr/testify/assert"

	"github.com/loomworks/loom/internal/config"
	"github.com/loomworks/loom/internal/engine"
	"github.com/loomworks/loom/internal/executor"
	"github.com/loomworks/loom/internal/schema"
	"github.com/loomworks/loom/internal/store"
)

// TestEngineEnv holds all the components needed for engine testing
type TestEngineEnv struct {
	Engine         *engine.Engine
	Redis          *miniredis.Miniredis
	Mock           *MockExecutor
	Schemas        *schema.Registry
	Workflows      *store.Store
	Config         *config.Config
	EventHub       timebox.EventHub
	Cleanup        func()
	engineStore    *timebox.Store
	executionStore *timebox.Store
}

// NewTestConfig creates a default configuration with debug logging enabled
func NewTestConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.LogLevel = "debug"
	cfg.StepTimeout = 5 * time.Second
	cfg.ShutdownTimeout = 2 * time.Second
	cfg.ExecutionCacheSize = 100
	return cfg
}

// NewTestEngine creates a fully configured test engine environment with an
// in-memory Redis backend and a scripted step executor
func NewTestEngine(t *testing.T) *TestEngineEnv {
	t.Helper()

	server, err := miniredis.Run()
	assert.NoError(t, err)

	tb, err := timebox.NewTimebox(timebox.Config{
		MaxRetries: timebox.DefaultMaxRetries,
		CacheSize:  100,
		Workers:    true,
	})
	assert.NoError(t, err)

	cfg := NewTestConfig()
	cfg.EngineStore.Addr = server.Addr()
	cfg.EngineStore.Prefix = "test-engine"
	cfg.ExecutionStore.Addr = server.Addr()
	cfg.ExecutionStore.Prefix = "test-execution"
	cfg.WorkflowRedis.Addr = server.Addr()
	cfg.WorkflowRedis.Prefix = "test-workflow"

	engineStore, err := tb.NewStore(cfg.EngineStore)
	assert.NoError(t, err)

	executionStore, err := tb.NewStore(cfg.ExecutionStore)
	assert.NoError(t, err)

	mock := NewMockExecutor()
	steps := executor.NewRegistry(mock)
	schemas := schema.NewRegistry()
	workflows := store.NewStore(cfg.WorkflowRedis)

	hub := tb.GetHub()
	eng := engine.New(engineStore, executionStore, steps, schemas, hub, cfg)

	cleanup := func() {
		_ = eng.Stop()
		_ = workflows.Close()
		_ = tb.Close()
		server.Close()
	}

	return &TestEngineEnv{
		Engine:         eng,
		Redis:          server,
		Mock:           mock,
		Schemas:        schemas,
		Workflows:      workflows,
		Config:         cfg,
		EventHub:       hub,
		Cleanup:        cleanup,
		engineStore:    engineStore,
		executionStore: executionStore,
	}
}

// NewEngineInstance creates a new engine instance sharing the same stores
// and mock executor. Used to simulate process restart after crash
func (e *TestEngineEnv) NewEngineInstance() *engine.Engine {
	return engine.New(
		e.engineStore, e.executionStore,
		executor.NewRegistry(e.Mock), e.Schemas, e.EventHub, e.Config,
	)
}

// WithTestEnv creates a test engine environment, executes the provided
// function with it, and ensures cleanup happens automatically
func WithTestEnv(t *testing.T, fn func(*TestEngineEnv)) {
	t.Helper()
	testEnv := NewTestEngine(t)
	defer testEnv.Cleanup()
	fn(testEnv)
}

// WithStartedEnv creates a test environment, starts its engine, executes
// the provided function, and ensures cleanup happens automatically
func WithStartedEnv(t *testing.T, fn func(*TestEngineEnv)) {
	t.Helper()
	WithTestEnv(t, func(env *TestEngineEnv) {
		env.Engine.Start()
		fn(env)
	})
}
