package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/kode4food/timebox"

	app "github.com/loomworks/loom"
	"github.com/loomworks/loom/internal/archive"
	"github.com/loomworks/loom/internal/config"
	"github.com/loomworks/loom/internal/engine"
	"github.com/loomworks/loom/internal/executor"
	"github.com/loomworks/loom/internal/schema"
	"github.com/loomworks/loom/internal/server"
	"github.com/loomworks/loom/internal/store"
	"github.com/loomworks/loom/pkg/log"
)

type loom struct {
	cfg            *config.Config
	timebox        *timebox.Timebox
	engineStore    *timebox.Store
	executionStore *timebox.Store
	workflows      *store.Store
	schemas        *schema.Registry
	engine         *engine.Engine
	archiver       *archive.BlobArchiver
	apiServer      *server.Server
	httpServer     *http.Server
	quit           chan os.Signal
}

var (
	ErrCreateTimebox        = errors.New("failed to create timebox")
	ErrCreateEngineStore    = errors.New("failed to create engine store")
	ErrCreateExecutionStore = errors.New("failed to create execution store")
	ErrCreateArchiver       = errors.New("failed to create archiver")
)

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

func main() {
	cfg := config.NewDefaultConfig()
	if err := cfg.LoadFromEnv(); err != nil {
		slog.Error("Invalid configuration", log.Error(err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", log.Error(err))
		os.Exit(1)
	}

	s := &loom{
		cfg:  cfg,
		quit: make(chan os.Signal, 1),
	}
	s.setupLogging()

	if err := s.run(); err != nil {
		slog.Error("Failed to start application", log.Error(err))
		os.Exit(1)
	}
}

func (s *loom) run() error {
	if err := s.initializeStores(); err != nil {
		return err
	}

	if err := s.initializeEngine(); err != nil {
		return err
	}
	s.startServer()

	signal.Notify(s.quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(s.quit)
	<-s.quit

	s.shutdown()
	return nil
}

func (s *loom) setupLogging() {
	level, ok := logLevels[s.cfg.LogLevel]
	if !ok {
		level = slog.LevelInfo
	}

	env := os.Getenv("ENV")
	logger := log.NewWithLevel(app.Name, env, app.Version, level)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level)

	slog.Info("Loom starting",
		slog.String("log_level", s.cfg.LogLevel))

	slog.Info("Configuration loaded",
		slog.String("engine_redis_addr", s.cfg.EngineStore.Addr),
		slog.Int("engine_redis_db", s.cfg.EngineStore.DB),
		slog.String("execution_redis_addr", s.cfg.ExecutionStore.Addr),
		slog.Int("execution_redis_db", s.cfg.ExecutionStore.DB),
		slog.String("workflow_redis_addr", s.cfg.WorkflowRedis.Addr),
		slog.String("api_host", s.cfg.APIHost),
		slog.Int("api_port", s.cfg.APIPort))
}

func (s *loom) initializeStores() error {
	var err error

	s.timebox, err = timebox.NewTimebox(timebox.Config{
		MaxRetries: timebox.DefaultMaxRetries,
		CacheSize:  s.cfg.ExecutionCacheSize,
		Workers:    true,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCreateTimebox, err)
	}

	s.engineStore, err = s.timebox.NewStore(s.cfg.EngineStore)
	if err != nil {
		_ = s.timebox.Close()
		return fmt.Errorf("%w: %w", ErrCreateEngineStore, err)
	}

	s.executionStore, err = s.timebox.NewStore(s.cfg.ExecutionStore)
	if err != nil {
		_ = s.timebox.Close()
		return fmt.Errorf("%w: %w", ErrCreateExecutionStore, err)
	}

	s.workflows = store.NewStore(s.cfg.WorkflowRedis)
	return nil
}

func (s *loom) initializeEngine() error {
	s.schemas = schema.NewRegistry()

	sim := executor.NewSimulated(executor.SimulatedConfig{
		Seed:       s.cfg.SimSeed,
		MinLatency: s.cfg.SimMinLatency,
		MaxLatency: s.cfg.SimMaxLatency,
		FailRate:   s.cfg.SimFailRate,
	})
	steps := executor.NewDefaultRegistry(sim)

	s.engine = engine.New(
		s.engineStore, s.executionStore, steps, s.schemas,
		s.timebox.GetHub(), s.cfg,
	)

	if s.cfg.ArchiveBucketURL != "" {
		ctx := context.Background()
		arch, err := archive.NewBlobArchiver(
			ctx, s.cfg.ArchiveBucketURL, s.cfg.ArchivePrefix,
		)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrCreateArchiver, err)
		}
		s.archiver = arch
		s.engine.WithArchiver(arch)
	}

	s.engine.Start()
	return nil
}

func (s *loom) startServer() {
	s.apiServer = server.NewServer(
		s.engine, s.workflows, s.schemas, s.timebox.GetHub(),
	)
	mux := s.apiServer.SetupRoutes()

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.cfg.APIHost, s.cfg.APIPort),
		Handler: mux,
	}

	go func() {
		slog.Info("HTTP server starting",
			slog.String("addr", s.httpServer.Addr))
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", log.Error(err))
		}
	}()
}

func (s *loom) shutdown() {
	slog.Info("Shutting down")

	ctx, cancel := context.WithTimeout(
		context.Background(), s.cfg.ShutdownTimeout,
	)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		slog.Error("Shutdown failed", log.Error(err))
	}

	s.apiServer.CloseWebSockets()

	if err := s.engine.Stop(); err != nil {
		slog.Error("Engine shutdown failed", log.Error(err))
	}

	if s.archiver != nil {
		_ = s.archiver.Close()
	}
	_ = s.workflows.Close()
	_ = s.timebox.Close()

	slog.Info("Server exited")
}
