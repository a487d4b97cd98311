package app

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/yungbote/coursegen/internal/data/db"
	"github.com/yungbote/coursegen/internal/data/repos"
	httpx "github.com/yungbote/coursegen/internal/http"
	"github.com/yungbote/coursegen/internal/observability"
	"github.com/yungbote/coursegen/internal/platform/logger"
	"github.com/yungbote/coursegen/internal/realtime"
)

type App struct {
	Log      *logger.Logger
	Cfg      Config
	DB       *gorm.DB
	Repos    repos.Set
	Clients  Clients
	Services Services
	Metrics  *observability.Metrics
	Hub      *realtime.SSEHub
	Router   *gin.Engine

	shutdownTracing func(context.Context) error
}

// Store is the persistence-only slice of the app used by migrate.
type Store struct {
	Log *logger.Logger
	DB  *gorm.DB
}

func OpenStore(cfg Config) (*Store, error) {
	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	gdb, err := db.Open(cfg.DBConfig(), log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("open db: %w", err)
	}
	return &Store{Log: log, DB: gdb}, nil
}

func (s *Store) Migrate() error {
	s.Log.Info("Running auto-migrations...")
	if err := db.AutoMigrateAll(s.DB); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	return nil
}

func (s *Store) Close() {
	if s == nil {
		return
	}
	if sqlDB, err := s.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
	s.Log.Sync()
}

// New wires every component. Nothing runs until Serve or RunWorkers.
func New(ctx context.Context, cfg Config, version string) (*App, error) {
	store, err := OpenStore(cfg)
	if err != nil {
		return nil, err
	}
	log := store.Log
	if err := store.Migrate(); err != nil {
		store.Close()
		return nil, err
	}

	a := &App{
		Log:             log,
		Cfg:             cfg,
		DB:              store.DB,
		Metrics:         observability.Init(log, cfg.Observability.MetricsEnabled),
		Hub:             realtime.NewSSEHub(log),
		shutdownTracing: observability.InitTracing(ctx, log, cfg.TracingConfig(version)),
	}
	a.Repos = repos.NewSet(a.DB, log)

	clients, err := wireClients(log, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Clients = clients

	svcs, err := wireServices(a.DB, log, cfg, a.Repos, clients, a.Metrics)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Services = svcs

	a.Router = wireRouter(log, cfg, wireHandlers(log, a), clients.Redis, a.Metrics)
	return a, nil
}

// Serve runs the API until ctx is done. Bus messages published by any
// process reach the SSE clients connected here.
func (a *App) Serve(ctx context.Context) error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app not initialized")
	}
	if err := a.Clients.Bus.StartForwarder(ctx, a.Hub.Broadcast); err != nil {
		return fmt.Errorf("start realtime forwarder: %w", err)
	}
	a.Metrics.StartServer(ctx, a.Log, a.Cfg.Observability.MetricsAddr)

	a.Log.Info("HTTP server listening", "addr", a.Cfg.HTTP.Addr)
	srv := httpx.NewServer(a.Router, a.Cfg.HTTP.Addr, a.Cfg.HTTP.ReadTimeout, a.Cfg.HTTP.WriteTimeout)
	return srv.Run(ctx)
}

// RunWorkers executes jobs until ctx is done, with the runner selected by
// runner.mode.
func (a *App) RunWorkers(ctx context.Context) error {
	if a == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.Cfg.Redis.Addr == "" {
		a.Log.Warn("worker without redis.addr: realtime events only reach clients of this process")
	}
	a.Metrics.StartJobQueueCollector(ctx, a.Log, a.DB, 15*time.Second)

	if a.Services.TemporalWorker != nil {
		if err := a.Services.TemporalWorker.Start(ctx); err != nil {
			return fmt.Errorf("start temporal worker: %w", err)
		}
		<-ctx.Done()
		return nil
	}
	if a.Services.Worker == nil {
		return fmt.Errorf("no job runner configured")
	}
	a.Services.Worker.Run(ctx)
	return nil
}

func (a *App) Close() {
	if a == nil {
		return
	}
	a.Clients.close(a.Log)
	if a.shutdownTracing != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.shutdownTracing(shutdownCtx); err != nil {
			a.Log.Warn("tracing shutdown failed", "error", err)
		}
		cancel()
	}
	(&Store{Log: a.Log, DB: a.DB}).Close()
}
