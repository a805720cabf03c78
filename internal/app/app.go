package app

import (
	"context"
	"fmt"
	"sync"

	"gorm.io/gorm"

	"github.com/yungbote/careline-backend/internal/data/repos"
	httpserver "github.com/yungbote/careline-backend/internal/http"
	"github.com/yungbote/careline-backend/internal/observability"
	"github.com/yungbote/careline-backend/internal/platform/envutil"
	"github.com/yungbote/careline-backend/internal/platform/logger"
	"github.com/yungbote/careline-backend/internal/platform/shutdown"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      Config
	Repos    repos.Repos
	Clients  Clients
	Services Services
	Server   *httpserver.Server

	closeDB      func() error
	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

func New() (*App, error) {
	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	cfg := LoadConfig(log)

	otelShutdown := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Env,
		Version:     envutil.String("APP_VERSION", ""),
	})

	theDB, closeDB, err := openDB(log, cfg)
	if err != nil {
		log.Sync()
		return nil, err
	}

	reposet := wireRepos(theDB, log)

	clients, err := wireClients(log)
	if err != nil {
		_ = closeDB()
		log.Sync()
		return nil, err
	}

	services, err := wireServices(theDB, log, cfg, reposet, clients)
	if err != nil {
		clients.Close()
		_ = closeDB()
		log.Sync()
		return nil, err
	}

	handlers := wireHandlers(log, theDB, services)
	mw := wireMiddleware(log, cfg)

	server := httpserver.NewServer(httpserver.RouterConfig{
		Log:               log,
		Metrics:           services.Metrics,
		ServiceName:       cfg.ServiceName,
		CORSOrigins:       cfg.CORSOrigins,
		AuthMiddleware:    mw.Auth,
		ChatHandler:       handlers.Chat,
		ConsentHandler:    handlers.Consent,
		EscalationHandler: handlers.Escalation,
		HealthHandler:     handlers.Health,
	})

	return &App{
		Log:          log,
		DB:           theDB,
		Cfg:          cfg,
		Repos:        reposet,
		Clients:      clients,
		Services:     services,
		Server:       server,
		closeDB:      closeDB,
		otelShutdown: otelShutdown,
	}, nil
}

// Start launches background workers. The HTTP server is started by Run.
func (a *App) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.Services.Monitor.Run(ctx)
	}()
}

// Run serves HTTP until ctx is cancelled or the listener fails.
func (a *App) Run(ctx context.Context) error {
	addr := ":" + a.Cfg.Port
	a.Log.Info("Server listening", "addr", addr)

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.Server.Run(addr)
	}()

	select {
	case <-ctx.Done():
		a.Log.Info("shutdown requested")
		return nil
	case err := <-errCh:
		return err
	}
}

func (a *App) Close() {
	if a == nil {
		return
	}
	shutdown.Drain(a.Log, a.Cfg.ShutdownTimeout,
		shutdown.Step{Name: "http", Fn: func(ctx context.Context) error {
			if a.Server == nil {
				return nil
			}
			return a.Server.Shutdown(ctx)
		}},
		shutdown.Step{Name: "escalation monitor", Fn: func(context.Context) error {
			if a.cancel != nil {
				a.cancel()
			}
			a.wg.Wait()
			return nil
		}},
		shutdown.Step{Name: "redis", Fn: func(context.Context) error {
			a.Clients.Close()
			return nil
		}},
		shutdown.Step{Name: "db", Fn: func(context.Context) error {
			if a.closeDB == nil {
				return nil
			}
			return a.closeDB()
		}},
		shutdown.Step{Name: "otel", Fn: a.otelShutdown},
	)
	if a.Log != nil {
		a.Log.Sync()
	}
}
