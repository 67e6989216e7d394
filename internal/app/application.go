package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"liveclass/internal/api"
	"liveclass/internal/cache"
	"liveclass/internal/config"
	"liveclass/internal/database"
	"liveclass/internal/hub"
	"liveclass/internal/router"
	"liveclass/internal/websocket"
	pkgdatabase "liveclass/pkg/database"
	"liveclass/pkg/interfaces"
)

// Application wires the reference server: storage, relay and REST backend
// behind one HTTP listener.
type Application struct {
	config     *config.Config
	dbManager  interfaces.DatabaseManager
	boardStore *cache.RedisBoardStore
	registry   *websocket.Registry
	router     *router.Router
	hub        *hub.Hub
	apiServer  *api.Server
	httpServer *http.Server
	logger     *zap.Logger

	mu       sync.Mutex
	listener net.Listener
}

// NewApplication initializes components in dependency order:
// database, board store, registry, router, hub, handlers.
func NewApplication(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	dbManager, err := openDatabase(cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	var (
		boards     interfaces.BoardStore = dbManager
		boardStore *cache.RedisBoardStore
	)
	if cfg.Relay.BoardStore == "redis" {
		boardStore, err = cache.NewRedisBoardStore(ctx, cache.Options{
			Addr:     cfg.Relay.RedisAddr,
			Password: cfg.Relay.RedisPassword,
			DB:       cfg.Relay.RedisDB,
		}, logger)
		if err != nil {
			_ = dbManager.Close()
			return nil, fmt.Errorf("failed to connect board store: %w", err)
		}
		boards = boardStore
	}

	registry := websocket.NewRegistry(logger)
	messageRouter := router.NewRouter(registry, dbManager, boards, router.Options{
		MaxActions:        cfg.Relay.MaxActions,
		ChatRatePerMinute: cfg.Relay.ChatRatePerMinute,
	}, logger)
	messageHub := hub.NewHub(registry, messageRouter, logger)

	wsHandler := websocket.NewHandler(messageHub, dbManager, websocket.Options{
		BufferSize:   cfg.WebSocket.BufferSize,
		WriteTimeout: cfg.WebSocket.WriteTimeout,
		PingInterval: cfg.WebSocket.PingInterval,
		ReadTimeout:  cfg.WebSocket.ReadTimeout,
	}, logger)
	apiServer := api.NewServer(dbManager, registry, wsHandler, api.Options{
		HistoryLimit: cfg.Relay.HistoryLimit,
	}, logger)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      apiServer,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		dbManager:  dbManager,
		boardStore: boardStore,
		registry:   registry,
		router:     messageRouter,
		hub:        messageHub,
		apiServer:  apiServer,
		httpServer: httpServer,
		logger:     logger.Named("app"),
	}, nil
}

// openDatabase opens and migrates the configured backend.
func openDatabase(cfg *config.DatabaseConfig, logger *zap.Logger) (interfaces.DatabaseManager, error) {
	switch cfg.Driver {
	case "postgres":
		pg, err := database.NewPostgresManager(cfg.DSN, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database manager: %w", err)
		}
		if err := pg.Migrate(); err != nil {
			_ = pg.Close()
			return nil, fmt.Errorf("failed to apply database migrations: %w", err)
		}
		return pg, nil
	default:
		dbConfig := pkgdatabase.DefaultConfig()
		dbConfig.DatabasePath = cfg.Path
		dbConfig.ConnMaxLifetime = cfg.Timeout
		dbConfig.ConnMaxIdleTime = cfg.Timeout / 3
		m, err := database.NewManager(dbConfig, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database manager: %w", err)
		}
		if err := m.Migrate(); err != nil {
			_ = m.Close()
			return nil, fmt.Errorf("failed to apply database migrations: %w", err)
		}
		return m, nil
	}
}

// Start runs the hub and begins serving. It returns once the listener is
// bound; serve errors after that are logged.
func (app *Application) Start(ctx context.Context) error {
	if err := app.hub.Start(ctx); err != nil {
		return fmt.Errorf("failed to start message hub: %w", err)
	}

	ln, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		_ = app.hub.Stop()
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}
	app.mu.Lock()
	app.listener = ln
	app.mu.Unlock()

	go func() {
		if err := app.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Error("http server stopped", zap.Error(err))
		}
	}()

	app.logger.Info("liveclass server started", zap.String("addr", ln.Addr().String()))
	return nil
}

// Stop shuts down in reverse dependency order: HTTP, hub, stores.
func (app *Application) Stop(ctx context.Context) error {
	var errs []error

	if err := app.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := app.hub.Stop(); err != nil && !errors.Is(err, hub.ErrHubNotRunning) {
		errs = append(errs, fmt.Errorf("hub shutdown: %w", err))
	}
	if app.boardStore != nil {
		if err := app.boardStore.Close(); err != nil {
			errs = append(errs, fmt.Errorf("board store shutdown: %w", err))
		}
	}
	if err := app.dbManager.Close(); err != nil {
		errs = append(errs, fmt.Errorf("database shutdown: %w", err))
	}

	app.logger.Info("liveclass server stopped")
	return errors.Join(errs...)
}

// GetAddr is the bound address once started, the configured one before.
func (app *Application) GetAddr() string {
	app.mu.Lock()
	defer app.mu.Unlock()
	if app.listener != nil {
		return app.listener.Addr().String()
	}
	return app.httpServer.Addr
}

// Handler exposes the routes for in-process tests.
func (app *Application) Handler() http.Handler {
	return app.apiServer
}
