package app

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wallet-back/internal/api"
	"github.com/wallet-back/internal/coordinator"
	"github.com/wallet-back/internal/database"
	"github.com/wallet-back/internal/election"
	"github.com/wallet-back/internal/gate"
	"github.com/wallet-back/internal/statestore"
	"github.com/wallet-back/internal/store"
	"github.com/wallet-back/internal/stream"
	"github.com/wallet-back/internal/trigger"
	"github.com/wallet-back/pkg/config"
)

// App represents the main application
type App struct {
	cfg    *config.Config
	logger *logrus.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Core components
	durable  store.DurableStore
	mysqlDB  *database.MySQLClient
	states   *statestore.Store
	channel  stream.Channel
	consumer *stream.Consumer

	// Coordinator
	elect     *election.Election
	limiter   *gate.RateLimiter
	dailyGate *gate.DailyTriggerGate
	coord     *coordinator.Coordinator

	// Presentation
	hub       *api.Hub
	apiServer *api.Server
}

// New creates a new application instance
func New(cfg *config.Config, logger *logrus.Logger) *App {
	ctx, cancel := context.WithCancel(context.Background())

	return &App{
		cfg:    cfg,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Initialize initializes all application components
func (a *App) Initialize() error {
	if err := a.initializeStore(); err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}

	if err := a.initializeDatabase(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	a.states = statestore.New(a.logger)

	if err := a.initializeStream(); err != nil {
		return fmt.Errorf("failed to initialize stream: %w", err)
	}

	if err := a.initializeCoordinator(); err != nil {
		return fmt.Errorf("failed to initialize coordinator: %w", err)
	}

	if err := a.initializeAPIServer(); err != nil {
		return fmt.Errorf("failed to initialize API server: %w", err)
	}

	return nil
}

// initializeStore connects the durable key-value backend
func (a *App) initializeStore() error {
	switch a.cfg.Store.Backend {
	case "memory":
		a.durable = store.NewMemoryStore()
		a.logger.Info("Using in-memory durable store")
	default:
		redisStore, err := store.NewRedisStore(&a.cfg.Redis, a.cfg.Store.KeyPrefix, a.logger)
		if err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		a.durable = redisStore
	}
	return nil
}

// initializeDatabase connects MySQL for the trigger audit log. The audit
// log is optional; the coordinator runs without it.
func (a *App) initializeDatabase() error {
	if !a.cfg.MySQL.Enabled {
		a.logger.Info("Trigger audit log disabled")
		return nil
	}

	mysqlDB, err := database.NewMySQLClient(&a.cfg.MySQL, a.cfg.GetMySQLDSN(), a.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to MySQL: %w", err)
	}
	a.mysqlDB = mysqlDB
	return nil
}

// initializeStream builds the event channel and its consumer
func (a *App) initializeStream() error {
	switch a.cfg.Stream.Transport {
	case "nats":
		channel, err := stream.NewNATSChannel(&a.cfg.NATS, a.cfg.Stream.UserID, a.logger)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		a.channel = channel
	default:
		a.channel = stream.NewSSEChannel(&a.cfg.Stream, a.logger)
	}

	a.consumer = stream.NewConsumer(a.channel, a.states, stream.ConsumerOptions{
		HeartbeatTimeout: a.cfg.Stream.HeartbeatTimeout,
		ReconnectMin:     a.cfg.Stream.ReconnectMin,
		ReconnectMax:     a.cfg.Stream.ReconnectMax,
	}, a.logger)
	return nil
}

// initializeCoordinator wires the election, gates and trigger client
func (a *App) initializeCoordinator() error {
	a.elect = election.New(a.logger)
	a.limiter = gate.NewRateLimiter(a.durable, a.cfg.Sync.Cooldown, a.cfg.Stream.UserID, a.logger)
	a.dailyGate = gate.NewDailyTriggerGate(a.durable, a.cfg.Stream.UserID, a.logger)

	client := trigger.NewHTTPClient(&a.cfg.Backend, a.logger)

	a.hub = api.NewHub(a.states, a.logger)

	opts := coordinator.Options{
		Debounce: a.cfg.Sync.TriggerDebounce,
	}
	if a.mysqlDB != nil {
		opts.Auditor = a.mysqlDB
	}

	dock := trigger.MultiDock{trigger.NewLogDock(a.logger), a.hub}
	a.coord = coordinator.New(a.elect, a.limiter, a.dailyGate, client, dock, opts, a.logger)
	return nil
}

// initializeAPIServer builds the HTTP surface
func (a *App) initializeAPIServer() error {
	var history api.HistoryReader
	if a.mysqlDB != nil {
		history = a.mysqlDB
	}

	a.apiServer = api.NewServer(a.cfg, a.logger, a.states, a.coord, a.consumer, history, a.hub)
	return nil
}

// Start starts the application
func (a *App) Start() error {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.hub.Run(a.ctx)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.consumer.Run(a.ctx)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.apiServer.Start(); err != nil {
			if err != http.ErrServerClosed {
				a.logger.WithError(err).Error("API server error")
			}
		}
	}()

	if a.cfg.Sync.AutoEnabled {
		if !a.coord.Mount() {
			a.logger.Warn("Another instance already holds the controller role")
		}
		if a.cfg.Backend.AuthToken != "" {
			a.coord.OnAuthReady(a.ctx)
		} else {
			a.logger.Warn("No backend auth token configured, auto-sync will not fire")
		}
	}

	return nil
}

// Stop gracefully stops the application
func (a *App) Stop() error {
	a.logger.Info("Stopping application...")

	a.coord.Unmount()

	a.cancel()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		a.logger.Info("All goroutines stopped")
	case <-time.After(3 * time.Second):
		a.logger.Warn("Timeout waiting for goroutines to finish")
	}

	if a.apiServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := a.apiServer.Stop(ctx); err != nil {
			a.logger.WithError(err).Error("Error stopping API server")
		}
		cancel()
	}

	if err := a.closeConnections(); err != nil {
		a.logger.WithError(err).Error("Error closing connections")
	}

	a.logger.Info("Application stopped successfully")
	return nil
}

// closeConnections closes all external connections
func (a *App) closeConnections() error {
	var firstErr error

	if a.channel != nil {
		if err := a.channel.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.mysqlDB != nil {
		if err := a.mysqlDB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.durable != nil {
		if err := a.durable.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// GetContext returns the application context
func (a *App) GetContext() context.Context {
	return a.ctx
}

// GetConfig returns the application configuration
func (a *App) GetConfig() *config.Config {
	return a.cfg
}

// GetLogger returns the application logger
func (a *App) GetLogger() *logrus.Logger {
	return a.logger
}
