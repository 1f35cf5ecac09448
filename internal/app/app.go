package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pipewatch/internal/capability"
	"github.com/ternarybob/pipewatch/internal/common"
	"github.com/ternarybob/pipewatch/internal/handlers"
	"github.com/ternarybob/pipewatch/internal/registry"
	"github.com/ternarybob/pipewatch/internal/services/events"
	"github.com/ternarybob/pipewatch/internal/services/scheduler"
)

// mountTimeout bounds the initial status read of all kinds
const mountTimeout = 30 * time.Second

// App holds all application components and dependencies
type App struct {
	Config    *common.Config
	Logger    arbor.ILogger
	ctx       context.Context
	cancelCtx context.CancelFunc

	// Event-driven services
	EventService     *events.Service
	SchedulerService *scheduler.Service

	// Job monitors, one per enabled kind
	Registry *registry.Registry

	// HTTP handlers
	APIHandler  *handlers.APIHandler
	JobsHandler *handlers.JobsHandler
	WSHandler   *handlers.WebSocketHandler

	// RequestShutdown is called by the shutdown endpoint; nil disables it
	RequestShutdown func()
}

// NewRegistry builds the job registry with the configured capability gate.
// Notices and view changes go to eventService when it is not nil.
func NewRegistry(cfg *common.Config, logger arbor.ILogger, eventService *events.Service, opts ...registry.Option) (*registry.Registry, error) {
	gate, err := capability.FromConfig(cfg.Capabilities)
	if err != nil {
		return nil, fmt.Errorf("failed to load capabilities: %w", err)
	}

	if eventService != nil {
		opts = append(opts, registry.WithNotifier(events.NewNotifier(eventService, logger)))
	}

	reg, err := registry.New(cfg, gate, logger, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create job registry: %w", err)
	}

	if eventService != nil {
		reg.OnChange(events.ViewPublisher(eventService, logger))
	}
	return reg, nil
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}
	app.ctx, app.cancelCtx = context.WithCancel(context.Background())

	app.EventService = events.NewService(logger)
	if err := events.SubscribeLoggerToAllEvents(app.EventService, logger); err != nil {
		return nil, fmt.Errorf("failed to subscribe event logger: %w", err)
	}

	reg, err := NewRegistry(cfg, logger, app.EventService)
	if err != nil {
		return nil, err
	}
	app.Registry = reg

	app.SchedulerService = scheduler.NewService(app.EventService, logger)
	if err := app.SchedulerService.RegisterFromConfig(cfg, reg); err != nil {
		reg.Close()
		return nil, fmt.Errorf("failed to register schedules: %w", err)
	}

	if err := app.initHandlers(); err != nil {
		reg.Close()
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	logger.Info().
		Int("kinds", len(reg.Kinds())).
		Strs("enabled", cfg.KindNames()).
		Msg("Application initialized")

	return app, nil
}

// initHandlers initializes all HTTP handlers
func (a *App) initHandlers() error {
	a.WSHandler = handlers.NewWebSocketHandler(a.EventService, a.Registry, a.Logger, &a.Config.WebSocket)
	a.JobsHandler = handlers.NewJobsHandler(a.Registry, a.SchedulerService, a.Logger)
	a.APIHandler = handlers.NewAPIHandler(a.Logger, a.WSHandler.ServerInstanceID(), func() int {
		return len(a.Registry.Kinds())
	})
	return nil
}

// Start mounts every job monitor and begins the background services. A kind
// whose backend cannot be reached stays idle with a monitoring error; it
// does not stop the others.
func (a *App) Start() {
	a.WSHandler.Start(a.ctx)

	ctx, cancel := context.WithTimeout(a.ctx, mountTimeout)
	defer cancel()
	if err := a.Registry.MountAll(ctx); err != nil {
		a.Logger.Warn().Err(err).Msg("Some job monitors failed their initial status read")
	}

	a.SchedulerService.Start()
}

// Close closes all application resources
func (a *App) Close() error {
	if a.cancelCtx != nil {
		a.Logger.Info().Msg("Cancelling background goroutines")
		a.cancelCtx()
	}

	if a.SchedulerService != nil {
		a.SchedulerService.Stop()
	}

	if a.Registry != nil {
		a.Registry.Close()
		a.Logger.Info().Msg("Job monitors stopped")
	}

	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}

	return nil
}
