// ============================================================================
// FILE: internal/app/container.go
// PURPOSE: Dependency injection container wiring the core services
// ============================================================================

package app

import (
	"context"
	"fmt"

	"github.com/xipebhui/autopublish/internal/adapters/upload"
	"github.com/xipebhui/autopublish/internal/application/common"
	"github.com/xipebhui/autopublish/internal/config"
	"github.com/xipebhui/autopublish/internal/executor"
	"github.com/xipebhui/autopublish/internal/handlers"
	"github.com/xipebhui/autopublish/internal/infrastructure/services"
	"github.com/xipebhui/autopublish/internal/middleware"
	"github.com/xipebhui/autopublish/internal/models"
	"github.com/xipebhui/autopublish/internal/pipeline"
	"github.com/xipebhui/autopublish/internal/publisher"
	"github.com/xipebhui/autopublish/internal/ring"
	"github.com/xipebhui/autopublish/internal/store"
	"github.com/xipebhui/autopublish/internal/strategy"
	"github.com/xipebhui/autopublish/internal/trigger"
)

// Options select which halves of the system a binary hosts.
type Options struct {
	// WithWorkers wires the executor, publish scheduler, trigger evaluator
	// and monitor pollers into the container.
	WithWorkers bool
	// Source feeds monitor pollers; nil gets a no-op source.
	Source trigger.Source
}

// Container holds all application dependencies
type Container struct {
	Config *config.Config
	Logger common.Logger
	Clock  common.Clock

	// ========================================================================
	// INFRASTRUCTURE LAYER
	// ========================================================================
	Store       *store.Store
	Cache       *services.RedisCacheService
	Transport   upload.Transport
	RateLimiter *middleware.RateLimiter

	// ========================================================================
	// CORE SERVICES
	// ========================================================================
	Registry  *pipeline.Registry
	Ring      *ring.Scheduler
	Resolver  *strategy.Resolver
	Engine    *executor.Engine
	Executor  *executor.Controller
	Publisher *publisher.Scheduler
	Evaluator *trigger.Evaluator
	Monitors  *trigger.MonitorRunner

	// ========================================================================
	// HANDLERS
	// ========================================================================
	PipelineHandler *handlers.PipelineHandler
	GroupHandler    *handlers.GroupHandler
	ConfigHandler   *handlers.ConfigHandler
	StrategyHandler *handlers.StrategyHandler
	MonitorHandler  *handlers.MonitorHandler
	TaskHandler     *handlers.TaskHandler
	PublishHandler  *handlers.PublishHandler
	SystemHandler   *handlers.SystemHandler
}

// NewContainer creates and initializes the dependency injection container
func NewContainer(cfg *config.Config, logger common.Logger, opts Options) (*Container, error) {
	clock := common.SystemClock{}

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Database.Host, cfg.Database.Port, cfg.Database.User,
		cfg.Database.Password, cfg.Database.DBName, cfg.Database.SSLMode,
	)
	st, err := store.Open(dsn)
	if err != nil {
		return nil, fmt.Errorf("store setup failed: %w", err)
	}

	cache, err := services.NewRedisCacheService(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.DB, logger)
	if err != nil {
		return nil, fmt.Errorf("redis setup failed: %w", err)
	}

	var transport upload.Transport
	if cfg.Upload.MockMode {
		transport = upload.NewMockTransport()
		logger.Warn("Upload transport running in mock mode")
	} else {
		transport = upload.NewClient(cfg.Upload.Endpoint, cfg.Publisher.UploadTimeout)
	}

	var runner pipeline.Runner
	if cfg.Upload.MockMode {
		runner = pipeline.MockRunner()
	} else {
		runner = pipeline.NewHTTPRunner(cfg.Executor.PipelineTimeout)
	}

	c := &Container{
		Config:      cfg,
		Logger:      logger,
		Clock:       clock,
		Store:       st,
		Cache:       cache,
		Transport:   transport,
		RateLimiter: middleware.NewRateLimiter(cache.Client(), logger),
	}

	c.Registry = pipeline.NewRegistry(st, runner, logger)
	c.Ring = ring.NewScheduler(st, logger)
	c.Resolver = strategy.NewResolver(st, logger)

	if opts.WithWorkers {
		c.Publisher = publisher.NewScheduler(st, transport, logger, clock, publisher.Options{
			Concurrency:   cfg.Publisher.Concurrency,
			PollInterval:  cfg.Publisher.PollInterval,
			MaxRetries:    cfg.Publisher.MaxRetries,
			RetryBase:     cfg.Publisher.RetryBase,
			UploadTimeout: cfg.Publisher.UploadTimeout,
			QueueSize:     cfg.Publisher.QueueSize,
		})
		c.Engine = executor.NewEngine(st, c.Registry, c.Resolver, c.Publisher, logger, clock, executor.Options{
			Concurrency:     cfg.Executor.Concurrency,
			PollInterval:    cfg.Executor.PollInterval,
			MaxRetries:      cfg.Executor.MaxRetries,
			RetryBase:       cfg.Executor.RetryBase,
			PipelineTimeout: cfg.Executor.PipelineTimeout,
			StaleThreshold:  cfg.Executor.StaleThreshold,
		})
		c.Executor = executor.NewController(c.Engine, logger)
		c.Evaluator = trigger.NewEvaluator(st, logger, clock, cfg.Trigger.EvalInterval)

		source := opts.Source
		if source == nil {
			source = trigger.SourceFunc(func(ctx context.Context, m *models.Monitor) ([]trigger.SourceItem, error) {
				return nil, nil
			})
		}
		c.Monitors = trigger.NewMonitorRunner(st, source, cache, logger, clock)
	}

	var dropper handlers.HeapDropper
	if c.Publisher != nil {
		dropper = c.Publisher
	}

	c.PipelineHandler = handlers.NewPipelineHandler(c.Registry)
	c.GroupHandler = handlers.NewGroupHandler(st)
	c.ConfigHandler = handlers.NewConfigHandler(st, c.Ring, clock)
	c.StrategyHandler = handlers.NewStrategyHandler(st)
	c.MonitorHandler = handlers.NewMonitorHandler(st)
	c.TaskHandler = handlers.NewTaskHandler(st, clock, dropper)
	c.PublishHandler = handlers.NewPublishHandler(st, clock)
	c.SystemHandler = handlers.NewSystemHandler(st, cache, c.Executor)

	return c, nil
}

// Cleanup closes long-lived connections.
func (c *Container) Cleanup() {
	if c.Cache != nil {
		c.Cache.Close()
	}
}
