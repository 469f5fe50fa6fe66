// path: internal/executor/controller.go
package executor

import (
	"context"
	"sync"

	"github.com/xipebhui/autopublish/internal/application/common"
)

// Controller owns the engine's goroutine so the API can start and stop the
// executor at runtime.
type Controller struct {
	engine *Engine
	logger common.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewController wraps an engine.
func NewController(engine *Engine, logger common.Logger) *Controller {
	return &Controller{engine: engine, logger: logger}
}

// Start launches the engine loop. Starting a running executor conflicts.
// The loop outlives any request context; only Stop ends it.
func (c *Controller) Start(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.engine.Running() {
		return common.Conflict("executor_running", "executor already started")
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go func() {
		if err := c.engine.Run(ctx); err != nil && err != context.Canceled {
			c.logger.Error("Executor loop exited: " + err.Error())
		}
	}()
	c.logger.Info("Executor started")
	return nil
}

// Stop halts the engine loop.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.engine.Running() {
		return common.Conflict("executor_stopped", "executor is not running")
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	_ = c.engine.Stop(ctx)
	c.logger.Info("Executor stopped")
	return nil
}

// Status reports whether the loop is live and its pool size.
func (c *Controller) Status() map[string]interface{} {
	return map[string]interface{}{
		"running":     c.engine.Running(),
		"concurrency": c.engine.opts.Concurrency,
	}
}

// Engine exposes the wrapped engine for task-level operations.
func (c *Controller) Engine() *Engine { return c.engine }
