// ============================================================================
// FILE: cmd/worker/main.go
// PURPOSE: Background worker binary running the four core loops
// ============================================================================

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/xipebhui/autopublish/internal/app"
	"github.com/xipebhui/autopublish/internal/config"
	"github.com/xipebhui/autopublish/internal/infrastructure/services"
)

// JobProcessor interface for all long-running loops
type JobProcessor interface {
	Name() string
	Run(ctx context.Context) error
	Stop(ctx context.Context) error
}

func main() {
	log.Println("🔧 Starting AutoPublish Worker...")

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found, using environment variables")
	}

	cfg := config.Load()
	logger := services.NewLogger("WORKER")

	container, err := app.NewContainer(cfg, logger, app.Options{WithWorkers: true})
	if err != nil {
		log.Fatalf("❌ Failed to initialize worker: %v", err)
	}
	defer container.Cleanup()

	processors := []JobProcessor{
		container.Evaluator,
		container.Monitors,
		container.Engine,
		container.Publisher,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, processor := range processors {
		go func(p JobProcessor) {
			logger.Info(fmt.Sprintf("▶️  Starting processor: %s", p.Name()))
			if err := p.Run(ctx); err != nil && err != context.Canceled {
				logger.Error(fmt.Sprintf("Processor %s failed: %v", p.Name(), err))
			}
		}(processor)
	}

	logger.Info("✨ Worker started successfully")
	logger.Info("📊 Active processors:")
	for _, p := range processors {
		logger.Info(fmt.Sprintf("   • %s", p.Name()))
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("🛑 Shutting down worker...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	for _, processor := range processors {
		if err := processor.Stop(shutdownCtx); err != nil {
			logger.Error(fmt.Sprintf("Failed to stop processor %s: %v", processor.Name(), err))
		}
	}

	logger.Info("✅ Worker stopped gracefully")
}
