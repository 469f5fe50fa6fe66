// ============================================================================
// FILE: cmd/server/main.go
// PURPOSE: Combined binary: API surface plus all background loops
// ============================================================================

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
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

func main() {
	log.Println("🚀 Starting AutoPublish Server (API + workers)...")

	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found, using environment variables")
	}

	cfg := config.Load()
	logger := services.NewLogger("SERVER")

	container, err := app.NewContainer(cfg, logger, app.Options{WithWorkers: true})
	if err != nil {
		log.Fatalf("❌ Failed to initialize server: %v", err)
	}
	defer container.Cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Trigger, monitor and publish loops always run; the executor goes
	// through its controller so the API can start and stop it.
	go func() {
		if err := container.Evaluator.Run(ctx); err != nil && err != context.Canceled {
			logger.Error(fmt.Sprintf("Trigger evaluator failed: %v", err))
		}
	}()
	go func() {
		if err := container.Monitors.Run(ctx); err != nil && err != context.Canceled {
			logger.Error(fmt.Sprintf("Monitor runner failed: %v", err))
		}
	}()
	go func() {
		if err := container.Publisher.Run(ctx); err != nil && err != context.Canceled {
			logger.Error(fmt.Sprintf("Publish scheduler failed: %v", err))
		}
	}()
	if err := container.Executor.Start(ctx); err != nil {
		logger.Warn(fmt.Sprintf("Executor autostart skipped: %v", err))
	}

	router := app.SetupRouter(container)
	serverAddr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("✨ Server listening on %s", serverAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("❌ Forced HTTP shutdown: %v", err)
	}
	if err := container.Executor.Stop(shutdownCtx); err != nil {
		logger.Warn(fmt.Sprintf("Executor stop: %v", err))
	}
	_ = container.Evaluator.Stop(shutdownCtx)
	_ = container.Monitors.Stop(shutdownCtx)
	_ = container.Publisher.Stop(shutdownCtx)

	log.Println("✅ Server stopped gracefully")
}
