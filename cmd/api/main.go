// ============================================================================
// FILE: cmd/api/main.go
// PURPOSE: HTTP API server binary
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
	log.Println("🚀 Starting AutoPublish API Server...")

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found, using environment variables")
	} else {
		log.Println("  ✓ Loaded .env file")
	}

	cfg := config.Load()
	logger := services.NewLogger("API")

	log.Println("🔧 Initializing dependencies...")
	container, err := app.NewContainer(cfg, logger, app.Options{WithWorkers: false})
	if err != nil {
		log.Fatalf("❌ Failed to initialize application: %v", err)
	}
	defer container.Cleanup()
	log.Println("  ✓ Dependencies initialized")

	log.Println("🛣️  Setting up router...")
	router := app.SetupRouter(container)
	log.Println("  ✓ Router configured")

	serverAddr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("✨ API listening on %s", serverAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down API server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("❌ Forced shutdown: %v", err)
	}
	log.Println("✅ API server stopped gracefully")
}
