/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the booking engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env and parse command-line flags
  2. Initialize SQLite store
  3. Wire materializer, syncer, and payment reconciler
  4. Configure HTTP router and start the generation scheduler
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port       HTTP server port (default: 8080)
  -db         SQLite database path (default: bookings.db)
              Use ":memory:" for in-memory database
  -scheduler  Enable the background generation scheduler (default: true)
  -interval   Scheduler check interval (default: 24h)

ENVIRONMENT:
  PAYSTACK_SECRET_KEY      Webhook signing / verify-API key (required
                           for live payments)
  PAYSTACK_BASE_URL        Override the verify-API base URL (tests)
  PAYSTACK_ALLOW_UNSIGNED  Accept unsigned webhooks (dev only)
  CRON_SECRET_TOKEN        Bearer token guarding the batch triggers

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection
  5. Exit

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/casaclean/booking-engine/api"
	"github.com/casaclean/booking-engine/payment"
	"github.com/casaclean/booking-engine/recurring"
	"github.com/casaclean/booking-engine/store/sqlite"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded configuration from .env")
	}

	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "bookings.db", "SQLite database path")
	schedulerEnabled := flag.Bool("scheduler", true, "enable the background generation scheduler")
	schedulerInterval := flag.Duration("interval", 24*time.Hour, "generation scheduler interval")
	flag.Parse()

	secretKey := os.Getenv("PAYSTACK_SECRET_KEY")
	if secretKey == "" {
		log.Println("Warning: PAYSTACK_SECRET_KEY not set; webhook signatures cannot be validated")
	}
	allowUnsigned := os.Getenv("PAYSTACK_ALLOW_UNSIGNED") == "true"
	cronToken := os.Getenv("CRON_SECRET_TOKEN")

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Wire services
	materializer := recurring.NewMaterializer(store)
	syncer := recurring.NewSyncer(store)
	verifier := payment.NewClient(secretKey, os.Getenv("PAYSTACK_BASE_URL"))
	reconciler := payment.NewReconciler(store, verifier, secretKey, allowUnsigned)

	handler := api.NewHandler(store, materializer, syncer, reconciler, cronToken)
	router := api.NewRouter(handler)

	// Background generation
	scheduler := api.NewGenerationScheduler(materializer)
	scheduler.Enabled = *schedulerEnabled
	scheduler.CheckInterval = *schedulerInterval
	scheduler.Start()
	defer scheduler.Stop()

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("🚀 Server starting on http://localhost:%d", *port)
		log.Printf("📊 API available at http://localhost:%d/api", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
