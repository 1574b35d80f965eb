/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the leave engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, LEAVE_* environment, flags)
  2. Initialize SQLite store (migrations run on open)
  3. Seed the vacation-type catalog into an empty store, load the registry
  4. Create the leave service, importer and API handler
  5. Start the maintenance scheduler
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port                HTTP server port (default: 8080)
  -db                  SQLite database path (default: leave.db)
                       Use ":memory:" for in-memory database
  -log-level           debug, info, warn, error
  -log-format          text or json
  -policies            vacation-type catalog file (default: built-in)
  -scheduler           run accrual and emergency reset automatically
  -scheduler-interval  how often the scheduler checks (default: 1h)
  -demo                mount /api/scenarios (loading one wipes the database)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler (waits for an in-flight run)
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

SEE ALSO:
  - config/config.go: Settings and environment variables
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/warp/leave-engine/api"
	"github.com/warp/leave-engine/config"
	"github.com/warp/leave-engine/factory"
	"github.com/warp/leave-engine/importer"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/store/sqlite"
)

func main() {
	cfg, err := config.Load("", os.Args[1:])
	if err != nil {
		logrus.Fatalf("Invalid configuration: %v", err)
	}
	logger := cfg.Logger()
	log := logrus.NewEntry(logger)

	// Initialize store
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize database")
	}
	defer store.Close()

	// Policy catalog
	ctx := context.Background()
	catalog, err := factory.NewPolicyFactory().LoadCatalogFile(cfg.PolicyFile)
	if err != nil {
		log.WithError(err).Fatal("Failed to load vacation-type catalog")
	}
	registry := leave.NewRegistry()
	seeded, err := registry.Seed(ctx, store, catalog, time.Now())
	if err != nil {
		log.WithError(err).Fatal("Failed to seed vacation types")
	}
	log.WithFields(logrus.Fields{
		"seeded": seeded,
		"types":  len(registry.List()),
	}).Info("vacation-type catalog loaded")
	if cfg.PolicyFile != "" && seeded == 0 {
		log.WithField("policy_file", cfg.PolicyFile).
			Warn("policy file ignored: vacation_types is already seeded")
	}

	// Service and handlers
	svc := leave.NewService(store, registry, leave.Options{
		Logger:             log,
		EmergencyAllowance: cfg.EmergencyAllowance,
	})
	im := importer.New(svc, log.WithField("component", "importer"), cfg.MaxImportRows)
	handler := api.NewHandler(svc, im, log.WithField("component", "http"))

	scheduler := api.NewMaintenanceScheduler(svc, log)
	scheduler.Enabled = cfg.SchedulerEnabled
	scheduler.Interval = cfg.SchedulerInterval
	scheduler.CatchUp = cfg.EmergencyCatchUp
	handler.Scheduler = scheduler
	scheduler.Start()

	if cfg.Demo {
		handler.Scenarios = &api.ScenarioLoader{
			Store:    store,
			Registry: registry,
			Catalog:  catalog,
			Service:  svc,
			Log:      log.WithField("component", "scenarios"),
		}
		log.Warn("Demo mode: scenario loading resets the database")
	}

	router := api.NewRouter(handler, cfg.AllowedOrigins, store)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.WithField("addr", server.Addr).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")
	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}

	log.Info("Server stopped")
}
