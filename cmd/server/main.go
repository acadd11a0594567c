// Package main initializes and starts the budget document server, setting up
// configuration, logging, database connections, repositories, services and
// handlers.
package main

import (
	"context"
	"fmt"
	"time"

	nethttp "net/http"

	"github.com/budgetvault/BudgetVault/internal/config"
	"github.com/budgetvault/BudgetVault/internal/db"
	"github.com/budgetvault/BudgetVault/internal/repository"
	"github.com/budgetvault/BudgetVault/internal/server/handler/http"
	"github.com/budgetvault/BudgetVault/internal/service"
	"go.uber.org/zap"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

func main() {
	// Parse command-line and environment configuration.
	options := config.Parse()
	addr := options.Port
	dsn := options.DatabaseDSN

	// Print build metadata (or "N/A" if unset).
	if version == "" {
		version = "N/A"
	}
	if buildDate == "" {
		buildDate = "N/A"
	}
	fmt.Printf("Build version: %s\n", version)
	fmt.Printf("Build date: %s\n", buildDate)

	// Initialize structured logging.
	zapLogger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("failed to init logger: %v", err))
	}
	defer func() { _ = zapLogger.Sync() }()

	// Initialize PostgreSQL connection.
	postgresDB, err := db.InitPostgres(dsn)
	if err != nil {
		zapLogger.Fatal("cannot init database", zap.Error(err))
	}

	// Initialize repositories for documents and presence.
	documentRepo := repository.NewPostgresDocumentRepository(postgresDB)
	presenceRepo := repository.NewPostgresPresenceRepository(postgresDB)

	// Prune old cleared reset markers in the background.
	db.StartClearedDocPruner(context.Background(), documentRepo,
		time.Hour,                   // interval
		options.RetentionDuration(), // retention
		zapLogger,
	)

	// Initialize business-logic services and the live-update hub.
	hub := service.NewWatcherHub()
	documentService := service.NewDocumentService(documentRepo, hub)
	presenceService := service.NewPresenceService(presenceRepo, time.Hour)

	// Create HTTP handlers for document and presence endpoints.
	documentHandler := http.NewDocumentHandler(documentService, presenceService, hub, zapLogger)
	presenceHandler := http.NewPresenceHandler(presenceService, zapLogger)

	// Build the router with middleware and routes.
	router := http.NewRouter(documentHandler, presenceHandler, zapLogger)

	// Create and start the HTTP server.
	server := &nethttp.Server{
		Addr:    addr,
		Handler: router,
	}

	zapLogger.Info("starting HTTP server", zap.String("addr", addr))
	if err := server.ListenAndServe(); err != nil {
		zapLogger.Fatal("failed to start HTTP server", zap.Error(err))
	}
}
