// Package http provides HTTP routing and handlers for the budget document
// server.
package http

import (
	"encoding/json"
	"net/http"

	"github.com/budgetvault/BudgetVault/internal/middleware"
	"go.uber.org/zap"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter constructs and returns an HTTP handler that serves the budget
// sync API. All document routes are keyed by budget identity.
//
// Routes:
//
//	GET  /api/budgets/{budgetID}           → documentHandler.Get
//	PUT  /api/budgets/{budgetID}?merge=    → documentHandler.Put
//	POST /api/budgets/{budgetID}/clear     → documentHandler.Clear
//	GET  /api/budgets/{budgetID}/watch     → documentHandler.Watch (WebSocket)
//	GET  /api/budgets/{budgetID}/presence  → presenceHandler.Active
//
// Middleware chain (applied in order):
//  1. AllowContentType("application/json") — rejects non-JSON request bodies
//  2. WithRequestLogging(logger)           — logs incoming requests
//  3. WithBudgetID                         — extracts the budget identity
func NewRouter(
	documentHandler *DocumentHandler,
	presenceHandler *PresenceHandler,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Only allow request bodies with Content-Type: application/json
	r.Use(chiMiddleware.AllowContentType("application/json"))

	// Log each request and its metadata
	r.Use(middleware.WithRequestLogging(logger))

	r.Route("/api/budgets/{budgetID}", func(r chi.Router) {
		r.Use(middleware.WithBudgetID)

		r.Get("/", documentHandler.Get)
		r.Put("/", documentHandler.Put)
		r.Post("/clear", documentHandler.Clear)
		r.Get("/watch", documentHandler.Watch)
		r.Get("/presence", presenceHandler.Active)
	})

	return r
}

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError sends a structured error body so clients can classify failures
// by code instead of scraping message text.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"code": code, "message": message})
}
