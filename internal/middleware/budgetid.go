// Package middleware provides HTTP middlewares for request logging and
// budget identity extraction.
package middleware

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type ctxKey string

const budgetKey ctxKey = "budgetID"

// WithBudgetID extracts the budget identity from the route and stores it in
// the request context so handlers and services downstream can use it without
// re-parsing the URL. Requests without a budget ID are rejected: every
// document route is keyed by one.
func WithBudgetID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "budgetID")
		if id == "" {
			http.Error(w, "missing budget id", http.StatusBadRequest)
			return
		}
		ctx := context.WithValue(r.Context(), budgetKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetBudgetIDFromContext extracts the budget identity from the request
// context. Returns an empty string if not found.
func GetBudgetIDFromContext(ctx context.Context) string {
	val := ctx.Value(budgetKey)
	if s, ok := val.(string); ok {
		return s
	}
	return ""
}
