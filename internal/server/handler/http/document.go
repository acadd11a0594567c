package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/budgetvault/BudgetVault/internal/middleware"
	"github.com/budgetvault/BudgetVault/internal/models"
	"github.com/budgetvault/BudgetVault/internal/repository"
	"github.com/budgetvault/BudgetVault/internal/service"
)

// DocumentHandler serves the encrypted-document endpoints.
type DocumentHandler struct {
	docs     *service.DocumentService
	presence *service.PresenceService
	hub      *service.WatcherHub
	logger   *zap.Logger
}

// NewDocumentHandler constructs a DocumentHandler.
func NewDocumentHandler(
	docs *service.DocumentService,
	presence *service.PresenceService,
	hub *service.WatcherHub,
	logger *zap.Logger,
) *DocumentHandler {
	return &DocumentHandler{docs: docs, presence: presence, hub: hub, logger: logger}
}

// Get returns the stored document, 404 when the budget has never been written.
func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	budgetID := middleware.GetBudgetIDFromContext(r.Context())

	doc, err := h.docs.Get(r.Context(), budgetID)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "no document for this budget")
		return
	}
	if err != nil {
		h.logger.Error("get document failed", zap.String("budgetID", budgetID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "could not load document")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// Put stores the incoming document. With ?merge=true, fields absent from the
// body are preserved from the stored document. The stored document, with its
// server-assigned timestamp and version, is returned.
func (h *DocumentHandler) Put(w http.ResponseWriter, r *http.Request) {
	budgetID := middleware.GetBudgetIDFromContext(r.Context())

	var incoming models.RemoteDocument
	if err := json.NewDecoder(r.Body).Decode(&incoming); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed document body")
		return
	}
	merge := r.URL.Query().Get("merge") == "true"

	stored, err := h.docs.Save(r.Context(), budgetID, &incoming, merge)
	if err != nil {
		h.logger.Error("save document failed", zap.String("budgetID", budgetID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "could not store document")
		return
	}

	// Presence is best effort; a failed touch never fails the write.
	if err := h.presence.RecordWrite(r.Context(), budgetID, stored.Author); err != nil {
		h.logger.Warn("presence touch failed", zap.String("budgetID", budgetID), zap.Error(err))
	}

	writeJSON(w, http.StatusOK, stored)
}

// clearRequest is the body of POST /clear.
type clearRequest struct {
	Reason string         `json:"reason"`
	Author *models.Author `json:"author,omitempty"`
}

// Clear overwrites the document with a cleared marker.
func (h *DocumentHandler) Clear(w http.ResponseWriter, r *http.Request) {
	budgetID := middleware.GetBudgetIDFromContext(r.Context())

	var req clearRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed clear request")
		return
	}

	marker, err := h.docs.Clear(r.Context(), budgetID, req.Reason, req.Author)
	if err != nil {
		h.logger.Error("clear document failed", zap.String("budgetID", budgetID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "could not clear document")
		return
	}
	writeJSON(w, http.StatusOK, marker)
}
