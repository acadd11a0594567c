package http

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/budgetvault/BudgetVault/internal/middleware"
	"github.com/budgetvault/BudgetVault/internal/models"
	"github.com/budgetvault/BudgetVault/internal/service"
)

// PresenceHandler serves the active-authors view.
type PresenceHandler struct {
	presence *service.PresenceService
	logger   *zap.Logger
}

// NewPresenceHandler constructs a PresenceHandler.
func NewPresenceHandler(presence *service.PresenceService, logger *zap.Logger) *PresenceHandler {
	return &PresenceHandler{presence: presence, logger: logger}
}

// Active lists the authors who wrote to the budget inside the presence
// window. An empty list is a normal response, not an error.
func (h *PresenceHandler) Active(w http.ResponseWriter, r *http.Request) {
	budgetID := middleware.GetBudgetIDFromContext(r.Context())

	authors, err := h.presence.Active(r.Context(), budgetID)
	if err != nil {
		h.logger.Error("presence lookup failed", zap.String("budgetID", budgetID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "could not load presence")
		return
	}
	if authors == nil {
		authors = []models.Author{}
	}
	writeJSON(w, http.StatusOK, authors)
}
