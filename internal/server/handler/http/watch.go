package http

import (
	"errors"
	"net/http"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/budgetvault/BudgetVault/internal/middleware"
	"github.com/budgetvault/BudgetVault/internal/repository"
)

// Watch upgrades the request to a WebSocket and streams document updates.
// The current document is sent first so a new watcher starts from the latest
// state; every subsequent accepted write follows. The subscription is taken
// before the initial read, so no write can fall between snapshot and stream.
func (h *DocumentHandler) Watch(w http.ResponseWriter, r *http.Request) {
	budgetID := middleware.GetBudgetIDFromContext(r.Context())

	updates, cancel := h.hub.Subscribe(budgetID)
	defer cancel()

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("watch upgrade failed", zap.String("budgetID", budgetID), zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "watch ended")

	ctx := r.Context()

	current, err := h.docs.Get(ctx, budgetID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		h.logger.Error("watch initial read failed", zap.String("budgetID", budgetID), zap.Error(err))
		conn.Close(websocket.StatusInternalError, "initial read failed")
		return
	}
	if current != nil {
		if err := wsjson.Write(ctx, conn, current); err != nil {
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case doc, ok := <-updates:
			if !ok {
				return
			}
			if err := wsjson.Write(ctx, conn, doc); err != nil {
				return
			}
		}
	}
}
