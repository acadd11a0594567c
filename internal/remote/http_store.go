package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/budgetvault/BudgetVault/internal/models"
)

// HTTPStore talks to the reference document server over its REST surface
// and subscribes to live updates over its WebSocket feed.
type HTTPStore struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPStore builds a store against baseURL, e.g. "http://localhost:8080".
func NewHTTPStore(baseURL string, logger *zap.Logger) *HTTPStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPStore{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

func (s *HTTPStore) docURL(budgetID string) string {
	return s.baseURL + "/api/budgets/" + url.PathEscape(budgetID)
}

// Get implements Store.
func (s *HTTPStore) Get(ctx context.Context, budgetID string) (*models.RemoteDocument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.docURL(budgetID), nil)
	if err != nil {
		return nil, fmt.Errorf("build get request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	var doc models.RemoteDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return &doc, nil
}

// Set implements Store.
func (s *HTTPStore) Set(ctx context.Context, budgetID string, doc *models.RemoteDocument, merge bool) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	u := s.docURL(budgetID)
	if merge {
		u += "?merge=true"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build put request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("put document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return statusError(resp)
	}
	return nil
}

// Watch implements Store. It dials the server's WebSocket feed and forwards
// every document update onto the returned channel until ctx is cancelled or
// the connection drops.
func (s *HTTPStore) Watch(ctx context.Context, budgetID string) (<-chan models.RemoteDocument, error) {
	wsURL := s.docURL(budgetID) + "/watch"
	conn, resp, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("dial watch feed: %w", err)
	}

	updates := make(chan models.RemoteDocument)
	go func() {
		defer close(updates)
		defer conn.Close(websocket.StatusNormalClosure, "watch ended")
		for {
			var doc models.RemoteDocument
			if err := wsjson.Read(ctx, conn, &doc); err != nil {
				if ctx.Err() == nil {
					s.logger.Warn("watch feed closed", zap.String("budgetID", budgetID), zap.Error(err))
				}
				return
			}
			select {
			case updates <- doc:
			case <-ctx.Done():
				return
			}
		}
	}()
	return updates, nil
}

// statusError reads a JSON error body of the form {"code":..,"message":..}
// if the server sent one, falling back to the raw body text.
func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	se := &StatusError{StatusCode: resp.StatusCode, Message: string(bytes.TrimSpace(raw))}
	var payload struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &payload) == nil && payload.Message != "" {
		se.Code = payload.Code
		se.Message = payload.Message
	}
	return se
}
