package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/mnemo/internal/config"
	"github.com/ent0n29/mnemo/internal/engine"
	"github.com/ent0n29/mnemo/internal/memory"
	"github.com/ent0n29/mnemo/internal/observability"
	"github.com/ent0n29/mnemo/internal/provider"
)

type Server struct {
	cfg      config.Config
	engine   *engine.Engine
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
}

func New(cfg config.Config, eng *engine.Engine, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:     cfg,
		engine:  eng,
		metrics: metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Default: only allow browser websocket connections from the
				// same origin. Non-browser clients omit Origin and pass.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/chat/turn", s.handleTurn)
	r.Get("/v1/chat/ws", s.handleChatWS)
	r.Post("/v1/history/enable", s.handleEnableHistory)
	r.Post("/v1/history/disable", s.handleDisableHistory)
	r.Get("/v1/history", s.handleGetHistory)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

type turnRequest struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

type turnResponse struct {
	UserID string `json:"user_id"`
	Reply  string `json:"reply"`
}

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		respondError(w, http.StatusBadRequest, "missing_user_id", "user_id is required")
		return
	}

	reply, err := s.engine.HandleTurn(r.Context(), req.UserID, req.Text)
	if err != nil {
		status, code := turnErrorStatus(err)
		respondError(w, status, code, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, turnResponse{UserID: req.UserID, Reply: reply})
}

type historyRequest struct {
	UserID string `json:"user_id"`
}

func (s *Server) handleEnableHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.historyUser(w, r)
	if !ok {
		return
	}
	if err := s.engine.EnableHistory(r.Context(), userID); err != nil {
		respondError(w, http.StatusBadGateway, "store_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"user_id": userID, "history_enabled": true})
}

func (s *Server) handleDisableHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.historyUser(w, r)
	if !ok {
		return
	}
	if err := s.engine.DisableHistory(r.Context(), userID); err != nil {
		respondError(w, http.StatusBadGateway, "store_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"user_id": userID, "history_enabled": false})
}

func (s *Server) historyUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req historyRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return "", false
	}
	if strings.TrimSpace(req.UserID) == "" {
		respondError(w, http.StatusBadRequest, "missing_user_id", "user_id is required")
		return "", false
	}
	return req.UserID, true
}

type historyMessage struct {
	ID      string `json:"id"`
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		respondError(w, http.StatusBadRequest, "missing_user_id", "query parameter user_id is required")
		return
	}

	msgs, err := s.engine.History(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusBadGateway, "store_error", err.Error())
		return
	}
	enabled, err := s.engine.HistoryEnabled(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusBadGateway, "store_error", err.Error())
		return
	}

	out := make([]historyMessage, len(msgs))
	for i, m := range msgs {
		// Embeddings stay server-side.
		out[i] = historyMessage{ID: m.ID, Role: string(m.Role), Content: m.Content}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"user_id":         userID,
		"history_enabled": enabled,
		"messages":        out,
	})
}

// turnErrorStatus maps the turn error taxonomy onto HTTP statuses.
func turnErrorStatus(err error) (int, string) {
	if errors.Is(err, engine.ErrEmptyInput) {
		return http.StatusBadRequest, "empty_text"
	}
	var embErr *provider.EmbeddingError
	if errors.As(err, &embErr) {
		return http.StatusBadGateway, "embedding_error"
	}
	var compErr *provider.CompletionError
	if errors.As(err, &compErr) {
		return http.StatusBadGateway, "completion_error"
	}
	var storeErr *memory.StoreError
	if errors.As(err, &storeErr) {
		return http.StatusBadGateway, "store_error"
	}
	return http.StatusInternalServerError, "turn_error"
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(out)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
