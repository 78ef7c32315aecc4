package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/mnemo/internal/config"
	"github.com/ent0n29/mnemo/internal/engine"
	"github.com/ent0n29/mnemo/internal/history"
	"github.com/ent0n29/mnemo/internal/memory"
	"github.com/ent0n29/mnemo/internal/observability"
	"github.com/ent0n29/mnemo/internal/provider"
	"github.com/ent0n29/mnemo/internal/ranker"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	metrics := observability.NewMetrics(fmt.Sprintf("mnemo_test_httpapi_%d", time.Now().UnixNano()))
	store := memory.NewInMemoryStore()
	emb := provider.NewMockEmbedder(64)
	eng := engine.New(store, ranker.New(store, emb), history.New(store), emb, provider.NewMockCompleter(), metrics, 5)
	return New(config.Config{AllowAnyOrigin: true}, eng, metrics)
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("GET /healthz status = %d, want 200", rec.Code)
	}
}

func TestTurnRoundtrip(t *testing.T) {
	s := newTestServer(t)
	router := s.Router()

	rec := postJSON(t, router, "/v1/chat/turn", turnRequest{UserID: "u1", Text: "hello"})
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /v1/chat/turn status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp turnResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Reply != "You said: hello" {
		t.Fatalf("reply = %q, want mock completer output", resp.Reply)
	}

	// Both sides of the exchange should now be visible in the history.
	req := httptest.NewRequest(http.MethodGet, "/v1/history?user_id=u1", nil)
	histRec := httptest.NewRecorder()
	router.ServeHTTP(histRec, req)
	if histRec.Code != http.StatusOK {
		t.Fatalf("GET /v1/history status = %d", histRec.Code)
	}
	var hist struct {
		HistoryEnabled bool             `json:"history_enabled"`
		Messages       []historyMessage `json:"messages"`
	}
	if err := json.Unmarshal(histRec.Body.Bytes(), &hist); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(hist.Messages) != 2 {
		t.Fatalf("len(messages) = %d, want 2", len(hist.Messages))
	}
	if !hist.HistoryEnabled {
		t.Fatalf("history_enabled = false for a fresh user after a turn")
	}
}

func TestTurnRequiresUserID(t *testing.T) {
	s := newTestServer(t)
	rec := postJSON(t, s.Router(), "/v1/chat/turn", turnRequest{Text: "hello"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestTurnRejectsEmptyText(t *testing.T) {
	s := newTestServer(t)
	rec := postJSON(t, s.Router(), "/v1/chat/turn", turnRequest{UserID: "u1", Text: "  "})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if resp.Code != "empty_text" {
		t.Fatalf("code = %q, want %q", resp.Code, "empty_text")
	}
}

func TestHistoryDisableEnable(t *testing.T) {
	s := newTestServer(t)
	router := s.Router()

	if rec := postJSON(t, router, "/v1/chat/turn", turnRequest{UserID: "u1", Text: "hi"}); rec.Code != http.StatusOK {
		t.Fatalf("seed turn status = %d", rec.Code)
	}

	rec := postJSON(t, router, "/v1/history/disable", historyRequest{UserID: "u1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /v1/history/disable status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"history_enabled":false`) {
		t.Fatalf("disable response = %s", rec.Body.String())
	}

	rec = postJSON(t, router, "/v1/history/enable", historyRequest{UserID: "u1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /v1/history/enable status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"history_enabled":true`) {
		t.Fatalf("enable response = %s", rec.Body.String())
	}
}

func TestChatWSTurn(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/chat/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(wsInbound{Type: "turn", UserID: "u1", Text: "ping"}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	var out wsOutbound
	if err := conn.ReadJSON(&out); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if out.Type != "reply" || out.Reply != "You said: ping" {
		t.Fatalf("ws reply = %+v", out)
	}

	if err := conn.WriteJSON(wsInbound{Type: "disable_history", UserID: "u1"}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	if err := conn.ReadJSON(&out); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if out.Type != "history_status" || out.HistoryEnabled {
		t.Fatalf("ws history status = %+v, want disabled", out)
	}
}
