package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/ent0n29/mnemo/internal/history"
	"github.com/ent0n29/mnemo/internal/memory"
	"github.com/ent0n29/mnemo/internal/observability"
	"github.com/ent0n29/mnemo/internal/provider"
	"github.com/ent0n29/mnemo/internal/ranker"
)

// SystemPreamble is the fixed header of every completion prompt.
const SystemPreamble = "This is a continuation of the user's past conversation."

// DefaultTopK is how many relevant prior messages a prompt may carry.
const DefaultTopK = 5

// ErrEmptyInput rejects a turn whose user text is blank.
var ErrEmptyInput = errors.New("empty user text")

// TurnError wraps any failure that aborts a conversational turn.
type TurnError struct {
	UserID string
	Err    error
}

func (e *TurnError) Error() string { return fmt.Sprintf("turn for user %s: %v", e.UserID, e.Err) }

func (e *TurnError) Unwrap() error { return e.Err }

// Engine orchestrates one conversational turn: decide whether retrieval is
// active, rank relevant history, assemble the bounded prompt, call the
// completion provider, and persist both sides of the exchange.
//
// Turns and history toggles for the same user are serialized end to end by
// a per-user lock; different users run fully in parallel.
type Engine struct {
	store     memory.Store
	ranker    *ranker.Ranker
	history   *history.Controller
	embedder  provider.Embedder
	completer provider.Completer
	metrics   *observability.Metrics
	topK      int

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(
	store memory.Store,
	rk *ranker.Ranker,
	hist *history.Controller,
	embedder provider.Embedder,
	completer provider.Completer,
	metrics *observability.Metrics,
	topK int,
) *Engine {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Engine{
		store:     store,
		ranker:    rk,
		history:   hist,
		embedder:  embedder,
		completer: completer,
		metrics:   metrics,
		topK:      topK,
		locks:     make(map[string]*sync.Mutex),
	}
}

// userLock returns the serialization lock for one user, creating it on
// first use. Locks are never removed; the registry grows with the user
// population, same as the ledgers themselves.
func (e *Engine) userLock(userID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[userID] = l
	}
	return l
}

// HandleTurn runs one user turn and returns the assistant reply.
//
// A provider or store failure before the completion returns aborts the
// turn with nothing persisted. Once the completion has succeeded the reply
// is owed to the caller: persistence failures after that point are logged
// and counted, not returned. The two appends are individually atomic but
// not atomic together, so a crash between them leaves only the user
// message recorded.
func (e *Engine) HandleTurn(ctx context.Context, userID, userText string) (string, error) {
	if strings.TrimSpace(userText) == "" {
		e.metrics.TurnsTotal.WithLabelValues("rejected").Inc()
		return "", &TurnError{UserID: userID, Err: ErrEmptyInput}
	}

	lock := e.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()

	enabled, err := e.history.IsEnabled(ctx, userID)
	if err != nil {
		e.metrics.TurnsTotal.WithLabelValues("store_error").Inc()
		return "", &TurnError{UserID: userID, Err: err}
	}

	var relevant []memory.Message
	if enabled {
		relevant, err = e.ranker.TopK(ctx, userID, userText, e.topK)
		if err != nil {
			// No fallback to an uncontextualized answer: answering without
			// relevant history when history exists is a silent regression.
			e.metrics.TurnsTotal.WithLabelValues("rank_error").Inc()
			var embErr *provider.EmbeddingError
			if errors.As(err, &embErr) {
				e.metrics.ProviderErrors.WithLabelValues(embErr.Provider, "embed").Inc()
			}
			return "", &TurnError{UserID: userID, Err: err}
		}
	}
	e.metrics.RetrievedMessages.Observe(float64(len(relevant)))

	reply, err := e.completer.Complete(ctx, buildPrompt(relevant, userText))
	if err != nil {
		e.metrics.TurnsTotal.WithLabelValues("completion_error").Inc()
		e.metrics.ProviderErrors.WithLabelValues(providerLabel(err), "complete").Inc()
		return "", &TurnError{UserID: userID, Err: err}
	}

	e.persistExchange(ctx, userID, userText, reply)

	e.metrics.TurnsTotal.WithLabelValues("ok").Inc()
	e.metrics.ObserveTurnLatency(time.Since(start))
	return reply, nil
}

// EnableHistory turns retrieval on for the user, serialized against any
// in-flight turn so the recorded cursor cannot race an append.
func (e *Engine) EnableHistory(ctx context.Context, userID string) error {
	lock := e.userLock(userID)
	lock.Lock()
	defer lock.Unlock()
	if err := e.history.Enable(ctx, userID); err != nil {
		return err
	}
	e.metrics.HistoryToggles.WithLabelValues("enable").Inc()
	return nil
}

// DisableHistory turns retrieval off for the user. Stored messages are untouched.
func (e *Engine) DisableHistory(ctx context.Context, userID string) error {
	lock := e.userLock(userID)
	lock.Lock()
	defer lock.Unlock()
	if err := e.history.Disable(ctx, userID); err != nil {
		return err
	}
	e.metrics.HistoryToggles.WithLabelValues("disable").Inc()
	return nil
}

// History returns the user's full ledger in append order.
func (e *Engine) History(ctx context.Context, userID string) ([]memory.Message, error) {
	return e.store.ReadAll(ctx, userID)
}

// HistoryEnabled reports whether retrieval is active for the user.
func (e *Engine) HistoryEnabled(ctx context.Context, userID string) (bool, error) {
	return e.history.IsEnabled(ctx, userID)
}

// persistExchange appends the user message (embedded) then the assistant
// reply (never embedded). Runs after a successful completion, so failures
// here are logged and counted instead of failing the turn.
func (e *Engine) persistExchange(ctx context.Context, userID, userText, reply string) {
	embedding, err := e.embedder.Embed(ctx, userText)
	if err != nil {
		log.Printf("[ENGINE] embed user turn for %s failed, storing without embedding: %v", userID, err)
		e.metrics.ProviderErrors.WithLabelValues(providerLabel(err), "embed").Inc()
		embedding = nil
	}

	userMsg := memory.Message{Role: memory.RoleUser, Content: userText, Embedding: embedding}
	if err := e.store.Append(ctx, userID, userMsg); err != nil {
		log.Printf("[ENGINE] append user turn for %s failed: %v", userID, err)
		e.metrics.PersistFailures.Inc()
		return
	}
	e.metrics.LedgerAppends.WithLabelValues(string(memory.RoleUser)).Inc()

	assistantMsg := memory.Message{Role: memory.RoleAssistant, Content: reply}
	if err := e.store.Append(ctx, userID, assistantMsg); err != nil {
		// Accepted inconsistency window: the user message is recorded, the
		// reply is not, and the caller still gets the reply.
		log.Printf("[ENGINE] append assistant turn for %s failed: %v", userID, err)
		e.metrics.PersistFailures.Inc()
		return
	}
	e.metrics.LedgerAppends.WithLabelValues(string(memory.RoleAssistant)).Inc()
}

func buildPrompt(relevant []memory.Message, userText string) []provider.ChatMessage {
	prompt := make([]provider.ChatMessage, 0, len(relevant)+2)
	prompt = append(prompt, provider.ChatMessage{Role: string(memory.RoleSystem), Content: SystemPreamble})
	for _, m := range relevant {
		prompt = append(prompt, provider.ChatMessage{Role: string(m.Role), Content: m.Content})
	}
	prompt = append(prompt, provider.ChatMessage{Role: string(memory.RoleUser), Content: userText})
	return prompt
}

func providerLabel(err error) string {
	var embErr *provider.EmbeddingError
	if errors.As(err, &embErr) {
		return embErr.Provider
	}
	var compErr *provider.CompletionError
	if errors.As(err, &compErr) {
		return compErr.Provider
	}
	return "unknown"
}
