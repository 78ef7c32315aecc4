package memory

import (
	"context"
	"fmt"
	"time"
)

// Role tags one side of a conversational turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// CursorDisabled marks relevance retrieval as switched off for a user.
// Any other cursor value means retrieval is enabled and records the index
// of the newest message at the moment it was last (re-)enabled.
const CursorDisabled = -1

// Message is one immutable turn of dialogue. Embedding is populated only
// for user turns; assistant replies carry none and are never scored.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Embedding []float32 `json:"embedding,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Embedded reports whether the message carries an embedding vector.
func (m Message) Embedded() bool { return len(m.Embedding) > 0 }

// Store persists the append-only per-user message ledger and the history
// cursor. Nothing in this interface deletes or reorders messages.
//
// Append creates the ledger with cursor 0 (retrieval enabled) when the
// user is unknown, and must be atomic for concurrent appends to the same
// user. Cursor returns CursorDisabled for an unknown user.
type Store interface {
	Append(ctx context.Context, userID string, msg Message) error
	ReadAll(ctx context.Context, userID string) ([]Message, error)
	Cursor(ctx context.Context, userID string) (int, error)
	SetCursor(ctx context.Context, userID string, value int) error
	Close() error
}

// StoreError wraps a persistence failure. The core never retries; retry
// policy belongs to the caller.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("store %s: %v", e.Op, e.Err) }

func (e *StoreError) Unwrap() error { return e.Err }

func storeErr(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}
