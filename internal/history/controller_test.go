package history

import (
	"context"
	"fmt"
	"testing"

	"github.com/ent0n29/mnemo/internal/memory"
)

func seed(t *testing.T, store memory.Store, userID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		msg := memory.Message{Role: memory.RoleUser, Content: fmt.Sprintf("m%d", i)}
		if err := store.Append(context.Background(), userID, msg); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}
}

func TestDisableSetsSentinel(t *testing.T) {
	store := memory.NewInMemoryStore()
	c := New(store)
	ctx := context.Background()
	seed(t, store, "u1", 3)

	if err := c.Disable(ctx, "u1"); err != nil {
		t.Fatalf("Disable() error = %v", err)
	}

	cur, err := store.Cursor(ctx, "u1")
	if err != nil {
		t.Fatalf("Cursor() error = %v", err)
	}
	if cur != memory.CursorDisabled {
		t.Fatalf("cursor = %d, want %d", cur, memory.CursorDisabled)
	}
	enabled, err := c.IsEnabled(ctx, "u1")
	if err != nil {
		t.Fatalf("IsEnabled() error = %v", err)
	}
	if enabled {
		t.Fatalf("IsEnabled() = true after Disable()")
	}
}

func TestEnableRecordsLastIndex(t *testing.T) {
	store := memory.NewInMemoryStore()
	c := New(store)
	ctx := context.Background()
	seed(t, store, "u1", 4)

	if err := c.Disable(ctx, "u1"); err != nil {
		t.Fatalf("Disable() error = %v", err)
	}
	if err := c.Enable(ctx, "u1"); err != nil {
		t.Fatalf("Enable() error = %v", err)
	}

	cur, _ := store.Cursor(ctx, "u1")
	if cur != 3 {
		t.Fatalf("cursor = %d, want 3 (last index)", cur)
	}
	enabled, _ := c.IsEnabled(ctx, "u1")
	if !enabled {
		t.Fatalf("IsEnabled() = false after Enable()")
	}
}

func TestEnableEmptyLedgerRecordsMinusOne(t *testing.T) {
	store := memory.NewInMemoryStore()
	c := New(store)
	ctx := context.Background()

	if err := c.Enable(ctx, "fresh"); err != nil {
		t.Fatalf("Enable() error = %v", err)
	}
	cur, _ := store.Cursor(ctx, "fresh")
	if cur != -1 {
		t.Fatalf("cursor = %d, want -1 for empty ledger", cur)
	}
}

func TestEnableIsIdempotentWithoutAppends(t *testing.T) {
	store := memory.NewInMemoryStore()
	c := New(store)
	ctx := context.Background()
	seed(t, store, "u1", 2)

	if err := c.Enable(ctx, "u1"); err != nil {
		t.Fatalf("Enable() error = %v", err)
	}
	first, _ := store.Cursor(ctx, "u1")
	if err := c.Enable(ctx, "u1"); err != nil {
		t.Fatalf("Enable() error = %v", err)
	}
	second, _ := store.Cursor(ctx, "u1")

	if first != second {
		t.Fatalf("cursor changed between idempotent enables: %d -> %d", first, second)
	}
}

func TestDisableThenEnableLeavesLedgerIntact(t *testing.T) {
	store := memory.NewInMemoryStore()
	c := New(store)
	ctx := context.Background()
	seed(t, store, "u1", 5)

	before, _ := store.ReadAll(ctx, "u1")
	if err := c.Disable(ctx, "u1"); err != nil {
		t.Fatalf("Disable() error = %v", err)
	}
	if err := c.Enable(ctx, "u1"); err != nil {
		t.Fatalf("Enable() error = %v", err)
	}
	after, _ := store.ReadAll(ctx, "u1")

	if len(after) != len(before) {
		t.Fatalf("ledger length changed: %d -> %d", len(before), len(after))
	}
	for i := range after {
		if after[i].Content != before[i].Content {
			t.Fatalf("ledger changed at %d: %q -> %q", i, before[i].Content, after[i].Content)
		}
	}
}
