package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
)

func TestAppendCreatesLedgerWithCursorZero(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	if err := s.Append(ctx, "u1", Message{Role: RoleUser, Content: "hello"}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	cur, err := s.Cursor(ctx, "u1")
	if err != nil {
		t.Fatalf("Cursor() error = %v", err)
	}
	if cur != 0 {
		t.Fatalf("cursor after first append = %d, want 0", cur)
	}
}

func TestCursorUnknownUserIsDisabledSentinel(t *testing.T) {
	s := NewInMemoryStore()

	cur, err := s.Cursor(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("Cursor() error = %v", err)
	}
	if cur != CursorDisabled {
		t.Fatalf("cursor for unknown user = %d, want %d", cur, CursorDisabled)
	}
}

func TestReadAllPreservesAppendOrder(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		msg := Message{Role: RoleUser, Content: fmt.Sprintf("msg-%d", i)}
		if err := s.Append(ctx, "u1", msg); err != nil {
			t.Fatalf("Append(%d) error = %v", i, err)
		}
	}

	msgs, err := s.ReadAll(ctx, "u1")
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(msgs) != 5 {
		t.Fatalf("len(ReadAll()) = %d, want 5", len(msgs))
	}
	for i, m := range msgs {
		if want := fmt.Sprintf("msg-%d", i); m.Content != want {
			t.Fatalf("msgs[%d].Content = %q, want %q", i, m.Content, want)
		}
		if m.ID == "" {
			t.Fatalf("msgs[%d].ID should be assigned", i)
		}
		if m.CreatedAt.IsZero() {
			t.Fatalf("msgs[%d].CreatedAt should be assigned", i)
		}
	}
}

func TestReadAllUnknownUserIsEmpty(t *testing.T) {
	s := NewInMemoryStore()
	msgs, err := s.ReadAll(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("len(ReadAll()) = %d, want 0", len(msgs))
	}
}

func TestSetCursorDoesNotTouchMessages(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if err := s.Append(ctx, "u1", Message{Role: RoleUser, Content: fmt.Sprintf("m%d", i)}); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}
	before, _ := s.ReadAll(ctx, "u1")

	if err := s.SetCursor(ctx, "u1", CursorDisabled); err != nil {
		t.Fatalf("SetCursor() error = %v", err)
	}
	if err := s.SetCursor(ctx, "u1", 3); err != nil {
		t.Fatalf("SetCursor() error = %v", err)
	}

	after, err := s.ReadAll(ctx, "u1")
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(after) != len(before) {
		t.Fatalf("ledger length changed: %d -> %d", len(before), len(after))
	}
	for i := range after {
		if after[i].Content != before[i].Content {
			t.Fatalf("ledger reordered at %d: %q -> %q", i, before[i].Content, after[i].Content)
		}
	}
}

func TestConcurrentAppendsLoseNothing(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	const n = 64
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := s.Append(ctx, "u1", Message{Role: RoleUser, Content: fmt.Sprintf("c%d", i)}); err != nil {
				t.Errorf("Append() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	msgs, err := s.ReadAll(ctx, "u1")
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(msgs) != n {
		t.Fatalf("len(ReadAll()) = %d, want %d", len(msgs), n)
	}
}

func TestReadAllReturnsCopy(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	if err := s.Append(ctx, "u1", Message{Role: RoleUser, Content: "original"}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	msgs, _ := s.ReadAll(ctx, "u1")
	msgs[0].Content = "mutated"

	again, _ := s.ReadAll(ctx, "u1")
	if again[0].Content != "original" {
		t.Fatalf("stored message mutated through ReadAll slice")
	}
}
