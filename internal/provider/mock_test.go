package provider

import (
	"context"
	"math"
	"testing"
)

func TestMockEmbedderDeterministic(t *testing.T) {
	e := NewMockEmbedder(384)
	ctx := context.Background()

	a, err := e.Embed(ctx, "hiking in the mountains")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	b, err := e.Embed(ctx, "hiking in the mountains")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(a) != 384 || len(b) != 384 {
		t.Fatalf("embedding lengths = %d, %d, want 384", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("embeddings differ at %d: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestMockEmbedderDistinctTextsDiffer(t *testing.T) {
	e := NewMockEmbedder(64)
	ctx := context.Background()

	a, _ := e.Embed(ctx, "alpha")
	b, _ := e.Embed(ctx, "beta")
	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatalf("distinct texts produced identical embeddings")
	}
}

func TestMockEmbedderUnitNorm(t *testing.T) {
	e := NewMockEmbedder(128)
	vec, err := e.Embed(context.Background(), "normalize me")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if math.Abs(math.Sqrt(norm)-1) > 1e-3 {
		t.Fatalf("norm = %v, want ~1", math.Sqrt(norm))
	}
}

func TestMockCompleterEchoesLastUserMessage(t *testing.T) {
	c := NewMockCompleter()
	reply, err := c.Complete(context.Background(), []ChatMessage{
		{Role: "system", Content: "preamble"},
		{Role: "user", Content: "earlier"},
		{Role: "assistant", Content: "sure"},
		{Role: "user", Content: "what now?"},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if reply != "You said: what now?" {
		t.Fatalf("reply = %q", reply)
	}
}
