package ranker

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/ent0n29/mnemo/internal/memory"
	"github.com/ent0n29/mnemo/internal/provider"
)

// Ranker scores a user's stored messages against a query embedding and
// returns the most relevant ones. It reads the full ledger on every call;
// no incremental index is kept.
type Ranker struct {
	store    memory.Store
	embedder provider.Embedder
}

func New(store memory.Store, embedder provider.Embedder) *Ranker {
	return &Ranker{store: store, embedder: embedder}
}

// TopK returns up to k stored messages, most similar to the query first.
// Messages without an embedding (assistant replies) are skipped, never an
// error; an empty result is a valid answer. Ties keep insertion order.
func (r *Ranker) TopK(ctx context.Context, userID, query string, k int) ([]memory.Message, error) {
	if k <= 0 {
		return nil, nil
	}

	queryVec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	msgs, err := r.store.ReadAll(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}

	type scored struct {
		msg memory.Message
		sim float64
	}
	candidates := make([]scored, 0, len(msgs))
	for _, m := range msgs {
		if !m.Embedded() {
			continue
		}
		candidates = append(candidates, scored{msg: m, sim: CosineSimilarity(queryVec, m.Embedding)})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].sim > candidates[j].sim
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}

	out := make([]memory.Message, len(candidates))
	for i, c := range candidates {
		out[i] = c.msg
	}
	return out, nil
}

// CosineSimilarity is 1 - cosine distance, in roughly [-1, 1]. A zero
// vector on either side scores 0.
func CosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
