package provider

import "context"

// ChatMessage is one role-tagged line of a completion prompt. Only role and
// content ever leave the process; embeddings are never sent outward.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Embedder turns text into a fixed-length vector for similarity scoring.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// Completer turns an ordered, role-tagged prompt into a reply.
type Completer interface {
	Complete(ctx context.Context, messages []ChatMessage) (string, error)
}
