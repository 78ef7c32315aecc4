package provider

import "fmt"

// EmbeddingError is a typed failure from the embedding provider.
type EmbeddingError struct {
	Provider string
	Err      error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding provider %s: %v", e.Provider, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// CompletionError is a typed failure from the completion provider.
type CompletionError struct {
	Provider string
	Err      error
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("completion provider %s: %v", e.Provider, e.Err)
}

func (e *CompletionError) Unwrap() error { return e.Err }
