package llm

import (
	"context"
	"errors"
)

// Client is the contract the core consumes from the structured-extraction
// service: a raw completion that is expected, but not guaranteed, to contain a
// JSON object. Callers must parse defensively.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Embedder is the contract for the embedding service: text to a fixed-length
// unit vector. Implementations may be unavailable; callers must degrade.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ErrEmbedderUnavailable signals that no embedding backend is configured.
var ErrEmbedderUnavailable = errors.New("embedding service unavailable")

// ClientFunc adapts a function to the Client interface, mostly for tests.
type ClientFunc func(ctx context.Context, prompt string) (string, error)

func (f ClientFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}
