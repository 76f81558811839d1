package manager

import "context"

// ModelHandle is a warm in-process model. Handles are owned exclusively by
// the model cache; a handle is never mutated by two callers concurrently.
type ModelHandle interface {
	// Infer runs one inference over input and returns the produced text.
	// Implementations must return promptly when the context is canceled.
	Infer(ctx context.Context, input string, params InferParams) (string, error)
	// Close releases the model's memory. Called by the cache on eviction.
	Close() error
}

// ModelLoader performs the expensive load of a warm model. Invoked by the
// cache at most once per identifier while the result stays cached.
type ModelLoader func(ctx context.Context) (ModelHandle, error)

// InferParams captures generation parameters for in-process inference.
type InferParams struct {
	SystemPrompt string
	MaxTokens    int
	Temperature  float32
	TopP         float32
}
