// Package inference is the typed client for the external Ollama-compatible
// inference service. Every operation fails with *UnreachableError (transport)
// or *UpstreamError (the service answered with an error or an unexpected
// shape); streaming generation additionally reports *StreamError when it
// breaks after output was delivered.
package inference

import (
	"context"

	"lorad/internal/composite"
	"lorad/pkg/types"
)

// Client is the inference service surface used by the session manager.
type Client interface {
	// ListModels returns model names in upstream order.
	ListModels(ctx context.Context) ([]types.ModelInfo, error)
	// CreateComposite materializes d upstream. Not idempotent by name: callers
	// must not re-create an existing model.
	CreateComposite(ctx context.Context, d composite.Descriptor) error
	// DeleteModel removes a model; an absent model yields IsNotFound.
	DeleteModel(ctx context.Context, name string) error
	// ConfirmLoaded forces the model into the upstream's resident set with a
	// one-token probe.
	ConfirmLoaded(ctx context.Context, name string) error
	// Unload asks the upstream to evict the model from memory (zero keep-alive).
	Unload(ctx context.Context, name string) error
	// Generate streams deltas to fn until the upstream reports completion.
	// An error returned by fn stops the stream and is returned unchanged.
	Generate(ctx context.Context, req GenerateRequest, fn DeltaFunc) error
	// GenerateOnce runs a single-shot generation and returns the full text.
	GenerateOnce(ctx context.Context, req GenerateRequest) (string, error)
}

// GenerateRequest is a generation call against an already resolved model name.
type GenerateRequest struct {
	Model     string
	Prompt    string
	MaxTokens int
}

// DeltaFunc receives generated fragments in order.
type DeltaFunc func(types.TextDelta) error
