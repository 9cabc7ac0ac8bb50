// Package llm adapts the streaming APIs of several model providers to a
// single event contract.
package llm

import (
	"context"
	"sort"

	"github.com/Fenix46/VibeCLI/errors"
)

// Factory builds an adapter for a model of one backend.
type Factory func(ctx context.Context, model string) (Adapter, error)

var factories = map[string]Factory{
	"anthropic": func(ctx context.Context, model string) (Adapter, error) { return NewAnthropicAdapter(ctx, model) },
	"openai":    func(ctx context.Context, model string) (Adapter, error) { return NewOpenAIAdapter(ctx, model) },
	"gemini":    func(ctx context.Context, model string) (Adapter, error) { return NewGeminiAdapter(ctx, model) },
	"bedrock":   func(ctx context.Context, model string) (Adapter, error) { return NewBedrockAdapter(ctx, model) },
	"mock":      func(ctx context.Context, model string) (Adapter, error) { return &MockAdapter{}, nil },
}

// DefaultModels holds the model used when none is configured.
var DefaultModels = map[string]string{
	"anthropic": "claude-sonnet-4-0",
	"openai":    "gpt-4o",
	"gemini":    "gemini-2.0-flash-001",
	"bedrock":   "anthropic.claude-3-5-sonnet-20240620-v1:0",
	"mock":      "mock",
}

// New returns the adapter registered for backend.
func New(ctx context.Context, backend, model string) (Adapter, error) {
	f, ok := factories[backend]
	if !ok {
		return nil, errors.Wrapf(errors.ErrUnsupportedBackend, "'%s'", backend)
	}
	if model == "" {
		model = DefaultModels[backend]
	}
	return f(ctx, model)
}

// Backends lists the supported backend ids.
func Backends() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
