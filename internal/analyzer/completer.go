package analyzer

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	"github.com/fyrsmithlabs/pipemedic/internal/config"
)

// Completer is the language-model capability the classifier depends on.
// Everything past construction sees only this interface; the provider
// choice is a construction-time concern.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

const (
	completionTemperature = 0.3
	completionMaxTokens   = 2000
)

// modelCompleter adapts a langchaingo model to the Completer interface.
type modelCompleter struct {
	model llms.Model
}

func (m *modelCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := m.model.GenerateContent(ctx,
		[]llms.MessageContent{
			llms.TextParts(schema.ChatMessageTypeSystem, system),
			llms.TextParts(schema.ChatMessageTypeHuman, user),
		},
		llms.WithTemperature(completionTemperature),
		llms.WithMaxTokens(completionMaxTokens),
	)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("model returned no choices")
	}
	return resp.Choices[0].Content, nil
}

// NewCompleter builds the configured provider's Completer. Returns
// (nil, nil) when no provider is configured: the classifier treats a nil
// Completer as "model unavailable" and degrades every classification.
func NewCompleter(cfg config.AIConfig) (Completer, error) {
	switch cfg.Provider {
	case "":
		return nil, nil
	case "openai":
		model, err := openai.New(
			openai.WithToken(cfg.APIKey.Value()),
			openai.WithModel(cfg.ModelOrDefault()),
		)
		if err != nil {
			return nil, fmt.Errorf("construct openai client: %w", err)
		}
		return &modelCompleter{model: model}, nil
	case "anthropic":
		model, err := anthropic.New(
			anthropic.WithToken(cfg.APIKey.Value()),
			anthropic.WithModel(cfg.ModelOrDefault()),
		)
		if err != nil {
			return nil, fmt.Errorf("construct anthropic client: %w", err)
		}
		return &modelCompleter{model: model}, nil
	default:
		return nil, fmt.Errorf("unsupported AI provider %q", cfg.Provider)
	}
}
