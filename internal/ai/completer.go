package ai

import (
	"context"
	"fmt"

	"rag-chatbot-backend/internal/config"
	"rag-chatbot-backend/internal/telemetry"
)

// NewCompleter builds the generation client selected by LLM_PROVIDER.
// Gemini options only apply to the gemini provider.
func NewCompleter(ctx context.Context, cfg *config.Config, metrics *telemetry.Metrics, opts ...GeminiOption) (Completer, error) {
	switch cfg.LLMProvider {
	case "openrouter", "":
		policy, err := NewRotationPolicy(cfg.OpenRouterAPIKeys)
		if err != nil {
			return nil, err
		}
		return NewClient(policy,
			WithBaseURL(cfg.OpenRouterBaseURL),
			WithTimeout(cfg.LLMTimeout),
			WithAppHeaders(cfg.OpenRouterReferer, cfg.OpenRouterTitle),
			WithMetrics(metrics),
		), nil
	case "gemini":
		return NewGeminiCompleter(ctx, cfg.GeminiAPIKey, cfg.GeminiTier, opts...)
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s", cfg.LLMProvider)
	}
}

// DefaultCompletionOptions are the sampling settings from the config.
func DefaultCompletionOptions(cfg *config.Config) CompletionOptions {
	return CompletionOptions{
		MaxTokens:   cfg.MaxTokens,
		Temperature: Float(cfg.Temperature),
		TopP:        Float(cfg.TopP),
	}
}
