package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"rag-chatbot-backend/models"

	"github.com/google/generative-ai-go/genai"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
)

// ErrGeminiUnavailable is returned while the Gemini circuit breaker is open.
var ErrGeminiUnavailable = errors.New("gemini circuit breaker open")

// GeminiCompleter implements Completer on top of the Gemini chat API. The
// system message becomes the system instruction and earlier turns the chat
// history.
type GeminiCompleter struct {
	client      *genai.Client
	breaker     *gobreaker.CircuitBreaker
	rateLimiter *rate.Limiter
	quota       *DailyQuota
}

func NewGeminiCompleter(ctx context.Context, apiKey, tier string, opts ...GeminiOption) (*GeminiCompleter, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	limits := getRateLimits(tier)
	return &GeminiCompleter{
		client:      client,
		breaker:     newBreaker("GeminiAPI"),
		rateLimiter: rate.NewLimiter(rate.Limit(float64(limits.RPM)*0.9/60.0), max(1, limits.RPM/10)),
		quota:       applyGeminiOptions(opts).quota,
	}, nil
}

func (gc *GeminiCompleter) Complete(ctx context.Context, model string, prompt Prompt, opts CompletionOptions) (string, error) {
	tracer := otel.Tracer("gemini-client")
	ctx, span := tracer.Start(ctx, "gemini.generate_content")
	defer span.End()
	span.SetAttributes(
		attribute.String("gemini.model", model),
		attribute.String("llm.prompt_kind", prompt.Kind().String()),
	)

	gm := gc.client.GenerativeModel(model)
	if opts.MaxTokens > 0 {
		gm.SetMaxOutputTokens(int32(opts.MaxTokens))
	}
	if opts.Temperature != nil {
		gm.SetTemperature(float32(*opts.Temperature))
	}
	if opts.TopP != nil {
		gm.SetTopP(float32(*opts.TopP))
	}
	gm.StopSequences = opts.Stop

	system, history, last, err := splitForGemini(prompt.Messages())
	if err != nil {
		return "", err
	}
	if system != "" {
		gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	cs := gm.StartChat()
	cs.History = history

	if err := gc.quota.Allow(ctx); err != nil {
		return "", err
	}
	if err := gc.rateLimiter.Wait(ctx); err != nil {
		return "", err
	}

	result, err := gc.breaker.Execute(func() (interface{}, error) {
		return cs.SendMessage(ctx, genai.Text(last))
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			span.SetAttributes(attribute.Bool("gemini.circuit_breaker_open", true))
			return "", ErrGeminiUnavailable
		}
		span.SetAttributes(attribute.Bool("gemini.error", true))
		return "", fmt.Errorf("gemini generate: %w", err)
	}

	resp := result.(*genai.GenerateContentResponse)
	if resp.UsageMetadata != nil {
		span.SetAttributes(attribute.Int("gemini.total_tokens", int(resp.UsageMetadata.TotalTokenCount)))
	}

	text := responseText(resp)
	if text == "" {
		return "", &MalformedResponseError{Reason: "no text candidates"}
	}
	return text, nil
}

// splitForGemini maps a chat message list onto the Gemini shape: one system
// instruction, a history of user/model contents and the final user message.
func splitForGemini(msgs []Message) (string, []*genai.Content, string, error) {
	var system []string
	var history []*genai.Content
	for _, m := range msgs {
		switch m.Role {
		case models.RoleSystem:
			system = append(system, m.Content)
		case models.RoleAssistant:
			history = append(history, &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(m.Content)}})
		default:
			history = append(history, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(m.Content)}})
		}
	}
	if len(history) == 0 || history[len(history)-1].Role != "user" {
		return "", nil, "", errors.New("prompt must end with a user message")
	}

	last := history[len(history)-1].Parts[0].(genai.Text)
	return strings.Join(system, "\n\n"), history[:len(history)-1], string(last), nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	var sb strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
		// first candidate only
		break
	}
	return sb.String()
}

// Close the client
func (gc *GeminiCompleter) Close() error {
	if gc.client != nil {
		return gc.client.Close()
	}
	return nil
}
