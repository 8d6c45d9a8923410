package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"rag-chatbot-backend/internal/logger"
	"rag-chatbot-backend/internal/telemetry"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	DefaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
	DefaultLLMTimeout        = 60 * time.Second

	// maxErrorBody caps how much of a failed response ends up in errors and logs.
	maxErrorBody = 512
)

type chatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
	Stop        []string  `json:"stop,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Role    string  `json:"role"`
			Content *string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Code    any    `json:"code"`
	} `json:"error,omitempty"`
}

// Client talks to an OpenAI compatible chat completions endpoint (OpenRouter
// by default), rotating credentials through its RotationPolicy on failure.
type Client struct {
	baseURL    string
	httpClient *http.Client
	policy     *RotationPolicy
	referer    string
	title      string
	metrics    *telemetry.Metrics
}

type ClientOption func(*Client)

func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(baseURL, "/") }
}

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout bounds each HTTP attempt.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithAppHeaders sets the HTTP-Referer and X-Title attribution headers.
func WithAppHeaders(referer, title string) ClientOption {
	return func(c *Client) {
		c.referer = referer
		c.title = title
	}
}

func WithMetrics(m *telemetry.Metrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

func NewClient(policy *RotationPolicy, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    DefaultOpenRouterBaseURL,
		httpClient: &http.Client{Timeout: DefaultLLMTimeout},
		policy:     policy,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Policy exposes the rotation policy, mostly for inspection.
func (c *Client) Policy() *RotationPolicy { return c.policy }

// Complete sends prompt to model. A network error or non-2xx status moves the
// rotation cursor and retries immediately with the next credential, at most
// once per credential. A 2xx reply that cannot be used is returned as a
// *MalformedResponseError without rotating.
func (c *Client) Complete(ctx context.Context, model string, prompt Prompt, opts CompletionOptions) (string, error) {
	tracer := otel.Tracer("openrouter-client")
	ctx, span := tracer.Start(ctx, "llm.complete")
	defer span.End()

	span.SetAttributes(
		attribute.String("llm.model", model),
		attribute.String("llm.prompt_kind", prompt.Kind().String()),
	)

	body, err := json.Marshal(chatCompletionRequest{
		Model:       model,
		Messages:    prompt.Messages(),
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		TopP:        opts.TopP,
		Stop:        opts.Stop,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	attempts := c.policy.Len()
	for attempt := 0; attempt < attempts; attempt++ {
		key, idx := c.policy.Current()

		text, err := c.send(ctx, key, body)
		if err == nil {
			span.SetAttributes(attribute.Int("llm.attempts", attempt+1))
			return text, nil
		}

		var malformed *MalformedResponseError
		if errors.As(err, &malformed) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "malformed response")
			return "", err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			span.RecordError(ctxErr)
			span.SetStatus(codes.Error, "canceled")
			return "", fmt.Errorf("llm request canceled: %w", ctxErr)
		}

		lastErr = err
		next := c.policy.Advance(idx)

		status := 0
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			status = statusErr.StatusCode
		}
		c.metrics.RecordRotation(ctx, status)
		logger.Warn("LLM request failed, rotating credential",
			"model", model,
			"credential", idx,
			"next_credential", next,
			"status", status,
			"error", err,
		)
	}

	span.SetAttributes(attribute.Int("llm.attempts", attempts))
	span.SetStatus(codes.Error, "credentials exhausted")
	return "", fmt.Errorf("%w after %d attempts: %v", ErrAllCredentialsExhausted, attempts, lastErr)
}

func (c *Client) send(ctx context.Context, key string, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+key)
	if c.referer != "" {
		req.Header.Set("HTTP-Referer", c.referer)
	}
	if c.title != "" {
		req.Header.Set("X-Title", c.title)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(payload), maxErrorBody)}
	}

	var decoded chatCompletionResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return "", &MalformedResponseError{Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}
	if decoded.Error != nil {
		return "", &MalformedResponseError{Reason: "error object in response: " + decoded.Error.Message}
	}
	if len(decoded.Choices) == 0 {
		return "", &MalformedResponseError{Reason: "no choices"}
	}
	content := decoded.Choices[0].Message.Content
	if content == nil {
		return "", &MalformedResponseError{Reason: "choice has no message content"}
	}

	return *content, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
