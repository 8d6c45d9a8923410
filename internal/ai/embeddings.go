package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rag-chatbot-backend/internal/config"
	"rag-chatbot-backend/internal/logger"

	"github.com/google/generative-ai-go/genai"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
)

// geminiMaxBatch is the BatchEmbedContents request limit.
const geminiMaxBatch = 100

// GeminiEmbedder embeds text with a Google embedding model (text-embedding-004
// by default). Documents use the retrieval-document task type and queries the
// retrieval-query one.
type GeminiEmbedder struct {
	client      *genai.Client
	model       string
	breaker     *gobreaker.CircuitBreaker
	rateLimiter *rate.Limiter
	quota       *DailyQuota
}

func NewGeminiEmbedder(ctx context.Context, apiKey, model, tier string, opts ...GeminiOption) (*GeminiEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("missing GEMINI_API_KEY for embeddings")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	limits := getRateLimits(tier)
	return &GeminiEmbedder{
		client:      client,
		model:       model,
		breaker:     newBreaker("GeminiEmbeddings"),
		rateLimiter: rate.NewLimiter(rate.Limit(float64(limits.RPM)*0.9/60.0), max(1, limits.RPM/10)),
		quota:       applyGeminiOptions(opts).quota,
	}, nil
}

// NewEmbedder picks the embedding provider named in the config.
func NewEmbedder(ctx context.Context, cfg *config.Config, opts ...GeminiOption) (Embedder, error) {
	switch cfg.EmbeddingsProvider {
	case "google", "":
		return NewGeminiEmbedder(ctx, cfg.GeminiAPIKey, cfg.GoogleEmbeddingsModel, cfg.GeminiTier, opts...)
	case "openai":
		return NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.OpenAIEmbeddingsModel, WithEmbeddingsBaseURL(cfg.OpenAIBaseURL)), nil
	default:
		return nil, fmt.Errorf("unknown embeddings provider: %s", cfg.EmbeddingsProvider)
	}
}

func (g *GeminiEmbedder) ModelName() string { return g.model }

func (g *GeminiEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	tracer := otel.Tracer("gemini-client")
	ctx, span := tracer.Start(ctx, "gemini.embed_documents")
	defer span.End()
	span.SetAttributes(
		attribute.String("gemini.model", g.model),
		attribute.Int("gemini.inputs", len(texts)),
	)

	em := g.client.EmbeddingModel(g.model)
	em.TaskType = genai.TaskTypeRetrievalDocument

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += geminiMaxBatch {
		end := min(start+geminiMaxBatch, len(texts))

		batch := em.NewBatch()
		for _, t := range texts[start:end] {
			batch.AddContent(genai.Text(t))
		}

		if err := g.quota.Allow(ctx); err != nil {
			return nil, err
		}
		if err := g.rateLimiter.Wait(ctx); err != nil {
			return nil, err
		}
		result, err := g.breaker.Execute(func() (interface{}, error) {
			return em.BatchEmbedContents(ctx, batch)
		})
		if err != nil {
			span.SetAttributes(attribute.Bool("gemini.error", true))
			return nil, fmt.Errorf("batch embed failed: %w", err)
		}

		resp := result.(*genai.BatchEmbedContentsResponse)
		if len(resp.Embeddings) != end-start {
			return nil, fmt.Errorf("batch embed returned %d embeddings for %d inputs", len(resp.Embeddings), end-start)
		}
		for _, e := range resp.Embeddings {
			out = append(out, e.Values)
		}
	}

	return out, nil
}

func (g *GeminiEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	em := g.client.EmbeddingModel(g.model)
	em.TaskType = genai.TaskTypeRetrievalQuery

	if err := g.quota.Allow(ctx); err != nil {
		return nil, err
	}
	if err := g.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}
	result, err := g.breaker.Execute(func() (interface{}, error) {
		return em.EmbedContent(ctx, genai.Text(text))
	})
	if err != nil {
		return nil, fmt.Errorf("embed query failed: %w", err)
	}

	resp := result.(*genai.EmbedContentResponse)
	if resp.Embedding == nil {
		return nil, errors.New("no embedding returned")
	}
	return resp.Embedding.Values, nil
}

func (g *GeminiEmbedder) Close() error {
	return g.client.Close()
}

type RateLimits struct {
	RPM int // Requests per minute
	RPD int // Requests per day
}

func getRateLimits(tier string) RateLimits {
	switch tier {
	case "tier1":
		return RateLimits{RPM: 1000, RPD: 10000}
	case "tier2":
		return RateLimits{RPM: 2000, RPD: 50000}
	default:
		return RateLimits{RPM: 100, RPD: 1000}
	}
}

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
}
