// Package rag answers questions from the vector index: retrieval, prompt
// assembly, generation, answer extraction and source attribution.
package rag

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rag-chatbot-backend/internal/ai"
	"rag-chatbot-backend/internal/logger"
	"rag-chatbot-backend/internal/session"
	"rag-chatbot-backend/internal/telemetry"
	"rag-chatbot-backend/models"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const DefaultSourceLimit = 1

// Reply is the outcome of one answered question.
type Reply struct {
	Text    string
	Sources []models.Source
}

// Recorder stores a transcript of every answer attempt.
type Recorder interface {
	Record(ctx context.Context, t *models.Transcript) error
}

// Pipeline answers questions with one chat model.
type Pipeline struct {
	model       string
	retriever   *Retriever
	completer   ai.Completer
	system      string
	options     ai.CompletionOptions
	sourceLimit int
	recorder    Recorder
	metrics     *telemetry.Metrics
}

type PipelineOption func(*Pipeline)

func WithSystemInstructions(s string) PipelineOption {
	return func(p *Pipeline) { p.system = s }
}

func WithCompletionOptions(o ai.CompletionOptions) PipelineOption {
	return func(p *Pipeline) { p.options = o }
}

func WithSourceLimit(n int) PipelineOption {
	return func(p *Pipeline) { p.sourceLimit = n }
}

func WithRecorder(r Recorder) PipelineOption {
	return func(p *Pipeline) { p.recorder = r }
}

func WithMetrics(m *telemetry.Metrics) PipelineOption {
	return func(p *Pipeline) { p.metrics = m }
}

func NewPipeline(model string, retriever *Retriever, completer ai.Completer, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		model:       model,
		retriever:   retriever,
		completer:   completer,
		system:      DefaultSystemInstructions,
		sourceLimit: DefaultSourceLimit,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) Model() string { return p.model }

// Ready reports whether the pipeline has an index to retrieve from.
func (p *Pipeline) Ready() bool { return p.retriever.Ready() }

// Answer runs one question through the pipeline within sess. Only one call per
// session runs at a time. The question is recorded in the history even when
// the answer fails; any failure is returned as *GenerationUnavailableError.
func (p *Pipeline) Answer(ctx context.Context, sess *session.Session, question string) (Reply, error) {
	sess.Lock()
	defer sess.Unlock()

	tracer := otel.Tracer("rag")
	ctx, span := tracer.Start(ctx, "rag.answer")
	defer span.End()
	span.SetAttributes(
		attribute.String("rag.model", p.model),
		attribute.String("rag.session_id", sess.ID),
	)

	start := time.Now()
	prior := sess.History()
	sess.Append(models.RoleUser, question)

	hits, err := p.retriever.Retrieve(ctx, question)
	if err != nil {
		return p.fail(ctx, span, sess, question, start, fmt.Errorf("retrieve: %w", err))
	}

	prompt := Assemble(p.system, chunksOf(hits), prior, question)

	raw, err := p.completer.Complete(ctx, p.model, prompt, p.options)
	if err != nil {
		return p.fail(ctx, span, sess, question, start, fmt.Errorf("complete: %w", err))
	}

	answer := ExtractAnswer(raw)
	sess.Append(models.RoleAssistant, answer)

	reply := Reply{Text: answer, Sources: SourcesFromHits(hits, p.sourceLimit)}

	elapsed := time.Since(start)
	span.SetAttributes(attribute.Int("rag.hits", len(hits)))
	p.metrics.RecordAnswer(ctx, p.model, true, elapsed.Seconds())
	p.record(ctx, &models.Transcript{
		SessionID: sess.ID,
		Model:     p.model,
		Question:  question,
		Reply:     reply.Text,
		Sources:   reply.Sources,
		LatencyMS: elapsed.Milliseconds(),
	})

	logger.Debug("Question answered",
		"model", p.model,
		"session_id", sess.ID,
		"hits", len(hits),
		"duration_ms", elapsed.Milliseconds(),
	)
	return reply, nil
}

func (p *Pipeline) fail(ctx context.Context, span trace.Span, sess *session.Session, question string, start time.Time, cause error) (Reply, error) {
	elapsed := time.Since(start)
	span.RecordError(cause)
	span.SetStatus(codes.Error, "generation unavailable")

	p.metrics.RecordAnswer(ctx, p.model, false, elapsed.Seconds())
	p.record(ctx, &models.Transcript{
		SessionID: sess.ID,
		Model:     p.model,
		Question:  question,
		Reply:     UnavailableMessage,
		Failed:    true,
		LatencyMS: elapsed.Milliseconds(),
	})

	attrs := []any{"model", p.model, "session_id", sess.ID, "error", cause}
	switch {
	case errors.Is(cause, ai.ErrAllCredentialsExhausted):
		logger.Error("All LLM credentials failed", attrs...)
	case errors.Is(cause, ErrRetrieverNotReady):
		logger.Error("Answer requested before the index was ready", attrs...)
	default:
		logger.Error("Answer generation failed", attrs...)
	}

	return Reply{}, &GenerationUnavailableError{Cause: cause}
}

// record stores the transcript without letting a storage failure affect the
// answer.
func (p *Pipeline) record(ctx context.Context, t *models.Transcript) {
	if p.recorder == nil {
		return
	}
	if err := p.recorder.Record(context.WithoutCancel(ctx), t); err != nil {
		logger.Warn("Failed to record transcript", "session_id", t.SessionID, "error", err)
	}
}
