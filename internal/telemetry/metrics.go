package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all application metrics
type Metrics struct {
	RequestCounter     metric.Int64Counter
	RequestDuration    metric.Float64Histogram
	AnswersTotal       metric.Int64Counter
	AnswerDuration     metric.Float64Histogram
	RetrievalDuration  metric.Float64Histogram
	CredentialRotation metric.Int64Counter
	ChunksIndexed      metric.Int64Counter
}

// InitMetrics initializes all application metrics against the global meter
// provider, which is a no-op until an SDK provider is installed.
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter(ServiceName)

	requestCounter, err := meter.Int64Counter(
		"http.requests.total",
		metric.WithDescription("Total HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"http.request.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	answersTotal, err := meter.Int64Counter(
		"rag.answers.total",
		metric.WithDescription("Answered questions by model and outcome"),
	)
	if err != nil {
		return nil, err
	}

	answerDuration, err := meter.Float64Histogram(
		"rag.answer.duration",
		metric.WithDescription("End to end answer latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	retrievalDuration, err := meter.Float64Histogram(
		"rag.retrieval.duration",
		metric.WithDescription("Retrieval latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	credentialRotation, err := meter.Int64Counter(
		"llm.credential.rotations",
		metric.WithDescription("Credential rotations after failed LLM requests"),
	)
	if err != nil {
		return nil, err
	}

	chunksIndexed, err := meter.Int64Counter(
		"index.chunks.indexed",
		metric.WithDescription("Chunks embedded into the vector index"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		RequestCounter:     requestCounter,
		RequestDuration:    requestDuration,
		AnswersTotal:       answersTotal,
		AnswerDuration:     answerDuration,
		RetrievalDuration:  retrievalDuration,
		CredentialRotation: credentialRotation,
		ChunksIndexed:      chunksIndexed,
	}, nil
}

// RecordRequest records HTTP request metrics
func (m *Metrics) RecordRequest(method, path, status string, duration float64) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("http.method", method),
		attribute.String("http.path", path),
		attribute.String("http.status", status),
	}

	m.RequestCounter.Add(context.Background(), 1, metric.WithAttributes(attrs...))
	m.RequestDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
}

// RecordAnswer records one pipeline invocation.
func (m *Metrics) RecordAnswer(ctx context.Context, model string, ok bool, duration float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("llm.model", model),
		attribute.Bool("rag.success", ok),
	)
	m.AnswersTotal.Add(ctx, 1, attrs)
	m.AnswerDuration.Record(ctx, duration, attrs)
}

func (m *Metrics) RecordRetrieval(ctx context.Context, searchType string, duration float64) {
	if m == nil {
		return
	}
	m.RetrievalDuration.Record(ctx, duration, metric.WithAttributes(attribute.String("rag.search_type", searchType)))
}

func (m *Metrics) RecordRotation(ctx context.Context, status int) {
	if m == nil {
		return
	}
	m.CredentialRotation.Add(ctx, 1, metric.WithAttributes(attribute.Int("http.status_code", status)))
}

func (m *Metrics) RecordChunksIndexed(ctx context.Context, backend string, n int) {
	if m == nil {
		return
	}
	m.ChunksIndexed.Add(ctx, int64(n), metric.WithAttributes(attribute.String("index.backend", backend)))
}
