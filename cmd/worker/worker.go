package main

import (
	"context"
	"log"

	"rag-chatbot-backend/internal/ai"
	"rag-chatbot-backend/internal/config"
	"rag-chatbot-backend/internal/logger"
	"rag-chatbot-backend/internal/queue"
	"rag-chatbot-backend/internal/telemetry"
	"rag-chatbot-backend/services"

	"github.com/hibiken/asynq"
)

const concurrency = 4

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.InitLogger(cfg)

	if cfg.RedisURL == "" {
		log.Fatal("REDIS_URL is required for the ingestion worker")
	}

	shutdownTracer, err := telemetry.InitTracer(telemetry.ServiceName+"-worker", cfg.OTLPEndpoint)
	if err != nil {
		log.Fatal("Failed to initialize tracing:", err)
	}
	defer shutdownTracer()

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		logger.Warn("Metrics disabled", "error", err)
	}

	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer rdb.Close()

	ctx := context.Background()
	embedder, err := ai.NewEmbedder(ctx, cfg, ai.WithDailyQuota(ai.NewTierQuota(rdb, "gemini", cfg.GeminiTier)))
	if err != nil {
		log.Fatal("Failed to create embedder:", err)
	}

	ld, err := services.NewLoader(cfg)
	if err != nil {
		log.Fatal("Failed to create document loader:", err)
	}
	store, err := services.NewStore(cfg, embedder, metrics)
	if err != nil {
		log.Fatal("Failed to create vector index:", err)
	}
	if err := services.LoadOrBuild(ctx, store, ld, cfg.DataDir); err != nil {
		log.Fatal("Failed to initialize vector index:", err)
	}

	redisOpt, err := config.AsynqRedisOpt(cfg)
	if err != nil {
		log.Fatal("Failed to configure task queue:", err)
	}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			// writes to one index are serialized anyway
			Concurrency: concurrency,
			Queues: map[string]int{
				queue.QueueCritical: 6,
				queue.QueueDefault:  3,
				queue.QueueLow:      1,
			},
			StrictPriority: true,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				logger.Error("Task failed",
					"type", task.Type(),
					"retry", retried,
					"max_retry", maxRetry,
					"error", err,
				)
			}),
		},
	)

	processor := queue.NewTaskProcessor(ld, store)
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeIngest, processor.HandleIngest)

	client := asynq.NewClient(redisOpt)
	defer client.Close()

	scheduler := services.NewScheduler()
	if err := scheduler.ScheduleInterval(services.TagIngestScan, cfg.IngestInterval, services.IngestScanJob(ld, store, client, cfg.DataDir)); err != nil {
		log.Fatal("Failed to schedule ingest scan:", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	logger.Info("Starting ingestion worker",
		"concurrency", concurrency,
		"queues", "critical(6), default(3), low(1)",
		"data_dir", cfg.DataDir,
		"scan_interval", cfg.IngestInterval,
	)

	// Run blocks until SIGINT or SIGTERM
	if err := server.Run(mux); err != nil {
		log.Fatal("Failed to start worker:", err)
	}
}
