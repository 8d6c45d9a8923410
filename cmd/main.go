package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rag-chatbot-backend/internal/ai"
	"rag-chatbot-backend/internal/config"
	"rag-chatbot-backend/internal/logger"
	"rag-chatbot-backend/internal/rag"
	"rag-chatbot-backend/internal/session"
	"rag-chatbot-backend/internal/telemetry"
	"rag-chatbot-backend/routes"
	"rag-chatbot-backend/services"
	"rag-chatbot-backend/utils"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.InitLogger(cfg)

	shutdownTracer, err := telemetry.InitTracer(telemetry.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		log.Fatal("Failed to initialize tracing:", err)
	}
	defer shutdownTracer()

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		logger.Warn("Metrics disabled", "error", err)
	}

	ctx := context.Background()

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = config.NewRedisClient(cfg)
		if err != nil {
			log.Fatal("Failed to connect to Redis:", err)
		}
		defer rdb.Close()
	}

	var geminiOpts []ai.GeminiOption
	if rdb != nil {
		geminiOpts = append(geminiOpts, ai.WithDailyQuota(ai.NewTierQuota(rdb, "gemini", cfg.GeminiTier)))
	}

	embedder, err := ai.NewEmbedder(ctx, cfg, geminiOpts...)
	if err != nil {
		log.Fatal("Failed to create embedder:", err)
	}
	completer, err := ai.NewCompleter(ctx, cfg, metrics, geminiOpts...)
	if err != nil {
		log.Fatal("Failed to create LLM client:", err)
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

	retriever, err := rag.NewRetriever(store, embedder,
		rag.WithK(cfg.RetrieverK),
		rag.WithSearchType(cfg.SearchType),
		rag.WithMMRLambda(cfg.MMRLambda),
		rag.WithRetrieverMetrics(metrics),
	)
	if err != nil {
		log.Fatal("Failed to create retriever:", err)
	}

	pipelineOpts := []rag.PipelineOption{
		rag.WithCompletionOptions(ai.DefaultCompletionOptions(cfg)),
		rag.WithSourceLimit(cfg.SourceLimit),
		rag.WithMetrics(metrics),
	}

	deps := routes.Dependencies{
		Config:  cfg,
		Store:   store,
		Scanner: ld,
		Metrics: metrics,
	}

	if cfg.MongoURI != "" {
		mongoClient, err := config.ConnectMongoDB(cfg)
		if err != nil {
			log.Fatal("Failed to connect to MongoDB:", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			mongoClient.Disconnect(ctx)
		}()

		recorder := session.NewTranscriptRecorder(mongoClient.Database(cfg.DBName))
		pipelineOpts = append(pipelineOpts, rag.WithRecorder(recorder))
		deps.Transcripts = recorder
	}

	deps.Registry = rag.NewRegistry(retriever, completer, cfg.SupportedModels, pipelineOpts...)

	var sessionStore session.Store = session.NewMemoryStore()
	if rdb != nil {
		sessionStore = session.NewRedisStore(rdb, cfg.SessionIdleTTL)
		deps.Redis = rdb

		redisOpt, err := config.AsynqRedisOpt(cfg)
		if err != nil {
			log.Fatal("Failed to configure task queue:", err)
		}
		queueClient := asynq.NewClient(redisOpt)
		defer queueClient.Close()
		deps.Queue = queueClient
	}
	deps.Sessions = session.NewManager(sessionStore, cfg.HistoryWindow, cfg.SessionIdleTTL)

	scheduler := services.NewScheduler()
	if err := scheduler.ScheduleInterval(services.TagSessionEviction, max(cfg.SessionIdleTTL/4, time.Minute), services.EvictSessionsJob(deps.Sessions)); err != nil {
		log.Fatal("Failed to schedule session eviction:", err)
	}
	if err := scheduler.ScheduleInterval(services.TagIndexRefresh, cfg.IndexRefreshInterval, services.RefreshIndexJob(store)); err != nil {
		log.Fatal("Failed to schedule index refresh:", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := routes.NewRouter(deps)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.AnswerTimeout() + utils.DefaultTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("Server starting",
			"port", cfg.Port,
			"models", deps.Registry.Models(),
			"backend", cfg.VectorBackend,
			"index_size", store.Len(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.Info("Server exited")
}
