package routes

import (
	"time"

	"rag-chatbot-backend/internal/config"
	"rag-chatbot-backend/internal/queue"
	"rag-chatbot-backend/internal/rag"
	"rag-chatbot-backend/internal/session"
	"rag-chatbot-backend/internal/telemetry"
	"rag-chatbot-backend/internal/vectorindex"
	"rag-chatbot-backend/middleware"
	"rag-chatbot-backend/services"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const maxRequestBody = 1 << 20

// Dependencies are the components the HTTP API is built from. Redis, Queue
// and Transcripts are optional.
type Dependencies struct {
	Config      *config.Config
	Registry    *rag.Registry
	Sessions    *session.Manager
	Store       vectorindex.Store
	Scanner     services.Scanner
	Redis       *redis.Client
	Queue       queue.Enqueuer
	Transcripts TranscriptReader
	Metrics     *telemetry.Metrics

	// AnswerTimeout overrides Config.AnswerTimeout when set.
	AnswerTimeout time.Duration
}

func NewRouter(d Dependencies) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.TracingMiddleware(telemetry.ServiceName))
	router.Use(middleware.EnrichTrace())
	router.Use(middleware.MetricsMiddleware(d.Metrics))
	router.Use(middleware.AccessLog())
	router.Use(middleware.CORSMiddleware(d.Config.CORSOrigins))
	router.Use(middleware.RequestSizeLimit(maxRequestBody))
	router.Use(middleware.RateLimitMiddleware(d.Redis, d.Config.RateLimitReqs, time.Duration(d.Config.RateLimitWindow)*time.Second))

	SetupHealthRoutes(router, d.Registry.Ready)
	answerTimeout := d.AnswerTimeout
	if answerTimeout <= 0 {
		answerTimeout = d.Config.AnswerTimeout()
	}
	SetupChatRoutes(router, NewChatHandler(d.Registry, d.Sessions, answerTimeout))

	var opts []AdminOption
	if d.Queue != nil {
		opts = append(opts, WithIngestQueue(d.Queue))
	}
	if d.Transcripts != nil {
		opts = append(opts, WithTranscripts(d.Transcripts))
	}
	admin := NewAdminHandler(d.Scanner, d.Store, d.Config.DataDir, d.Config.VectorBackend, opts...)
	SetupAdminRoutes(router, admin, d.Config.AdminJWTSecret)

	return router
}
