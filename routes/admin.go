package routes

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"rag-chatbot-backend/internal/logger"
	"rag-chatbot-backend/internal/queue"
	"rag-chatbot-backend/internal/vectorindex"
	"rag-chatbot-backend/middleware"
	"rag-chatbot-backend/models"
	"rag-chatbot-backend/services"
	"rag-chatbot-backend/utils"

	"github.com/gin-gonic/gin"
)

// TranscriptReader lists the stored exchanges of a session.
type TranscriptReader interface {
	Recent(ctx context.Context, sessionID string, limit int64) ([]models.Transcript, error)
}

type AdminHandler struct {
	scanner     services.Scanner
	store       vectorindex.Store
	client      queue.Enqueuer
	dataDir     string
	backend     string
	transcripts TranscriptReader
}

type AdminOption func(*AdminHandler)

// WithIngestQueue enables POST /api/admin/ingest.
func WithIngestQueue(client queue.Enqueuer) AdminOption {
	return func(h *AdminHandler) { h.client = client }
}

// WithTranscripts enables the transcript listing.
func WithTranscripts(r TranscriptReader) AdminOption {
	return func(h *AdminHandler) { h.transcripts = r }
}

func NewAdminHandler(scanner services.Scanner, store vectorindex.Store, dataDir, backend string, opts ...AdminOption) *AdminHandler {
	h := &AdminHandler{
		scanner: scanner,
		store:   store,
		dataDir: dataDir,
		backend: backend,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func SetupAdminRoutes(router *gin.Engine, h *AdminHandler, jwtSecret string) {
	admin := router.Group("/api/admin")
	admin.Use(middleware.RequireAdmin(jwtSecret))

	admin.POST("/ingest", h.Ingest)
	admin.GET("/index", h.IndexStats)
	admin.GET("/sessions/:id/transcripts", h.Transcripts)
}

// Ingest queues the files of the data directory that are not indexed yet.
func (h *AdminHandler) Ingest(c *gin.Context) {
	if h.client == nil {
		utils.RespondWithUnavailable(c, "Ingestion queue is not configured")
		return
	}

	info, fresh, err := services.EnqueueNewFiles(c.Request.Context(), h.scanner, h.store, h.client, h.dataDir)
	if errors.Is(err, queue.ErrIngestPending) {
		utils.RespondWithError(c, http.StatusConflict, "ingest_pending", "An ingestion task for these files is already queued", nil)
		return
	}
	if err != nil {
		logger.Error("Failed to enqueue ingestion", "error", err)
		utils.RespondWithInternalError(c, "Failed to enqueue ingestion", nil)
		return
	}
	if len(fresh) == 0 {
		c.JSON(http.StatusOK, gin.H{"message": "index is up to date", "files": []string{}})
		return
	}

	logger.Info("Ingestion queued by admin",
		"subject", middleware.GetClaims(c).Subject,
		"files", len(fresh),
		"task_id", info.ID,
	)
	c.JSON(http.StatusAccepted, gin.H{
		"task_id": info.ID,
		"files":   fresh,
	})
}

func (h *AdminHandler) IndexStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"backend":    h.backend,
		"size":       h.store.Len(),
		"dimensions": h.store.Dimensions(),
	})
}

func (h *AdminHandler) Transcripts(c *gin.Context) {
	if h.transcripts == nil {
		utils.RespondWithUnavailable(c, "Transcript storage is not configured")
		return
	}

	limit, err := strconv.ParseInt(c.DefaultQuery("limit", "20"), 10, 64)
	if err != nil || limit < 1 || limit > 200 {
		utils.RespondWithBadRequest(c, "limit must be between 1 and 200", nil)
		return
	}

	ctx, cancel := utils.WithTimeout(c.Request.Context())
	defer cancel()
	items, err := h.transcripts.Recent(ctx, c.Param("id"), limit)
	if err != nil {
		utils.RespondWithInternalError(c, "Failed to read transcripts", nil)
		return
	}
	if items == nil {
		items = []models.Transcript{}
	}

	if c.Query("format") == "xlsx" {
		c.Header("Content-Disposition", `attachment; filename="transcripts.xlsx"`)
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Status(http.StatusOK)
		if err := services.ExportTranscriptsXLSX(c.Writer, items); err != nil {
			logger.Error("Transcript export failed", "error", err)
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"transcripts": items})
}
