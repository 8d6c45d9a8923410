package routes

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"rag-chatbot-backend/internal/loader"
	"rag-chatbot-backend/internal/logger"
	"rag-chatbot-backend/internal/rag"
	"rag-chatbot-backend/internal/session"
	"rag-chatbot-backend/middleware"
	"rag-chatbot-backend/models"
	"rag-chatbot-backend/utils"

	"github.com/gin-gonic/gin"
)

// LinkExtractor lists the link URIs embedded in a local document.
type LinkExtractor func(path string) ([]string, error)

type ChatHandler struct {
	registry *rag.Registry
	sessions *session.Manager
	links    LinkExtractor
	// answerTimeout keeps a slow answer inside the server's write deadline so
	// the client still gets the unavailable reply.
	answerTimeout time.Duration
}

func NewChatHandler(registry *rag.Registry, sessions *session.Manager, answerTimeout time.Duration) *ChatHandler {
	return &ChatHandler{
		registry:      registry,
		sessions:      sessions,
		links:         loader.ExtractLinks,
		answerTimeout: answerTimeout,
	}
}

func SetupChatRoutes(router *gin.Engine, h *ChatHandler) {
	api := router.Group("/api")
	api.POST("/chat", h.Chat)
}

func (h *ChatHandler) Chat(c *gin.Context) {
	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
		return
	}

	question := strings.TrimSpace(req.Message)
	if question == "" {
		utils.RespondWithBadRequest(c, "Message must not be empty", nil)
		return
	}

	pipeline, ok := h.registry.Get(req.Model)
	if !ok {
		utils.RespondWithBadRequest(c, "Unsupported model", gin.H{
			"model":     req.Model,
			"supported": h.registry.Models(),
		})
		return
	}

	ctx := c.Request.Context()
	sess, err := h.sessions.Get(ctx, req.SessionID)
	if errors.Is(err, session.ErrInvalidSessionID) {
		utils.RespondWithBadRequest(c, "Invalid session id", nil)
		return
	}
	if err != nil {
		utils.RespondWithInternalError(c, "Failed to open session", nil)
		return
	}

	answerCtx, cancelAnswer := ctx, context.CancelFunc(func() {})
	if h.answerTimeout > 0 {
		answerCtx, cancelAnswer = context.WithTimeout(ctx, h.answerTimeout)
	}
	reply, answerErr := pipeline.Answer(answerCtx, sess, question)
	cancelAnswer()

	saveCtx, cancel := utils.WithTimeout(c.Request.Context())
	defer cancel()
	if err := h.sessions.Save(saveCtx, sess); err != nil {
		logger.Warn("Failed to save session", "session_id", sess.ID, "error", err)
	}

	if answerErr != nil {
		// the cause is already logged by the pipeline
		c.JSON(http.StatusOK, models.ChatResponse{
			Reply:     rag.UnavailableMessage,
			Sources:   []models.Source{},
			SessionID: sess.ID,
		})
		return
	}

	logger.Debug("Chat answered",
		"request_id", middleware.GetRequestID(c),
		"session_id", sess.ID,
		"model", req.Model,
	)
	c.JSON(http.StatusOK, models.ChatResponse{
		Reply:     reply.Text,
		Sources:   h.presentSources(reply.Sources),
		SessionID: sess.ID,
	})
}

// presentSources swaps a local PDF top source for the links it contains. The
// file source stays when it has none or cannot be read.
func (h *ChatHandler) presentSources(sources []models.Source) []models.Source {
	if len(sources) == 0 {
		return []models.Source{}
	}
	top := sources[0].URL
	if !isLocalPDF(top) || h.links == nil {
		return sources
	}

	links, err := h.links(top)
	if err != nil {
		logger.Warn("Failed to read source links", "source", top, "error", err)
		return sources
	}
	if len(links) == 0 {
		return sources
	}

	out := make([]models.Source, 0, len(links))
	for _, link := range links {
		out = append(out, models.Source{URL: link, Title: linkTitle(link)})
	}
	return out
}

func isLocalPDF(source string) bool {
	if strings.Contains(source, "://") {
		return false
	}
	return strings.EqualFold(filepath.Ext(source), ".pdf")
}

func linkTitle(link string) string {
	u, err := url.Parse(link)
	if err != nil || u.Host == "" {
		return link
	}
	return u.Host
}
