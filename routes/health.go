package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ReadyFunc reports whether the service can answer questions.
type ReadyFunc func() bool

func SetupHealthRoutes(router *gin.Engine, ready ReadyFunc) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":          "OK",
			"rag_initialized": ready != nil && ready(),
		})
	})
}
