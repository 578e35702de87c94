package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/appgen/internal/common"
	"github.com/suPer8Hu/appgen/internal/config"
	"github.com/suPer8Hu/appgen/internal/httpapi/handlers"
	"github.com/suPer8Hu/appgen/internal/httpapi/middleware"
)

func NewRouter(h *handlers.Handler, cfg config.Config) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.Use(middleware.RequestID())
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Accept", "Content-Type", "Idempotency-Key", middleware.RequestIDHeader},
			ExposeHeaders:    []string{middleware.RequestIDHeader, handlers.AssistantMessageIDHeader},
			AllowCredentials: true,
			MaxAge:           5 * time.Minute,
		}))
	}

	r.GET("/ping", h.Ping)

	r.POST("/chats", h.CreateChat)
	r.GET("/chats/:chat_id", h.GetChat)
	r.POST("/chats/:chat_id/messages", h.AppendMessage)

	r.POST("/messages/:message_id/completions/stream", h.StreamCompletion)
	r.POST("/messages/:message_id/completions/async", h.EnqueueCompletion)
	r.GET("/jobs/:job_id", h.GetJob)
	return r
}
