package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/appgen/internal/ai"
	"github.com/suPer8Hu/appgen/internal/chat"
	"github.com/suPer8Hu/appgen/internal/common"
	"github.com/suPer8Hu/appgen/internal/httpapi/middleware"
)

// JobPublisher enqueues completion jobs for the worker.
type JobPublisher interface {
	PublishJob(ctx context.Context, jobID string) error
}

type Handler struct {
	ChatSvc *chat.Service
	Rabbit  JobPublisher
}

// NewHandler wires the HTTP handlers. rabbit may be nil, in which case the
// async endpoint reports enqueue failures.
func NewHandler(svc *chat.Service, rabbit JobPublisher) *Handler {
	return &Handler{ChatSvc: svc, Rabbit: rabbit}
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"pong": true})
}

// writeError maps service errors onto the response envelope.
func writeError(c *gin.Context, op string, err error) {
	var cfgErr *ai.ConfigError
	var upErr *ai.UpstreamError

	switch {
	case errors.Is(err, chat.ErrInvalidRequest), errors.Is(err, chat.ErrInvalidHistory):
		common.Fail(c, http.StatusBadRequest, 10001, err.Error())
	case errors.Is(err, chat.ErrScreenshotUnsupported), errors.Is(err, chat.ErrArchitectUnsupported):
		common.Fail(c, http.StatusBadRequest, 10004, err.Error())
	case errors.Is(err, chat.ErrChatNotFound):
		common.Fail(c, http.StatusNotFound, 40401, "chat not found")
	case errors.Is(err, chat.ErrMessageNotFound):
		common.Fail(c, http.StatusNotFound, 40402, "message not found")
	case errors.Is(err, chat.ErrJobNotFound):
		common.Fail(c, http.StatusNotFound, 40403, "job not found")
	case errors.Is(err, chat.ErrStreamInProgress):
		common.Fail(c, http.StatusConflict, 40901, err.Error())
	case errors.As(err, &cfgErr):
		slog.Error(op+" failed", "request_id", c.GetString(middleware.RequestIDKey), "err", err)
		common.Fail(c, http.StatusInternalServerError, 50001, err.Error())
	case errors.As(err, &upErr), errors.Is(err, chat.ErrStreamUnsupported):
		slog.Warn(op+" upstream failure", "request_id", c.GetString(middleware.RequestIDKey), "err", err)
		common.Fail(c, http.StatusBadGateway, 50201, err.Error())
	default:
		slog.Error(op+" failed", "request_id", c.GetString(middleware.RequestIDKey), "err", err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
	}
}
