package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/appgen/internal/common"
	"github.com/suPer8Hu/appgen/internal/httpapi/middleware"
)

const AssistantMessageIDHeader = "X-Assistant-Message-Id"

type completionReq struct {
	Model string `json:"model" binding:"required"`
}

// sseWriter defers the response headers until the first upstream byte, so
// failures before the stream starts can still be reported as JSON.
type sseWriter struct {
	c       *gin.Context
	started bool
}

func (w *sseWriter) start() {
	if w.started {
		return
	}
	w.started = true
	h := w.c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no") // helpful if behind nginx
	h.Set("Trailer", AssistantMessageIDHeader)
	w.c.Status(http.StatusOK)
	w.c.Writer.WriteHeaderNow()
}

func (w *sseWriter) Write(p []byte) (int, error) {
	w.start()
	n, err := w.c.Writer.Write(p)
	if err != nil {
		return n, err
	}
	w.c.Writer.Flush()
	return n, nil
}

// StreamCompletion relays the model's streamed reply for a message byte for
// byte. The stored assistant message id arrives as a trailer.
func (h *Handler) StreamCompletion(c *gin.Context) {
	var req completionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	w := &sseWriter{c: c}
	reply, err := h.ChatSvc.RelayCompletion(c.Request.Context(), c.Param("message_id"), req.Model, w)
	if err != nil {
		if !w.started {
			writeError(c, "stream completion", err)
			return
		}
		// headers are gone; the client sees a truncated stream and can retry
		slog.Warn("stream completion aborted",
			"request_id", c.GetString(middleware.RequestIDKey),
			"message_id", c.Param("message_id"),
			"err", err,
		)
		return
	}

	if !w.started {
		c.Header(AssistantMessageIDHeader, reply.ID)
		w.start()
		return
	}
	c.Writer.Header().Set(AssistantMessageIDHeader, reply.ID)
}

// EnqueueCompletion queues the completion for the worker. An Idempotency-Key
// header makes retries return the original job.
func (h *Handler) EnqueueCompletion(c *gin.Context) {
	var req completionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	idempoKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	if len(idempoKey) > 128 {
		common.Fail(c, http.StatusBadRequest, 10003, "idempotency key too long")
		return
	}
	var idempoKeyPtr *string
	if idempoKey != "" {
		idempoKeyPtr = &idempoKey
	}

	ctx := c.Request.Context()
	j, created, err := h.ChatSvc.EnqueueCompletion(ctx, c.Param("message_id"), req.Model, idempoKeyPtr)
	if err != nil {
		writeError(c, "enqueue completion", err)
		return
	}

	// Enqueue only when a new job was created
	if created {
		if h.Rabbit == nil {
			common.Fail(c, http.StatusServiceUnavailable, 50002, "enqueue failed")
			return
		}
		if err := h.Rabbit.PublishJob(ctx, j.ID); err != nil {
			slog.Error("publish job failed", "job_id", j.ID, "err", err)
			common.Fail(c, http.StatusInternalServerError, 50002, "enqueue failed")
			return
		}
	}

	common.OK(c, gin.H{"job_id": j.ID})
}

func (h *Handler) GetJob(c *gin.Context) {
	j, err := h.ChatSvc.GetJob(c.Request.Context(), c.Param("job_id"))
	if err != nil {
		writeError(c, "get job", err)
		return
	}

	common.OK(c, gin.H{
		"job": gin.H{
			"id":                j.ID,
			"chat_id":           j.ChatID,
			"message_id":        j.MessageID,
			"model":             j.Model,
			"status":            j.Status,
			"result_message_id": j.ResultMessageID,
			"error":             j.Error,
			"created_at":        j.CreatedAt,
			"updated_at":        j.UpdatedAt,
		},
	})
}
