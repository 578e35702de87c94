package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/appgen/internal/chat"
	"github.com/suPer8Hu/appgen/internal/common"
)

type createChatReq struct {
	Prompt        string `json:"prompt" binding:"required"`
	Model         string `json:"model" binding:"required"`
	Quality       string `json:"quality" binding:"omitempty,oneof=high low"`
	ScreenshotURL string `json:"screenshot_url" binding:"omitempty,url"`
}

func (h *Handler) CreateChat(c *gin.Context) {
	var req createChatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	res, err := h.ChatSvc.CreateConversation(c.Request.Context(), chat.CreateInput{
		Prompt:        req.Prompt,
		Model:         req.Model,
		Quality:       chat.Quality(req.Quality),
		ScreenshotURL: req.ScreenshotURL,
	})
	if err != nil {
		writeError(c, "create chat", err)
		return
	}
	common.OK(c, res)
}

func (h *Handler) GetChat(c *gin.Context) {
	ch, err := h.ChatSvc.GetChat(c.Request.Context(), c.Param("chat_id"))
	if err != nil {
		writeError(c, "get chat", err)
		return
	}
	common.OK(c, gin.H{"chat": ch})
}

type appendMessageReq struct {
	Text string `json:"text" binding:"required"`
	Role string `json:"role" binding:"required,oneof=user assistant"`
}

func (h *Handler) AppendMessage(c *gin.Context) {
	var req appendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	msg, err := h.ChatSvc.AppendMessage(c.Request.Context(), c.Param("chat_id"), req.Text, req.Role)
	if err != nil {
		writeError(c, "append message", err)
		return
	}
	common.OK(c, gin.H{"message": msg})
}
