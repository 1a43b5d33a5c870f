package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/benincasantonio/gemini-ai-telegram-bot/internal/chat"
	"github.com/benincasantonio/gemini-ai-telegram-bot/internal/common"
)

// GetChatHistory returns the stored history window for a Telegram chat.
// ?limit= overrides the configured window; limit=0 is a valid empty window.
// Reads never create sessions: a chat the bot has not seen yields an empty
// window.
func (h *Handler) GetChatHistory(c *gin.Context) {
	chatID, err := strconv.ParseInt(c.Param("chat_id"), 10, 64)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10002, "invalid chat_id")
		return
	}

	limit := h.ChatSvc.MaxHistory()
	if v := c.Query("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil {
			common.Fail(c, http.StatusBadRequest, 10003, "invalid limit")
			return
		}
	}
	if limit < 0 {
		common.Fail(c, http.StatusBadRequest, 10003, "limit must be non-negative")
		return
	}

	ctx := c.Request.Context()
	sess, err := h.ChatSvc.FindSession(ctx, chatID)
	if err != nil {
		if errors.Is(err, chat.ErrSessionNotFound) {
			common.Ok(c, gin.H{
				"chat_id": chatID,
				"history": []chat.Entry{},
			})
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	history, err := h.ChatSvc.HistoryN(ctx, sess.ID, limit)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50002, "internal error")
		return
	}

	common.Ok(c, gin.H{
		"chat_id":    chatID,
		"session_id": sess.ID,
		"history":    history,
	})
}

// ClearChatHistory deletes a chat's stored messages and reports how many
// were removed. Clearing an unknown chat reports 0 without creating a
// session.
func (h *Handler) ClearChatHistory(c *gin.Context) {
	chatID, err := strconv.ParseInt(c.Param("chat_id"), 10, 64)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10002, "invalid chat_id")
		return
	}

	ctx := c.Request.Context()
	sess, err := h.ChatSvc.FindSession(ctx, chatID)
	if err != nil {
		if errors.Is(err, chat.ErrSessionNotFound) {
			common.Ok(c, gin.H{
				"chat_id": chatID,
				"deleted": int64(0),
			})
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	deleted, err := h.ChatSvc.ClearHistory(ctx, sess.ID)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50003, "internal error")
		return
	}

	common.Ok(c, gin.H{
		"chat_id": chatID,
		"deleted": deleted,
	})
}
