package handlers

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/benincasantonio/gemini-ai-telegram-bot/internal/ai"
	"github.com/benincasantonio/gemini-ai-telegram-bot/internal/chat"
	"github.com/benincasantonio/gemini-ai-telegram-bot/internal/common"
	"github.com/benincasantonio/gemini-ai-telegram-bot/internal/telegram"
)

const secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

const (
	startText        = "Hello! I'm your Gemini assistant. Ask me anything, or try /new_chat to start over."
	newChatText      = "Starting a new chat. Previous history was cleared."
	unauthorizedText = "Unauthorized."
	processingText   = "Processing your request..."
	apologyText      = "Sorry, I am not able to generate content for you right now. Please try again later."
	describeImage    = "Describe this image in detail."
)

// Webhook handles one Telegram update. Telegram retries deliveries on
// non-200 answers, so every outcome after parsing answers 200; failures are
// reported to the user by editing the placeholder message instead.
func (h *Handler) Webhook(c *gin.Context) {
	var update telegram.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid update")
		return
	}

	// Edited messages and other non-message updates are acknowledged and
	// ignored.
	if update.Message == nil {
		c.String(http.StatusOK, "OK")
		return
	}

	ctx := c.Request.Context()
	msg := update.Message
	chatID := msg.Chat.ID

	if h.Cfg.WebhookSecretToken != "" && !h.validSecretToken(c.GetHeader(secretTokenHeader)) {
		if _, err := h.TG.SendMessage(ctx, chatID, unauthorizedText); err != nil {
			log.Printf("webhook: send unauthorized chat=%d err=%v", chatID, err)
		}
		c.String(http.StatusOK, "OK")
		return
	}

	if h.Dedup != nil {
		seen, err := h.Dedup.MarkUpdateSeen(ctx, update.UpdateID)
		if err != nil {
			// Dedup is best-effort; a dead redis must not take the bot down.
			log.Printf("webhook: dedup unavailable update=%d err=%v", update.UpdateID, err)
		} else if seen {
			c.String(http.StatusOK, "OK")
			return
		}
	}

	sess, err := h.ChatSvc.GetOrCreateSession(ctx, chatID)
	if err != nil {
		log.Printf("webhook: get-or-create session chat=%d err=%v", chatID, err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	switch msg.Text {
	case telegram.CommandStart:
		if _, err := h.TG.SendMessage(ctx, chatID, startText); err != nil {
			log.Printf("webhook: send start chat=%d err=%v", chatID, err)
		}
		c.String(http.StatusOK, "OK")
		return
	case telegram.CommandNewChat:
		deleted, err := h.ChatSvc.ClearHistory(ctx, sess.ID)
		if err != nil {
			log.Printf("webhook: clear history chat=%d err=%v", chatID, err)
			common.Fail(c, http.StatusInternalServerError, 50002, "internal error")
			return
		}
		log.Printf("webhook: cleared history chat=%d deleted=%d", chatID, deleted)
		if _, err := h.TG.SendMessage(ctx, chatID, newChatText); err != nil {
			log.Printf("webhook: send new-chat chat=%d err=%v", chatID, err)
		}
		c.String(http.StatusOK, "OK")
		return
	}

	placeholder, err := h.TG.SendMessage(ctx, chatID, processingText)
	if err != nil {
		log.Printf("webhook: send placeholder chat=%d err=%v", chatID, err)
		common.Fail(c, http.StatusInternalServerError, 50003, "internal error")
		return
	}

	prompt := msg.Text
	if len(msg.Photo) > 0 {
		prompt = describeImage
		if msg.Caption != "" {
			prompt = msg.Caption
		}
	}
	date := time.Unix(msg.Date, 0)

	if h.Rabbit != nil && len(msg.Photo) == 0 {
		h.enqueueReply(c, update.UpdateID, sess, msg, prompt, date, placeholder.MessageID)
		return
	}

	h.replyInline(c, update.UpdateID, sess, msg, prompt, date, placeholder.MessageID)
}

func (h *Handler) validSecretToken(got string) bool {
	want := h.Cfg.WebhookSecretToken
	return len(got) == len(want) &&
		subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// replyInline runs the whole turn inside the webhook request: history window,
// model call, both appends, then edits the placeholder with the reply.
func (h *Handler) replyInline(c *gin.Context, updateID int64, sess *chat.Session, msg *telegram.Message, prompt string, date time.Time, placeholderID int64) {
	ctx := c.Request.Context()
	chatID := msg.Chat.ID

	reply, err := h.generateReply(ctx, sess, msg, prompt)
	if err != nil {
		log.Printf("webhook: generate reply chat=%d err=%v", chatID, err)
		if editErr := h.TG.EditMessageText(ctx, chatID, placeholderID, apologyText); editErr != nil {
			log.Printf("webhook: edit apology chat=%d err=%v", chatID, editErr)
		}
		c.String(http.StatusOK, "OK")
		return
	}

	userKey := updateKey(updateID, "user")
	if _, _, err := h.ChatSvc.AppendMessageIdempotent(ctx, sess.ID, prompt, date, chat.RoleUser, &userKey); err != nil {
		log.Printf("webhook: append user turn chat=%d err=%v", chatID, err)
		common.Fail(c, http.StatusInternalServerError, 50004, "internal error")
		return
	}
	modelKey := updateKey(updateID, "model")
	if _, _, err := h.ChatSvc.AppendMessageIdempotent(ctx, sess.ID, reply, date, chat.RoleModel, &modelKey); err != nil {
		log.Printf("webhook: append model turn chat=%d err=%v", chatID, err)
		common.Fail(c, http.StatusInternalServerError, 50004, "internal error")
		return
	}

	if err := h.TG.EditMessageText(ctx, chatID, placeholderID, reply); err != nil {
		log.Printf("webhook: edit reply chat=%d err=%v", chatID, err)
	}
	c.String(http.StatusOK, "OK")
}

func (h *Handler) generateReply(ctx context.Context, sess *chat.Session, msg *telegram.Message, prompt string) (string, error) {
	provider, err := h.Models.Get(ctx, h.Cfg.AIProvider, h.Cfg.GeminiModel)
	if err != nil {
		return "", err
	}

	history, err := h.ChatSvc.History(ctx, sess.ID)
	if err != nil {
		return "", err
	}
	msgs := make([]ai.Message, 0, len(history))
	for _, e := range history {
		msgs = append(msgs, ai.Message{Role: e.Role, Content: e.Content})
	}

	if len(msg.Photo) > 0 {
		ip, ok := provider.(ai.ImageProvider)
		if !ok {
			return "", fmt.Errorf("provider %s does not support images", h.Cfg.AIProvider)
		}
		photo := telegram.LargestPhoto(msg.Photo)
		image, err := h.TG.DownloadFile(ctx, photo.FileID)
		if err != nil {
			return "", err
		}
		return ip.ChatImage(ctx, msgs, prompt, image, "image/jpeg")
	}

	return provider.Chat(ctx, msgs, prompt)
}

// enqueueReply persists the user turn and a reply job, then hands the turn to
// the worker. Both writes carry update-derived idempotency keys so a retried
// delivery that slipped past dedup still cannot double-queue.
func (h *Handler) enqueueReply(c *gin.Context, updateID int64, sess *chat.Session, msg *telegram.Message, prompt string, date time.Time, placeholderID int64) {
	ctx := c.Request.Context()
	chatID := msg.Chat.ID

	userKey := updateKey(updateID, "user")
	if _, _, err := h.ChatSvc.AppendMessageIdempotent(ctx, sess.ID, prompt, date, chat.RoleUser, &userKey); err != nil {
		log.Printf("webhook: append user turn chat=%d err=%v", chatID, err)
		common.Fail(c, http.StatusInternalServerError, 50004, "internal error")
		return
	}

	jobID, err := common.NewULID()
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	jobKey := updateKey(updateID, "job")
	job := &chat.ReplyJob{
		ID:             jobID,
		SessionID:      sess.ID,
		ChatID:         chatID,
		PlaceholderID:  placeholderID,
		Prompt:         prompt,
		Date:           date,
		IdempotencyKey: &jobKey,
		Status:         chat.JobQueued,
	}

	j, created, err := h.ChatSvc.CreateReplyJob(ctx, job)
	if err != nil {
		log.Printf("webhook: create job chat=%d err=%v", chatID, err)
		common.Fail(c, http.StatusInternalServerError, 50005, "internal error")
		return
	}

	if created {
		if err := h.Rabbit.PublishJob(ctx, j.ID); err != nil {
			log.Printf("webhook: publish job chat=%d job=%s err=%v", chatID, j.ID, err)
			common.Fail(c, http.StatusInternalServerError, 50006, "enqueue failed")
			return
		}
	}
	c.String(http.StatusOK, "OK")
}

func updateKey(updateID int64, suffix string) string {
	return fmt.Sprintf("tg:update:%d:%s", updateID, suffix)
}
