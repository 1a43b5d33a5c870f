package handlers

import (
	"context"

	"github.com/benincasantonio/gemini-ai-telegram-bot/internal/ai"
	"github.com/benincasantonio/gemini-ai-telegram-bot/internal/chat"
	"github.com/benincasantonio/gemini-ai-telegram-bot/internal/common"
	"github.com/benincasantonio/gemini-ai-telegram-bot/internal/config"
	"github.com/benincasantonio/gemini-ai-telegram-bot/internal/telegram"
	"github.com/gin-gonic/gin"
)

// UpdateDedup remembers delivered Telegram update ids; redisstore implements
// it.
type UpdateDedup interface {
	MarkUpdateSeen(ctx context.Context, updateID int64) (bool, error)
}

// JobPublisher enqueues reply jobs; the rabbitmq publisher implements it.
type JobPublisher interface {
	PublishJob(ctx context.Context, jobID string) error
}

// Handler carries the collaborators each request needs. Everything is
// injected; nothing is process-global.
type Handler struct {
	Cfg     config.Config
	ChatSvc *chat.Service
	TG      *telegram.Client
	Models  *ai.Registry

	// Dedup may be nil (dedup disabled); Rabbit may be nil (replies are
	// generated inline instead of queued).
	Dedup  UpdateDedup
	Rabbit JobPublisher
}

func NewHandler(cfg config.Config, svc *chat.Service, tg *telegram.Client, models *ai.Registry, dedup UpdateDedup, rabbit JobPublisher) *Handler {
	return &Handler{
		Cfg:     cfg,
		ChatSvc: svc,
		TG:      tg,
		Models:  models,
		Dedup:   dedup,
		Rabbit:  rabbit,
	}
}

func (h *Handler) Ping(c *gin.Context) {
	common.Ok(c, gin.H{"pong": true})
}
