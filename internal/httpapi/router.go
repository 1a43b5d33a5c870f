package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/benincasantonio/gemini-ai-telegram-bot/internal/common"
	"github.com/benincasantonio/gemini-ai-telegram-bot/internal/httpapi/handlers"
	"github.com/benincasantonio/gemini-ai-telegram-bot/internal/httpapi/middleware"
)

func NewRouter(h *handlers.Handler) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.GET("/ping", h.Ping)

	r.POST("/webhook", h.Webhook)

	admin := r.Group("/admin")
	admin.Use(middleware.AuthRequired(h.Cfg.AdminJWTSecret))
	admin.GET("/chats/:chat_id/history", h.GetChatHistory)
	admin.DELETE("/chats/:chat_id/history", h.ClearChatHistory)

	return r
}
