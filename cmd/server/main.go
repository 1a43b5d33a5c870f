package main

import (
	"context"
	"log"

	"github.com/benincasantonio/gemini-ai-telegram-bot/internal/ai"
	"github.com/benincasantonio/gemini-ai-telegram-bot/internal/chat"
	"github.com/benincasantonio/gemini-ai-telegram-bot/internal/config"
	"github.com/benincasantonio/gemini-ai-telegram-bot/internal/db"
	"github.com/benincasantonio/gemini-ai-telegram-bot/internal/httpapi"
	"github.com/benincasantonio/gemini-ai-telegram-bot/internal/httpapi/handlers"
	"github.com/benincasantonio/gemini-ai-telegram-bot/internal/plugin"
	"github.com/benincasantonio/gemini-ai-telegram-bot/internal/store/rabbitmq"
	"github.com/benincasantonio/gemini-ai-telegram-bot/internal/store/redisstore"
	"github.com/benincasantonio/gemini-ai-telegram-bot/internal/telegram"
	"github.com/benincasantonio/gemini-ai-telegram-bot/internal/weather"
)

func main() {
	cfg := config.Load()

	gdb, err := db.Connect(cfg.DBDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		log.Fatalf("db migrate: %v", err)
	}

	repo := chat.NewRepo(gdb)
	svc := chat.NewService(repo, cfg.MaxHistoryMessages)

	tg := telegram.NewClient(cfg.TelegramBotToken, cfg.TelegramAPIBase)

	reg := ai.NewRegistry()
	reg.Register("gemini", cfg.GeminiModel, func(ctx context.Context, model string) (ai.Provider, error) {
		_ = ctx
		return ai.NewGeminiProvider(cfg.GeminiBaseURL, model, cfg.GeminiAPIKey, buildTools(cfg)), nil
	})

	var dedup handlers.UpdateDedup
	if cfg.RedisAddr != "" {
		dedup = redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	}

	var rabbit handlers.JobPublisher
	if cfg.AsyncReplies {
		pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			log.Fatalf("rabbit: %v", err)
		}
		defer pub.Close()
		rabbit = pub
	}

	h := handlers.NewHandler(cfg, svc, tg, reg, dedup, rabbit)
	r := httpapi.NewRouter(h)

	log.Printf("server listening addr=%s async_replies=%t", cfg.ListenAddr, cfg.AsyncReplies)
	if err := r.Run(cfg.ListenAddr); err != nil {
		log.Fatalf("server: %v", err)
	}
}

func buildTools(cfg config.Config) *plugin.Manager {
	plugins := []plugin.Plugin{plugin.NewDateTimePlugin(cfg.DefaultTimeZone)}
	if cfg.OWMAPIKey != "" {
		plugins = append(plugins, plugin.NewWeatherPlugin(weather.NewClient(cfg.OWMAPIKey)))
	}
	return plugin.NewManager(plugins...)
}
