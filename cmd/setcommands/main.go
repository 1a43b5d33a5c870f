// Registers the bot's command list with Telegram. Run once after deploying.
package main

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/benincasantonio/gemini-ai-telegram-bot/internal/config"
	"github.com/benincasantonio/gemini-ai-telegram-bot/internal/telegram"
)

func main() {
	cfg := config.Load()
	if cfg.TelegramBotToken == "" {
		log.Fatal("TELEGRAM_BOT_TOKEN is required")
	}

	tg := telegram.NewClient(cfg.TelegramBotToken, cfg.TelegramAPIBase)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// setMyCommands wants bare command names, without the leading slash.
	commands := []telegram.BotCommand{
		{Command: strings.TrimPrefix(telegram.CommandStart, "/"), Description: "Start talking to the bot"},
		{Command: strings.TrimPrefix(telegram.CommandNewChat, "/"), Description: "Start a new chat and clear the history"},
	}
	if err := tg.SetMyCommands(ctx, commands); err != nil {
		log.Fatalf("setMyCommands: %v", err)
	}
	log.Printf("registered %d bot commands", len(commands))
}
