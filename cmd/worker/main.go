package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/benincasantonio/gemini-ai-telegram-bot/internal/ai"
	"github.com/benincasantonio/gemini-ai-telegram-bot/internal/chat"
	"github.com/benincasantonio/gemini-ai-telegram-bot/internal/config"
	"github.com/benincasantonio/gemini-ai-telegram-bot/internal/db"
	"github.com/benincasantonio/gemini-ai-telegram-bot/internal/plugin"
	"github.com/benincasantonio/gemini-ai-telegram-bot/internal/store/rabbitmq"
	"github.com/benincasantonio/gemini-ai-telegram-bot/internal/telegram"
	"github.com/benincasantonio/gemini-ai-telegram-bot/internal/weather"
)

const apologyText = "Sorry, I am not able to generate content for you right now. Please try again later."

func workerConcurrency() int {
	v := os.Getenv("WORKER_CONCURRENCY")
	if v == "" {
		return 2
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 2
	}
	if n > 50 {
		return 50
	}
	return n
}

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

	plugins := []plugin.Plugin{plugin.NewDateTimePlugin(cfg.DefaultTimeZone)}
	if cfg.OWMAPIKey != "" {
		plugins = append(plugins, plugin.NewWeatherPlugin(weather.NewClient(cfg.OWMAPIKey)))
	}
	tools := plugin.NewManager(plugins...)

	reg := ai.NewRegistry()
	reg.Register("gemini", cfg.GeminiModel, func(ctx context.Context, model string) (ai.Provider, error) {
		_ = ctx
		return ai.NewGeminiProvider(cfg.GeminiBaseURL, model, cfg.GeminiAPIKey, tools), nil
	})

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("rabbit dial: %v", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatalf("rabbit channel: %v", err)
	}
	defer ch.Close()

	if err := rabbitmq.DeclareTopology(ch, cfg.RabbitQueue); err != nil {
		log.Fatalf("queue declare: %v", err)
	}

	concurrency := workerConcurrency()
	if err := ch.Qos(concurrency, 0, false); err != nil {
		log.Fatalf("qos: %v", err)
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		log.Fatalf("consume: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("worker started queue=%s concurrency=%d", cfg.RabbitQueue, concurrency)

	w := &worker{cfg: cfg, svc: svc, repo: repo, tg: tg, reg: reg}

	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				var m rabbitmq.JobMessage
				if err := json.Unmarshal(d.Body, &m); err != nil || m.JobID == "" {
					log.Printf("worker=%d bad message: %v", workerID, err)
					_ = d.Nack(false, false)
					continue
				}

				start := time.Now()
				if err := w.handleJob(ctx, m.JobID); err != nil {
					log.Printf("worker=%d job=%s failed cost=%s err=%v", workerID, m.JobID, time.Since(start), err)
					_ = d.Nack(false, false)
					continue
				}

				if err := d.Ack(false); err != nil {
					log.Printf("worker=%d ack failed job=%s err=%v", workerID, m.JobID, err)
				}
			}
		}(i)
	}

	for {
		select {
		case <-ctx.Done():
			log.Printf("worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				log.Printf("delivery channel closed")
				time.Sleep(1 * time.Second)
				continue
			}
			jobs <- d
		}
	}
}

type worker struct {
	cfg  config.Config
	svc  *chat.Service
	repo *chat.Repo
	tg   *telegram.Client
	reg  *ai.Registry
}

// handleJob runs one queued turn: history window, model call, model-turn
// append, Telegram placeholder edit, job bookkeeping.
func (w *worker) handleJob(ctx context.Context, jobID string) error {
	_ = w.repo.UpdateJobStatusRunning(ctx, jobID)

	j, err := w.svc.GetReplyJob(ctx, jobID)
	if err != nil {
		return err
	}
	if j.Status == chat.JobSucceeded {
		return nil
	}

	reply, msgID, err := w.generate(ctx, j)
	if err != nil {
		_ = w.repo.MarkJobFailed(ctx, jobID, err.Error())
		if editErr := w.tg.EditMessageText(ctx, j.ChatID, j.PlaceholderID, apologyText); editErr != nil {
			log.Printf("job=%s edit apology chat=%d err=%v", jobID, j.ChatID, editErr)
		}
		return err
	}

	if err := w.tg.EditMessageText(ctx, j.ChatID, j.PlaceholderID, reply); err != nil {
		log.Printf("job=%s edit reply chat=%d err=%v", jobID, j.ChatID, err)
	}

	return w.repo.MarkJobSucceeded(ctx, jobID, msgID)
}

func (w *worker) generate(ctx context.Context, j *chat.ReplyJob) (string, uint64, error) {
	provider, err := w.reg.Get(ctx, w.cfg.AIProvider, w.cfg.GeminiModel)
	if err != nil {
		return "", 0, err
	}

	history, err := w.svc.History(ctx, j.SessionID)
	if err != nil {
		return "", 0, err
	}

	// The webhook already stored the user turn; the model gets it as the
	// prompt, not twice.
	if n := len(history); n > 0 && history[n-1].Role == chat.RoleUser && history[n-1].Content == j.Prompt {
		history = history[:n-1]
	}

	msgs := make([]ai.Message, 0, len(history))
	for _, e := range history {
		msgs = append(msgs, ai.Message{Role: e.Role, Content: e.Content})
	}

	reply, err := provider.Chat(ctx, msgs, j.Prompt)
	if err != nil {
		return "", 0, err
	}

	key := fmt.Sprintf("job:%s:model", j.ID)
	m, _, err := w.svc.AppendMessageIdempotent(ctx, j.SessionID, reply, j.Date, chat.RoleModel, &key)
	if err != nil {
		return "", 0, err
	}
	return reply, m.ID, nil
}
