package main

import (
	"context"
	"encoding/json"
	"flag"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/pocketllm/pocketchat/internal/cache"
	"github.com/pocketllm/pocketchat/internal/chat"
	"github.com/pocketllm/pocketchat/internal/config"
	"github.com/pocketllm/pocketchat/internal/db"
	"github.com/pocketllm/pocketchat/internal/llm"
	"github.com/pocketllm/pocketchat/internal/logger"
	"github.com/pocketllm/pocketchat/internal/session"
	"github.com/pocketllm/pocketchat/internal/store/rabbitmq"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	defer logger.Sync()

	gdb, err := db.Connect(cfg.Database.MySQL.DSN)
	if err != nil {
		logger.Fatalf("connect database: %v", err)
	}

	reg := llm.NewRegistry()
	reg.Register("openai", func(ctx context.Context, model string) (llm.Provider, error) {
		m := strings.TrimSpace(model)
		if m == "" {
			m = cfg.LLM.Model
		}
		p := llm.NewOpenAIProvider(cfg.LLM.BaseURL, cfg.LLM.APIKey, m)
		p.MaxTokens = cfg.LLM.MaxTokens
		p.Temperature = cfg.LLM.Temperature
		p.TopP = cfg.LLM.TopP
		return p, nil
	})
	provider, err := reg.Get(context.Background(), "openai", cfg.LLM.Model)
	if err != nil {
		logger.Fatalf("build provider: %v", err)
	}
	gateway := llm.NewGateway(provider, time.Duration(cfg.LLM.TimeoutSeconds)*time.Second)

	// The worker never resolves sessions; jobs carry the owner id. An empty
	// store satisfies the service's constructor.
	svc := chat.NewService(session.NewMemoryStore(), chat.NewRepo(gdb), cache.NewStore(gdb), gateway)

	conn, err := amqp.Dial(cfg.Rabbit.URL)
	if err != nil {
		logger.Fatalf("rabbit dial: %v", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatalf("rabbit channel: %v", err)
	}
	defer ch.Close()

	if err := rabbitmq.DeclareTopology(ch, cfg.Rabbit.Queue); err != nil {
		logger.Fatalf("declare queues: %v", err)
	}

	concurrency := cfg.Worker.Concurrency
	if concurrency <= 0 {
		concurrency = 2
	}
	if concurrency > 50 {
		concurrency = 50
	}
	if err := ch.Qos(concurrency, 0, false); err != nil {
		logger.Fatalf("qos: %v", err)
	}

	msgs, err := ch.Consume(cfg.Rabbit.Queue, "", false, false, false, false, nil)
	if err != nil {
		logger.Fatalf("consume: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Infow("worker started", "queue", cfg.Rabbit.Queue, "concurrency", concurrency)

	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				var m rabbitmq.JobMessage
				if err := json.Unmarshal(d.Body, &m); err != nil || m.JobID == "" {
					logger.Warnw("bad message", "worker", workerID, "err", err)
					_ = d.Nack(false, false)
					continue
				}

				start := time.Now()
				if err := svc.RunJob(ctx, m.JobID); err != nil {
					logger.Warnw("job failed",
						"worker", workerID,
						"job_id", m.JobID,
						"cost", time.Since(start),
						"err", err,
					)
					_ = d.Nack(false, false)
					continue
				}

				if err := d.Ack(false); err != nil {
					logger.Warnw("ack failed", "worker", workerID, "job_id", m.JobID, "err", err)
				}
			}
		}(i)
	}

	for {
		select {
		case <-ctx.Done():
			logger.Infof("worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				logger.Warnf("delivery channel closed")
				time.Sleep(time.Second)
				continue
			}
			jobs <- d
		}
	}
}
