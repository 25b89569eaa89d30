package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/pocketllm/pocketchat/internal/admin"
	"github.com/pocketllm/pocketchat/internal/apikey"
	"github.com/pocketllm/pocketchat/internal/auth"
	"github.com/pocketllm/pocketchat/internal/cache"
	"github.com/pocketllm/pocketchat/internal/chat"
	"github.com/pocketllm/pocketchat/internal/config"
	"github.com/pocketllm/pocketchat/internal/db"
	"github.com/pocketllm/pocketchat/internal/httpapi"
	"github.com/pocketllm/pocketchat/internal/httpapi/handlers"
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

	gin.SetMode(cfg.Server.Mode)

	gdb, err := db.Connect(cfg.Database.MySQL.DSN)
	if err != nil {
		logger.Fatalf("connect database: %v", err)
	}

	sessions := newSessionStore(cfg)

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

	cacheStore := cache.NewStore(gdb)
	repo := chat.NewRepo(gdb)

	authSvc := auth.NewService(gdb, sessions)
	chatSvc := chat.NewService(sessions, repo, cacheStore, gateway)
	keySvc := apikey.NewService(gdb)
	adminSvc := admin.NewService(gdb, cacheStore)

	var pub *rabbitmq.Publisher
	if cfg.Rabbit.URL != "" {
		pub, err = rabbitmq.NewPublisher(cfg.Rabbit.URL, cfg.Rabbit.Queue)
		if err != nil {
			logger.Warnf("rabbit unavailable, async disabled: %v", err)
			pub = nil
		} else {
			defer pub.Close()
		}
	}

	h := handlers.NewHandler(authSvc, chatSvc, keySvc, adminSvc, pub)
	router := httpapi.NewRouter(h, sessions, authSvc)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Infof("listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("serve: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
}

func newSessionStore(cfg config.Config) session.Store {
	switch cfg.Session.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Database.Redis.Addr,
			Password: cfg.Database.Redis.Password,
			DB:       cfg.Database.Redis.DB,
		})
		ttl := time.Duration(cfg.Session.TTLHours) * time.Hour
		return session.NewRedisStore(client, ttl)
	default:
		return session.NewMemoryStore()
	}
}
