package main

import (
	"context"
	"strings"
	"time"

	"github.com/meditech-nic/backend/internal/ai"
	"github.com/meditech-nic/backend/internal/centers"
	"github.com/meditech-nic/backend/internal/chat"
	"github.com/meditech-nic/backend/internal/config"
	"github.com/meditech-nic/backend/internal/db"
	"github.com/meditech-nic/backend/internal/httpapi"
	"github.com/meditech-nic/backend/internal/httpapi/handlers"
	"github.com/meditech-nic/backend/internal/logger"
	"github.com/meditech-nic/backend/internal/profile"
	"github.com/meditech-nic/backend/internal/screening"
	"github.com/meditech-nic/backend/internal/store/rabbitmq"
	"github.com/meditech-nic/backend/internal/store/redisstore"
)

func main() {
	cfg := config.Load()

	logg, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}
	defer logg.Sync()

	gdb, err := db.Connect(cfg, logg)
	if err != nil {
		logg.Fatal("db connect failed", "error", err)
	}
	if err := db.Setup(gdb); err != nil {
		logg.Fatal("db setup failed", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	profiles := profile.NewRepo(gdb, logg)
	if err := profiles.SeedAllergies(ctx); err != nil {
		logg.Fatal("seed allergies failed", "error", err)
	}
	if err := profiles.SeedConditions(ctx); err != nil {
		logg.Fatal("seed conditions failed", "error", err)
	}

	centersRepo := centers.NewRepo(gdb, logg)

	// Redis is optional: without it the nearby endpoint just skips caching.
	rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err := rds.Ping(ctx); err != nil {
		logg.Warn("redis unavailable, nearby cache disabled", "addr", cfg.RedisAddr, "error", err)
		_ = rds.Close()
		rds = nil
	} else {
		defer rds.Close()
	}
	centersRepo.WithCache(rds, cfg.NearbyCacheTTL)

	if err := centersRepo.SeedNicaraguaOnce(ctx); err != nil {
		logg.Fatal("seed health centers failed", "error", err)
	}

	reg := ai.NewRegistry()
	reg.Register("openai", func(ctx context.Context, model string) (ai.Provider, error) {
		_ = ctx
		m := strings.TrimSpace(model)
		if m == "" {
			m = cfg.OpenAIModel
		}
		return ai.NewOpenAIProvider(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, m), nil
	})
	reg.Register("ollama", func(ctx context.Context, model string) (ai.Provider, error) {
		_ = ctx
		m := strings.TrimSpace(model)
		if m == "" {
			m = cfg.OllamaModel
		}
		return ai.NewOllamaProvider(cfg.OllamaBaseURL, m), nil
	})

	screeningSvc := screening.NewService(gdb, logg)
	chatRepo := chat.NewRepo(gdb, logg)
	chatSvc := chat.NewService(chatRepo, profiles, reg, screeningSvc, cfg.AIProvider, "", cfg.ChatContextWindowSize, logg)

	// RabbitMQ is optional: without it the async chat endpoint answers 503.
	var rabbit *rabbitmq.Publisher
	if cfg.RabbitURL != "" {
		rabbit, err = rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			logg.Warn("rabbitmq unavailable, async chat disabled", "error", err)
			rabbit = nil
		} else {
			defer rabbit.Close()
		}
	}

	h := handlers.NewHandler(gdb, cfg, profiles, chatSvc, screeningSvc, centersRepo, rabbit, logg)
	r := httpapi.NewRouter(h)

	logg.Info("server listening", "addr", cfg.HTTPAddr)
	if err := r.Run(cfg.HTTPAddr); err != nil {
		logg.Fatal("server stopped", "error", err)
	}
}
