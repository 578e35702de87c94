package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/suPer8Hu/appgen/internal/ai"
	"github.com/suPer8Hu/appgen/internal/chat"
	"github.com/suPer8Hu/appgen/internal/config"
	"github.com/suPer8Hu/appgen/internal/db"
	"github.com/suPer8Hu/appgen/internal/store/redisstore"
	"gorm.io/gorm"
)

type deps struct {
	DB    *gorm.DB
	Repo  *chat.Repo
	Svc   *chat.Service
	Redis *redisstore.Store
}

func (d *deps) Close() {
	if d.Redis != nil {
		_ = d.Redis.Close()
	}
	if sqlDB, err := d.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func routerConfig(cfg config.Config) ai.RouterConfig {
	return ai.RouterConfig{
		SelfHostedModel:    cfg.ModelName,
		SelfHostedEndpoint: cfg.BackendAIEndpoint,
		SelfHostedAPIKey:   cfg.BackendAIAPIKey,
		PrimaryAPIKey:      cfg.TogetherAPIKey,
		ProxyAPIKey:        cfg.HeliconeAPIKey,
		ProxyBaseURL:       cfg.HeliconeBaseURL,
		AppName:            cfg.AppName,
	}
}

// buildDeps connects storage and assembles the chat service shared by the
// server and the worker.
func buildDeps(cfg config.Config) *deps {
	gdb := db.Connect(cfg.DBDriver, cfg.DBDSN)
	repo := chat.NewRepo(gdb)

	svc := chat.NewService(
		repo,
		ai.NewRouter(routerConfig(cfg)),
		ai.NewDefaultRegistry(ai.NewHTTPClient(), cfg.TogetherBaseURL),
		chat.Options{
			HelperModel:     cfg.HelperModel,
			VisionModel:     cfg.VisionModel,
			StageTimeout:    cfg.StageTimeout,
			StreamMaxTokens: cfg.StreamMaxTokens,
		},
	)

	d := &deps{DB: gdb, Repo: repo, Svc: svc}
	if cfg.RedisAddr != "" {
		rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.StreamLockTTL)
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := rds.Ping(ctx); err != nil {
			slog.Warn("redis unavailable, stream locking disabled", "addr", cfg.RedisAddr, "err", err)
			_ = rds.Close()
		} else {
			d.Redis = rds
			svc.WithLocker(rds)
		}
	}

	slog.Info("deps ready",
		"db_driver", cfg.DBDriver,
		"self_hosted_model", cfg.ModelName,
		"proxy", cfg.HeliconeAPIKey != "",
		"stream_lock", d.Redis != nil,
	)
	return d
}
