package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"time"

	_ "github.com/lib/pq"

	"github.com/fundpool/fundpool/internal/accounts"
	"github.com/fundpool/fundpool/internal/auth"
	"github.com/fundpool/fundpool/internal/config"
	"github.com/fundpool/fundpool/internal/events/kafka"
	"github.com/fundpool/fundpool/internal/interfaces"
	"github.com/fundpool/fundpool/internal/server"
	"github.com/fundpool/fundpool/internal/storage/memory"
	"github.com/fundpool/fundpool/internal/storage/postgres"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("load config failed", "error", err.Error())
		os.Exit(1)
	}

	var store interfaces.Store
	if cfg.PostgresDSN != "" {
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			logger.Error("open postgres failed", "error", err.Error())
			os.Exit(1)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			logger.Error("ping postgres failed", "error", err.Error())
			os.Exit(1)
		}
		pg := postgres.NewStore(db)
		if err := pg.InitSchema(ctx); err != nil {
			logger.Error("init schema failed", "error", err.Error())
			os.Exit(1)
		}
		store = pg
		logger.Info("using postgres store")
	} else {
		store = memory.NewStore()
		logger.Warn("POSTGRES_DSN not set, using in-memory store")
	}

	var publisher interfaces.EventPublisher
	if len(cfg.KafkaBrokers) > 0 {
		kp := kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kp.Close()
		publisher = kp
		logger.Info("publishing events", "topic", cfg.KafkaTopic)
	}

	secret := cfg.JWTSecret
	if secret == "" {
		secret = "fundpool-dev-secret"
		logger.Warn("JWT_SECRET not set, using development secret")
	}

	authn := auth.NewAuthenticator(store, []byte(secret), cfg.TokenTTL, logger)
	svc := accounts.NewService(store, publisher, logger)
	srv := server.New(svc, authn, logger)

	if err := srv.Start(cfg.HTTPAddr); err != nil {
		logger.Error("http server stopped", "error", err.Error())
		os.Exit(1)
	}
}
