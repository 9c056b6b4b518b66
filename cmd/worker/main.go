package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	r "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/you/qragasync/internal/catalog"
	"github.com/you/qragasync/internal/config"
	"github.com/you/qragasync/internal/export"
	"github.com/you/qragasync/internal/jobstore"
	"github.com/you/qragasync/internal/queue"
	"github.com/you/qragasync/internal/sink"
	"github.com/you/qragasync/internal/transform"
	"github.com/you/qragasync/internal/worker"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres", zap.Error(err))
	}
	defer db.Close()

	rdb := r.NewClient(&r.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	defer rdb.Close()

	sinkCfg := sink.Config{BaseURL: cfg.QragaEndpointURL, SiteID: cfg.QragaSiteID, APIKey: cfg.QragaAPIKey}
	q := queue.New(rdb)

	ctrl := export.New(export.Params{
		Catalog:     catalog.New(db),
		Sink:        sink.New(sinkCfg, cfg.SinkTimeout, cfg.SinkRPS, log),
		Transformer: transform.New(cfg.StoreCurrency),
		Store:       jobstore.New(rdb, cfg.JobTTL),
		Scheduler:   q,
		SinkConfig:  sinkCfg,
		BatchSize:   cfg.BatchSize,
		Log:         log,
	})

	log.Info("worker started")
	if err := worker.New(q, ctrl, log).Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal("worker", zap.Error(err))
	}
	log.Info("worker stopped")
}
