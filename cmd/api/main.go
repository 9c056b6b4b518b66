package main

import (
	"context"
	"database/sql"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose"
	r "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/you/qragasync/internal/api"
	"github.com/you/qragasync/internal/catalog"
	"github.com/you/qragasync/internal/config"
	"github.com/you/qragasync/internal/export"
	"github.com/you/qragasync/internal/jobstore"
	"github.com/you/qragasync/internal/queue"
	"github.com/you/qragasync/internal/sink"
	"github.com/you/qragasync/internal/transform"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config", zap.Error(err))
	}

	if err := migrate(cfg); err != nil {
		log.Fatal("migrations", zap.Error(err))
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
	cat := catalog.New(db)
	client := sink.New(sinkCfg, cfg.SinkTimeout, cfg.SinkRPS, log)
	tr := transform.New(cfg.StoreCurrency)

	ctrl := export.New(export.Params{
		Catalog:     cat,
		Sink:        client,
		Transformer: tr,
		Store:       jobstore.New(rdb, cfg.JobTTL),
		Scheduler:   queue.New(rdb),
		SinkConfig:  sinkCfg,
		BatchSize:   cfg.BatchSize,
		Log:         log,
	})
	syncer := export.NewItemSyncer(cat, client, tr, sinkCfg, log)

	srv := &http.Server{
		Addr:              cfg.APIAddr,
		Handler:           api.NewServer(ctrl, syncer, log).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown", zap.Error(err))
		}
	}()

	log.Info("api listening", zap.String("addr", cfg.APIAddr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("serve", zap.Error(err))
	}
}

func migrate(cfg config.Config) error {
	db, err := sql.Open("pgx", cfg.PostgresDSN)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.Up(db, cfg.MigrationsDir)
}
