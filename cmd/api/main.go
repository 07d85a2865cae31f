package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dua-platform/credits-backend/internal/api"
	"github.com/dua-platform/credits-backend/internal/catalog"
	"github.com/dua-platform/credits-backend/internal/config"
	"github.com/dua-platform/credits-backend/internal/db"
	"github.com/dua-platform/credits-backend/internal/logger"
	"github.com/dua-platform/credits-backend/internal/metrics"
	"github.com/dua-platform/credits-backend/internal/provider"
	repo "github.com/dua-platform/credits-backend/internal/repository"
	"github.com/dua-platform/credits-backend/internal/repository/postgres"
	"github.com/dua-platform/credits-backend/internal/repository/sqlite"
	"github.com/dua-platform/credits-backend/internal/services"
	"github.com/dua-platform/credits-backend/internal/worker"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cat := catalog.Default()
	if cfg.CatalogPath != "" {
		var err error
		if cat, err = catalog.Load(cfg.CatalogPath); err != nil {
			log.Error("load catalog", "err", err)
			os.Exit(1)
		}
	}

	var stores repo.Stores
	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("db connect", "err", err)
			os.Exit(1)
		}
		defer pool.Close()
		if os.Getenv("APP_MIGRATE") == "true" {
			if err := db.RunMigrations(ctx, pool); err != nil {
				log.Error("migrations", "err", err)
				os.Exit(1)
			}
		}
		stores = postgres.NewStores(pool)
		log.Info("store: postgres")
	} else {
		sdb, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			log.Error("sqlite open", "err", err)
			os.Exit(1)
		}
		defer sdb.Close()
		stores = sqlite.NewStores(sdb)
		log.Info("store: sqlite", "path", cfg.SQLitePath)
	}

	metrics.Init()
	wp := worker.NewPool(4)
	defer wp.Stop()

	creditSvc := services.NewCreditService(cat, stores.Balances, stores.Ledger, wp, log, cfg.InitialCredits, cfg.InitialCoins)
	redeemSvc := services.NewRedeemService(stores.Codes, log)

	prov := provider.Provider(provider.NewHTTP(cfg.ProviderURL, &http.Client{Timeout: 60 * time.Second}))
	runner := services.NewPaidActionRunner(creditSvc, prov, log)

	r := api.NewRouter(cfg, creditSvc, redeemSvc, runner)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("server starting", "port", cfg.HTTPPort, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server", "err", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
