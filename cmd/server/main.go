package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"investledger/internal/app"
	"investledger/internal/catalog"
	"investledger/internal/config"
	"investledger/internal/db"
	"investledger/internal/handlers"
	"investledger/internal/notify"
	"investledger/internal/websocket"
	"investledger/internal/worker"
)

func main() {
	cfg := config.Load()
	cfg.ConfigureLogging()

	if cfg.AutoMigrate {
		if err := db.MigrateUp(cfg.DatabaseURL); err != nil {
			log.WithError(err).Fatal("Failed to migrate database")
		}
	}

	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect database")
	}
	defer database.Close()

	hub := websocket.NewHub()
	notifier := notify.Fanout{notify.NewHubNotifier(hub)}
	if cfg.NATSURL != "" {
		nc, err := notify.ConnectNATS(cfg.NATSURL, "investledger")
		if err != nil {
			log.WithError(err).Fatal("Failed to connect NATS")
		}
		defer nc.Drain()
		notifier = append(notifier, notify.NewNATSNotifier(nc, cfg.NATSSubjectPrefix))
	}

	ledger, err := app.New(cfg, database, notifier)
	if err != nil {
		log.WithError(err).Fatal("Failed to build services")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.PlanCatalogPath != "" {
		plans, err := catalog.LoadFile(cfg.PlanCatalogPath)
		if err != nil {
			log.WithError(err).Fatal("Failed to load plan catalog")
		}
		count, err := ledger.Plans.ImportPlans(ctx, plans, "")
		if err != nil {
			log.WithError(err).Fatal("Failed to seed plan catalog")
		}
		log.WithFields(log.Fields{"path": cfg.PlanCatalogPath, "plans": count}).Info("Seeded plan catalog")
	}

	stopSweeper := worker.NewSweeper(ledger.Investments, cfg.SweepInterval).Start(ctx)

	handler := handlers.New(cfg, ledger.TxRunner, handlers.Deps{
		Plans:       ledger.Plans,
		Investments: ledger.Investments,
		Balances:    ledger.Balances,
		Withdrawals: ledger.Withdrawals,
		Referrals:   ledger.Referrals,
		Reporting:   ledger.Reporting,
		Admin:       ledger.Admin,
		Audit:       ledger.Audit,
		DB:          database,
	}, hub)
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithField("addr", server.Addr).Info("investledger API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Server error")
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown
	log.Info("Received shutdown signal, shutting down gracefully...")

	stopSweeper()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Shutdown error")
	}
}
