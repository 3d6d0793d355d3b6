package main

import (
	"os"

	log "github.com/sirupsen/logrus"

	"investledger/internal/app"
	"investledger/internal/config"
	"investledger/internal/db"
	"investledger/internal/notify"
)

func main() {
	root := newRootCmd(openBackend)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// openBackend connects to the database named by the environment. One-shot
// commands publish nothing.
func openBackend() (*backend, func(), error) {
	cfg := config.Load()
	cfg.ConfigureLogging()
	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	ledger, err := app.New(cfg, database, notify.Nop{})
	if err != nil {
		_ = database.Close()
		return nil, nil, err
	}
	closeFn := func() {
		if err := database.Close(); err != nil {
			log.WithError(err).Warn("Failed to close database")
		}
	}
	return &backend{
		balances:    ledger.Balances,
		investments: ledger.Investments,
		withdrawals: ledger.Withdrawals,
		plans:       ledger.Plans,
		reporting:   ledger.Reporting,
		admins:      ledger.Admin,
		txRunner:    ledger.TxRunner,
	}, closeFn, nil
}
