// Package app wires stores and services for the binaries.
package app

import (
	"fmt"

	"github.com/jmoiron/sqlx"

	"investledger/internal/config"
	"investledger/internal/db"
	"investledger/internal/lock"
	"investledger/internal/notify"
	"investledger/internal/services"
	"investledger/internal/store"
	"investledger/internal/validator"
)

type App struct {
	DB       *sqlx.DB
	TxRunner db.TxRunner

	Admin *store.AdminStore
	Audit *store.AuditStore

	Plans       *services.PlanService
	Investments *services.InvestmentService
	Balances    *services.BalanceService
	Withdrawals *services.WithdrawalService
	Referrals   *services.ReferralService
	Reporting   *services.ReportingService
}

// New builds every service over database. Notifications go to notifier,
// which may be notify.Nop{} for one-shot tools.
func New(cfg config.Config, database *sqlx.DB, notifier notify.Notifier) (*App, error) {
	paymentValidator, err := validator.NewPaymentValidator(cfg.PhonePattern)
	if err != nil {
		return nil, fmt.Errorf("invalid PHONE_PATTERN: %w", err)
	}

	plans := store.NewPlanStore(database)
	investments := store.NewInvestmentStore(database)
	events := store.NewEventStore(database)
	partitions := store.NewPartitionStore(database)
	referrals := store.NewReferralStore(database)
	admin := store.NewAdminStore(database)
	audit := store.NewAuditStore(database)

	txRunner := db.NewTxRunner(database, cfg.TxMaxAttempts)
	guard := services.NewLedgerGuard(lock.NewOwnerGate(), partitions, cfg.PartitionLockTimeout)

	balances := services.NewBalanceService(txRunner, investments, events)
	referralService := services.NewReferralService(txRunner, database, referrals, events, guard, audit, balances, notifier)
	withdrawals := services.NewWithdrawalService(txRunner, database, balances, events, guard, audit, notifier, paymentValidator, services.WithdrawalPolicy{
		MinStandard:   cfg.MinWithdrawal,
		MinCommission: cfg.MinCommissionWithdrawal,
	})

	return &App{
		DB:          database,
		TxRunner:    txRunner,
		Admin:       admin,
		Audit:       audit,
		Plans:       services.NewPlanService(txRunner, plans, audit),
		Investments: services.NewInvestmentService(txRunner, database, plans, investments, referralService, audit, balances, notifier),
		Balances:    balances,
		Withdrawals: withdrawals,
		Referrals:   referralService,
		Reporting:   services.NewReportingService(database, investments),
	}, nil
}
