// Package worker runs background maintenance against the ledger.
package worker

import (
	"context"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

// MaturityCompleter marks investments whose cycle has elapsed as completed.
type MaturityCompleter interface {
	CompleteMatured(ctx context.Context) (int64, error)
}

// Sweeper periodically completes matured investments. Completion never
// changes balances, so a missed or late run only delays the status flip.
type Sweeper struct {
	investments MaturityCompleter
	interval    time.Duration
	runs        atomic.Int64
}

func NewSweeper(investments MaturityCompleter, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Sweeper{investments: investments, interval: interval}
}

// Start runs one sweep immediately and then one per interval until ctx is
// cancelled or the returned stop function is called.
func (s *Sweeper) Start(ctx context.Context) func() {
	stopChan := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		log.WithField("interval", s.interval).Info("Maturity sweeper started")

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.RunOnce(ctx)
		for {
			select {
			case <-ctx.Done():
				log.Info("Maturity sweeper shutting down (context cancelled)...")
				return
			case <-stopChan:
				log.Info("Maturity sweeper shutting down (stop requested)...")
				return
			case <-ticker.C:
				s.RunOnce(ctx)
			}
		}
	}()

	var once atomic.Bool
	return func() {
		if once.CompareAndSwap(false, true) {
			close(stopChan)
		}
		<-done
	}
}

// RunOnce performs a single sweep and reports how many investments completed.
func (s *Sweeper) RunOnce(ctx context.Context) int64 {
	s.runs.Add(1)
	started := time.Now()
	completed, err := s.investments.CompleteMatured(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.WithError(err).Error("Maturity sweep failed")
		}
		return 0
	}
	log.WithFields(log.Fields{
		"completed":   completed,
		"duration_ms": time.Since(started).Milliseconds(),
	}).Info("Maturity sweep finished")
	return completed
}

// Runs reports how many sweeps have been attempted.
func (s *Sweeper) Runs() int64 {
	return s.runs.Load()
}
