/*
scheduler.go - Automated settlement scheduler

PURPOSE:
  Periodically sweeps every processable reward group: pending events are
  decided under their cap rules and reconciled with the balance ledger.

DESIGN:
  - Runs a background goroutine with a configurable sweep interval
  - Iterates the engine's registered groups in registration order
  - Groups are swept sequentially; cap budgets are shared state and two
    concurrent sweeps could jointly over-award
  - A sweep that aborts mid-chunk is logged and retried on the next tick;
    settlement is idempotent, so the retry converges

USAGE:
  scheduler := NewSettlementScheduler(engine, log)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: TriggerSettle endpoint (manual sweep)
*/
package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/credit-engine/reward"
)

// SettlementScheduler runs the periodic settlement sweeps.
type SettlementScheduler struct {
	Engine        *reward.Engine
	SweepInterval time.Duration

	log    *zap.Logger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewSettlementScheduler creates a scheduler over the engine's
// registered processable groups.
func NewSettlementScheduler(engine *reward.Engine, log *zap.Logger) *SettlementScheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &SettlementScheduler{
		Engine:        engine,
		SweepInterval: 5 * time.Minute,
		log:           log,
		stop:          make(chan struct{}),
	}
}

// Start begins the scheduler.
func (s *SettlementScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ticker = time.NewTicker(s.SweepInterval)
	s.wg.Add(1)
	go s.run()

	s.log.Info("settlement scheduler started",
		zap.Duration("interval", s.SweepInterval),
		zap.Int("groups", len(s.Engine.Settlers())))
}

// Stop stops the scheduler and waits for an in-flight sweep to finish.
// Safe to call more than once.
func (s *SettlementScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	s.ticker = nil
	close(s.stop)
	s.wg.Wait()
	s.log.Info("settlement scheduler stopped")
}

func (s *SettlementScheduler) run() {
	defer s.wg.Done()

	// Sweep immediately on start to drain anything left over from the
	// previous process.
	s.SweepAll(context.Background())

	for {
		select {
		case <-s.ticker.C:
			s.SweepAll(context.Background())
		case <-s.stop:
			return
		}
	}
}

// SweepAll settles every registered group once, sequentially.
func (s *SettlementScheduler) SweepAll(ctx context.Context) {
	now := time.Now()
	for _, settler := range s.Engine.Settlers() {
		err := settler.Settle(ctx, now)
		switch {
		case err == nil:
		case errors.Is(err, reward.ErrSweepInProgress):
			// A manual sweep beat us to it; the next tick retries.
			s.log.Warn("sweep skipped, already running",
				zap.String("type", settler.TypeTag()))
		default:
			s.log.Error("settlement sweep failed",
				zap.String("type", settler.TypeTag()),
				zap.Error(err))
		}
	}
}
