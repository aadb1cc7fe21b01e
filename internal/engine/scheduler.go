package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/betbot/vaultbot/internal/domain"
	"github.com/betbot/vaultbot/internal/ledger"
	"github.com/betbot/vaultbot/internal/metrics"
	"github.com/betbot/vaultbot/pkg/logger"
	"github.com/sirupsen/logrus"
)

// RoundRunner is what the scheduler triggers; satisfied by
// *RebalanceOrchestrator.
type RoundRunner interface {
	RunRound(ctx context.Context) (*domain.RoundResult, error)
}

// RoundRecorder receives finished rounds; satisfied by *history.Store.
// A nil recorder disables persistence.
type RoundRecorder interface {
	Save(ctx context.Context, r *domain.RoundResult) error
}

// SchedulerConfig carries the timer tunables.
type SchedulerConfig struct {
	Enabled  bool
	Interval time.Duration
	Wallet   string
}

// RebalanceScheduler triggers rebalancing rounds on a fixed interval,
// resuming correctly across restarts and never running two rounds
// concurrently. The in-flight guard is process-local; single-instance
// deployment is assumed.
type RebalanceScheduler struct {
	client   ledger.Client
	runner   RoundRunner
	recorder RoundRecorder
	cfg      SchedulerConfig

	running   atomic.Bool // round in progress
	started   atomic.Bool // Start called
	startOnce sync.Once
	now       func() time.Time
}

func NewRebalanceScheduler(client ledger.Client, runner RoundRunner, recorder RoundRecorder, cfg SchedulerConfig) *RebalanceScheduler {
	return &RebalanceScheduler{
		client:   client,
		runner:   runner,
		recorder: recorder,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Start launches the timer loop. Idempotent: a second call is a no-op.
// With the engine disabled or a non-positive interval the scheduler
// logs and stays inert.
func (s *RebalanceScheduler) Start(ctx context.Context) {
	if !s.started.CompareAndSwap(false, true) {
		logger.Warn("scheduler already started, ignoring")
		return
	}
	if !s.cfg.Enabled {
		logger.Info("rebalancing disabled, scheduler inert")
		return
	}
	if s.cfg.Interval <= 0 {
		logger.Errorf("invalid rebalance interval %v, scheduler inert", s.cfg.Interval)
		return
	}

	delay := s.initialDelay(ctx)
	logger.WithFields(logrus.Fields{
		"interval":     s.cfg.Interval,
		"initialDelay": delay,
	}).Info("rebalance scheduler started")

	go s.loop(ctx, delay)
}

// initialDelay resumes the cadence across restarts: the next round fires
// interval-after-the-last-deposit, not interval-after-boot. A failed
// ledger read degrades to "no prior deposit" (run now).
func (s *RebalanceScheduler) initialDelay(ctx context.Context) time.Duration {
	last, err := s.client.GetLastDepositTime(ctx, s.cfg.Wallet)
	if err != nil {
		logger.Warnf("last deposit time unavailable, scheduling immediately: %v", err)
		return 0
	}
	if last.IsZero() {
		return 0
	}
	elapsed := s.now().Sub(last)
	if elapsed >= s.cfg.Interval {
		return 0
	}
	return s.cfg.Interval - elapsed
}

func (s *RebalanceScheduler) loop(ctx context.Context, initialDelay time.Duration) {
	timer := time.NewTimer(initialDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("rebalance scheduler stopped")
			return
		case <-timer.C:
			// Re-arm before running so the cadence stays fixed at
			// Interval regardless of round duration; the in-flight
			// guard absorbs any tick that fires mid-round.
			timer.Reset(s.cfg.Interval)
			s.RunOnce(ctx)
		}
	}
}

// RunOnce triggers a single round. If a round is already in progress the
// call is a logged no-op: at most one concurrent round, no backlog. Any
// failure is caught here; nothing propagates to the timer.
func (s *RebalanceScheduler) RunOnce(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		metrics.RoundsSkippedBusy.Add(1)
		logger.Warn("rebalance round already in progress, skipping trigger")
		return
	}
	defer s.running.Store(false)

	result := s.runGuarded(ctx)
	metrics.RoundsRun.Add(1)
	if result.Err != "" {
		metrics.RoundErrors.Add(1)
	}

	if s.recorder != nil {
		saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.recorder.Save(saveCtx, result); err != nil {
			logger.Errorf("persist round result: %v", err)
		}
	}
}

// runGuarded converts panics and errors into a RoundResult; a single bad
// round must never crash the service or desynchronize the timer.
func (s *RebalanceScheduler) runGuarded(ctx context.Context) (result *domain.RoundResult) {
	defer func() {
		if r := recover(); r != nil {
			if result == nil {
				result = &domain.RoundResult{StartedAt: s.now()}
			}
			result.Err = fmt.Sprintf("panic: %v", r)
			result.FinishedAt = s.now()
			logger.Errorf("rebalance round panicked: %v", r)
		}
	}()

	result, err := s.runner.RunRound(ctx)
	if result == nil {
		result = &domain.RoundResult{StartedAt: s.now()}
	}
	if err != nil {
		result.Err = err.Error()
		if result.FinishedAt.IsZero() {
			result.FinishedAt = s.now()
		}
		logger.Errorf("rebalance round failed: %v", err)
	}
	return result
}
