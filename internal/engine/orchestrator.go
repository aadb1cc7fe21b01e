package engine

import (
	"context"
	"time"

	"github.com/betbot/vaultbot/internal/domain"
	"github.com/betbot/vaultbot/internal/ledger"
	"github.com/betbot/vaultbot/internal/metrics"
	"github.com/betbot/vaultbot/internal/recommend"
	"github.com/betbot/vaultbot/pkg/logger"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// OrchestratorConfig carries the round-level tunables.
type OrchestratorConfig struct {
	Wallet           string
	DryRun           bool
	SettleDelay      time.Duration
	TakeProfitRoePct float64
	MinExitRoePct    float64
}

// RebalanceOrchestrator runs one end-to-end round: priority-ordered
// withdrawals, settle delay, then plan execution.
//
// The withdrawal priority order is a strict contract: reordering changes
// which capital gets locked versus freed.
type RebalanceOrchestrator struct {
	client   ledger.Client
	provider recommend.Provider
	planner  *AllocationPlanner
	executor *TransferExecutor
	cfg      OrchestratorConfig
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration)
}

func NewRebalanceOrchestrator(
	client ledger.Client,
	provider recommend.Provider,
	planner *AllocationPlanner,
	executor *TransferExecutor,
	cfg OrchestratorConfig,
) *RebalanceOrchestrator {
	return &RebalanceOrchestrator{
		client:   client,
		provider: provider,
		planner:  planner,
		executor: executor,
		cfg:      cfg,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// RunRound executes one full rebalancing round. Individual transfer
// failures never abort the round; only snapshot/fetch failures do.
func (o *RebalanceOrchestrator) RunRound(ctx context.Context) (*domain.RoundResult, error) {
	result := &domain.RoundResult{
		ID:        uuid.NewString(),
		StartedAt: o.now(),
		DryRun:    o.cfg.DryRun,
	}
	log := logger.WithField("round", result.ID)
	log.Info("rebalance round started")

	recs, err := o.provider.GetRecommendations(ctx)
	if err != nil {
		return result, errors.Wrap(err, "fetch recommendations")
	}
	result.Recommended = recs.VaultAddresses()

	positions, err := o.client.GetPositions(ctx, o.cfg.Wallet)
	if err != nil {
		return result, errors.Wrap(err, "read positions")
	}
	balance, err := o.client.GetAvailableBalance(ctx, o.cfg.Wallet)
	if err != nil {
		return result, errors.Wrap(err, "read balance")
	}

	// Priority 1: inactive-vault exit. Capital stuck in a dormant vault
	// must not wait for a profit/loss condition.
	inactive := make(map[string]bool)
	for _, pos := range positions {
		if !pos.IsInactive() {
			continue
		}
		inactive[pos.VaultAddress] = true
		log.WithFields(logrus.Fields{"vault": pos.VaultAddress, "equityUsd": pos.EquityUsd}).
			Info("inactive vault, full exit")
		action := o.executor.Withdraw(ctx, pos, false)
		result.Withdrawals = append(result.Withdrawals, action)
		countWithdrawal(action)
	}

	// Priority 2: take-profit partial withdrawal on still-recommended,
	// over-allocated winners.
	targets := o.barbellTargets(recs, positions, balance)
	for _, pos := range positions {
		if inactive[pos.VaultAddress] || !recs.Contains(pos.VaultAddress) {
			continue
		}
		if pos.RoePct < o.cfg.TakeProfitRoePct {
			continue
		}
		target, ok := targets[pos.VaultAddress]
		if !ok || pos.EquityUsd <= target {
			continue
		}
		log.WithFields(logrus.Fields{
			"vault":     pos.VaultAddress,
			"equityUsd": pos.EquityUsd,
			"targetUsd": target,
			"roePct":    pos.RoePct,
		}).Info("take-profit withdrawal down to target")
		action := o.executor.WithdrawToTarget(ctx, pos, target)
		result.TpWithdrawals = append(result.TpWithdrawals, action)
		countWithdrawal(action)
	}

	// Priority 3: full exit from non-recommended vaults, ROE-gated.
	// Below the threshold the position is deliberately carried rather
	// than realizing a small loss.
	for _, pos := range positions {
		if inactive[pos.VaultAddress] || recs.Contains(pos.VaultAddress) {
			continue
		}
		if pos.RoePct < o.cfg.MinExitRoePct {
			log.WithFields(logrus.Fields{"vault": pos.VaultAddress, "roePct": pos.RoePct}).
				Debug("non-recommended position below exit threshold, carrying")
			continue
		}
		log.WithFields(logrus.Fields{"vault": pos.VaultAddress, "roePct": pos.RoePct}).
			Info("non-recommended vault, full exit")
		action := o.executor.Withdraw(ctx, pos, false)
		result.Withdrawals = append(result.Withdrawals, action)
		countWithdrawal(action)
	}

	// Settle delay: give the ledger time to reflect freed balance before
	// the deposit-phase balance read. Nothing submitted means nothing to
	// wait for. Only the balance is refreshed; the position snapshot is
	// fixed at round start, so vaults exited above keep their exposure
	// and cannot be re-deposited by the plan below.
	if result.AnyWithdrawalSubmitted() && o.cfg.SettleDelay > 0 {
		log.Infof("waiting %s for withdrawals to settle", o.cfg.SettleDelay)
		o.sleep(ctx, o.cfg.SettleDelay)
		if ctx.Err() != nil {
			result.FinishedAt = o.now()
			return result, errors.Wrap(ctx.Err(), "settle delay interrupted")
		}

		balance, err = o.client.GetAvailableBalance(ctx, o.cfg.Wallet)
		if err != nil {
			return result, errors.Wrap(err, "re-read balance after settle")
		}
	}

	plan := o.planner.BuildPlan(recs, positions, balance)
	result.Deposits = o.executor.ExecuteDeposits(ctx, plan)

	result.FinishedAt = o.now()
	log.WithFields(logrus.Fields{
		"withdrawals":      len(result.Withdrawals),
		"tpWithdrawals":    len(result.TpWithdrawals),
		"depositSubmitted": result.Deposits.Submitted,
		"depositSkipped":   result.Deposits.Skipped,
		"depositErrors":    result.Deposits.Errors,
	}).Info("rebalance round finished")
	return result, nil
}

// barbellTargets computes each recommended vault's barbell target for
// the take-profit comparison, using the full bucket counts.
func (o *RebalanceOrchestrator) barbellTargets(recs *domain.RecommendationSet, positions []domain.Position, balance float64) map[string]float64 {
	var investedUsd float64
	for _, pos := range positions {
		investedUsd += pos.EquityUsd
	}
	totalCapital := balance + investedUsd

	highPct, lowPct := o.planner.cfg.HighPct, o.planner.cfg.LowPct
	if sa := recs.Suggested; sa != nil && sa.HighPct+sa.LowPct > 0 {
		highPct, lowPct = sa.HighPct, sa.LowPct
	}

	// Mirror the planner's empty-bucket policy so take-profit targets
	// and deposit targets agree within a round.
	if len(recs.HighConfidence) == 0 && o.planner.cfg.ReassignEmptyBucket {
		lowPct += highPct
		highPct = 0
	}
	if len(recs.LowConfidence) == 0 && o.planner.cfg.ReassignEmptyBucket {
		highPct += lowPct
		lowPct = 0
	}

	targets := make(map[string]float64, len(recs.HighConfidence)+len(recs.LowConfidence))
	if n := len(recs.HighConfidence); n > 0 {
		per := totalCapital * highPct / 100 / float64(n)
		for _, r := range recs.HighConfidence {
			targets[r.VaultAddress] = per
		}
	}
	if n := len(recs.LowConfidence); n > 0 {
		per := totalCapital * lowPct / 100 / float64(n)
		for _, r := range recs.LowConfidence {
			targets[r.VaultAddress] = per
		}
	}
	return targets
}

func countWithdrawal(a domain.TransferAction) {
	switch a.Status {
	case domain.TransferSubmitted, domain.TransferPrepared:
		metrics.WithdrawalsSubmitted.Add(1)
	case domain.TransferSkipped:
		metrics.WithdrawalsSkipped.Add(1)
	case domain.TransferError:
		metrics.WithdrawalsErrored.Add(1)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
