package engine

import (
	"context"
	"errors"
	"time"

	"github.com/betbot/vaultbot/internal/domain"
	"github.com/betbot/vaultbot/internal/ledger"
	"github.com/betbot/vaultbot/internal/metrics"
	"github.com/betbot/vaultbot/pkg/logger"
	"github.com/sirupsen/logrus"
)

// retryLadder is the fixed sequence of fractions of the ORIGINAL
// withdrawal amount retried after an insufficient-equity rejection.
// Margin requirements can shift between the balance read and the
// submission; the ladder is a bounded, monotonically decreasing backoff
// over amount, not over time.
var retryLadder = []float64{0.95, 0.90, 0.85, 0.80, 0.75, 0.70, 0.60, 0.50}

// ladderFloorUsd stops the ladder before amounts the ledger would
// reject as dust anyway.
const ladderFloorUsd = 1.0

// Skip reasons surfaced on TransferAction.Reason.
const (
	ReasonZeroAmount    = "zero-amount"
	ReasonBelowMinimum  = "below-minimum"
	ReasonLocked        = "locked"
	ReasonAlreadyTarget = "already-at-target"
)

// ExecutorConfig carries the transfer-level tunables.
type ExecutorConfig struct {
	DryRun            bool
	MinDepositUsd     float64
	WithdrawBufferBps float64
}

// TransferExecutor performs one deposit or one withdrawal against the
// ledger, modeled as a small state machine with terminal states
// skipped/prepared/submitted/error.
type TransferExecutor struct {
	client ledger.Client
	cfg    ExecutorConfig
	now    func() time.Time
}

func NewTransferExecutor(client ledger.Client, cfg ExecutorConfig) *TransferExecutor {
	return &TransferExecutor{client: client, cfg: cfg, now: time.Now}
}

// Deposit submits one deposit. Deposits are never retried at reduced
// amounts: the amount is caller-chosen and already balance-constrained.
func (e *TransferExecutor) Deposit(ctx context.Context, vaultAddress string, usd float64) domain.TransferAction {
	action := domain.TransferAction{VaultAddress: vaultAddress, UsdMicros: ledger.UsdToMicros(usd)}

	if usd <= 0 {
		action.Status = domain.TransferSkipped
		action.Reason = ReasonZeroAmount
		return action
	}
	if usd < e.cfg.MinDepositUsd {
		action.Status = domain.TransferSkipped
		action.Reason = ReasonBelowMinimum
		logger.WithFields(logrus.Fields{"vault": vaultAddress, "usd": usd, "minUsd": e.cfg.MinDepositUsd}).
			Debug("deposit below minimum, skipping")
		return action
	}
	if e.cfg.DryRun {
		action.Status = domain.TransferPrepared
		logger.WithFields(logrus.Fields{"vault": vaultAddress, "usd": usd}).Info("dry-run: deposit prepared")
		return action
	}

	if err := e.client.Transfer(ctx, vaultAddress, true, action.UsdMicros); err != nil {
		action.Status = domain.TransferError
		action.Error = err.Error()
		logger.WithFields(logrus.Fields{"vault": vaultAddress, "usd": usd}).
			Errorf("deposit failed: %v", err)
		return action
	}
	action.Status = domain.TransferSubmitted
	logger.WithFields(logrus.Fields{"vault": vaultAddress, "usd": usd}).Info("deposit submitted")
	return action
}

// ExecuteDeposits runs the plan's targets sequentially. One failing
// deposit never aborts the loop.
func (e *TransferExecutor) ExecuteDeposits(ctx context.Context, plan *domain.DepositPlan) domain.DepositOutcome {
	outcome := domain.DepositOutcome{Plan: plan}
	for _, target := range plan.Targets {
		action := e.Deposit(ctx, target.VaultAddress, target.DepositUsd)
		outcome.Count(action)
		switch action.Status {
		case domain.TransferSubmitted, domain.TransferPrepared:
			metrics.DepositsSubmitted.Add(1)
		case domain.TransferSkipped:
			metrics.DepositsSkipped.Add(1)
		case domain.TransferError:
			metrics.DepositsErrored.Add(1)
		}
	}
	return outcome
}

// Withdraw fully exits a position, minus the safety buffer.
func (e *TransferExecutor) Withdraw(ctx context.Context, pos domain.Position, overrideLock bool) domain.TransferAction {
	return e.withdrawAmount(ctx, pos, pos.EquityUsd, overrideLock)
}

// WithdrawToTarget withdraws the excess above targetUsd (take-profit
// path). Already at or below target is a soft skip.
func (e *TransferExecutor) WithdrawToTarget(ctx context.Context, pos domain.Position, targetUsd float64) domain.TransferAction {
	if pos.EquityUsd <= targetUsd {
		return domain.TransferAction{
			VaultAddress: pos.VaultAddress,
			Status:       domain.TransferSkipped,
			Reason:       ReasonAlreadyTarget,
		}
	}
	return e.withdrawAmount(ctx, pos, pos.EquityUsd-targetUsd, false)
}

func (e *TransferExecutor) withdrawAmount(ctx context.Context, pos domain.Position, requestedUsd float64, overrideLock bool) domain.TransferAction {
	action := domain.TransferAction{VaultAddress: pos.VaultAddress}

	if requestedUsd <= 0 {
		action.Status = domain.TransferSkipped
		action.Reason = ReasonZeroAmount
		return action
	}
	if pos.IsLocked(e.now()) && !overrideLock {
		action.Status = domain.TransferSkipped
		action.Reason = ReasonLocked
		logger.WithFields(logrus.Fields{"vault": pos.VaultAddress, "lockedUntil": pos.LockedUntil}).
			Info("position locked, skipping withdrawal")
		return action
	}

	// The buffer keeps the request under the exact equity value so
	// rounding on the ledger side cannot reject it.
	baseUsd := requestedUsd * (1 - e.cfg.WithdrawBufferBps/10_000)
	action.UsdMicros = ledger.UsdToMicros(baseUsd)

	if e.cfg.DryRun {
		action.Status = domain.TransferPrepared
		logger.WithFields(logrus.Fields{"vault": pos.VaultAddress, "usd": baseUsd}).Info("dry-run: withdrawal prepared")
		return action
	}

	// First attempt at the full buffered amount, then the ladder.
	attempts := make([]float64, 0, 1+len(retryLadder))
	attempts = append(attempts, baseUsd)
	for _, frac := range retryLadder {
		attempts = append(attempts, baseUsd*frac)
	}

	var lastErr error
	for i, amountUsd := range attempts {
		if i > 0 {
			if amountUsd < ladderFloorUsd {
				break
			}
			metrics.LadderRetries.Add(1)
			logger.WithFields(logrus.Fields{
				"vault":   pos.VaultAddress,
				"attempt": i,
				"usd":     amountUsd,
			}).Warn("retrying withdrawal at reduced amount")
		}
		micros := ledger.UsdToMicros(amountUsd)
		action.UsdMicros = micros
		err := e.client.Transfer(ctx, pos.VaultAddress, false, micros)
		if err == nil {
			action.Status = domain.TransferSubmitted
			logger.WithFields(logrus.Fields{"vault": pos.VaultAddress, "usd": amountUsd}).Info("withdrawal submitted")
			return action
		}
		lastErr = err
		if !errors.Is(err, ledger.ErrInsufficientEquity) {
			// Only margin rejections walk the ladder.
			break
		}
	}

	action.Status = domain.TransferError
	if lastErr != nil {
		action.Error = lastErr.Error()
	} else {
		action.Error = "withdrawal amount below floor"
	}
	logger.WithFields(logrus.Fields{"vault": pos.VaultAddress}).
		Errorf("withdrawal failed: %s", action.Error)
	return action
}
