package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/betbot/vaultbot/internal/domain"
	"github.com/betbot/vaultbot/internal/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		DryRun:            false,
		MinDepositUsd:     5,
		WithdrawBufferBps: 10,
	}
}

func insufficientErr() error {
	return fmt.Errorf("%w: request exceeds withdrawable margin", ledger.ErrInsufficientEquity)
}

func transportErr() error {
	return &ledger.TransportError{Op: "transfer", Status: 502, Err: fmt.Errorf("bad gateway")}
}

func TestDeposit_BelowMinimumIsIdempotentSkip(t *testing.T) {
	fl := &fakeLedger{}
	e := NewTransferExecutor(fl, defaultExecutorConfig())

	for i := 0; i < 2; i++ {
		action := e.Deposit(context.Background(), "V1", 3.50)
		assert.Equal(t, domain.TransferSkipped, action.Status)
		assert.Equal(t, ReasonBelowMinimum, action.Reason)
	}
	assert.Empty(t, fl.transferCalls(), "sub-minimum deposits must never hit the transfer API")
}

func TestDeposit_ZeroAmountSkipped(t *testing.T) {
	fl := &fakeLedger{}
	e := NewTransferExecutor(fl, defaultExecutorConfig())

	action := e.Deposit(context.Background(), "V1", 0)
	assert.Equal(t, domain.TransferSkipped, action.Status)
	assert.Equal(t, ReasonZeroAmount, action.Reason)
	assert.Empty(t, fl.transferCalls())
}

func TestDeposit_DryRunPrepared(t *testing.T) {
	fl := &fakeLedger{}
	cfg := defaultExecutorConfig()
	cfg.DryRun = true
	e := NewTransferExecutor(fl, cfg)

	action := e.Deposit(context.Background(), "V1", 84)
	assert.Equal(t, domain.TransferPrepared, action.Status)
	assert.Equal(t, int64(84_000_000), action.UsdMicros)
	assert.Empty(t, fl.transferCalls())
}

func TestDeposit_SubmitOnceNoAmountRetry(t *testing.T) {
	fl := &fakeLedger{transferErrs: []error{insufficientErr()}}
	e := NewTransferExecutor(fl, defaultExecutorConfig())

	action := e.Deposit(context.Background(), "V1", 84)
	assert.Equal(t, domain.TransferError, action.Status)
	assert.Len(t, fl.transferCalls(), 1, "deposits are not retried at reduced amounts")
}

func TestDeposit_Submitted(t *testing.T) {
	fl := &fakeLedger{}
	e := NewTransferExecutor(fl, defaultExecutorConfig())

	action := e.Deposit(context.Background(), "V1", 84)
	require.Equal(t, domain.TransferSubmitted, action.Status)
	calls := fl.transferCalls()
	require.Len(t, calls, 1)
	assert.True(t, calls[0].IsDeposit)
	assert.Equal(t, int64(84_000_000), calls[0].UsdMicros)
}

func TestWithdraw_LockedSkipped(t *testing.T) {
	fl := &fakeLedger{}
	e := NewTransferExecutor(fl, defaultExecutorConfig())

	pos := domain.Position{
		VaultAddress: "V1",
		EquityUsd:    100,
		LockedUntil:  time.Now().Add(time.Hour),
	}
	action := e.Withdraw(context.Background(), pos, false)
	assert.Equal(t, domain.TransferSkipped, action.Status)
	assert.Equal(t, ReasonLocked, action.Reason)
	assert.Empty(t, fl.transferCalls())
}

func TestWithdraw_LockOverride(t *testing.T) {
	fl := &fakeLedger{}
	e := NewTransferExecutor(fl, defaultExecutorConfig())

	pos := domain.Position{
		VaultAddress: "V1",
		EquityUsd:    100,
		LockedUntil:  time.Now().Add(time.Hour),
	}
	action := e.Withdraw(context.Background(), pos, true)
	assert.Equal(t, domain.TransferSubmitted, action.Status)
	require.Len(t, fl.transferCalls(), 1)
}

func TestWithdraw_AppliesSafetyBuffer(t *testing.T) {
	fl := &fakeLedger{}
	e := NewTransferExecutor(fl, defaultExecutorConfig())

	action := e.Withdraw(context.Background(), domain.Position{VaultAddress: "V1", EquityUsd: 1000}, false)
	require.Equal(t, domain.TransferSubmitted, action.Status)
	calls := fl.transferCalls()
	require.Len(t, calls, 1)
	// 10 bps off 1000 = 999
	assert.Equal(t, int64(999_000_000), calls[0].UsdMicros)
	assert.False(t, calls[0].IsDeposit)
}

// The ladder retries at strictly decreasing fractions of the ORIGINAL
// amount and stops at the first success.
func TestWithdraw_LadderStopsOnSuccess(t *testing.T) {
	fl := &fakeLedger{transferErrs: []error{insufficientErr(), insufficientErr(), insufficientErr()}}
	e := NewTransferExecutor(fl, defaultExecutorConfig())

	action := e.Withdraw(context.Background(), domain.Position{VaultAddress: "V1", EquityUsd: 1000}, false)
	require.Equal(t, domain.TransferSubmitted, action.Status)

	calls := fl.transferCalls()
	require.Len(t, calls, 4) // full, 95%, 90%, 85% (success)
	for i := 1; i < len(calls); i++ {
		assert.Less(t, calls[i].UsdMicros, calls[i-1].UsdMicros, "ladder amounts must strictly decrease")
	}
	base := float64(calls[0].UsdMicros)
	assert.InDelta(t, base*0.95, float64(calls[1].UsdMicros), 1)
	assert.InDelta(t, base*0.90, float64(calls[2].UsdMicros), 1)
	assert.InDelta(t, base*0.85, float64(calls[3].UsdMicros), 1)
	assert.Equal(t, calls[3].UsdMicros, action.UsdMicros)
}

func TestWithdraw_LadderStopsOnNonInsufficientError(t *testing.T) {
	fl := &fakeLedger{transferErrs: []error{insufficientErr(), transportErr()}}
	e := NewTransferExecutor(fl, defaultExecutorConfig())

	action := e.Withdraw(context.Background(), domain.Position{VaultAddress: "V1", EquityUsd: 1000}, false)
	assert.Equal(t, domain.TransferError, action.Status)
	assert.Contains(t, action.Error, "bad gateway")
	assert.Len(t, fl.transferCalls(), 2, "a transport error must not walk the ladder")
}

func TestWithdraw_LadderExhausted(t *testing.T) {
	errs := make([]error, 9) // full attempt + 8 rungs
	for i := range errs {
		errs[i] = insufficientErr()
	}
	fl := &fakeLedger{transferErrs: errs}
	e := NewTransferExecutor(fl, defaultExecutorConfig())

	action := e.Withdraw(context.Background(), domain.Position{VaultAddress: "V1", EquityUsd: 1000}, false)
	assert.Equal(t, domain.TransferError, action.Status)
	assert.Len(t, fl.transferCalls(), 9)
}

// Retry amounts below the $1 floor are never attempted.
func TestWithdraw_LadderRespectsFloor(t *testing.T) {
	errs := make([]error, 20)
	for i := range errs {
		errs[i] = insufficientErr()
	}
	fl := &fakeLedger{transferErrs: errs}
	e := NewTransferExecutor(fl, defaultExecutorConfig())

	action := e.Withdraw(context.Background(), domain.Position{VaultAddress: "V1", EquityUsd: 1.80}, false)
	assert.Equal(t, domain.TransferError, action.Status)

	for _, c := range fl.transferCalls()[1:] {
		assert.GreaterOrEqual(t, c.UsdMicros, int64(1_000_000), "no retry below the $1 floor")
	}
	// 50% of ~1.798 is below the floor, so the last rung is 60%.
	calls := fl.transferCalls()
	require.NotEmpty(t, calls)
	last := calls[len(calls)-1]
	assert.InDelta(t, 1.80*0.999*0.60*1e6, float64(last.UsdMicros), 1e3)
}

func TestWithdraw_DryRunPrepared(t *testing.T) {
	fl := &fakeLedger{}
	cfg := defaultExecutorConfig()
	cfg.DryRun = true
	e := NewTransferExecutor(fl, cfg)

	action := e.Withdraw(context.Background(), domain.Position{VaultAddress: "V1", EquityUsd: 100}, false)
	assert.Equal(t, domain.TransferPrepared, action.Status)
	assert.Empty(t, fl.transferCalls())
}

func TestWithdrawToTarget_AlreadyAtTarget(t *testing.T) {
	fl := &fakeLedger{}
	e := NewTransferExecutor(fl, defaultExecutorConfig())

	pos := domain.Position{VaultAddress: "V1", EquityUsd: 80}
	action := e.WithdrawToTarget(context.Background(), pos, 84)
	assert.Equal(t, domain.TransferSkipped, action.Status)
	assert.Equal(t, ReasonAlreadyTarget, action.Reason)
	assert.Empty(t, fl.transferCalls())
}

func TestWithdrawToTarget_WithdrawsExcess(t *testing.T) {
	fl := &fakeLedger{}
	e := NewTransferExecutor(fl, defaultExecutorConfig())

	pos := domain.Position{VaultAddress: "V1", EquityUsd: 150}
	action := e.WithdrawToTarget(context.Background(), pos, 100)
	require.Equal(t, domain.TransferSubmitted, action.Status)
	calls := fl.transferCalls()
	require.Len(t, calls, 1)
	// excess 50, minus 10 bps buffer
	assert.InDelta(t, 50*0.999*1e6, float64(calls[0].UsdMicros), 1)
}

func TestExecuteDeposits_ContinuesPastFailures(t *testing.T) {
	fl := &fakeLedger{transferErrs: []error{transportErr()}}
	e := NewTransferExecutor(fl, defaultExecutorConfig())

	plan := &domain.DepositPlan{
		Targets: []domain.DepositTarget{
			{VaultAddress: "V1", DepositUsd: 100},
			{VaultAddress: "V2", DepositUsd: 2}, // below minimum
			{VaultAddress: "V3", DepositUsd: 50},
		},
	}
	outcome := e.ExecuteDeposits(context.Background(), plan)

	assert.Equal(t, 1, outcome.Errors)
	assert.Equal(t, 1, outcome.Skipped)
	assert.Equal(t, 1, outcome.Submitted)
	require.Len(t, outcome.Actions, 3)
	assert.Len(t, fl.transferCalls(), 2)
}
