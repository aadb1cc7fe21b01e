package domain

import "time"

// DepositOutcome aggregates the deposit phase of one round.
type DepositOutcome struct {
	Submitted int
	Skipped   int
	Errors    int
	Actions   []TransferAction
	Plan      *DepositPlan
}

// Count tallies an action into the outcome.
func (o *DepositOutcome) Count(a TransferAction) {
	o.Actions = append(o.Actions, a)
	switch a.Status {
	case TransferSubmitted, TransferPrepared:
		o.Submitted++
	case TransferSkipped:
		o.Skipped++
	case TransferError:
		o.Errors++
	}
}

// RoundResult is the record of one rebalancing round, consumed by logs
// and the history store.
type RoundResult struct {
	ID            string
	StartedAt     time.Time
	FinishedAt    time.Time
	DryRun        bool
	Recommended   []string
	TpWithdrawals []TransferAction
	Withdrawals   []TransferAction
	Deposits      DepositOutcome
	Err           string // round-fatal error, empty on success
}

// AnyWithdrawalSubmitted reports whether any withdrawal in the round
// reached the ledger, which is what gates the settle delay.
func (r *RoundResult) AnyWithdrawalSubmitted() bool {
	for _, a := range r.TpWithdrawals {
		if a.Submitted() {
			return true
		}
	}
	for _, a := range r.Withdrawals {
		if a.Submitted() {
			return true
		}
	}
	return false
}
