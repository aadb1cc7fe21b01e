package domain

import "time"

// DepositTarget is one planned new deposit. DepositUsd never exceeds
// TargetUsd; proportional scaling only shrinks.
type DepositTarget struct {
	VaultAddress string
	Confidence   ConfidenceBucket
	TargetUsd    float64
	DepositUsd   float64
}

// DepositPlan is the aggregate deposit plan for one round. Invariant:
// the sum of DepositUsd over targets never exceeds AvailableBalanceUsd
// beyond rounding tolerance.
type DepositPlan struct {
	GeneratedAt         time.Time
	AvailableBalanceUsd float64
	TotalCapitalUsd     float64
	Targets             []DepositTarget

	// UnallocatedUsd is the share of an empty confidence bucket that was
	// NOT folded into the other bucket (reassignment disabled). Surfaced
	// so capital is never dropped silently.
	UnallocatedUsd float64
}

// TotalDepositUsd sums the planned deposits.
func (p *DepositPlan) TotalDepositUsd() float64 {
	var sum float64
	for _, t := range p.Targets {
		sum += t.DepositUsd
	}
	return sum
}
