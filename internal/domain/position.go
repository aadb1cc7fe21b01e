package domain

import "time"

// Position is one vault the account currently holds equity in. Sourced
// from the ledger at round start; read-only for the duration of a round.
type Position struct {
	VaultAddress        string
	EquityUsd           float64
	LockedUntil         time.Time // zero means unlocked
	PnlUsd              float64
	RoePct              float64
	ActivePositionCount int
	TradesLast7d        int
}

// IsLocked reports whether the vault equity is still under its lockup
// at the given instant.
func (p *Position) IsLocked(now time.Time) bool {
	return !p.LockedUntil.IsZero() && p.LockedUntil.After(now)
}

// IsInactive reports whether the vault shows no on-chain activity: zero
// open positions and zero trades over the trailing week. Inactive vaults
// are exited regardless of PnL.
func (p *Position) IsInactive() bool {
	return p.ActivePositionCount == 0 && p.TradesLast7d == 0
}

// IsDust reports whether the position is below the dust threshold and
// therefore excluded from vault counting and exposure checks.
func (p *Position) IsDust(thresholdUsd float64) bool {
	return p.EquityUsd < thresholdUsd
}
