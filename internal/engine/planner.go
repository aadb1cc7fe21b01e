package engine

import (
	"sort"
	"time"

	"github.com/betbot/vaultbot/internal/domain"
	"github.com/betbot/vaultbot/pkg/logger"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// PlannerConfig carries the barbell allocation tunables.
type PlannerConfig struct {
	MaxActiveVaults     int
	HighPct             float64
	LowPct              float64
	DustThresholdUsd    float64
	ReassignEmptyBucket bool
}

// AllocationPlanner turns a recommendation set plus current balances
// into a deposit plan using barbell weighting.
type AllocationPlanner struct {
	cfg PlannerConfig
	now func() time.Time
}

func NewAllocationPlanner(cfg PlannerConfig) *AllocationPlanner {
	return &AllocationPlanner{cfg: cfg, now: time.Now}
}

// BuildPlan computes per-vault deposit targets.
//
// Per-vault sizing divides each bucket's capital share by the FULL
// recommendation count for that bucket, not the selected subset, so a
// vault's size reflects the strategy's intended concentration rather
// than how many slots happen to be free. When the free balance cannot
// cover the plan, every target shrinks by the same ratio.
func (p *AllocationPlanner) BuildPlan(recs *domain.RecommendationSet, positions []domain.Position, availableBalanceUsd float64) *domain.DepositPlan {
	plan := &domain.DepositPlan{
		GeneratedAt:         p.now(),
		AvailableBalanceUsd: availableBalanceUsd,
	}

	highPct, lowPct := p.cfg.HighPct, p.cfg.LowPct
	if sa := recs.Suggested; sa != nil && sa.HighPct+sa.LowPct > 0 {
		highPct, lowPct = sa.HighPct, sa.LowPct
	}

	var investedUsd float64
	exposed := make(map[string]bool)
	currentVaults := 0
	for _, pos := range positions {
		investedUsd += pos.EquityUsd
		if !pos.IsDust(p.cfg.DustThresholdUsd) {
			exposed[pos.VaultAddress] = true
			currentVaults++
		}
	}
	plan.TotalCapitalUsd = availableBalanceUsd + investedUsd

	// New deposits only go to vaults with no (non-dust) existing
	// exposure.
	highCandidates := filterUnexposed(recs.HighConfidence, exposed)
	lowCandidates := filterUnexposed(recs.LowConfidence, exposed)
	sortByScoreDesc(highCandidates)
	sortByScoreDesc(lowCandidates)

	availableSlots := p.cfg.MaxActiveVaults - currentVaults
	if availableSlots < 0 {
		availableSlots = 0
	}
	// High-confidence slots first, low takes the remainder.
	selectedHigh := minInt(len(highCandidates), availableSlots)
	selectedLow := minInt(len(lowCandidates), availableSlots-selectedHigh)

	totalHigh := len(recs.HighConfidence)
	totalLow := len(recs.LowConfidence)
	if sa := recs.Suggested; sa != nil {
		if sa.HighCount > 0 {
			totalHigh = sa.HighCount
		}
		if sa.LowCount > 0 {
			totalLow = sa.LowCount
		}
	}

	highShare := plan.TotalCapitalUsd * highPct / 100
	lowShare := plan.TotalCapitalUsd * lowPct / 100

	// An empty bucket (no recommendations at all) folds its share into
	// the other bucket before the per-vault division, or surfaces it as
	// unallocated; never dropped silently. A bucket whose vaults are all
	// already held keeps its share: the held positions embody it.
	if totalHigh == 0 && highShare > 0 {
		if p.cfg.ReassignEmptyBucket {
			lowShare += highShare
		} else {
			plan.UnallocatedUsd += highShare
		}
		highShare = 0
	}
	if totalLow == 0 && lowShare > 0 {
		if p.cfg.ReassignEmptyBucket {
			highShare += lowShare
		} else {
			plan.UnallocatedUsd += lowShare
		}
		lowShare = 0
	}

	var highPerVault, lowPerVault float64
	if totalHigh > 0 {
		highPerVault = highShare / float64(totalHigh)
	}
	if totalLow > 0 {
		lowPerVault = lowShare / float64(totalLow)
	}

	totalNeeded := highPerVault*float64(selectedHigh) + lowPerVault*float64(selectedLow)
	if totalNeeded <= 0 {
		logger.WithFields(logrus.Fields{
			"availableSlots": availableSlots,
			"highCandidates": len(highCandidates),
			"lowCandidates":  len(lowCandidates),
		}).Info("deposit plan empty")
		return plan
	}

	availableForDeposit := availableBalanceUsd
	scale := 1.0
	if availableForDeposit < totalNeeded {
		scale = availableForDeposit / totalNeeded
		logger.WithFields(logrus.Fields{
			"neededUsd":    totalNeeded,
			"availableUsd": availableForDeposit,
			"scaleFactor":  scale,
		}).Warn("balance short of plan, scaling all targets proportionally")
	}

	for _, r := range highCandidates[:selectedHigh] {
		plan.Targets = append(plan.Targets, makeTarget(r, highPerVault, scale))
	}
	for _, r := range lowCandidates[:selectedLow] {
		plan.Targets = append(plan.Targets, makeTarget(r, lowPerVault, scale))
	}

	logger.WithFields(logrus.Fields{
		"targets":         len(plan.Targets),
		"totalCapitalUsd": plan.TotalCapitalUsd,
		"plannedUsd":      plan.TotalDepositUsd(),
		"unallocatedUsd":  plan.UnallocatedUsd,
	}).Info("deposit plan built")
	return plan
}

func makeTarget(r domain.Recommendation, perVaultUsd, scale float64) domain.DepositTarget {
	return domain.DepositTarget{
		VaultAddress: r.VaultAddress,
		Confidence:   r.Confidence,
		TargetUsd:    roundCents(perVaultUsd),
		DepositUsd:   roundCents(perVaultUsd * scale),
	}
}

func roundCents(usd float64) float64 {
	f, _ := decimal.NewFromFloat(usd).Round(2).Float64()
	return f
}

func filterUnexposed(recs []domain.Recommendation, exposed map[string]bool) []domain.Recommendation {
	out := make([]domain.Recommendation, 0, len(recs))
	for _, r := range recs {
		if !exposed[r.VaultAddress] {
			out = append(out, r)
		}
	}
	return out
}

func sortByScoreDesc(recs []domain.Recommendation) {
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Score > recs[j].Score })
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
