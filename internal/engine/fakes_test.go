package engine

import (
	"context"
	"sync"
	"time"

	"github.com/betbot/vaultbot/internal/domain"
)

type transferCall struct {
	Vault     string
	IsDeposit bool
	UsdMicros int64
}

// fakeLedger implements ledger.Client. Transfer errors are served from a
// FIFO queue; an empty queue means success. With settleTransfers set,
// successful transfers are applied to the fake's state: withdrawals
// remove the position and credit the balance, deposits debit it.
type fakeLedger struct {
	mu sync.Mutex

	positions       []domain.Position
	balance         float64
	lastDeposit     time.Time
	lastDepositErr  error
	settleTransfers bool

	transferErrs []error
	calls        []transferCall

	positionReads    int
	balanceReads     int
	lastDepositReads int
}

func (f *fakeLedger) GetPositions(_ context.Context, _ string) ([]domain.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.positionReads++
	out := make([]domain.Position, len(f.positions))
	copy(out, f.positions)
	return out, nil
}

func (f *fakeLedger) GetAvailableBalance(_ context.Context, _ string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balanceReads++
	return f.balance, nil
}

func (f *fakeLedger) GetLastDepositTime(_ context.Context, _ string) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastDepositReads++
	if f.lastDepositErr != nil {
		return time.Time{}, f.lastDepositErr
	}
	return f.lastDeposit, nil
}

func (f *fakeLedger) Transfer(_ context.Context, vault string, isDeposit bool, usdMicros int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, transferCall{Vault: vault, IsDeposit: isDeposit, UsdMicros: usdMicros})
	if len(f.transferErrs) > 0 {
		err := f.transferErrs[0]
		f.transferErrs = f.transferErrs[1:]
		return err
	}
	if f.settleTransfers {
		usd := float64(usdMicros) / 1e6
		if isDeposit {
			f.balance -= usd
		} else {
			f.balance += usd
			kept := f.positions[:0]
			for _, p := range f.positions {
				if p.VaultAddress != vault {
					kept = append(kept, p)
				}
			}
			f.positions = kept
		}
	}
	return nil
}

func (f *fakeLedger) transferCalls() []transferCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]transferCall, len(f.calls))
	copy(out, f.calls)
	return out
}

// fakeProvider implements recommend.Provider.
type fakeProvider struct {
	set *domain.RecommendationSet
	err error
}

func (f *fakeProvider) GetRecommendations(_ context.Context) (*domain.RecommendationSet, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.set, nil
}

func highRec(vault string, score float64) domain.Recommendation {
	return domain.Recommendation{VaultAddress: vault, Confidence: domain.ConfidenceHigh, Score: score}
}

func lowRec(vault string, score float64) domain.Recommendation {
	return domain.Recommendation{VaultAddress: vault, Confidence: domain.ConfidenceLow, Score: score}
}
