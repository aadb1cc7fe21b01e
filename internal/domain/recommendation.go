package domain

// ConfidenceBucket classifies a recommended vault for barbell weighting.
type ConfidenceBucket string

const (
	ConfidenceHigh ConfidenceBucket = "high"
	ConfidenceLow  ConfidenceBucket = "low"
)

// Recommendation is one ranked candidate vault produced by the external
// ranking pipeline.
type Recommendation struct {
	VaultAddress  string
	Name          string
	Confidence    ConfidenceBucket
	Score         float64
	AllocationPct float64 // AI-suggested share; 0 means even split within the bucket
}

// SuggestedAllocations optionally overrides the configured barbell split.
type SuggestedAllocations struct {
	HighPct   float64
	LowPct    float64
	HighCount int
	LowCount  int
}

// RecommendationSet is the immutable per-round input from the ranking
// subsystem.
type RecommendationSet struct {
	HighConfidence []Recommendation
	LowConfidence  []Recommendation
	Suggested      *SuggestedAllocations // nil falls back to configured defaults
}

// Contains reports whether any bucket recommends the vault.
func (s *RecommendationSet) Contains(vaultAddress string) bool {
	for _, r := range s.HighConfidence {
		if r.VaultAddress == vaultAddress {
			return true
		}
	}
	for _, r := range s.LowConfidence {
		if r.VaultAddress == vaultAddress {
			return true
		}
	}
	return false
}

// VaultAddresses lists every recommended vault, high bucket first.
func (s *RecommendationSet) VaultAddresses() []string {
	out := make([]string, 0, len(s.HighConfidence)+len(s.LowConfidence))
	for _, r := range s.HighConfidence {
		out = append(out, r.VaultAddress)
	}
	for _, r := range s.LowConfidence {
		out = append(out, r.VaultAddress)
	}
	return out
}
