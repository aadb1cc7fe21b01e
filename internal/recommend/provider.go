package recommend

import (
	"context"
	"time"

	"github.com/betbot/vaultbot/internal/domain"
	"github.com/betbot/vaultbot/pkg/cache"
	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

// Provider hands the engine a fresh ranked candidate set. The two-stage
// ranking pipeline behind it is external; the engine treats the result
// as immutable per round.
type Provider interface {
	GetRecommendations(ctx context.Context) (*domain.RecommendationSet, error)
}

// HTTPProvider fetches recommendations from the ranking service. Results
// are cached briefly so a retried round does not re-trigger the (slow,
// paid) ranking pipeline.
type HTTPProvider struct {
	rc       *resty.Client
	cache    cache.Cache[string, *domain.RecommendationSet]
	cacheTTL time.Duration
}

type Options struct {
	BaseURL  string
	Timeout  time.Duration
	Cache    cache.Cache[string, *domain.RecommendationSet] // nil disables caching
	CacheTTL time.Duration
}

const cacheKey = "recommendations"

func NewHTTPProvider(opts Options) *HTTPProvider {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	rc := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(2 * time.Second)
	return &HTTPProvider{rc: rc, cache: opts.Cache, cacheTTL: ttl}
}

type recommendationDTO struct {
	VaultAddress  string  `json:"vaultAddress"`
	Name          string  `json:"name"`
	Score         float64 `json:"score"`
	AllocationPct float64 `json:"allocationPct"`
}

type recommendationsDTO struct {
	HighConfidence       []recommendationDTO `json:"highConfidence"`
	LowConfidence        []recommendationDTO `json:"lowConfidence"`
	SuggestedAllocations *struct {
		HighPct   float64 `json:"highPct"`
		LowPct    float64 `json:"lowPct"`
		HighCount int     `json:"highCount"`
		LowCount  int     `json:"lowCount"`
	} `json:"suggestedAllocations"`
}

func (p *HTTPProvider) GetRecommendations(ctx context.Context) (*domain.RecommendationSet, error) {
	if p.cache != nil {
		if set, ok := p.cache.Get(cacheKey); ok {
			return set, nil
		}
	}

	var dto recommendationsDTO
	resp, err := p.rc.R().
		SetContext(ctx).
		SetResult(&dto).
		Get("/v1/recommendations")
	if err != nil {
		return nil, errors.Wrap(err, "fetch recommendations")
	}
	if resp.IsError() {
		return nil, errors.Errorf("fetch recommendations: status %d: %s", resp.StatusCode(), resp.String())
	}

	set := &domain.RecommendationSet{
		HighConfidence: toDomain(dto.HighConfidence, domain.ConfidenceHigh),
		LowConfidence:  toDomain(dto.LowConfidence, domain.ConfidenceLow),
	}
	if sa := dto.SuggestedAllocations; sa != nil {
		set.Suggested = &domain.SuggestedAllocations{
			HighPct:   sa.HighPct,
			LowPct:    sa.LowPct,
			HighCount: sa.HighCount,
			LowCount:  sa.LowCount,
		}
	}

	if p.cache != nil {
		p.cache.Set(cacheKey, set, p.cacheTTL)
	}
	return set, nil
}

func toDomain(dtos []recommendationDTO, bucket domain.ConfidenceBucket) []domain.Recommendation {
	out := make([]domain.Recommendation, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, domain.Recommendation{
			VaultAddress:  d.VaultAddress,
			Name:          d.Name,
			Confidence:    bucket,
			Score:         d.Score,
			AllocationPct: d.AllocationPct,
		})
	}
	return out
}
