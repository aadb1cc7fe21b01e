package recommend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/betbot/vaultbot/internal/domain"
	"github.com/betbot/vaultbot/pkg/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const recommendationsBody = `{
	"highConfidence": [
		{"vaultAddress": "0xH1", "name": "Alpha", "score": 92.5, "allocationPct": 14},
		{"vaultAddress": "0xH2", "name": "Beta", "score": 81.0, "allocationPct": 14}
	],
	"lowConfidence": [
		{"vaultAddress": "0xL1", "name": "Gamma", "score": 44.0, "allocationPct": 6}
	],
	"suggestedAllocations": {"highPct": 75, "lowPct": 25, "highCount": 2, "lowCount": 1}
}`

func TestGetRecommendations_ParsesBuckets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/recommendations", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(recommendationsBody))
	}))
	t.Cleanup(srv.Close)

	p := NewHTTPProvider(Options{BaseURL: srv.URL, Timeout: 5 * time.Second})

	set, err := p.GetRecommendations(context.Background())
	require.NoError(t, err)

	require.Len(t, set.HighConfidence, 2)
	require.Len(t, set.LowConfidence, 1)
	assert.Equal(t, domain.ConfidenceHigh, set.HighConfidence[0].Confidence)
	assert.Equal(t, domain.ConfidenceLow, set.LowConfidence[0].Confidence)
	assert.Equal(t, "Alpha", set.HighConfidence[0].Name)
	assert.Equal(t, 92.5, set.HighConfidence[0].Score)

	require.NotNil(t, set.Suggested)
	assert.Equal(t, 75.0, set.Suggested.HighPct)
	assert.Equal(t, 2, set.Suggested.HighCount)
}

func TestGetRecommendations_SecondCallServedFromCache(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(recommendationsBody))
	}))
	t.Cleanup(srv.Close)

	c := cache.NewInMemoryCache[string, *domain.RecommendationSet](time.Minute)
	t.Cleanup(c.Close)
	p := NewHTTPProvider(Options{BaseURL: srv.URL, Timeout: 5 * time.Second, Cache: c, CacheTTL: time.Minute})

	first, err := p.GetRecommendations(context.Background())
	require.NoError(t, err)
	second, err := p.GetRecommendations(context.Background())
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int32(1), hits.Load(), "the ranking pipeline must only be hit once inside the TTL")
}

func TestGetRecommendations_NoSuggestedAllocations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"highConfidence": [], "lowConfidence": []}`))
	}))
	t.Cleanup(srv.Close)

	p := NewHTTPProvider(Options{BaseURL: srv.URL, Timeout: 5 * time.Second})

	set, err := p.GetRecommendations(context.Background())
	require.NoError(t, err)
	assert.Nil(t, set.Suggested)
	assert.Empty(t, set.HighConfidence)
}

func TestGetRecommendations_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "ranking pipeline busy", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	p := NewHTTPProvider(Options{BaseURL: srv.URL, Timeout: 5 * time.Second})

	_, err := p.GetRecommendations(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}
