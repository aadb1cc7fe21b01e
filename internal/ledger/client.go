package ledger

import (
	"context"
	"time"

	"github.com/betbot/vaultbot/internal/domain"
	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

// Client is the engine's view of the external ledger. Implementations
// must return ErrInsufficientEquity (wrapped) for margin rejections on
// Transfer so the executor's retry ladder can dispatch on it.
type Client interface {
	GetPositions(ctx context.Context, wallet string) ([]domain.Position, error)
	GetAvailableBalance(ctx context.Context, wallet string) (float64, error)
	// GetLastDepositTime returns the zero time when the account has no
	// prior successful deposit.
	GetLastDepositTime(ctx context.Context, wallet string) (time.Time, error)
	// Transfer moves usdMicros (integer micro-USD) into (isDeposit) or
	// out of the vault.
	Transfer(ctx context.Context, vaultAddress string, isDeposit bool, usdMicros int64) error
}

// HTTPClient talks to the ledger's REST API via resty.
type HTTPClient struct {
	rc     *resty.Client
	apiKey string
}

// Options configures the HTTP ledger client.
type Options struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

func NewHTTPClient(opts Options) *HTTPClient {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	rc := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(timeout).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(10 * time.Second).
		SetRetryAfter(func(client *resty.Client, resp *resty.Response) (time.Duration, error) {
			if resp.StatusCode() == 429 {
				if ra := resp.Header().Get("Retry-After"); ra != "" {
					if d, err := time.ParseDuration(ra + "s"); err == nil {
						return d, nil
					}
				}
				return 10 * time.Second, nil
			}
			return 0, nil
		})
	return &HTTPClient{rc: rc, apiKey: opts.APIKey}
}

type positionDTO struct {
	VaultAddress        string  `json:"vaultAddress"`
	EquityUsd           float64 `json:"equityUsd"`
	LockedUntil         int64   `json:"lockedUntil"` // unix millis, 0 = unlocked
	PnlUsd              float64 `json:"pnlUsd"`
	RoePct              float64 `json:"roePct"`
	ActivePositionCount int     `json:"activePositionCount"`
	TradesLast7d        int     `json:"tradesLast7d"`
}

type balanceDTO struct {
	AvailableUsd float64 `json:"availableUsd"`
}

type lastDepositDTO struct {
	LastDepositAt int64 `json:"lastDepositAt"` // unix millis, 0 = never
}

type transferRequest struct {
	VaultAddress string `json:"vaultAddress"`
	IsDeposit    bool   `json:"isDeposit"`
	UsdMicros    int64  `json:"usdMicros"`
}

type apiError struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (e apiError) text(fallback string) string {
	if e.Message != "" {
		return e.Message
	}
	if e.Error != "" {
		return e.Error
	}
	return fallback
}

func (c *HTTPClient) newRequest(ctx context.Context) *resty.Request {
	r := c.rc.R().SetContext(ctx)
	if c.apiKey != "" {
		r.SetHeader("Authorization", "Bearer "+c.apiKey)
	}
	return r
}

func (c *HTTPClient) GetPositions(ctx context.Context, wallet string) ([]domain.Position, error) {
	var dtos []positionDTO
	resp, err := c.newRequest(ctx).
		SetQueryParam("wallet", wallet).
		SetResult(&dtos).
		Get("/v1/positions")
	if err != nil {
		return nil, &TransportError{Op: "getPositions", Err: err}
	}
	if resp.IsError() {
		return nil, &TransportError{Op: "getPositions", Status: resp.StatusCode(), Err: errors.Errorf("%s", resp.String())}
	}
	out := make([]domain.Position, 0, len(dtos))
	for _, d := range dtos {
		p := domain.Position{
			VaultAddress:        d.VaultAddress,
			EquityUsd:           d.EquityUsd,
			PnlUsd:              d.PnlUsd,
			RoePct:              d.RoePct,
			ActivePositionCount: d.ActivePositionCount,
			TradesLast7d:        d.TradesLast7d,
		}
		if d.LockedUntil > 0 {
			p.LockedUntil = time.UnixMilli(d.LockedUntil)
		}
		out = append(out, p)
	}
	return out, nil
}

func (c *HTTPClient) GetAvailableBalance(ctx context.Context, wallet string) (float64, error) {
	var dto balanceDTO
	resp, err := c.newRequest(ctx).
		SetQueryParam("wallet", wallet).
		SetResult(&dto).
		Get("/v1/balance")
	if err != nil {
		return 0, &TransportError{Op: "getBalance", Err: err}
	}
	if resp.IsError() {
		return 0, &TransportError{Op: "getBalance", Status: resp.StatusCode(), Err: errors.Errorf("%s", resp.String())}
	}
	return dto.AvailableUsd, nil
}

func (c *HTTPClient) GetLastDepositTime(ctx context.Context, wallet string) (time.Time, error) {
	var dto lastDepositDTO
	resp, err := c.newRequest(ctx).
		SetQueryParam("wallet", wallet).
		SetResult(&dto).
		Get("/v1/deposits/last")
	if err != nil {
		return time.Time{}, &TransportError{Op: "getLastDeposit", Err: err}
	}
	if resp.IsError() {
		return time.Time{}, &TransportError{Op: "getLastDeposit", Status: resp.StatusCode(), Err: errors.Errorf("%s", resp.String())}
	}
	if dto.LastDepositAt == 0 {
		return time.Time{}, nil
	}
	return time.UnixMilli(dto.LastDepositAt), nil
}

func (c *HTTPClient) Transfer(ctx context.Context, vaultAddress string, isDeposit bool, usdMicros int64) error {
	var apiErr apiError
	resp, err := c.newRequest(ctx).
		SetBody(transferRequest{VaultAddress: vaultAddress, IsDeposit: isDeposit, UsdMicros: usdMicros}).
		SetError(&apiErr).
		Post("/v1/transfer")
	if err != nil {
		return &TransportError{Op: "transfer", Err: err}
	}
	if resp.IsError() {
		return classifyTransferError("transfer", resp.StatusCode(), apiErr.text(resp.String()))
	}
	return nil
}
