package yield

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"memewars/internal/config"
)

const DefaultMarinadePriceURL = "https://api.marinade.finance/msol/price_sol"

// Marinade stakes into mSOL. Yield is the appreciation of the mSOL/SOL rate
// between delegation and redemption.
type Marinade struct {
	priceURL   string
	httpClient *http.Client
}

func NewMarinade(cfg config.MarinadeConfig, httpClient *http.Client) *Marinade {
	url := strings.TrimSpace(cfg.PriceURL)
	if url == "" {
		url = DefaultMarinadePriceURL
	}
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Marinade{priceURL: url, httpClient: httpClient}
}

func (m *Marinade) Kind() Kind { return KindMarinade }

// Rate fetches the current mSOL price in SOL.
func (m *Marinade) Rate(ctx context.Context) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.priceURL, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("marinade price request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("marinade price API error (%d): %s", resp.StatusCode, string(body))
	}
	rate, err := decimal.NewFromString(strings.Trim(strings.TrimSpace(string(body)), `"`))
	if err != nil {
		return decimal.Zero, fmt.Errorf("marinade price %q: %w", string(body), err)
	}
	if !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("marinade price %s not positive", rate)
	}
	return rate, nil
}

func (m *Marinade) Delegate(ctx context.Context, req DelegateRequest) (Receipt, error) {
	if req.Amount == 0 {
		return Receipt{}, fmt.Errorf("marinade delegate: zero amount")
	}
	rate, err := m.Rate(ctx)
	if err != nil {
		return Receipt{}, err
	}
	return Receipt{Ref: fmt.Sprintf("%s:%s", KindMarinade, req.Key), EntryRate: rate}, nil
}

func (m *Marinade) Redeem(ctx context.Context, pos Position, _ time.Time) (Redemption, error) {
	rate, err := m.Rate(ctx)
	if err != nil {
		return Redemption{}, err
	}
	if !pos.EntryRate.IsPositive() || rate.LessThanOrEqual(pos.EntryRate) {
		return Redemption{Principal: pos.Amount}, nil
	}
	principal := fromUint64(pos.Amount)
	earned := principal.Mul(rate).Div(pos.EntryRate).Sub(principal)
	y, err := toUint64(earned)
	if err != nil {
		return Redemption{}, err
	}
	return Redemption{Principal: pos.Amount, Yield: y}, nil
}
