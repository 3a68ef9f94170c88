package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/alanyoungcy/polyarb/internal/domain"
	"golang.org/x/time/rate"
)

// GammaClient reads market metadata from the Gamma API.
type GammaClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewGammaClient creates a Gamma client, e.g. for
// "https://gamma-api.polymarket.com". A nil limiter disables throttling.
func NewGammaClient(baseURL string, limiter *rate.Limiter) *GammaClient {
	return &GammaClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		limiter:    limiter,
	}
}

// MarketByToken returns the market that lists tokenID as an outcome token.
func (g *GammaClient) MarketByToken(ctx context.Context, tokenID string) (domain.Market, error) {
	params := url.Values{}
	params.Set("clob_token_ids", tokenID)

	body, err := g.doGet(ctx, "/markets?"+params.Encode())
	if err != nil {
		return domain.Market{}, fmt.Errorf("polymarket/gamma: market for token %s: %w", tokenID, err)
	}
	var markets []APIMarket
	if err := json.Unmarshal(body, &markets); err != nil {
		return domain.Market{}, fmt.Errorf("polymarket/gamma: decode markets: %w", err)
	}
	if len(markets) == 0 {
		return domain.Market{}, fmt.Errorf("polymarket/gamma: %w: token=%s", domain.ErrNotFound, tokenID)
	}
	return markets[0].ToDomainMarket(), nil
}

// MarketEndDate implements domain.ExpiryLookup. Markets without a published
// end date return domain.ErrNotFound.
func (g *GammaClient) MarketEndDate(ctx context.Context, tokenID string) (time.Time, error) {
	m, err := g.MarketByToken(ctx, tokenID)
	if err != nil {
		return time.Time{}, err
	}
	if m.EndDate == nil {
		return time.Time{}, fmt.Errorf("polymarket/gamma: %w: no end date for token %s", domain.ErrNotFound, tokenID)
	}
	return *m.EndDate, nil
}

func (g *GammaClient) doGet(ctx context.Context, path string) ([]byte, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

var _ domain.ExpiryLookup = (*GammaClient)(nil)
