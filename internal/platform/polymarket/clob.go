package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/alanyoungcy/polyarb/internal/crypto"
	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const zeroAddress = "0x0000000000000000000000000000000000000000"

// usdcDecimals is the fixed-point scale of collateral and outcome tokens.
const usdcDecimals = 6

// ClobConfig configures a ClobClient.
type ClobConfig struct {
	BaseURL string
	// SignatureType is one of crypto.SigType*. Proxy and Safe wallets also
	// need Funder, the address holding the collateral.
	SignatureType int
	Funder        string
	// OrderType is the CLOB time-in-force, e.g. "GTC" or "FOK".
	OrderType string
	Timeout   time.Duration
}

// ClobClient is the REST client for the Polymarket CLOB. It serves order
// books to the engine and places the signed limit orders of each leg.
type ClobClient struct {
	cfg        ClobConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	signer     *crypto.Signer

	mu       sync.RWMutex
	hmacAuth *crypto.HMACAuth
}

// NewClobClient creates a CLOB client. signer may be nil for a read-only
// client; hmac may be nil until DeriveAPIKey runs. A nil limiter disables
// throttling.
func NewClobClient(cfg ClobConfig, signer *crypto.Signer, hmac *crypto.HMACAuth, limiter *rate.Limiter) *ClobClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.OrderType == "" {
		cfg.OrderType = "GTC"
	}
	return &ClobClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    limiter,
		signer:     signer,
		hmacAuth:   hmac,
	}
}

// WalletAddress returns the signing address, or "" for a read-only client.
func (c *ClobClient) WalletAddress() string {
	if c.signer == nil {
		return ""
	}
	return c.signer.Address().Hex()
}

// CanTrade reports whether the client holds both a key and API credentials.
func (c *ClobClient) CanTrade() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.signer != nil && c.hmacAuth != nil
}

// GetOrderBook fetches the public book of one outcome token.
func (c *ClobClient) GetOrderBook(ctx context.Context, tokenID string) (domain.OrderBook, error) {
	params := url.Values{}
	params.Set("token_id", tokenID)

	body, err := c.do(ctx, http.MethodGet, "/book?"+params.Encode(), nil, false)
	if err != nil {
		return domain.OrderBook{}, fmt.Errorf("polymarket/clob: get book %s: %w", tokenID, err)
	}
	var book APIBook
	if err := json.Unmarshal(body, &book); err != nil {
		return domain.OrderBook{}, fmt.Errorf("polymarket/clob: decode book: %w", err)
	}
	return book.ToDomainOrderBook(tokenID), nil
}

// apiOrder is the wire form of a signed order. It differs from the signed
// struct only in the side encoding.
type apiOrder struct {
	Salt          int64  `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	Side          string `json:"side"`
	SignatureType int    `json:"signatureType"`
	Signature     string `json:"signature"`
}

type postOrderRequest struct {
	Order     apiOrder `json:"order"`
	Owner     string   `json:"owner"`
	OrderType string   `json:"orderType"`
}

// PlaceOrder signs and submits a limit order for size shares at price.
func (c *ClobClient) PlaceOrder(ctx context.Context, tokenID string, side domain.OrderSide, size, price decimal.Decimal) (string, error) {
	c.mu.RLock()
	auth := c.hmacAuth
	c.mu.RUnlock()
	if c.signer == nil || auth == nil {
		return "", fmt.Errorf("polymarket/clob: place order: %w: no trading credentials", domain.ErrUnauthorized)
	}
	if !size.IsPositive() || !price.IsPositive() || price.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return "", fmt.Errorf("polymarket/clob: place order: invalid size %s or price %s", size, price)
	}

	makerAmt, takerAmt, sideCode := orderAmounts(side, size, price)
	salt := rand.Int64N(1 << 53)

	maker := c.signer.Address().Hex()
	if c.cfg.Funder != "" && c.cfg.SignatureType != crypto.SigTypeEOA {
		maker = c.cfg.Funder
	}
	payload := crypto.OrderPayload{
		Salt:          strconv.FormatInt(salt, 10),
		Maker:         maker,
		Signer:        c.signer.Address().Hex(),
		Taker:         zeroAddress,
		TokenID:       tokenID,
		MakerAmount:   makerAmt,
		TakerAmount:   takerAmt,
		Expiration:    "0",
		Nonce:         "0",
		FeeRateBps:    "0",
		Side:          sideCode,
		SignatureType: c.cfg.SignatureType,
	}
	sig, err := c.signer.SignOrder(payload)
	if err != nil {
		return "", fmt.Errorf("polymarket/clob: sign order: %w", err)
	}

	req := postOrderRequest{
		Order: apiOrder{
			Salt:          salt,
			Maker:         payload.Maker,
			Signer:        payload.Signer,
			Taker:         payload.Taker,
			TokenID:       payload.TokenID,
			MakerAmount:   payload.MakerAmount,
			TakerAmount:   payload.TakerAmount,
			Expiration:    payload.Expiration,
			Nonce:         payload.Nonce,
			FeeRateBps:    payload.FeeRateBps,
			Side:          sideName(side),
			SignatureType: payload.SignatureType,
			Signature:     sig,
		},
		Owner:     auth.Key,
		OrderType: c.cfg.OrderType,
	}

	body, err := c.do(ctx, http.MethodPost, "/order", req, true)
	if err != nil {
		return "", fmt.Errorf("polymarket/clob: post order: %w", err)
	}
	var result APIOrderResult
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("polymarket/clob: decode order result: %w", err)
	}
	if !result.Success {
		return result.OrderID, fmt.Errorf("polymarket/clob: order rejected: %s", result.ErrorMsg)
	}
	return result.OrderID, nil
}

// orderAmounts converts shares and price into the fixed-point maker and
// taker amounts. Buys pay collateral for shares, sells the reverse.
func orderAmounts(side domain.OrderSide, size, price decimal.Decimal) (maker, taker string, sideCode int) {
	shares := size.RoundDown(2)
	notional := shares.Mul(price).RoundDown(4)
	if side == domain.OrderSideSell {
		return toFixed(shares), toFixed(notional), crypto.SideSell
	}
	return toFixed(notional), toFixed(shares), crypto.SideBuy
}

func toFixed(d decimal.Decimal) string {
	return d.Shift(usdcDecimals).Truncate(0).String()
}

func sideName(side domain.OrderSide) string {
	if side == domain.OrderSideSell {
		return "SELL"
	}
	return "BUY"
}

// DeriveAPIKey performs the L1 auth flow: it signs a ClobAuth message and
// exchanges it for HMAC credentials used on every order request.
func (c *ClobClient) DeriveAPIKey(ctx context.Context) error {
	if c.signer == nil {
		return fmt.Errorf("polymarket/clob: derive api key: %w: no signer", domain.ErrUnauthorized)
	}
	address := c.signer.Address().Hex()
	timestamp := time.Now().Unix()
	const nonce = int64(0)

	sig, err := c.signer.SignAuthMessage(timestamp, nonce)
	if err != nil {
		return fmt.Errorf("polymarket/clob: sign auth message: %w", err)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("polymarket/clob: rate limit wait: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/auth/derive-api-key", nil)
	if err != nil {
		return fmt.Errorf("polymarket/clob: create auth request: %w", err)
	}
	req.Header.Set("POLY_ADDRESS", address)
	req.Header.Set("POLY_SIGNATURE", sig)
	req.Header.Set("POLY_TIMESTAMP", strconv.FormatInt(timestamp, 10))
	req.Header.Set("POLY_NONCE", strconv.FormatInt(nonce, 10))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("polymarket/clob: auth request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("polymarket/clob: read auth response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return fmt.Errorf("polymarket/clob: derive api key: %w", err)
	}

	var authResp struct {
		APIKey     string `json:"apiKey"`
		Secret     string `json:"secret"`
		Passphrase string `json:"passphrase"`
	}
	if err := json.Unmarshal(respBody, &authResp); err != nil {
		return fmt.Errorf("polymarket/clob: decode auth response: %w", err)
	}
	if authResp.APIKey == "" || authResp.Secret == "" {
		return fmt.Errorf("polymarket/clob: derive api key: %w: empty credentials", domain.ErrUnauthorized)
	}

	c.mu.Lock()
	c.hmacAuth = &crypto.HMACAuth{
		Key:        authResp.APIKey,
		Secret:     authResp.Secret,
		Passphrase: authResp.Passphrase,
	}
	c.mu.Unlock()
	return nil
}

// do sends a request and returns the body of a 2xx response. Authenticated
// requests carry L2 HMAC headers over the exact serialised body.
func (c *ClobClient) do(ctx context.Context, method, path string, body any, authenticated bool) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	var (
		bodyReader io.Reader
		bodyStr    string
	)
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyStr = string(raw)
		bodyReader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if authenticated {
		c.mu.RLock()
		auth := c.hmacAuth
		c.mu.RUnlock()
		if auth == nil || c.signer == nil {
			return nil, domain.ErrUnauthorized
		}
		for k, v := range auth.L2Headers(c.signer.Address().Hex(), method, path, bodyStr) {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// checkHTTPStatus maps non-2xx status codes to domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	bodyStr := string(body)
	if len(bodyStr) > 512 {
		bodyStr = bodyStr[:512]
	}
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}

var _ domain.MarketDataClient = (*ClobClient)(nil)
