package polymarket

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alanyoungcy/polyarb/internal/crypto"
	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func testSigner(t *testing.T) *crypto.Signer {
	t.Helper()
	s, err := crypto.NewSigner(testKey, 137, "")
	require.NoError(t, err)
	return s
}

func TestGetOrderBook(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/book", r.URL.Path)
		assert.Equal(t, "tok-1", r.URL.Query().Get("token_id"))
		_, _ = io.WriteString(w, `{
			"asset_id": "tok-1",
			"timestamp": "1700000000000",
			"bids": [{"price": "0.44", "size": "120"}],
			"asks": [{"price": "0.46", "size": "50.5"}, {"price": "bad", "size": "1"}]
		}`)
	}))
	defer srv.Close()

	c := NewClobClient(ClobConfig{BaseURL: srv.URL}, nil, nil, nil)
	book, err := c.GetOrderBook(context.Background(), "tok-1")
	require.NoError(t, err)

	assert.Equal(t, "tok-1", book.MarketID)
	assert.Equal(t, int64(1700000000000), book.Timestamp.UnixMilli())
	require.Len(t, book.Asks, 1)
	assert.True(t, book.Asks[0].Price.Equal(decimal.RequireFromString("0.46")))
	assert.True(t, book.Asks[0].Size.Equal(decimal.RequireFromString("50.5")))
	require.Len(t, book.Bids, 1)
}

func TestGetOrderBookStatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusNotFound, domain.ErrNotFound},
		{http.StatusTooManyRequests, domain.ErrRateLimited},
		{http.StatusForbidden, domain.ErrUnauthorized},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tt.status)
		}))
		c := NewClobClient(ClobConfig{BaseURL: srv.URL}, nil, nil, nil)
		_, err := c.GetOrderBook(context.Background(), "x")
		assert.ErrorIs(t, err, tt.want)
		srv.Close()
	}
}

func TestPlaceOrderWithoutCredentials(t *testing.T) {
	c := NewClobClient(ClobConfig{BaseURL: "http://unused"}, nil, nil, nil)
	_, err := c.PlaceOrder(context.Background(), "tok", domain.OrderSideBuy, decimal.NewFromInt(10), decimal.RequireFromString("0.45"))
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Empty(t, c.WalletAddress())
	assert.False(t, c.CanTrade())
}

func TestPlaceOrderSignsAndPosts(t *testing.T) {
	var got postOrderRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/order", r.URL.Path)
		assert.Equal(t, "api-key", r.Header.Get("POLY_API_KEY"))
		assert.NotEmpty(t, r.Header.Get("POLY_SIGNATURE"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"success": true, "orderID": "0xorder", "status": "matched"}`)
	}))
	defer srv.Close()

	auth := &crypto.HMACAuth{Key: "api-key", Secret: "c2VjcmV0", Passphrase: "pp"}
	c := NewClobClient(ClobConfig{BaseURL: srv.URL, OrderType: "FOK"}, testSigner(t), auth, nil)
	require.True(t, c.CanTrade())

	id, err := c.PlaceOrder(context.Background(), "tok-9", domain.OrderSideBuy, decimal.NewFromInt(10), decimal.RequireFromString("0.45"))
	require.NoError(t, err)
	assert.Equal(t, "0xorder", id)

	assert.Equal(t, "api-key", got.Owner)
	assert.Equal(t, "FOK", got.OrderType)
	assert.Equal(t, "BUY", got.Order.Side)
	assert.Equal(t, "tok-9", got.Order.TokenID)
	assert.Equal(t, "4500000", got.Order.MakerAmount)
	assert.Equal(t, "10000000", got.Order.TakerAmount)
	assert.Equal(t, c.WalletAddress(), got.Order.Maker)
	assert.NotEmpty(t, got.Order.Signature)
}

func TestPlaceOrderRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"success": false, "errorMsg": "not enough balance"}`)
	}))
	defer srv.Close()

	auth := &crypto.HMACAuth{Key: "k", Secret: "c2VjcmV0"}
	c := NewClobClient(ClobConfig{BaseURL: srv.URL}, testSigner(t), auth, nil)
	_, err := c.PlaceOrder(context.Background(), "tok", domain.OrderSideBuy, decimal.NewFromInt(5), decimal.RequireFromString("0.5"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not enough balance")
}

func TestOrderAmounts(t *testing.T) {
	maker, taker, side := orderAmounts(domain.OrderSideBuy, decimal.RequireFromString("12.345"), decimal.RequireFromString("0.37"))
	assert.Equal(t, "4565100", maker) // 12.34 * 0.37
	assert.Equal(t, "12340000", taker)
	assert.Equal(t, crypto.SideBuy, side)

	maker, taker, side = orderAmounts(domain.OrderSideSell, decimal.NewFromInt(10), decimal.RequireFromString("0.6"))
	assert.Equal(t, "10000000", maker)
	assert.Equal(t, "6000000", taker)
	assert.Equal(t, crypto.SideSell, side)
}

func TestDeriveAPIKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/derive-api-key", r.URL.Path)
		assert.Equal(t, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", r.Header.Get("POLY_ADDRESS"))
		assert.Equal(t, "0", r.Header.Get("POLY_NONCE"))
		_, _ = io.WriteString(w, `{"apiKey": "k1", "secret": "s1", "passphrase": "p1"}`)
	}))
	defer srv.Close()

	c := NewClobClient(ClobConfig{BaseURL: srv.URL}, testSigner(t), nil, nil)
	assert.False(t, c.CanTrade())
	require.NoError(t, c.DeriveAPIKey(context.Background()))
	assert.True(t, c.CanTrade())
}
