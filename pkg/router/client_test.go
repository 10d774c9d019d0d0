package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speedrun-hq/stellar-bridge/pkg/logger"
	"github.com/speedrun-hq/stellar-bridge/pkg/models"
)

type fakeRouter struct {
	tokenCalls atomic.Int32
	lastQuery  atomic.Value
}

func (f *fakeRouter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/token-info":
		f.tokenCalls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]ChainDetails{
			StellarChain: {Tokens: []TokenInfo{{Symbol: "USDC", TokenAddress: "CUSDC", Issuer: "GISSUER", Decimals: 7}}},
			"ETH":        {Tokens: []TokenInfo{{Symbol: "USDC", TokenAddress: "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", Decimals: 6}}},
		})
	case "/raw/bridge":
		f.lastQuery.Store(r.URL.Query())
		_ = json.NewEncoder(w).Encode("cGF5bG9hZA==")
	case "/raw/stellar/trustline":
		f.lastQuery.Store(r.URL.Query())
		_ = json.NewEncoder(w).Encode("dHJ1c3Q=")
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message": "not found"}`))
	}
}

func newTestClient(t *testing.T) (*Client, *fakeRouter) {
	t.Helper()
	fake := &fakeRouter{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return New(srv.URL, 100, time.Minute, &logger.EmptyLogger{}), fake
}

func TestResolveAsset(t *testing.T) {
	c, fake := newTestClient(t)

	usdc, err := c.ResolveAsset(context.Background(), StellarChain, "usdc")
	require.NoError(t, err)
	assert.Equal(t, models.Asset{Symbol: "USDC", Issuer: "GISSUER", ContractAddress: "CUSDC", Decimals: 7}, usdc)

	eth, err := c.ResolveAsset(context.Background(), "ETH", "USDC")
	require.NoError(t, err)
	assert.Equal(t, 6, eth.Decimals)

	// both chains were cached by the first fetch
	assert.Equal(t, int32(1), fake.tokenCalls.Load())

	_, err = c.ResolveAsset(context.Background(), StellarChain, "EURC")
	require.ErrorIs(t, err, models.ErrConfiguration)
}

func TestTokensUnknownChain(t *testing.T) {
	c, _ := newTestClient(t)
	_, err := c.Tokens(context.Background(), "SOL")
	require.ErrorIs(t, err, models.ErrConfiguration)
}

func TestQuoteAndBuildTransfer(t *testing.T) {
	c, fake := newTestClient(t)

	payload, err := c.QuoteAndBuildTransfer(context.Background(), models.QuoteRequest{
		Amount:           "12.5",
		SourceAddress:    "GSOURCE",
		DestAddress:      "0x00000000000000000000000000000000000000aa",
		SourceAsset:      models.Asset{Symbol: "USDC", ContractAddress: "CUSDC"},
		DestinationChain: "ETH",
		DestinationAsset: models.Asset{Symbol: "USDC", ContractAddress: "0xdest"},
	})
	require.NoError(t, err)
	assert.Equal(t, "cGF5bG9hZA==", payload)

	query := fake.lastQuery.Load().(url.Values)
	assert.Equal(t, []string{"12.5"}, query["amount"])
	assert.Equal(t, []string{"GSOURCE"}, query["sender"])
	assert.Equal(t, []string{"CUSDC"}, query["sourceToken"])
	assert.Equal(t, []string{"0xdest"}, query["destinationToken"])
	assert.Equal(t, []string{"ALLBRIDGE"}, query["messenger"])
}

func TestBuildTrustAdjustment(t *testing.T) {
	c, fake := newTestClient(t)

	payload, err := c.BuildTrustAdjustment(context.Background(), "GSOURCE", models.Asset{Symbol: "USDC", ContractAddress: "CUSDC"})
	require.NoError(t, err)
	assert.Equal(t, "dHJ1c3Q=", payload)

	query := fake.lastQuery.Load().(url.Values)
	assert.Equal(t, []string{"CUSDC"}, query["tokenAddress"])
}

func TestUnexpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	c := New(srv.URL, 100, time.Minute, &logger.EmptyLogger{})
	_, err := c.BuildTrustAdjustment(context.Background(), "GSOURCE", models.Asset{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status code: 500")
}

func TestRateLimiterHonoursContext(t *testing.T) {
	c, _ := newTestClient(t)
	c.limiter.SetLimit(0.001)
	c.limiter.SetBurst(1)
	require.True(t, c.limiter.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.BuildTrustAdjustment(ctx, "GSOURCE", models.Asset{})
	require.Error(t, err)
}
