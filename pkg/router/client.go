// Package router provides a client for the bridge router API that prices
// transfers and encodes the Stellar side transactions.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/speedrun-hq/stellar-bridge/pkg/logger"
	"github.com/speedrun-hq/stellar-bridge/pkg/metrics"
	"github.com/speedrun-hq/stellar-bridge/pkg/models"
)

// StellarChain is the router chain symbol of the Soroban network
const StellarChain = "SRB"

const (
	messenger        = "ALLBRIDGE"
	feePaymentMethod = "WITH_STABLECOIN"
)

// TokenInfo is a token as listed by the router
type TokenInfo struct {
	Symbol       string `json:"symbol"`
	TokenAddress string `json:"tokenAddress"`
	Issuer       string `json:"issuer,omitempty"`
	Decimals     int    `json:"decimals"`
}

// ChainDetails is the router description of one chain
type ChainDetails struct {
	Tokens []TokenInfo `json:"tokens"`
}

// Client represents a bridge router API client
type Client struct {
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
	tokens     *TokenCache
	logger     logger.Logger
}

// New creates a new router client allowing at most requestsPerSecond requests
func New(endpoint string, requestsPerSecond float64, tokenCacheTTL time.Duration, logger logger.Logger) *Client {
	burst := int(requestsPerSecond)
	if burst < 1 {
		burst = 1
	}
	return &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		httpClient: createHTTPClient(),
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
		tokens:     NewTokenCache(tokenCacheTTL),
		logger:     logger,
	}
}

// Tokens returns the tokens the router supports on chain
func (c *Client) Tokens(ctx context.Context, chain string) ([]models.Asset, error) {
	if cached, ok := c.tokens.Get(chain); ok {
		return cached, nil
	}

	var details map[string]ChainDetails
	if err := c.get(ctx, "/token-info", nil, &details); err != nil {
		return nil, fmt.Errorf("failed to fetch router tokens: %w", err)
	}

	var found []models.Asset
	for chainSymbol, d := range details {
		assets := make([]models.Asset, 0, len(d.Tokens))
		for _, tk := range d.Tokens {
			assets = append(assets, models.Asset{
				Symbol:          tk.Symbol,
				Issuer:          tk.Issuer,
				ContractAddress: tk.TokenAddress,
				Decimals:        tk.Decimals,
			})
		}
		c.tokens.Set(chainSymbol, assets)
		if chainSymbol == chain {
			found = assets
		}
	}
	if found == nil {
		return nil, fmt.Errorf("%w: router does not support chain %s", models.ErrConfiguration, chain)
	}
	return found, nil
}

// ResolveAsset returns the token with symbol on chain
func (c *Client) ResolveAsset(ctx context.Context, chain, symbol string) (models.Asset, error) {
	tokens, err := c.Tokens(ctx, chain)
	if err != nil {
		return models.Asset{}, err
	}
	for _, tk := range tokens {
		if strings.EqualFold(tk.Symbol, symbol) {
			return tk, nil
		}
	}
	return models.Asset{}, fmt.Errorf("%w: token %s is not available on %s", models.ErrConfiguration, symbol, chain)
}

// QuoteAndBuildTransfer asks the router to price the transfer and returns the
// encoded Stellar transaction that performs it
func (c *Client) QuoteAndBuildTransfer(ctx context.Context, req models.QuoteRequest) (string, error) {
	query := url.Values{
		"amount":           {req.Amount},
		"sender":           {req.SourceAddress},
		"recipient":        {req.DestAddress},
		"sourceToken":      {req.SourceAsset.ContractAddress},
		"destinationToken": {req.DestinationAsset.ContractAddress},
		"messenger":        {messenger},
		"feePaymentMethod": {feePaymentMethod},
	}

	var payload string
	if err := c.get(ctx, "/raw/bridge", query, &payload); err != nil {
		return "", fmt.Errorf("failed to build bridge transfer: %w", err)
	}
	if payload == "" {
		return "", fmt.Errorf("%w: router returned an empty transfer payload", models.ErrEncoding)
	}
	c.logger.DebugWithNetwork("", "Router built transfer of %s %s to %s on %s", req.Amount, req.SourceAsset.Symbol, req.DestAddress, req.DestinationChain)
	return payload, nil
}

// BuildTrustAdjustment returns an encoded transaction raising the trust line
// of address for asset to the maximum limit
func (c *Client) BuildTrustAdjustment(ctx context.Context, address string, asset models.Asset) (string, error) {
	query := url.Values{
		"sender":       {address},
		"tokenAddress": {asset.ContractAddress},
	}

	var payload string
	if err := c.get(ctx, "/raw/stellar/trustline", query, &payload); err != nil {
		return "", fmt.Errorf("failed to build trust line adjustment: %w", err)
	}
	if payload == "" {
		return "", fmt.Errorf("%w: router returned an empty trust line payload", models.ErrEncoding)
	}
	return payload, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	u := c.endpoint + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RouterRequests.WithLabelValues(path, "error").Inc()
		return err
	}
	defer func(Body io.ReadCloser) {
		err := Body.Close()
		if err != nil {
			c.logger.Error("Failed to close response body: %v", err)
		}
	}(resp.Body)
	metrics.RouterRequests.WithLabelValues(path, strconv.Itoa(resp.StatusCode)).Inc()

	// Read the response body regardless of status code
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(bodyBytes))
	}

	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return fmt.Errorf("%w: failed to decode response: %v, body: %s", models.ErrEncoding, err, string(bodyBytes))
	}
	return nil
}

// Helper function to create an HTTP client with timeouts
func createHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 20 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}
