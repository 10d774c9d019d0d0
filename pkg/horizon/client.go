// Package horizon provides a client for the account and submission endpoints of a Horizon server.
package horizon

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

	"github.com/speedrun-hq/stellar-bridge/pkg/logger"
	"github.com/speedrun-hq/stellar-bridge/pkg/models"
	"github.com/speedrun-hq/stellar-bridge/pkg/networks"
	"github.com/speedrun-hq/stellar-bridge/pkg/txbuilder"
)

// BalanceLine is a balance entry of an account as returned by Horizon
type BalanceLine struct {
	Balance     string `json:"balance"`
	Limit       string `json:"limit,omitempty"`
	AssetType   string `json:"asset_type"`
	AssetCode   string `json:"asset_code,omitempty"`
	AssetIssuer string `json:"asset_issuer,omitempty"`
}

// AccountResponse is the subset of the Horizon account resource used here
type AccountResponse struct {
	AccountID string        `json:"account_id"`
	Sequence  string        `json:"sequence"`
	Balances  []BalanceLine `json:"balances"`
}

// SubmitResponse is the Horizon transaction submission result
type SubmitResponse struct {
	Hash       string `json:"hash"`
	Successful bool   `json:"successful"`
}

type problem struct {
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail"`
	Extras struct {
		ResultCodes json.RawMessage `json:"result_codes"`
	} `json:"extras"`
}

// Client represents a Horizon API client
type Client struct {
	endpoint   string
	httpClient *http.Client
	profile    networks.Profile
	logger     logger.Logger
}

// New creates a new Horizon client for the network of profile
func New(endpoint string, profile networks.Profile, logger logger.Logger) *Client {
	return &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		httpClient: createHTTPClient(),
		profile:    profile,
		logger:     logger,
	}
}

// LoadAccount returns the sequence number and balances of address.
// Unfunded or unknown accounts fail with models.ErrAccountNotFound.
func (c *Client) LoadAccount(ctx context.Context, address string) (*models.Account, error) {
	var resp AccountResponse
	status, body, err := c.do(ctx, http.MethodGet, "/accounts/"+url.PathEscape(address), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load account %s: %v", address, err)
	}
	if status == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s, fund it before bridging", models.ErrAccountNotFound, address)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d, body: %s", status, string(body))
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode account: %v, body: %s", err, string(body))
	}

	sequence, err := strconv.ParseUint(resp.Sequence, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid sequence %q for %s", models.ErrEncoding, resp.Sequence, address)
	}

	account := &models.Account{
		Address:  address,
		Sequence: sequence,
		Balances: make([]models.Balance, 0, len(resp.Balances)),
	}
	for _, b := range resp.Balances {
		account.Balances = append(account.Balances, models.Balance{
			AssetCode:   b.AssetCode,
			AssetIssuer: b.AssetIssuer,
			Balance:     b.Balance,
			Limit:       b.Limit,
		})
	}
	c.logger.DebugWithNetwork(c.profile.Name, "Loaded account %s at sequence %d with %d balances", address, sequence, len(account.Balances))
	return account, nil
}

// GetTrustLine returns the trust line of address for asset, or nil when none exists
func (c *Client) GetTrustLine(ctx context.Context, address string, asset models.Asset) (*models.TrustLine, error) {
	account, err := c.LoadAccount(ctx, address)
	if err != nil {
		return nil, err
	}
	for _, b := range account.Balances {
		if b.AssetCode != asset.Symbol {
			continue
		}
		if asset.Issuer != "" && b.AssetIssuer != asset.Issuer {
			continue
		}
		return &models.TrustLine{Asset: asset, Balance: b.Balance, Limit: b.Limit}, nil
	}
	return nil, nil
}

// SubmitTransaction submits a signed classic transaction and returns its hash.
// Horizon waits for ledger inclusion, so a successful response is final. A
// gateway timeout leaves the outcome unknown; the locally computed hash is
// returned so the caller can look the transaction up later.
func (c *Client) SubmitTransaction(ctx context.Context, env *txbuilder.SignedEnvelope) (string, error) {
	encoded, err := env.Encode()
	if err != nil {
		return "", err
	}

	form := url.Values{"tx": {encoded}}
	status, body, err := c.do(ctx, http.MethodPost, "/transactions", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to submit transaction: %v", err)
	}
	if status == http.StatusGatewayTimeout {
		hash, err := env.HashHex(c.profile)
		if err != nil {
			return "", err
		}
		c.logger.NoticeWithNetwork(c.profile.Name, "Horizon timed out waiting for %s transaction %s, outcome unknown", env.Envelope.Kind(), hash)
		return hash, nil
	}
	if status != http.StatusOK {
		var p problem
		if jsonErr := json.Unmarshal(body, &p); jsonErr == nil && p.Title != "" {
			return "", fmt.Errorf("%w: %s (%d) %s", models.ErrSubmissionRejected, p.Title, status, string(p.Extras.ResultCodes))
		}
		return "", fmt.Errorf("%w: unexpected status code: %d, body: %s", models.ErrSubmissionRejected, status, string(body))
	}

	var resp SubmitResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to decode submission result: %v, body: %s", err, string(body))
	}
	if !resp.Successful {
		return "", fmt.Errorf("%w: transaction %s was not successful", models.ErrSubmissionRejected, resp.Hash)
	}
	c.logger.InfoWithNetwork(c.profile.Name, "Submitted %s transaction %s through horizon", env.Envelope.Kind(), resp.Hash)
	return resp.Hash, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func(Body io.ReadCloser) {
		err := Body.Close()
		if err != nil {
			c.logger.Error("Failed to close response body: %v", err)
		}
	}(resp.Body)

	// Read the response body regardless of status code
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response body: %v", err)
	}
	return resp.StatusCode, bodyBytes, nil
}

// Helper function to create an HTTP client with timeouts
func createHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 60 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}
