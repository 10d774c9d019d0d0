// Package sorobanrpc is a client for the Soroban JSON-RPC API.
package sorobanrpc

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/speedrun-hq/stellar-bridge/pkg/logger"
	"github.com/speedrun-hq/stellar-bridge/pkg/models"
	"github.com/speedrun-hq/stellar-bridge/pkg/networks"
	"github.com/speedrun-hq/stellar-bridge/pkg/txbuilder"
)

// sendTransaction statuses
const (
	sendPending       = "PENDING"
	sendDuplicate     = "DUPLICATE"
	sendTryAgainLater = "TRY_AGAIN_LATER"
	sendError         = "ERROR"
)

type restorePreamble struct {
	TransactionData string `json:"transactionData"`
	MinResourceFee  string `json:"minResourceFee"`
}

type simulateResult struct {
	XDR string `json:"xdr"`
}

// SimulateResponse is the result of simulateTransaction
type SimulateResponse struct {
	Error           string           `json:"error,omitempty"`
	TransactionData string           `json:"transactionData"`
	MinResourceFee  string           `json:"minResourceFee"`
	Results         []simulateResult `json:"results,omitempty"`
	RestorePreamble *restorePreamble `json:"restorePreamble,omitempty"`
	LatestLedger    uint32           `json:"latestLedger"`
}

// SendResponse is the result of sendTransaction
type SendResponse struct {
	Status         string `json:"status"`
	Hash           string `json:"hash"`
	ErrorResultXDR string `json:"errorResultXdr,omitempty"`
	LatestLedger   uint32 `json:"latestLedger"`
}

// GetTransactionResponse is the result of getTransaction
type GetTransactionResponse struct {
	Status       string `json:"status"`
	Ledger       uint32 `json:"ledger,omitempty"`
	LatestLedger uint32 `json:"latestLedger"`
}

// HealthResponse is the result of getHealth
type HealthResponse struct {
	Status       string `json:"status"`
	LatestLedger uint32 `json:"latestLedger"`
}

// Client talks to a Soroban RPC server of one network
type Client struct {
	rpc     *rpc.Client
	profile networks.Profile
	now     func() time.Time
	logger  logger.Logger
}

// Dial connects to the Soroban RPC endpoint of profile
func Dial(ctx context.Context, profile networks.Profile, logger logger.Logger) (*Client, error) {
	c, err := rpc.DialOptions(ctx, profile.RPCURL, rpc.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to soroban rpc %s: %v", profile.RPCURL, err)
	}
	return NewClient(c, profile, logger), nil
}

// NewClient wraps an existing rpc client
func NewClient(c *rpc.Client, profile networks.Profile, logger logger.Logger) *Client {
	return &Client{
		rpc:     c,
		profile: profile,
		now:     time.Now,
		logger:  logger,
	}
}

// Close closes the underlying connection
func (c *Client) Close() {
	c.rpc.Close()
}

// Health returns nil when the RPC server reports itself healthy
func (c *Client) Health(ctx context.Context) error {
	var resp HealthResponse
	if err := c.rpc.CallContext(ctx, &resp, "getHealth"); err != nil {
		return fmt.Errorf("getHealth failed: %v", err)
	}
	if resp.Status != "healthy" {
		return fmt.Errorf("soroban rpc is %s", resp.Status)
	}
	return nil
}

// Simulate runs a read-only pre-flight of env. When expired ledger state must be
// restored first, the returned simulation carries a ready to sign restore envelope.
func (c *Client) Simulate(ctx context.Context, env *txbuilder.SignedEnvelope) (*models.Simulation, error) {
	encoded, err := env.Encode()
	if err != nil {
		return nil, err
	}

	var resp SimulateResponse
	if err := c.rpc.CallContext(ctx, &resp, "simulateTransaction", encoded); err != nil {
		return nil, fmt.Errorf("simulateTransaction failed: %v", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%w: %s", models.ErrSimulationFailed, resp.Error)
	}

	sim := &models.Simulation{MinResourceFee: resp.MinResourceFee}
	if len(resp.Results) > 0 {
		sim.Result = resp.Results[0].XDR
	}
	if resp.RestorePreamble != nil {
		payload, err := c.restorePayload(&env.Envelope, resp.RestorePreamble)
		if err != nil {
			return nil, err
		}
		sim.RequiresRestore = true
		sim.RestorePayload = payload
		c.logger.NoticeWithNetwork(c.profile.Name, "Simulation of %s envelope requires a state restore", env.Envelope.Kind())
	}
	return sim, nil
}

// restorePayload builds the restore envelope for the footprint in preamble. It
// uses the sequence of the simulated envelope, which was never submitted.
func (c *Client) restorePayload(simulated *txbuilder.Envelope, preamble *restorePreamble) (string, error) {
	data, err := base64.StdEncoding.DecodeString(preamble.TransactionData)
	if err != nil {
		return "", fmt.Errorf("%w: invalid restore transaction data: %v", models.ErrEncoding, err)
	}
	resourceFee, err := parseFee(preamble.MinResourceFee)
	if err != nil {
		return "", err
	}
	timeout, err := txbuilder.DefaultTimeout(models.KindStateRestore)
	if err != nil {
		return "", err
	}

	restore := &txbuilder.Envelope{
		Source:   simulated.Source,
		Sequence: simulated.Sequence,
		Fee:      c.profile.BaseFee + resourceFee,
		MaxTime:  uint64(c.now().Add(timeout).Unix()),
		Operation: txbuilder.Operation{
			Kind:    uint8(models.KindStateRestore),
			Payload: data,
		},
	}
	return restore.Encode()
}

// Submit sends env to the network and returns its hash. Rejections are
// reported as models.ErrSubmissionRejected and are never retried here.
func (c *Client) Submit(ctx context.Context, env *txbuilder.SignedEnvelope) (string, error) {
	encoded, err := env.Encode()
	if err != nil {
		return "", err
	}

	var resp SendResponse
	if err := c.rpc.CallContext(ctx, &resp, "sendTransaction", encoded); err != nil {
		return "", fmt.Errorf("sendTransaction failed: %v", err)
	}

	hash := resp.Hash
	if hash == "" {
		if hash, err = env.HashHex(c.profile); err != nil {
			return "", err
		}
	}

	switch resp.Status {
	case sendPending:
		c.logger.InfoWithNetwork(c.profile.Name, "Submitted %s transaction %s", env.Envelope.Kind(), hash)
		return hash, nil
	case sendDuplicate:
		c.logger.NoticeWithNetwork(c.profile.Name, "Transaction %s was already submitted", hash)
		return hash, nil
	case sendTryAgainLater, sendError:
		return "", fmt.Errorf("%w: status %s for %s %s", models.ErrSubmissionRejected, resp.Status, hash, resp.ErrorResultXDR)
	}
	return "", fmt.Errorf("%w: unknown sendTransaction status %q", models.ErrEncoding, resp.Status)
}

// GetStatus returns the confirmation status of the transaction with the given hash
func (c *Client) GetStatus(ctx context.Context, hash string) (models.ConfirmationStatus, error) {
	var resp GetTransactionResponse
	if err := c.rpc.CallContext(ctx, &resp, "getTransaction", hash); err != nil {
		return models.StatusNotFound, fmt.Errorf("getTransaction failed: %v", err)
	}
	return models.ParseConfirmationStatus(resp.Status)
}

func parseFee(s string) (uint32, error) {
	if s == "" {
		return 0, nil
	}
	fee, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid resource fee %q", models.ErrEncoding, s)
	}
	return uint32(fee), nil
}
