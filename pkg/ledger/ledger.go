// Package ledger combines the Soroban RPC and Horizon clients of one network
// into the single ledger interface the bridge consumes.
package ledger

import (
	"context"

	"github.com/speedrun-hq/stellar-bridge/pkg/horizon"
	"github.com/speedrun-hq/stellar-bridge/pkg/logger"
	"github.com/speedrun-hq/stellar-bridge/pkg/metrics"
	"github.com/speedrun-hq/stellar-bridge/pkg/models"
	"github.com/speedrun-hq/stellar-bridge/pkg/networks"
	"github.com/speedrun-hq/stellar-bridge/pkg/sorobanrpc"
	"github.com/speedrun-hq/stellar-bridge/pkg/txbuilder"
)

// SorobanAPI is the part of the Soroban RPC used by the ledger
type SorobanAPI interface {
	Simulate(ctx context.Context, env *txbuilder.SignedEnvelope) (*models.Simulation, error)
	Submit(ctx context.Context, env *txbuilder.SignedEnvelope) (string, error)
	GetStatus(ctx context.Context, hash string) (models.ConfirmationStatus, error)
	Health(ctx context.Context) error
}

// HorizonAPI is the part of Horizon used by the ledger
type HorizonAPI interface {
	LoadAccount(ctx context.Context, address string) (*models.Account, error)
	GetTrustLine(ctx context.Context, address string, asset models.Asset) (*models.TrustLine, error)
	SubmitTransaction(ctx context.Context, env *txbuilder.SignedEnvelope) (string, error)
}

var (
	_ SorobanAPI = (*sorobanrpc.Client)(nil)
	_ HorizonAPI = (*horizon.Client)(nil)
)

// Client is the ledger of one network. Contract transactions go through
// Soroban RPC, classic trust line changes through Horizon.
type Client struct {
	soroban SorobanAPI
	horizon HorizonAPI
	network string
	logger  logger.Logger
}

// New creates a ledger client from its two backends
func New(soroban SorobanAPI, horizon HorizonAPI, network string, logger logger.Logger) *Client {
	return &Client{
		soroban: soroban,
		horizon: horizon,
		network: network,
		logger:  logger,
	}
}

// Dial connects both backends for profile
func Dial(ctx context.Context, profile networks.Profile, logger logger.Logger) (*Client, error) {
	rpcClient, err := sorobanrpc.Dial(ctx, profile, logger)
	if err != nil {
		return nil, err
	}
	return New(rpcClient, horizon.New(profile.HorizonURL, profile, logger), profile.Name, logger), nil
}

// LoadAccount returns the current state of address
func (c *Client) LoadAccount(ctx context.Context, address string) (*models.Account, error) {
	return c.horizon.LoadAccount(ctx, address)
}

// Simulate runs a read-only pre-flight of env
func (c *Client) Simulate(ctx context.Context, env *txbuilder.SignedEnvelope) (*models.Simulation, error) {
	return c.soroban.Simulate(ctx, env)
}

// Submit sends env to the backend matching its operation kind
func (c *Client) Submit(ctx context.Context, env *txbuilder.SignedEnvelope) (string, error) {
	kind := env.Envelope.Kind()

	var (
		hash string
		err  error
	)
	if kind == models.KindTrustAdjustment {
		hash, err = c.horizon.SubmitTransaction(ctx, env)
	} else {
		hash, err = c.soroban.Submit(ctx, env)
	}
	if err != nil {
		metrics.SubmissionErrors.WithLabelValues(c.network, kind.String()).Inc()
		return "", err
	}
	metrics.Submissions.WithLabelValues(c.network, kind.String()).Inc()
	return hash, nil
}

// GetStatus returns the confirmation status of hash
func (c *Client) GetStatus(ctx context.Context, hash string) (models.ConfirmationStatus, error) {
	return c.soroban.GetStatus(ctx, hash)
}

// GetTrustLine returns the trust line of address for asset, or nil when none exists
func (c *Client) GetTrustLine(ctx context.Context, address string, asset models.Asset) (*models.TrustLine, error) {
	return c.horizon.GetTrustLine(ctx, address, asset)
}

// Ready reports whether the ledger backends can serve requests
func (c *Client) Ready(ctx context.Context) error {
	return c.soroban.Health(ctx)
}

// Close releases the backend connections
func (c *Client) Close() {
	if closer, ok := c.soroban.(interface{ Close() }); ok {
		closer.Close()
	}
}
