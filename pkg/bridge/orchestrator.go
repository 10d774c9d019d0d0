// Package bridge runs a transfer from Stellar to an EVM chain through the bridge
// router: build, sign, simulate, restore ledger state when required, submit,
// confirm and finally make sure the sender trusts the bridged asset.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/speedrun-hq/stellar-bridge/pkg/confirm"
	"github.com/speedrun-hq/stellar-bridge/pkg/logger"
	"github.com/speedrun-hq/stellar-bridge/pkg/metrics"
	"github.com/speedrun-hq/stellar-bridge/pkg/models"
	"github.com/speedrun-hq/stellar-bridge/pkg/networks"
	"github.com/speedrun-hq/stellar-bridge/pkg/router"
	"github.com/speedrun-hq/stellar-bridge/pkg/sequence"
	"github.com/speedrun-hq/stellar-bridge/pkg/txbuilder"
)

// Ledger is the network a run reads from and submits to
type Ledger interface {
	LoadAccount(ctx context.Context, address string) (*models.Account, error)
	Simulate(ctx context.Context, env *txbuilder.SignedEnvelope) (*models.Simulation, error)
	Submit(ctx context.Context, env *txbuilder.SignedEnvelope) (string, error)
	GetStatus(ctx context.Context, hash string) (models.ConfirmationStatus, error)
	GetTrustLine(ctx context.Context, address string, asset models.Asset) (*models.TrustLine, error)
}

// Router prices transfers and encodes the transactions that perform them
type Router interface {
	ResolveAsset(ctx context.Context, chain, symbol string) (models.Asset, error)
	QuoteAndBuildTransfer(ctx context.Context, req models.QuoteRequest) (string, error)
	BuildTrustAdjustment(ctx context.Context, address string, asset models.Asset) (string, error)
}

// Signer signs an envelope with key material passed per call
type Signer interface {
	Sign(env *txbuilder.Envelope, profile networks.Profile, seed []byte) (*txbuilder.SignedEnvelope, error)
}

// Request is a single bridge transfer
type Request struct {
	Amount           string           `json:"amount"`
	SourceAddress    string           `json:"source_address"`
	DestAddress      string           `json:"dest_address"`
	SourceAsset      string           `json:"source_asset"`
	DestinationChain string           `json:"destination_chain"`
	DestinationAsset string           `json:"destination_asset"`
	Network          networks.Profile `json:"-"`
	// AllowMainnet is the explicit opt-in required for production networks
	AllowMainnet bool `json:"-"`
}

// Validate checks the request locally, without any network access
func (r Request) Validate() error {
	amount, err := models.ParseAmount(r.Amount)
	if err != nil {
		return err
	}
	if amount.Sign() <= 0 {
		return fmt.Errorf("%w: amount must be positive, got %s", models.ErrConfiguration, r.Amount)
	}
	if !models.IsAccountAddress(r.SourceAddress) {
		return fmt.Errorf("%w: invalid source account %q", models.ErrConfiguration, r.SourceAddress)
	}
	if !common.IsHexAddress(r.DestAddress) {
		return fmt.Errorf("%w: invalid EVM destination address %q", models.ErrConfiguration, r.DestAddress)
	}
	if r.SourceAsset == "" || r.DestinationChain == "" || r.DestinationAsset == "" {
		return fmt.Errorf("%w: source asset, destination chain and destination asset are required", models.ErrConfiguration)
	}
	if r.Network.Name == "" || r.Network.Passphrase == "" {
		return fmt.Errorf("%w: network profile is required", models.ErrConfiguration)
	}
	return nil
}

// Options tunes an orchestrator
type Options struct {
	PollInterval    time.Duration
	PollMaxAttempts int
	// Now is the clock used for envelope expiry, time.Now when nil
	Now func() time.Time
}

// Orchestrator runs bridge transfers. It keeps no per-run state; concurrent runs
// against the same source account must be serialized by the caller.
type Orchestrator struct {
	ledgers map[string]Ledger
	router  Router
	signer  Signer
	builder *txbuilder.Builder
	opts    Options
	logger  logger.Logger
}

// NewOrchestrator creates an orchestrator with one ledger per network name
func NewOrchestrator(ledgers map[string]Ledger, router Router, signer Signer, logger logger.Logger, opts Options) *Orchestrator {
	builder := txbuilder.NewBuilder(logger)
	if opts.Now != nil {
		builder = builder.WithClock(opts.Now)
	}

	copied := make(map[string]Ledger, len(ledgers))
	for name, l := range ledgers {
		copied[name] = l
	}
	return &Orchestrator{
		ledgers: copied,
		router:  router,
		signer:  signer,
		builder: builder,
		opts:    opts,
		logger:  logger,
	}
}

// run holds the state of one orchestration
type run struct {
	*Orchestrator
	req      Request
	profile  networks.Profile
	ledger   Ledger
	seed     []byte
	poller   *confirm.Poller
	tracker  *sequence.Tracker
	restored bool
}

// Run performs one bridge transfer with the signing seed supplied for this call only.
// Failures are returned as *Error; unknown outcomes are results with a pending status.
func (o *Orchestrator) Run(ctx context.Context, req Request, seed []byte) (*Result, error) {
	start := time.Now()
	network := req.Network.Name

	r, err := o.newRun(req, seed)
	if err != nil {
		metrics.BridgeRuns.WithLabelValues(network, "rejected").Inc()
		o.logger.ErrorWithNetwork(network, "Bridge request rejected: %v", err)
		return nil, err
	}

	o.logger.InfoWithNetwork(network, "Bridging %s %s from %s to %s on %s",
		req.Amount, req.SourceAsset, req.SourceAddress, req.DestAddress, req.DestinationChain)

	result, err := r.execute(ctx)
	metrics.BridgeRunDuration.WithLabelValues(network).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.BridgeRuns.WithLabelValues(network, "failed").Inc()
		o.logger.ErrorWithNetwork(network, "Bridge run failed: %v", err)
		return nil, err
	}

	metrics.BridgeRuns.WithLabelValues(network, string(result.Status)).Inc()
	o.logger.InfoWithNetwork(network, "Bridge run finished with status %s (tx %s)", result.Status, result.Hash)
	return result, nil
}

// newRun applies the policy gate and local validation; it performs no I/O
func (o *Orchestrator) newRun(req Request, seed []byte) (*run, error) {
	if req.Network.Production && !req.AllowMainnet {
		return nil, fail(PhasePolicy, "", fmt.Errorf("%w: bridging on %s requires an explicit mainnet opt-in", models.ErrPolicy, req.Network.Name))
	}
	if err := req.Validate(); err != nil {
		return nil, fail(PhaseValidate, "", err)
	}
	if len(seed) != 32 {
		return nil, fail(PhaseValidate, "", fmt.Errorf("%w: signing seed must be 32 bytes", models.ErrConfiguration))
	}
	ledger, ok := o.ledgers[req.Network.Name]
	if !ok {
		return nil, fail(PhaseValidate, "", fmt.Errorf("%w: no ledger configured for %s", models.ErrConfiguration, req.Network.Name))
	}

	return &run{
		Orchestrator: o,
		req:          req,
		profile:      req.Network,
		ledger:       ledger,
		seed:         seed,
		poller:       confirm.NewPoller(o.opts.PollInterval, o.opts.PollMaxAttempts, req.Network.Name, o.logger),
		tracker:      sequence.NewTracker(req.Network.Name, o.logger),
	}, nil
}

func (r *run) execute(ctx context.Context) (*Result, error) {
	network := r.profile.Name

	account, err := r.ledger.LoadAccount(ctx, r.req.SourceAddress)
	if err != nil {
		return nil, fail(PhaseLoadAccount, "", err)
	}

	quote, err := r.quoteRequest(ctx)
	if err != nil {
		return nil, fail(PhaseBuildMain, "", err)
	}

	signed, phase, err := r.buildMain(ctx, quote, PhaseBuildMain)
	if err != nil {
		return nil, fail(phase, "", err)
	}

	outcome, err := r.maybeRestore(ctx, signed, account)
	if err != nil {
		return nil, err
	}
	switch outcome.state {
	case restorePending:
		return &Result{Status: StatusPendingRestore, Hash: outcome.hash, Network: network}, nil
	case restoreCompleted:
		// submissions already happened, the rest of the run is not abandoned
		ctx = context.WithoutCancel(ctx)

		rebuilt, phase, err := r.buildMain(ctx, quote, PhaseRebuildMain)
		if err != nil {
			return nil, fail(phase, "", err)
		}
		if rebuilt.Envelope.Sequence <= signed.Envelope.Sequence {
			return nil, fail(PhaseRebuildMain, "", fmt.Errorf("%w: rebuilt transfer has sequence %d, must exceed %d",
				models.ErrProtocol, rebuilt.Envelope.Sequence, signed.Envelope.Sequence))
		}
		if outcome.account != nil && rebuilt.Envelope.Sequence <= outcome.account.Sequence {
			return nil, fail(PhaseRebuildMain, "", fmt.Errorf("%w: rebuilt transfer reuses sequence %d",
				models.ErrProtocol, rebuilt.Envelope.Sequence))
		}

		sim, err := r.ledger.Simulate(ctx, rebuilt)
		if err != nil {
			return nil, fail(PhaseSimulate, "", err)
		}
		if sim.RequiresRestore {
			return nil, fail(PhaseSimulate, "", fmt.Errorf("%w: rebuilt transfer requires a second state restore", models.ErrProtocol))
		}
		signed = rebuilt
	}

	// SUBMIT_MAIN: from here on the run completes regardless of the caller
	ctx = context.WithoutCancel(ctx)

	hash, err := r.submit(ctx, signed)
	if err != nil {
		return nil, fail(PhaseSubmitMain, "", err)
	}

	status, err := r.poller.Confirm(ctx, r.ledger, hash)
	if err != nil {
		return nil, fail(PhaseConfirmMain, hash, err)
	}
	env := &signed.Envelope
	switch status {
	case models.StatusNotFound:
		r.tracker.MarkUnknown(env.Source, env.Sequence)
		r.logger.NoticeWithNetwork(network, "Transfer %s not confirmed in time, reporting as pending", hash)
		return &Result{Status: StatusPending, Hash: hash, Network: network}, nil
	case models.StatusFailed:
		r.tracker.MarkFailed(env.Source, env.Sequence)
		return nil, fail(PhaseConfirmMain, hash, fmt.Errorf("%w: transfer %s", models.ErrTransactionFailed, hash))
	}
	r.tracker.MarkConfirmed(env.Source, env.Sequence)

	trust, err := r.ensureTrust(ctx, quote.SourceAsset, r.req.Amount)
	if err != nil {
		var bridgeErr *Error
		if errors.As(err, &bridgeErr) {
			bridgeErr.TransferHash = hash
		}
		r.logger.ErrorWithNetwork(network, "Transfer %s is confirmed but the trust line step failed", hash)
		return nil, err
	}
	if !trust.Sufficient {
		return &Result{
			Status:       StatusTrustlineSubmitted,
			Hash:         trust.Hash,
			Network:      network,
			TransferHash: hash,
		}, nil
	}

	return &Result{
		Status:  StatusConfirmed,
		Hash:    hash,
		Network: network,
		Asset:   quote.SourceAsset.Symbol,
		Amount:  r.req.Amount,
	}, nil
}

// quoteRequest resolves the assets of the transfer with the router
func (r *run) quoteRequest(ctx context.Context) (models.QuoteRequest, error) {
	source, err := r.router.ResolveAsset(ctx, router.StellarChain, r.req.SourceAsset)
	if err != nil {
		return models.QuoteRequest{}, err
	}
	dest, err := r.router.ResolveAsset(ctx, r.req.DestinationChain, r.req.DestinationAsset)
	if err != nil {
		return models.QuoteRequest{}, err
	}
	return models.QuoteRequest{
		Amount:           r.req.Amount,
		SourceAddress:    r.req.SourceAddress,
		DestAddress:      r.req.DestAddress,
		SourceAsset:      source,
		DestinationChain: r.req.DestinationChain,
		DestinationAsset: dest,
	}, nil
}

// buildMain asks the router for a fresh transfer envelope and signs it
func (r *run) buildMain(ctx context.Context, quote models.QuoteRequest, buildPhase Phase) (*txbuilder.SignedEnvelope, Phase, error) {
	payload, err := r.router.QuoteAndBuildTransfer(ctx, quote)
	if err != nil {
		return nil, buildPhase, err
	}
	env, err := r.builder.FromPayload(models.KindBridgeTransfer, payload, r.profile, txbuilder.Config{})
	if err != nil {
		return nil, buildPhase, err
	}
	if env.Source != r.req.SourceAddress {
		return nil, buildPhase, fmt.Errorf("%w: router built a transfer for %s, expected %s", models.ErrProtocol, env.Source, r.req.SourceAddress)
	}

	signed, err := r.signer.Sign(env, r.profile, r.seed)
	if err != nil {
		return nil, PhaseSignMain, err
	}
	return signed, buildPhase, nil
}

// submit claims the envelope's sequence for this run and submits it once
func (r *run) submit(ctx context.Context, signed *txbuilder.SignedEnvelope) (string, error) {
	env := &signed.Envelope
	if err := r.tracker.Claim(env.Source, env.Sequence, env.Kind()); err != nil {
		return "", err
	}
	hash, err := r.ledger.Submit(ctx, signed)
	if err != nil {
		r.tracker.MarkFailed(env.Source, env.Sequence)
		return "", err
	}
	r.tracker.Track(env.Source, env.Sequence, hash)
	return hash, nil
}
