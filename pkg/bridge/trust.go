package bridge

import (
	"context"
	"fmt"

	"github.com/speedrun-hq/stellar-bridge/pkg/metrics"
	"github.com/speedrun-hq/stellar-bridge/pkg/models"
	"github.com/speedrun-hq/stellar-bridge/pkg/router"
	"github.com/speedrun-hq/stellar-bridge/pkg/txbuilder"
)

// EnsureTrust checks that the source account of req can hold req.Amount more of
// its source asset and submits a trust line adjustment when it cannot. The
// adjustment is not awaited.
func (o *Orchestrator) EnsureTrust(ctx context.Context, req Request, seed []byte) (*TrustResult, error) {
	r, err := o.newRun(req, seed)
	if err != nil {
		return nil, err
	}
	asset, err := o.router.ResolveAsset(ctx, router.StellarChain, req.SourceAsset)
	if err != nil {
		return nil, fail(PhaseEnsureTrust, "", err)
	}
	trust, err := r.ensureTrust(ctx, asset, req.Amount)
	if err != nil {
		return nil, err
	}
	return &trust, nil
}

func (r *run) ensureTrust(ctx context.Context, asset models.Asset, amount string) (TrustResult, error) {
	network := r.profile.Name
	if asset.Native() {
		return TrustResult{Sufficient: true}, nil
	}

	tl, err := r.ledger.GetTrustLine(ctx, r.req.SourceAddress, asset)
	if err != nil {
		return TrustResult{}, fail(PhaseEnsureTrust, "", err)
	}
	insufficient := true
	if tl != nil {
		insufficient, err = tl.Insufficient(amount)
		if err != nil {
			return TrustResult{}, fail(PhaseEnsureTrust, "", err)
		}
	}
	if !insufficient {
		r.logger.DebugWithNetwork(network, "Trust line of %s for %s covers %s", r.req.SourceAddress, asset.Symbol, amount)
		return TrustResult{Sufficient: true}, nil
	}

	if tl == nil {
		r.logger.NoticeWithNetwork(network, "%s has no trust line for %s, requesting one", r.req.SourceAddress, asset.Symbol)
	} else {
		r.logger.NoticeWithNetwork(network, "Trust line of %s for %s (balance %s, limit %s) cannot receive %s, raising limit",
			r.req.SourceAddress, asset.Symbol, tl.Balance, tl.Limit, amount)
	}

	payload, err := r.router.BuildTrustAdjustment(ctx, r.req.SourceAddress, asset)
	if err != nil {
		return TrustResult{}, fail(PhaseEnsureTrust, "", err)
	}
	env, err := r.builder.FromPayload(models.KindTrustAdjustment, payload, r.profile, txbuilder.Config{})
	if err != nil {
		return TrustResult{}, fail(PhaseEnsureTrust, "", err)
	}
	if env.Source != r.req.SourceAddress {
		return TrustResult{}, fail(PhaseEnsureTrust, "", fmt.Errorf("%w: trust line adjustment built for %s, expected %s",
			models.ErrProtocol, env.Source, r.req.SourceAddress))
	}
	signed, err := r.signer.Sign(env, r.profile, r.seed)
	if err != nil {
		return TrustResult{}, fail(PhaseEnsureTrust, "", err)
	}

	hash, err := r.submit(ctx, signed)
	if err != nil {
		return TrustResult{}, fail(PhaseEnsureTrust, "", err)
	}
	metrics.TrustlineAdjustments.WithLabelValues(network, asset.Symbol).Inc()
	r.logger.InfoWithNetwork(network, "Submitted trust line adjustment %s for %s", hash, asset.Symbol)
	return TrustResult{Hash: hash}, nil
}
