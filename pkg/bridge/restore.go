package bridge

import (
	"context"
	"fmt"

	"github.com/speedrun-hq/stellar-bridge/pkg/metrics"
	"github.com/speedrun-hq/stellar-bridge/pkg/models"
	"github.com/speedrun-hq/stellar-bridge/pkg/txbuilder"
)

type restoreState int

const (
	restoreNotRequired restoreState = iota
	restoreCompleted
	restorePending
)

// restoreOutcome is what the simulation step left behind. account is the
// reloaded source account after a completed restore.
type restoreOutcome struct {
	state   restoreState
	hash    string
	account *models.Account
}

// maybeRestore simulates the signed transfer and, when the network reports
// archived state, submits the restore envelope it returned and waits for it.
// At most one restore is performed per run.
func (r *run) maybeRestore(ctx context.Context, signed *txbuilder.SignedEnvelope, account *models.Account) (restoreOutcome, error) {
	network := r.profile.Name

	sim, err := r.ledger.Simulate(ctx, signed)
	if err != nil {
		return restoreOutcome{}, fail(PhaseSimulate, "", err)
	}
	if !sim.RequiresRestore {
		return restoreOutcome{state: restoreNotRequired, account: account}, nil
	}
	if r.restored {
		return restoreOutcome{}, fail(PhaseRestore, "", fmt.Errorf("%w: state restore already performed in this run", models.ErrProtocol))
	}
	r.restored = true

	r.logger.NoticeWithNetwork(network, "Transfer from %s requires a state restore", signed.Envelope.Source)

	env, err := r.builder.FromPayload(models.KindStateRestore, sim.RestorePayload, r.profile, txbuilder.Config{})
	if err != nil {
		return restoreOutcome{}, fail(PhaseRestore, "", err)
	}
	if env.Source != r.req.SourceAddress {
		return restoreOutcome{}, fail(PhaseRestore, "", fmt.Errorf("%w: restore built for %s, expected %s",
			models.ErrProtocol, env.Source, r.req.SourceAddress))
	}
	restore, err := r.signer.Sign(env, r.profile, r.seed)
	if err != nil {
		return restoreOutcome{}, fail(PhaseRestore, "", err)
	}

	hash, err := r.submit(ctx, restore)
	if err != nil {
		metrics.Restores.WithLabelValues(network, "rejected").Inc()
		return restoreOutcome{}, fail(PhaseRestore, "", err)
	}
	// the restore is on the wire, finish observing it even if the caller gives up
	ctx = context.WithoutCancel(ctx)

	status, err := r.poller.Confirm(ctx, r.ledger, hash)
	if err != nil {
		return restoreOutcome{}, fail(PhaseRestore, hash, err)
	}

	switch status {
	case models.StatusNotFound:
		r.tracker.MarkUnknown(env.Source, env.Sequence)
		metrics.Restores.WithLabelValues(network, "unknown").Inc()
		r.logger.NoticeWithNetwork(network, "State restore %s not confirmed in time, transfer not submitted", hash)
		return restoreOutcome{state: restorePending, hash: hash}, nil
	case models.StatusFailed:
		r.tracker.MarkFailed(env.Source, env.Sequence)
		metrics.Restores.WithLabelValues(network, "failed").Inc()
		return restoreOutcome{}, fail(PhaseRestore, hash, fmt.Errorf("%w: state restore %s", models.ErrTransactionFailed, hash))
	}

	r.tracker.MarkConfirmed(env.Source, env.Sequence)
	metrics.Restores.WithLabelValues(network, "success").Inc()
	r.logger.InfoWithNetwork(network, "State restore %s confirmed", hash)

	reloaded, err := r.ledger.LoadAccount(ctx, r.req.SourceAddress)
	if err != nil {
		return restoreOutcome{}, fail(PhaseRestore, hash, err)
	}
	return restoreOutcome{state: restoreCompleted, hash: hash, account: reloaded}, nil
}
