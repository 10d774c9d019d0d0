// Package contracts invokes Soroban contract functions on behalf of a single
// source account and provides typed helpers for the staking and liquidity pool contracts.
package contracts

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/speedrun-hq/stellar-bridge/pkg/confirm"
	"github.com/speedrun-hq/stellar-bridge/pkg/logger"
	"github.com/speedrun-hq/stellar-bridge/pkg/metrics"
	"github.com/speedrun-hq/stellar-bridge/pkg/models"
	"github.com/speedrun-hq/stellar-bridge/pkg/networks"
	"github.com/speedrun-hq/stellar-bridge/pkg/txbuilder"
)

// Ledger is the subset of the network the invoker needs
type Ledger interface {
	LoadAccount(ctx context.Context, address string) (*models.Account, error)
	Simulate(ctx context.Context, env *txbuilder.SignedEnvelope) (*models.Simulation, error)
	Submit(ctx context.Context, env *txbuilder.SignedEnvelope) (string, error)
	GetStatus(ctx context.Context, hash string) (models.ConfirmationStatus, error)
}

// Signer signs an envelope with key material passed per call
type Signer interface {
	Sign(env *txbuilder.Envelope, profile networks.Profile, seed []byte) (*txbuilder.SignedEnvelope, error)
}

// InvokerConfig holds the settings of an invoker
type InvokerConfig struct {
	Profile         networks.Profile
	AllowMainnet    bool
	PollInterval    time.Duration
	PollMaxAttempts int
}

// Invoker submits contract invocations and reads contract state through simulation
type Invoker struct {
	ledger  Ledger
	signer  Signer
	builder *txbuilder.Builder
	poller  *confirm.Poller
	cfg     InvokerConfig
	logger  logger.Logger
}

// NewInvoker creates a new invoker
func NewInvoker(ledger Ledger, signer Signer, cfg InvokerConfig, logger logger.Logger) *Invoker {
	return &Invoker{
		ledger:  ledger,
		signer:  signer,
		builder: txbuilder.NewBuilder(logger),
		poller:  confirm.NewPoller(cfg.PollInterval, cfg.PollMaxAttempts, cfg.Profile.Name, logger),
		cfg:     cfg,
		logger:  logger,
	}
}

// Invoke builds, signs, simulates and submits a call of inv from source and waits
// for its confirmation. It returns the transaction hash and the simulated result.
// Invocations touching archived state are rejected rather than restored.
func (i *Invoker) Invoke(
	ctx context.Context,
	kind models.OperationKind,
	source string,
	seed []byte,
	inv models.ContractInvocation,
) (string, string, error) {
	hash, result, err := i.invoke(ctx, kind, source, seed, inv)
	outcome := "success"
	if err != nil {
		outcome = "failed"
		i.logger.ErrorWithNetwork(i.cfg.Profile.Name, "Invocation of %s on %s failed: %v", inv.Function, inv.ContractAddress, err)
	}
	metrics.ContractInvocations.WithLabelValues(i.cfg.Profile.Name, inv.Function, outcome).Inc()
	return hash, result, err
}

func (i *Invoker) invoke(
	ctx context.Context,
	kind models.OperationKind,
	source string,
	seed []byte,
	inv models.ContractInvocation,
) (string, string, error) {
	network := i.cfg.Profile.Name
	if i.cfg.Profile.Production && !i.cfg.AllowMainnet {
		return "", "", fmt.Errorf("%w: invoking contracts on %s requires an explicit mainnet opt-in", models.ErrPolicy, network)
	}

	account, err := i.ledger.LoadAccount(ctx, source)
	if err != nil {
		return "", "", err
	}
	env, err := i.builder.Build(kind, *account, inv, i.cfg.Profile, txbuilder.Config{})
	if err != nil {
		return "", "", err
	}
	signed, err := i.signer.Sign(env, i.cfg.Profile, seed)
	if err != nil {
		return "", "", err
	}

	sim, err := i.ledger.Simulate(ctx, signed)
	if err != nil {
		return "", "", err
	}
	if sim.RequiresRestore {
		return "", "", fmt.Errorf("%w: %s requires a state restore", models.ErrSimulationFailed, inv.Function)
	}

	hash, err := i.ledger.Submit(ctx, signed)
	if err != nil {
		return "", "", err
	}
	i.logger.InfoWithNetwork(network, "Submitted %s on %s as %s", inv.Function, inv.ContractAddress, hash)

	status, err := i.poller.Confirm(context.WithoutCancel(ctx), i.ledger, hash)
	if err != nil {
		return hash, "", err
	}
	switch status {
	case models.StatusSuccess:
		return hash, sim.Result, nil
	case models.StatusFailed:
		return hash, "", fmt.Errorf("%w: %s (tx %s)", models.ErrTransactionFailed, inv.Function, hash)
	default:
		return hash, "", fmt.Errorf("%w: %s (tx %s) not confirmed after %s", models.ErrNetworkTimeout, inv.Function, hash, i.poller.MaxWait())
	}
}

// Read simulates a call of inv from source and returns its encoded result.
// Nothing is signed or submitted.
func (i *Invoker) Read(ctx context.Context, source string, inv models.ContractInvocation) (string, error) {
	account, err := i.ledger.LoadAccount(ctx, source)
	if err != nil {
		return "", err
	}
	env, err := i.builder.Build(models.KindTransfer, *account, inv, i.cfg.Profile, txbuilder.Config{})
	if err != nil {
		return "", err
	}
	sim, err := i.ledger.Simulate(ctx, &txbuilder.SignedEnvelope{Envelope: *env})
	if err != nil {
		metrics.ContractInvocations.WithLabelValues(i.cfg.Profile.Name, inv.Function, "failed").Inc()
		return "", err
	}
	metrics.ContractInvocations.WithLabelValues(i.cfg.Profile.Name, inv.Function, "read").Inc()
	return sim.Result, nil
}

var (
	maxI128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
	minI128 = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127))
)

func addressArg(name, address string) (models.Arg, error) {
	if !models.IsStellarAddress(address) {
		return models.Arg{}, fmt.Errorf("%w: invalid %s address %q", models.ErrConfiguration, name, address)
	}
	return models.Arg{Type: "address", Value: address}, nil
}

// i128Arg accepts a base-10 integer in the signed 128 bit range
func i128Arg(name, value string) (models.Arg, error) {
	n, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return models.Arg{}, fmt.Errorf("%w: %s must be an integer, got %q", models.ErrConfiguration, name, value)
	}
	if n.Cmp(minI128) < 0 || n.Cmp(maxI128) > 0 {
		return models.Arg{}, fmt.Errorf("%w: %s %s is out of the i128 range", models.ErrConfiguration, name, value)
	}
	return models.Arg{Type: "i128", Value: n.String()}, nil
}

func positiveI128Arg(name, value string) (models.Arg, error) {
	arg, err := i128Arg(name, value)
	if err != nil {
		return arg, err
	}
	if arg.Value == "0" || arg.Value[0] == '-' {
		return models.Arg{}, fmt.Errorf("%w: %s must be positive, got %s", models.ErrConfiguration, name, value)
	}
	return arg, nil
}

func boolArg(value bool) models.Arg {
	if value {
		return models.Arg{Type: "bool", Value: "true"}
	}
	return models.Arg{Type: "bool", Value: "false"}
}
