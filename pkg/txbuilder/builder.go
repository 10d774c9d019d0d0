// Package txbuilder builds single-use Soroban transaction envelopes, either from
// a contract invocation or from a payload encoded by the network or a router.
package txbuilder

import (
	"fmt"
	"time"

	"github.com/speedrun-hq/stellar-bridge/pkg/logger"
	"github.com/speedrun-hq/stellar-bridge/pkg/models"
	"github.com/speedrun-hq/stellar-bridge/pkg/networks"
)

// defaultTimeouts holds the expiry timeout per operation kind
var defaultTimeouts = [...]time.Duration{
	models.KindTransfer:          300 * time.Second,
	models.KindLiquidityDeposit:  300 * time.Second,
	models.KindLiquidityWithdraw: 300 * time.Second,
	models.KindStake:             300 * time.Second,
	models.KindBridgeTransfer:    300 * time.Second,
	models.KindStateRestore:      300 * time.Second,
	models.KindTrustAdjustment:   300 * time.Second,
}

// compile-time check: adding an operation kind requires choosing its timeout here
var _ = [1]struct{}{}[len(defaultTimeouts)-int(models.NumOperationKinds)]

// DefaultTimeout returns the expiry timeout applied to envelopes of the given kind
func DefaultTimeout(kind models.OperationKind) (time.Duration, error) {
	if !kind.Valid() {
		return 0, fmt.Errorf("%w: unknown operation kind %d", models.ErrConfiguration, int(kind))
	}
	return defaultTimeouts[kind], nil
}

// Config holds the optional overrides of a build. Zero values select the defaults.
type Config struct {
	// Fee in stroops, defaults to the profile base fee
	Fee uint32
	// Timeout until expiry, defaults to DefaultTimeout of the kind
	Timeout time.Duration
	// Memo is attached as a text memo only when set
	Memo string
}

// Builder creates envelopes. It holds no per-run state and is safe for concurrent use.
type Builder struct {
	now    func() time.Time
	logger logger.Logger
}

// NewBuilder creates a new envelope builder
func NewBuilder(logger logger.Logger) *Builder {
	return &Builder{
		now:    time.Now,
		logger: logger,
	}
}

// WithClock replaces the time source used for expiry computation
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build creates an envelope invoking a contract function from the given source account.
// The envelope consumes the sequence number following account.Sequence.
func (b *Builder) Build(
	kind models.OperationKind,
	account models.Account,
	invocation models.ContractInvocation,
	profile networks.Profile,
	cfg Config,
) (*Envelope, error) {
	timeout, err := DefaultTimeout(kind)
	if err != nil {
		return nil, err
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("%w: negative timeout %s", models.ErrConfiguration, cfg.Timeout)
	}
	if cfg.Timeout > 0 {
		timeout = cfg.Timeout
	}
	if account.Address == "" {
		return nil, fmt.Errorf("%w: source account address is required", models.ErrConfiguration)
	}
	if invocation.ContractAddress == "" || invocation.Function == "" {
		return nil, fmt.Errorf("%w: contract address and function are required", models.ErrConfiguration)
	}
	if len(cfg.Memo) > MaxMemoLength {
		return nil, fmt.Errorf("%w: memo is %d bytes, at most %d allowed", models.ErrConfiguration, len(cfg.Memo), MaxMemoLength)
	}

	fee := cfg.Fee
	if fee == 0 {
		fee = profile.BaseFee
	}
	if fee < networks.MinBaseFee {
		return nil, fmt.Errorf("%w: fee %d is below the network minimum %d", models.ErrConfiguration, fee, networks.MinBaseFee)
	}

	env := &Envelope{
		Source:   account.Address,
		Sequence: account.Sequence + 1,
		Fee:      fee,
		MaxTime:  uint64(b.now().Add(timeout).Unix()),
		Memo:     cfg.Memo,
		Operation: Operation{
			Kind:     uint8(kind),
			Contract: invocation.ContractAddress,
			Function: invocation.Function,
			Args:     invocation.Args,
		},
	}

	b.logger.DebugWithNetwork(profile.Name, "Built %s envelope for %s with sequence %d, fee %d, expiry %s",
		kind, env.Source, env.Sequence, env.Fee, env.Expiry().UTC().Format(time.RFC3339))
	return env, nil
}

// FromPayload decodes an externally encoded envelope. Fee and time bounds carried
// by the payload are authoritative and are not overridden by cfg.
func (b *Builder) FromPayload(
	kind models.OperationKind,
	payload string,
	profile networks.Profile,
	cfg Config,
) (*Envelope, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown operation kind %d", models.ErrConfiguration, int(kind))
	}

	env, err := DecodeEnvelope(payload)
	if err != nil {
		return nil, err
	}
	if env.Source == "" {
		return nil, fmt.Errorf("%w: payload has no source account", models.ErrEncoding)
	}
	if got := env.Kind(); got != kind {
		return nil, fmt.Errorf("%w: payload carries a %s operation, expected %s", models.ErrEncoding, got, kind)
	}

	// extension point: memos cannot be added to externally built payloads yet
	if cfg.Memo != "" {
		b.logger.NoticeWithNetwork(profile.Name, "Ignoring memo %q on %s payload, memos are not applied to external payloads", cfg.Memo, kind)
	}
	if cfg.Fee != 0 || cfg.Timeout != 0 {
		b.logger.DebugWithNetwork(profile.Name, "Payload fee %d and expiry are authoritative, overrides ignored", env.Fee)
	}

	b.logger.DebugWithNetwork(profile.Name, "Decoded %s payload for %s with sequence %d", kind, env.Source, env.Sequence)
	return env, nil
}
