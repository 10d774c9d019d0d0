package bridge

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speedrun-hq/stellar-bridge/pkg/bridge/mocks"
	"github.com/speedrun-hq/stellar-bridge/pkg/logger"
	"github.com/speedrun-hq/stellar-bridge/pkg/models"
	"github.com/speedrun-hq/stellar-bridge/pkg/networks"
	"github.com/speedrun-hq/stellar-bridge/pkg/router"
	"github.com/speedrun-hq/stellar-bridge/pkg/signer"
)

const (
	destAddress   = "0x742d35Cc6634C0532925a3b844Bc454e4438f44e"
	usdcIssuer    = "GA5ZSEJYB37JRC5AVCIA5MOP4RHTM335X2KGX3IHOJAPP5RE34K4KZVN"
	usdcContract  = "CCW67TSZV3SSS2HXMBQ5JFGCKJNXKZM7UQUWUZPUTHXSTZLEO7SJMI75"
	ethUSDC       = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
	startSequence = uint64(1000)
)

var usdc = models.Asset{Symbol: "USDC", Issuer: usdcIssuer, ContractAddress: usdcContract, Decimals: 7}

type fixture struct {
	ledger *mocks.Ledger
	router *mocks.Router
	orch   *Orchestrator
	seed   []byte
	source string
}

func newFixture(t *testing.T, profile networks.Profile) *fixture {
	t.Helper()
	seed := bytes.Repeat([]byte{7}, 32)
	source, err := signer.Address(seed)
	require.NoError(t, err)

	ledger := mocks.NewLedger(profile)
	ledger.AddAccount(source, startSequence)
	ledger.SetTrustLine(source, usdc, "10", "1000")

	rt := mocks.NewRouter(ledger)
	rt.AddAsset(router.StellarChain, usdc)
	rt.AddAsset("ETH", models.Asset{Symbol: "USDC", ContractAddress: ethUSDC, Decimals: 6})

	orch := NewOrchestrator(
		map[string]Ledger{profile.Name: ledger},
		rt,
		signer.Ed25519{},
		&logger.EmptyLogger{},
		Options{PollInterval: time.Millisecond, PollMaxAttempts: 3},
	)
	return &fixture{ledger: ledger, router: rt, orch: orch, seed: seed, source: source}
}

func (f *fixture) request(amount string) Request {
	return Request{
		Amount:           amount,
		SourceAddress:    f.source,
		DestAddress:      destAddress,
		SourceAsset:      "USDC",
		DestinationChain: "ETH",
		DestinationAsset: "USDC",
		Network:          f.ledger.Profile,
	}
}

func requirePhase(t *testing.T, err error, phase Phase) *Error {
	t.Helper()
	var bridgeErr *Error
	require.True(t, errors.As(err, &bridgeErr), "expected *bridge.Error, got %v", err)
	assert.Equal(t, phase, bridgeErr.Phase)
	return bridgeErr
}

func TestRunConfirmed(t *testing.T) {
	f := newFixture(t, networks.Testnet)

	result, err := f.orch.Run(context.Background(), f.request("100"), f.seed)
	require.NoError(t, err)

	assert.Equal(t, StatusConfirmed, result.Status)
	assert.Equal(t, networks.TestnetName, result.Network)
	assert.Equal(t, "USDC", result.Asset)
	assert.Equal(t, "100", result.Amount)
	assert.False(t, result.Pending())

	require.Len(t, f.ledger.Submissions, 1)
	assert.Equal(t, models.KindBridgeTransfer, f.ledger.Submissions[0].Kind)
	assert.Equal(t, startSequence+1, f.ledger.Submissions[0].Sequence)
	assert.Equal(t, f.ledger.Submissions[0].Hash, result.Hash)
	assert.Equal(t, 1, f.ledger.Simulations)
	assert.Equal(t, 1, f.router.TransferBuilds)
}

func TestRunRestoreThenTrustAdjustment(t *testing.T) {
	f := newFixture(t, networks.Testnet)
	f.ledger.RestoreSimulations = 1
	f.ledger.RemoveTrustLine(f.source, usdc)

	result, err := f.orch.Run(context.Background(), f.request("25.5"), f.seed)
	require.NoError(t, err)
	assert.Equal(t, StatusTrustlineSubmitted, result.Status)

	assert.Equal(t, []models.OperationKind{
		models.KindStateRestore,
		models.KindBridgeTransfer,
		models.KindTrustAdjustment,
	}, f.ledger.SubmittedKinds())

	restore, main, trust := f.ledger.Submissions[0], f.ledger.Submissions[1], f.ledger.Submissions[2]
	assert.Equal(t, startSequence+1, restore.Sequence)
	assert.Greater(t, main.Sequence, restore.Sequence)
	assert.Greater(t, trust.Sequence, main.Sequence)
	assert.Equal(t, trust.Hash, result.Hash)
	assert.Equal(t, main.Hash, result.TransferHash)
	assert.Equal(t, 2, f.router.TransferBuilds)
	assert.Equal(t, 1, f.router.TrustBuilds)
}

func TestRunMainnetRequiresOptIn(t *testing.T) {
	f := newFixture(t, networks.Mainnet)

	_, err := f.orch.Run(context.Background(), f.request("100"), f.seed)
	require.ErrorIs(t, err, models.ErrPolicy)
	requirePhase(t, err, PhasePolicy)
	assert.Zero(t, f.ledger.Calls)
	assert.Zero(t, f.router.Calls)

	req := f.request("100")
	req.AllowMainnet = true
	result, err := f.orch.Run(context.Background(), req, f.seed)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, result.Status)
	assert.Equal(t, networks.MainnetName, result.Network)
}

func TestRunPendingWhenConfirmationExhausted(t *testing.T) {
	f := newFixture(t, networks.Testnet)
	f.ledger.Statuses[models.KindBridgeTransfer] = models.StatusPending

	result, err := f.orch.Run(context.Background(), f.request("100"), f.seed)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, result.Status)
	assert.True(t, result.Pending())
	require.Len(t, f.ledger.Submissions, 1)
	assert.Equal(t, f.ledger.Submissions[0].Hash, result.Hash)
	assert.Zero(t, f.router.TrustBuilds)
}

func TestRunRestoreOutcomes(t *testing.T) {
	t.Run("restore failed", func(t *testing.T) {
		f := newFixture(t, networks.Testnet)
		f.ledger.RestoreSimulations = 1
		f.ledger.Statuses[models.KindStateRestore] = models.StatusFailed

		_, err := f.orch.Run(context.Background(), f.request("100"), f.seed)
		require.ErrorIs(t, err, models.ErrTransactionFailed)
		bridgeErr := requirePhase(t, err, PhaseRestore)
		require.Len(t, f.ledger.Submissions, 1)
		assert.Equal(t, f.ledger.Submissions[0].Hash, bridgeErr.Hash)
	})

	t.Run("restore unconfirmed", func(t *testing.T) {
		f := newFixture(t, networks.Testnet)
		f.ledger.RestoreSimulations = 1
		f.ledger.Statuses[models.KindStateRestore] = models.StatusNotFound

		result, err := f.orch.Run(context.Background(), f.request("100"), f.seed)
		require.NoError(t, err)
		assert.Equal(t, StatusPendingRestore, result.Status)
		assert.Equal(t, []models.OperationKind{models.KindStateRestore}, f.ledger.SubmittedKinds())
		assert.Equal(t, f.ledger.Submissions[0].Hash, result.Hash)
	})

	t.Run("second restore is a protocol violation", func(t *testing.T) {
		f := newFixture(t, networks.Testnet)
		f.ledger.RestoreSimulations = 2

		_, err := f.orch.Run(context.Background(), f.request("100"), f.seed)
		require.ErrorIs(t, err, models.ErrProtocol)
		assert.Equal(t, []models.OperationKind{models.KindStateRestore}, f.ledger.SubmittedKinds())
	})

	t.Run("stale rebuilt sequence", func(t *testing.T) {
		f := newFixture(t, networks.Testnet)
		f.ledger.RestoreSimulations = 1
		f.router.StaleSequence = true

		_, err := f.orch.Run(context.Background(), f.request("100"), f.seed)
		require.ErrorIs(t, err, models.ErrProtocol)
		requirePhase(t, err, PhaseRebuildMain)
		assert.Equal(t, []models.OperationKind{models.KindStateRestore}, f.ledger.SubmittedKinds())
	})

	t.Run("rebuild reusing the restore sequence", func(t *testing.T) {
		f := newFixture(t, networks.Testnet)
		f.ledger.RestoreSimulations = 1
		f.ledger.FreezeSequence = true

		_, err := f.orch.Run(context.Background(), f.request("100"), f.seed)
		require.ErrorIs(t, err, models.ErrProtocol)
		requirePhase(t, err, PhaseRebuildMain)
	})
}

func TestRunMainFailed(t *testing.T) {
	f := newFixture(t, networks.Testnet)
	f.ledger.Statuses[models.KindBridgeTransfer] = models.StatusFailed

	_, err := f.orch.Run(context.Background(), f.request("100"), f.seed)
	require.ErrorIs(t, err, models.ErrTransactionFailed)
	bridgeErr := requirePhase(t, err, PhaseConfirmMain)
	require.Len(t, f.ledger.Submissions, 1)
	assert.Equal(t, f.ledger.Submissions[0].Hash, bridgeErr.Hash)
	assert.Zero(t, f.router.TrustBuilds)
}

func TestRunSubmitRejected(t *testing.T) {
	f := newFixture(t, networks.Testnet)
	f.ledger.SubmitErr = models.ErrSubmissionRejected

	_, err := f.orch.Run(context.Background(), f.request("100"), f.seed)
	require.ErrorIs(t, err, models.ErrSubmissionRejected)
	requirePhase(t, err, PhaseSubmitMain)
}

func TestRunTrustFailureKeepsTransferHash(t *testing.T) {
	f := newFixture(t, networks.Testnet)
	f.ledger.RemoveTrustLine(f.source, usdc)
	f.ledger.OnSubmit = func(kind models.OperationKind) {
		if kind == models.KindBridgeTransfer {
			f.ledger.SubmitErr = models.ErrSubmissionRejected
		}
	}

	_, err := f.orch.Run(context.Background(), f.request("100"), f.seed)
	require.ErrorIs(t, err, models.ErrSubmissionRejected)
	bridgeErr := requirePhase(t, err, PhaseEnsureTrust)

	require.Len(t, f.ledger.Submissions, 1)
	transfer := f.ledger.Submissions[0]
	assert.Equal(t, models.KindBridgeTransfer, transfer.Kind)
	assert.Equal(t, transfer.Hash, bridgeErr.TransferHash)
	assert.Contains(t, err.Error(), transfer.Hash)
	assert.Equal(t, 1, f.router.TrustBuilds)
}

func TestRunSimulationFailed(t *testing.T) {
	f := newFixture(t, networks.Testnet)
	f.ledger.SimulateErr = models.ErrSimulationFailed

	_, err := f.orch.Run(context.Background(), f.request("100"), f.seed)
	require.ErrorIs(t, err, models.ErrSimulationFailed)
	requirePhase(t, err, PhaseSimulate)
	assert.Empty(t, f.ledger.Submissions)
}

func TestRunRouterForeignSource(t *testing.T) {
	f := newFixture(t, networks.Testnet)
	f.router.Source = usdcIssuer

	_, err := f.orch.Run(context.Background(), f.request("100"), f.seed)
	require.ErrorIs(t, err, models.ErrProtocol)
	requirePhase(t, err, PhaseBuildMain)
	assert.Empty(t, f.ledger.Submissions)
}

func TestRunTrustLineBoundary(t *testing.T) {
	tests := []struct {
		name    string
		balance string
		limit   string
		amount  string
		want    Status
	}{
		{name: "exactly at limit", balance: "900", limit: "1000", amount: "100", want: StatusConfirmed},
		{name: "one stroop over", balance: "900.0000001", limit: "1000", amount: "100", want: StatusTrustlineSubmitted},
		{name: "fractional amounts", balance: "0.1", limit: "0.3", amount: "0.2", want: StatusConfirmed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, networks.Testnet)
			f.ledger.SetTrustLine(f.source, usdc, tt.balance, tt.limit)

			result, err := f.orch.Run(context.Background(), f.request(tt.amount), f.seed)
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.Status)
		})
	}
}

func TestRunValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Request)
	}{
		{name: "zero amount", mutate: func(r *Request) { r.Amount = "0" }},
		{name: "negative amount", mutate: func(r *Request) { r.Amount = "-5" }},
		{name: "fraction syntax", mutate: func(r *Request) { r.Amount = "1/3" }},
		{name: "not a number", mutate: func(r *Request) { r.Amount = "ten" }},
		{name: "bad source", mutate: func(r *Request) { r.SourceAddress = "GABC" }},
		{name: "contract source", mutate: func(r *Request) { r.SourceAddress = usdcContract }},
		{name: "bad destination", mutate: func(r *Request) { r.DestAddress = "0x1234" }},
		{name: "missing asset", mutate: func(r *Request) { r.SourceAsset = "" }},
		{name: "missing network", mutate: func(r *Request) { r.Network = networks.Profile{} }},
		{name: "unknown network", mutate: func(r *Request) { r.Network = networks.Profile{Name: "futurenet", Passphrase: "x"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, networks.Testnet)
			req := f.request("100")
			tt.mutate(&req)

			_, err := f.orch.Run(context.Background(), req, f.seed)
			require.ErrorIs(t, err, models.ErrConfiguration)
			requirePhase(t, err, PhaseValidate)
			assert.Zero(t, f.ledger.Calls)
			assert.Zero(t, f.router.Calls)
		})
	}

	t.Run("short seed", func(t *testing.T) {
		f := newFixture(t, networks.Testnet)
		_, err := f.orch.Run(context.Background(), f.request("100"), []byte{1, 2, 3})
		require.ErrorIs(t, err, models.ErrConfiguration)
		assert.Zero(t, f.ledger.Calls)
	})
}

func TestRunCompletesAfterCancellation(t *testing.T) {
	f := newFixture(t, networks.Testnet)
	f.ledger.RestoreSimulations = 1

	ctx, cancel := context.WithCancel(context.Background())
	f.ledger.OnSubmit = func(models.OperationKind) { cancel() }

	result, err := f.orch.Run(ctx, f.request("100"), f.seed)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, result.Status)
	assert.Equal(t, []models.OperationKind{models.KindStateRestore, models.KindBridgeTransfer}, f.ledger.SubmittedKinds())
}

func TestEnsureTrust(t *testing.T) {
	t.Run("sufficient", func(t *testing.T) {
		f := newFixture(t, networks.Testnet)
		trust, err := f.orch.EnsureTrust(context.Background(), f.request("5"), f.seed)
		require.NoError(t, err)
		assert.True(t, trust.Sufficient)
		assert.Empty(t, f.ledger.Submissions)
	})

	t.Run("absent trust line", func(t *testing.T) {
		f := newFixture(t, networks.Testnet)
		f.ledger.RemoveTrustLine(f.source, usdc)

		trust, err := f.orch.EnsureTrust(context.Background(), f.request("5"), f.seed)
		require.NoError(t, err)
		assert.False(t, trust.Sufficient)
		require.Len(t, f.ledger.Submissions, 1)
		assert.Equal(t, models.KindTrustAdjustment, f.ledger.Submissions[0].Kind)
		assert.Equal(t, f.ledger.Submissions[0].Hash, trust.Hash)
	})

	t.Run("native asset", func(t *testing.T) {
		f := newFixture(t, networks.Testnet)
		f.router.AddAsset(router.StellarChain, models.Asset{Symbol: "XLM"})
		req := f.request("5")
		req.SourceAsset = "XLM"

		trust, err := f.orch.EnsureTrust(context.Background(), req, f.seed)
		require.NoError(t, err)
		assert.True(t, trust.Sufficient)
		assert.Empty(t, f.ledger.Submissions)
	})
}
