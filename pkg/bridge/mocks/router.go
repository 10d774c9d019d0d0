package mocks

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/speedrun-hq/stellar-bridge/pkg/models"
	"github.com/speedrun-hq/stellar-bridge/pkg/networks"
	"github.com/speedrun-hq/stellar-bridge/pkg/txbuilder"
)

// BridgeContract is the contract the mock router addresses transfers to
const BridgeContract = "CBQ6GW7QCFFE252QEVJRBHQWMM7QLBDBOTCLN6SHZQGHI6KV4AEI3ZPE"

// Router builds payloads from the current state of its ledger, the way the
// real router reads the account sequence from the network.
type Router struct {
	Ledger *Ledger
	Assets map[string]models.Asset

	// StaleSequence makes every transfer reuse the sequence of the first one
	StaleSequence bool
	// Source overrides the source account of built payloads
	Source   string
	BuildErr error

	TransferBuilds int
	TrustBuilds    int
	Calls          int

	firstSequence uint64
	mu            sync.Mutex
}

// NewRouter creates a mock router over ledger
func NewRouter(ledger *Ledger) *Router {
	return &Router{Ledger: ledger, Assets: make(map[string]models.Asset)}
}

// AddAsset registers symbol on chain
func (r *Router) AddAsset(chain string, asset models.Asset) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Assets[assetKey(chain, asset.Symbol)] = asset
}

func (r *Router) ResolveAsset(_ context.Context, chain, symbol string) (models.Asset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls++
	asset, ok := r.Assets[assetKey(chain, symbol)]
	if !ok {
		return models.Asset{}, fmt.Errorf("%w: token %s is not available on %s", models.ErrConfiguration, symbol, chain)
	}
	return asset, nil
}

func (r *Router) QuoteAndBuildTransfer(_ context.Context, req models.QuoteRequest) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls++
	r.TransferBuilds++
	if r.BuildErr != nil {
		return "", r.BuildErr
	}

	seq := r.Ledger.Sequence(req.SourceAddress) + 1
	if r.firstSequence == 0 {
		r.firstSequence = seq
	} else if r.StaleSequence {
		seq = r.firstSequence
	}
	return r.encode(req.SourceAddress, seq, models.KindBridgeTransfer, txbuilder.Operation{
		Contract: BridgeContract,
		Function: "swap_and_bridge",
		Args: []models.Arg{
			{Type: "string", Value: req.Amount},
			{Type: "address", Value: req.DestAddress},
		},
	})
}

func (r *Router) BuildTrustAdjustment(_ context.Context, address string, asset models.Asset) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls++
	r.TrustBuilds++
	if r.BuildErr != nil {
		return "", r.BuildErr
	}
	return r.encode(address, r.Ledger.Sequence(address)+1, models.KindTrustAdjustment, txbuilder.Operation{
		Payload: []byte("change_trust:" + asset.ID()),
	})
}

func (r *Router) encode(address string, seq uint64, kind models.OperationKind, op txbuilder.Operation) (string, error) {
	if r.Source != "" {
		address = r.Source
	}
	op.Kind = uint8(kind)
	env := txbuilder.Envelope{
		Source:    address,
		Sequence:  seq,
		Fee:       networks.MinBaseFee,
		MaxTime:   uint64(time.Now().Add(5 * time.Minute).Unix()),
		Operation: op,
	}
	return env.Encode()
}

func assetKey(chain, symbol string) string {
	return strings.ToUpper(chain) + "/" + strings.ToUpper(symbol)
}
