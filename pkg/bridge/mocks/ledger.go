package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/speedrun-hq/stellar-bridge/pkg/models"
	"github.com/speedrun-hq/stellar-bridge/pkg/networks"
	"github.com/speedrun-hq/stellar-bridge/pkg/txbuilder"
)

// Submission is a transaction accepted by the mock ledger
type Submission struct {
	Kind     models.OperationKind
	Sequence uint64
	Hash     string
	Envelope txbuilder.Envelope
}

// Ledger is an in-memory network. Submitted transactions advance the sequence
// of their source account and confirm with the status configured for their kind.
type Ledger struct {
	Profile    networks.Profile
	Accounts   map[string]*models.Account
	TrustLines map[string]*models.TrustLine

	// RestoreSimulations is the number of upcoming simulations reporting archived state
	RestoreSimulations int
	// SimulationResult is returned as the result of every successful simulation
	SimulationResult string
	SimulateErr      error
	SubmitErr        error
	ReadyErr         error
	// Statuses overrides the confirmation status per kind, SUCCESS by default
	Statuses map[models.OperationKind]models.ConfirmationStatus
	// FreezeSequence keeps account sequences unchanged on submit
	FreezeSequence bool
	// OnSubmit is called with the kind of every accepted transaction
	OnSubmit func(models.OperationKind)

	Submissions []Submission
	Simulations int
	Calls       int

	mu sync.Mutex
}

// NewLedger creates a mock ledger for profile
func NewLedger(profile networks.Profile) *Ledger {
	return &Ledger{
		Profile:    profile,
		Accounts:   make(map[string]*models.Account),
		TrustLines: make(map[string]*models.TrustLine),
		Statuses:   make(map[models.OperationKind]models.ConfirmationStatus),
	}
}

// AddAccount funds address with the given current sequence
func (l *Ledger) AddAccount(address string, sequence uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Accounts[address] = &models.Account{Address: address, Sequence: sequence}
}

// SetTrustLine installs a trust line of address for asset
func (l *Ledger) SetTrustLine(address string, asset models.Asset, balance, limit string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.TrustLines[trustKey(address, asset)] = &models.TrustLine{Asset: asset, Balance: balance, Limit: limit}
}

// RemoveTrustLine deletes the trust line of address for asset
func (l *Ledger) RemoveTrustLine(address string, asset models.Asset) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.TrustLines, trustKey(address, asset))
}

// Sequence returns the current sequence of address
func (l *Ledger) Sequence(address string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if a, ok := l.Accounts[address]; ok {
		return a.Sequence
	}
	return 0
}

// SubmittedKinds returns the kinds of the accepted transactions in order
func (l *Ledger) SubmittedKinds() []models.OperationKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	kinds := make([]models.OperationKind, 0, len(l.Submissions))
	for _, s := range l.Submissions {
		kinds = append(kinds, s.Kind)
	}
	return kinds
}

func (l *Ledger) LoadAccount(_ context.Context, address string) (*models.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Calls++
	a, ok := l.Accounts[address]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrAccountNotFound, address)
	}
	copied := *a
	return &copied, nil
}

func (l *Ledger) Simulate(_ context.Context, signed *txbuilder.SignedEnvelope) (*models.Simulation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Calls++
	l.Simulations++
	if l.SimulateErr != nil {
		return nil, l.SimulateErr
	}
	if l.RestoreSimulations == 0 {
		return &models.Simulation{Result: l.SimulationResult, MinResourceFee: "100"}, nil
	}

	l.RestoreSimulations--
	restore := txbuilder.Envelope{
		Source:   signed.Envelope.Source,
		Sequence: signed.Envelope.Sequence,
		Fee:      networks.MinBaseFee + 500,
		MaxTime:  signed.Envelope.MaxTime,
		Operation: txbuilder.Operation{
			Kind:    uint8(models.KindStateRestore),
			Payload: []byte("archived-footprint"),
		},
	}
	payload, err := restore.Encode()
	if err != nil {
		return nil, err
	}
	return &models.Simulation{RequiresRestore: true, RestorePayload: payload}, nil
}

func (l *Ledger) Submit(_ context.Context, signed *txbuilder.SignedEnvelope) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Calls++
	if l.SubmitErr != nil {
		return "", l.SubmitErr
	}
	hash, err := signed.HashHex(l.Profile)
	if err != nil {
		return "", err
	}
	env := signed.Envelope
	l.Submissions = append(l.Submissions, Submission{Kind: env.Kind(), Sequence: env.Sequence, Hash: hash, Envelope: env})
	if a, ok := l.Accounts[env.Source]; ok && !l.FreezeSequence && env.Sequence > a.Sequence {
		a.Sequence = env.Sequence
	}
	if l.OnSubmit != nil {
		l.OnSubmit(env.Kind())
	}
	return hash, nil
}

func (l *Ledger) GetStatus(_ context.Context, hash string) (models.ConfirmationStatus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Calls++
	for _, s := range l.Submissions {
		if s.Hash != hash {
			continue
		}
		if status, ok := l.Statuses[s.Kind]; ok {
			return status, nil
		}
		return models.StatusSuccess, nil
	}
	return models.StatusNotFound, nil
}

func (l *Ledger) GetTrustLine(_ context.Context, address string, asset models.Asset) (*models.TrustLine, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Calls++
	tl, ok := l.TrustLines[trustKey(address, asset)]
	if !ok {
		return nil, nil
	}
	copied := *tl
	return &copied, nil
}

func (l *Ledger) Ready(context.Context) error {
	return l.ReadyErr
}

func trustKey(address string, asset models.Asset) string {
	return address + "|" + asset.ID()
}
