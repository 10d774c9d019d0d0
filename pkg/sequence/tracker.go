// Package sequence records which account sequence numbers a run has consumed.
package sequence

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/speedrun-hq/stellar-bridge/pkg/logger"
	"github.com/speedrun-hq/stellar-bridge/pkg/models"
)

// Status represents the status of a tracked submission
type Status int

const (
	// Claimed indicates the sequence is reserved but nothing was submitted yet
	Claimed Status = iota
	// Submitted indicates the transaction was accepted into the pending pool
	Submitted
	// Confirmed indicates the transaction was applied successfully
	Confirmed
	// Failed indicates the transaction was rejected or failed
	Failed
	// Unknown indicates confirmation polling gave up without a final answer
	Unknown
)

func (s Status) String() string {
	switch s {
	case Claimed:
		return "claimed"
	case Submitted:
		return "submitted"
	case Confirmed:
		return "confirmed"
	case Failed:
		return "failed"
	case Unknown:
		return "unknown"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Record tracks details about one consumed sequence number
type Record struct {
	Account   string
	Sequence  uint64
	Kind      models.OperationKind
	Hash      string
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

type key struct {
	account  string
	sequence uint64
}

// Tracker holds the sequence numbers consumed during one run. A sequence can be
// claimed once; a second claim is a protocol violation.
type Tracker struct {
	records map[key]*Record
	order   []key
	network string
	logger  logger.Logger
	mu      sync.Mutex
}

// NewTracker creates a new tracker
func NewTracker(network string, logger logger.Logger) *Tracker {
	return &Tracker{
		records: make(map[key]*Record),
		network: network,
		logger:  logger,
	}
}

// Claim reserves sequence of account for a transaction of the given kind
func (t *Tracker) Claim(account string, sequence uint64, kind models.OperationKind) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := key{account: account, sequence: sequence}
	if existing, ok := t.records[k]; ok {
		return fmt.Errorf("%w: sequence %d of %s already used by %s transaction %s",
			models.ErrProtocol, sequence, account, existing.Kind, existing.Hash)
	}

	now := time.Now()
	t.records[k] = &Record{
		Account:   account,
		Sequence:  sequence,
		Kind:      kind,
		Status:    Claimed,
		CreatedAt: now,
		UpdatedAt: now,
	}
	t.order = append(t.order, k)
	return nil
}

// Track records the hash of the transaction submitted with a claimed sequence
func (t *Tracker) Track(account string, sequence uint64, hash string) {
	if t.update(account, sequence, func(r *Record) {
		r.Hash = hash
		r.Status = Submitted
	}) {
		t.logger.DebugWithNetwork(t.network, "Tracking transaction for %s with sequence %d: %s", account, sequence, hash)
	}
}

// MarkConfirmed marks a tracked transaction as confirmed
func (t *Tracker) MarkConfirmed(account string, sequence uint64) bool {
	return t.update(account, sequence, func(r *Record) { r.Status = Confirmed })
}

// MarkFailed marks a tracked transaction as failed. The sequence stays consumed.
func (t *Tracker) MarkFailed(account string, sequence uint64) bool {
	return t.update(account, sequence, func(r *Record) { r.Status = Failed })
}

// MarkUnknown marks a tracked transaction whose outcome could not be determined
func (t *Tracker) MarkUnknown(account string, sequence uint64) bool {
	return t.update(account, sequence, func(r *Record) { r.Status = Unknown })
}

func (t *Tracker) update(account string, sequence uint64, fn func(*Record)) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.records[key{account: account, sequence: sequence}]
	if !ok {
		t.logger.ErrorWithNetwork(t.network, "Warning: no claimed sequence %d for %s", sequence, account)
		return false
	}
	fn(r)
	r.UpdatedAt = time.Now()
	return true
}

// Highest returns the highest sequence claimed for account
func (t *Tracker) Highest(account string) (uint64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var highest uint64
	found := false
	for k := range t.records {
		if k.account == account && (!found || k.sequence > highest) {
			highest = k.sequence
			found = true
		}
	}
	return highest, found
}

// Records returns a copy of all records in claim order
func (t *Tracker) Records() []Record {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Record, 0, len(t.order))
	for _, k := range t.order {
		out = append(out, *t.records[k])
	}
	return out
}

// Pending returns the records that were submitted but have no final status, lowest sequence first
func (t *Tracker) Pending() []Record {
	var out []Record
	for _, r := range t.Records() {
		if r.Status == Submitted || r.Status == Unknown {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out
}
