package bridge

// Status is the outcome of a run that did not fail
type Status string

const (
	// StatusConfirmed means the transfer succeeded and the trust line already covers the amount
	StatusConfirmed Status = "confirmed"
	// StatusTrustlineSubmitted means the transfer succeeded and a trust line adjustment was submitted
	StatusTrustlineSubmitted Status = "trustline_submitted"
	// StatusPendingRestore means the outcome of the state restore is unknown; nothing else was submitted
	StatusPendingRestore Status = "pending_restore"
	// StatusPending means the outcome of the transfer is unknown and can be queried later by hash
	StatusPending Status = "pending"
)

// Result is the outcome of a run. Hash is the transaction the status refers to.
type Result struct {
	Status  Status `json:"status"`
	Hash    string `json:"hash"`
	Network string `json:"network"`
	// TransferHash is the confirmed transfer when Status is StatusTrustlineSubmitted
	TransferHash string `json:"transfer_hash,omitempty"`
	Asset        string `json:"asset,omitempty"`
	Amount       string `json:"amount,omitempty"`
}

// Pending reports whether the outcome of a submitted transaction is still unknown
func (r *Result) Pending() bool {
	return r.Status == StatusPending || r.Status == StatusPendingRestore
}

// TrustResult is the outcome of the trust line step
type TrustResult struct {
	Sufficient bool `json:"sufficient"`
	// Hash of the submitted adjustment when the trust line was insufficient
	Hash string `json:"hash,omitempty"`
}
