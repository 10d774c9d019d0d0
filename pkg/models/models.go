package models

import (
	"fmt"
	"math/big"
	"regexp"
)

// ConfirmationStatus is the status reported by the network for a submitted transaction
type ConfirmationStatus int

const (
	// StatusPending indicates the transaction is known but not yet in a ledger
	StatusPending ConfirmationStatus = iota
	// StatusNotFound indicates the network has no record of the transaction (yet)
	StatusNotFound
	// StatusSuccess indicates the transaction was applied successfully
	StatusSuccess
	// StatusFailed indicates the transaction was included but failed
	StatusFailed
)

// String returns the wire name of the status
func (s ConfirmationStatus) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusNotFound:
		return "NOT_FOUND"
	case StatusSuccess:
		return "SUCCESS"
	case StatusFailed:
		return "FAILED"
	}
	return fmt.Sprintf("ConfirmationStatus(%d)", int(s))
}

// Terminal reports whether the status is final for a single status query
func (s ConfirmationStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// ParseConfirmationStatus converts a wire status into a ConfirmationStatus
func ParseConfirmationStatus(s string) (ConfirmationStatus, error) {
	switch s {
	case "PENDING":
		return StatusPending, nil
	case "NOT_FOUND":
		return StatusNotFound, nil
	case "SUCCESS":
		return StatusSuccess, nil
	case "FAILED":
		return StatusFailed, nil
	}
	return StatusNotFound, fmt.Errorf("%w: unknown transaction status %q", ErrEncoding, s)
}

// Asset identifies a Stellar asset and its Soroban token contract
type Asset struct {
	Symbol          string `json:"symbol"`
	Issuer          string `json:"issuer"`
	ContractAddress string `json:"contract_address"`
	Decimals        int    `json:"decimals"`
}

// ID returns the classic asset identifier in CODE:ISSUER form
func (a Asset) ID() string {
	if a.Issuer == "" {
		return a.Symbol
	}
	return a.Symbol + ":" + a.Issuer
}

// Native reports whether a is the network's native asset, which needs no trust line
func (a Asset) Native() bool {
	return a.Issuer == "" && (a.Symbol == "XLM" || a.Symbol == "native")
}

// Balance is a single balance line of an account
type Balance struct {
	AssetCode   string
	AssetIssuer string
	Balance     string
	Limit       string
}

// Account is the on-ledger state of a source account needed to build transactions
type Account struct {
	Address  string
	Sequence uint64
	Balances []Balance
}

// TrustLine is the current trust relationship between an account and an asset
type TrustLine struct {
	Asset   Asset
	Balance string
	Limit   string
}

// Insufficient reports whether receiving incoming would exceed the trust line limit.
// All arithmetic is exact; amounts are decimal strings.
func (t TrustLine) Insufficient(incoming string) (bool, error) {
	balance, err := ParseAmount(t.Balance)
	if err != nil {
		return false, fmt.Errorf("trust line balance: %w", err)
	}
	limit, err := ParseAmount(t.Limit)
	if err != nil {
		return false, fmt.Errorf("trust line limit: %w", err)
	}
	in, err := ParseAmount(incoming)
	if err != nil {
		return false, fmt.Errorf("incoming amount: %w", err)
	}
	total := new(big.Rat).Add(balance, in)
	return total.Cmp(limit) > 0, nil
}

var decimalRegexp = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

// ParseAmount parses a plain decimal amount string such as "12.5" into an exact rational
func ParseAmount(s string) (*big.Rat, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: empty amount", ErrConfiguration)
	}
	if !decimalRegexp.MatchString(s) {
		return nil, fmt.Errorf("%w: invalid amount %q", ErrConfiguration, s)
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, fmt.Errorf("%w: invalid amount %q", ErrConfiguration, s)
	}
	return r, nil
}

// Simulation is the outcome of a read-only pre-flight execution
type Simulation struct {
	RequiresRestore bool
	// RestorePayload is the network-built restore envelope, set when RequiresRestore is true
	RestorePayload string
	// Result is the encoded return value of the invoked function, if any
	Result string
	// MinResourceFee is the resource fee the network expects on top of the base fee
	MinResourceFee string
}

// QuoteRequest describes a bridge transfer the router should price and encode
type QuoteRequest struct {
	Amount           string
	SourceAddress    string
	DestAddress      string
	SourceAsset      Asset
	DestinationChain string
	DestinationAsset Asset
}
