package models

import "fmt"

// OperationKind selects the defaults applied when building an envelope
type OperationKind int

const (
	KindTransfer OperationKind = iota
	KindLiquidityDeposit
	KindLiquidityWithdraw
	KindStake
	KindBridgeTransfer
	KindStateRestore
	KindTrustAdjustment

	// NumOperationKinds must stay last; per-kind tables are sized against it
	NumOperationKinds
)

var operationKindNames = [...]string{
	KindTransfer:          "transfer",
	KindLiquidityDeposit:  "liquidity_deposit",
	KindLiquidityWithdraw: "liquidity_withdraw",
	KindStake:             "stake",
	KindBridgeTransfer:    "bridge_transfer",
	KindStateRestore:      "state_restore",
	KindTrustAdjustment:   "trust_adjustment",
}

// compile-time check: one name per operation kind
var _ = [1]struct{}{}[len(operationKindNames)-int(NumOperationKinds)]

// Valid reports whether k is one of the declared operation kinds
func (k OperationKind) Valid() bool {
	return k >= 0 && k < NumOperationKinds
}

func (k OperationKind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("OperationKind(%d)", int(k))
	}
	return operationKindNames[k]
}

// ContractInvocation describes a call to a Soroban contract function
type ContractInvocation struct {
	ContractAddress string
	Function        string
	Args            []Arg
}

// Arg is a single typed contract argument in its string form
type Arg struct {
	Type  string
	Value string
}
