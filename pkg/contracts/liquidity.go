package contracts

import (
	"context"
	"fmt"

	"github.com/speedrun-hq/stellar-bridge/pkg/models"
)

// Liquidity calls a constant product liquidity pool contract
type Liquidity struct {
	invoker  *Invoker
	contract string
}

// NewLiquidity creates a liquidity pool helper for the contract at address
func NewLiquidity(invoker *Invoker, address string) (*Liquidity, error) {
	if !models.IsContractAddress(address) {
		return nil, fmt.Errorf("%w: invalid liquidity contract address %q", models.ErrConfiguration, address)
	}
	return &Liquidity{invoker: invoker, contract: address}, nil
}

// DepositParams are the arguments of a deposit
type DepositParams struct {
	To       string
	DesiredA string
	MinA     string
	DesiredB string
	MinB     string
}

// SwapParams are the arguments of a swap
type SwapParams struct {
	To string
	// BuyA selects token A as the token bought
	BuyA  bool
	Out   string
	InMax string
}

// WithdrawParams are the arguments of a withdrawal
type WithdrawParams struct {
	To          string
	ShareAmount string
	MinA        string
	MinB        string
}

// Deposit adds liquidity and mints pool shares to p.To
func (l *Liquidity) Deposit(ctx context.Context, caller string, seed []byte, p DepositParams) (string, error) {
	to, err := addressArg("to", p.To)
	if err != nil {
		return "", err
	}
	args := []models.Arg{to}
	for _, a := range []struct{ name, value string }{
		{"desired a", p.DesiredA},
		{"min a", p.MinA},
		{"desired b", p.DesiredB},
		{"min b", p.MinB},
	} {
		arg, err := i128Arg(a.name, a.value)
		if err != nil {
			return "", err
		}
		args = append(args, arg)
	}

	hash, _, err := l.invoke(ctx, models.KindLiquidityDeposit, caller, seed, "deposit", args)
	return hash, err
}

// Swap buys p.Out of one pool token paying at most p.InMax of the other
func (l *Liquidity) Swap(ctx context.Context, caller string, seed []byte, p SwapParams) (string, error) {
	to, err := addressArg("to", p.To)
	if err != nil {
		return "", err
	}
	out, err := positiveI128Arg("out", p.Out)
	if err != nil {
		return "", err
	}
	inMax, err := positiveI128Arg("in max", p.InMax)
	if err != nil {
		return "", err
	}

	hash, _, err := l.invoke(ctx, models.KindTransfer, caller, seed, "swap", []models.Arg{to, boolArg(p.BuyA), out, inMax})
	return hash, err
}

// Withdraw burns p.ShareAmount pool shares and returns the tx hash and the
// encoded amounts of both tokens paid to p.To
func (l *Liquidity) Withdraw(ctx context.Context, caller string, seed []byte, p WithdrawParams) (string, string, error) {
	to, err := addressArg("to", p.To)
	if err != nil {
		return "", "", err
	}
	shares, err := positiveI128Arg("share amount", p.ShareAmount)
	if err != nil {
		return "", "", err
	}
	minA, err := i128Arg("min a", p.MinA)
	if err != nil {
		return "", "", err
	}
	minB, err := i128Arg("min b", p.MinB)
	if err != nil {
		return "", "", err
	}

	return l.invoke(ctx, models.KindLiquidityWithdraw, caller, seed, "withdraw", []models.Arg{to, shares, minA, minB})
}

// GetReserves returns the encoded reserves of both pool tokens
func (l *Liquidity) GetReserves(ctx context.Context, caller string) (string, error) {
	return l.read(ctx, caller, "get_rsrvs")
}

// GetShareID returns the address of the pool share token
func (l *Liquidity) GetShareID(ctx context.Context, caller string) (string, error) {
	return l.read(ctx, caller, "share_id")
}

func (l *Liquidity) invoke(ctx context.Context, kind models.OperationKind, caller string, seed []byte, function string, args []models.Arg) (string, string, error) {
	return l.invoker.Invoke(ctx, kind, caller, seed, models.ContractInvocation{
		ContractAddress: l.contract,
		Function:        function,
		Args:            args,
	})
}

func (l *Liquidity) read(ctx context.Context, caller, function string) (string, error) {
	return l.invoker.Read(ctx, caller, models.ContractInvocation{
		ContractAddress: l.contract,
		Function:        function,
	})
}
