package contracts

import (
	"context"
	"fmt"

	"github.com/speedrun-hq/stellar-bridge/pkg/models"
)

// Staking calls the staking contract at a fixed address
type Staking struct {
	invoker  *Invoker
	contract string
}

// NewStaking creates a staking helper for the contract at address
func NewStaking(invoker *Invoker, address string) (*Staking, error) {
	if !models.IsContractAddress(address) {
		return nil, fmt.Errorf("%w: invalid staking contract address %q", models.ErrConfiguration, address)
	}
	return &Staking{invoker: invoker, contract: address}, nil
}

// Initialize sets the staked token and the reward rate; callable once per contract
func (s *Staking) Initialize(ctx context.Context, caller string, seed []byte, tokenAddress, rewardRate string) (string, error) {
	token, err := addressArg("token", tokenAddress)
	if err != nil {
		return "", err
	}
	rate, err := i128Arg("reward rate", rewardRate)
	if err != nil {
		return "", err
	}
	return s.call(ctx, caller, seed, "initialize", token, rate)
}

// Stake locks amount of the caller's tokens
func (s *Staking) Stake(ctx context.Context, caller string, seed []byte, amount string) (string, error) {
	return s.userAmount(ctx, caller, seed, "stake", amount)
}

// Unstake releases amount of the caller's staked tokens
func (s *Staking) Unstake(ctx context.Context, caller string, seed []byte, amount string) (string, error) {
	return s.userAmount(ctx, caller, seed, "unstake", amount)
}

// ClaimRewards pays out the caller's accrued rewards
func (s *Staking) ClaimRewards(ctx context.Context, caller string, seed []byte) (string, error) {
	user, err := addressArg("user", caller)
	if err != nil {
		return "", err
	}
	return s.call(ctx, caller, seed, "claim_rewards", user)
}

// GetStake returns the encoded stake of user
func (s *Staking) GetStake(ctx context.Context, caller, user string) (string, error) {
	arg, err := addressArg("user", user)
	if err != nil {
		return "", err
	}
	return s.invoker.Read(ctx, caller, models.ContractInvocation{
		ContractAddress: s.contract,
		Function:        "get_stake",
		Args:            []models.Arg{arg},
	})
}

func (s *Staking) userAmount(ctx context.Context, caller string, seed []byte, function, amount string) (string, error) {
	user, err := addressArg("user", caller)
	if err != nil {
		return "", err
	}
	value, err := positiveI128Arg("amount", amount)
	if err != nil {
		return "", err
	}
	return s.call(ctx, caller, seed, function, user, value)
}

func (s *Staking) call(ctx context.Context, caller string, seed []byte, function string, args ...models.Arg) (string, error) {
	hash, _, err := s.invoker.Invoke(ctx, models.KindStake, caller, seed, models.ContractInvocation{
		ContractAddress: s.contract,
		Function:        function,
		Args:            args,
	})
	return hash, err
}
