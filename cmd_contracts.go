package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/speedrun-hq/stellar-bridge/pkg/contracts"
	"github.com/speedrun-hq/stellar-bridge/pkg/ledger"
	"github.com/speedrun-hq/stellar-bridge/pkg/signer"
)

// contractResult is printed by every contract command
type contractResult struct {
	Network string `json:"network"`
	Hash    string `json:"hash,omitempty"`
	Result  string `json:"result,omitempty"`
}

// withInvoker loads the configuration, connects to the ledger and calls fn
// with an invoker for the configured network
func withInvoker(cmd *cobra.Command, fn func(ctx context.Context, a *app, invoker *contracts.Invoker) (contractResult, error)) error {
	ctx := cmd.Context()
	a, err := loadApp()
	if err != nil {
		return err
	}
	l, err := a.dialLedger(ctx)
	if err != nil {
		return err
	}
	defer l.Close()

	invoker := newInvoker(a, l)
	res, err := fn(ctx, a, invoker)
	if err != nil {
		return err
	}
	res.Network = a.profile.Name
	return printJSON(cmd.OutOrStdout(), res)
}

func newInvoker(a *app, l *ledger.Client) *contracts.Invoker {
	return contracts.NewInvoker(l, signer.Ed25519{}, contracts.InvokerConfig{
		Profile:         a.profile,
		AllowMainnet:    a.allowMainnet,
		PollInterval:    a.cfg.Poll.Interval,
		PollMaxAttempts: a.cfg.Poll.MaxAttempts,
	}, a.logger)
}

// signed runs fn with the signing seed of the configured account and wipes it afterwards
func signed(a *app, fn func(seed []byte) (contractResult, error)) (contractResult, error) {
	seed, err := a.signingSeed()
	if err != nil {
		return contractResult{}, err
	}
	defer wipe(seed)
	return fn(seed)
}

var (
	stakeToken      string
	stakeRewardRate string
	stakeAmount     string
	stakeUser       string
)

var stakeCmd = &cobra.Command{
	Use:   "stake",
	Short: "Call the staking contract",
	Long:  "Call the staking contract configured by STAKING_CONTRACT_ADDRESS as the configured account.",
}

var stakeInitializeCmd = &cobra.Command{
	Use:   "initialize",
	Short: "Set the staked token and the reward rate",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStaking(cmd, func(ctx context.Context, a *app, s *contracts.Staking) (contractResult, error) {
			return signed(a, func(seed []byte) (contractResult, error) {
				hash, err := s.Initialize(ctx, a.cfg.SourceAddress, seed, stakeToken, stakeRewardRate)
				return contractResult{Hash: hash}, err
			})
		})
	},
}

var stakeStakeCmd = &cobra.Command{
	Use:   "stake",
	Short: "Stake tokens",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStaking(cmd, func(ctx context.Context, a *app, s *contracts.Staking) (contractResult, error) {
			return signed(a, func(seed []byte) (contractResult, error) {
				hash, err := s.Stake(ctx, a.cfg.SourceAddress, seed, stakeAmount)
				return contractResult{Hash: hash}, err
			})
		})
	},
}

var stakeUnstakeCmd = &cobra.Command{
	Use:   "unstake",
	Short: "Unstake tokens",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStaking(cmd, func(ctx context.Context, a *app, s *contracts.Staking) (contractResult, error) {
			return signed(a, func(seed []byte) (contractResult, error) {
				hash, err := s.Unstake(ctx, a.cfg.SourceAddress, seed, stakeAmount)
				return contractResult{Hash: hash}, err
			})
		})
	},
}

var stakeClaimCmd = &cobra.Command{
	Use:   "claim-rewards",
	Short: "Claim accrued staking rewards",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStaking(cmd, func(ctx context.Context, a *app, s *contracts.Staking) (contractResult, error) {
			return signed(a, func(seed []byte) (contractResult, error) {
				hash, err := s.ClaimRewards(ctx, a.cfg.SourceAddress, seed)
				return contractResult{Hash: hash}, err
			})
		})
	},
}

var stakeGetCmd = &cobra.Command{
	Use:   "get-stake",
	Short: "Show the stake of an account",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStaking(cmd, func(ctx context.Context, a *app, s *contracts.Staking) (contractResult, error) {
			user := firstNonEmpty(stakeUser, a.cfg.SourceAddress)
			result, err := s.GetStake(ctx, a.cfg.SourceAddress, user)
			return contractResult{Result: result}, err
		})
	},
}

func withStaking(cmd *cobra.Command, fn func(ctx context.Context, a *app, s *contracts.Staking) (contractResult, error)) error {
	return withInvoker(cmd, func(ctx context.Context, a *app, invoker *contracts.Invoker) (contractResult, error) {
		if a.cfg.StakingContract == "" {
			return contractResult{}, fmt.Errorf("STAKING_CONTRACT_ADDRESS environment variable is required")
		}
		s, err := contracts.NewStaking(invoker, a.cfg.StakingContract)
		if err != nil {
			return contractResult{}, err
		}
		return fn(ctx, a, s)
	})
}

var (
	lpTo       string
	lpDesiredA string
	lpMinA     string
	lpDesiredB string
	lpMinB     string
	lpBuyA     bool
	lpOut      string
	lpInMax    string
	lpShares   string
)

var lpCmd = &cobra.Command{
	Use:   "lp",
	Short: "Call the liquidity pool contract",
	Long:  "Call the liquidity pool contract configured by LIQUIDITY_CONTRACT_ADDRESS as the configured account.",
}

var lpDepositCmd = &cobra.Command{
	Use:   "deposit",
	Short: "Deposit both pool tokens and receive pool shares",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLiquidity(cmd, func(ctx context.Context, a *app, l *contracts.Liquidity) (contractResult, error) {
			return signed(a, func(seed []byte) (contractResult, error) {
				hash, err := l.Deposit(ctx, a.cfg.SourceAddress, seed, contracts.DepositParams{
					To:       firstNonEmpty(lpTo, a.cfg.SourceAddress),
					DesiredA: lpDesiredA,
					MinA:     lpMinA,
					DesiredB: lpDesiredB,
					MinB:     lpMinB,
				})
				return contractResult{Hash: hash}, err
			})
		})
	},
}

var lpSwapCmd = &cobra.Command{
	Use:   "swap",
	Short: "Buy an exact amount of one pool token",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLiquidity(cmd, func(ctx context.Context, a *app, l *contracts.Liquidity) (contractResult, error) {
			return signed(a, func(seed []byte) (contractResult, error) {
				hash, err := l.Swap(ctx, a.cfg.SourceAddress, seed, contracts.SwapParams{
					To:    firstNonEmpty(lpTo, a.cfg.SourceAddress),
					BuyA:  lpBuyA,
					Out:   lpOut,
					InMax: lpInMax,
				})
				return contractResult{Hash: hash}, err
			})
		})
	},
}

var lpWithdrawCmd = &cobra.Command{
	Use:   "withdraw",
	Short: "Burn pool shares and receive both pool tokens",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLiquidity(cmd, func(ctx context.Context, a *app, l *contracts.Liquidity) (contractResult, error) {
			return signed(a, func(seed []byte) (contractResult, error) {
				hash, result, err := l.Withdraw(ctx, a.cfg.SourceAddress, seed, contracts.WithdrawParams{
					To:          firstNonEmpty(lpTo, a.cfg.SourceAddress),
					ShareAmount: lpShares,
					MinA:        lpMinA,
					MinB:        lpMinB,
				})
				return contractResult{Hash: hash, Result: result}, err
			})
		})
	},
}

var lpReservesCmd = &cobra.Command{
	Use:   "reserves",
	Short: "Show the reserves of both pool tokens",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLiquidity(cmd, func(ctx context.Context, a *app, l *contracts.Liquidity) (contractResult, error) {
			result, err := l.GetReserves(ctx, a.cfg.SourceAddress)
			return contractResult{Result: result}, err
		})
	},
}

var lpShareIDCmd = &cobra.Command{
	Use:   "share-id",
	Short: "Show the address of the pool share token",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLiquidity(cmd, func(ctx context.Context, a *app, l *contracts.Liquidity) (contractResult, error) {
			result, err := l.GetShareID(ctx, a.cfg.SourceAddress)
			return contractResult{Result: result}, err
		})
	},
}

func withLiquidity(cmd *cobra.Command, fn func(ctx context.Context, a *app, l *contracts.Liquidity) (contractResult, error)) error {
	return withInvoker(cmd, func(ctx context.Context, a *app, invoker *contracts.Invoker) (contractResult, error) {
		if a.cfg.LiquidityContract == "" {
			return contractResult{}, fmt.Errorf("LIQUIDITY_CONTRACT_ADDRESS environment variable is required")
		}
		l, err := contracts.NewLiquidity(invoker, a.cfg.LiquidityContract)
		if err != nil {
			return contractResult{}, err
		}
		return fn(ctx, a, l)
	})
}

func init() {
	stakeInitializeCmd.Flags().StringVar(&stakeToken, "token", "", "contract address of the staked token")
	stakeInitializeCmd.Flags().StringVar(&stakeRewardRate, "reward-rate", "", "reward rate in base units")
	_ = stakeInitializeCmd.MarkFlagRequired("token")
	_ = stakeInitializeCmd.MarkFlagRequired("reward-rate")

	for _, c := range []*cobra.Command{stakeStakeCmd, stakeUnstakeCmd} {
		c.Flags().StringVar(&stakeAmount, "amount", "", "amount in base units")
		_ = c.MarkFlagRequired("amount")
	}
	stakeGetCmd.Flags().StringVar(&stakeUser, "user", "", "account to query, defaults to the configured account")

	stakeCmd.AddCommand(stakeInitializeCmd, stakeStakeCmd, stakeUnstakeCmd, stakeClaimCmd, stakeGetCmd)

	for _, c := range []*cobra.Command{lpDepositCmd, lpSwapCmd, lpWithdrawCmd} {
		c.Flags().StringVar(&lpTo, "to", "", "recipient address, defaults to the configured account")
	}
	lpDepositCmd.Flags().StringVar(&lpDesiredA, "desired-a", "", "desired amount of token A")
	lpDepositCmd.Flags().StringVar(&lpMinA, "min-a", "0", "minimum amount of token A")
	lpDepositCmd.Flags().StringVar(&lpDesiredB, "desired-b", "", "desired amount of token B")
	lpDepositCmd.Flags().StringVar(&lpMinB, "min-b", "0", "minimum amount of token B")
	_ = lpDepositCmd.MarkFlagRequired("desired-a")
	_ = lpDepositCmd.MarkFlagRequired("desired-b")

	lpSwapCmd.Flags().BoolVar(&lpBuyA, "buy-a", false, "buy token A instead of token B")
	lpSwapCmd.Flags().StringVar(&lpOut, "out", "", "amount to buy")
	lpSwapCmd.Flags().StringVar(&lpInMax, "in-max", "", "maximum amount to pay")
	_ = lpSwapCmd.MarkFlagRequired("out")
	_ = lpSwapCmd.MarkFlagRequired("in-max")

	lpWithdrawCmd.Flags().StringVar(&lpShares, "shares", "", "amount of pool shares to burn")
	lpWithdrawCmd.Flags().StringVar(&lpMinA, "min-a", "0", "minimum amount of token A")
	lpWithdrawCmd.Flags().StringVar(&lpMinB, "min-b", "0", "minimum amount of token B")
	_ = lpWithdrawCmd.MarkFlagRequired("shares")

	lpCmd.AddCommand(lpDepositCmd, lpSwapCmd, lpWithdrawCmd, lpReservesCmd, lpShareIDCmd)
}
