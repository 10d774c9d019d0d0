package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	networkFlag      string
	allowMainnetFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "stellar-bridge",
	Short: "Bridge Stellar assets to EVM chains and operate Soroban contracts",
	Long: `stellar-bridge moves tokens from a Stellar account to an EVM chain through
the bridge router, restoring archived contract state and establishing the
trust line of the bridged asset when needed. It also drives the staking and
liquidity pool contracts and can run as a service.

Configuration is read from the environment and an optional .env file.
Mainnet requires ALLOW_MAINNET_BRIDGE=true and --allow-mainnet.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&networkFlag, "network", "", "network to use (stellar-testnet or stellar-mainnet), overrides NETWORK")
	rootCmd.PersistentFlags().BoolVar(&allowMainnetFlag, "allow-mainnet", false, "confirm that mainnet funds may be moved")

	rootCmd.AddCommand(bridgeCmd, stakeCmd, lpCmd, serveCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
