package main

import (
	"github.com/spf13/cobra"

	"github.com/speedrun-hq/stellar-bridge/pkg/bridge"
	"github.com/speedrun-hq/stellar-bridge/pkg/router"
	"github.com/speedrun-hq/stellar-bridge/pkg/signer"
)

var (
	bridgeAmount           string
	bridgeTo               string
	bridgeSourceAsset      string
	bridgeDestinationChain string
	bridgeDestinationAsset string
	bridgeTrustOnly        bool
)

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Bridge tokens from the configured Stellar account to an EVM address",
	Example: `  stellar-bridge bridge --amount 12.5 --to 0x742d35Cc6634C0532925a3b844Bc454e4438f44e
  stellar-bridge bridge --amount 1 --to 0x742d... --network stellar-mainnet --allow-mainnet`,
	RunE: runBridge,
}

func init() {
	bridgeCmd.Flags().StringVar(&bridgeAmount, "amount", "", "decimal amount to bridge")
	bridgeCmd.Flags().StringVar(&bridgeTo, "to", "", "destination EVM address")
	bridgeCmd.Flags().StringVar(&bridgeSourceAsset, "source-asset", "", "source asset symbol, overrides SOURCE_ASSET")
	bridgeCmd.Flags().StringVar(&bridgeDestinationChain, "destination-chain", "", "destination chain, overrides DESTINATION_CHAIN")
	bridgeCmd.Flags().StringVar(&bridgeDestinationAsset, "destination-asset", "", "destination asset symbol, overrides DESTINATION_ASSET")
	bridgeCmd.Flags().BoolVar(&bridgeTrustOnly, "trust-only", false, "only make sure the trust line of the source asset covers --amount")
	_ = bridgeCmd.MarkFlagRequired("amount")
	_ = bridgeCmd.MarkFlagRequired("to")
}

func runBridge(cmd *cobra.Command, _ []string) error {
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

	orchestrator := bridge.NewOrchestrator(
		map[string]bridge.Ledger{a.profile.Name: l},
		router.New(a.cfg.Router.Endpoint, a.cfg.Router.RateLimit, a.cfg.Router.TokenCacheTTL, a.logger),
		signer.Ed25519{},
		a.logger,
		bridge.Options{
			PollInterval:    a.cfg.Poll.Interval,
			PollMaxAttempts: a.cfg.Poll.MaxAttempts,
		},
	)

	req := bridge.Request{
		Amount:           bridgeAmount,
		SourceAddress:    a.cfg.SourceAddress,
		DestAddress:      bridgeTo,
		SourceAsset:      firstNonEmpty(bridgeSourceAsset, a.cfg.Transfer.SourceAsset),
		DestinationChain: firstNonEmpty(bridgeDestinationChain, a.cfg.Transfer.DestinationChain),
		DestinationAsset: firstNonEmpty(bridgeDestinationAsset, a.cfg.Transfer.DestinationAsset),
		Network:          a.profile,
		AllowMainnet:     a.allowMainnet,
	}

	seed, err := a.signingSeed()
	if err != nil {
		return err
	}
	defer wipe(seed)

	if bridgeTrustOnly {
		trust, err := orchestrator.EnsureTrust(ctx, req, seed)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), trust)
	}

	result, err := orchestrator.Run(ctx, req, seed)
	if err != nil {
		return err
	}
	if result.Pending() {
		a.logger.NoticeWithNetwork(a.profile.Name, "Transfer %s is not final yet, check it later", result.Hash)
	}
	return printJSON(cmd.OutOrStdout(), result)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
