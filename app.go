package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/speedrun-hq/stellar-bridge/pkg/config"
	"github.com/speedrun-hq/stellar-bridge/pkg/ledger"
	"github.com/speedrun-hq/stellar-bridge/pkg/logger"
	"github.com/speedrun-hq/stellar-bridge/pkg/networks"
	"github.com/speedrun-hq/stellar-bridge/pkg/signer"
)

// app is the state shared by every command
type app struct {
	cfg          *config.Config
	profile      networks.Profile
	allowMainnet bool
	logger       logger.Logger
}

func loadApp() (*app, error) {
	// the flag wins over NETWORK, endpoint overrides still apply
	if networkFlag != "" {
		if err := os.Setenv("NETWORK", networkFlag); err != nil {
			return nil, err
		}
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	log := logger.NewStdLogger(cfg.LoggerConfig.Coloring, cfg.LoggerConfig.Level)

	profile := cfg.Network
	// both the environment and the command line must opt in to mainnet
	allowMainnet := cfg.AllowMainnet && allowMainnetFlag
	if profile.Production && !allowMainnet {
		log.NoticeWithNetwork(profile.Name, "Mainnet is not enabled: set ALLOW_MAINNET_BRIDGE=true and pass --allow-mainnet")
	}

	return &app{
		cfg:          cfg,
		profile:      profile,
		allowMainnet: allowMainnet,
		logger:       log,
	}, nil
}

func (a *app) dialLedger(ctx context.Context) (*ledger.Client, error) {
	l, err := ledger.Dial(ctx, a.profile, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", a.profile.Name, err)
	}
	return l, nil
}

// signingSeed loads the seed of the configured account for one operation
func (a *app) signingSeed() ([]byte, error) {
	seed, err := config.LoadSigningSeed()
	if err != nil {
		return nil, err
	}
	address, err := signer.Address(seed)
	if err != nil {
		wipe(seed)
		return nil, err
	}
	if address != a.cfg.SourceAddress {
		wipe(seed)
		return nil, fmt.Errorf("STELLAR_PRIVATE_KEY belongs to %s, not to STELLAR_PUBLIC_KEY %s", address, a.cfg.SourceAddress)
	}
	return seed, nil
}

// keyFor returns the signing seed of source; only the configured account can sign
func (a *app) keyFor(source string) ([]byte, error) {
	if source != a.cfg.SourceAddress {
		return nil, fmt.Errorf("no signing key configured for %s", source)
	}
	return a.signingSeed()
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
