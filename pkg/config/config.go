package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/joho/godotenv"

	"github.com/speedrun-hq/stellar-bridge/pkg/logger"
	"github.com/speedrun-hq/stellar-bridge/pkg/networks"
	"github.com/speedrun-hq/stellar-bridge/pkg/signer"
)

// SeedSize is the length in bytes of an ed25519 signing seed
const SeedSize = 32

// Config holds the configuration for the bridge service.
// The signing secret is deliberately absent, see LoadSigningSeed.
type Config struct {
	Network           networks.Profile
	AllowMainnet      bool
	SourceAddress     string
	Router            RouterConfig
	Poll              PollConfig
	Transfer          TransferConfig
	StakingContract   string
	LiquidityContract string
	WorkerCount       int
	MetricsPort       string
	MetricsAPIKey     string
	CircuitBreaker    CircuitBreakerConfig
	LoggerConfig      LoggerConfig
}

// RouterConfig holds the bridge router client configuration
type RouterConfig struct {
	Endpoint      string
	RateLimit     float64
	TokenCacheTTL time.Duration
}

// PollConfig holds the confirmation poller configuration
type PollConfig struct {
	Interval    time.Duration
	MaxAttempts int
}

// TransferConfig holds the default assets of a bridge transfer
type TransferConfig struct {
	SourceAsset      string
	DestinationChain string
	DestinationAsset string
}

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	Enabled        bool
	Threshold      int
	WindowDuration time.Duration
	ResetTimeout   time.Duration
}

// LoggerConfig holds the configuration for logging
type LoggerConfig struct {
	Level    logger.Level
	Coloring bool
}

// LoadConfig loads the configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}
	return fromEnv()
}

func fromEnv() (*Config, error) {
	network, err := GetEnvNetwork()
	if err != nil {
		return nil, err
	}

	allowMainnet, err := GetEnvAllowMainnet()
	if err != nil {
		return nil, err
	}

	sourceAddress, err := GetEnvSourceAddress()
	if err != nil {
		return nil, err
	}

	routerEndpoint, err := GetEnvRouterAPIEndpoint()
	if err != nil {
		return nil, err
	}

	routerRateLimit, err := GetEnvRouterRateLimit()
	if err != nil {
		return nil, err
	}

	tokenCacheTTL, err := GetEnvTokenCacheTTL()
	if err != nil {
		return nil, err
	}

	pollInterval, err := GetEnvPollInterval()
	if err != nil {
		return nil, err
	}

	pollMaxAttempts, err := GetEnvPollMaxAttempts()
	if err != nil {
		return nil, err
	}

	stakingContract, err := GetEnvStakingContract()
	if err != nil {
		return nil, err
	}

	liquidityContract, err := GetEnvLiquidityContract()
	if err != nil {
		return nil, err
	}

	workerCount, err := GetEnvWorkerCount()
	if err != nil {
		return nil, err
	}

	metricsPort, err := GetEnvMetricsPort()
	if err != nil {
		return nil, err
	}

	cbEnabled, err := GetEnvCircuitBreakerEnabled()
	if err != nil {
		return nil, err
	}

	cbThreshold, err := GetEnvCircuitBreakerThreshold()
	if err != nil {
		return nil, err
	}

	cbWindow, err := GetEnvCircuitBreakerWindow()
	if err != nil {
		return nil, err
	}

	cbReset, err := GetEnvCircuitBreakerReset()
	if err != nil {
		return nil, err
	}

	logLevel, err := GetEnvLogLevel()
	if err != nil {
		return nil, err
	}

	logColoring, err := GetEnvLogColoring()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Network:       network,
		AllowMainnet:  allowMainnet,
		SourceAddress: sourceAddress,
		Router: RouterConfig{
			Endpoint:      routerEndpoint,
			RateLimit:     routerRateLimit,
			TokenCacheTTL: tokenCacheTTL,
		},
		Poll: PollConfig{
			Interval:    pollInterval,
			MaxAttempts: pollMaxAttempts,
		},
		Transfer: TransferConfig{
			SourceAsset:      GetEnvSourceAsset(),
			DestinationChain: GetEnvDestinationChain(),
			DestinationAsset: GetEnvDestinationAsset(),
		},
		StakingContract:   stakingContract,
		LiquidityContract: liquidityContract,
		WorkerCount:       workerCount,
		MetricsPort:       metricsPort,
		MetricsAPIKey:     GetEnvMetricsAPIKey(),
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:        cbEnabled,
			Threshold:      cbThreshold,
			WindowDuration: cbWindow,
			ResetTimeout:   cbReset,
		},
		LoggerConfig: LoggerConfig{
			Level:    logLevel,
			Coloring: logColoring,
		},
	}

	// Validate required environment variables
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if cfg.SourceAddress == "" {
		return fmt.Errorf("STELLAR_PUBLIC_KEY environment variable is required")
	}
	if cfg.Transfer.SourceAsset == "" || cfg.Transfer.DestinationAsset == "" {
		return fmt.Errorf("SOURCE_ASSET and DESTINATION_ASSET must not be empty")
	}
	return nil
}

// LoadSigningSeed reads the ed25519 seed from STELLAR_PRIVATE_KEY, either as an
// S... secret seed or as 32 hex encoded bytes.
// Callers should use the returned bytes for a single run and not keep them.
func LoadSigningSeed() ([]byte, error) {
	raw := strings.TrimSpace(os.Getenv("STELLAR_PRIVATE_KEY"))
	if raw == "" {
		return nil, fmt.Errorf("STELLAR_PRIVATE_KEY environment variable is required")
	}
	if strings.HasPrefix(raw, "S") {
		seed, err := signer.DecodeSecretSeed(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid STELLAR_PRIVATE_KEY: %w", err)
		}
		return seed, nil
	}
	if !strings.HasPrefix(raw, "0x") && !strings.HasPrefix(raw, "0X") {
		raw = "0x" + raw
	}
	seed, err := hexutil.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid STELLAR_PRIVATE_KEY: %w", err)
	}
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("invalid STELLAR_PRIVATE_KEY: must be an S... secret seed or %d hex encoded bytes", SeedSize)
	}
	return seed, nil
}
