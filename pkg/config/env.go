package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/speedrun-hq/stellar-bridge/pkg/logger"
	"github.com/speedrun-hq/stellar-bridge/pkg/models"
	"github.com/speedrun-hq/stellar-bridge/pkg/networks"
)

const (
	// DefaultNetwork is the default Stellar network to connect to
	DefaultNetwork = networks.TestnetName

	// DefaultAllowMainnet defines whether bridge runs against mainnet are permitted
	DefaultAllowMainnet = false

	// DefaultRouterAPIEndpoint defines the default endpoint of the bridge router API
	DefaultRouterAPIEndpoint = "https://core.api.allbridgecoreapi.net"

	// DefaultRouterRateLimit defines the default number of router requests per second
	DefaultRouterRateLimit = 5.0

	// DefaultTokenCacheTTL defines how long router token lists are cached
	DefaultTokenCacheTTL = 5 * time.Minute

	// DefaultPollInterval defines the fixed delay between confirmation status queries
	DefaultPollInterval = time.Second

	// DefaultPollMaxAttempts defines the maximum number of confirmation status queries
	DefaultPollMaxAttempts = 30

	// DefaultSourceAsset defines the asset bridged out of Stellar
	DefaultSourceAsset = "USDC"

	// DefaultDestinationChain defines the router chain symbol of the EVM destination
	DefaultDestinationChain = "ETH"

	// DefaultDestinationAsset defines the asset received on the EVM destination
	DefaultDestinationAsset = "USDC"

	// DefaultWorkerCount defines the default number of workers to process transfers in serve mode
	DefaultWorkerCount = 4

	// DefaultMetricsPort defines the default port for the metrics server
	DefaultMetricsPort = "8080"

	// DefaultCircuitBreakerEnabled defines whether the circuit breaker is enabled
	DefaultCircuitBreakerEnabled = true

	// DefaultCircuitBreakerThreshold defines the number of failures before the circuit breaker trips
	DefaultCircuitBreakerThreshold = 5

	// DefaultCircuitBreakerWindow defines the time window for the circuit breaker
	DefaultCircuitBreakerWindow = 5 * time.Minute

	// DefaultCircuitBreakerReset defines the reset timeout for the circuit breaker
	DefaultCircuitBreakerReset = 15 * time.Minute

	// DefaultLogLevel defines the default log level
	DefaultLogLevel = logger.InfoLevel

	// DefaultLogColoring defines whether log prefixes are colored
	DefaultLogColoring = true
)

// GetEnvNetwork returns the configured network profile, with endpoint overrides applied
func GetEnvNetwork() (networks.Profile, error) {
	name := os.Getenv("NETWORK")
	if name == "" {
		name = DefaultNetwork
	}

	profile, err := networks.Lookup(name)
	if err != nil {
		return networks.Profile{}, fmt.Errorf("invalid NETWORK value: %w", err)
	}

	rpcURL := os.Getenv("SOROBAN_RPC_URL")
	if rpcURL != "" {
		if _, err := url.ParseRequestURI(rpcURL); err != nil {
			return networks.Profile{}, fmt.Errorf("invalid SOROBAN_RPC_URL value: %s, must be a valid URL", rpcURL)
		}
	}
	horizonURL := os.Getenv("HORIZON_URL")
	if horizonURL != "" {
		if _, err := url.ParseRequestURI(horizonURL); err != nil {
			return networks.Profile{}, fmt.Errorf("invalid HORIZON_URL value: %s, must be a valid URL", horizonURL)
		}
	}

	return profile.WithEndpoints(rpcURL, horizonURL), nil
}

// GetEnvAllowMainnet returns whether bridge runs against mainnet are permitted
func GetEnvAllowMainnet() (bool, error) {
	return getEnvBool("ALLOW_MAINNET_BRIDGE", DefaultAllowMainnet)
}

// GetEnvSourceAddress returns the public address of the source account
func GetEnvSourceAddress() (string, error) {
	address := strings.TrimSpace(os.Getenv("STELLAR_PUBLIC_KEY"))
	if address == "" {
		return "", nil
	}
	if !models.IsAccountAddress(address) {
		return "", fmt.Errorf("invalid STELLAR_PUBLIC_KEY value: %s, must be a Stellar account address", address)
	}
	return address, nil
}

// GetEnvRouterAPIEndpoint returns the bridge router API endpoint from environment variables
func GetEnvRouterAPIEndpoint() (string, error) {
	endpoint := os.Getenv("ROUTER_API_ENDPOINT")
	if endpoint == "" {
		return DefaultRouterAPIEndpoint, nil
	}

	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return "", fmt.Errorf("invalid ROUTER_API_ENDPOINT value: %s, must be a valid URL", endpoint)
	}
	return strings.TrimRight(endpoint, "/"), nil
}

// GetEnvRouterRateLimit returns the maximum number of router requests per second
func GetEnvRouterRateLimit() (float64, error) {
	limit := os.Getenv("ROUTER_RATE_LIMIT")
	if limit == "" {
		return DefaultRouterRateLimit, nil
	}

	parsed, err := strconv.ParseFloat(limit, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid ROUTER_RATE_LIMIT value: %s, must be a number", limit)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("ROUTER_RATE_LIMIT must be greater than 0")
	}
	return parsed, nil
}

// GetEnvTokenCacheTTL returns how long router token lists are cached
func GetEnvTokenCacheTTL() (time.Duration, error) {
	return getEnvDuration("TOKEN_CACHE_TTL", DefaultTokenCacheTTL)
}

// GetEnvPollInterval returns the delay between confirmation status queries
func GetEnvPollInterval() (time.Duration, error) {
	return getEnvDuration("POLL_INTERVAL", DefaultPollInterval)
}

// GetEnvPollMaxAttempts returns the maximum number of confirmation status queries
func GetEnvPollMaxAttempts() (int, error) {
	return getEnvPositiveInt("POLL_MAX_ATTEMPTS", DefaultPollMaxAttempts)
}

// GetEnvSourceAsset returns the symbol of the asset bridged out of Stellar
func GetEnvSourceAsset() string {
	return getEnvString("SOURCE_ASSET", DefaultSourceAsset)
}

// GetEnvDestinationChain returns the router chain symbol of the destination
func GetEnvDestinationChain() string {
	return getEnvString("DESTINATION_CHAIN", DefaultDestinationChain)
}

// GetEnvDestinationAsset returns the symbol of the asset received on the destination
func GetEnvDestinationAsset() string {
	return getEnvString("DESTINATION_ASSET", DefaultDestinationAsset)
}

// GetEnvStakingContract returns the staking contract address, if configured
func GetEnvStakingContract() (string, error) {
	return getEnvContractAddress("STAKING_CONTRACT_ADDRESS")
}

// GetEnvLiquidityContract returns the liquidity pool contract address, if configured
func GetEnvLiquidityContract() (string, error) {
	return getEnvContractAddress("LIQUIDITY_CONTRACT_ADDRESS")
}

// GetEnvWorkerCount returns the number of workers from environment variables
func GetEnvWorkerCount() (int, error) {
	return getEnvPositiveInt("WORKER_COUNT", DefaultWorkerCount)
}

// GetEnvMetricsPort returns the metrics server port from environment variables
func GetEnvMetricsPort() (string, error) {
	metricsPort := os.Getenv("METRICS_PORT")
	if metricsPort == "" {
		return DefaultMetricsPort, nil
	}

	// Validate port format
	if _, err := strconv.Atoi(metricsPort); err != nil {
		return "", fmt.Errorf("invalid METRICS_PORT value: %s, must be a valid integer", metricsPort)
	}
	return metricsPort, nil
}

// GetEnvMetricsAPIKey returns the bearer key protecting the metrics and API endpoints
func GetEnvMetricsAPIKey() string {
	return os.Getenv("METRICS_API_KEY")
}

// GetEnvCircuitBreakerEnabled returns whether the circuit breaker is enabled from environment variables
func GetEnvCircuitBreakerEnabled() (bool, error) {
	return getEnvBool("CIRCUIT_BREAKER_ENABLED", DefaultCircuitBreakerEnabled)
}

// GetEnvCircuitBreakerThreshold returns the circuit breaker threshold from environment variables
func GetEnvCircuitBreakerThreshold() (int, error) {
	return getEnvPositiveInt("CIRCUIT_BREAKER_THRESHOLD", DefaultCircuitBreakerThreshold)
}

// GetEnvCircuitBreakerWindow returns the circuit breaker window duration from environment variables
func GetEnvCircuitBreakerWindow() (time.Duration, error) {
	return getEnvDuration("CIRCUIT_BREAKER_WINDOW", DefaultCircuitBreakerWindow)
}

// GetEnvCircuitBreakerReset returns the circuit breaker reset timeout from environment variables
func GetEnvCircuitBreakerReset() (time.Duration, error) {
	return getEnvDuration("CIRCUIT_BREAKER_RESET", DefaultCircuitBreakerReset)
}

// GetEnvLogLevel returns the log level from environment variables
func GetEnvLogLevel() (logger.Level, error) {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return DefaultLogLevel, nil
	}

	parsed, err := logger.ParseLevel(level)
	if err != nil {
		return 0, fmt.Errorf("invalid LOG_LEVEL value: %w", err)
	}
	return parsed, nil
}

// GetEnvLogColoring returns whether log prefixes are colored
func GetEnvLogColoring() (bool, error) {
	return getEnvBool("LOG_COLORING", DefaultLogColoring)
}

func getEnvString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func getEnvBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	switch v {
	case "":
		return def, nil
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, fmt.Errorf("invalid %s value: %s, must be 'true' or 'false'", key, v)
}

func getEnvPositiveInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %s, must be an integer", key, v)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be greater than 0", key)
	}
	return n, nil
}

func getEnvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}

	parsed, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %s, must be a valid duration string", key, v)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("%s must be greater than 0", key)
	}
	return parsed, nil
}

func getEnvContractAddress(key string) (string, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return "", nil
	}
	if !models.IsContractAddress(v) {
		return "", fmt.Errorf("invalid %s value: %s, must be a Soroban contract address", key, v)
	}
	return v, nil
}
