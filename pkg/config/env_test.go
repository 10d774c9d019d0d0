package config

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speedrun-hq/stellar-bridge/pkg/logger"
	"github.com/speedrun-hq/stellar-bridge/pkg/networks"
	"github.com/speedrun-hq/stellar-bridge/pkg/signer"
)

var (
	testAccount  = "G" + strings.Repeat("A", 55)
	testContract = "C" + strings.Repeat("B", 55)
)

func TestGetEnvNetwork(t *testing.T) {
	t.Run("default is testnet", func(t *testing.T) {
		t.Setenv("NETWORK", "")
		profile, err := GetEnvNetwork()
		require.NoError(t, err)
		assert.Equal(t, networks.TestnetName, profile.Name)
		assert.False(t, profile.Production)
	})

	t.Run("mainnet with endpoint override", func(t *testing.T) {
		t.Setenv("NETWORK", "stellar-mainnet")
		t.Setenv("SOROBAN_RPC_URL", "https://rpc.example.org")
		profile, err := GetEnvNetwork()
		require.NoError(t, err)
		assert.True(t, profile.Production)
		assert.Equal(t, "https://rpc.example.org", profile.RPCURL)
		assert.Equal(t, networks.Mainnet.HorizonURL, profile.HorizonURL)
	})

	t.Run("unknown network", func(t *testing.T) {
		t.Setenv("NETWORK", "futurenet")
		_, err := GetEnvNetwork()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid NETWORK value")
	})

	t.Run("invalid rpc url", func(t *testing.T) {
		t.Setenv("NETWORK", "")
		t.Setenv("SOROBAN_RPC_URL", "not a url")
		_, err := GetEnvNetwork()
		require.Error(t, err)
	})
}

func TestGetEnvAccessors(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
		check func(t *testing.T)
	}{
		{
			name:  "poll interval",
			key:   "POLL_INTERVAL",
			value: "250ms",
			check: func(t *testing.T) {
				d, err := GetEnvPollInterval()
				require.NoError(t, err)
				assert.Equal(t, 250*time.Millisecond, d)
			},
		},
		{
			name:  "negative poll interval",
			key:   "POLL_INTERVAL",
			value: "-1s",
			check: func(t *testing.T) {
				_, err := GetEnvPollInterval()
				require.Error(t, err)
			},
		},
		{
			name:  "poll attempts not an integer",
			key:   "POLL_MAX_ATTEMPTS",
			value: "thirty",
			check: func(t *testing.T) {
				_, err := GetEnvPollMaxAttempts()
				require.ErrorContains(t, err, "must be an integer")
			},
		},
		{
			name:  "allow mainnet",
			key:   "ALLOW_MAINNET_BRIDGE",
			value: "true",
			check: func(t *testing.T) {
				ok, err := GetEnvAllowMainnet()
				require.NoError(t, err)
				assert.True(t, ok)
			},
		},
		{
			name:  "allow mainnet must be a boolean",
			key:   "ALLOW_MAINNET_BRIDGE",
			value: "yes",
			check: func(t *testing.T) {
				_, err := GetEnvAllowMainnet()
				require.Error(t, err)
			},
		},
		{
			name:  "router rate limit",
			key:   "ROUTER_RATE_LIMIT",
			value: "0",
			check: func(t *testing.T) {
				_, err := GetEnvRouterRateLimit()
				require.ErrorContains(t, err, "greater than 0")
			},
		},
		{
			name:  "router endpoint trailing slash",
			key:   "ROUTER_API_ENDPOINT",
			value: "https://router.example.org/",
			check: func(t *testing.T) {
				endpoint, err := GetEnvRouterAPIEndpoint()
				require.NoError(t, err)
				assert.Equal(t, "https://router.example.org", endpoint)
			},
		},
		{
			name:  "staking contract must be a contract address",
			key:   "STAKING_CONTRACT_ADDRESS",
			value: testAccount,
			check: func(t *testing.T) {
				_, err := GetEnvStakingContract()
				require.Error(t, err)
			},
		},
		{
			name:  "liquidity contract",
			key:   "LIQUIDITY_CONTRACT_ADDRESS",
			value: testContract,
			check: func(t *testing.T) {
				addr, err := GetEnvLiquidityContract()
				require.NoError(t, err)
				assert.Equal(t, testContract, addr)
			},
		},
		{
			name:  "log level",
			key:   "LOG_LEVEL",
			value: "debug",
			check: func(t *testing.T) {
				level, err := GetEnvLogLevel()
				require.NoError(t, err)
				assert.Equal(t, logger.DebugLevel, level)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			tt.check(t)
		})
	}
}

func TestFromEnv(t *testing.T) {
	t.Run("requires the source address", func(t *testing.T) {
		t.Setenv("STELLAR_PUBLIC_KEY", "")
		_, err := fromEnv()
		require.ErrorContains(t, err, "STELLAR_PUBLIC_KEY")
	})

	t.Run("defaults", func(t *testing.T) {
		t.Setenv("STELLAR_PUBLIC_KEY", testAccount)
		t.Setenv("STELLAR_PRIVATE_KEY", strings.Repeat("ab", SeedSize))
		cfg, err := fromEnv()
		require.NoError(t, err)

		assert.Equal(t, networks.TestnetName, cfg.Network.Name)
		assert.False(t, cfg.AllowMainnet)
		assert.Equal(t, testAccount, cfg.SourceAddress)
		assert.Equal(t, DefaultPollInterval, cfg.Poll.Interval)
		assert.Equal(t, DefaultPollMaxAttempts, cfg.Poll.MaxAttempts)
		assert.Equal(t, DefaultSourceAsset, cfg.Transfer.SourceAsset)
		assert.Equal(t, DefaultRouterAPIEndpoint, cfg.Router.Endpoint)
		assert.Equal(t, DefaultWorkerCount, cfg.WorkerCount)
		assert.True(t, cfg.CircuitBreaker.Enabled)
	})
}

func TestLoadSigningSeed(t *testing.T) {
	tests := []struct {
		name  string
		value string
		isErr bool
	}{
		{name: "plain hex", value: strings.Repeat("01", SeedSize)},
		{name: "prefixed hex", value: "0x" + strings.Repeat("ff", SeedSize)},
		{name: "missing", value: "", isErr: true},
		{name: "too short", value: "0x0102", isErr: true},
		{name: "not hex", value: strings.Repeat("zz", SeedSize), isErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("STELLAR_PRIVATE_KEY", tt.value)
			seed, err := LoadSigningSeed()
			if tt.isErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, seed, SeedSize)
		})
	}
}

func TestLoadSigningSeedSecretSeed(t *testing.T) {
	seed := bytes.Repeat([]byte{9}, SeedSize)
	secret, err := signer.EncodeSecretSeed(seed)
	require.NoError(t, err)

	t.Setenv("STELLAR_PRIVATE_KEY", secret)
	got, err := LoadSigningSeed()
	require.NoError(t, err)
	assert.Equal(t, seed, got)

	t.Setenv("STELLAR_PRIVATE_KEY", secret[:len(secret)-1]+"A")
	if secret[len(secret)-1] == 'A' {
		t.Setenv("STELLAR_PRIVATE_KEY", secret[:len(secret)-1]+"B")
	}
	_, err = LoadSigningSeed()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STELLAR_PRIVATE_KEY")
}
