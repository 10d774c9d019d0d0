// Package networks describes the Stellar network variants a bridge run can target.
package networks

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

const (
	// TestnetName is the name of the Stellar test network profile
	TestnetName = "stellar-testnet"
	// MainnetName is the name of the Stellar public network profile
	MainnetName = "stellar-mainnet"

	// TestnetPassphrase is the domain-separation passphrase of the test network
	TestnetPassphrase = "Test SDF Network ; September 2015"
	// MainnetPassphrase is the domain-separation passphrase of the public network
	MainnetPassphrase = "Public Global Stellar Network ; September 2015"

	// MinBaseFee is the network minimum base fee in stroops
	MinBaseFee uint32 = 100
)

// Profile identifies a network variant. Profiles are plain values and are
// shared read-only between concurrent runs.
type Profile struct {
	Name       string
	Passphrase string
	RPCURL     string
	HorizonURL string
	BaseFee    uint32
	Production bool
}

// Testnet is the default profile for the Stellar test network
var Testnet = Profile{
	Name:       TestnetName,
	Passphrase: TestnetPassphrase,
	RPCURL:     "https://soroban-testnet.stellar.org",
	HorizonURL: "https://horizon-testnet.stellar.org",
	BaseFee:    MinBaseFee,
}

// Mainnet is the default profile for the Stellar public network
var Mainnet = Profile{
	Name:       MainnetName,
	Passphrase: MainnetPassphrase,
	RPCURL:     "https://mainnet.sorobanrpc.com",
	HorizonURL: "https://horizon.stellar.org",
	BaseFee:    MinBaseFee,
	Production: true,
}

var profiles = map[string]Profile{
	TestnetName: Testnet,
	MainnetName: Mainnet,
}

// Lookup returns the profile registered under name
func Lookup(name string) (Profile, error) {
	p, ok := profiles[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Profile{}, fmt.Errorf("unknown network %q, must be %q or %q", name, TestnetName, MainnetName)
	}
	return p, nil
}

// Names returns the names of all known profiles
func Names() []string {
	return []string{TestnetName, MainnetName}
}

// NetworkID returns the hash of the passphrase that is mixed into every signature payload
func (p Profile) NetworkID() [32]byte {
	return sha256.Sum256([]byte(p.Passphrase))
}

// WithEndpoints returns a copy of p with non-empty endpoint overrides applied
func (p Profile) WithEndpoints(rpcURL, horizonURL string) Profile {
	if rpcURL != "" {
		p.RPCURL = rpcURL
	}
	if horizonURL != "" {
		p.HorizonURL = horizonURL
	}
	return p
}
