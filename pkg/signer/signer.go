// Package signer signs envelopes with an ed25519 key supplied per call.
// No key material is kept between calls.
package signer

import (
	"crypto/ed25519"
	"encoding/base32"
	"encoding/binary"
	"fmt"

	"github.com/speedrun-hq/stellar-bridge/pkg/models"
	"github.com/speedrun-hq/stellar-bridge/pkg/networks"
	"github.com/speedrun-hq/stellar-bridge/pkg/txbuilder"
)

// strkey version bytes
const (
	versionByteAccountID byte = 6 << 3  // 'G'
	versionByteSeed      byte = 18 << 3 // 'S'
)

var strkeyEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Ed25519 signs envelopes with a seed passed to every call
type Ed25519 struct{}

// Sign returns a signed copy of env. The private key is derived from seed for
// this call only and wiped before returning.
func (Ed25519) Sign(env *txbuilder.Envelope, profile networks.Profile, seed []byte) (*txbuilder.SignedEnvelope, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: signing seed must be %d bytes", models.ErrConfiguration, ed25519.SeedSize)
	}

	hash, err := env.Hash(profile)
	if err != nil {
		return nil, err
	}

	key := ed25519.NewKeyFromSeed(seed)
	defer wipe(key)

	pub := key.Public().(ed25519.PublicKey)
	var hint [4]byte
	copy(hint[:], pub[len(pub)-4:])

	return &txbuilder.SignedEnvelope{
		Envelope: *env,
		Signatures: []txbuilder.DecoratedSignature{
			{Hint: hint, Signature: ed25519.Sign(key, hash[:])},
		},
	}, nil
}

// Verify reports whether signed carries a valid signature by pub on the given network
func Verify(signed *txbuilder.SignedEnvelope, profile networks.Profile, pub ed25519.PublicKey) bool {
	hash, err := signed.Envelope.Hash(profile)
	if err != nil {
		return false
	}
	for _, sig := range signed.Signatures {
		if ed25519.Verify(pub, hash[:], sig.Signature) {
			return true
		}
	}
	return false
}

// PublicKey derives the public key of seed
func PublicKey(seed []byte) (ed25519.PublicKey, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: signing seed must be %d bytes", models.ErrConfiguration, ed25519.SeedSize)
	}
	key := ed25519.NewKeyFromSeed(seed)
	defer wipe(key)
	pub := make(ed25519.PublicKey, ed25519.PublicKeySize)
	copy(pub, key.Public().(ed25519.PublicKey))
	return pub, nil
}

// Address returns the G... account address of seed
func Address(seed []byte) (string, error) {
	pub, err := PublicKey(seed)
	if err != nil {
		return "", err
	}
	return EncodeAccountID(pub), nil
}

// EncodeAccountID encodes an ed25519 public key as a strkey account address
func EncodeAccountID(pub ed25519.PublicKey) string {
	return encodeStrKey(versionByteAccountID, pub)
}

// EncodeSecretSeed encodes seed as an S... secret seed
func EncodeSecretSeed(seed []byte) (string, error) {
	if len(seed) != ed25519.SeedSize {
		return "", fmt.Errorf("%w: signing seed must be %d bytes", models.ErrConfiguration, ed25519.SeedSize)
	}
	return encodeStrKey(versionByteSeed, seed), nil
}

// DecodeSecretSeed decodes an S... secret seed and verifies its checksum
func DecodeSecretSeed(secret string) ([]byte, error) {
	raw, err := strkeyEncoding.DecodeString(secret)
	if err != nil {
		return nil, fmt.Errorf("%w: secret seed is not valid base32", models.ErrConfiguration)
	}
	if len(raw) != 1+ed25519.SeedSize+2 {
		return nil, fmt.Errorf("%w: secret seed has length %d", models.ErrConfiguration, len(raw))
	}
	if raw[0] != versionByteSeed {
		wipe(raw)
		return nil, fmt.Errorf("%w: not a secret seed", models.ErrConfiguration)
	}
	body, sum := raw[:len(raw)-2], binary.LittleEndian.Uint16(raw[len(raw)-2:])
	if crc16(body) != sum {
		wipe(raw)
		return nil, fmt.Errorf("%w: secret seed checksum mismatch", models.ErrConfiguration)
	}
	seed := make([]byte, ed25519.SeedSize)
	copy(seed, body[1:])
	wipe(raw)
	return seed, nil
}

func encodeStrKey(version byte, payload []byte) string {
	raw := make([]byte, 0, 1+len(payload)+2)
	raw = append(raw, version)
	raw = append(raw, payload...)
	raw = binary.LittleEndian.AppendUint16(raw, crc16(raw))
	out := strkeyEncoding.EncodeToString(raw)
	wipe(raw)
	return out
}

// crc16 is CRC-16/XMODEM as used by strkey checksums
func crc16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
