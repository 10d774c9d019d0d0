package txbuilder

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/speedrun-hq/stellar-bridge/pkg/models"
	"github.com/speedrun-hq/stellar-bridge/pkg/networks"
)

// MaxMemoLength is the maximum length in bytes of a text memo
const MaxMemoLength = 28

// Operation is the single operation carried by an envelope. Either the
// invocation fields or Payload are set, never both.
type Operation struct {
	Kind     uint8
	Contract string
	Function string
	Args     []models.Arg
	// Payload holds a network or router built operation body
	Payload []byte
}

// Envelope is an unsigned transaction. Envelopes are single-use: a new one is
// built for every submission attempt.
type Envelope struct {
	Source    string
	Sequence  uint64
	Fee       uint32
	MinTime   uint64
	MaxTime   uint64
	Memo      string
	Operation Operation
}

// DecoratedSignature is an ed25519 signature with the last four bytes of the signer's public key
type DecoratedSignature struct {
	Hint      [4]byte
	Signature []byte
}

// SignedEnvelope is an envelope plus the signatures over its network-bound hash
type SignedEnvelope struct {
	Envelope   Envelope
	Signatures []DecoratedSignature
}

// Kind returns the operation kind carried by the envelope
func (e *Envelope) Kind() models.OperationKind {
	return models.OperationKind(e.Operation.Kind)
}

// Expiry returns the upper time bound of the envelope
func (e *Envelope) Expiry() time.Time {
	return time.Unix(int64(e.MaxTime), 0)
}

// MarshalBinary returns the canonical encoding of the envelope
func (e *Envelope) MarshalBinary() ([]byte, error) {
	b, err := rlp.EncodeToBytes(e)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrEncoding, err)
	}
	return b, nil
}

// Encode returns the base64 wire form of the envelope
func (e *Envelope) Encode() (string, error) {
	b, err := e.MarshalBinary()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// SignaturePayload returns the bytes that are signed: network id followed by the canonical encoding
func (e *Envelope) SignaturePayload(profile networks.Profile) ([]byte, error) {
	b, err := e.MarshalBinary()
	if err != nil {
		return nil, err
	}
	id := profile.NetworkID()
	return append(id[:], b...), nil
}

// Hash returns the transaction hash on the given network
func (e *Envelope) Hash(profile networks.Profile) ([32]byte, error) {
	payload, err := e.SignaturePayload(profile)
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(payload), nil
}

// HashHex returns the transaction hash as lowercase hex, the form used by the RPC
func (e *Envelope) HashHex(profile networks.Profile) (string, error) {
	h, err := e.Hash(profile)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(h[:]), nil
}

// DecodeEnvelope parses the base64 wire form of an unsigned envelope
func DecodeEnvelope(s string) (*Envelope, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64 envelope: %v", models.ErrEncoding, err)
	}
	var env Envelope
	if err := rlp.DecodeBytes(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: invalid envelope: %v", models.ErrEncoding, err)
	}
	return &env, nil
}

// Encode returns the base64 wire form of the signed envelope
func (s *SignedEnvelope) Encode() (string, error) {
	b, err := rlp.EncodeToBytes(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrEncoding, err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// HashHex returns the hash of the inner envelope
func (s *SignedEnvelope) HashHex(profile networks.Profile) (string, error) {
	return s.Envelope.HashHex(profile)
}

// DecodeSignedEnvelope parses the base64 wire form of a signed envelope
func DecodeSignedEnvelope(s string) (*SignedEnvelope, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64 envelope: %v", models.ErrEncoding, err)
	}
	var env SignedEnvelope
	if err := rlp.DecodeBytes(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: invalid signed envelope: %v", models.ErrEncoding, err)
	}
	return &env, nil
}
