// Package identity encodes and decodes the 32-byte user identifiers
// used throughout the messaging engine as a checksummed, human-readable
// string, matching the bech32-style encoding described in the bulletin
// protocol's identity contract.
package identity

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

// HRP is the human-readable prefix used for all encoded user IDs.
const HRP = "gossip"

// IDSize is the length in bytes of a raw user identity.
const IDSize = 32

// ID is a raw 32-byte opaque user identity.
type ID [IDSize]byte

// String renders the ID using the package's bech32 encoding.
func (id ID) String() string {
	s, err := Encode(id)
	if err != nil {
		// Encode only fails on malformed input, which a fixed-size ID
		// can never produce.
		panic(fmt.Sprintf("identity: unreachable encode failure: %v", err))
	}
	return s
}

// IsZero reports whether id is the zero value.
func (id ID) IsZero() bool {
	return id == ID{}
}

// Encode converts a raw identity into its bech32 string form.
func Encode(id ID) (string, error) {
	data, err := bech32.ConvertBits(id[:], 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("identity: convert bits: %w", err)
	}
	encoded, err := bech32.Encode(HRP, data)
	if err != nil {
		return "", fmt.Errorf("identity: encode: %w", err)
	}
	return encoded, nil
}

// Decode parses a bech32 string into a raw identity, rejecting any HRP
// other than HRP and any checksum failure.
func Decode(s string) (ID, error) {
	hrp, data, err := bech32.Decode(s)
	if err != nil {
		return ID{}, fmt.Errorf("identity: decode: %w", err)
	}
	if hrp != HRP {
		return ID{}, fmt.Errorf("identity: unexpected hrp %q, want %q", hrp, HRP)
	}
	raw, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return ID{}, fmt.Errorf("identity: convert bits: %w", err)
	}
	if len(raw) != IDSize {
		return ID{}, fmt.Errorf("identity: decoded length %d, want %d", len(raw), IDSize)
	}
	var id ID
	copy(id[:], raw)
	return id, nil
}

// Valid reports whether s is a well-formed identity string: correct HRP
// and a passing checksum.
func Valid(s string) bool {
	_, err := Decode(s)
	return err == nil
}

// FromPublicKey derives the identity of the peer holding pk, which
// must be exactly IDSize bytes (the crypto primitive's static public
// keys double as raw identities).
func FromPublicKey(pk []byte) (ID, error) {
	if len(pk) != IDSize {
		return ID{}, fmt.Errorf("identity: public key length %d, want %d", len(pk), IDSize)
	}
	var id ID
	copy(id[:], pk)
	return id, nil
}
