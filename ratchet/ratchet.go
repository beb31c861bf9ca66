// Package ratchet is the client's session crypto primitive. It is the
// one component the rest of the engine treats as opaque: it owns all
// key material, advances its own state on every cryptographic
// operation, and is the sole writer of that state — every caller must
// route state changes through it rather than mutate session state
// directly.
//
// The design generalizes a ChaCha20-Poly1305/HKDF bilateral session
// primitive into a per-peer session table, with an X25519 handshake
// standing in for the ECDH step.
package ratchet

import (
	"context"
	"errors"

	"github.com/gossip-project/gossip-client/identity"
	"github.com/gossip-project/gossip-client/store"
)

// Status is the per-peer session state exposed to callers.
type Status int

const (
	NoSession Status = iota
	SelfRequested
	PeerRequested
	Active
	Killed
	Saturated
	UnknownPeer
)

func (s Status) String() string {
	switch s {
	case NoSession:
		return "NoSession"
	case SelfRequested:
		return "SelfRequested"
	case PeerRequested:
		return "PeerRequested"
	case Active:
		return "Active"
	case Killed:
		return "Killed"
	case Saturated:
		return "Saturated"
	case UnknownPeer:
		return "UnknownPeer"
	default:
		return "Unknown"
	}
}

// ErrUndecryptable is returned by FeedIncomingAnnouncement and
// FeedIncomingMessageBoardRead when the input cannot be authenticated
// against any known or pending session.
var ErrUndecryptable = errors.New("ratchet: undecryptable")

// PersistFunc is invoked synchronously, and must complete, before any
// state-advancing call returns — before the caller can hand the
// returned artifact to the transport.
type PersistFunc func(ctx context.Context) error

// Primitive is the crypto session primitive contract consumed by the
// rest of the engine.
type Primitive interface {
	// EstablishOutgoingSession builds an announcement for peerPk,
	// advances this peer's session state, persists, and returns the
	// announcement bytes to publish.
	EstablishOutgoingSession(ctx context.Context, peerID identity.ID, peerPk []byte, userData []byte) ([]byte, error)

	// FeedIncomingAnnouncement decodes and authenticates an inbound
	// announcement, advances state, persists, and returns the
	// sender's static public key and any user data. Returns
	// ErrUndecryptable if the announcement cannot be authenticated.
	FeedIncomingAnnouncement(ctx context.Context, data []byte) (peerPk []byte, userData []byte, err error)

	// SendMessage encrypts plaintext for peerID, advances that peer's
	// sending chain, persists, and returns the seeker the ciphertext
	// must be published under.
	SendMessage(ctx context.Context, peerID identity.ID, plaintext []byte) (store.Seeker, []byte, error)

	// FeedIncomingMessageBoardRead decrypts a (seeker, ciphertext)
	// pair fetched from the message board with the receiving key cached
	// for seeker, drops that key, persists, and identifies the sender. Returns
	// ErrUndecryptable if seeker matches no tracked session.
	FeedIncomingMessageBoardRead(ctx context.Context, seeker store.Seeker, ciphertext []byte) (plaintext []byte, peerID identity.ID, err error)

	// Refresh advances any due keep-alive/rekey steps and returns the
	// set of peers that now need an outbound step.
	Refresh(ctx context.Context) (map[identity.ID]struct{}, error)

	// PeerSessionStatus reports peerID's current session state.
	PeerSessionStatus(peerID identity.ID) Status

	// PeerDiscard tears down and forgets peerID's session state.
	PeerDiscard(ctx context.Context, peerID identity.ID) error

	// GetMessageBoardReadKeys returns the union of seekers the
	// primitive currently instructs the engine to monitor.
	GetMessageBoardReadKeys() map[store.Seeker]struct{}

	// ToEncryptedBlob serializes all session state, encrypted under key.
	ToEncryptedBlob(key []byte) ([]byte, error)

	// Load replaces all session state from a blob produced by
	// ToEncryptedBlob, decrypting it with key.
	Load(blob []byte, key []byte) error

	// Cleanup releases any held resources. Safe to call multiple times.
	Cleanup() error
}
