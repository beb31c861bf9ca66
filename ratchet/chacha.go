package ratchet

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"

	"github.com/gossip-project/gossip-client/identity"
	"github.com/gossip-project/gossip-client/store"
	"github.com/gossip-project/gossip-client/wire"
)

// lookaheadWindow bounds how many future receiving-chain steps are
// exposed via GetMessageBoardReadKeys, and how many skipped message
// keys are cached per peer to tolerate out-of-order delivery.
const lookaheadWindow = 50

// peerState is one peer's session material. PeerDiscard and Cleanup
// zero SendChainKey, RecvChainKey and SelfEphemeralPriv; the public
// keys and the SkippedKeys entries are dropped without being zeroed.
type peerState struct {
	Status       Status
	StaticPeerPk []byte
	SendChainKey []byte
	SendCounter  uint64
	RecvChainKey []byte
	RecvCounter  uint64

	// selfEphemeralPriv/Pub are retained only between
	// EstablishOutgoingSession and the peer's first reply, to prove
	// freshness if the handshake needs to be replayed; cleared once
	// the session reaches Active.
	SelfEphemeralPriv []byte
	SelfEphemeralPub  []byte

	// SkippedKeys maps a not-yet-consumed receiving seeker (hex) to
	// its derived AEAD key, for steps that arrive out of order.
	SkippedKeys map[string][]byte
}

func seekerHex(s store.Seeker) string { return hex.EncodeToString(s[:]) }

// ChaChaRatchet is a concrete Primitive: ChaCha20-Poly1305 AEAD over
// keys derived by a per-peer HKDF chain ratchet, bootstrapped by an
// X25519 handshake, generalized from one bilateral session to a
// per-peer session table with a lookahead-windowed receiving chain so
// seekers can be precomputed before the matching ciphertext is
// fetched.
type ChaChaRatchet struct {
	mu sync.Mutex

	staticPriv []byte
	staticPub  []byte

	peers map[identity.ID]*peerState

	onPersist PersistFunc
}

// New constructs a ChaChaRatchet for a static X25519 identity keypair.
// onPersist may be nil initially and set later via ConfigurePersistence,
// mirroring the SDK facade's ConfigurePersistence affordance for
// account-creation flows.
func New(staticPriv, staticPub []byte, onPersist PersistFunc) *ChaChaRatchet {
	return &ChaChaRatchet{
		staticPriv: staticPriv,
		staticPub:  staticPub,
		peers:      make(map[identity.ID]*peerState),
		onPersist:  onPersist,
	}
}

// ConfigurePersistence installs or replaces the persistence callback.
func (r *ChaChaRatchet) ConfigurePersistence(fn PersistFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onPersist = fn
}

func (r *ChaChaRatchet) persist(ctx context.Context) error {
	if r.onPersist == nil {
		return fmt.Errorf("ratchet: state-advancing call with no persistence callback configured")
	}
	if err := r.onPersist(ctx); err != nil {
		return fmt.Errorf("persist ratchet state: %w", err)
	}
	return nil
}

func canonicalOrder(a, b []byte) (lo, hi []byte) {
	if bytes.Compare(a, b) <= 0 {
		return a, b
	}
	return b, a
}

func hkdfBytes(secret, salt, info []byte, n int) ([]byte, error) {
	out := make([]byte, n)
	kdf := hkdf.New(sha256.New, secret, salt, info)
	if _, err := io.ReadFull(kdf, out); err != nil {
		return nil, err
	}
	return out, nil
}

// deriveRootKey computes the shared session root from an X25519
// shared secret, bound to both parties' static public keys so a
// transcript from one peer pair can't be replayed against another.
func deriveRootKey(sharedSecret, selfPk, peerPk []byte) ([]byte, error) {
	lo, hi := canonicalOrder(selfPk, peerPk)
	salt := append(append([]byte{}, lo...), hi...)
	return hkdfBytes(sharedSecret, salt, []byte("gossip/session-root"), 32)
}

// stepChain advances a KDF chain one step, returning the next chain
// key and a per-message key derived from the current one.
func stepChain(chainKey []byte) (nextChainKey, messageKey []byte, err error) {
	nextChainKey, err = hkdfBytes(chainKey, nil, []byte("gossip/chain-step"), 32)
	if err != nil {
		return nil, nil, err
	}
	messageKey, err = hkdfBytes(chainKey, nil, []byte("gossip/message-key"), 32)
	if err != nil {
		return nil, nil, err
	}
	return nextChainKey, messageKey, nil
}

func aeadKeyFromMessageKey(messageKey []byte) ([]byte, error) {
	return hkdfBytes(messageKey, nil, []byte("gossip/aead"), chacha20poly1305.KeySize)
}

func seekerFromMessageKey(messageKey []byte) (store.Seeker, error) {
	b, err := hkdfBytes(messageKey, nil, []byte("gossip/seeker"), 32)
	if err != nil {
		return store.Seeker{}, err
	}
	var s store.Seeker
	copy(s[:], b)
	return s, nil
}

func seal(aeadKey, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(aeadKey)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	ct := aead.Seal(nil, nonce, plaintext, nil)
	return append(nonce, ct...), nil
}

func open(aeadKey, data []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(aeadKey)
	if err != nil {
		return nil, err
	}
	if len(data) < chacha20poly1305.NonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce, ct := data[:chacha20poly1305.NonceSize], data[chacha20poly1305.NonceSize:]
	return aead.Open(nil, nonce, ct, nil)
}

func (r *ChaChaRatchet) EstablishOutgoingSession(ctx context.Context, peerID identity.ID, peerPk []byte, userData []byte) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ephPriv := make([]byte, curve25519.ScalarSize)
	if _, err := io.ReadFull(rand.Reader, ephPriv); err != nil {
		return nil, fmt.Errorf("generate ephemeral key: %w", err)
	}
	ephPub, err := curve25519.X25519(ephPriv, curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("derive ephemeral public key: %w", err)
	}

	shared, err := curve25519.X25519(ephPriv, peerPk)
	if err != nil {
		return nil, fmt.Errorf("x25519: %w", err)
	}
	rootKey, err := deriveRootKey(shared, r.staticPub, peerPk)
	if err != nil {
		return nil, fmt.Errorf("derive root key: %w", err)
	}
	sendChain, err := hkdfBytes(rootKey, nil, []byte("gossip/send-chain-a"), 32)
	if err != nil {
		return nil, err
	}
	recvChain, err := hkdfBytes(rootKey, nil, []byte("gossip/send-chain-b"), 32)
	if err != nil {
		return nil, err
	}

	st, existing := r.peers[peerID]
	status := SelfRequested
	if existing && st.Status == PeerRequested {
		status = Active
	}
	ps := &peerState{
		Status: status, StaticPeerPk: peerPk,
		SendChainKey: sendChain, RecvChainKey: recvChain,
		SkippedKeys: make(map[string][]byte),
	}
	if status != Active {
		ps.SelfEphemeralPriv, ps.SelfEphemeralPub = ephPriv, ephPub
	}
	r.peers[peerID] = ps

	payload := wire.AnnouncementPayload{SenderStaticPublicKey: r.staticPub, EphemeralPublicKey: ephPub, UserData: userData}
	out, err := payload.Marshal()
	if err != nil {
		return nil, fmt.Errorf("marshal announcement: %w", err)
	}

	if err := r.persist(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *ChaChaRatchet) FeedIncomingAnnouncement(ctx context.Context, data []byte) ([]byte, []byte, error) {
	payload, err := wire.UnmarshalAnnouncementPayload(data)
	if err != nil {
		return nil, nil, ErrUndecryptable
	}
	if len(payload.SenderStaticPublicKey) != curve25519.PointSize || len(payload.EphemeralPublicKey) != curve25519.PointSize {
		return nil, nil, ErrUndecryptable
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// A bulletin board is a shared, append-only log: every reader sees
	// every entry, including its own. An announcement can never be
	// addressed to its own sender.
	if bytes.Equal(payload.SenderStaticPublicKey, r.staticPub) {
		return nil, nil, ErrUndecryptable
	}

	shared, err := curve25519.X25519(r.staticPriv, payload.EphemeralPublicKey)
	if err != nil {
		return nil, nil, ErrUndecryptable
	}
	rootKey, err := deriveRootKey(shared, payload.SenderStaticPublicKey, r.staticPub)
	if err != nil {
		return nil, nil, fmt.Errorf("derive root key: %w", err)
	}
	// The peer derived its send-chain as "send-chain-a" against
	// (self=peer, peer=us); our receiving chain must use the same
	// label from our side, and vice versa.
	recvChain, err := hkdfBytes(rootKey, nil, []byte("gossip/send-chain-a"), 32)
	if err != nil {
		return nil, nil, err
	}
	sendChain, err := hkdfBytes(rootKey, nil, []byte("gossip/send-chain-b"), 32)
	if err != nil {
		return nil, nil, err
	}

	peerID, err := identity.FromPublicKey(payload.SenderStaticPublicKey)
	if err != nil {
		return nil, nil, ErrUndecryptable
	}

	st, existing := r.peers[peerID]
	status := PeerRequested
	if existing && st.Status == SelfRequested {
		status = Active
	}
	r.peers[peerID] = &peerState{
		Status: status, StaticPeerPk: payload.SenderStaticPublicKey,
		SendChainKey: sendChain, RecvChainKey: recvChain,
		SkippedKeys: make(map[string][]byte),
	}

	if err := r.persist(ctx); err != nil {
		return nil, nil, err
	}
	return payload.SenderStaticPublicKey, payload.UserData, nil
}

func (r *ChaChaRatchet) SendMessage(ctx context.Context, peerID identity.ID, plaintext []byte) (store.Seeker, []byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.peers[peerID]
	if !ok || st.Status == Killed {
		return store.Seeker{}, nil, fmt.Errorf("%w: no session for peer", ErrUndecryptable)
	}

	nextChain, msgKey, err := stepChain(st.SendChainKey)
	if err != nil {
		return store.Seeker{}, nil, fmt.Errorf("step send chain: %w", err)
	}
	seeker, err := seekerFromMessageKey(msgKey)
	if err != nil {
		return store.Seeker{}, nil, err
	}
	aeadKey, err := aeadKeyFromMessageKey(msgKey)
	if err != nil {
		return store.Seeker{}, nil, err
	}
	ct, err := seal(aeadKey, plaintext)
	if err != nil {
		return store.Seeker{}, nil, fmt.Errorf("seal: %w", err)
	}

	st.SendChainKey = nextChain
	st.SendCounter++

	if err := r.persist(ctx); err != nil {
		return store.Seeker{}, nil, err
	}
	return seeker, ct, nil
}

// advanceRecvWindow pushes peer's receiving chain forward by one
// step, caching the derived (seeker -> key) pair as skipped.
func advanceRecvWindow(st *peerState) error {
	nextChain, msgKey, err := stepChain(st.RecvChainKey)
	if err != nil {
		return err
	}
	seeker, err := seekerFromMessageKey(msgKey)
	if err != nil {
		return err
	}
	aeadKey, err := aeadKeyFromMessageKey(msgKey)
	if err != nil {
		return err
	}
	st.SkippedKeys[seekerHex(seeker)] = aeadKey
	st.RecvChainKey = nextChain
	st.RecvCounter++
	return nil
}

func (r *ChaChaRatchet) FeedIncomingMessageBoardRead(ctx context.Context, seeker store.Seeker, ciphertext []byte) ([]byte, identity.ID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := seekerHex(seeker)
	for peerID, st := range r.peers {
		if aeadKey, ok := st.SkippedKeys[key]; ok {
			plaintext, err := open(aeadKey, ciphertext)
			if err != nil {
				return nil, identity.ID{}, ErrUndecryptable
			}
			delete(st.SkippedKeys, key)
			if err := r.persist(ctx); err != nil {
				return nil, identity.ID{}, err
			}
			return plaintext, peerID, nil
		}
	}
	return nil, identity.ID{}, ErrUndecryptable
}

func (r *ChaChaRatchet) Refresh(ctx context.Context) (map[identity.ID]struct{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	due := make(map[identity.ID]struct{})
	for peerID, st := range r.peers {
		if st.Status != Active {
			continue
		}
		for len(st.SkippedKeys) < lookaheadWindow {
			if err := advanceRecvWindow(st); err != nil {
				return nil, fmt.Errorf("advance receiving window: %w", err)
			}
		}
		due[peerID] = struct{}{}
	}

	if err := r.persist(ctx); err != nil {
		return nil, err
	}
	return due, nil
}

func (r *ChaChaRatchet) PeerSessionStatus(peerID identity.ID) Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.peers[peerID]
	if !ok {
		return UnknownPeer
	}
	return st.Status
}

func (r *ChaChaRatchet) PeerDiscard(ctx context.Context, peerID identity.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.peers[peerID]; ok {
		zero(st.SendChainKey)
		zero(st.RecvChainKey)
		zero(st.SelfEphemeralPriv)
		delete(r.peers, peerID)
	}
	return r.persist(ctx)
}

func (r *ChaChaRatchet) GetMessageBoardReadKeys() map[store.Seeker]struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[store.Seeker]struct{})
	for _, st := range r.peers {
		for hexKey := range st.SkippedKeys {
			var s store.Seeker
			b, err := hex.DecodeString(hexKey)
			if err != nil || len(b) != len(s) {
				continue
			}
			copy(s[:], b)
			out[s] = struct{}{}
		}
	}
	return out
}

// serializedState is the CBOR shape persisted by ToEncryptedBlob/Load.
type serializedState struct {
	StaticPriv []byte                 `cbor:"1,keyasint"`
	StaticPub  []byte                 `cbor:"2,keyasint"`
	Peers      map[string]peerState   `cbor:"3,keyasint"`
}

func (r *ChaChaRatchet) ToEncryptedBlob(key []byte) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	peers := make(map[string]peerState, len(r.peers))
	for id, st := range r.peers {
		peers[id.String()] = *st
	}
	state := serializedState{StaticPriv: r.staticPriv, StaticPub: r.staticPub, Peers: peers}

	plain, err := cbor.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("marshal ratchet state: %w", err)
	}
	aeadKey, err := hkdfBytes(key, nil, []byte("gossip/blob-key"), chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	return seal(aeadKey, plain)
}

func (r *ChaChaRatchet) Load(blob []byte, key []byte) error {
	aeadKey, err := hkdfBytes(key, nil, []byte("gossip/blob-key"), chacha20poly1305.KeySize)
	if err != nil {
		return err
	}
	plain, err := open(aeadKey, blob)
	if err != nil {
		return fmt.Errorf("decrypt ratchet blob: %w", err)
	}
	var state serializedState
	if err := cbor.Unmarshal(plain, &state); err != nil {
		return fmt.Errorf("unmarshal ratchet state: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.staticPriv = state.StaticPriv
	r.staticPub = state.StaticPub
	r.peers = make(map[identity.ID]*peerState, len(state.Peers))
	for idStr, st := range state.Peers {
		id, err := identity.Decode(idStr)
		if err != nil {
			return fmt.Errorf("decode peer id %q: %w", idStr, err)
		}
		stCopy := st
		if stCopy.SkippedKeys == nil {
			stCopy.SkippedKeys = make(map[string][]byte)
		}
		r.peers[id] = &stCopy
	}
	return nil
}

func (r *ChaChaRatchet) Cleanup() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	zero(r.staticPriv)
	for _, st := range r.peers {
		zero(st.SendChainKey)
		zero(st.RecvChainKey)
		zero(st.SelfEphemeralPriv)
	}
	r.peers = make(map[identity.ID]*peerState)
	return nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

var _ Primitive = (*ChaChaRatchet)(nil)
