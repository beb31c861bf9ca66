// Package gossipsdk is the SDK facade: the single
// entry point embedding applications use. It owns the crypto
// primitive's handle, wires the four service layers (announce,
// messaging, discussion, refresh) over one Store and Transport, and
// exposes the event bus applications subscribe to.
//
// Mnemonic-to-seed derivation and auth UX are out of scope here: a
// caller that has already turned a recovery phrase into a static
// X25519 keypair hands this package the raw keys.
package gossipsdk

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/gossip-project/gossip-client/announce"
	"github.com/gossip-project/gossip-client/config"
	"github.com/gossip-project/gossip-client/discussion"
	"github.com/gossip-project/gossip-client/events"
	"github.com/gossip-project/gossip-client/gerrors"
	"github.com/gossip-project/gossip-client/identity"
	"github.com/gossip-project/gossip-client/internal/logger"
	"github.com/gossip-project/gossip-client/internal/metrics"
	"github.com/gossip-project/gossip-client/messaging"
	"github.com/gossip-project/gossip-client/ratchet"
	"github.com/gossip-project/gossip-client/refresh"
	"github.com/gossip-project/gossip-client/store"
	memorystore "github.com/gossip-project/gossip-client/store/memory"
	postgresstore "github.com/gossip-project/gossip-client/store/postgres"
	sqlitestore "github.com/gossip-project/gossip-client/store/sqlite"
	"github.com/gossip-project/gossip-client/transport"
)

// Engine is the result of Init: a configured, store-bound instance
// ready to open sessions. One Engine may open at most one Session at
// a time.
type Engine struct {
	store     store.Store
	transport transport.Transport
	log       logger.Logger
	metrics   *metrics.Collector
	retry     messaging.Config
	cfg       config.Config
	bus       *events.Bus
}

func storeFromConfig(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case "memory":
		return memorystore.New(), nil
	case "sqlite":
		return sqlitestore.Open(cfg.Path)
	case "postgres":
		return postgresstore.Open(ctx, postgresstore.Config{
			Host: cfg.Host, Port: cfg.Port, User: cfg.User,
			Password: cfg.Password, Database: cfg.Database, SSLMode: cfg.SSLMode,
		})
	default:
		return nil, fmt.Errorf("gossipsdk: unsupported store driver %q", cfg.Driver)
	}
}

// Init builds an Engine from cfg. tr is the bulletin transport the
// embedding application supplies — this module ships both an
// in-memory reference transport (transport/memory) and an HTTP client
// (transport/http) against a real bulletin node.
func Init(cfg config.Config, tr transport.Transport) (*Engine, error) {
	if tr == nil {
		return nil, errors.New("gossipsdk: init requires a non-nil transport")
	}
	st, err := storeFromConfig(context.Background(), cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("gossipsdk: init store: %w", err)
	}

	log := logger.New(cfg.Logging.Format, logger.ParseLevel(cfg.Logging.Level))
	mc := metrics.New()

	return &Engine{
		store:     st,
		transport: tr,
		log:       log,
		metrics:   mc,
		retry: messaging.Config{
			RetryDelay:          cfg.Retry.RetryDelay,
			DeduplicationWindow: cfg.Retry.DeduplicationWindow,
		},
		cfg: cfg,
		bus: events.New(),
	}, nil
}

// Metrics exposes the Prometheus registry for the caller to serve.
func (e *Engine) Metrics() *metrics.Collector { return e.metrics }

// Events returns the shared event bus. Subscribe with On before
// opening a session to avoid missing early events.
func (e *Engine) Events() *events.Bus { return e.bus }

// On registers handler for every future event of type t.
func (e *Engine) On(t events.Type, handler events.Handler) { e.bus.On(t, handler) }

// Close releases the Engine's store handle.
func (e *Engine) Close() error { return e.store.Close() }

// SwitchBulletinNode repoints the engine's transport at a different
// bulletin node. It touches nothing but the transport's own configured
// endpoint: no session or discussion state is read or mutated, so a
// caller can call this between operations without otherwise disturbing
// an open Session.
func (e *Engine) SwitchBulletinNode(ctx context.Context, url string) error {
	if err := e.transport.ChangeNode(ctx, url); err != nil {
		return fmt.Errorf("gossipsdk: switch bulletin node: %w", err)
	}
	return nil
}

// OpenSessionParams configures OpenSession.
type OpenSessionParams struct {
	// Owner is this session's own identity, derived by the caller from
	// whatever mnemonic/keypair material it manages.
	Owner identity.ID
	// StaticPriv/StaticPub are the X25519 static identity keypair
	// backing the crypto primitive.
	StaticPriv []byte
	StaticPub  []byte

	// EncryptedSession, if non-empty, is a prior ToEncryptedBlob
	// output to restore instead of starting a bare session.
	EncryptedSession []byte
	// EncryptionKey decrypts EncryptedSession and, if OnPersist is
	// also set, seals future saves.
	EncryptionKey []byte
	// OnPersist is called whenever the crypto primitive advances state
	// and needs to flush it; may be nil if the account has no storage
	// key yet (e.g. mid account-creation), wired later via
	// Session.ConfigurePersistence.
	OnPersist func(ctx context.Context, blob []byte) error
}

// Session is one opened, running engine instance bound to a single
// owner identity.
type Session struct {
	owner identity.ID
	// id correlates this session's log lines across a process that may
	// open and close several sessions over its lifetime; it has no
	// meaning outside the local log stream.
	id string

	store      store.Store
	ratch      *ratchet.ChaChaRatchet
	announce   *announce.Service
	messaging  *messaging.Service
	discussion *discussion.Service
	refresh    *refresh.Service
	bus        *events.Bus

	closed bool
}

// OpenSession opens a session for p.Owner.
// Any OUTGOING message left in a transient intermediate status by a
// prior crash (READY: already encrypted, not confirmed sent) is reset
// to WAITING_SESSION with its ciphertext cleared before normal
// operation resumes.
func (e *Engine) OpenSession(ctx context.Context, p OpenSessionParams) (*Session, error) {
	r := ratchet.New(p.StaticPriv, p.StaticPub, nil)
	if len(p.EncryptedSession) > 0 {
		if err := r.Load(p.EncryptedSession, p.EncryptionKey); err != nil {
			return nil, fmt.Errorf("gossipsdk: load encrypted session: %w", err)
		}
	}

	s := &Session{owner: p.Owner, id: uuid.New().String(), store: e.store, ratch: r, bus: e.bus}
	if p.OnPersist != nil {
		s.ConfigurePersistence(p.EncryptionKey, p.OnPersist)
	}
	if e.log != nil {
		e.log.Info("session opened", logger.String("session", s.id), logger.Any("owner", p.Owner))
	}

	s.messaging = messaging.New(e.store, r, e.transport, e.bus, e.retry, e.log, e.metrics)
	s.announce = announce.New(e.store, r, e.transport, s.messaging, e.bus, announce.Config{RetryDelay: e.cfg.Retry.RetryDelay}, e.log, e.metrics)
	s.discussion = discussion.New(e.store, r, s.announce, s.messaging)
	s.refresh = refresh.New(e.store, r, s.messaging, e.bus, e.log, e.metrics)

	if _, err := e.store.GetProfile(ctx, p.Owner); err != nil {
		if !errors.Is(err, gerrors.ErrNotFound) {
			return nil, fmt.Errorf("gossipsdk: load profile: %w", err)
		}
		if err := e.store.PutProfile(ctx, &store.UserProfile{UserID: p.Owner}); err != nil {
			return nil, fmt.Errorf("gossipsdk: create profile: %w", err)
		}
	}

	if err := s.recoverFromCrash(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// recoverFromCrash resets outgoing state left in a transient
// intermediate status by a prior crash: READY is this engine's
// transient intermediate status (ciphertext already derived, send not
// yet confirmed), the analogue of the source's SENDING/FAILED states.
func (s *Session) recoverFromCrash(ctx context.Context) error {
	discussions, err := s.store.ListDiscussions(ctx, s.owner)
	if err != nil {
		return fmt.Errorf("gossipsdk: list discussions for crash recovery: %w", err)
	}
	transient := store.NewOutgoingStatusSet(store.StatusReady)
	for _, d := range discussions {
		if err := s.store.ResetOutgoingForPeer(ctx, s.owner, d.ContactUserID, transient); err != nil {
			return fmt.Errorf("gossipsdk: reset transient outgoing for %s: %w", d.ContactUserID, err)
		}
	}
	return nil
}

// ConfigurePersistence installs the persistence key and callback
// , for the account-creation flow
// where OpenSession ran without one.
func (s *Session) ConfigurePersistence(key []byte, callback func(ctx context.Context, blob []byte) error) {
	s.ratch.ConfigurePersistence(func(ctx context.Context) error {
		blob, err := s.ratch.ToEncryptedBlob(key)
		if err != nil {
			return fmt.Errorf("gossipsdk: seal session blob: %w", err)
		}
		return callback(ctx, blob)
	})
}

// ID returns the correlation ID assigned to this session at open time,
// for matching this session's log lines across a long-running process.
func (s *Session) ID() string { return s.id }

// GetEncryptedSession serializes the current session state.
func (s *Session) GetEncryptedSession(key []byte) ([]byte, error) {
	return s.ratch.ToEncryptedBlob(key)
}

// CloseSession releases the crypto primitive's held resources. Safe
// to call more than once.
func (s *Session) CloseSession() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.ratch.Cleanup()
}

// StartDiscussion begins a new discussion (discussion.Service.Start),
// then runs one refresh pass to publish the outgoing announcement.
func (s *Session) StartDiscussion(ctx context.Context, contact identity.ID, contactPk []byte, username, message string) (*store.Discussion, error) {
	d, err := s.discussion.Start(ctx, s.owner, contact, contactPk, username, message)
	if err != nil {
		return nil, err
	}
	return d, s.refresh.StateUpdate(ctx, s.owner)
}

// AcceptDiscussion accepts a pending incoming request.
func (s *Session) AcceptDiscussion(ctx context.Context, d *store.Discussion, contactPk []byte) error {
	if err := s.discussion.Accept(ctx, s.owner, d, contactPk); err != nil {
		return err
	}
	return s.refresh.StateUpdate(ctx, s.owner)
}

// RenewDiscussion forces ratchet reinitialization toward peer.
func (s *Session) RenewDiscussion(ctx context.Context, peer identity.ID, peerPk []byte) error {
	if err := s.discussion.Renew(ctx, s.owner, peer, peerPk); err != nil {
		return err
	}
	return s.refresh.StateUpdate(ctx, s.owner)
}

// RenameDiscussion sets the caller-chosen display name for a discussion
// with peer. Pure Store mutation; never touches the ratchet.
func (s *Session) RenameDiscussion(ctx context.Context, peer identity.ID, name string) error {
	return s.discussion.Rename(ctx, s.owner, peer, name)
}

// DeleteContact removes contact and everything derived from them:
// their discussion and messages are deleted from the store, and the
// crypto primitive is told to forget any session state for them. A
// future StartDiscussion with the same peer begins from scratch.
func (s *Session) DeleteContact(ctx context.Context, contact identity.ID) error {
	if err := s.store.DeleteContact(ctx, s.owner, contact); err != nil {
		return fmt.Errorf("gossipsdk: delete contact: %w", err)
	}
	if err := s.ratch.PeerDiscard(ctx, contact); err != nil {
		return fmt.Errorf("gossipsdk: discard peer session: %w", err)
	}
	return nil
}

// GetDiscussionStatus returns the derived, UI-facing status.
func (s *Session) GetDiscussionStatus(ctx context.Context, d *store.Discussion) (discussion.Status, error) {
	return s.discussion.DerivedStatus(ctx, s.owner, d)
}

// SendMessage enqueues content to peer and immediately attempts to
// drain the send queue for that peer.
func (s *Session) SendMessage(ctx context.Context, peer identity.ID, msgType store.MessageType, content string, replyTo, forwardOf *int64) (*store.Message, error) {
	m, err := s.messaging.Enqueue(ctx, s.owner, peer, msgType, content, replyTo, forwardOf)
	if err != nil {
		return nil, err
	}
	if _, err := s.messaging.ProcessSendQueueForContact(ctx, s.owner, peer); err != nil {
		return nil, err
	}
	return m, nil
}

// SyncAnnouncements drains the bulletin board's announcement log and
// runs one refresh pass over the results.
func (s *Session) SyncAnnouncements(ctx context.Context) error {
	if err := s.announce.FetchAndProcess(ctx, s.owner); err != nil {
		return err
	}
	return s.refresh.StateUpdate(ctx, s.owner)
}

// SyncMessages drains the message board for every seeker the crypto
// primitive is currently watching.
func (s *Session) SyncMessages(ctx context.Context) error {
	return s.messaging.ProcessInboundPipeline(ctx, s.owner)
}

// StateUpdate runs one refresh-driver pass , independent of
// any triggering operation. Call on a timer in addition to after every
// other operation above.
func (s *Session) StateUpdate(ctx context.Context) error {
	return s.refresh.StateUpdate(ctx, s.owner)
}

// ListDiscussions returns this owner's discussions.
func (s *Session) ListDiscussions(ctx context.Context) ([]*store.Discussion, error) {
	return s.store.ListDiscussions(ctx, s.owner)
}

// ListContacts returns this owner's contacts.
func (s *Session) ListContacts(ctx context.Context) ([]*store.Contact, error) {
	return s.store.ListContacts(ctx, s.owner)
}
