// Package messaging is the message service — FIFO outgoing send per
// peer, and the inbound decrypt/dedup pipeline. Ordering, the
// persistence invariant, and seeker-based ACK all meet here.
package messaging

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gossip-project/gossip-client/events"
	"github.com/gossip-project/gossip-client/identity"
	"github.com/gossip-project/gossip-client/internal/logger"
	"github.com/gossip-project/gossip-client/internal/metrics"
	"github.com/gossip-project/gossip-client/ratchet"
	"github.com/gossip-project/gossip-client/store"
	"github.com/gossip-project/gossip-client/transport"
	"github.com/gossip-project/gossip-client/wire"
)

// Config governs retry and dedup policy.
type Config struct {
	RetryDelay          time.Duration
	DeduplicationWindow time.Duration
}

// Service implements the outgoing FIFO queue and inbound pipeline.
type Service struct {
	store     store.Store
	ratchet   ratchet.Primitive
	transport transport.Transport
	bus       *events.Bus
	cfg       Config
	log       logger.Logger
	metrics   *metrics.Collector

	peerMu   sync.Mutex
	inFlight map[string]*sync.Mutex
}

// New constructs a Service over the given dependencies. bus may be nil
// (no MESSAGE_RECEIVED events emitted), which is convenient for
// narrowly-scoped tests that don't exercise the event surface.
func New(st store.Store, r ratchet.Primitive, tr transport.Transport, bus *events.Bus, cfg Config, log logger.Logger, m *metrics.Collector) *Service {
	return &Service{
		store: st, ratchet: r, transport: tr, bus: bus, cfg: cfg, log: log, metrics: m,
		inFlight: make(map[string]*sync.Mutex),
	}
}

func peerKey(owner, peer identity.ID) string {
	return owner.String() + "/" + peer.String()
}

// peerLock returns the per-(owner,peer) mutex serializing sends.
func (s *Service) peerLock(owner, peer identity.ID) *sync.Mutex {
	key := peerKey(owner, peer)
	s.peerMu.Lock()
	defer s.peerMu.Unlock()
	m, ok := s.inFlight[key]
	if !ok {
		m = &sync.Mutex{}
		s.inFlight[key] = m
	}
	return m
}

func randomMessageID() (store.MessageID, error) {
	var id store.MessageID
	if _, err := io.ReadFull(rand.Reader, id[:]); err != nil {
		return id, fmt.Errorf("generate message id: %w", err)
	}
	return id, nil
}

// Enqueue creates a new OUTGOING message in WAITING_SESSION status.
// The send is not attempted here; the caller must subsequently drive
// ProcessSendQueueForContact.
func (s *Service) Enqueue(ctx context.Context, owner, peer identity.ID, msgType store.MessageType, content string, replyTo, forwardOf *int64) (*store.Message, error) {
	mid, err := randomMessageID()
	if err != nil {
		return nil, err
	}
	m := &store.Message{
		OwnerUserID: owner, ContactUserID: peer, Content: content, MessageID: mid,
		Type: msgType, Direction: store.DirectionOutgoing, Status: store.StatusWaitingSession,
		Timestamp: time.Now(), ReplyTo: replyTo, ForwardOf: forwardOf,
	}
	id, err := s.store.AddMessage(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("enqueue message: %w", err)
	}
	m.ID = id
	return m, nil
}

func (s *Service) wireRef(ctx context.Context, owner identity.ID, localID *int64) ([]byte, error) {
	if localID == nil {
		return nil, nil
	}
	m, err := s.store.GetMessage(ctx, owner, *localID)
	if err != nil {
		return nil, fmt.Errorf("resolve wire reference: %w", err)
	}
	out := make([]byte, len(m.MessageID))
	copy(out, m.MessageID[:])
	return out, nil
}

// ProcessSendQueueForContact drives Q(peer) to completion or the
// first blocking condition// messages successfully handed to transport this call.
func (s *Service) ProcessSendQueueForContact(ctx context.Context, owner, peer identity.ID) (int, error) {
	if s.ratchet.PeerSessionStatus(peer) != ratchet.Active {
		return 0, nil
	}

	lock := s.peerLock(owner, peer)
	lock.Lock()
	defer lock.Unlock()

	statuses := store.NewOutgoingStatusSet(store.StatusWaitingSession, store.StatusReady)
	queue, err := s.store.QueryOutgoingForPeer(ctx, owner, peer, statuses)
	if err != nil {
		return 0, fmt.Errorf("query outgoing: %w", err)
	}

	sent := 0
	for _, m := range queue {
		if m.Status == store.StatusWaitingSession {
			if err := s.encryptForSend(ctx, owner, peer, m); err != nil {
				return sent, err
			}
		}

		if m.WhenToSend != nil && m.WhenToSend.After(time.Now()) {
			return sent, nil
		}

		if err := s.transport.SendMessage(ctx, *m.Seeker, m.Encrypted); err != nil {
			m.WhenToSend = timePtr(time.Now().Add(s.cfg.RetryDelay))
			if uerr := s.store.UpdateMessage(ctx, m); uerr != nil {
				return sent, fmt.Errorf("record retry delay: %w", uerr)
			}
			if s.metrics != nil {
				s.metrics.SendRetries.Inc()
			}
			return sent, nil
		}

		m.Status = store.StatusSent
		m.Encrypted = nil
		if err := s.store.UpdateMessage(ctx, m); err != nil {
			return sent, fmt.Errorf("record sent: %w", err)
		}
		if s.metrics != nil {
			s.metrics.MessagesSent.Inc()
		}
		sent++
	}
	return sent, nil
}

func (s *Service) encryptForSend(ctx context.Context, owner, peer identity.ID, m *store.Message) error {
	replyRef, err := s.wireRef(ctx, owner, m.ReplyTo)
	if err != nil {
		return err
	}
	forwardRef, err := s.wireRef(ctx, owner, m.ForwardOf)
	if err != nil {
		return err
	}

	payload := wire.DecodedMessage{
		Type: string(m.Type), Content: m.Content, MessageID: m.MessageID[:],
		ReplyTo: replyRef, ForwardOf: forwardRef,
	}
	plaintext, err := payload.Marshal()
	if err != nil {
		return fmt.Errorf("marshal outgoing payload: %w", err)
	}

	seeker, ciphertext, err := s.ratchet.SendMessage(ctx, peer, plaintext)
	if err != nil {
		return fmt.Errorf("encrypt outgoing message: %w", err)
	}

	m.Status = store.StatusReady
	m.Seeker = &seeker
	m.Encrypted = ciphertext
	m.WhenToSend = timePtr(time.Now())
	if err := s.store.UpdateMessage(ctx, m); err != nil {
		return fmt.Errorf("record ready: %w", err)
	}
	return nil
}

func timePtr(t time.Time) *time.Time { return &t }

// ProcessInboundPipeline runs the decrypt/dedup pipeline for owner
// . It is invoked on a schedule and after every
// announcement fetch.
func (s *Service) ProcessInboundPipeline(ctx context.Context, owner identity.ID) error {
	active := s.ratchet.GetMessageBoardReadKeys()
	seekers := make([]store.Seeker, 0, len(active))
	for sk := range active {
		seekers = append(seekers, sk)
	}
	if err := s.store.ReplaceActiveSeekers(ctx, owner, seekers); err != nil {
		return fmt.Errorf("snapshot active seekers: %w", err)
	}
	if s.metrics != nil {
		s.metrics.ActiveSeekers.Set(float64(len(seekers)))
	}

	fetched, err := s.transport.FetchMessages(ctx, seekers)
	if err != nil {
		return fmt.Errorf("fetch messages: %w", err)
	}
	pending, err := s.store.ListPendingEncryptedMessages(ctx, owner)
	if err != nil {
		return fmt.Errorf("list pending encrypted messages: %w", err)
	}

	entries := make([]transport.MessageEntry, 0, len(fetched)+len(pending))
	entries = append(entries, fetched...)
	for _, p := range pending {
		entries = append(entries, transport.MessageEntry{Seeker: p.Seeker, Ciphertext: p.Ciphertext})
	}

	for _, e := range entries {
		if err := s.processOne(ctx, owner, e); err != nil {
			return err
		}
	}

	return s.retireDeliveredSent(ctx, owner)
}

func (s *Service) processOne(ctx context.Context, owner identity.ID, e transport.MessageEntry) error {
	plaintext, peerID, err := s.ratchet.FeedIncomingMessageBoardRead(ctx, e.Seeker, e.Ciphertext)
	if err != nil {
		if errors.Is(err, ratchet.ErrUndecryptable) {
			return s.store.PutPendingEncryptedMessage(ctx, &store.PendingEncryptedMessage{
				OwnerUserID: owner, Seeker: e.Seeker, Ciphertext: e.Ciphertext, FetchedAt: time.Now(),
			})
		}
		return fmt.Errorf("decrypt message: %w", err)
	}
	_ = s.store.DeletePendingEncryptedMessage(ctx, owner, e.Seeker)

	decoded, err := wire.UnmarshalDecodedMessage(plaintext)
	if err != nil {
		return fmt.Errorf("unmarshal decoded message: %w", err)
	}

	var mid store.MessageID
	copy(mid[:], decoded.MessageID)

	existing, err := s.store.FindMessageByMessageID(ctx, owner, peerID, mid, s.cfg.DeduplicationWindow)
	if err != nil {
		return fmt.Errorf("dedup lookup: %w", err)
	}
	if existing != nil {
		if s.metrics != nil {
			s.metrics.MessagesDeduped.Inc()
		}
		return nil
	}
	if mid == (store.MessageID{}) {
		if existing, err = s.store.FindRecentIncomingByContent(ctx, owner, peerID, decoded.Content, s.cfg.DeduplicationWindow); err != nil {
			return fmt.Errorf("legacy dedup lookup: %w", err)
		}
		if existing != nil {
			if s.metrics != nil {
				s.metrics.MessagesDeduped.Inc()
			}
			return nil
		}
	}

	if store.MessageType(decoded.Type) == store.MessageKeepAlive {
		// Invisible: no row inserted. Seeker retirement is handled
		// generically by retireDeliveredSent below.
		return nil
	}

	m := &store.Message{
		OwnerUserID: owner, ContactUserID: peerID, Content: decoded.Content, MessageID: mid,
		Type: store.MessageType(decoded.Type), Direction: store.DirectionIncoming,
		Status: store.StatusDelivered, Timestamp: time.Now(),
		ReplyTo:   s.resolveLocalRef(ctx, owner, peerID, decoded.ReplyTo),
		ForwardOf: s.resolveLocalRef(ctx, owner, peerID, decoded.ForwardOf),
	}
	id, err := s.store.AddMessage(ctx, m)
	if err != nil {
		return fmt.Errorf("insert incoming message: %w", err)
	}
	if s.metrics != nil {
		s.metrics.MessagesReceived.Inc()
	}
	if s.bus != nil {
		s.bus.Emit(events.Event{Type: events.MessageReceived, OwnerUserID: owner, ContactUserID: peerID, MessageID: id})
	}
	return nil
}

// resolveLocalRef best-effort resolves a wire MessageID reference to
// a local row id; an unresolved reference is simply dropped, which is
// acceptable since ReplyTo/ForwardOf are cosmetic UI hints.
func (s *Service) resolveLocalRef(ctx context.Context, owner, peer identity.ID, wireRef []byte) *int64 {
	if len(wireRef) != len(store.MessageID{}) {
		return nil
	}
	var mid store.MessageID
	copy(mid[:], wireRef)
	m, err := s.store.FindMessageByMessageID(ctx, owner, peer, mid, 365*24*time.Hour)
	if err != nil || m == nil {
		return nil
	}
	id := m.ID
	return &id
}

// retireDeliveredSent implements step 5: any OUTGOING
// message whose seeker is no longer in the post-batch active set and
// whose status is SENT transitions to DELIVERED.
func (s *Service) retireDeliveredSent(ctx context.Context, owner identity.ID) error {
	stillActive := s.ratchet.GetMessageBoardReadKeys()

	discussions, err := s.store.ListDiscussions(ctx, owner)
	if err != nil {
		return fmt.Errorf("list discussions: %w", err)
	}
	for _, d := range discussions {
		sent, err := s.store.QueryOutgoingForPeer(ctx, owner, d.ContactUserID, store.NewOutgoingStatusSet(store.StatusSent))
		if err != nil {
			return fmt.Errorf("query sent outgoing: %w", err)
		}
		for _, m := range sent {
			if m.Seeker == nil {
				continue
			}
			if _, stillPending := stillActive[*m.Seeker]; stillPending {
				continue
			}
			m.Status = store.StatusDelivered
			m.Seeker = nil
			if err := s.store.UpdateMessage(ctx, m); err != nil {
				return fmt.Errorf("mark delivered by ack: %w", err)
			}
		}
	}
	return nil
}

