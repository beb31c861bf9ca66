// Package announce is the announcement service: publishes outbound
// session announcements and drains the inbound
// bulletin board, classifying each item into a contact/discussion
// mutation and routing queued messages once a session activates.
package announce

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gossip-project/gossip-client/events"
	"github.com/gossip-project/gossip-client/gerrors"
	"github.com/gossip-project/gossip-client/identity"
	"github.com/gossip-project/gossip-client/internal/logger"
	"github.com/gossip-project/gossip-client/internal/metrics"
	"github.com/gossip-project/gossip-client/messaging"
	"github.com/gossip-project/gossip-client/ratchet"
	"github.com/gossip-project/gossip-client/store"
	"github.com/gossip-project/gossip-client/transport"
	"github.com/gossip-project/gossip-client/wire"
)

// FetchBatchSize bounds a single FetchAndProcess page.
const FetchBatchSize = 100

// Config governs retry policy for outbound announcement publication.
type Config struct {
	RetryDelay time.Duration
}

// Service implements outbound publish and inbound fetch/classify for
// session announcements.
type Service struct {
	store     store.Store
	ratchet   ratchet.Primitive
	transport transport.Transport
	messaging *messaging.Service
	bus       *events.Bus
	cfg       Config
	log       logger.Logger
	metrics   *metrics.Collector
}

// New constructs a Service over the given dependencies.
func New(st store.Store, r ratchet.Primitive, tr transport.Transport, m *messaging.Service, bus *events.Bus, cfg Config, log logger.Logger, mc *metrics.Collector) *Service {
	return &Service{store: st, ratchet: r, transport: tr, messaging: m, bus: bus, cfg: cfg, log: log, metrics: mc}
}

// Publish sends d's armed SendAnnounce, if any.
// On success it clears SendAnnounce; on failure it re-arms WhenToSend
// and returns nil (the caller is not meant to treat a retry-armed
// failure as fatal).
func (s *Service) Publish(ctx context.Context, d *store.Discussion) error {
	if d.SendAnnounce == nil {
		return nil
	}
	if d.SendAnnounce.WhenToSend.After(time.Now()) {
		return nil
	}

	if _, err := s.transport.SendAnnouncement(ctx, d.SendAnnounce.Bytes); err != nil {
		d.SendAnnounce.WhenToSend = time.Now().Add(s.cfg.RetryDelay)
		if uerr := s.store.PutDiscussion(ctx, d); uerr != nil {
			return fmt.Errorf("announce: record retry: %w", uerr)
		}
		return nil
	}

	d.SendAnnounce = nil
	if err := s.store.PutDiscussion(ctx, d); err != nil {
		return fmt.Errorf("announce: clear sent: %w", err)
	}
	if s.metrics != nil {
		s.metrics.AnnouncementsSent.Inc()
	}
	return nil
}

// FetchAndProcess drains the bulletin board past owner's
// lastBulletinCounter, classifying every item.
// The cursor advances to the highest processed counter only if the
// whole batch completed without a fatal error; per-item failures are
// buffered in PendingAnnouncement and never block cursor advance.
func (s *Service) FetchAndProcess(ctx context.Context, owner identity.ID) error {
	profile, err := s.store.GetProfile(ctx, owner)
	if err != nil {
		if !errors.Is(err, gerrors.ErrNotFound) {
			return fmt.Errorf("announce: load profile: %w", err)
		}
		profile = &store.UserProfile{UserID: owner}
	}

	var cursor *uint64
	if profile.LastBulletinCounter != nil {
		c := *profile.LastBulletinCounter
		cursor = &c
	}

	var maxCounter uint64
	sawAny := false

	for {
		page, err := s.transport.FetchAnnouncements(ctx, transport.FetchAnnouncementsOptions{Limit: FetchBatchSize, Cursor: cursor})
		if err != nil {
			return fmt.Errorf("announce: fetch: %w", err)
		}
		if len(page) == 0 {
			break
		}

		for _, item := range page {
			if err := s.processOne(ctx, owner, item); err != nil {
				s.log.Error("announce: item processing failed", logger.Any("counter", item.Counter), logger.Error(err))
				if perr := s.store.PutPendingAnnouncement(ctx, &store.PendingAnnouncement{
					OwnerUserID: owner, Counter: item.Counter, Data: item.Data, FetchedAt: time.Now(),
				}); perr != nil {
					return fmt.Errorf("announce: buffer failed item: %w", perr)
				}
			}
			if item.Counter > maxCounter {
				maxCounter = item.Counter
			}
			sawAny = true
		}

		last := page[len(page)-1].Counter
		cursor = &last
		if len(page) < FetchBatchSize {
			break
		}
	}

	if !sawAny {
		return nil
	}
	profile.LastBulletinCounter = &maxCounter
	if err := s.store.PutProfile(ctx, profile); err != nil {
		return fmt.Errorf("announce: advance cursor: %w", err)
	}
	return nil
}

func (s *Service) processOne(ctx context.Context, owner identity.ID, item transport.AnnouncementEntry) error {
	peerPk, userData, err := s.ratchet.FeedIncomingAnnouncement(ctx, item.Data)
	if err != nil {
		if errors.Is(err, ratchet.ErrUndecryptable) {
			return s.store.PutPendingAnnouncement(ctx, &store.PendingAnnouncement{
				OwnerUserID: owner, Counter: item.Counter, Data: item.Data, FetchedAt: time.Now(),
			})
		}
		return fmt.Errorf("feed announcement: %w", err)
	}

	peerID, err := identity.FromPublicKey(peerPk)
	if err != nil {
		return s.store.PutPendingAnnouncement(ctx, &store.PendingAnnouncement{
			OwnerUserID: owner, Counter: item.Counter, Data: item.Data, FetchedAt: time.Now(),
		})
	}

	text, err := wire.UnmarshalAnnounceText(userData)
	if err != nil {
		text = wire.AnnounceText{}
	}

	contact, err := s.store.GetContact(ctx, owner, peerID)
	if err != nil && !errors.Is(err, gerrors.ErrNotFound) {
		return fmt.Errorf("load contact: %w", err)
	}

	discussion, err := s.store.GetDiscussion(ctx, owner, peerID)
	if err != nil && !errors.Is(err, gerrors.ErrNotFound) {
		return fmt.Errorf("load discussion: %w", err)
	}

	if contact == nil {
		return s.handleNewRequest(ctx, owner, peerID, peerPk, text)
	}
	return s.handleKnownPeer(ctx, owner, peerID, peerPk, discussion, text)
}

// handleNewRequest covers "new incoming request from an
// unknown peer".
func (s *Service) handleNewRequest(ctx context.Context, owner, peerID identity.ID, peerPk []byte, text wire.AnnounceText) error {
	name := text.Username
	if name == "" {
		n, err := s.nextRequestOrdinal(ctx, owner)
		if err != nil {
			return err
		}
		name = fmt.Sprintf("New Request %d", n)
	}

	if err := s.store.PutContact(ctx, &store.Contact{OwnerUserID: owner, UserID: peerID, Name: name, PublicKey: peerPk}); err != nil {
		return fmt.Errorf("create contact: %w", err)
	}

	d := &store.Discussion{
		OwnerUserID: owner, ContactUserID: peerID,
		Direction: store.DirectionReceived, WeAccepted: false,
		LastAnnouncementMsg: text.Message, CreatedAt: time.Now(),
	}
	if err := s.store.PutDiscussion(ctx, d); err != nil {
		return fmt.Errorf("create discussion: %w", err)
	}

	if s.bus != nil {
		s.bus.Emit(events.Event{Type: events.DiscussionRequest, OwnerUserID: owner, ContactUserID: peerID})
	}
	return nil
}

// handleKnownPeer covers "incoming request from a known
// contact" (auto-accept iff PeerRequested, i.e. session recovery) and
// "acceptance of our prior request" (our INITIATED discussion turns
// ACTIVE and queued traffic is released).
func (s *Service) handleKnownPeer(ctx context.Context, owner, peerID identity.ID, peerPk []byte, d *store.Discussion, text wire.AnnounceText) error {
	if d == nil {
		// A contact exists but no discussion row yet; treat like a
		// fresh request from a recognized peer.
		d = &store.Discussion{OwnerUserID: owner, ContactUserID: peerID, Direction: store.DirectionReceived, CreatedAt: time.Now()}
	}

	wasInitiatedPending := d.Direction == store.DirectionInitiated && !d.WeAccepted

	switch {
	case wasInitiatedPending && s.ratchet.PeerSessionStatus(peerID) == ratchet.Active:
		d.WeAccepted = true
		if text.Message != "" {
			d.LastAnnouncementMsg = text.Message
		}
		if err := s.store.PutDiscussion(ctx, d); err != nil {
			return fmt.Errorf("activate discussion: %w", err)
		}
		if s.messaging != nil {
			if _, err := s.messaging.ProcessSendQueueForContact(ctx, owner, peerID); err != nil {
				return fmt.Errorf("drain queue after acceptance: %w", err)
			}
		}
		if s.bus != nil {
			s.bus.Emit(events.Event{Type: events.DiscussionAccepted, OwnerUserID: owner, ContactUserID: peerID})
		}
		return nil

	case s.ratchet.PeerSessionStatus(peerID) == ratchet.PeerRequested:
		// Session-recovery request: the peer lost its session state
		// and re-announced. Reply in kind so both sides converge back
		// to Active without surfacing a fresh DISCUSSION_REQUEST.
		replyBytes, err := s.ratchet.EstablishOutgoingSession(ctx, peerID, peerPk, nil)
		if err != nil {
			return fmt.Errorf("auto-accept session recovery: %w", err)
		}
		d.WeAccepted = true
		if text.Message != "" {
			d.LastAnnouncementMsg = text.Message
		}
		d.SendAnnounce = &store.SendAnnouncement{Bytes: replyBytes, WhenToSend: time.Now()}
		if err := s.store.PutDiscussion(ctx, d); err != nil {
			return fmt.Errorf("persist auto-accept: %w", err)
		}
		if err := s.Publish(ctx, d); err != nil {
			return err
		}
		if s.messaging != nil {
			if _, err := s.messaging.ProcessSendQueueForContact(ctx, owner, peerID); err != nil {
				return fmt.Errorf("drain queue after auto-accept: %w", err)
			}
		}
		return nil

	default:
		if text.Message != "" {
			d.LastAnnouncementMsg = text.Message
		}
		return s.store.PutDiscussion(ctx, d)
	}
}

func (s *Service) nextRequestOrdinal(ctx context.Context, owner identity.ID) (int, error) {
	contacts, err := s.store.ListContacts(ctx, owner)
	if err != nil {
		return 0, fmt.Errorf("count contacts: %w", err)
	}
	return len(contacts) + 1, nil
}
