// Package refresh is the refresh/keep-alive driver: it
// ties the crypto primitive's internal ratchet advancement to
// application-visible traffic, enqueuing keep-alives when a peer's
// session needs an outbound step but has nothing else queued, and
// surfacing session breakage the engine must not repair unilaterally.
package refresh

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/gossip-project/gossip-client/events"
	"github.com/gossip-project/gossip-client/gerrors"
	"github.com/gossip-project/gossip-client/identity"
	"github.com/gossip-project/gossip-client/internal/logger"
	"github.com/gossip-project/gossip-client/internal/metrics"
	"github.com/gossip-project/gossip-client/messaging"
	"github.com/gossip-project/gossip-client/ratchet"
	"github.com/gossip-project/gossip-client/store"
)

// maxConcurrentDrains bounds how many peers' send queues this service
// drains at once. Queue draining is independent per peer (messaging
// serializes per-peer sends internally), so a single slow peer never
// blocks the others, but an unbounded fan-out would still let a
// discussion list with thousands of peers open thousands of
// concurrent transport calls.
const maxConcurrentDrains = 8

// Service drives session.refresh() and the keep-alive/renewal fallout
// it implies.
type Service struct {
	store     store.Store
	ratchet   ratchet.Primitive
	messaging *messaging.Service
	bus       *events.Bus
	log       logger.Logger
	metrics   *metrics.Collector
}

// New constructs a Service over the given dependencies.
func New(st store.Store, r ratchet.Primitive, m *messaging.Service, bus *events.Bus, log logger.Logger, mc *metrics.Collector) *Service {
	return &Service{store: st, ratchet: r, messaging: m, bus: bus, log: log, metrics: mc}
}

// StateUpdate runs one refresh pass for owner. Callers
// invoke this after every service operation and on a timer.
func (s *Service) StateUpdate(ctx context.Context, owner identity.ID) error {
	passID := uuid.New().String()
	if s.log != nil {
		s.log.Debug("refresh: pass starting", logger.String("pass", passID), logger.Any("owner", owner))
	}

	due, err := s.ratchet.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("refresh: session refresh: %w", err)
	}

	discussions, err := s.store.ListDiscussions(ctx, owner)
	if err != nil {
		return fmt.Errorf("refresh: list discussions: %w", err)
	}

	touched := make(map[identity.ID]struct{}, len(due))

	for peerID := range due {
		if s.ratchet.PeerSessionStatus(peerID) != ratchet.Active {
			continue
		}
		pending, err := s.store.QueryOutgoingForPeer(ctx, owner, peerID, store.NewOutgoingStatusSet(store.StatusWaitingSession, store.StatusReady))
		if err != nil {
			return fmt.Errorf("refresh: query pending for peer: %w", err)
		}
		if len(pending) == 0 {
			if _, err := s.messaging.Enqueue(ctx, owner, peerID, store.MessageKeepAlive, "", nil, nil); err != nil {
				return fmt.Errorf("refresh: enqueue keep-alive: %w", err)
			}
		}
		touched[peerID] = struct{}{}
	}

	for _, d := range discussions {
		if !d.WeAccepted {
			continue
		}
		switch s.ratchet.PeerSessionStatus(d.ContactUserID) {
		case ratchet.Killed, ratchet.NoSession, ratchet.UnknownPeer:
			if s.bus != nil {
				s.bus.Emit(events.Event{Type: events.SessionRenewalNeeded, OwnerUserID: owner, ContactUserID: d.ContactUserID})
			}
		case ratchet.PeerRequested:
			err := fmt.Errorf("refresh: %w: peer-requested session on an accepted discussion", gerrors.ErrInvariantViolation)
			if s.log != nil {
				s.log.Error("refresh: invariant violation", logger.Any("peer", d.ContactUserID), logger.Error(err))
			}
			if s.bus != nil {
				s.bus.Emit(events.Event{Type: events.Error, OwnerUserID: owner, ContactUserID: d.ContactUserID, Err: err})
			}
		default:
			touched[d.ContactUserID] = struct{}{}
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentDrains)
	for peerID := range touched {
		peerID := peerID
		g.Go(func() error {
			if _, err := s.messaging.ProcessSendQueueForContact(gctx, owner, peerID); err != nil {
				return fmt.Errorf("refresh: drain queue for peer %s: %w", peerID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if s.log != nil {
		s.log.Debug("refresh: pass complete", logger.String("pass", passID), logger.Int("touched", len(touched)))
	}
	return nil
}
