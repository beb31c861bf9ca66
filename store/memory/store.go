// Package memory implements store.Store entirely in process memory:
// one mutex-guarded map per entity kind, single-process semantics.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gossip-project/gossip-client/gerrors"
	"github.com/gossip-project/gossip-client/identity"
	"github.com/gossip-project/gossip-client/store"
)

type contactKey struct {
	owner   identity.ID
	contact identity.ID
}

// Store implements store.Store with in-memory maps guarded by a
// single mutex. Single-process semantics only: the transactional
// contract in the interface is satisfied because every method holds
// the lock for its full duration.
type Store struct {
	mu sync.Mutex

	profiles      map[identity.ID]*store.UserProfile
	contacts      map[contactKey]*store.Contact
	discussions   map[contactKey]*store.Discussion
	messages      map[identity.ID]map[int64]*store.Message
	nextMessageID map[identity.ID]int64
	pendingEnc    map[identity.ID]map[store.Seeker]*store.PendingEncryptedMessage
	pendingAnn    map[identity.ID]map[uint64]*store.PendingAnnouncement
	activeSeekers map[identity.ID][]store.Seeker
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		profiles:      make(map[identity.ID]*store.UserProfile),
		contacts:      make(map[contactKey]*store.Contact),
		discussions:   make(map[contactKey]*store.Discussion),
		messages:      make(map[identity.ID]map[int64]*store.Message),
		nextMessageID: make(map[identity.ID]int64),
		pendingEnc:    make(map[identity.ID]map[store.Seeker]*store.PendingEncryptedMessage),
		pendingAnn:    make(map[identity.ID]map[uint64]*store.PendingAnnouncement),
		activeSeekers: make(map[identity.ID][]store.Seeker),
	}
}

func (s *Store) Close() error { return nil }

func (s *Store) GetProfile(_ context.Context, owner identity.ID) (*store.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[owner]
	if !ok {
		return nil, fmt.Errorf("profile not found: %s: %w", owner, gerrors.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (s *Store) PutProfile(_ context.Context, p *store.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.profiles[p.UserID] = &cp
	return nil
}

func (s *Store) GetContact(_ context.Context, owner, contactUserID identity.ID) (*store.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contacts[contactKey{owner, contactUserID}]
	if !ok {
		return nil, fmt.Errorf("contact not found: %s: %w", contactUserID, gerrors.ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

func (s *Store) ListContacts(_ context.Context, owner identity.ID) ([]*store.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*store.Contact
	for k, c := range s.contacts {
		if k.owner == owner {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) PutContact(_ context.Context, c *store.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.contacts[contactKey{c.OwnerUserID, c.UserID}] = &cp
	return nil
}

func (s *Store) DeleteContact(_ context.Context, owner, contactUserID identity.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := contactKey{owner, contactUserID}
	delete(s.contacts, key)
	delete(s.discussions, key)
	if msgs, ok := s.messages[owner]; ok {
		for id, m := range msgs {
			if m.ContactUserID == contactUserID {
				delete(msgs, id)
			}
		}
	}
	return nil
}

func (s *Store) GetDiscussion(_ context.Context, owner, contactUserID identity.ID) (*store.Discussion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.discussions[contactKey{owner, contactUserID}]
	if !ok {
		return nil, fmt.Errorf("discussion not found: %s: %w", contactUserID, gerrors.ErrNotFound)
	}
	cp := *d
	return &cp, nil
}

func (s *Store) ListDiscussions(_ context.Context, owner identity.ID) ([]*store.Discussion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*store.Discussion
	for k, d := range s.discussions {
		if k.owner == owner {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch {
		case a.LastMessageTimestamp == nil && b.LastMessageTimestamp == nil:
			return a.CreatedAt.After(b.CreatedAt)
		case a.LastMessageTimestamp == nil:
			return false
		case b.LastMessageTimestamp == nil:
			return true
		case !a.LastMessageTimestamp.Equal(*b.LastMessageTimestamp):
			return a.LastMessageTimestamp.After(*b.LastMessageTimestamp)
		default:
			return a.CreatedAt.After(b.CreatedAt)
		}
	})
	return out, nil
}

func (s *Store) PutDiscussion(_ context.Context, d *store.Discussion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *d
	s.discussions[contactKey{d.OwnerUserID, d.ContactUserID}] = &cp
	return nil
}

func (s *Store) AddMessage(_ context.Context, m *store.Message) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextMessageID[m.OwnerUserID]++
	id := s.nextMessageID[m.OwnerUserID]
	cp := *m
	cp.ID = id

	if s.messages[m.OwnerUserID] == nil {
		s.messages[m.OwnerUserID] = make(map[int64]*store.Message)
	}
	s.messages[m.OwnerUserID][id] = &cp

	key := contactKey{m.OwnerUserID, m.ContactUserID}
	d, ok := s.discussions[key]
	if ok {
		d.LastMessageID = id
		d.LastMessageContent = m.Content
		ts := m.Timestamp
		d.LastMessageTimestamp = &ts
		if m.Direction == store.DirectionIncoming {
			d.UnreadCount++
		}
	}

	m.ID = id
	return id, nil
}

func (s *Store) UpdateMessage(_ context.Context, m *store.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	owned, ok := s.messages[m.OwnerUserID]
	if !ok {
		return fmt.Errorf("message not found: %d: %w", m.ID, gerrors.ErrNotFound)
	}
	if _, ok := owned[m.ID]; !ok {
		return fmt.Errorf("message not found: %d: %w", m.ID, gerrors.ErrNotFound)
	}
	cp := *m
	owned[m.ID] = &cp
	return nil
}

func (s *Store) GetMessage(_ context.Context, owner identity.ID, id int64) (*store.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[owner][id]
	if !ok {
		return nil, fmt.Errorf("message not found: %d: %w", id, gerrors.ErrNotFound)
	}
	cp := *m
	return &cp, nil
}

func (s *Store) QueryOutgoingForPeer(_ context.Context, owner, contactUserID identity.ID, statuses store.OutgoingStatusSet) ([]*store.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*store.Message
	for _, m := range s.messages[owner] {
		if m.ContactUserID != contactUserID || m.Direction != store.DirectionOutgoing {
			continue
		}
		if !statuses.Contains(m.Status) {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *Store) FindMessageByMessageID(_ context.Context, owner, contactUserID identity.ID, id store.MessageID, window time.Duration) (*store.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for _, m := range s.messages[owner] {
		if m.ContactUserID != contactUserID || m.Direction != store.DirectionIncoming {
			continue
		}
		if m.MessageID != id {
			continue
		}
		if now.Sub(m.Timestamp) > window {
			continue
		}
		cp := *m
		return &cp, nil
	}
	return nil, nil
}

func (s *Store) FindRecentIncomingByContent(_ context.Context, owner, contactUserID identity.ID, content string, window time.Duration) (*store.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for _, m := range s.messages[owner] {
		if m.ContactUserID != contactUserID || m.Direction != store.DirectionIncoming {
			continue
		}
		if m.Content != content {
			continue
		}
		d := now.Sub(m.Timestamp)
		if d < 0 {
			d = -d
		}
		if d > window {
			continue
		}
		cp := *m
		return &cp, nil
	}
	return nil, nil
}

func (s *Store) MarkDelivered(_ context.Context, owner, contactUserID identity.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages[owner] {
		if m.ContactUserID == contactUserID && m.Direction == store.DirectionIncoming && m.Status == store.StatusDelivered {
			m.Status = store.StatusRead
		}
	}
	if d, ok := s.discussions[contactKey{owner, contactUserID}]; ok {
		d.UnreadCount = 0
	}
	return nil
}

func (s *Store) ListOutgoingBySeeker(_ context.Context, owner identity.ID, seeker store.Seeker) ([]*store.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*store.Message
	for _, m := range s.messages[owner] {
		if m.Direction == store.DirectionOutgoing && m.Seeker != nil && *m.Seeker == seeker {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) ResetOutgoingForPeer(_ context.Context, owner, contactUserID identity.ID, statuses store.OutgoingStatusSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages[owner] {
		if m.ContactUserID != contactUserID || m.Direction != store.DirectionOutgoing {
			continue
		}
		if !statuses.Contains(m.Status) {
			continue
		}
		m.Status = store.StatusWaitingSession
		m.Seeker = nil
		m.Encrypted = nil
		m.WhenToSend = nil
	}
	return nil
}

func (s *Store) PutPendingEncryptedMessage(_ context.Context, m *store.PendingEncryptedMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pendingEnc[m.OwnerUserID] == nil {
		s.pendingEnc[m.OwnerUserID] = make(map[store.Seeker]*store.PendingEncryptedMessage)
	}
	cp := *m
	s.pendingEnc[m.OwnerUserID][m.Seeker] = &cp
	return nil
}

func (s *Store) ListPendingEncryptedMessages(_ context.Context, owner identity.ID) ([]*store.PendingEncryptedMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*store.PendingEncryptedMessage
	for _, m := range s.pendingEnc[owner] {
		cp := *m
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) DeletePendingEncryptedMessage(_ context.Context, owner identity.ID, seeker store.Seeker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pendingEnc[owner], seeker)
	return nil
}

func (s *Store) PurgeExpiredPendingEncryptedMessages(_ context.Context, owner identity.ID, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for seeker, m := range s.pendingEnc[owner] {
		if now.Sub(m.FetchedAt) > ttl {
			delete(s.pendingEnc[owner], seeker)
		}
	}
	return nil
}

func (s *Store) PutPendingAnnouncement(_ context.Context, a *store.PendingAnnouncement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pendingAnn[a.OwnerUserID] == nil {
		s.pendingAnn[a.OwnerUserID] = make(map[uint64]*store.PendingAnnouncement)
	}
	cp := *a
	s.pendingAnn[a.OwnerUserID][a.Counter] = &cp
	return nil
}

func (s *Store) ListPendingAnnouncements(_ context.Context, owner identity.ID) ([]*store.PendingAnnouncement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*store.PendingAnnouncement
	for _, a := range s.pendingAnn[owner] {
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Counter < out[j].Counter })
	return out, nil
}

func (s *Store) DeletePendingAnnouncement(_ context.Context, owner identity.ID, counter uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pendingAnn[owner], counter)
	return nil
}

func (s *Store) ReplaceActiveSeekers(_ context.Context, owner identity.ID, seekers []store.Seeker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]store.Seeker, len(seekers))
	copy(cp, seekers)
	s.activeSeekers[owner] = cp
	return nil
}

func (s *Store) ListActiveSeekers(_ context.Context, owner identity.ID) ([]store.Seeker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]store.Seeker, len(s.activeSeekers[owner]))
	copy(cp, s.activeSeekers[owner])
	return cp, nil
}
