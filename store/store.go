package store

import (
	"context"
	"time"

	"github.com/gossip-project/gossip-client/identity"
)

// Store is the durable persistence contract. Every write
// is atomic at the row-group level described per method; readers see
// a consistent snapshot within a single call. Implementations are
// free to choose any storage engine (relational, embedded K/V, or
// in-memory) so long as these contracts hold.
type Store interface {
	// Profile

	GetProfile(ctx context.Context, owner identity.ID) (*UserProfile, error)
	PutProfile(ctx context.Context, p *UserProfile) error

	// Contacts

	GetContact(ctx context.Context, owner, contactUserID identity.ID) (*Contact, error)
	ListContacts(ctx context.Context, owner identity.ID) ([]*Contact, error)
	PutContact(ctx context.Context, c *Contact) error
	// DeleteContact cascades to the contact's discussion and messages.
	DeleteContact(ctx context.Context, owner, contactUserID identity.ID) error

	// Discussions

	GetDiscussion(ctx context.Context, owner, contactUserID identity.ID) (*Discussion, error)
	// ListDiscussions returns discussions sorted by LastMessageTimestamp
	// desc, ties broken by CreatedAt desc, null timestamps sorted last.
	ListDiscussions(ctx context.Context, owner identity.ID) ([]*Discussion, error)
	PutDiscussion(ctx context.Context, d *Discussion) error

	// Messages

	// AddMessage inserts m, returning its assigned ID, and atomically
	// updates the owning discussion's LastMessage* fields; if
	// m.Direction is Incoming it also increments the discussion's
	// UnreadCount.
	AddMessage(ctx context.Context, m *Message) (int64, error)
	UpdateMessage(ctx context.Context, m *Message) error
	GetMessage(ctx context.Context, owner identity.ID, id int64) (*Message, error)
	// QueryOutgoingForPeer returns OUTGOING messages for the peer whose
	// status is a member of statuses, sorted by Timestamp ascending.
	QueryOutgoingForPeer(ctx context.Context, owner, contactUserID identity.ID, statuses OutgoingStatusSet) ([]*Message, error)
	// FindMessageByMessageID looks up an INCOMING message with the
	// given on-wire MessageID inserted within the last window,
	// for dedup.
	FindMessageByMessageID(ctx context.Context, owner, contactUserID identity.ID, id MessageID, window time.Duration) (*Message, error)
	// FindRecentIncomingByContent is the legacy dedup fallback for
	// messages lacking a MessageID: matches on content within window.
	FindRecentIncomingByContent(ctx context.Context, owner, contactUserID identity.ID, content string, window time.Duration) (*Message, error)
	// MarkDelivered transitions every DELIVERED incoming message for
	// the peer to READ and zeroes the discussion's UnreadCount.
	MarkDelivered(ctx context.Context, owner, contactUserID identity.ID) error
	// ListOutgoingBySeeker returns outgoing messages (any status) that
	// carry the given seeker, for ack resolution.
	ListOutgoingBySeeker(ctx context.Context, owner identity.ID, seeker Seeker) ([]*Message, error)
	// ResetOutgoingForPeer transitions every outgoing message in
	// statuses to WAITING_SESSION, clearing Seeker/Encrypted/WhenToSend.
	ResetOutgoingForPeer(ctx context.Context, owner, contactUserID identity.ID, statuses OutgoingStatusSet) error

	// Pending buffers

	PutPendingEncryptedMessage(ctx context.Context, m *PendingEncryptedMessage) error
	ListPendingEncryptedMessages(ctx context.Context, owner identity.ID) ([]*PendingEncryptedMessage, error)
	DeletePendingEncryptedMessage(ctx context.Context, owner identity.ID, seeker Seeker) error
	PurgeExpiredPendingEncryptedMessages(ctx context.Context, owner identity.ID, ttl time.Duration) error

	PutPendingAnnouncement(ctx context.Context, a *PendingAnnouncement) error
	ListPendingAnnouncements(ctx context.Context, owner identity.ID) ([]*PendingAnnouncement, error)
	DeletePendingAnnouncement(ctx context.Context, owner identity.ID, counter uint64) error

	// ActiveSeeker snapshot

	// ReplaceActiveSeekers atomically truncates and re-inserts the
	// active-seeker snapshot for owner.
	ReplaceActiveSeekers(ctx context.Context, owner identity.ID, seekers []Seeker) error
	ListActiveSeekers(ctx context.Context, owner identity.ID) ([]Seeker, error)

	Close() error
}
