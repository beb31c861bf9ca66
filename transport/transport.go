// Package transport is the bulletin-node client the engine consumes
// to publish and fetch announcements and messages. It is treated as
// an external dependency: callers never reach past this interface to
// an HTTP client or socket directly.
package transport

import (
	"context"
	"time"

	"github.com/gossip-project/gossip-client/store"
)

// AnnouncementEntry is one announcement of a fetched, counter-ordered
// page.
type AnnouncementEntry struct {
	Counter uint64
	Data    []byte
}

// MessageEntry is a single message-board fetch result.
type MessageEntry struct {
	Seeker     store.Seeker
	Ciphertext []byte
}

// FetchAnnouncementsOptions bounds a single announcement page fetch.
type FetchAnnouncementsOptions struct {
	Limit  int
	Cursor *uint64
}

// Transport is the bulletin-node client contract.
type Transport interface {
	// SendAnnouncement publishes data to the announcement board and
	// returns the counter it was assigned.
	SendAnnouncement(ctx context.Context, data []byte) (counter uint64, err error)

	// FetchAnnouncements returns the next counter-ordered page of
	// announcements starting after opts.Cursor.
	FetchAnnouncements(ctx context.Context, opts FetchAnnouncementsOptions) ([]AnnouncementEntry, error)

	// SendMessage publishes ciphertext under seeker on the message board.
	SendMessage(ctx context.Context, seeker store.Seeker, ciphertext []byte) error

	// FetchMessages returns the ciphertext currently published under
	// each of seekers; seekers with nothing published are omitted.
	FetchMessages(ctx context.Context, seekers []store.Seeker) ([]MessageEntry, error)

	// PostPublicKey publishes raw public-key bytes and returns their
	// content hash.
	PostPublicKey(ctx context.Context, pk []byte) (hash string, err error)

	// FetchPublicKeyByUserID resolves a user ID to its currently
	// published public-key bytes. Returns gerrors.ErrPublicKeyNotFound
	// if none has been published.
	FetchPublicKeyByUserID(ctx context.Context, userID [32]byte) ([]byte, error)

	// ChangeNode switches the bulletin node this client talks to.
	ChangeNode(ctx context.Context, url string) error
}

// Timeout is the default per-call deadline applied by callers that
// don't set their own.
const Timeout = 15 * time.Second
