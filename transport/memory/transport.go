// Package memory is an in-process reference Transport: a real
// announcement/message board backed by maps, with injectable
// failure/latency hooks for exercising retry and timeout paths in
// tests. The injectable hooks are func fields consulted before the
// default behavior, wrapping a working implementation instead of
// replacing it outright.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gossip-project/gossip-client/gerrors"
	"github.com/gossip-project/gossip-client/store"
	"github.com/gossip-project/gossip-client/transport"
)

// Transport is an in-memory bulletin node shared by every client that
// points at the same instance — tests construct one Transport and
// hand it to multiple SDK instances to simulate peer-to-peer delivery.
type Transport struct {
	mu sync.Mutex

	announcements []transport.AnnouncementEntry
	messages      map[store.Seeker][]byte
	publicKeys    map[[32]byte][]byte

	nodeURL string

	// Fault injection, consulted before the default behavior of each
	// method; returning a non-nil error simulates a transport failure.
	// Nil means no fault injected.
	BeforeSendAnnouncement func() error
	BeforeFetchAnnouncements func() error
	BeforeSendMessage       func() error
	BeforeFetchMessages     func() error

	// Latency, if non-zero, is slept (honoring ctx cancellation)
	// before every call completes, to exercise timeout handling.
	Latency time.Duration
}

// New constructs an empty in-memory bulletin node.
func New() *Transport {
	return &Transport{
		messages:   make(map[store.Seeker][]byte),
		publicKeys: make(map[[32]byte][]byte),
	}
}

func (t *Transport) sleep(ctx context.Context) error {
	if t.Latency == 0 {
		return nil
	}
	select {
	case <-time.After(t.Latency):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Transport) SendAnnouncement(ctx context.Context, data []byte) (uint64, error) {
	if err := t.sleep(ctx); err != nil {
		return 0, err
	}
	if t.BeforeSendAnnouncement != nil {
		if err := t.BeforeSendAnnouncement(); err != nil {
			return 0, fmt.Errorf("%w: %v", gerrors.ErrTransport, err)
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	counter := uint64(len(t.announcements))
	cp := make([]byte, len(data))
	copy(cp, data)
	t.announcements = append(t.announcements, transport.AnnouncementEntry{Counter: counter, Data: cp})
	return counter, nil
}

func (t *Transport) FetchAnnouncements(ctx context.Context, opts transport.FetchAnnouncementsOptions) ([]transport.AnnouncementEntry, error) {
	if err := t.sleep(ctx); err != nil {
		return nil, err
	}
	if t.BeforeFetchAnnouncements != nil {
		if err := t.BeforeFetchAnnouncements(); err != nil {
			return nil, fmt.Errorf("%w: %v", gerrors.ErrTransport, err)
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	start := uint64(0)
	if opts.Cursor != nil {
		start = *opts.Cursor + 1
	}

	var out []transport.AnnouncementEntry
	for _, a := range t.announcements {
		if a.Counter < start {
			continue
		}
		out = append(out, a)
		if opts.Limit > 0 && len(out) >= opts.Limit {
			break
		}
	}
	return out, nil
}

func (t *Transport) SendMessage(ctx context.Context, seeker store.Seeker, ciphertext []byte) error {
	if err := t.sleep(ctx); err != nil {
		return err
	}
	if t.BeforeSendMessage != nil {
		if err := t.BeforeSendMessage(); err != nil {
			return fmt.Errorf("%w: %v", gerrors.ErrTransport, err)
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	cp := make([]byte, len(ciphertext))
	copy(cp, ciphertext)
	t.messages[seeker] = cp
	return nil
}

func (t *Transport) FetchMessages(ctx context.Context, seekers []store.Seeker) ([]transport.MessageEntry, error) {
	if err := t.sleep(ctx); err != nil {
		return nil, err
	}
	if t.BeforeFetchMessages != nil {
		if err := t.BeforeFetchMessages(); err != nil {
			return nil, fmt.Errorf("%w: %v", gerrors.ErrTransport, err)
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	var out []transport.MessageEntry
	for _, sk := range seekers {
		if ct, ok := t.messages[sk]; ok {
			out = append(out, transport.MessageEntry{Seeker: sk, Ciphertext: ct})
		}
	}
	sort.Slice(out, func(i, j int) bool { return string(out[i].Seeker[:]) < string(out[j].Seeker[:]) })
	return out, nil
}

func (t *Transport) PostPublicKey(ctx context.Context, pk []byte) (string, error) {
	if err := t.sleep(ctx); err != nil {
		return "", err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	var key [32]byte
	copy(key[:], pk)
	cp := make([]byte, len(pk))
	copy(cp, pk)
	t.publicKeys[key] = cp
	return fmt.Sprintf("%x", key[:8]), nil
}

func (t *Transport) FetchPublicKeyByUserID(ctx context.Context, userID [32]byte) ([]byte, error) {
	if err := t.sleep(ctx); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	pk, ok := t.publicKeys[userID]
	if !ok {
		return nil, fmt.Errorf("%w: %x", gerrors.ErrPublicKeyNotFound, userID[:8])
	}
	return pk, nil
}

func (t *Transport) ChangeNode(ctx context.Context, url string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nodeURL = url
	return nil
}

// NodeURL returns the most recently configured node URL, for tests.
func (t *Transport) NodeURL() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.nodeURL
}

var _ transport.Transport = (*Transport)(nil)
