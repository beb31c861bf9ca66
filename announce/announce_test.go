package announce

import (
	"context"
	"crypto/rand"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/curve25519"

	"github.com/gossip-project/gossip-client/events"
	"github.com/gossip-project/gossip-client/identity"
	"github.com/gossip-project/gossip-client/internal/logger"
	"github.com/gossip-project/gossip-client/internal/metrics"
	"github.com/gossip-project/gossip-client/messaging"
	"github.com/gossip-project/gossip-client/ratchet"
	"github.com/gossip-project/gossip-client/store"
	"github.com/gossip-project/gossip-client/store/memory"
	transportmemory "github.com/gossip-project/gossip-client/transport/memory"
)

func genKeypair(t *testing.T) (priv, pub []byte) {
	t.Helper()
	priv = make([]byte, curve25519.ScalarSize)
	_, err := io.ReadFull(rand.Reader, priv)
	require.NoError(t, err)
	pub, err = curve25519.X25519(priv, curve25519.Basepoint)
	require.NoError(t, err)
	return priv, pub
}

func noopPersist(ctx context.Context) error { return nil }

type party struct {
	id    identity.ID
	store store.Store
	ratch *ratchet.ChaChaRatchet
	msg   *messaging.Service
	bus   *events.Bus
	svc   *Service
}

func newParty(t *testing.T, tr *transportmemory.Transport) *party {
	t.Helper()
	priv, pub := genKeypair(t)
	var id identity.ID
	copy(id[:], pub)

	st := memory.New()
	require.NoError(t, st.PutProfile(context.Background(), &store.UserProfile{UserID: id}))

	r := ratchet.New(priv, pub, noopPersist)
	m := messaging.New(st, r, tr, events.New(), messaging.Config{RetryDelay: time.Minute, DeduplicationWindow: 30 * time.Second}, logger.Nop(), metrics.New())
	bus := events.New()
	svc := New(st, r, tr, m, bus, Config{RetryDelay: time.Minute}, logger.Nop(), metrics.New())
	return &party{id: id, store: st, ratch: r, msg: m, bus: bus, svc: svc}
}

func TestFetchAndProcessCreatesContactAndDiscussionOnNewRequest(t *testing.T) {
	ctx := context.Background()
	tr := transportmemory.New()
	a := newParty(t, tr)
	b := newParty(t, tr)

	var requested bool
	b.bus.On(events.DiscussionRequest, func(e events.Event) { requested = true })

	announceBytes, err := a.ratch.EstablishOutgoingSession(ctx, b.id, pubOf(b), []byte{})
	require.NoError(t, err)
	_, err = tr.SendAnnouncement(ctx, announceBytes)
	require.NoError(t, err)

	require.NoError(t, b.svc.FetchAndProcess(ctx, b.id))

	contact, err := b.store.GetContact(ctx, b.id, a.id)
	require.NoError(t, err)
	require.NotNil(t, contact)

	discussion, err := b.store.GetDiscussion(ctx, b.id, a.id)
	require.NoError(t, err)
	require.NotNil(t, discussion)
	assert.Equal(t, store.DirectionReceived, discussion.Direction)
	assert.False(t, discussion.WeAccepted)
	assert.True(t, requested)

	profile, err := b.store.GetProfile(ctx, b.id)
	require.NoError(t, err)
	require.NotNil(t, profile.LastBulletinCounter)
	assert.Equal(t, uint64(0), *profile.LastBulletinCounter)
}

func TestFetchAndProcessIsIdempotentOnCursor(t *testing.T) {
	ctx := context.Background()
	tr := transportmemory.New()
	a := newParty(t, tr)
	b := newParty(t, tr)

	announceBytes, err := a.ratch.EstablishOutgoingSession(ctx, b.id, pubOf(b), nil)
	require.NoError(t, err)
	_, err = tr.SendAnnouncement(ctx, announceBytes)
	require.NoError(t, err)

	require.NoError(t, b.svc.FetchAndProcess(ctx, b.id))
	require.NoError(t, b.svc.FetchAndProcess(ctx, b.id))

	contacts, err := b.store.ListContacts(ctx, b.id)
	require.NoError(t, err)
	assert.Len(t, contacts, 1)
}

func TestAcceptanceOfPriorRequestActivatesDiscussionAndDrainsQueue(t *testing.T) {
	ctx := context.Background()
	tr := transportmemory.New()
	a := newParty(t, tr)
	b := newParty(t, tr)

	require.NoError(t, a.store.PutContact(ctx, &store.Contact{OwnerUserID: a.id, UserID: b.id, Name: "bob", PublicKey: pubOf(b)}))
	require.NoError(t, a.store.PutDiscussion(ctx, &store.Discussion{
		OwnerUserID: a.id, ContactUserID: b.id, Direction: store.DirectionInitiated, WeAccepted: true, CreatedAt: time.Now(),
	}))

	_, err := a.msg.Enqueue(ctx, a.id, b.id, store.MessageText, "hi bob", nil, nil)
	require.NoError(t, err)

	announceB, err := b.ratch.EstablishOutgoingSession(ctx, a.id, pubOf(a), nil)
	require.NoError(t, err)
	peerPk, _, err := a.ratch.FeedIncomingAnnouncement(ctx, announceB)
	require.NoError(t, err)
	require.Len(t, peerPk, 32)

	_, err = tr.SendAnnouncement(ctx, announceB)
	require.NoError(t, err)
	require.NoError(t, a.svc.FetchAndProcess(ctx, a.id))

	discussion, err := a.store.GetDiscussion(ctx, a.id, b.id)
	require.NoError(t, err)
	assert.True(t, discussion.WeAccepted)

	sent, err := a.store.QueryOutgoingForPeer(ctx, a.id, b.id, store.NewOutgoingStatusSet(store.StatusSent))
	require.NoError(t, err)
	assert.Len(t, sent, 1)
}

func TestPublishClearsSendAnnounceOnSuccess(t *testing.T) {
	ctx := context.Background()
	tr := transportmemory.New()
	a := newParty(t, tr)

	d := &store.Discussion{
		OwnerUserID: a.id, ContactUserID: identity.ID{0xAA},
		SendAnnounce: &store.SendAnnouncement{Bytes: []byte("hello"), WhenToSend: time.Now()},
		CreatedAt:    time.Now(),
	}
	require.NoError(t, a.store.PutDiscussion(ctx, d))

	require.NoError(t, a.svc.Publish(ctx, d))
	assert.Nil(t, d.SendAnnounce)

	stored, err := a.store.GetDiscussion(ctx, a.id, identity.ID{0xAA})
	require.NoError(t, err)
	assert.Nil(t, stored.SendAnnounce)
}

func TestPublishRearmsOnTransportFailure(t *testing.T) {
	ctx := context.Background()
	tr := transportmemory.New()
	a := newParty(t, tr)
	tr.BeforeSendAnnouncement = func() error { return assertErr }

	d := &store.Discussion{
		OwnerUserID: a.id, ContactUserID: identity.ID{0xBB},
		SendAnnounce: &store.SendAnnouncement{Bytes: []byte("hello"), WhenToSend: time.Now()},
		CreatedAt:    time.Now(),
	}
	require.NoError(t, a.store.PutDiscussion(ctx, d))

	require.NoError(t, a.svc.Publish(ctx, d))
	require.NotNil(t, d.SendAnnounce)
	assert.True(t, d.SendAnnounce.WhenToSend.After(time.Now()))
}

func pubOf(p *party) []byte {
	b := make([]byte, len(p.id))
	copy(b, p.id[:])
	return b
}

var assertErr = errAssertFailure{}

type errAssertFailure struct{}

func (errAssertFailure) Error() string { return "injected transport failure" }
