package messaging

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
	"github.com/gossip-project/gossip-client/ratchet"
	"github.com/gossip-project/gossip-client/store"
	"github.com/gossip-project/gossip-client/store/memory"
	"github.com/gossip-project/gossip-client/transport"
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

type harness struct {
	owner identity.ID
	store store.Store
	ratch *ratchet.ChaChaRatchet
	svc   *Service
}

func newHarness(t *testing.T, priv, pub []byte, id identity.ID, tr transport.Transport) *harness {
	t.Helper()
	st := memory.New()
	r := ratchet.New(priv, pub, noopPersist)
	svc := New(st, r, tr, events.New(), Config{RetryDelay: time.Minute, DeduplicationWindow: 30 * time.Second}, logger.Nop(), metrics.New())
	return &harness{owner: id, store: st, ratch: r, svc: svc}
}

func TestEnqueueAndSendAndReceiveRoundTrip(t *testing.T) {
	ctx := context.Background()
	aPriv, aPub := genKeypair(t)
	bPriv, bPub := genKeypair(t)
	var aID, bID identity.ID
	copy(aID[:], aPub)
	copy(bID[:], bPub)

	tr := transportmemory.New()
	a := newHarness(t, aPriv, aPub, aID, tr)
	b := newHarness(t, bPriv, bPub, bID, tr)

	require.NoError(t, a.store.PutDiscussion(ctx, &store.Discussion{OwnerUserID: aID, ContactUserID: bID, CreatedAt: time.Now()}))
	require.NoError(t, b.store.PutDiscussion(ctx, &store.Discussion{OwnerUserID: bID, ContactUserID: aID, CreatedAt: time.Now()}))

	announceA, err := a.ratch.EstablishOutgoingSession(ctx, bID, bPub, nil)
	require.NoError(t, err)
	_, _, err = b.ratch.FeedIncomingAnnouncement(ctx, announceA)
	require.NoError(t, err)
	announceB, err := b.ratch.EstablishOutgoingSession(ctx, aID, aPub, nil)
	require.NoError(t, err)
	_, _, err = a.ratch.FeedIncomingAnnouncement(ctx, announceB)
	require.NoError(t, err)

	require.Equal(t, ratchet.Active, a.ratch.PeerSessionStatus(bID))
	require.Equal(t, ratchet.Active, b.ratch.PeerSessionStatus(aID))

	_, err = b.ratch.Refresh(ctx)
	require.NoError(t, err)

	m, err := a.svc.Enqueue(ctx, aID, bID, store.MessageText, "hello bob", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, store.StatusWaitingSession, m.Status)

	sent, err := a.svc.ProcessSendQueueForContact(ctx, aID, bID)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	require.NoError(t, b.svc.ProcessInboundPipeline(ctx, bID))

	discussion, err := b.store.GetDiscussion(ctx, bID, aID)
	require.NoError(t, err)
	assert.Equal(t, 1, discussion.UnreadCount)
	assert.Equal(t, "hello bob", discussion.LastMessageContent)
}

func TestProcessSendQueueForContactSkipsWithoutActiveSession(t *testing.T) {
	ctx := context.Background()
	aPriv, aPub := genKeypair(t)
	var bID identity.ID
	bID[0] = 0xAA

	tr := transportmemory.New()
	a := newHarness(t, aPriv, aPub, identity.ID{}, tr)

	_, err := a.svc.Enqueue(ctx, identity.ID{}, bID, store.MessageText, "hi", nil, nil)
	require.NoError(t, err)

	sent, err := a.svc.ProcessSendQueueForContact(ctx, identity.ID{}, bID)
	require.NoError(t, err)
	assert.Equal(t, 0, sent)
}

func TestInboundPipelineDedupsRepeatedMessageID(t *testing.T) {
	ctx := context.Background()
	aPriv, aPub := genKeypair(t)
	bPriv, bPub := genKeypair(t)
	var aID, bID identity.ID
	copy(aID[:], aPub)
	copy(bID[:], bPub)

	tr := transportmemory.New()
	a := newHarness(t, aPriv, aPub, aID, tr)
	b := newHarness(t, bPriv, bPub, bID, tr)
	require.NoError(t, a.store.PutDiscussion(ctx, &store.Discussion{OwnerUserID: aID, ContactUserID: bID, CreatedAt: time.Now()}))
	require.NoError(t, b.store.PutDiscussion(ctx, &store.Discussion{OwnerUserID: bID, ContactUserID: aID, CreatedAt: time.Now()}))

	announceA, err := a.ratch.EstablishOutgoingSession(ctx, bID, bPub, nil)
	require.NoError(t, err)
	_, _, err = b.ratch.FeedIncomingAnnouncement(ctx, announceA)
	require.NoError(t, err)
	announceB, err := b.ratch.EstablishOutgoingSession(ctx, aID, aPub, nil)
	require.NoError(t, err)
	_, _, err = a.ratch.FeedIncomingAnnouncement(ctx, announceB)
	require.NoError(t, err)
	_, err = b.ratch.Refresh(ctx)
	require.NoError(t, err)

	_, err = a.svc.Enqueue(ctx, aID, bID, store.MessageText, "only once", nil, nil)
	require.NoError(t, err)
	_, err = a.svc.ProcessSendQueueForContact(ctx, aID, bID)
	require.NoError(t, err)

	require.NoError(t, b.svc.ProcessInboundPipeline(ctx, bID))
	require.NoError(t, b.svc.ProcessInboundPipeline(ctx, bID))

	discussion, err := b.store.GetDiscussion(ctx, bID, aID)
	require.NoError(t, err)
	assert.Equal(t, 1, discussion.UnreadCount)
}

// establishActiveSession wires up mutual ratchet sessions between two
// already-discussioned harnesses so their ProcessSendQueueForContact/
// ProcessInboundPipeline calls can actually exchange traffic.
func establishActiveSession(t *testing.T, ctx context.Context, a, b *harness, aPub, bPub []byte) {
	t.Helper()
	announceA, err := a.ratch.EstablishOutgoingSession(ctx, b.owner, bPub, nil)
	require.NoError(t, err)
	_, _, err = b.ratch.FeedIncomingAnnouncement(ctx, announceA)
	require.NoError(t, err)
	announceB, err := b.ratch.EstablishOutgoingSession(ctx, a.owner, aPub, nil)
	require.NoError(t, err)
	_, _, err = a.ratch.FeedIncomingAnnouncement(ctx, announceB)
	require.NoError(t, err)
	_, err = b.ratch.Refresh(ctx)
	require.NoError(t, err)
}

func TestInboundPipelineKeepsDistinctMessageIDsForSameContent(t *testing.T) {
	ctx := context.Background()
	aPriv, aPub := genKeypair(t)
	bPriv, bPub := genKeypair(t)
	var aID, bID identity.ID
	copy(aID[:], aPub)
	copy(bID[:], bPub)

	tr := transportmemory.New()
	a := newHarness(t, aPriv, aPub, aID, tr)
	b := newHarness(t, bPriv, bPub, bID, tr)
	require.NoError(t, a.store.PutDiscussion(ctx, &store.Discussion{OwnerUserID: aID, ContactUserID: bID, CreatedAt: time.Now()}))
	require.NoError(t, b.store.PutDiscussion(ctx, &store.Discussion{OwnerUserID: bID, ContactUserID: aID, CreatedAt: time.Now()}))
	establishActiveSession(t, ctx, a, b, aPub, bPub)

	m1, err := a.svc.Enqueue(ctx, aID, bID, store.MessageText, "repeat me", nil, nil)
	require.NoError(t, err)
	_, err = a.svc.ProcessSendQueueForContact(ctx, aID, bID)
	require.NoError(t, err)
	require.NoError(t, b.svc.ProcessInboundPipeline(ctx, bID))

	m2, err := a.svc.Enqueue(ctx, aID, bID, store.MessageText, "repeat me", nil, nil)
	require.NoError(t, err)
	require.NotEqual(t, m1.MessageID, m2.MessageID, "Enqueue must mint a fresh messageId per call")
	_, err = a.svc.ProcessSendQueueForContact(ctx, aID, bID)
	require.NoError(t, err)
	require.NoError(t, b.svc.ProcessInboundPipeline(ctx, bID))

	first, err := b.store.FindMessageByMessageID(ctx, bID, aID, m1.MessageID, time.Hour)
	require.NoError(t, err)
	second, err := b.store.FindMessageByMessageID(ctx, bID, aID, m2.MessageID, time.Hour)
	require.NoError(t, err)
	require.NotNil(t, first, "distinct messageIds with identical content must not be deduped")
	require.NotNil(t, second, "distinct messageIds with identical content must not be deduped")
	assert.NotEqual(t, first.ID, second.ID)
}

func TestInboundPipelineDedupIsScopedPerPeer(t *testing.T) {
	ctx := context.Background()
	aPriv, aPub := genKeypair(t)
	cPriv, cPub := genKeypair(t)
	bPriv, bPub := genKeypair(t)
	var aID, cID, bID identity.ID
	copy(aID[:], aPub)
	copy(cID[:], cPub)
	copy(bID[:], bPub)

	tr := transportmemory.New()
	a := newHarness(t, aPriv, aPub, aID, tr)
	c := newHarness(t, cPriv, cPub, cID, tr)
	b := newHarness(t, bPriv, bPub, bID, tr)
	require.NoError(t, a.store.PutDiscussion(ctx, &store.Discussion{OwnerUserID: aID, ContactUserID: bID, CreatedAt: time.Now()}))
	require.NoError(t, b.store.PutDiscussion(ctx, &store.Discussion{OwnerUserID: bID, ContactUserID: aID, CreatedAt: time.Now()}))
	require.NoError(t, c.store.PutDiscussion(ctx, &store.Discussion{OwnerUserID: cID, ContactUserID: bID, CreatedAt: time.Now()}))
	require.NoError(t, b.store.PutDiscussion(ctx, &store.Discussion{OwnerUserID: bID, ContactUserID: cID, CreatedAt: time.Now()}))
	establishActiveSession(t, ctx, a, b, aPub, bPub)
	establishActiveSession(t, ctx, c, b, cPub, bPub)

	sharedMID := store.MessageID{0xAA, 0xBB, 0xCC}

	_, err := a.store.AddMessage(ctx, &store.Message{
		OwnerUserID: aID, ContactUserID: bID, Content: "hi from both", MessageID: sharedMID,
		Type: store.MessageText, Direction: store.DirectionOutgoing, Status: store.StatusWaitingSession,
		Timestamp: time.Now(),
	})
	require.NoError(t, err)
	_, err = c.store.AddMessage(ctx, &store.Message{
		OwnerUserID: cID, ContactUserID: bID, Content: "hi from both", MessageID: sharedMID,
		Type: store.MessageText, Direction: store.DirectionOutgoing, Status: store.StatusWaitingSession,
		Timestamp: time.Now(),
	})
	require.NoError(t, err)

	_, err = a.svc.ProcessSendQueueForContact(ctx, aID, bID)
	require.NoError(t, err)
	_, err = c.svc.ProcessSendQueueForContact(ctx, cID, bID)
	require.NoError(t, err)
	require.NoError(t, b.svc.ProcessInboundPipeline(ctx, bID))

	fromA, err := b.store.FindMessageByMessageID(ctx, bID, aID, sharedMID, time.Hour)
	require.NoError(t, err)
	fromC, err := b.store.FindMessageByMessageID(ctx, bID, cID, sharedMID, time.Hour)
	require.NoError(t, err)
	require.NotNil(t, fromA, "identical messageId from a different peer must not be deduped away")
	require.NotNil(t, fromC, "identical messageId from a different peer must not be deduped away")
	assert.NotEqual(t, fromA.ID, fromC.ID)
}
