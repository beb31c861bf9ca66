package gossipsdk

import (
	"context"
	"crypto/rand"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/curve25519"

	"github.com/gossip-project/gossip-client/config"
	"github.com/gossip-project/gossip-client/events"
	"github.com/gossip-project/gossip-client/gerrors"
	"github.com/gossip-project/gossip-client/identity"
	"github.com/gossip-project/gossip-client/ratchet"
	"github.com/gossip-project/gossip-client/store"
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

func memoryConfig() config.Config {
	cfg := config.Default()
	cfg.Store.Driver = "memory"
	cfg.Retry.RetryDelay = time.Minute
	cfg.Retry.DeduplicationWindow = 30 * time.Second
	return cfg
}

func TestOpenSessionCreatesProfileAndSendReceiveRoundTrips(t *testing.T) {
	ctx := context.Background()
	tr := transportmemory.New()

	aPriv, aPub := genKeypair(t)
	var aID identity.ID
	copy(aID[:], aPub)
	bPriv, bPub := genKeypair(t)
	var bID identity.ID
	copy(bID[:], bPub)

	aEngine, err := Init(memoryConfig(), tr)
	require.NoError(t, err)
	bEngine, err := Init(memoryConfig(), tr)
	require.NoError(t, err)

	var received *events.Event
	bEngine.On(events.MessageReceived, func(e events.Event) {
		e := e
		received = &e
	})

	aSess, err := aEngine.OpenSession(ctx, OpenSessionParams{Owner: aID, StaticPriv: aPriv, StaticPub: aPub})
	require.NoError(t, err)
	bSess, err := bEngine.OpenSession(ctx, OpenSessionParams{Owner: bID, StaticPriv: bPriv, StaticPub: bPub})
	require.NoError(t, err)

	d, err := aSess.StartDiscussion(ctx, bID, bPub, "alice", "hi bob")
	require.NoError(t, err)
	assert.Equal(t, store.DirectionInitiated, d.Direction)

	require.NoError(t, bSess.SyncAnnouncements(ctx))
	bDiscussions, err := bSess.ListDiscussions(ctx)
	require.NoError(t, err)
	require.Len(t, bDiscussions, 1)
	bDisc := bDiscussions[0]
	assert.Equal(t, aID, bDisc.ContactUserID)

	require.NoError(t, bSess.AcceptDiscussion(ctx, bDisc, aPub))
	require.NoError(t, aSess.SyncAnnouncements(ctx))

	_, err = aSess.SendMessage(ctx, bID, store.MessageText, "hello bob", nil, nil)
	require.NoError(t, err)

	require.NoError(t, bSess.SyncMessages(ctx))
	require.NotNil(t, received, "bob's event bus should have seen MESSAGE_RECEIVED")
	assert.Equal(t, bID, received.OwnerUserID)
	assert.Equal(t, aID, received.ContactUserID)
}

func TestOpenSessionResetsTransientOutgoingOnCrashRecovery(t *testing.T) {
	ctx := context.Background()
	tr := transportmemory.New()
	priv, pub := genKeypair(t)
	var owner identity.ID
	copy(owner[:], pub)
	_, peerPub := genKeypair(t)
	var peer identity.ID
	copy(peer[:], peerPub)

	engine, err := Init(memoryConfig(), tr)
	require.NoError(t, err)

	require.NoError(t, engine.store.PutProfile(ctx, &store.UserProfile{UserID: owner}))
	require.NoError(t, engine.store.PutDiscussion(ctx, &store.Discussion{
		OwnerUserID: owner, ContactUserID: peer,
		Direction: store.DirectionInitiated, WeAccepted: true, CreatedAt: time.Now(),
	}))
	seeker := store.Seeker{0x01}
	_, err = engine.store.AddMessage(ctx, &store.Message{
		OwnerUserID: owner, ContactUserID: peer, Content: "mid-flight",
		Type: store.MessageText, Direction: store.DirectionOutgoing,
		Status: store.StatusReady, Seeker: &seeker, Encrypted: []byte("stale-ciphertext"),
		Timestamp: time.Now(),
	})
	require.NoError(t, err)

	_, err = engine.OpenSession(ctx, OpenSessionParams{Owner: owner, StaticPriv: priv, StaticPub: pub})
	require.NoError(t, err)

	waiting, err := engine.store.QueryOutgoingForPeer(ctx, owner, peer, store.NewOutgoingStatusSet(store.StatusWaitingSession))
	require.NoError(t, err)
	require.Len(t, waiting, 1, "a READY message found at open time must be reset to WAITING_SESSION")
	assert.Nil(t, waiting[0].Encrypted)
	assert.Nil(t, waiting[0].Seeker)
}

func TestConfigurePersistenceSealsBlobThroughCallback(t *testing.T) {
	ctx := context.Background()
	tr := transportmemory.New()
	priv, pub := genKeypair(t)
	var owner identity.ID
	copy(owner[:], pub)

	engine, err := Init(memoryConfig(), tr)
	require.NoError(t, err)

	key := make([]byte, 32)
	var captured []byte
	sess, err := engine.OpenSession(ctx, OpenSessionParams{
		Owner: owner, StaticPriv: priv, StaticPub: pub,
		EncryptionKey: key,
		OnPersist: func(ctx context.Context, blob []byte) error {
			captured = blob
			return nil
		},
	})
	require.NoError(t, err)

	_, somePub := genKeypair(t)
	var somePeer identity.ID
	copy(somePeer[:], somePub)
	_, err = sess.StartDiscussion(ctx, somePeer, somePub, "", "")
	require.NoError(t, err)

	assert.NotEmpty(t, captured, "establishing an outgoing session must flush through the configured persistence callback")

	roundTrip, err := sess.GetEncryptedSession(key)
	require.NoError(t, err)
	assert.NotEmpty(t, roundTrip)
}

func TestSwitchBulletinNodeRepointsTransportWithoutTouchingSession(t *testing.T) {
	ctx := context.Background()
	tr := transportmemory.New()

	priv, pub := genKeypair(t)
	var id identity.ID
	copy(id[:], pub)

	engine, err := Init(memoryConfig(), tr)
	require.NoError(t, err)

	sess, err := engine.OpenSession(ctx, OpenSessionParams{Owner: id, StaticPriv: priv, StaticPub: pub})
	require.NoError(t, err)

	require.NoError(t, engine.SwitchBulletinNode(ctx, "https://new-node.example"))
	assert.Equal(t, "https://new-node.example", tr.NodeURL())

	discussions, err := sess.ListDiscussions(ctx)
	require.NoError(t, err)
	assert.Empty(t, discussions)
}

func TestRenameDiscussionUpdatesCustomName(t *testing.T) {
	ctx := context.Background()
	tr := transportmemory.New()

	aPriv, aPub := genKeypair(t)
	var aID identity.ID
	copy(aID[:], aPub)
	_, bPub := genKeypair(t)
	var bID identity.ID
	copy(bID[:], bPub)

	engine, err := Init(memoryConfig(), tr)
	require.NoError(t, err)
	sess, err := engine.OpenSession(ctx, OpenSessionParams{Owner: aID, StaticPriv: aPriv, StaticPub: aPub})
	require.NoError(t, err)

	_, err = sess.StartDiscussion(ctx, bID, bPub, "alice", "hi bob")
	require.NoError(t, err)

	require.NoError(t, sess.RenameDiscussion(ctx, bID, "Bobby"))

	discussions, err := sess.ListDiscussions(ctx)
	require.NoError(t, err)
	require.Len(t, discussions, 1)
	assert.Equal(t, "Bobby", discussions[0].CustomName)
}

func TestDeleteContactCascadesStoreAndForgetsSession(t *testing.T) {
	ctx := context.Background()
	tr := transportmemory.New()

	aPriv, aPub := genKeypair(t)
	var aID identity.ID
	copy(aID[:], aPub)
	bPriv, bPub := genKeypair(t)
	var bID identity.ID
	copy(bID[:], bPub)

	aEngine, err := Init(memoryConfig(), tr)
	require.NoError(t, err)
	bEngine, err := Init(memoryConfig(), tr)
	require.NoError(t, err)

	aSess, err := aEngine.OpenSession(ctx, OpenSessionParams{Owner: aID, StaticPriv: aPriv, StaticPub: aPub})
	require.NoError(t, err)
	bSess, err := bEngine.OpenSession(ctx, OpenSessionParams{Owner: bID, StaticPriv: bPriv, StaticPub: bPub})
	require.NoError(t, err)

	_, err = aSess.StartDiscussion(ctx, bID, bPub, "alice", "hi bob")
	require.NoError(t, err)
	require.NoError(t, bSess.SyncAnnouncements(ctx))
	bDiscussions, err := bSess.ListDiscussions(ctx)
	require.NoError(t, err)
	require.Len(t, bDiscussions, 1)
	require.NoError(t, bSess.AcceptDiscussion(ctx, bDiscussions[0], aPub))
	require.NoError(t, aSess.SyncAnnouncements(ctx))

	assert.Equal(t, ratchet.Active, aSess.ratch.PeerSessionStatus(bID))

	require.NoError(t, aSess.DeleteContact(ctx, bID))

	_, err = aSess.store.GetDiscussion(ctx, aID, bID)
	assert.ErrorIs(t, err, gerrors.ErrNotFound, "discussion must be gone after DeleteContact")

	msgs, err := aSess.store.QueryOutgoingForPeer(ctx, aID, bID, store.NewOutgoingStatusSet(
		store.StatusWaitingSession, store.StatusReady, store.StatusSent, store.StatusDelivered, store.StatusRead,
	))
	require.NoError(t, err)
	assert.Empty(t, msgs, "messages for the deleted contact must be gone")

	assert.Equal(t, ratchet.UnknownPeer, aSess.ratch.PeerSessionStatus(bID), "ratchet must forget the peer's session")
}
