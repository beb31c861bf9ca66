package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gossip-project/gossip-client/identity"
	"github.com/gossip-project/gossip-client/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func id(b byte) identity.ID {
	var out identity.ID
	out[0] = b
	return out
}

func TestMigrateCreatesSchema(t *testing.T) {
	s := newTestStore(t)
	owner := id(1)
	_, err := s.ListActiveSeekers(context.Background(), owner)
	require.NoError(t, err)
}

func TestPutAndGetProfileRoundTrips(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	owner := id(1)
	counter := uint64(7)

	require.NoError(t, s.PutProfile(ctx, &store.UserProfile{
		UserID: owner, Username: "alice", EncryptedMnemonic: []byte("ct"),
		LastBulletinCounter: &counter, LastPublicKeyPush: time.Now().Truncate(time.Second),
	}))

	got, err := s.GetProfile(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	require.NotNil(t, got.LastBulletinCounter)
	assert.Equal(t, counter, *got.LastBulletinCounter)
}

func TestAddMessageUpdatesDiscussionCounters(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	owner, peer := id(1), id(2)

	require.NoError(t, s.PutDiscussion(ctx, &store.Discussion{
		OwnerUserID: owner, ContactUserID: peer, CreatedAt: time.Now(),
	}))

	_, err := s.AddMessage(ctx, &store.Message{
		OwnerUserID: owner, ContactUserID: peer, Content: "hi",
		Direction: store.DirectionIncoming, Status: store.StatusDelivered,
	})
	require.NoError(t, err)

	d, err := s.GetDiscussion(ctx, owner, peer)
	require.NoError(t, err)
	assert.Equal(t, 1, d.UnreadCount)
	assert.Equal(t, "hi", d.LastMessageContent)
}

func TestMarkDeliveredTransitionsAndZeroesUnread(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	owner, peer := id(1), id(2)
	require.NoError(t, s.PutDiscussion(ctx, &store.Discussion{OwnerUserID: owner, ContactUserID: peer, CreatedAt: time.Now()}))

	msgID, err := s.AddMessage(ctx, &store.Message{
		OwnerUserID: owner, ContactUserID: peer, Direction: store.DirectionIncoming,
		Status: store.StatusDelivered,
	})
	require.NoError(t, err)

	require.NoError(t, s.MarkDelivered(ctx, owner, peer))

	m, err := s.GetMessage(ctx, owner, msgID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusRead, m.Status)

	d, err := s.GetDiscussion(ctx, owner, peer)
	require.NoError(t, err)
	assert.Equal(t, 0, d.UnreadCount)
}

func TestQueryOutgoingForPeerOrdersByTimestamp(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	owner, peer := id(1), id(2)
	require.NoError(t, s.PutDiscussion(ctx, &store.Discussion{OwnerUserID: owner, ContactUserID: peer, CreatedAt: time.Now()}))
	base := time.Now()

	for i, delta := range []time.Duration{3 * time.Second, 1 * time.Second, 2 * time.Second} {
		_, err := s.AddMessage(ctx, &store.Message{
			OwnerUserID: owner, ContactUserID: peer, Direction: store.DirectionOutgoing,
			Status: store.StatusReady, Timestamp: base.Add(delta), Content: string(rune('A' + i)),
		})
		require.NoError(t, err)
	}

	msgs, err := s.QueryOutgoingForPeer(ctx, owner, peer, store.NewOutgoingStatusSet(store.StatusReady))
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.True(t, msgs[0].Timestamp.Before(msgs[1].Timestamp))
	assert.True(t, msgs[1].Timestamp.Before(msgs[2].Timestamp))
}

func TestResetOutgoingForPeerClearsCipherFields(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	owner, peer := id(1), id(2)
	require.NoError(t, s.PutDiscussion(ctx, &store.Discussion{OwnerUserID: owner, ContactUserID: peer, CreatedAt: time.Now()}))
	seeker := store.Seeker{0xAA}
	when := time.Now()

	msgID, err := s.AddMessage(ctx, &store.Message{
		OwnerUserID: owner, ContactUserID: peer, Direction: store.DirectionOutgoing,
		Status: store.StatusReady, Seeker: &seeker, Encrypted: []byte("ct"), WhenToSend: &when,
	})
	require.NoError(t, err)

	require.NoError(t, s.ResetOutgoingForPeer(ctx, owner, peer, store.NewOutgoingStatusSet(store.StatusReady)))

	m, err := s.GetMessage(ctx, owner, msgID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusWaitingSession, m.Status)
	assert.Nil(t, m.Seeker)
	assert.Nil(t, m.Encrypted)
	assert.Nil(t, m.WhenToSend)
}

func TestReplaceActiveSeekersIsAtomicSnapshot(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	owner := id(1)

	require.NoError(t, s.ReplaceActiveSeekers(ctx, owner, []store.Seeker{{1}, {2}}))
	seekers, err := s.ListActiveSeekers(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, seekers, 2)

	require.NoError(t, s.ReplaceActiveSeekers(ctx, owner, []store.Seeker{{3}}))
	seekers, err = s.ListActiveSeekers(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, []store.Seeker{{3}}, seekers)
}

func TestDeleteContactCascades(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	owner, peer := id(1), id(2)
	require.NoError(t, s.PutContact(ctx, &store.Contact{OwnerUserID: owner, UserID: peer, Name: "bob"}))
	require.NoError(t, s.PutDiscussion(ctx, &store.Discussion{OwnerUserID: owner, ContactUserID: peer, CreatedAt: time.Now()}))
	_, err := s.AddMessage(ctx, &store.Message{OwnerUserID: owner, ContactUserID: peer, Direction: store.DirectionIncoming, Status: store.StatusDelivered})
	require.NoError(t, err)

	require.NoError(t, s.DeleteContact(ctx, owner, peer))

	_, err = s.GetContact(ctx, owner, peer)
	assert.Error(t, err)
	_, err = s.GetDiscussion(ctx, owner, peer)
	assert.Error(t, err)
}

func TestPendingEncryptedMessageLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	owner := id(1)
	seeker := store.Seeker{0x01}

	require.NoError(t, s.PutPendingEncryptedMessage(ctx, &store.PendingEncryptedMessage{
		OwnerUserID: owner, Seeker: seeker, Ciphertext: []byte("ct"), FetchedAt: time.Now(),
	}))

	pending, err := s.ListPendingEncryptedMessages(ctx, owner)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, s.DeletePendingEncryptedMessage(ctx, owner, seeker))
	pending, err = s.ListPendingEncryptedMessages(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
