package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gossip-project/gossip-client/identity"
	"github.com/gossip-project/gossip-client/store"
)

// newTestStore opens a Store against GOSSIP_TEST_POSTGRES_DSN's target
// database, skipping the test entirely when that variable is unset:
// this suite needs a live Postgres instance, unlike store/sqlite and
// store/memory which run anywhere.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("GOSSIP_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("GOSSIP_TEST_POSTGRES_DSN not set; skipping postgres store tests")
	}

	cfg := Config{
		Host: os.Getenv("GOSSIP_TEST_POSTGRES_HOST"), Port: 5432,
		User: os.Getenv("GOSSIP_TEST_POSTGRES_USER"), Password: os.Getenv("GOSSIP_TEST_POSTGRES_PASSWORD"),
		Database: os.Getenv("GOSSIP_TEST_POSTGRES_DATABASE"), SSLMode: "disable",
	}
	s, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func id(b byte) identity.ID {
	var out identity.ID
	out[0] = b
	return out
}

func TestPutAndGetProfileRoundTrips(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	owner := id(1)
	counter := uint64(7)

	require.NoError(t, s.PutProfile(ctx, &store.UserProfile{
		UserID: owner, Username: "alice", LastBulletinCounter: &counter,
	}))

	got, err := s.GetProfile(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	require.NotNil(t, got.LastBulletinCounter)
	assert.Equal(t, counter, *got.LastBulletinCounter)
}

func TestDiscussionRoundTripsCustomName(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	owner, contact := id(1), id(2)

	d := &store.Discussion{
		OwnerUserID: owner, ContactUserID: contact,
		Direction: store.DirectionInitiated, WeAccepted: true,
		CustomName: "Bestie", CreatedAt: time.Now(),
	}
	require.NoError(t, s.PutDiscussion(ctx, d))

	got, err := s.GetDiscussion(ctx, owner, contact)
	require.NoError(t, err)
	assert.Equal(t, "Bestie", got.CustomName)
	assert.True(t, got.WeAccepted)
}

func TestAddMessageUpdatesDiscussionCounters(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	owner, contact := id(1), id(2)

	require.NoError(t, s.PutDiscussion(ctx, &store.Discussion{
		OwnerUserID: owner, ContactUserID: contact, Direction: store.DirectionInitiated,
		WeAccepted: true, CreatedAt: time.Now(),
	}))

	_, err := s.AddMessage(ctx, &store.Message{
		OwnerUserID: owner, ContactUserID: contact, Content: "hi",
		Type: store.MessageText, Direction: store.DirectionIncoming, Status: store.StatusDelivered,
	})
	require.NoError(t, err)

	got, err := s.GetDiscussion(ctx, owner, contact)
	require.NoError(t, err)
	assert.Equal(t, "hi", got.LastMessageContent)
	assert.Equal(t, 1, got.UnreadCount)
}
