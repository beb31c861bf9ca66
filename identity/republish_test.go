package identity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gossip-project/gossip-client/internal/logger"
	"github.com/gossip-project/gossip-client/store"
	"github.com/gossip-project/gossip-client/store/memory"
	transportmemory "github.com/gossip-project/gossip-client/transport/memory"
)

func TestRepublishPublicKeyIfStalePushesWhenNeverPushed(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	tr := transportmemory.New()

	var owner ID
	owner[0] = 1
	require.NoError(t, st.PutProfile(ctx, &store.UserProfile{UserID: owner, Username: "alice"}))

	svc := NewRepublishService(st, tr, logger.Nop())
	require.NoError(t, svc.RepublishPublicKeyIfStale(ctx, owner, []byte("pubkey"), time.Hour))

	profile, err := st.GetProfile(ctx, owner)
	require.NoError(t, err)
	assert.False(t, profile.LastPublicKeyPush.IsZero())
}

func TestRepublishPublicKeyIfStaleSkipsWhenFresh(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	tr := transportmemory.New()

	var owner ID
	owner[0] = 2
	fresh := time.Now()
	require.NoError(t, st.PutProfile(ctx, &store.UserProfile{UserID: owner, Username: "bob", LastPublicKeyPush: fresh}))

	svc := NewRepublishService(st, tr, logger.Nop())
	require.NoError(t, svc.RepublishPublicKeyIfStale(ctx, owner, []byte("pubkey"), time.Hour))

	profile, err := st.GetProfile(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, fresh, profile.LastPublicKeyPush)
}
