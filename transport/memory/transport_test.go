package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gossip-project/gossip-client/gerrors"
	"github.com/gossip-project/gossip-client/store"
	"github.com/gossip-project/gossip-client/transport"
)

func TestAnnouncementsAreCounterOrdered(t *testing.T) {
	ctx := context.Background()
	tr := New()

	for _, payload := range [][]byte{[]byte("a"), []byte("b"), []byte("c")} {
		_, err := tr.SendAnnouncement(ctx, payload)
		require.NoError(t, err)
	}

	page, err := tr.FetchAnnouncements(ctx, transport.FetchAnnouncementsOptions{Limit: 10})
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, uint64(0), page[0].Counter)
	assert.Equal(t, uint64(2), page[2].Counter)
}

func TestFetchAnnouncementsRespectsCursor(t *testing.T) {
	ctx := context.Background()
	tr := New()
	for _, payload := range [][]byte{[]byte("a"), []byte("b"), []byte("c")} {
		_, err := tr.SendAnnouncement(ctx, payload)
		require.NoError(t, err)
	}

	cursor := uint64(0)
	page, err := tr.FetchAnnouncements(ctx, transport.FetchAnnouncementsOptions{Cursor: &cursor})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, uint64(1), page[0].Counter)
}

func TestSendAndFetchMessage(t *testing.T) {
	ctx := context.Background()
	tr := New()
	var seeker store.Seeker
	seeker[0] = 0xAB

	require.NoError(t, tr.SendMessage(ctx, seeker, []byte("ciphertext")))

	out, err := tr.FetchMessages(ctx, []store.Seeker{seeker})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, []byte("ciphertext"), out[0].Ciphertext)
}

func TestFetchMessagesOmitsMissingSeekers(t *testing.T) {
	ctx := context.Background()
	tr := New()
	var present, absent store.Seeker
	present[0] = 1
	absent[0] = 2
	require.NoError(t, tr.SendMessage(ctx, present, []byte("ct")))

	out, err := tr.FetchMessages(ctx, []store.Seeker{present, absent})
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestFetchPublicKeyByUserIDNotFound(t *testing.T) {
	ctx := context.Background()
	tr := New()
	var id [32]byte
	_, err := tr.FetchPublicKeyByUserID(ctx, id)
	assert.ErrorIs(t, err, gerrors.ErrPublicKeyNotFound)
}

func TestPostAndFetchPublicKey(t *testing.T) {
	ctx := context.Background()
	tr := New()
	pk := make([]byte, 32)
	pk[0] = 0x42
	_, err := tr.PostPublicKey(ctx, pk)
	require.NoError(t, err)

	var id [32]byte
	copy(id[:], pk)
	got, err := tr.FetchPublicKeyByUserID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, pk, got)
}

func TestBeforeSendMessageFaultInjection(t *testing.T) {
	ctx := context.Background()
	tr := New()
	injected := errors.New("boom")
	tr.BeforeSendMessage = func() error { return injected }

	var seeker store.Seeker
	err := tr.SendMessage(ctx, seeker, []byte("ct"))
	assert.ErrorIs(t, err, gerrors.ErrTransport)
}

func TestChangeNodeRecordsURL(t *testing.T) {
	ctx := context.Background()
	tr := New()
	require.NoError(t, tr.ChangeNode(ctx, "https://node.example"))
	assert.Equal(t, "https://node.example", tr.NodeURL())
}
