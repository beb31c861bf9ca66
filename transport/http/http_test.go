package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gossip-project/gossip-client/gerrors"
	"github.com/gossip-project/gossip-client/store"
	"github.com/gossip-project/gossip-client/transport"
)

func TestSendAnnouncementRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/announcements", r.URL.Path)
		var req announceRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []byte("hello"), req.Data)
		json.NewEncoder(w).Encode(announceResponse{Counter: 7})
	}))
	defer srv.Close()

	tr := New(srv.URL, 5*time.Second)
	counter, err := tr.SendAnnouncement(context.Background(), []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, uint64(7), counter)
}

func TestFetchPublicKeyByUserIDTranslatesNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	tr := New(srv.URL, 5*time.Second)
	tr.NewBackOff = nil // keep the test single-shot; retry behavior is covered separately
	_, err := tr.FetchPublicKeyByUserID(context.Background(), [32]byte{0x01})
	assert.ErrorIs(t, err, gerrors.ErrPublicKeyNotFound)
}

func TestDoRetriesTransientFailureThenSucceeds(t *testing.T) {
	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(announceResponse{Counter: 1})
	}))
	defer srv.Close()

	tr := New(srv.URL, 5*time.Second)
	tr.NewBackOff = func() backoff.BackOff { return zeroBackOff{} }
	_, err := tr.SendAnnouncement(context.Background(), []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDoDoesNotRetryPermanentFailure(t *testing.T) {
	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	tr := New(srv.URL, 5*time.Second)
	_, err := tr.SendAnnouncement(context.Background(), []byte("x"))
	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestFetchMessagesSkipsMalformedSeekerHex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]messageEntryWire{
			{Seeker: "not-hex", Ciphertext: []byte("a")},
			{Seeker: "0102", Ciphertext: []byte("b")}, // wrong length, skipped
		})
	}))
	defer srv.Close()

	tr := New(srv.URL, 5*time.Second)
	entries, err := tr.FetchMessages(context.Background(), []store.Seeker{{0x01}})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFetchAnnouncementsAppliesCursor(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		json.NewEncoder(w).Encode([]announcementEntryWire{{Counter: 1, Data: []byte("a")}})
	}))
	defer srv.Close()

	tr := New(srv.URL, 5*time.Second)
	cursor := uint64(41)
	entries, err := tr.FetchAnnouncements(context.Background(), transport.FetchAnnouncementsOptions{Limit: 10, Cursor: &cursor})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "limit=10&after=41", gotQuery)
}

type zeroBackOff struct{}

func (zeroBackOff) NextBackOff() time.Duration { return 0 }
func (zeroBackOff) Reset()                     {}
