// Package http is the reference Transport implementation for talking
// to a real bulletin node over HTTP/REST: a thin JSON client over
// net/http, distinguished only by the wire shapes this engine's
// bulletin protocol actually uses.
package http

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/gossip-project/gossip-client/gerrors"
	"github.com/gossip-project/gossip-client/store"
	"github.com/gossip-project/gossip-client/transport"
)

// Transport implements transport.Transport over a bulletin node's REST
// API. All endpoints are relative to baseURL.
type Transport struct {
	baseURL string
	client  *http.Client

	// NewBackOff builds the retry schedule for each call; nil disables
	// client-side retries (the caller's own retry loop, if any, still
	// applies).
	NewBackOff func() backoff.BackOff
}

// New constructs a Transport against a bulletin node. timeout bounds
// each individual HTTP round trip, not the overall retry schedule.
func New(baseURL string, timeout time.Duration) *Transport {
	return &Transport{
		baseURL:    baseURL,
		client:     &http.Client{Timeout: timeout},
		NewBackOff: defaultBackoff,
	}
}

// defaultBackoff is a reconnect-style schedule: 200ms up to 5s,
// doubling, with jitter.
func defaultBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.Multiplier = 2.0
	b.RandomizationFactor = 0.2
	b.Reset()
	return b
}

// permanentError marks a failure that retrying will never fix (a 4xx
// response, a malformed request/response).
type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

func (t *Transport) attempt(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return permanentError{fmt.Errorf("transport/http: marshal request: %w", err)}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, reader)
	if err != nil {
		return permanentError{fmt.Errorf("transport/http: build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", gerrors.ErrTransport, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", gerrors.ErrTransport, err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return permanentError{gerrors.ErrNotFound}
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: http %d: %s", gerrors.ErrTransport, resp.StatusCode, respBody)
	}
	if resp.StatusCode >= 400 {
		return permanentError{fmt.Errorf("%w: http %d: %s", gerrors.ErrTransport, resp.StatusCode, respBody)}
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return permanentError{fmt.Errorf("transport/http: decode response: %w", err)}
		}
	}
	return nil
}

// do retries transient failures (network errors, 5xx) with exponential
// backoff, stopping immediately on a permanentError or context
// cancellation.
func (t *Transport) do(ctx context.Context, method, path string, body any, out any) error {
	if t.NewBackOff == nil {
		return t.attempt(ctx, method, path, body, out)
	}

	bo := t.NewBackOff()
	for {
		err := t.attempt(ctx, method, path, body, out)
		if err == nil {
			return nil
		}
		var perm permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		interval := bo.NextBackOff()
		if interval == backoff.Stop {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

type announceRequest struct {
	Data []byte `json:"data"`
}

type announceResponse struct {
	Counter uint64 `json:"counter"`
}

func (t *Transport) SendAnnouncement(ctx context.Context, data []byte) (uint64, error) {
	var resp announceResponse
	if err := t.do(ctx, http.MethodPost, "/announcements", announceRequest{Data: data}, &resp); err != nil {
		return 0, fmt.Errorf("transport/http: send announcement: %w", err)
	}
	return resp.Counter, nil
}

type announcementEntryWire struct {
	Counter uint64 `json:"counter"`
	Data    []byte `json:"data"`
}

func (t *Transport) FetchAnnouncements(ctx context.Context, opts transport.FetchAnnouncementsOptions) ([]transport.AnnouncementEntry, error) {
	path := fmt.Sprintf("/announcements?limit=%d", opts.Limit)
	if opts.Cursor != nil {
		path += fmt.Sprintf("&after=%d", *opts.Cursor)
	}

	var resp []announcementEntryWire
	if err := t.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("transport/http: fetch announcements: %w", err)
	}

	out := make([]transport.AnnouncementEntry, len(resp))
	for i, e := range resp {
		out[i] = transport.AnnouncementEntry{Counter: e.Counter, Data: e.Data}
	}
	return out, nil
}

type messageRequest struct {
	Seeker     string `json:"seeker"`
	Ciphertext []byte `json:"ciphertext"`
}

func (t *Transport) SendMessage(ctx context.Context, seeker store.Seeker, ciphertext []byte) error {
	req := messageRequest{Seeker: hex.EncodeToString(seeker[:]), Ciphertext: ciphertext}
	if err := t.do(ctx, http.MethodPost, "/messages", req, nil); err != nil {
		return fmt.Errorf("transport/http: send message: %w", err)
	}
	return nil
}

type messageFetchRequest struct {
	Seekers []string `json:"seekers"`
}

type messageEntryWire struct {
	Seeker     string `json:"seeker"`
	Ciphertext []byte `json:"ciphertext"`
}

func (t *Transport) FetchMessages(ctx context.Context, seekers []store.Seeker) ([]transport.MessageEntry, error) {
	req := messageFetchRequest{Seekers: make([]string, len(seekers))}
	for i, s := range seekers {
		req.Seekers[i] = hex.EncodeToString(s[:])
	}

	var resp []messageEntryWire
	if err := t.do(ctx, http.MethodPost, "/messages/fetch", req, &resp); err != nil {
		return nil, fmt.Errorf("transport/http: fetch messages: %w", err)
	}

	out := make([]transport.MessageEntry, 0, len(resp))
	for _, e := range resp {
		raw, err := hex.DecodeString(e.Seeker)
		if err != nil || len(raw) != len(store.Seeker{}) {
			continue
		}
		var s store.Seeker
		copy(s[:], raw)
		out = append(out, transport.MessageEntry{Seeker: s, Ciphertext: e.Ciphertext})
	}
	return out, nil
}

type publicKeyRequest struct {
	PublicKey []byte `json:"public_key"`
}

type publicKeyResponse struct {
	Hash string `json:"hash"`
}

func (t *Transport) PostPublicKey(ctx context.Context, pk []byte) (string, error) {
	var resp publicKeyResponse
	if err := t.do(ctx, http.MethodPost, "/keys", publicKeyRequest{PublicKey: pk}, &resp); err != nil {
		return "", fmt.Errorf("transport/http: post public key: %w", err)
	}
	return resp.Hash, nil
}

type publicKeyByUserResponse struct {
	PublicKey []byte `json:"public_key"`
}

func (t *Transport) FetchPublicKeyByUserID(ctx context.Context, userID [32]byte) ([]byte, error) {
	path := "/keys/" + hex.EncodeToString(userID[:])
	var resp publicKeyByUserResponse
	if err := t.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		if errors.Is(err, gerrors.ErrNotFound) {
			return nil, gerrors.ErrPublicKeyNotFound
		}
		return nil, fmt.Errorf("transport/http: fetch public key: %w", err)
	}
	return resp.PublicKey, nil
}

// ChangeNode repoints this client at a different bulletin node.
func (t *Transport) ChangeNode(ctx context.Context, url string) error {
	t.baseURL = url
	return nil
}
