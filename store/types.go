// Package store defines the persistence contract and the entity
// schemas shared by every storage backend.
package store

import (
	"time"

	"github.com/gossip-project/gossip-client/identity"
)

// Seeker is the opaque 32-byte key a ciphertext lives under on the
// message board.
type Seeker [32]byte

// MessageID is the 12-byte on-wire identifier used for receive-side
// deduplication.
type MessageID [12]byte

// Direction distinguishes who first sent an announcement, or which
// way a message travelled.
type Direction string

const (
	DirectionInitiated Direction = "INITIATED"
	DirectionReceived  Direction = "RECEIVED"

	DirectionOutgoing Direction = "OUTGOING"
	DirectionIncoming Direction = "INCOMING"
)

// MessageType enumerates the payload kinds carried by a Message.
type MessageType string

const (
	MessageText         MessageType = "TEXT"
	MessageAnnouncement MessageType = "ANNOUNCEMENT"
	MessageKeepAlive    MessageType = "KEEP_ALIVE"
	MessageImage        MessageType = "IMAGE"
	MessageFile         MessageType = "FILE"
	MessageAudio        MessageType = "AUDIO"
	MessageVideo        MessageType = "VIDEO"
)

// MessageStatus is the outgoing message status machine. Incoming
// messages only ever occupy Delivered or Read.
type MessageStatus string

const (
	StatusWaitingSession MessageStatus = "WAITING_SESSION"
	StatusReady          MessageStatus = "READY"
	StatusSent           MessageStatus = "SENT"
	StatusDelivered      MessageStatus = "DELIVERED"
	StatusRead           MessageStatus = "READ"
)

// UserProfile is the single local account record.
type UserProfile struct {
	UserID              identity.ID
	Username            string
	EncryptedMnemonic   []byte
	LastBulletinCounter *uint64
	LastPublicKeyPush   time.Time
}

// Contact is a known peer, keyed by (owner, userID).
type Contact struct {
	OwnerUserID identity.ID
	UserID      identity.ID
	Name        string
	PublicKey   []byte
	IsOnline    bool
	LastSeen    time.Time
}

// SendAnnouncement is the retry-armed outbound announcement payload
// attached to a Discussion.
type SendAnnouncement struct {
	Bytes      []byte
	WhenToSend time.Time
}

// Discussion is the per-peer conversation record. Exactly
// one exists per (owner, contact) pair.
type Discussion struct {
	OwnerUserID   identity.ID
	ContactUserID identity.ID

	Direction    Direction
	WeAccepted   bool
	SendAnnounce *SendAnnouncement

	LastSyncTimestamp      time.Time
	LastMessageID          int64
	LastMessageContent     string
	LastMessageTimestamp   *time.Time
	UnreadCount            int
	CustomName             string
	LastAnnouncementMsg    string
	CreatedAt              time.Time
}

// Message is a single plaintext record, outgoing or incoming.
// ReplyTo/ForwardOf reference another Message's ID by value; nil
// means absent.
type Message struct {
	ID            int64
	OwnerUserID   identity.ID
	ContactUserID identity.ID
	Content       string
	MessageID     MessageID
	Type          MessageType
	Direction     Direction
	Status        MessageStatus
	Seeker        *Seeker
	Encrypted     []byte
	WhenToSend    *time.Time
	Timestamp     time.Time
	ReplyTo       *int64
	ForwardOf     *int64
	// SerializedContent is transient wire-form cache, cleared after a
	// successful network send; never persisted across restarts.
	SerializedContent []byte
}

// PendingEncryptedMessage buffers an inbound ciphertext the crypto
// primitive could not yet decrypt.
type PendingEncryptedMessage struct {
	OwnerUserID identity.ID
	Seeker      Seeker
	Ciphertext  []byte
	FetchedAt   time.Time
}

// PendingAnnouncement buffers an inbound announcement whose sender or
// ratchet step isn't resolvable yet.
type PendingAnnouncement struct {
	OwnerUserID identity.ID
	Counter     uint64
	Data        []byte
	FetchedAt   time.Time
}

// ActiveSeeker is one row of the snapshot the crypto primitive
// instructs the engine to monitor.
type ActiveSeeker struct {
	OwnerUserID identity.ID
	Seeker      Seeker
}

// OutgoingStatusSet is a convenience predicate set for
// QueryOutgoingForPeer.
type OutgoingStatusSet map[MessageStatus]struct{}

// NewOutgoingStatusSet builds an OutgoingStatusSet from the given
// statuses.
func NewOutgoingStatusSet(statuses ...MessageStatus) OutgoingStatusSet {
	s := make(OutgoingStatusSet, len(statuses))
	for _, st := range statuses {
		s[st] = struct{}{}
	}
	return s
}

// Contains reports whether status is a member of the set.
func (s OutgoingStatusSet) Contains(status MessageStatus) bool {
	_, ok := s[status]
	return ok
}
