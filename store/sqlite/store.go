// Package sqlite implements store.Store on top of a single-file
// SQLite database, using modernc.org/sqlite — a cgo-free driver that
// fits a single-device client — with schema migrations applied via
// goose.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/gossip-project/gossip-client/gerrors"
	"github.com/gossip-project/gossip-client/identity"
	"github.com/gossip-project/gossip-client/store"
)

// Store implements store.Store backed by *sql.DB.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and
// applies migrations. path may be ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers; avoid "database is locked"

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}

func nullTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

func scanTime(raw sql.NullTime) *time.Time {
	if !raw.Valid {
		return nil
	}
	t := raw.Time
	return &t
}

func (s *Store) GetProfile(ctx context.Context, owner identity.ID) (*store.UserProfile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, username, encrypted_mnemonic, last_bulletin_counter, last_public_key_push
		FROM profiles WHERE user_id = ?`, owner.String())

	var p store.UserProfile
	var userIDStr string
	var counter sql.NullInt64
	var push sql.NullTime
	if err := row.Scan(&userIDStr, &p.Username, &p.EncryptedMnemonic, &counter, &push); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("profile not found: %s: %w", owner, gerrors.ErrNotFound)
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	decoded, err := identity.Decode(userIDStr)
	if err != nil {
		return nil, fmt.Errorf("decode user id: %w", err)
	}
	p.UserID = decoded
	if counter.Valid {
		u := uint64(counter.Int64)
		p.LastBulletinCounter = &u
	}
	if push.Valid {
		p.LastPublicKeyPush = push.Time
	}
	return &p, nil
}

func (s *Store) PutProfile(ctx context.Context, p *store.UserProfile) error {
	var counter interface{}
	if p.LastBulletinCounter != nil {
		counter = int64(*p.LastBulletinCounter)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (user_id, username, encrypted_mnemonic, last_bulletin_counter, last_public_key_push)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			username = excluded.username,
			encrypted_mnemonic = excluded.encrypted_mnemonic,
			last_bulletin_counter = excluded.last_bulletin_counter,
			last_public_key_push = excluded.last_public_key_push`,
		p.UserID.String(), p.Username, p.EncryptedMnemonic, counter, nullTime(p.LastPublicKeyPush))
	if err != nil {
		return fmt.Errorf("put profile: %w", err)
	}
	return nil
}

func (s *Store) GetContact(ctx context.Context, owner, contactUserID identity.ID) (*store.Contact, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT name, public_key, is_online, last_seen FROM contacts
		WHERE owner_user_id = ? AND user_id = ?`, owner.String(), contactUserID.String())

	c := &store.Contact{OwnerUserID: owner, UserID: contactUserID}
	var lastSeen sql.NullTime
	if err := row.Scan(&c.Name, &c.PublicKey, &c.IsOnline, &lastSeen); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("contact not found: %s: %w", contactUserID, gerrors.ErrNotFound)
		}
		return nil, fmt.Errorf("get contact: %w", err)
	}
	if lastSeen.Valid {
		c.LastSeen = lastSeen.Time
	}
	return c, nil
}

func (s *Store) ListContacts(ctx context.Context, owner identity.ID) ([]*store.Contact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, name, public_key, is_online, last_seen FROM contacts
		WHERE owner_user_id = ?`, owner.String())
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	var out []*store.Contact
	for rows.Next() {
		var userIDStr string
		c := &store.Contact{OwnerUserID: owner}
		var lastSeen sql.NullTime
		if err := rows.Scan(&userIDStr, &c.Name, &c.PublicKey, &c.IsOnline, &lastSeen); err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		id, err := identity.Decode(userIDStr)
		if err != nil {
			return nil, fmt.Errorf("decode contact id: %w", err)
		}
		c.UserID = id
		if lastSeen.Valid {
			c.LastSeen = lastSeen.Time
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) PutContact(ctx context.Context, c *store.Contact) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contacts (owner_user_id, user_id, name, public_key, is_online, last_seen)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (owner_user_id, user_id) DO UPDATE SET
			name = excluded.name, public_key = excluded.public_key,
			is_online = excluded.is_online, last_seen = excluded.last_seen`,
		c.OwnerUserID.String(), c.UserID.String(), c.Name, c.PublicKey, c.IsOnline, nullTime(c.LastSeen))
	if err != nil {
		return fmt.Errorf("put contact: %w", err)
	}
	return nil
}

func (s *Store) DeleteContact(ctx context.Context, owner, contactUserID identity.ID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	ownerStr, contactStr := owner.String(), contactUserID.String()
	if _, err := tx.ExecContext(ctx, `DELETE FROM contacts WHERE owner_user_id = ? AND user_id = ?`, ownerStr, contactStr); err != nil {
		return fmt.Errorf("delete contact: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM discussions WHERE owner_user_id = ? AND contact_user_id = ?`, ownerStr, contactStr); err != nil {
		return fmt.Errorf("delete discussion: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE owner_user_id = ? AND contact_user_id = ?`, ownerStr, contactStr); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	return tx.Commit()
}

func scanDiscussion(owner identity.ID, contactUserID identity.ID, rows interface {
	Scan(...interface{}) error
}) (*store.Discussion, error) {
	d := &store.Discussion{OwnerUserID: owner, ContactUserID: contactUserID}
	var sendBytes []byte
	var sendWhen, lastSync, lastMsgTs, createdAt sql.NullTime
	if err := rows.Scan(
		&d.Direction, &d.WeAccepted, &sendBytes, &sendWhen,
		&lastSync, &d.LastMessageID, &d.LastMessageContent, &lastMsgTs,
		&d.UnreadCount, &d.CustomName, &d.LastAnnouncementMsg, &createdAt,
	); err != nil {
		return nil, err
	}
	if sendBytes != nil {
		d.SendAnnounce = &store.SendAnnouncement{Bytes: sendBytes}
		if sendWhen.Valid {
			d.SendAnnounce.WhenToSend = sendWhen.Time
		}
	}
	if lastSync.Valid {
		d.LastSyncTimestamp = lastSync.Time
	}
	d.LastMessageTimestamp = scanTime(lastMsgTs)
	if createdAt.Valid {
		d.CreatedAt = createdAt.Time
	}
	return d, nil
}

func (s *Store) GetDiscussion(ctx context.Context, owner, contactUserID identity.ID) (*store.Discussion, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT direction, we_accepted, send_announce_bytes, send_announce_when,
		       last_sync_timestamp, last_message_id, last_message_content, last_message_timestamp,
		       unread_count, custom_name, last_announcement_message, created_at
		FROM discussions WHERE owner_user_id = ? AND contact_user_id = ?`,
		owner.String(), contactUserID.String())

	d, err := scanDiscussion(owner, contactUserID, row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("discussion not found: %s: %w", contactUserID, gerrors.ErrNotFound)
		}
		return nil, fmt.Errorf("get discussion: %w", err)
	}
	return d, nil
}

func (s *Store) ListDiscussions(ctx context.Context, owner identity.ID) ([]*store.Discussion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT contact_user_id, direction, we_accepted, send_announce_bytes, send_announce_when,
		       last_sync_timestamp, last_message_id, last_message_content, last_message_timestamp,
		       unread_count, custom_name, last_announcement_message, created_at
		FROM discussions WHERE owner_user_id = ?
		ORDER BY last_message_timestamp IS NULL, last_message_timestamp DESC, created_at DESC`,
		owner.String())
	if err != nil {
		return nil, fmt.Errorf("list discussions: %w", err)
	}
	defer rows.Close()

	var out []*store.Discussion
	for rows.Next() {
		var contactStr string
		var direction string
		var weAccepted bool
		var sendBytes []byte
		var sendWhen, lastSync, lastMsgTs, createdAt sql.NullTime
		var lastMessageID int64
		var lastMessageContent, customName, lastAnn string
		var unread int
		if err := rows.Scan(&contactStr, &direction, &weAccepted, &sendBytes, &sendWhen,
			&lastSync, &lastMessageID, &lastMessageContent, &lastMsgTs,
			&unread, &customName, &lastAnn, &createdAt); err != nil {
			return nil, fmt.Errorf("scan discussion: %w", err)
		}
		contactID, err := identity.Decode(contactStr)
		if err != nil {
			return nil, fmt.Errorf("decode contact id: %w", err)
		}
		d := &store.Discussion{
			OwnerUserID: owner, ContactUserID: contactID,
			Direction: store.Direction(direction), WeAccepted: weAccepted,
			LastMessageID: lastMessageID, LastMessageContent: lastMessageContent,
			UnreadCount: unread, CustomName: customName, LastAnnouncementMsg: lastAnn,
		}
		if sendBytes != nil {
			d.SendAnnounce = &store.SendAnnouncement{Bytes: sendBytes}
			if sendWhen.Valid {
				d.SendAnnounce.WhenToSend = sendWhen.Time
			}
		}
		if lastSync.Valid {
			d.LastSyncTimestamp = lastSync.Time
		}
		d.LastMessageTimestamp = scanTime(lastMsgTs)
		if createdAt.Valid {
			d.CreatedAt = createdAt.Time
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) PutDiscussion(ctx context.Context, d *store.Discussion) error {
	var sendBytes []byte
	var sendWhen interface{}
	if d.SendAnnounce != nil {
		sendBytes = d.SendAnnounce.Bytes
		sendWhen = nullTime(d.SendAnnounce.WhenToSend)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO discussions (owner_user_id, contact_user_id, direction, we_accepted,
			send_announce_bytes, send_announce_when, last_sync_timestamp, last_message_id,
			last_message_content, last_message_timestamp, unread_count, custom_name,
			last_announcement_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (owner_user_id, contact_user_id) DO UPDATE SET
			direction = excluded.direction, we_accepted = excluded.we_accepted,
			send_announce_bytes = excluded.send_announce_bytes, send_announce_when = excluded.send_announce_when,
			last_sync_timestamp = excluded.last_sync_timestamp, last_message_id = excluded.last_message_id,
			last_message_content = excluded.last_message_content, last_message_timestamp = excluded.last_message_timestamp,
			unread_count = excluded.unread_count, custom_name = excluded.custom_name,
			last_announcement_message = excluded.last_announcement_message`,
		d.OwnerUserID.String(), d.ContactUserID.String(), string(d.Direction), d.WeAccepted,
		sendBytes, sendWhen, nullTime(d.LastSyncTimestamp), d.LastMessageID,
		d.LastMessageContent, nullTimePtr(d.LastMessageTimestamp), d.UnreadCount, d.CustomName,
		d.LastAnnouncementMsg, nullTimeOrNow(d.CreatedAt))
	if err != nil {
		return fmt.Errorf("put discussion: %w", err)
	}
	return nil
}

func nullTimeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}

func messageIDBytes(id store.MessageID) []byte {
	if id == (store.MessageID{}) {
		return nil
	}
	out := make([]byte, len(id))
	copy(out, id[:])
	return out
}

func seekerBytes(s *store.Seeker) []byte {
	if s == nil {
		return nil
	}
	out := make([]byte, len(s))
	copy(out, s[:])
	return out
}

func scanMessageRow(rows interface {
	Scan(...interface{}) error
}) (*store.Message, error) {
	var m store.Message
	var ownerStr, contactStr, typ, direction, status string
	var msgIDBytes, seekerB []byte
	var whenToSend, ts sql.NullTime
	var replyTo, forwardOf sql.NullInt64

	if err := rows.Scan(&m.ID, &ownerStr, &contactStr, &m.Content, &msgIDBytes, &typ, &direction,
		&status, &seekerB, &m.Encrypted, &whenToSend, &ts, &replyTo, &forwardOf); err != nil {
		return nil, err
	}

	owner, err := identity.Decode(ownerStr)
	if err != nil {
		return nil, fmt.Errorf("decode owner: %w", err)
	}
	contact, err := identity.Decode(contactStr)
	if err != nil {
		return nil, fmt.Errorf("decode contact: %w", err)
	}
	m.OwnerUserID, m.ContactUserID = owner, contact
	m.Type, m.Direction, m.Status = store.MessageType(typ), store.Direction(direction), store.MessageStatus(status)
	if len(msgIDBytes) == len(m.MessageID) {
		copy(m.MessageID[:], msgIDBytes)
	}
	if len(seekerB) == 32 {
		var sk store.Seeker
		copy(sk[:], seekerB)
		m.Seeker = &sk
	}
	m.WhenToSend = scanTime(whenToSend)
	if ts.Valid {
		m.Timestamp = ts.Time
	}
	if replyTo.Valid {
		v := replyTo.Int64
		m.ReplyTo = &v
	}
	if forwardOf.Valid {
		v := forwardOf.Int64
		m.ForwardOf = &v
	}
	return &m, nil
}

const messageColumns = `id, owner_user_id, contact_user_id, content, message_id, type, direction,
		status, seeker, encrypted, when_to_send, timestamp, reply_to, forward_of`

func (s *Store) AddMessage(ctx context.Context, m *store.Message) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	ts := m.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO messages (owner_user_id, contact_user_id, content, message_id, type, direction,
			status, seeker, encrypted, when_to_send, timestamp, reply_to, forward_of)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.OwnerUserID.String(), m.ContactUserID.String(), m.Content, messageIDBytes(m.MessageID),
		string(m.Type), string(m.Direction), string(m.Status), seekerBytes(m.Seeker), m.Encrypted,
		nullTimePtr(m.WhenToSend), ts, m.ReplyTo, m.ForwardOf)
	if err != nil {
		return 0, fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}

	incIncr := 0
	if m.Direction == store.DirectionIncoming {
		incIncr = 1
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE discussions SET last_message_id = ?, last_message_content = ?,
			last_message_timestamp = ?, unread_count = unread_count + ?
		WHERE owner_user_id = ? AND contact_user_id = ?`,
		id, m.Content, ts, incIncr, m.OwnerUserID.String(), m.ContactUserID.String())
	if err != nil {
		return 0, fmt.Errorf("update discussion counters: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	m.ID = id
	m.Timestamp = ts
	return id, nil
}

func (s *Store) UpdateMessage(ctx context.Context, m *store.Message) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET content = ?, message_id = ?, type = ?, direction = ?, status = ?,
			seeker = ?, encrypted = ?, when_to_send = ?, timestamp = ?, reply_to = ?, forward_of = ?
		WHERE id = ? AND owner_user_id = ?`,
		m.Content, messageIDBytes(m.MessageID), string(m.Type), string(m.Direction), string(m.Status),
		seekerBytes(m.Seeker), m.Encrypted, nullTimePtr(m.WhenToSend), m.Timestamp, m.ReplyTo, m.ForwardOf,
		m.ID, m.OwnerUserID.String())
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("message not found: %d: %w", m.ID, gerrors.ErrNotFound)
	}
	return nil
}

func (s *Store) GetMessage(ctx context.Context, owner identity.ID, id int64) (*store.Message, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ? AND owner_user_id = ?`,
		id, owner.String())
	m, err := scanMessageRow(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("message not found: %d: %w", id, gerrors.ErrNotFound)
		}
		return nil, fmt.Errorf("get message: %w", err)
	}
	return m, nil
}

func (s *Store) QueryOutgoingForPeer(ctx context.Context, owner, contactUserID identity.ID, statuses store.OutgoingStatusSet) ([]*store.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE owner_user_id = ? AND contact_user_id = ? AND direction = ?
		ORDER BY timestamp ASC`,
		owner.String(), contactUserID.String(), string(store.DirectionOutgoing))
	if err != nil {
		return nil, fmt.Errorf("query outgoing: %w", err)
	}
	defer rows.Close()

	var out []*store.Message
	for rows.Next() {
		m, err := scanMessageRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if statuses.Contains(m.Status) {
			out = append(out, m)
		}
	}
	return out, rows.Err()
}

func (s *Store) FindMessageByMessageID(ctx context.Context, owner, contactUserID identity.ID, id store.MessageID, window time.Duration) (*store.Message, error) {
	cutoff := time.Now().Add(-window)
	row := s.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE owner_user_id = ? AND contact_user_id = ? AND direction = ? AND message_id = ? AND timestamp >= ?
		LIMIT 1`,
		owner.String(), contactUserID.String(), string(store.DirectionIncoming), messageIDBytes(id), cutoff)
	m, err := scanMessageRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by message id: %w", err)
	}
	return m, nil
}

func (s *Store) FindRecentIncomingByContent(ctx context.Context, owner, contactUserID identity.ID, content string, window time.Duration) (*store.Message, error) {
	now := time.Now()
	row := s.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE owner_user_id = ? AND contact_user_id = ? AND direction = ? AND content = ?
			AND timestamp BETWEEN ? AND ?
		LIMIT 1`,
		owner.String(), contactUserID.String(), string(store.DirectionIncoming), content,
		now.Add(-window), now.Add(window))
	m, err := scanMessageRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find recent by content: %w", err)
	}
	return m, nil
}

func (s *Store) MarkDelivered(ctx context.Context, owner, contactUserID identity.ID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE messages SET status = ? WHERE owner_user_id = ? AND contact_user_id = ? AND direction = ? AND status = ?`,
		string(store.StatusRead), owner.String(), contactUserID.String(), string(store.DirectionIncoming), string(store.StatusDelivered))
	if err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	_, err = tx.ExecContext(ctx, `UPDATE discussions SET unread_count = 0 WHERE owner_user_id = ? AND contact_user_id = ?`,
		owner.String(), contactUserID.String())
	if err != nil {
		return fmt.Errorf("zero unread count: %w", err)
	}
	return tx.Commit()
}

func (s *Store) ListOutgoingBySeeker(ctx context.Context, owner identity.ID, seeker store.Seeker) ([]*store.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM messages WHERE owner_user_id = ? AND direction = ? AND seeker = ?`,
		owner.String(), string(store.DirectionOutgoing), seekerBytes(&seeker))
	if err != nil {
		return nil, fmt.Errorf("list outgoing by seeker: %w", err)
	}
	defer rows.Close()

	var out []*store.Message
	for rows.Next() {
		m, err := scanMessageRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) ResetOutgoingForPeer(ctx context.Context, owner, contactUserID identity.ID, statuses store.OutgoingStatusSet) error {
	var in []string
	args := []interface{}{string(store.StatusWaitingSession), owner.String(), contactUserID.String(), string(store.DirectionOutgoing)}
	for st := range statuses {
		in = append(in, "?")
		args = append(args, string(st))
	}
	if len(in) == 0 {
		return nil
	}
	query := fmt.Sprintf(`
		UPDATE messages SET status = ?, seeker = NULL, encrypted = NULL, when_to_send = NULL
		WHERE owner_user_id = ? AND contact_user_id = ? AND direction = ? AND status IN (%s)`, join(in))
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("reset outgoing for peer: %w", err)
	}
	return nil
}

func join(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}

func (s *Store) PutPendingEncryptedMessage(ctx context.Context, m *store.PendingEncryptedMessage) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_encrypted_messages (owner_user_id, seeker, ciphertext, fetched_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (owner_user_id, seeker) DO UPDATE SET ciphertext = excluded.ciphertext, fetched_at = excluded.fetched_at`,
		m.OwnerUserID.String(), seekerBytes(&m.Seeker), m.Ciphertext, m.FetchedAt)
	if err != nil {
		return fmt.Errorf("put pending encrypted message: %w", err)
	}
	return nil
}

func (s *Store) ListPendingEncryptedMessages(ctx context.Context, owner identity.ID) ([]*store.PendingEncryptedMessage, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT seeker, ciphertext, fetched_at FROM pending_encrypted_messages WHERE owner_user_id = ?`, owner.String())
	if err != nil {
		return nil, fmt.Errorf("list pending encrypted messages: %w", err)
	}
	defer rows.Close()

	var out []*store.PendingEncryptedMessage
	for rows.Next() {
		var seekerB []byte
		m := &store.PendingEncryptedMessage{OwnerUserID: owner}
		if err := rows.Scan(&seekerB, &m.Ciphertext, &m.FetchedAt); err != nil {
			return nil, fmt.Errorf("scan pending encrypted message: %w", err)
		}
		copy(m.Seeker[:], seekerB)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) DeletePendingEncryptedMessage(ctx context.Context, owner identity.ID, seeker store.Seeker) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM pending_encrypted_messages WHERE owner_user_id = ? AND seeker = ?`,
		owner.String(), seekerBytes(&seeker))
	if err != nil {
		return fmt.Errorf("delete pending encrypted message: %w", err)
	}
	return nil
}

func (s *Store) PurgeExpiredPendingEncryptedMessages(ctx context.Context, owner identity.ID, ttl time.Duration) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM pending_encrypted_messages WHERE owner_user_id = ? AND fetched_at < ?`,
		owner.String(), time.Now().Add(-ttl))
	if err != nil {
		return fmt.Errorf("purge expired pending encrypted messages: %w", err)
	}
	return nil
}

func (s *Store) PutPendingAnnouncement(ctx context.Context, a *store.PendingAnnouncement) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_announcements (owner_user_id, counter, data, fetched_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (owner_user_id, counter) DO UPDATE SET data = excluded.data, fetched_at = excluded.fetched_at`,
		a.OwnerUserID.String(), int64(a.Counter), a.Data, a.FetchedAt)
	if err != nil {
		return fmt.Errorf("put pending announcement: %w", err)
	}
	return nil
}

func (s *Store) ListPendingAnnouncements(ctx context.Context, owner identity.ID) ([]*store.PendingAnnouncement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT counter, data, fetched_at FROM pending_announcements WHERE owner_user_id = ? ORDER BY counter ASC`, owner.String())
	if err != nil {
		return nil, fmt.Errorf("list pending announcements: %w", err)
	}
	defer rows.Close()

	var out []*store.PendingAnnouncement
	for rows.Next() {
		var counter int64
		a := &store.PendingAnnouncement{OwnerUserID: owner}
		if err := rows.Scan(&counter, &a.Data, &a.FetchedAt); err != nil {
			return nil, fmt.Errorf("scan pending announcement: %w", err)
		}
		a.Counter = uint64(counter)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) DeletePendingAnnouncement(ctx context.Context, owner identity.ID, counter uint64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM pending_announcements WHERE owner_user_id = ? AND counter = ?`, owner.String(), int64(counter))
	if err != nil {
		return fmt.Errorf("delete pending announcement: %w", err)
	}
	return nil
}

func (s *Store) ReplaceActiveSeekers(ctx context.Context, owner identity.ID, seekers []store.Seeker) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM active_seekers WHERE owner_user_id = ?`, owner.String()); err != nil {
		return fmt.Errorf("truncate active seekers: %w", err)
	}
	for _, sk := range seekers {
		if _, err := tx.ExecContext(ctx, `INSERT INTO active_seekers (owner_user_id, seeker) VALUES (?, ?)`,
			owner.String(), seekerBytes(&sk)); err != nil {
			return fmt.Errorf("insert active seeker: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Store) ListActiveSeekers(ctx context.Context, owner identity.ID) ([]store.Seeker, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT seeker FROM active_seekers WHERE owner_user_id = ?`, owner.String())
	if err != nil {
		return nil, fmt.Errorf("list active seekers: %w", err)
	}
	defer rows.Close()

	var out []store.Seeker
	for rows.Next() {
		var b []byte
		if err := rows.Scan(&b); err != nil {
			return nil, fmt.Errorf("scan active seeker: %w", err)
		}
		var sk store.Seeker
		copy(sk[:], b)
		out = append(out, sk)
	}
	return out, rows.Err()
}
