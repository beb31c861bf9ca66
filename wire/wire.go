// Package wire defines the on-the-wire payload shapes exchanged over
// the announcement and message boards, and their CBOR codec. CBOR
// (fxamacker/cbor) is used instead of JSON for compactness and
// deterministic encoding of binary fields such as public keys.
package wire

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	encOpts := cbor.CanonicalEncOptions()
	m, err := encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("wire: build cbor encode mode: %v", err))
	}
	encMode = m

	decOpts := cbor.DecOptions{}
	dm, err := decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("wire: build cbor decode mode: %v", err))
	}
	decMode = dm
}

// AnnouncementPayload is the plaintext carried inside a session
// announcement: the sender's ephemeral handshake public key plus any
// free-form application data (e.g. a display name or invite note).
type AnnouncementPayload struct {
	SenderStaticPublicKey []byte `cbor:"1,keyasint"`
	EphemeralPublicKey    []byte `cbor:"2,keyasint"`
	UserData              []byte `cbor:"3,keyasint,omitempty"`
}

// Marshal encodes p using the canonical CBOR encoding.
func (p AnnouncementPayload) Marshal() ([]byte, error) {
	b, err := encMode.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal announcement payload: %w", err)
	}
	return b, nil
}

// UnmarshalAnnouncementPayload decodes b into an AnnouncementPayload.
func UnmarshalAnnouncementPayload(b []byte) (AnnouncementPayload, error) {
	var p AnnouncementPayload
	if err := decMode.Unmarshal(b, &p); err != nil {
		return AnnouncementPayload{}, fmt.Errorf("unmarshal announcement payload: %w", err)
	}
	return p, nil
}

// AnnounceText is the optional free-text payload carried inside an
// AnnouncementPayload's UserData: a display name and/or an invite
// note.
type AnnounceText struct {
	Username string `cbor:"1,keyasint,omitempty"`
	Message  string `cbor:"2,keyasint,omitempty"`
}

// Marshal encodes t using the canonical CBOR encoding.
func (t AnnounceText) Marshal() ([]byte, error) {
	b, err := encMode.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("marshal announce text: %w", err)
	}
	return b, nil
}

// UnmarshalAnnounceText decodes b into an AnnounceText. An empty b
// decodes to the zero value.
func UnmarshalAnnounceText(b []byte) (AnnounceText, error) {
	if len(b) == 0 {
		return AnnounceText{}, nil
	}
	var t AnnounceText
	if err := decMode.Unmarshal(b, &t); err != nil {
		return AnnounceText{}, fmt.Errorf("unmarshal announce text: %w", err)
	}
	return t, nil
}

// DecodedMessage is the plaintext payload of a single message-board
// entry, carried inside the ratchet's AEAD once decrypted.
type DecodedMessage struct {
	Type      string `cbor:"1,keyasint"`
	Content   string `cbor:"2,keyasint,omitempty"`
	MessageID []byte `cbor:"3,keyasint"`
	ReplyTo   []byte `cbor:"4,keyasint,omitempty"`
	ForwardOf []byte `cbor:"5,keyasint,omitempty"`
}

// Marshal encodes m using the canonical CBOR encoding.
func (m DecodedMessage) Marshal() ([]byte, error) {
	b, err := encMode.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal decoded message: %w", err)
	}
	return b, nil
}

// UnmarshalDecodedMessage decodes b into a DecodedMessage.
func UnmarshalDecodedMessage(b []byte) (DecodedMessage, error) {
	var m DecodedMessage
	if err := decMode.Unmarshal(b, &m); err != nil {
		return DecodedMessage{}, fmt.Errorf("unmarshal decoded message: %w", err)
	}
	return m, nil
}
