package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"golang.org/x/crypto/curve25519"

	"github.com/gossip-project/gossip-client/config"
	"github.com/gossip-project/gossip-client/identity"
	gossipsdk "github.com/gossip-project/gossip-client/sdk"
	httptransport "github.com/gossip-project/gossip-client/transport/http"
)

// keyFile is the on-disk shape written by keygen: a raw X25519 static
// identity keypair, hex-encoded, plus its derived identity.ID as a
// bech32 string.
type keyFile struct {
	Priv string `json:"priv"`
	Pub  string `json:"pub"`
	ID   string `json:"id"`
}

func loadKeyFile(path string) (priv, pub []byte, id identity.ID, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, identity.ID{}, fmt.Errorf("read key file: %w", err)
	}
	var kf keyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, nil, identity.ID{}, fmt.Errorf("parse key file: %w", err)
	}
	priv, err = hex.DecodeString(kf.Priv)
	if err != nil {
		return nil, nil, identity.ID{}, fmt.Errorf("decode priv: %w", err)
	}
	pub, err = hex.DecodeString(kf.Pub)
	if err != nil {
		return nil, nil, identity.ID{}, fmt.Errorf("decode pub: %w", err)
	}
	id, err = identity.Decode(kf.ID)
	if err != nil {
		return nil, nil, identity.ID{}, fmt.Errorf("decode id: %w", err)
	}
	return priv, pub, id, nil
}

func saveKeyFile(path string, priv, pub []byte, id identity.ID) error {
	kf := keyFile{Priv: hex.EncodeToString(priv), Pub: hex.EncodeToString(pub), ID: id.String()}
	data, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return fmt.Errorf("encode key file: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// sealingKey derives a local-at-rest encryption key for the session
// blob from the identity's own static private key. This has nothing
// to do with mnemonic/seed derivation (out of scope here): it only
// protects the cached ratchet state this CLI keeps next to the key
// file between invocations.
func sealingKey(priv []byte) []byte {
	sum := sha256.Sum256(append([]byte("gossip-cli/session-seal/v1:"), priv...))
	return sum[:]
}

func sessionBlobPath(keyPath string) string { return keyPath + ".session.enc" }

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(config.Options{FilePath: flagConfig})
	if err != nil {
		return config.Config{}, err
	}
	return *cfg, nil
}

// openEngineAndSession builds an Engine and opens its Session against
// the key file at flagKey, restoring any previously persisted ratchet
// state and re-arming the persistence callback so it keeps saving.
func openEngineAndSession(ctx context.Context) (*gossipsdk.Engine, *gossipsdk.Session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	priv, pub, id, err := loadKeyFile(flagKey)
	if err != nil {
		return nil, nil, err
	}

	tr := httptransport.New(cfg.Transport.NodeURL, cfg.Transport.Timeout)

	engine, err := gossipsdk.Init(cfg, tr)
	if err != nil {
		return nil, nil, fmt.Errorf("init engine: %w", err)
	}

	key := sealingKey(priv)
	params := gossipsdk.OpenSessionParams{
		Owner:      id,
		StaticPriv: priv,
		StaticPub:  pub,
		OnPersist: func(ctx context.Context, blob []byte) error {
			return os.WriteFile(sessionBlobPath(flagKey), blob, 0600)
		},
		EncryptionKey: key,
	}
	if blob, err := os.ReadFile(sessionBlobPath(flagKey)); err == nil {
		params.EncryptedSession = blob
	}

	sess, err := engine.OpenSession(ctx, params)
	if err != nil {
		return nil, nil, fmt.Errorf("open session: %w", err)
	}
	return engine, sess, nil
}

func parsePubKeyHex(s string) ([]byte, error) {
	pk, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode public key hex: %w", err)
	}
	if len(pk) != curve25519.PointSize {
		return nil, fmt.Errorf("public key must be %d bytes, got %d", curve25519.PointSize, len(pk))
	}
	return pk, nil
}

func parseID(s string) (identity.ID, error) {
	return identity.Decode(s)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(time.RFC3339)
}
