package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/gossip-project/gossip-client/internal/logger"
	"github.com/gossip-project/gossip-client/store"
)

// transport is the narrow slice of transport.Transport this package
// needs; declared locally so identity never imports the transport
// package (avoids a store/transport/identity import cycle).
type transport interface {
	PostPublicKey(ctx context.Context, pk []byte) (hash string, err error)
}

// RepublishService republishes a user's static public key to the
// bulletin node on a cadence, so a stale or never-pushed key never
// silently blocks peers resolving it.
type RepublishService struct {
	store store.Store
	tr    transport
	log   logger.Logger
}

// NewRepublishService constructs a RepublishService over the given
// dependencies.
func NewRepublishService(st store.Store, tr transport, log logger.Logger) *RepublishService {
	return &RepublishService{store: st, tr: tr, log: log}
}

// RepublishPublicKeyIfStale pushes pk to the bulletin node and updates
// owner's UserProfile.LastPublicKeyPush if it has never been pushed or
// is older than maxAge. It is a no-op otherwise.
func (s *RepublishService) RepublishPublicKeyIfStale(ctx context.Context, owner ID, pk []byte, maxAge time.Duration) error {
	profile, err := s.store.GetProfile(ctx, owner)
	if err != nil {
		return fmt.Errorf("identity: load profile: %w", err)
	}

	if !profile.LastPublicKeyPush.IsZero() && time.Since(profile.LastPublicKeyPush) < maxAge {
		return nil
	}

	if _, err := s.tr.PostPublicKey(ctx, pk); err != nil {
		return fmt.Errorf("identity: post public key: %w", err)
	}

	profile.LastPublicKeyPush = time.Now()
	if err := s.store.PutProfile(ctx, profile); err != nil {
		return fmt.Errorf("identity: persist profile: %w", err)
	}

	if s.log != nil {
		s.log.Info("republished static public key", logger.String("owner", owner.String()))
	}
	return nil
}
