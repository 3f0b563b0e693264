package sessions

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"
)

// Service wraps repository operations with business logic
type Service struct {
	repo Repository
}

func NewService(r Repository) *Service { return &Service{repo: r} }

// Create stores a new portal session and returns its id. The id doubles as
// the cookie value, so it comes from crypto/rand.
func (s *Service) Create(ctx context.Context, sess Session, ttl time.Duration) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	sess.ID = hex.EncodeToString(b)
	now := time.Now().UTC()
	sess.CreatedAt = now
	sess.ExpiresAt = now.Add(ttl)
	if err := s.repo.Create(ctx, &sess); err != nil {
		return "", err
	}
	return sess.ID, nil
}

// Validate returns the session if the id is valid and not expired.
func (s *Service) Validate(ctx context.Context, id string) (*Session, error) {
	sess, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, nil
	}
	if time.Now().UTC().After(sess.ExpiresAt) {
		// cleanup expired session
		_ = s.repo.DeleteByID(ctx, id)
		return nil, nil
	}
	return sess, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.DeleteByID(ctx, id)
}
