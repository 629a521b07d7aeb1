package votetoken

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/facevote-api/internal/domain"
	"github.com/facevote-api/internal/pkg/identity"
	pkgtoken "github.com/facevote-api/internal/pkg/token"
)

// Service mints and spends single-use vote tokens. A token is bound to the
// bearer that minted it and authorizes exactly one cast.
type Service interface {
	Mint(ctx context.Context, bearer string) (token string, expiresAt time.Time, err error)
	// ConsumeAndValidate spends token for bearer. A missing or spent token is
	// domain.ErrTokenExpired; a token minted by someone else is
	// domain.ErrTokenInvalid and stays live for its owner.
	ConsumeAndValidate(ctx context.Context, token, bearer string) error
}

type cache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeleteIfEqual(ctx context.Context, key string, expected []byte) (bool, error)
}

type service struct {
	cache cache
	ttl   time.Duration
	now   func() time.Time
}

func NewService(c cache, ttl time.Duration) Service {
	return &service{cache: c, ttl: ttl, now: time.Now}
}

func tokenKey(token string) string { return "token:" + token }

func (s *service) Mint(ctx context.Context, bearer string) (string, time.Time, error) {
	if bearer == "" {
		return "", time.Time{}, domain.ErrUnauthorized
	}
	tok, err := pkgtoken.New()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generate vote token: %w", err)
	}
	if err := s.cache.Set(ctx, tokenKey(tok), []byte(bearer), s.ttl); err != nil {
		return "", time.Time{}, fmt.Errorf("store vote token: %w", err)
	}
	return tok, s.now().UTC().Add(s.ttl), nil
}

func (s *service) ConsumeAndValidate(ctx context.Context, token, bearer string) error {
	if token == "" {
		return domain.ErrTokenExpired
	}
	deleted, err := s.cache.DeleteIfEqual(ctx, tokenKey(token), []byte(bearer))
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ErrTokenExpired
	}
	if err != nil {
		return err
	}
	if !deleted {
		slog.Warn("vote token presented by non-owner", "bearer", identity.Mask(bearer), "token", tokenPrefix(token))
		return domain.ErrTokenInvalid
	}
	return nil
}

func tokenPrefix(token string) string {
	if len(token) <= 8 {
		return "***"
	}
	return token[:8] + "..."
}
