package face

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/facevote-api/internal/domain"
	"github.com/facevote-api/internal/pkg/identity"
	"github.com/facevote-api/internal/pkg/imagenorm"
)

type RegisterInput struct {
	Image       []byte
	ContentType string
	OTPCode     string
}

type Service interface {
	// Register stores the face image for identity, gated by a verified
	// face-registration OTP. Re-registration overwrites the same object.
	Register(ctx context.Context, identity string, in RegisterInput) (*domain.FaceReference, error)
	// SignedReference returns a time-limited URL for the stored image. fresh
	// bypasses the cache and mints a new URL.
	SignedReference(ctx context.Context, identity string, fresh bool) (domain.SignedReference, error)
}

type objectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	SignURL(ctx context.Context, key string, ttl time.Duration) (domain.SignedReference, error)
}

type userStore interface {
	Get(ctx context.Context, identity string) (*domain.User, error)
	SetHasFace(ctx context.Context, identity string) (bool, error)
}

type otpGate interface {
	ConsumeVerified(ctx context.Context, identity, purpose, code string) error
}

type cache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
}

type ServiceDeps struct {
	Objects   objectStore
	Users     userStore
	OTP       otpGate
	Cache     cache
	KeyPrefix string
	// GrantTTL is the lifetime requested from object storage; CacheTTL must
	// not exceed it.
	GrantTTL     time.Duration
	CacheTTL     time.Duration
	MaxBytes     int64
	MaxDimension int
	MaxPixels    int
	Now          func() time.Time
}

type service struct {
	objects      objectStore
	users        userStore
	otp          otpGate
	cache        cache
	keyPrefix    string
	grantTTL     time.Duration
	cacheTTL     time.Duration
	maxBytes     int64
	limits       imagenorm.Limits
	now          func() time.Time
}

func NewService(d ServiceDeps) Service {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	cacheTTL := d.CacheTTL
	if cacheTTL > d.GrantTTL {
		cacheTTL = d.GrantTTL
	}
	return &service{
		objects:      d.Objects,
		users:        d.Users,
		otp:          d.OTP,
		cache:        d.Cache,
		keyPrefix:    d.KeyPrefix,
		grantTTL:     d.GrantTTL,
		cacheTTL:     cacheTTL,
		maxBytes:     d.MaxBytes,
		limits:       imagenorm.Limits{MaxDimension: d.MaxDimension, MaxPixels: d.MaxPixels},
		now:          now,
	}
}

// ObjectKey is the deterministic storage path for a user's face image.
func ObjectKey(prefix, userID string) string {
	return fmt.Sprintf("%s/%s", prefix, userID)
}

func refKey(id string) string { return "ref:" + id }

func (s *service) Register(ctx context.Context, id string, in RegisterInput) (*domain.FaceReference, error) {
	if in.OTPCode == "" {
		return nil, domain.ErrOTPInvalid
	}
	if s.maxBytes > 0 && int64(len(in.Image)) > s.maxBytes {
		return nil, fmt.Errorf("image exceeds %d bytes: %w", s.maxBytes, domain.ErrBadRequest)
	}
	data, contentType, err := imagenorm.Normalize(in.Image, in.ContentType, s.limits)
	if err != nil {
		return nil, err
	}
	u, err := s.users.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.otp.ConsumeVerified(ctx, id, domain.PurposeFaceRegistration, in.OTPCode); err != nil {
		return nil, err
	}

	key := ObjectKey(s.keyPrefix, u.UserID)
	if err := s.objects.Put(ctx, key, data, contentType); err != nil {
		return nil, err
	}
	first, err := s.users.SetHasFace(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("set has_face: %w", err)
	}
	slog.Info("face registered", "identity", identity.Mask(id), "first", first, "bytes", len(data))
	return &domain.FaceReference{
		UserID:      u.UserID,
		Key:         key,
		ContentType: contentType,
		Size:        int64(len(data)),
	}, nil
}

func (s *service) SignedReference(ctx context.Context, id string, fresh bool) (domain.SignedReference, error) {
	u, err := s.users.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.SignedReference{}, domain.ErrNotRegistered
	}
	if err != nil {
		return domain.SignedReference{}, err
	}
	if !u.HasFace {
		return domain.SignedReference{}, domain.ErrNotRegistered
	}

	now := s.now()
	if !fresh {
		if ref, ok := s.cached(ctx, id, now); ok {
			return ref, nil
		}
	}

	ref, err := s.objects.SignURL(ctx, ObjectKey(s.keyPrefix, u.UserID), s.grantTTL)
	if err != nil {
		return domain.SignedReference{}, err
	}
	// The entry must not outlive the URL it wraps.
	ttl := s.cacheTTL
	if remaining := ref.ExpiresAt.Sub(now); remaining < ttl {
		ttl = remaining
	}
	if ttl > 0 {
		raw, err := json.Marshal(ref)
		if err == nil {
			err = s.cache.Set(ctx, refKey(id), raw, ttl)
		}
		if err != nil {
			slog.Warn("failed to cache signed reference", "identity", identity.Mask(id), "err", err)
		}
	}
	return ref, nil
}

func (s *service) cached(ctx context.Context, id string, now time.Time) (domain.SignedReference, bool) {
	raw, err := s.cache.Get(ctx, refKey(id))
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			slog.Warn("signed reference cache read failed", "identity", identity.Mask(id), "err", err)
		}
		return domain.SignedReference{}, false
	}
	var ref domain.SignedReference
	if err := json.Unmarshal(raw, &ref); err != nil {
		return domain.SignedReference{}, false
	}
	if ref.Expired(now) {
		return domain.SignedReference{}, false
	}
	return ref, true
}
