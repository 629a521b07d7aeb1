package otp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/facevote-api/internal/domain"
	"github.com/facevote-api/internal/pkg/identity"
	pkgtoken "github.com/facevote-api/internal/pkg/token"
)

type IssueRequest struct {
	Identity string `json:"identity" validate:"required"`
	Purpose  string `json:"purpose" validate:"required"`
}

type VerifyRequest struct {
	Identity string `json:"identity" validate:"required"`
	Purpose  string `json:"purpose" validate:"required"`
	Code     string `json:"code" validate:"required,numeric"`
}

// Service is the one-time passcode lifecycle: issue, verify, and the
// single-use "verified" gate other operations consume.
type Service interface {
	// Issue sends a fresh code and supersedes any live code for the same
	// identity and purpose. It returns when the new code expires.
	Issue(ctx context.Context, req IssueRequest) (time.Time, error)
	// Verify consumes a live code. A missing code is domain.ErrOTPExpired;
	// a wrong code is domain.ErrOTPInvalid and leaves the code live.
	Verify(ctx context.Context, req VerifyRequest) error
	// ConsumeVerified spends the marker left by a successful Verify. The
	// same code must be presented; anything else is domain.ErrOTPInvalid.
	ConsumeVerified(ctx context.Context, identity, purpose, code string) error
}

type cache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) (bool, error)
	DeleteIfEqual(ctx context.Context, key string, expected []byte) (bool, error)
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	TTL(ctx context.Context, key string) (time.Duration, error)
}

type hasher interface {
	Hash(plain string) (string, error)
	Verify(plain, encoded string) (bool, error)
}

type messageSender interface {
	SendMessage(ctx context.Context, to, subject, body string) error
}

type ServiceDeps struct {
	Cache       cache
	Hasher      hasher
	Sender      messageSender
	CodeLength  int
	TTL         time.Duration
	MaxAttempts int
	Now         func() time.Time
}

type service struct {
	cache       cache
	hasher      hasher
	sender      messageSender
	codeLength  int
	ttl         time.Duration
	maxAttempts int
	now         func() time.Time
}

func NewService(d ServiceDeps) Service {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		cache:       d.Cache,
		hasher:      d.Hasher,
		sender:      d.Sender,
		codeLength:  d.CodeLength,
		ttl:         d.TTL,
		maxAttempts: d.MaxAttempts,
		now:         now,
	}
}

func codeKey(purpose, id string) string     { return "code:" + purpose + ":" + id }
func verifiedKey(purpose, id string) string { return "verified:" + purpose + ":" + id }
func attemptsKey(purpose, id string) string { return "attempts:" + purpose + ":" + id }
func supersededKey(purpose, id string) string {
	return "superseded:" + purpose + ":" + id
}

// maxSuperseded bounds how many replaced codes are remembered for error
// classification.
const maxSuperseded = 5

func (s *service) Issue(ctx context.Context, req IssueRequest) (time.Time, error) {
	id, err := normalize(req.Identity, req.Purpose)
	if err != nil {
		return time.Time{}, err
	}
	code, err := pkgtoken.NumericCode(s.codeLength)
	if err != nil {
		return time.Time{}, err
	}
	hash, err := s.hasher.Hash(code)
	if err != nil {
		return time.Time{}, fmt.Errorf("hash code: %w", err)
	}
	now := s.now().UTC()
	raw, err := json.Marshal(domain.OTPRecord{Identity: id, Purpose: req.Purpose, Hash: hash, CreatedAt: now})
	if err != nil {
		return time.Time{}, err
	}
	key := codeKey(req.Purpose, id)
	prev, prevTTL := s.live(ctx, key)
	s.rememberSuperseded(ctx, req.Purpose, id, prev)
	if err := s.cache.Set(ctx, key, raw, s.ttl); err != nil {
		return time.Time{}, fmt.Errorf("store code: %w", err)
	}

	subject, body := message(req.Purpose, code, s.ttl)
	if err := s.sender.SendMessage(ctx, id, subject, body); err != nil {
		s.rollbackIssue(ctx, key, raw, prev, prevTTL)
		return time.Time{}, fmt.Errorf("deliver code: %w", err)
	}
	if _, err := s.cache.Delete(ctx, attemptsKey(req.Purpose, id)); err != nil {
		slog.Warn("failed to reset otp attempts", "identity", identity.Mask(id), "err", err)
	}
	slog.Info("otp issued", "identity", identity.Mask(id), "purpose", req.Purpose)
	return now.Add(s.ttl), nil
}

func (s *service) Verify(ctx context.Context, req VerifyRequest) error {
	id, err := normalize(req.Identity, req.Purpose)
	if err != nil {
		return err
	}
	key := codeKey(req.Purpose, id)
	raw, err := s.cache.Get(ctx, key)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ErrOTPExpired
	}
	if err != nil {
		return err
	}
	var rec domain.OTPRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return fmt.Errorf("decode otp record: %w", err)
	}

	ok, err := s.hasher.Verify(req.Code, rec.Hash)
	if err != nil {
		return fmt.Errorf("verify code: %w", err)
	}
	if !ok {
		if s.wasSuperseded(ctx, req.Purpose, id, req.Code) {
			return domain.ErrOTPExpired
		}
		return s.recordFailure(ctx, req.Purpose, id, raw)
	}

	// Only the caller that deletes this exact record wins; a concurrent
	// verify or a newer issue makes this one stale.
	deleted, err := s.cache.DeleteIfEqual(ctx, key, raw)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && !deleted) {
		return domain.ErrOTPExpired
	}
	if err != nil {
		return err
	}
	if err := s.cache.Set(ctx, verifiedKey(req.Purpose, id), []byte(rec.Hash), s.ttl); err != nil {
		return fmt.Errorf("store verified marker: %w", err)
	}
	return nil
}

// recordFailure counts a wrong guess. Past maxAttempts the code is burned so
// the remaining TTL cannot be used to brute-force it.
func (s *service) recordFailure(ctx context.Context, purpose, id string, raw []byte) error {
	if s.maxAttempts <= 0 {
		return domain.ErrOTPInvalid
	}
	n, err := s.cache.Incr(ctx, attemptsKey(purpose, id), s.ttl)
	if err != nil {
		slog.Warn("failed to count otp attempt", "identity", identity.Mask(id), "err", err)
		return domain.ErrOTPInvalid
	}
	if n >= int64(s.maxAttempts) {
		if _, err := s.cache.DeleteIfEqual(ctx, codeKey(purpose, id), raw); err != nil && !errors.Is(err, domain.ErrNotFound) {
			slog.Warn("failed to burn otp", "identity", identity.Mask(id), "err", err)
		}
		slog.Warn("otp burned after too many attempts", "identity", identity.Mask(id), "purpose", purpose)
	}
	return domain.ErrOTPInvalid
}

// live returns the record currently stored at key and its remaining TTL,
// or nil when there is none.
func (s *service) live(ctx context.Context, key string) ([]byte, time.Duration) {
	raw, err := s.cache.Get(ctx, key)
	if err != nil {
		return nil, 0
	}
	ttl, err := s.cache.TTL(ctx, key)
	if err != nil {
		return nil, 0
	}
	return raw, ttl
}

// rollbackIssue undoes a store whose code was never delivered: the new record
// goes and the previously delivered one, if any, is put back for the rest of
// its lifetime. A newer issue that raced in is left alone.
func (s *service) rollbackIssue(ctx context.Context, key string, raw, prev []byte, prevTTL time.Duration) {
	deleted, err := s.cache.DeleteIfEqual(ctx, key, raw)
	if err != nil || !deleted {
		return
	}
	if prev == nil || prevTTL <= 0 {
		return
	}
	if err := s.cache.Set(ctx, key, prev, prevTTL); err != nil {
		slog.Warn("failed to restore previous otp", "err", err)
	}
}

// rememberSuperseded records the hash of the live code, if any, before a new
// issue overwrites it, so that presenting the old code reads as expired.
func (s *service) rememberSuperseded(ctx context.Context, purpose, id string, prev []byte) {
	if prev == nil {
		return
	}
	var rec domain.OTPRecord
	if err := json.Unmarshal(prev, &rec); err != nil {
		return
	}
	hashes := s.supersededHashes(ctx, purpose, id)
	hashes = append(hashes, rec.Hash)
	if len(hashes) > maxSuperseded {
		hashes = hashes[len(hashes)-maxSuperseded:]
	}
	out, err := json.Marshal(hashes)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, supersededKey(purpose, id), out, s.ttl); err != nil {
		slog.Warn("failed to remember superseded otp", "identity", identity.Mask(id), "err", err)
	}
}

func (s *service) supersededHashes(ctx context.Context, purpose, id string) []string {
	raw, err := s.cache.Get(ctx, supersededKey(purpose, id))
	if err != nil {
		return nil
	}
	var hashes []string
	_ = json.Unmarshal(raw, &hashes)
	return hashes
}

func (s *service) wasSuperseded(ctx context.Context, purpose, id, code string) bool {
	for _, h := range s.supersededHashes(ctx, purpose, id) {
		if ok, err := s.hasher.Verify(code, h); err == nil && ok {
			return true
		}
	}
	return false
}

func (s *service) ConsumeVerified(ctx context.Context, rawIdentity, purpose, code string) error {
	id, err := normalize(rawIdentity, purpose)
	if err != nil {
		return err
	}
	key := verifiedKey(purpose, id)
	hash, err := s.cache.Get(ctx, key)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ErrOTPInvalid
	}
	if err != nil {
		return err
	}
	ok, err := s.hasher.Verify(code, string(hash))
	if err != nil || !ok {
		return domain.ErrOTPInvalid
	}
	deleted, err := s.cache.DeleteIfEqual(ctx, key, hash)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && !deleted) {
		return domain.ErrOTPInvalid
	}
	return err
}

func normalize(rawIdentity, purpose string) (string, error) {
	if !domain.ValidPurpose(purpose) {
		return "", domain.Errorf(domain.CodeBadRequest, fmt.Sprintf("unknown purpose %q", purpose))
	}
	id, err := identity.Normalize(rawIdentity)
	if err != nil {
		return "", domain.Errorf(domain.CodeBadRequest, err.Error())
	}
	return id, nil
}

func message(purpose, code string, ttl time.Duration) (subject, body string) {
	minutes := int(ttl.Round(time.Minute) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	switch purpose {
	case domain.PurposeFaceRegistration:
		subject = "Confirm your face registration"
	default:
		subject = "Your sign-in code"
	}
	body = fmt.Sprintf("Your code is %s. It expires in %d minute(s).", code, minutes)
	return subject, body
}
