// Package gate is the client side of the voting protocol: it compares a live
// capture with the registered reference image, then mints a vote token and
// casts, reacting to each server error code with a fixed retry policy.
package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/facevote-api/internal/domain"
)

// FeatureVector is a face embedding produced by the engine.
type FeatureVector []float64

// FaceEngine detects a face and embeds it. ok is false when no face was found.
type FaceEngine interface {
	DetectAndEmbed(ctx context.Context, image []byte) (vec FeatureVector, ok bool, err error)
	Distance(a, b FeatureVector) float64
}

type Camera interface {
	Capture(ctx context.Context) ([]byte, error)
}

type State string

const (
	StateIdle              State = "IDLE"
	StateReferenceLoaded   State = "REFERENCE_LOADED"
	StateCompared          State = "COMPARED"
	StateTokenMinted       State = "TOKEN_MINTED"
	StateCasting           State = "CASTING"
	StateAccepted          State = "ACCEPTED"
	StateRejected          State = "REJECTED"
	StateNeedsRegistration State = "NEEDS_REGISTRATION"
	StateDoubleVote        State = "DOUBLE_VOTE"
	StateFatal             State = "FATAL"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	switch s {
	case StateAccepted, StateNeedsRegistration, StateDoubleVote, StateFatal:
		return true
	}
	return false
}

var (
	ErrNotVerified   = errors.New("gate: face not verified for this session")
	ErrTerminal      = errors.New("gate: session is in a terminal state")
	ErrResendTooSoon = errors.New("gate: resend not yet allowed")
)

// Session is the explicit per-voter state the gate advances. It replaces any
// ambient "already sent" or "already loaded" flags.
type Session struct {
	State      State
	History    []State
	Reference  FeatureVector
	Similarity float64
	VoteID     string
	OTPSent    bool
	Resend     ResendTimer
	Err        error
}

type Config struct {
	// Threshold is the minimum similarity (1 - distance) to accept; exclusive.
	Threshold float64
	// MaxCastAttempts bounds re-mints after TOKEN_EXPIRED.
	MaxCastAttempts int
	ResendInterval  time.Duration
	Now             func() time.Time
}

const (
	DefaultThreshold       = 0.6
	DefaultMaxCastAttempts = 3
	DefaultResendInterval  = 60 * time.Second
)

type Gate struct {
	api     API
	engine  FaceEngine
	camera  Camera
	fetcher Fetcher
	cfg     Config
}

func New(api API, engine FaceEngine, camera Camera, fetcher Fetcher, cfg Config) *Gate {
	if cfg.Threshold == 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.MaxCastAttempts <= 0 {
		cfg.MaxCastAttempts = DefaultMaxCastAttempts
	}
	if cfg.ResendInterval <= 0 {
		cfg.ResendInterval = DefaultResendInterval
	}
	return &Gate{api: api, engine: engine, camera: camera, fetcher: fetcher, cfg: cfg}
}

func (g *Gate) NewSession() *Session {
	return &Session{State: StateIdle, Resend: NewResendTimer(g.cfg.ResendInterval, g.cfg.Now)}
}

// RequestOTP asks the server to send a code unless the resend countdown is
// still running.
func (g *Gate) RequestOTP(ctx context.Context, s *Session, identity, purpose string) (time.Time, error) {
	if s.OTPSent && !s.Resend.Ready() {
		return time.Time{}, fmt.Errorf("%w: %s left", ErrResendTooSoon, s.Resend.Remaining().Round(time.Second))
	}
	exp, err := g.api.IssueOTP(ctx, identity, purpose)
	if err != nil {
		return time.Time{}, err
	}
	s.OTPSent = true
	s.Resend.Start()
	return exp, nil
}

// Verify captures a live frame and compares it with the reference. The
// reference is fetched once per session and reused across retakes. A
// FACE_NOT_DETECTED or FACE_MISMATCH leaves the session ready for a retake.
func (g *Gate) Verify(ctx context.Context, s *Session) error {
	if s.State.Terminal() {
		return ErrTerminal
	}
	if s.Reference == nil {
		if err := g.loadReference(ctx, s); err != nil {
			return s.fail(err)
		}
	}
	s.set(StateReferenceLoaded)

	frame, err := g.camera.Capture(ctx)
	if err != nil {
		return s.fail(fmt.Errorf("capture: %w", err))
	}
	live, ok, err := g.engine.DetectAndEmbed(ctx, frame)
	if err != nil {
		return s.fail(fmt.Errorf("embed capture: %w", err))
	}
	if !ok {
		return s.fail(domain.ErrFaceNotDetected)
	}

	s.Similarity = 1 - g.engine.Distance(s.Reference, live)
	if s.Similarity <= g.cfg.Threshold {
		return s.fail(domain.ErrFaceMismatch)
	}
	s.set(StateCompared)
	s.Err = nil
	return nil
}

// loadReference derives the reference embedding from the signed URL. A failed
// fetch is treated as a stale reference and retried once with a forced
// re-mint before giving up with FACE_CAPTURE_FAILED.
func (g *Gate) loadReference(ctx context.Context, s *Session) error {
	img, err := g.fetchReference(ctx, false)
	if errors.Is(err, domain.ErrSignedReferenceStale) {
		slog.Debug("signed reference stale, re-deriving", "err", err)
		img, err = g.fetchReference(ctx, true)
	}
	if errors.Is(err, domain.ErrNotRegistered) {
		s.set(StateNeedsRegistration)
		return err
	}
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrFaceCaptureFailed, err)
	}

	vec, ok, err := g.engine.DetectAndEmbed(ctx, img)
	if err != nil || !ok {
		return domain.ErrFaceCaptureFailed
	}
	s.Reference = vec
	return nil
}

func (g *Gate) fetchReference(ctx context.Context, fresh bool) ([]byte, error) {
	ref, err := g.api.SignedReference(ctx, fresh)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	if g.cfg.Now != nil {
		now = g.cfg.Now()
	}
	if ref.Expired(now) {
		return nil, domain.ErrSignedReferenceStale
	}
	img, err := g.fetcher.Fetch(ctx, ref.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSignedReferenceStale, err)
	}
	return img, nil
}

// Cast mints a token and submits the ballot. TOKEN_EXPIRED re-mints and
// resubmits the same payload up to MaxCastAttempts times; every other error
// code ends the attempt in the state its code dictates.
func (g *Gate) Cast(ctx context.Context, s *Session, targetID string, selections map[string][]string) (*domain.CastResult, error) {
	if s.State.Terminal() {
		return nil, ErrTerminal
	}
	if s.State != StateCompared && s.State != StateRejected {
		return nil, ErrNotVerified
	}

	var lastErr error
	for attempt := 1; attempt <= g.cfg.MaxCastAttempts; attempt++ {
		tok, err := g.api.MintToken(ctx)
		if err != nil {
			return nil, s.castFailed(err)
		}
		s.set(StateTokenMinted)

		s.set(StateCasting)
		res, err := g.api.Cast(ctx, domain.CastRequest{Token: tok, TargetID: targetID, Selections: selections})
		if err == nil {
			s.set(StateAccepted)
			s.VoteID = res.VoteID
			s.Err = nil
			return res, nil
		}
		if !errors.Is(err, domain.ErrTokenExpired) {
			return nil, s.castFailed(err)
		}
		slog.Debug("vote token expired, re-minting", "attempt", attempt)
		lastErr = err
	}
	s.set(StateRejected)
	s.Err = lastErr
	return nil, lastErr
}

func (s *Session) castFailed(err error) error {
	switch domain.CodeOf(err) {
	case domain.CodeDoubleVoteAttempt:
		s.set(StateDoubleVote)
	case domain.CodeTokenInvalid:
		slog.Error("server rejected vote token ownership", "err", err)
		s.set(StateFatal)
	case domain.CodeNotRegistered:
		s.set(StateNeedsRegistration)
	case domain.CodeUnauthorized, domain.CodeForbidden:
		s.set(StateFatal)
	default:
		s.set(StateRejected)
	}
	s.Err = err
	return err
}

func (s *Session) fail(err error) error {
	s.Err = err
	return err
}

// set records a transition; History lets callers audit the path taken.
func (s *Session) set(st State) {
	if s.State == st {
		return
	}
	s.State = st
	s.History = append(s.History, st)
}
