package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/facevote-api/internal/application/otp"
	"github.com/facevote-api/internal/domain"
	"github.com/facevote-api/internal/pkg/id"
	"github.com/facevote-api/internal/pkg/identity"
)

type LoginRequest struct {
	Identity string `json:"identity" validate:"required"`
	Code     string `json:"code" validate:"required,numeric"`
}

type LoginResult struct {
	Bearer string       `json:"bearer"`
	User   *domain.User `json:"user"`
}

type Service interface {
	// Login spends a "login" OTP and returns a bearer JWT. The user is created
	// on first login.
	Login(ctx context.Context, req LoginRequest) (*LoginResult, error)
	GetCurrent(ctx context.Context, identity string) (*domain.User, error)
}

type userStore interface {
	Get(ctx context.Context, identity string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	Update(ctx context.Context, identity string, updates map[string]interface{}) error
}

type otpVerifier interface {
	Verify(ctx context.Context, req otp.VerifyRequest) error
}

type tokenSigner interface {
	Sign(identity, role string) (string, error)
}

type service struct {
	users  userStore
	otp    otpVerifier
	signer tokenSigner
	admins map[string]struct{}
}

func NewService(users userStore, verifier otpVerifier, signer tokenSigner, adminIdentities []string) Service {
	admins := make(map[string]struct{}, len(adminIdentities))
	for _, a := range adminIdentities {
		if n, err := identity.Normalize(a); err == nil {
			admins[n] = struct{}{}
		}
	}
	return &service{users: users, otp: verifier, signer: signer, admins: admins}
}

func (s *service) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	ident, err := identity.Normalize(req.Identity)
	if err != nil {
		return nil, domain.Errorf(domain.CodeBadRequest, err.Error())
	}
	if err := s.otp.Verify(ctx, otp.VerifyRequest{Identity: ident, Purpose: domain.PurposeLogin, Code: req.Code}); err != nil {
		return nil, err
	}

	u, err := s.ensureUser(ctx, ident)
	if err != nil {
		return nil, err
	}
	bearer, err := s.signer.Sign(u.Identity, u.Role)
	if err != nil {
		return nil, fmt.Errorf("sign bearer: %w", err)
	}
	slog.Info("session started", "identity", identity.Mask(ident), "role", u.Role)
	return &LoginResult{Bearer: bearer, User: u}, nil
}

func (s *service) GetCurrent(ctx context.Context, ident string) (*domain.User, error) {
	return s.users.Get(ctx, ident)
}

func (s *service) roleFor(ident string) string {
	if _, ok := s.admins[ident]; ok {
		return domain.RoleAdmin
	}
	return domain.RoleVoter
}

func (s *service) ensureUser(ctx context.Context, ident string) (*domain.User, error) {
	u, err := s.users.Get(ctx, ident)
	if errors.Is(err, domain.ErrNotFound) {
		now := time.Now().UTC()
		u = &domain.User{
			UserID:    id.New(),
			Identity:  ident,
			Role:      s.roleFor(ident),
			CreatedAt: now,
			UpdatedAt: now,
		}
		err = s.users.Create(ctx, u)
		if errors.Is(err, domain.ErrConflict) {
			// a concurrent first login created it
			u, err = s.users.Get(ctx, ident)
		}
	}
	if err != nil {
		return nil, err
	}

	if want := s.roleFor(ident); want == domain.RoleAdmin && u.Role != want {
		if err := s.users.Update(ctx, ident, map[string]interface{}{"role": want}); err != nil {
			return nil, fmt.Errorf("promote admin: %w", err)
		}
		u.Role = want
	}
	return u, nil
}
