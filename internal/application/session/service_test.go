package session

import (
	"context"
	"errors"
	"testing"

	"github.com/facevote-api/internal/application/otp"
	"github.com/facevote-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockUserStore struct{ mock.Mock }

func (m *mockUserStore) Get(ctx context.Context, identity string) (*domain.User, error) {
	args := m.Called(ctx, identity)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockUserStore) Create(ctx context.Context, u *domain.User) error {
	return m.Called(ctx, u).Error(0)
}
func (m *mockUserStore) Update(ctx context.Context, identity string, updates map[string]interface{}) error {
	return m.Called(ctx, identity, updates).Error(0)
}

type mockVerifier struct{ mock.Mock }

func (m *mockVerifier) Verify(ctx context.Context, req otp.VerifyRequest) error {
	return m.Called(ctx, req).Error(0)
}

type mockSigner struct{ mock.Mock }

func (m *mockSigner) Sign(identity, role string) (string, error) {
	args := m.Called(identity, role)
	return args.String(0), args.Error(1)
}

// --- builder ---

type fixture struct {
	users    *mockUserStore
	verifier *mockVerifier
	signer   *mockSigner
	svc      Service
}

func newFixture(admins ...string) *fixture {
	f := &fixture{users: &mockUserStore{}, verifier: &mockVerifier{}, signer: &mockSigner{}}
	f.svc = NewService(f.users, f.verifier, f.signer, admins)
	return f
}

func loginVerify(identity, code string) otp.VerifyRequest {
	return otp.VerifyRequest{Identity: identity, Purpose: domain.PurposeLogin, Code: code}
}

// --- Login ---

func TestLogin_ExistingUser(t *testing.T) {
	f := newFixture()
	u := &domain.User{UserID: "01HV", Identity: "alice@example.com", Role: domain.RoleVoter}
	f.verifier.On("Verify", mock.Anything, loginVerify("alice@example.com", "123456")).Return(nil)
	f.users.On("Get", mock.Anything, "alice@example.com").Return(u, nil)
	f.signer.On("Sign", "alice@example.com", domain.RoleVoter).Return("jwt", nil)

	res, err := f.svc.Login(context.Background(), LoginRequest{Identity: " Alice@Example.com ", Code: "123456"})
	require.NoError(t, err)
	assert.Equal(t, "jwt", res.Bearer)
	assert.Equal(t, u, res.User)
	f.users.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestLogin_FirstLoginCreatesUser(t *testing.T) {
	f := newFixture()
	f.verifier.On("Verify", mock.Anything, loginVerify("bob@example.com", "123456")).Return(nil)
	f.users.On("Get", mock.Anything, "bob@example.com").Return(nil, domain.ErrNotFound)
	f.users.On("Create", mock.Anything, mock.MatchedBy(func(u *domain.User) bool {
		return u.Identity == "bob@example.com" && u.Role == domain.RoleVoter && u.UserID != "" && !u.HasFace
	})).Return(nil)
	f.signer.On("Sign", "bob@example.com", domain.RoleVoter).Return("jwt", nil)

	res, err := f.svc.Login(context.Background(), LoginRequest{Identity: "bob@example.com", Code: "123456"})
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", res.User.Identity)
	f.users.AssertExpectations(t)
}

func TestLogin_ConcurrentCreateFallsBackToGet(t *testing.T) {
	f := newFixture()
	existing := &domain.User{UserID: "01HV", Identity: "bob@example.com", Role: domain.RoleVoter}
	f.verifier.On("Verify", mock.Anything, mock.Anything).Return(nil)
	f.users.On("Get", mock.Anything, "bob@example.com").Return(nil, domain.ErrNotFound).Once()
	f.users.On("Create", mock.Anything, mock.Anything).Return(domain.ErrConflict)
	f.users.On("Get", mock.Anything, "bob@example.com").Return(existing, nil).Once()
	f.signer.On("Sign", "bob@example.com", domain.RoleVoter).Return("jwt", nil)

	res, err := f.svc.Login(context.Background(), LoginRequest{Identity: "bob@example.com", Code: "123456"})
	require.NoError(t, err)
	assert.Equal(t, "01HV", res.User.UserID)
}

func TestLogin_AdminIdentityGetsAdminRole(t *testing.T) {
	f := newFixture("Root@Example.com")
	f.verifier.On("Verify", mock.Anything, mock.Anything).Return(nil)
	f.users.On("Get", mock.Anything, "root@example.com").Return(nil, domain.ErrNotFound)
	f.users.On("Create", mock.Anything, mock.MatchedBy(func(u *domain.User) bool { return u.Role == domain.RoleAdmin })).Return(nil)
	f.signer.On("Sign", "root@example.com", domain.RoleAdmin).Return("jwt", nil)

	res, err := f.svc.Login(context.Background(), LoginRequest{Identity: "root@example.com", Code: "123456"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, res.User.Role)
}

func TestLogin_PromotesExistingAdmin(t *testing.T) {
	f := newFixture("root@example.com")
	u := &domain.User{UserID: "01HV", Identity: "root@example.com", Role: domain.RoleVoter}
	f.verifier.On("Verify", mock.Anything, mock.Anything).Return(nil)
	f.users.On("Get", mock.Anything, "root@example.com").Return(u, nil)
	f.users.On("Update", mock.Anything, "root@example.com", map[string]interface{}{"role": domain.RoleAdmin}).Return(nil)
	f.signer.On("Sign", "root@example.com", domain.RoleAdmin).Return("jwt", nil)

	_, err := f.svc.Login(context.Background(), LoginRequest{Identity: "root@example.com", Code: "123456"})
	require.NoError(t, err)
	f.users.AssertExpectations(t)
}

func TestLogin_OTPErrorsPassThrough(t *testing.T) {
	for _, want := range []error{domain.ErrOTPExpired, domain.ErrOTPInvalid} {
		f := newFixture()
		f.verifier.On("Verify", mock.Anything, mock.Anything).Return(want)

		_, err := f.svc.Login(context.Background(), LoginRequest{Identity: "alice@example.com", Code: "000000"})
		assert.ErrorIs(t, err, want)
		f.users.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
	}
}

func TestLogin_BadIdentity(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Login(context.Background(), LoginRequest{Identity: "not an identity", Code: "123456"})
	assert.Equal(t, domain.CodeBadRequest, domain.CodeOf(err))
}

func TestLogin_SignFailure(t *testing.T) {
	f := newFixture()
	f.verifier.On("Verify", mock.Anything, mock.Anything).Return(nil)
	f.users.On("Get", mock.Anything, "alice@example.com").Return(&domain.User{Identity: "alice@example.com", Role: domain.RoleVoter}, nil)
	f.signer.On("Sign", mock.Anything, mock.Anything).Return("", errors.New("no key"))

	_, err := f.svc.Login(context.Background(), LoginRequest{Identity: "alice@example.com", Code: "123456"})
	assert.Error(t, err)
}

func TestGetCurrent(t *testing.T) {
	f := newFixture()
	u := &domain.User{Identity: "alice@example.com"}
	f.users.On("Get", mock.Anything, "alice@example.com").Return(u, nil)
	got, err := f.svc.GetCurrent(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, u, got)
}
