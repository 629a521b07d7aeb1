package http

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/facevote-api/internal/config"
	"github.com/facevote-api/internal/domain"
	jwtinfra "github.com/facevote-api/internal/infrastructure/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (http.Handler, *jwtinfra.Provider) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	p := jwtinfra.NewProviderFromKey(key, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	cfg := &config.Config{AllowedOrigins: []string{"*"}, FaceMaxBytes: 1 << 20}
	return NewRouter(ctx, cfg, &Deps{JWTProvider: p}), p
}

func TestRouter_HealthCheck(t *testing.T) {
	r, _ := newTestRouter(t)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health-check/ping", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "pong")
}

func TestRouter_AuthenticatedRoutesRequireBearer(t *testing.T) {
	r, _ := newTestRouter(t)
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/v1/face"},
		{http.MethodPost, "/v1/face"},
		{http.MethodPost, "/v1/vote-token"},
		{http.MethodPost, "/v1/vote"},
		{http.MethodGet, "/v1/targets/election-42"},
	} {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(tc.method, tc.path, nil))
		assert.Equal(t, http.StatusUnauthorized, rr.Code, tc.path)
		assert.Contains(t, rr.Body.String(), `"error_code":"UNAUTHORIZED"`, tc.path)
	}
}

func TestRouter_TargetCreationIsAdminOnly(t *testing.T) {
	r, p := newTestRouter(t)
	bearer, err := p.Sign("alice@example.com", domain.RoleVoter)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/targets", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer "+bearer)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}
