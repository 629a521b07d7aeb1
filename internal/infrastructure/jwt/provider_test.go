package jwtinfra

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/facevote-api/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider_FromPEMFiles(t *testing.T) {
	privKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	dir := t.TempDir()
	privPath := filepath.Join(dir, "private.pem")
	pubPath := filepath.Join(dir, "public.pem")
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(privKey)})
	require.NoError(t, os.WriteFile(privPath, privPEM, 0600))
	pubBytes, err := x509.MarshalPKIXPublicKey(&privKey.PublicKey)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(pubPath, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes}), 0600))

	p, err := NewProvider(&config.Config{JWTPrivateKeyPath: privPath, JWTPublicKeyPath: pubPath, JWTExpiry: time.Hour})
	require.NoError(t, err)

	signed, err := p.Sign("alice@example.com", "voter")
	require.NoError(t, err)
	claims, err := p.Verify(signed)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", claims.Identity)
	assert.Equal(t, "voter", claims.Role)
}

func TestNewProvider_MissingKey(t *testing.T) {
	_, err := NewProvider(&config.Config{JWTPrivateKeyPath: filepath.Join(t.TempDir(), "nope.pem")})
	assert.ErrorContains(t, err, "read private key")
}

func TestVerify_ExpiredToken(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	p := NewProviderFromKey(key, -time.Minute)

	signed, err := p.Sign("alice@example.com", "voter")
	require.NoError(t, err)
	_, err = p.Verify(signed)
	assert.Error(t, err)
}

func TestVerify_ForeignKey(t *testing.T) {
	k1, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	k2, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	signed, err := NewProviderFromKey(k1, time.Hour).Sign("alice@example.com", "voter")
	require.NoError(t, err)
	_, err = NewProviderFromKey(k2, time.Hour).Verify(signed)
	assert.Error(t, err)
}
