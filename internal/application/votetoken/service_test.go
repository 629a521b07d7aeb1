package votetoken

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/facevote-api/internal/domain"
	redisinfra "github.com/facevote-api/internal/infrastructure/redis"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewService(redisinfra.NewCache(client, "vote:"), 5*time.Minute), mr
}

func TestMint_StoresBearerWithTTL(t *testing.T) {
	svc, mr := newTestService(t)
	tok, exp, err := svc.Mint(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.Len(t, tok, 64)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), exp, 5*time.Second)

	got, err := mr.Get("vote:token:" + tok)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", got)
	assert.Equal(t, 5*time.Minute, mr.TTL("vote:token:"+tok))
}

func TestMint_RequiresBearer(t *testing.T) {
	svc, _ := newTestService(t)
	_, _, err := svc.Mint(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestMint_TokensAreDistinct(t *testing.T) {
	svc, _ := newTestService(t)
	a, _, err := svc.Mint(context.Background(), "alice@example.com")
	require.NoError(t, err)
	b, _, err := svc.Mint(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	// minting again does not revoke the earlier token
	assert.NoError(t, svc.ConsumeAndValidate(context.Background(), a, "alice@example.com"))
	assert.NoError(t, svc.ConsumeAndValidate(context.Background(), b, "alice@example.com"))
}

func TestConsume_SingleUse(t *testing.T) {
	svc, _ := newTestService(t)
	tok, _, err := svc.Mint(context.Background(), "alice@example.com")
	require.NoError(t, err)

	require.NoError(t, svc.ConsumeAndValidate(context.Background(), tok, "alice@example.com"))
	assert.ErrorIs(t, svc.ConsumeAndValidate(context.Background(), tok, "alice@example.com"), domain.ErrTokenExpired)
}

func TestConsume_WrongBearerLeavesTokenLive(t *testing.T) {
	svc, _ := newTestService(t)
	tok, _, err := svc.Mint(context.Background(), "alice@example.com")
	require.NoError(t, err)

	assert.ErrorIs(t, svc.ConsumeAndValidate(context.Background(), tok, "mallory@example.com"), domain.ErrTokenInvalid)
	assert.NoError(t, svc.ConsumeAndValidate(context.Background(), tok, "alice@example.com"))
}

func TestConsume_Expired(t *testing.T) {
	svc, mr := newTestService(t)
	tok, _, err := svc.Mint(context.Background(), "alice@example.com")
	require.NoError(t, err)

	mr.FastForward(5*time.Minute + time.Second)
	assert.ErrorIs(t, svc.ConsumeAndValidate(context.Background(), tok, "alice@example.com"), domain.ErrTokenExpired)
}

func TestConsume_UnknownOrEmpty(t *testing.T) {
	svc, _ := newTestService(t)
	assert.ErrorIs(t, svc.ConsumeAndValidate(context.Background(), "deadbeef", "alice@example.com"), domain.ErrTokenExpired)
	assert.ErrorIs(t, svc.ConsumeAndValidate(context.Background(), "", "alice@example.com"), domain.ErrTokenExpired)
}

func TestConsume_ConcurrentExactlyOneSucceeds(t *testing.T) {
	svc, _ := newTestService(t)
	tok, _, err := svc.Mint(context.Background(), "alice@example.com")
	require.NoError(t, err)

	const n = 32
	var (
		wg      sync.WaitGroup
		ok      atomic.Int32
		expired atomic.Int32
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			switch err := svc.ConsumeAndValidate(context.Background(), tok, "alice@example.com"); {
			case err == nil:
				ok.Add(1)
			case assert.ErrorIs(t, err, domain.ErrTokenExpired):
				expired.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(n-1), expired.Load())
}
