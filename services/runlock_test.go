package services

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLocalRunLock(t *testing.T) {
	lock := NewLocalRunLock()
	ctx := context.Background()

	release, err := lock.Acquire(ctx, RunKindSync)
	require.NoError(t, err)

	_, err = lock.Acquire(ctx, RunKindSync)
	assert.ErrorIs(t, err, ErrRunInProgress)

	// Other kinds are independent.
	releaseInvoices, err := lock.Acquire(ctx, RunKindInvoices)
	require.NoError(t, err)
	releaseInvoices()

	release()
	release()

	release, err = lock.Acquire(ctx, RunKindSync)
	require.NoError(t, err)
	release()
}

func newRedisRunLock(t *testing.T) (*RedisRunLock, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisRunLock(client, time.Minute, zap.NewNop()), mr
}

func TestRedisRunLock(t *testing.T) {
	lock, mr := newRedisRunLock(t)
	ctx := context.Background()

	release, err := lock.Acquire(ctx, RunKindSync)
	require.NoError(t, err)
	assert.True(t, mr.Exists("zaptec-invoices:run:sync"))
	assert.Equal(t, time.Minute, mr.TTL("zaptec-invoices:run:sync"))

	_, err = lock.Acquire(ctx, RunKindSync)
	assert.ErrorIs(t, err, ErrRunInProgress)

	releaseInvoices, err := lock.Acquire(ctx, RunKindInvoices)
	require.NoError(t, err)
	releaseInvoices()

	release()
	assert.False(t, mr.Exists("zaptec-invoices:run:sync"))

	release, err = lock.Acquire(ctx, RunKindSync)
	require.NoError(t, err)
	release()
}

func TestRedisRunLock_ReleaseKeepsOtherHoldersKey(t *testing.T) {
	lock, mr := newRedisRunLock(t)
	ctx := context.Background()

	staleRelease, err := lock.Acquire(ctx, RunKindInvoices)
	require.NoError(t, err)

	// The first holder's key expires and another process takes over.
	mr.FastForward(2 * time.Minute)
	require.False(t, mr.Exists("zaptec-invoices:run:invoices"))

	release, err := lock.Acquire(ctx, RunKindInvoices)
	require.NoError(t, err)
	holder, err := mr.Get("zaptec-invoices:run:invoices")
	require.NoError(t, err)

	staleRelease()
	current, err := mr.Get("zaptec-invoices:run:invoices")
	require.NoError(t, err)
	assert.Equal(t, holder, current)

	_, err = lock.Acquire(ctx, RunKindInvoices)
	assert.ErrorIs(t, err, ErrRunInProgress)

	release()
	assert.False(t, mr.Exists("zaptec-invoices:run:invoices"))
}

func TestRedisRunLock_UnavailableRedis(t *testing.T) {
	lock, mr := newRedisRunLock(t)
	mr.Close()

	_, err := lock.Acquire(context.Background(), RunKindSync)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRunInProgress)
}
