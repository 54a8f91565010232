package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tipbot/ledger/internal/domain"
)

func newTestRedisLock(t *testing.T, wait time.Duration) (*RedisLock, redismock.ClientMock) {
	t.Helper()
	client, mock := redismock.NewClientMock()
	l := NewRedisLock(client, time.Minute, wait)
	l.retry = 5 * time.Millisecond
	l.token = func() string { return "token-1" }
	return l, mock
}

func TestRedisLock_AcquireAndRelease(t *testing.T) {
	l, mock := newTestRedisLock(t, time.Second)

	mock.ExpectSetNX("ledger:lock:account:a", "token-1", time.Minute).SetVal(true)
	mock.ExpectEval(releaseScript, []string{"ledger:lock:account:a"}, "token-1").SetVal(int64(1))

	unlock, err := l.Lock(context.Background(), "account:a")
	require.NoError(t, err)
	unlock()

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisLock_RetriesUntilFree(t *testing.T) {
	l, mock := newTestRedisLock(t, time.Second)

	mock.ExpectSetNX("ledger:lock:account:a", "token-1", time.Minute).SetVal(false)
	mock.ExpectSetNX("ledger:lock:account:a", "token-1", time.Minute).SetVal(false)
	mock.ExpectSetNX("ledger:lock:account:a", "token-1", time.Minute).SetVal(true)
	mock.ExpectEval(releaseScript, []string{"ledger:lock:account:a"}, "token-1").SetVal(int64(1))

	unlock, err := l.Lock(context.Background(), "account:a")
	require.NoError(t, err)
	unlock()

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisLock_Errors(t *testing.T) {
	t.Run("redis unavailable", func(t *testing.T) {
		l, mock := newTestRedisLock(t, time.Second)
		mock.ExpectSetNX("ledger:lock:account:a", "token-1", time.Minute).SetErr(errors.New("connection refused"))

		_, err := l.Lock(context.Background(), "account:a")
		require.Error(t, err)
		assert.NotErrorIs(t, err, domain.ErrAccountBusy)
	})

	t.Run("held past wait", func(t *testing.T) {
		l, mock := newTestRedisLock(t, 0)
		ctx, cancel := context.WithCancel(context.Background())
		mock.ExpectSetNX("ledger:lock:account:a", "token-1", time.Minute).SetVal(false)
		cancel()

		_, err := l.Lock(ctx, "account:a")
		require.ErrorIs(t, err, domain.ErrAccountBusy)
	})
}
