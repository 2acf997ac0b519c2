package pool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kadirpekel/hnsc/internal/breaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	id     int
	closed bool
}

func (c *fakeConn) Ping(context.Context) error { return nil }
func (c *fakeConn) Close() error               { c.closed = true; return nil }

func newTestPool(t *testing.T, size int) (*Pool, *int32) {
	t.Helper()
	var created int32
	factory := func(ctx context.Context) (Conn, error) {
		created++
		return &fakeConn{id: int(created)}, nil
	}
	reg := breaker.NewRegistry(breaker.Config{FailThreshold: 100, Window: time.Minute, Cooldown: time.Minute}, nil)
	p := New(Config{Size: size, MaxRetries: 0}, factory, reg, "test-backend", nil)
	return p, &created
}

func TestPool_AcquireUpToSizeThenBlocks(t *testing.T) {
	p, _ := newTestPool(t, 2)
	ctx := context.Background()

	l1, err := p.Acquire(ctx, time.Now().Add(time.Second))
	require.NoError(t, err)
	l2, err := p.Acquire(ctx, time.Now().Add(time.Second))
	require.NoError(t, err)

	_, err = p.Acquire(ctx, time.Now().Add(50*time.Millisecond))
	assert.ErrorIs(t, err, ErrPoolTimeout)

	l1.Release()
	l2.Release()
}

func TestPool_ReleaseWakesWaiter(t *testing.T) {
	p, _ := newTestPool(t, 1)
	ctx := context.Background()

	l1, err := p.Acquire(ctx, time.Now().Add(time.Second))
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	var acquired bool
	go func() {
		defer wg.Done()
		l2, err := p.Acquire(ctx, time.Now().Add(2*time.Second))
		if err == nil {
			acquired = true
			l2.Release()
		}
	}()

	time.Sleep(20 * time.Millisecond)
	l1.Release()
	wg.Wait()
	assert.True(t, acquired, "waiter should have been woken by the release, not by timing out")
}

func TestPool_ConnectionsAreReusedFromIdle(t *testing.T) {
	p, created := newTestPool(t, 1)
	ctx := context.Background()

	l1, err := p.Acquire(ctx, time.Now().Add(time.Second))
	require.NoError(t, err)
	l1.Release()

	l2, err := p.Acquire(ctx, time.Now().Add(time.Second))
	require.NoError(t, err)
	l2.Release()

	assert.Equal(t, int32(1), *created, "second acquire should reuse the idle connection, not create a new one")
}

func TestPool_FactoryFailureRecordsBreakerFailure(t *testing.T) {
	boom := errors.New("dial failed")
	factory := func(ctx context.Context) (Conn, error) { return nil, boom }
	reg := breaker.NewRegistry(breaker.Config{FailThreshold: 1, Window: time.Minute, Cooldown: time.Minute}, nil)
	p := New(Config{Size: 1, MaxRetries: 0}, factory, reg, "flaky", nil)

	_, err := p.Acquire(context.Background(), time.Now().Add(time.Second))
	require.Error(t, err)

	_, err = p.Acquire(context.Background(), time.Now().Add(time.Second))
	assert.ErrorIs(t, err, breaker.ErrOpen, "breaker should have opened after the threshold of factory failures")
}

func TestPool_CloseClosesIdleConnections(t *testing.T) {
	p, _ := newTestPool(t, 1)
	ctx := context.Background()

	l1, err := p.Acquire(ctx, time.Now().Add(time.Second))
	require.NoError(t, err)
	conn := l1.Conn.(*fakeConn)
	l1.Release()

	require.NoError(t, p.Close())
	assert.True(t, conn.closed)
}
