package redis

import (
	"context"
	"os/exec"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/alanyoungcy/trendslot/internal/domain"
)

func checkDockerAvailable() bool {
	return exec.Command("docker", "info").Run() == nil
}

// setupRedis starts a throwaway Redis container. Skips the test if Docker is
// not available.
func setupRedis(t *testing.T) *Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	if !checkDockerAvailable() {
		t.Skip("Docker is not available, skipping integration test")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	c, err := New(ctx, ClientConfig{Addr: endpoint, PoolSize: 10, KeyPrefix: "test:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestQuoteCache_RoundTrip(t *testing.T) {
	c := setupRedis(t)
	qc := NewQuoteCache(c, time.Hour)
	ctx := context.Background()

	_, _, err := qc.GetQuote(ctx, "BTCUSDT")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	at := time.Date(2026, 3, 10, 12, 0, 0, 123, time.UTC)
	price := decimal.RequireFromString("64250.12345678")
	require.NoError(t, qc.SetQuote(ctx, "BTCUSDT", price, at))

	got, gotAt, err := qc.GetQuote(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.True(t, price.Equal(got))
	assert.True(t, at.Equal(gotAt))

	ttl, err := c.Underlying().TTL(ctx, "test:quote:BTCUSDT").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestRateLimiter_SlidingWindow(t *testing.T) {
	c := setupRedis(t)
	rl := NewRateLimiter(c)
	ctx := context.Background()

	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	now := base
	rl.now = func() time.Time { return now }

	for i := range 3 {
		ok, err := rl.Allow(ctx, "user-1", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}
	ok, err := rl.Allow(ctx, "user-1", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	// Another key has its own budget.
	ok, err = rl.Allow(ctx, "user-2", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	now = base.Add(61 * time.Second)
	ok, err = rl.Allow(ctx, "user-1", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRateLimiter_ZeroLimitDisables(t *testing.T) {
	rl := NewRateLimiter(NewFromClient(goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:1"}), ""))
	ok, err := rl.Allow(context.Background(), "k", 0, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLockManager_MutualExclusion(t *testing.T) {
	c := setupRedis(t)
	lm := NewLockManager(c)
	ctx := context.Background()

	var acquired atomic.Int32
	var wg sync.WaitGroup
	unlocks := make(chan func(), 10)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := lm.Acquire(ctx, "sweep", time.Minute)
			if err == nil {
				acquired.Add(1)
				unlocks <- unlock
				return
			}
			assert.ErrorIs(t, err, domain.ErrLockHeld)
		}()
	}
	wg.Wait()
	close(unlocks)
	require.Equal(t, int32(1), acquired.Load())

	for unlock := range unlocks {
		unlock()
		unlock()
	}

	unlock, err := lm.Acquire(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	unlock()
}

func TestLockManager_ExpiredHolderCannotReleaseSuccessor(t *testing.T) {
	c := setupRedis(t)
	lm := NewLockManager(c)
	ctx := context.Background()

	first, err := lm.Acquire(ctx, "sweep", 50*time.Millisecond)
	require.NoError(t, err)
	time.Sleep(120 * time.Millisecond)

	second, err := lm.Acquire(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	defer second()

	first()
	_, err = lm.Acquire(ctx, "sweep", time.Minute)
	assert.ErrorIs(t, err, domain.ErrLockHeld)
}
