package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nhannt-dev/crawler-tool/internal/metrics"
)

func TestWaitPacesSameHost(t *testing.T) {
	t.Parallel()
	metrics.Init()

	// 10 RPS with burst 1: the second request on the same host waits
	// roughly one token interval (100ms).
	l := New(Config{DefaultRPS: 10, DefaultBurst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://shop.example.com/laptops"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://shop.example.com/laptops?page=2"))
	require.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestWaitHostsAreIndependent(t *testing.T) {
	t.Parallel()
	metrics.Init()

	l := New(Config{DefaultRPS: 1, DefaultBurst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://a.example.com/"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://b.example.com/"))
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestWaitZeroRateNeverBlocks(t *testing.T) {
	t.Parallel()
	metrics.Init()

	l := New(Config{})
	ctx := context.Background()
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Wait(ctx, "https://shop.example.com/"))
	}
}

func TestWaitHonorsContextCancellation(t *testing.T) {
	t.Parallel()
	metrics.Init()

	l := New(Config{DefaultRPS: 0.001, DefaultBurst: 1})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	require.NoError(t, l.Wait(ctx, "https://slow.example.com/"))
	require.Error(t, l.Wait(ctx, "https://slow.example.com/"))
}
