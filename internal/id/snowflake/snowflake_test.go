package snowflake

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fixedClock(ms int64) func() time.Time {
	return func() time.Time { return time.UnixMilli(ms) }
}

func TestNewRejectsOutOfRangeIdentity(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		group  int64
		member int64
	}{
		{"group too large", MaxGroupID + 1, 0},
		{"group negative", -1, 0},
		{"member too large", 0, MaxMemberID + 1},
		{"member negative", 0, -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := New(Config{GroupID: tc.group, MemberID: tc.member})
			require.Error(t, err)
		})
	}
}

func TestNewRejectsFutureEpoch(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Epoch: time.Now().Add(time.Hour)})
	require.Error(t, err)
}

func TestKnownLayout(t *testing.T) {
	t.Parallel()

	epoch := time.Date(2021, time.January, 1, 0, 0, 0, 0, time.UTC)
	gen, err := New(Config{
		Epoch:    epoch,
		GroupID:  1,
		MemberID: 1,
		Now:      fixedClock(epoch.UnixMilli() + 10),
	})
	require.NoError(t, err)

	id, err := gen.NewID()
	require.NoError(t, err)

	raw, err := strconv.ParseInt(id, 10, 64)
	require.NoError(t, err)
	require.Equal(t, int64(0), raw&((1<<12)-1))
	require.Equal(t, int64(1), (raw>>12)&((1<<5)-1))
	require.Equal(t, int64(1), (raw>>17)&((1<<5)-1))
	require.Equal(t, int64(10), raw>>22)
}

func TestDecomposeRecoversIdentity(t *testing.T) {
	t.Parallel()

	gen, err := New(Config{GroupID: 7, MemberID: 23})
	require.NoError(t, err)

	id, err := gen.NewID()
	require.NoError(t, err)

	parts, err := DecomposeString(id)
	require.NoError(t, err)
	require.Equal(t, int64(7), parts.GroupID)
	require.Equal(t, int64(23), parts.MemberID)
}

func TestSameMillisecondIncrementsSequence(t *testing.T) {
	t.Parallel()

	gen, err := New(Config{GroupID: 2, MemberID: 3, Now: fixedClock(DefaultEpoch.UnixMilli() + 500)})
	require.NoError(t, err)

	first, err := gen.next()
	require.NoError(t, err)
	second, err := gen.next()
	require.NoError(t, err)

	a, b := Decompose(first), Decompose(second)
	require.Equal(t, a.Delta, b.Delta)
	require.Equal(t, a.GroupID, b.GroupID)
	require.Equal(t, a.MemberID, b.MemberID)
	require.Equal(t, a.Sequence+1, b.Sequence)
}

func TestStrictlyIncreasing(t *testing.T) {
	t.Parallel()

	gen, err := New(Config{GroupID: 1, MemberID: 2})
	require.NoError(t, err)

	prev := int64(-1)
	for i := 0; i < 5000; i++ {
		id, err := gen.next()
		require.NoError(t, err)
		require.Greater(t, id, prev)
		prev = id
	}
}

func TestSequenceOverflowAdvancesTimestamp(t *testing.T) {
	t.Parallel()

	base := DefaultEpoch.UnixMilli() + 1000
	sampled := false
	gen, err := New(Config{GroupID: 1, MemberID: 1, Now: func() time.Time {
		// First sample sees the stalled millisecond, every sample after
		// that (the overflow spin) sees the clock advanced.
		if !sampled {
			sampled = true
			return time.UnixMilli(base)
		}
		return time.UnixMilli(base + 1)
	}})
	require.NoError(t, err)

	gen.lastMs = base
	gen.seq = sequenceMask

	id, err := gen.next()
	require.NoError(t, err)

	parts := Decompose(id)
	require.Equal(t, base+1-DefaultEpoch.UnixMilli(), parts.Delta)
	require.Equal(t, int64(0), parts.Sequence)
}

func TestClockRegressionFailsCall(t *testing.T) {
	t.Parallel()

	samples := []int64{DefaultEpoch.UnixMilli() + 2000, DefaultEpoch.UnixMilli() + 1500}
	idx := 0
	gen, err := New(Config{GroupID: 0, MemberID: 0, Now: func() time.Time {
		ms := samples[idx]
		if idx < len(samples)-1 {
			idx++
		}
		return time.UnixMilli(ms)
	}})
	require.NoError(t, err)

	_, err = gen.next()
	require.NoError(t, err)

	_, err = gen.next()
	require.ErrorIs(t, err, ErrClockRegressed)

	_, idErr := gen.NewID()
	require.ErrorIs(t, idErr, ErrClockRegressed)
}

func TestConcurrentCallersNeverCollide(t *testing.T) {
	t.Parallel()

	gen, err := New(Config{GroupID: 3, MemberID: 9})
	require.NoError(t, err)

	const workers = 8
	const perWorker = 500

	var mu sync.Mutex
	seen := make(map[int64]struct{}, workers*perWorker)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id, err := gen.next()
				if err != nil {
					t.Error(err)
					return
				}
				mu.Lock()
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, workers*perWorker)
}
