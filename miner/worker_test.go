package miner

import (
	"context"
	"crypto/sha256"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/xcoin/miner/accel"
	"github.com/xcoin/miner/hasher"
	"github.com/xcoin/miner/shared"
)

var maxTarget = shared.Target{
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
}

// countingHasher records every nonce it hashes and cancels the search after cancelAt calls.
type countingHasher struct {
	hasher.Hasher
	nonces   []uint64
	cancelAt int
	cancel   context.CancelFunc
}

func (c *countingHasher) Sum(nonce uint64, out *[hasher.Size]byte) {
	c.nonces = append(c.nonces, nonce)
	if len(c.nonces) == c.cancelAt {
		c.cancel()
	}
	c.Hasher.Sum(nonce, out)
}

func TestWorkerPublishesFirstHit(t *testing.T) {
	t.Parallel()

	message := []byte("block7")
	w := &worker{
		hasher:     hasher.New(accel.None, message),
		target:     maxTarget,
		start:      8,
		stride:     16,
		lanes:      4,
		checkEvery: 1,
	}
	found := make(chan hit, 1)
	require.ErrorIs(t, w.run(context.Background(), found), errSolved)

	h := <-found
	require.EqualValues(t, 8, h.nonce)
	want := sha256.Sum256(append(message, 8, 0, 0, 0, 0, 0, 0, 0))
	require.Equal(t, want, h.digest)
	require.EqualValues(t, 1, w.hashes.Load())
}

func TestWorkerDoesNotBlockOnTakenSlot(t *testing.T) {
	t.Parallel()

	found := make(chan hit, 1)
	found <- hit{nonce: 1}

	w := &worker{
		hasher:     hasher.New(accel.None, nil),
		target:     maxTarget,
		start:      4,
		stride:     8,
		lanes:      4,
		checkEvery: 1,
	}
	require.ErrorIs(t, w.run(context.Background(), found), errSolved)
	require.EqualValues(t, 1, (<-found).nonce)
}

func TestWorkerCoversItsStride(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	counter := &countingHasher{
		Hasher:   hasher.New(accel.None, nil),
		cancelAt: 12,
		cancel:   cancel,
	}
	w := &worker{
		hasher:     counter,
		target:     shared.Target{},
		start:      4,
		stride:     12,
		lanes:      4,
		checkEvery: 1,
	}
	require.NoError(t, w.run(ctx, make(chan hit, 1)))
	require.Equal(t, []uint64{4, 5, 6, 7, 16, 17, 18, 19, 28, 29, 30, 31}, counter.nonces)
}

func TestWorkerExhaustsRangeWithoutOverflow(t *testing.T) {
	t.Parallel()

	counter := &countingHasher{Hasher: hasher.New(accel.None, []byte("tail"))}
	w := &worker{
		hasher:     counter,
		target:     shared.Target{},
		start:      math.MaxUint64 - 10,
		stride:     8,
		lanes:      4,
		checkEvery: 2,
	}
	require.NoError(t, w.run(context.Background(), make(chan hit, 1)))
	require.Equal(t, []uint64{
		math.MaxUint64 - 10, math.MaxUint64 - 9, math.MaxUint64 - 8, math.MaxUint64 - 7,
		math.MaxUint64 - 2, math.MaxUint64 - 1, math.MaxUint64,
	}, counter.nonces)
	require.EqualValues(t, 7, w.hashes.Load())
}

func TestWorkerStopsSoonAfterCancel(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		lanes, checkEvery uint64
	}{
		{lanes: 1, checkEvery: 1},
		{lanes: 1, checkEvery: 64},
		{lanes: 4, checkEvery: 16},
		{lanes: 16, checkEvery: 3},
	} {
		ctx, cancel := context.WithCancel(context.Background())
		const cancelAt = 1000
		counter := &countingHasher{
			Hasher:   hasher.New(accel.None, []byte("cancel")),
			cancelAt: cancelAt,
			cancel:   cancel,
		}
		w := &worker{
			hasher:     counter,
			target:     shared.Target{},
			start:      0,
			stride:     tc.lanes,
			lanes:      tc.lanes,
			checkEvery: tc.checkEvery,
		}
		require.NoError(t, w.run(ctx, make(chan hit, 1)))
		cancel()

		overrun := uint64(len(counter.nonces) - cancelAt)
		require.LessOrEqual(t, overrun, tc.checkEvery*tc.lanes, "lanes=%d checkEvery=%d", tc.lanes, tc.checkEvery)
		require.EqualValues(t, len(counter.nonces), w.hashes.Load())
	}
}

func TestWorkerReturnsWhenAlreadyCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w := &worker{
		hasher:     hasher.New(accel.None, nil),
		target:     maxTarget,
		stride:     1,
		lanes:      1,
		checkEvery: 1,
	}
	found := make(chan hit, 1)
	require.NoError(t, w.run(ctx, found))
	require.Empty(t, found)
	require.Zero(t, w.hashes.Load())
}

// lateHasher counts the nonces it hashes after ctx is done.
type lateHasher struct {
	hasher.Hasher
	ctx   context.Context
	total int
	late  int
}

func (l *lateHasher) Sum(nonce uint64, out *[hasher.Size]byte) {
	l.total++
	if l.ctx.Err() != nil {
		l.late++
	}
	l.Hasher.Sum(nonce, out)
}

func TestWinnerStopsOtherWorkers(t *testing.T) {
	t.Parallel()

	const (
		lanes      = 4
		checkEvery = 8
		losers     = 3
	)
	eg, ctx := errgroup.WithContext(context.Background())
	found := make(chan hit, 1)

	counters := make([]*lateHasher, losers)
	workers := make([]*worker, losers)
	for i := range counters {
		counters[i] = &lateHasher{Hasher: hasher.New(accel.None, []byte("race")), ctx: ctx}
		w := &worker{
			id:         i + 1,
			hasher:     counters[i],
			target:     shared.Target{},
			start:      uint64(i+1) * lanes,
			stride:     (losers + 1) * lanes,
			lanes:      lanes,
			checkEvery: checkEvery,
		}
		workers[i] = w
		eg.Go(func() error { return w.run(ctx, found) })
	}

	// Let the losers get going before a winner shows up.
	require.Eventually(t, func() bool {
		for _, w := range workers {
			if w.hashes.Load() == 0 {
				return false
			}
		}
		return true
	}, 5*time.Second, time.Millisecond)
	winner := &worker{
		hasher:     hasher.New(accel.None, []byte("race")),
		target:     maxTarget,
		stride:     (losers + 1) * lanes,
		lanes:      lanes,
		checkEvery: checkEvery,
	}
	eg.Go(func() error { return winner.run(ctx, found) })

	require.ErrorIs(t, eg.Wait(), errSolved)
	require.EqualValues(t, 0, (<-found).nonce)
	for _, c := range counters {
		require.NotZero(t, c.total)
		require.LessOrEqual(t, c.late, checkEvery*lanes)
	}
}
