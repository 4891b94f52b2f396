package miner

import (
	"context"
	"errors"
	"math"
	"runtime"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/xcoin/miner/hasher"
	"github.com/xcoin/miner/logging"
	"github.com/xcoin/miner/shared"
	"github.com/xcoin/miner/util/tid"
)

// errSolved is returned by the winning worker so the group cancels the others.
var errSolved = errors.New("nonce found")

type hit struct {
	digest [hasher.Size]byte
	nonce  uint64
}

// worker scans nonces start, start+stride, start+2*stride, ... hashing
// lanes consecutive nonces at each position. Workers of one search use
// start = index*lanes and stride = workers*lanes, so their ranges are disjoint
// and together cover the whole 64-bit space.
type worker struct {
	id     int
	hasher hasher.Hasher
	target shared.Target
	start  uint64
	stride uint64
	lanes  uint64
	// batches between cancellation checks
	checkEvery uint64

	hashes atomic.Uint64
}

// run returns errSolved after publishing a hit, nil when cancelled or when its range is exhausted.
func (w *worker) run(ctx context.Context, found chan<- hit) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	logger := logging.FromContext(ctx).With(zap.Int("worker", w.id))
	logger.Debug("worker started",
		zap.Int("tid", tid.Gettid()),
		zap.Uint64("start", w.start),
		zap.Uint64("stride", w.stride),
	)

	var (
		digest  [hasher.Size]byte
		pending uint64
	)
	for nonce, batch := w.start, uint64(0); ; batch++ {
		if batch%w.checkEvery == 0 {
			w.hashes.Add(pending)
			pending = 0
			select {
			case <-ctx.Done():
				logger.Debug("worker stopped", zap.Uint64("hashes", w.hashes.Load()))
				return nil
			default:
			}
		}

		last := w.lanes - 1
		if nonce > math.MaxUint64-last {
			last = math.MaxUint64 - nonce
		}
		for j := uint64(0); j <= last; j++ {
			w.hasher.Sum(nonce+j, &digest)
			pending++
			if shared.CheckTarget(digest[:], w.target) {
				w.hashes.Add(pending)
				select {
				case found <- hit{digest: digest, nonce: nonce + j}:
				default:
				}
				logger.Debug("worker found nonce", zap.Uint64("nonce", nonce+j))
				return errSolved
			}
		}

		if nonce > math.MaxUint64-w.stride {
			w.hashes.Add(pending)
			logger.Debug("worker range exhausted", zap.Uint64("hashes", w.hashes.Load()))
			return nil
		}
		nonce += w.stride
	}
}
