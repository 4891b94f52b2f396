// Package miner searches for a nonce such that SHA256(message || nonce) does
// not exceed the target derived from a difficulty.
//
// A search races one worker per hardware thread over disjoint parts of the
// 64-bit nonce space. The first worker to find a qualifying nonce wins and
// the rest are cancelled; if the deadline passes first the search reports
// that nothing was found, which is an expected outcome and not an error.
package miner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xcoin/miner/accel"
	"github.com/xcoin/miner/hasher"
	"github.com/xcoin/miner/logging"
	"github.com/xcoin/miner/shared"
)

const (
	// DefaultCheckInterval is the number of hashes a worker computes between
	// checks for cancellation and the deadline.
	DefaultCheckInterval = 1 << 12

	defaultReportInterval = 5 * time.Second
)

type Request struct {
	// Message is the prefix the nonce is appended to.
	Message    []byte
	Difficulty *big.Int
	// Preferred is the acceleration tier to use if the host supports it.
	Preferred accel.Tier
	// Deadline is the absolute time after which the search gives up.
	Deadline time.Time
}

// Solution is a qualifying nonce and the digest it produces.
type Solution struct {
	Digest  [hasher.Size]byte
	Nonce   uint64
	Elapsed time.Duration

	// Tier and Workers describe how the search ran.
	Tier    accel.Tier
	Workers int
	Hashes  uint64
}

// Largest magnitude, in seconds, DeadlineFromUnix passes through.
const maxUnixSeconds = 1 << 62

// DeadlineFromUnix converts seconds since the Unix epoch into a time. Values
// beyond ±2^62 seconds, infinities included, are clamped to that bound and
// NaN maps to the epoch.
func DeadlineFromUnix(seconds float64) time.Time {
	switch {
	case math.IsNaN(seconds):
		return time.Unix(0, 0)
	case seconds >= maxUnixSeconds:
		return time.Unix(maxUnixSeconds, 0)
	case seconds <= -maxUnixSeconds:
		return time.Unix(-maxUnixSeconds, 0)
	}
	whole, frac := math.Modf(seconds)
	return time.Unix(int64(whole), int64(frac*1e9))
}

type Miner struct {
	detector       accel.Detector
	workers        int
	checkInterval  uint64
	reportInterval time.Duration
}

type Option func(*Miner)

// WithDetector replaces host capability detection.
func WithDetector(d accel.Detector) Option {
	return func(m *Miner) {
		m.detector = d
	}
}

// WithWorkers fixes the number of workers. Zero or less uses one per hardware thread.
func WithWorkers(n int) Option {
	return func(m *Miner) {
		m.workers = n
	}
}

// WithCheckInterval sets how many hashes a worker computes between cancellation checks.
func WithCheckInterval(hashes uint64) Option {
	return func(m *Miner) {
		m.checkInterval = hashes
	}
}

// WithReportInterval sets how often a running search logs and publishes its hash rate.
func WithReportInterval(d time.Duration) Option {
	return func(m *Miner) {
		m.reportInterval = d
	}
}

// New creates a Miner. It fails with accel.ErrUnsupportedPlatform when the
// host cannot run the engine.
func New(opts ...Option) (*Miner, error) {
	return newMiner(accel.Platform, opts...)
}

func newMiner(platform func() error, opts ...Option) (*Miner, error) {
	if err := platform(); err != nil {
		return nil, err
	}
	m := &Miner{
		detector:       accel.CPUDetector{},
		checkInterval:  DefaultCheckInterval,
		reportInterval: defaultReportInterval,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.workers <= 0 {
		m.workers = accel.HardwareThreads()
	}
	if m.checkInterval == 0 {
		m.checkInterval = 1
	}
	return m, nil
}

var (
	defaultOnce  sync.Once
	defaultMiner *Miner
	defaultErr   error
)

// Search runs req on a process-wide Miner with default options. The
// platform check happens on the first call; on an unsupported host every call
// returns the same error.
func Search(ctx context.Context, req Request) (*Solution, error) {
	defaultOnce.Do(func() {
		defaultMiner, defaultErr = New()
	})
	if defaultErr != nil {
		return nil, defaultErr
	}
	return defaultMiner.Search(ctx, req)
}

// Search looks for a nonce satisfying req. It returns a nil Solution and a nil
// error when req.Deadline passes without one. Invalid requests fail before any
// worker starts. When ctx ends first the search stops with ctx's error: a
// cancelled ctx yields context.Canceled, and a ctx deadline earlier than
// req.Deadline yields context.DeadlineExceeded, counted as a timeout in the
// search metrics.
func (m *Miner) Search(ctx context.Context, req Request) (*Solution, error) {
	start := time.Now()

	target, err := shared.ComputeTarget(req.Difficulty)
	if err != nil {
		searchesMetric.WithLabelValues(outcomeInvalid).Inc()
		return nil, err
	}

	logger := logging.FromContext(ctx).With(zap.Stringer("search", uuid.New()))
	if !req.Deadline.After(start) {
		logger.Info("deadline already passed", zap.Time("deadline", req.Deadline))
		searchesMetric.WithLabelValues(outcomeTimeout).Inc()
		return nil, nil
	}

	tier := accel.Select(req.Preferred, m.detector.Detect())
	workers := m.workers
	lanes := uint64(tier.Lanes())
	logger.Info("starting search",
		zap.Stringer("preferred", req.Preferred),
		zap.Stringer("tier", tier),
		zap.Int("workers", workers),
		zap.Stringer("target", target),
		zap.Int("message_len", len(req.Message)),
		zap.Time("deadline", req.Deadline),
	)
	reportSelection(tier, workers)

	message := bytes.Clone(req.Message)
	checkEvery := m.checkInterval / lanes
	if checkEvery == 0 {
		checkEvery = 1
	}

	searchCtx, cancel := context.WithDeadline(logging.NewContext(ctx, logger), req.Deadline)
	defer cancel()
	eg, egCtx := errgroup.WithContext(searchCtx)

	found := make(chan hit, 1)
	ws := make([]*worker, workers)
	for i := range ws {
		w := &worker{
			id:         i,
			hasher:     hasher.New(tier, message),
			target:     target,
			start:      uint64(i) * lanes,
			stride:     uint64(workers) * lanes,
			lanes:      lanes,
			checkEvery: checkEvery,
		}
		ws[i] = w
		eg.Go(func() error {
			return w.run(egCtx, found)
		})
	}

	monitorDone := make(chan struct{})
	go func() {
		defer close(monitorDone)
		m.monitor(egCtx, ws, start)
	}()

	// Wait cancels egCtx, which also stops the monitor.
	_ = eg.Wait()
	<-monitorDone

	elapsed := time.Since(start)
	hashes := totalHashes(ws)
	hashesMetric.Add(float64(hashes))
	searchDurationMetric.Observe(elapsed.Seconds())
	if elapsed > 0 {
		hashRateMetric.Set(float64(hashes) / elapsed.Seconds())
	}
	logger = logger.With(zap.Duration("elapsed", elapsed), zap.Uint64("hashes", hashes))

	select {
	case h := <-found:
		if !shared.CheckTarget(h.digest[:], target) {
			panic(fmt.Sprintf("worker reported digest %x above target %s", h.digest, target))
		}
		searchesMetric.WithLabelValues(outcomeFound).Inc()
		logger.Info("found nonce", zap.Uint64("nonce", h.nonce), zap.Binary("digest", h.digest[:]))
		return &Solution{
			Digest:  h.digest,
			Nonce:   h.nonce,
			Elapsed: elapsed,
			Tier:    tier,
			Workers: workers,
			Hashes:  hashes,
		}, nil
	default:
	}

	if err := ctx.Err(); err != nil {
		outcome := outcomeCanceled
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = outcomeTimeout
		}
		searchesMetric.WithLabelValues(outcome).Inc()
		logger.Info("search stopped by caller", zap.Error(err))
		return nil, err
	}
	searchesMetric.WithLabelValues(outcomeTimeout).Inc()
	logger.Info("no nonce found before deadline")
	return nil, nil
}

// monitor publishes the hash rate until ctx is done.
func (m *Miner) monitor(ctx context.Context, ws []*worker, start time.Time) {
	if m.reportInterval <= 0 {
		<-ctx.Done()
		return
	}
	logger := logging.FromContext(ctx)
	ticker := time.NewTicker(m.reportInterval)
	defer ticker.Stop()

	last, lastTime := uint64(0), start
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			hashes := totalHashes(ws)
			rate := float64(hashes-last) / now.Sub(lastTime).Seconds()
			hashRateMetric.Set(rate)
			logger.Info("hash rate", zap.Float64("rate", rate), zap.Uint64("total", hashes))
			last, lastTime = hashes, now
		}
	}
}

func totalHashes(ws []*worker) uint64 {
	var total uint64
	for _, w := range ws {
		total += w.hashes.Load()
	}
	return total
}
