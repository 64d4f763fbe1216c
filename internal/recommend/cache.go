package recommend

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"storefront/internal/metrics"
)

const matrixKey = "matrix"

// snapshot is one published build. It is never mutated after publish.
type snapshot struct {
	matrix  *Matrix
	corpus  corpusStats
	builtAt time.Time
}

// matrixCache holds the last published snapshot. Builds write into a fresh
// snapshot and swap the pointer, so readers never see a partial matrix.
type matrixCache struct {
	current atomic.Pointer[snapshot]
	group   singleflight.Group
}

// publish stores snap unless a snapshot built from a newer corpus read is
// already visible.
func (c *matrixCache) publish(snap *snapshot) bool {
	for {
		cur := c.current.Load()
		if cur != nil && cur.builtAt.After(snap.builtAt) {
			return false
		}
		if c.current.CompareAndSwap(cur, snap) {
			return true
		}
	}
}

// loadCorpus reads the eligible orders inside the configured window.
func (s *Service) loadCorpus(ctx context.Context) ([]OrderRecord, error) {
	var since time.Time
	if s.cfg.CorpusWindow > 0 {
		since = s.now().Add(-s.cfg.CorpusWindow)
	}
	orders, err := s.orders.EligibleOrders(ctx, since)
	if err != nil {
		return nil, storeError("load order corpus", err)
	}
	return orders, nil
}

func (s *Service) build(ctx context.Context) (*snapshot, error) {
	start := time.Now()
	builtAt := s.now()

	orders, err := s.loadCorpus(ctx)
	if err != nil {
		metrics.MatrixRebuilds.WithLabelValues("error").Inc()
		return nil, err
	}

	snap := &snapshot{
		matrix:  BuildMatrix(orders),
		corpus:  summarizeCorpus(orders),
		builtAt: builtAt,
	}
	if s.cache.publish(snap) {
		metrics.MatrixPairs.Set(float64(snap.matrix.Pairs()))
		metrics.MatrixCorpusOrders.Set(float64(snap.corpus.orders))
	}

	metrics.MatrixRebuilds.WithLabelValues("ok").Inc()
	metrics.MatrixRebuildDuration.Observe(time.Since(start).Seconds())
	s.log.Debug("matrix rebuilt",
		zap.Int("orders", snap.corpus.orders),
		zap.Int("pairs", snap.matrix.Pairs()),
		zap.Duration("took", time.Since(start)),
	)
	return snap, nil
}

// startBuild launches a shared build on a detached context. Callers that
// arrive while a build is running join it.
func (s *Service) startBuild() <-chan singleflight.Result {
	return s.cache.group.DoChan(matrixKey, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RebuildTimeout)
		defer cancel()
		return s.build(ctx)
	})
}

// snapshot returns the matrix to read from. With a zero RefreshInterval
// every call rebuilds; otherwise a fresh snapshot is served directly and a
// stale one is served while a background rebuild runs. A caller only waits
// when nothing was published yet, and if its context expires first it
// falls back to whatever snapshot exists by then.
func (s *Service) snapshot(ctx context.Context) (*snapshot, error) {
	cur := s.cache.current.Load()

	if cur != nil && s.cfg.RefreshInterval > 0 {
		if s.now().Sub(cur.builtAt) >= s.cfg.RefreshInterval {
			s.startBuild()
			metrics.MatrixStaleServed.Inc()
		}
		return cur, nil
	}

	select {
	case res := <-s.startBuild():
		if res.Err != nil {
			if cur := s.cache.current.Load(); cur != nil {
				s.log.Warn("matrix rebuild failed, serving last snapshot", zap.Error(res.Err))
				metrics.MatrixStaleServed.Inc()
				return cur, nil
			}
			return nil, res.Err
		}
		return res.Val.(*snapshot), nil
	case <-ctx.Done():
		if cur := s.cache.current.Load(); cur != nil {
			metrics.MatrixStaleServed.Inc()
			return cur, nil
		}
		return nil, fmt.Errorf("wait for matrix: %w: %w", ErrServiceUnavailable, ctx.Err())
	}
}

// RebuildMatrix forces a new build from the current corpus and waits for it.
func (s *Service) RebuildMatrix(ctx context.Context) (Stats, error) {
	s.cache.group.Forget(matrixKey)
	select {
	case res := <-s.startBuild():
		if res.Err != nil {
			return Stats{}, res.Err
		}
		return s.statsFrom(ctx, res.Val.(*snapshot))
	case <-ctx.Done():
		return Stats{}, fmt.Errorf("rebuild matrix: %w: %w", ErrServiceUnavailable, ctx.Err())
	}
}

// Run rebuilds the matrix every RefreshInterval until ctx is cancelled. It
// warms the cache first. With a zero interval it returns immediately.
func (s *Service) Run(ctx context.Context) error {
	if s.cfg.RefreshInterval <= 0 {
		return nil
	}

	s.refresh(ctx)

	ticker := time.NewTicker(s.cfg.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			s.refresh(ctx)
		}
	}
}

func (s *Service) refresh(ctx context.Context) {
	select {
	case res := <-s.startBuild():
		if res.Err != nil {
			s.log.Error("scheduled matrix rebuild failed", zap.Error(res.Err))
		}
	case <-ctx.Done():
	}
}
