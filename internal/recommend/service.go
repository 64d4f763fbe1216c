// Package recommend turns fulfilled order history into product
// recommendations: co-purchase affinity, popularity, category ranking,
// customer segmentation and the hybrid bundle that combines them.
package recommend

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config tunes the service. Zero values fall back to defaults in New.
type Config struct {
	// RefreshInterval is how long a matrix snapshot stays fresh. Zero
	// rebuilds on every request.
	RefreshInterval time.Duration
	// RebuildTimeout bounds background rebuilds.
	RebuildTimeout time.Duration
	// CorpusWindow limits the corpus to recent orders. Zero reads the full
	// history.
	CorpusWindow time.Duration
	// MaxLimit caps the limit accepted by every operation.
	MaxLimit int
	// TopCategories is how many of a customer's categories feed the
	// user-based list.
	TopCategories int
	// LifetimeValue derives LTV from spend.
	LifetimeValue LifetimeValueFunc
}

// DefaultConfig returns the settings used when a field is left zero.
func DefaultConfig() Config {
	return Config{
		RefreshInterval: 10 * time.Minute,
		RebuildTimeout:  2 * time.Minute,
		MaxLimit:        100,
		TopCategories:   3,
		LifetimeValue:   IdentityLifetimeValue,
	}
}

// Service is the recommendation engine. It owns no persistent state beyond
// the cached matrix snapshot and is safe for concurrent use.
type Service struct {
	cfg       Config
	orders    OrderReader
	products  ProductReader
	customers CustomerStore
	locker    Locker
	table     SegmentTable
	log       *zap.Logger
	now       func() time.Time

	cache *matrixCache
}

// Option customizes a Service.
type Option func(*Service)

// WithLocker replaces the in-process per-customer lock.
func WithLocker(l Locker) Option {
	return func(s *Service) {
		if l != nil {
			s.locker = l
		}
	}
}

// WithSegmentTable replaces DefaultSegmentTable.
func WithSegmentTable(t SegmentTable) Option {
	return func(s *Service) { s.table = t }
}

// WithLogger sets the logger. The default is a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New builds a Service over the given stores.
func New(cfg Config, orders OrderReader, products ProductReader, customers CustomerStore, opts ...Option) (*Service, error) {
	if orders == nil || products == nil || customers == nil {
		return nil, fmt.Errorf("recommend: order, product and customer stores are required")
	}

	def := DefaultConfig()
	if cfg.RebuildTimeout <= 0 {
		cfg.RebuildTimeout = def.RebuildTimeout
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = def.MaxLimit
	}
	if cfg.TopCategories <= 0 {
		cfg.TopCategories = def.TopCategories
	}
	if cfg.LifetimeValue == nil {
		cfg.LifetimeValue = def.LifetimeValue
	}
	if cfg.RefreshInterval < 0 || cfg.CorpusWindow < 0 {
		return nil, fmt.Errorf("recommend: negative durations are not allowed")
	}

	s := &Service{
		cfg:       cfg,
		orders:    orders,
		products:  products,
		customers: customers,
		locker:    NewKeyedMutex(),
		table:     DefaultSegmentTable(),
		log:       zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.table.Validate(); err != nil {
		return nil, fmt.Errorf("recommend: segment table: %w", err)
	}

	s.log = s.log.With(zap.String("component", "recommend"))
	s.cache = &matrixCache{}
	return s, nil
}

func (s *Service) checkLimit(limit int) error {
	if limit <= 0 {
		return invalidInput("limit must be positive, got %d", limit)
	}
	if limit > s.cfg.MaxLimit {
		return invalidInput("limit must be at most %d, got %d", s.cfg.MaxLimit, limit)
	}
	return nil
}

// KeyedMutex is the in-process Locker: one mutex per key, dropped when no
// holder or waiter remains.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	ch   chan struct{}
	refs int
}

// NewKeyedMutex returns an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedEntry)}
}

// Lock blocks until key is free or ctx is done.
func (k *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{ch: make(chan struct{}, 1)}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		k.drop(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			k.drop(key, e)
		})
	}, nil
}

func (k *KeyedMutex) drop(key string, e *keyedEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(k.locks, key)
	}
}
