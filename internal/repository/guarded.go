package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"storefront/internal/metrics"
	"storefront/internal/recommend"
)

// Store is the union of the recommendation ports.
type Store interface {
	recommend.OrderReader
	recommend.ProductReader
	recommend.CustomerStore
}

// Guarded puts a circuit breaker in front of a Store. While the breaker is
// open, calls fail fast with recommend.ErrServiceUnavailable instead of
// waiting on an unreachable database.
type Guarded struct {
	next Store
	cb   *gobreaker.CircuitBreaker[any]
	name string
}

// BreakerSettings tunes the breaker. Zero values use the defaults.
type BreakerSettings struct {
	Name        string
	MinRequests uint32
	FailureRate float64
	Interval    time.Duration
	Timeout     time.Duration
}

func NewGuarded(next Store, bs BreakerSettings, log *zap.Logger) *Guarded {
	if bs.Name == "" {
		bs.Name = "mongo"
	}
	if bs.MinRequests == 0 {
		bs.MinRequests = 10
	}
	if bs.FailureRate <= 0 {
		bs.FailureRate = 0.6
	}
	if bs.Interval <= 0 {
		bs.Interval = time.Minute
	}
	if bs.Timeout <= 0 {
		bs.Timeout = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}

	metrics.CircuitBreakerState.WithLabelValues(bs.Name).Set(0)

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        bs.Name,
		MaxRequests: 3,
		Interval:    bs.Interval,
		Timeout:     bs.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < bs.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			if ratio >= bs.FailureRate {
				log.Warn("store circuit opening",
					zap.String("breaker", bs.Name),
					zap.Uint32("failures", counts.TotalFailures),
					zap.Float64("failure_rate", ratio),
				)
				return true
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Info("store circuit state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
		// lookups of unknown IDs and caller cancellations say nothing about
		// store health
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, recommend.ErrNotFound) ||
				errors.Is(err, context.Canceled)
		},
	})

	return &Guarded{next: next, cb: cb, name: bs.Name}
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// State exposes the breaker state for health reporting.
func (g *Guarded) State() gobreaker.State {
	return g.cb.State()
}

func guard[T any](g *Guarded, fn func() (T, error)) (T, error) {
	var zero T
	v, err := g.cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(g.name, "rejected").Inc()
			return zero, fmt.Errorf("%w: %s: %v", recommend.ErrServiceUnavailable, g.name, err)
		}
		metrics.CircuitBreakerRequests.WithLabelValues(g.name, "failure").Inc()
		return zero, err
	}
	metrics.CircuitBreakerRequests.WithLabelValues(g.name, "success").Inc()
	typed, ok := v.(T)
	if !ok && v != nil {
		return zero, fmt.Errorf("circuit breaker: unexpected result type %T", v)
	}
	return typed, nil
}

func (g *Guarded) EligibleOrders(ctx context.Context, since time.Time) ([]recommend.OrderRecord, error) {
	return guard(g, func() ([]recommend.OrderRecord, error) { return g.next.EligibleOrders(ctx, since) })
}

func (g *Guarded) CustomerOrders(ctx context.Context, customerID string) ([]recommend.OrderRecord, error) {
	return guard(g, func() ([]recommend.OrderRecord, error) { return g.next.CustomerOrders(ctx, customerID) })
}

func (g *Guarded) ProductByID(ctx context.Context, id string) (recommend.ProductSummary, error) {
	return guard(g, func() (recommend.ProductSummary, error) { return g.next.ProductByID(ctx, id) })
}

func (g *Guarded) ProductsByIDs(ctx context.Context, ids []string) (map[string]recommend.ProductSummary, error) {
	return guard(g, func() (map[string]recommend.ProductSummary, error) { return g.next.ProductsByIDs(ctx, ids) })
}

func (g *Guarded) ProductsByCategory(ctx context.Context, category string) ([]recommend.ProductSummary, error) {
	return guard(g, func() ([]recommend.ProductSummary, error) { return g.next.ProductsByCategory(ctx, category) })
}

func (g *Guarded) ActiveProducts(ctx context.Context) ([]recommend.ProductSummary, error) {
	return guard(g, func() ([]recommend.ProductSummary, error) { return g.next.ActiveProducts(ctx) })
}

func (g *Guarded) CustomerExists(ctx context.Context, customerID string) (bool, error) {
	return guard(g, func() (bool, error) { return g.next.CustomerExists(ctx, customerID) })
}

func (g *Guarded) LoadSnapshot(ctx context.Context, customerID string) (*recommend.CustomerSnapshot, error) {
	return guard(g, func() (*recommend.CustomerSnapshot, error) { return g.next.LoadSnapshot(ctx, customerID) })
}

func (g *Guarded) SaveSnapshot(ctx context.Context, snapshot recommend.CustomerSnapshot) error {
	_, err := guard(g, func() (struct{}, error) { return struct{}{}, g.next.SaveSnapshot(ctx, snapshot) })
	return err
}

// Mongo bundles the three Mongo repositories into one Store.
type Mongo struct {
	*Orders
	*Products
	*Customers
}

var (
	_ Store = (*Memory)(nil)
	_ Store = Mongo{}
	_ Store = (*Guarded)(nil)
)
