package recommend

import (
	"context"

	"storefront/internal/metrics"
)

// Stats reports aggregates over the corpus behind the current matrix. It
// is diagnostic only; no ranking reads it.
func (s *Service) Stats(ctx context.Context) (st Stats, err error) {
	defer func() { metrics.ObserveRequest("stats", err) }()

	snap, err := s.snapshot(ctx)
	if err != nil {
		return Stats{}, err
	}
	return s.statsFrom(ctx, snap)
}

func (s *Service) statsFrom(ctx context.Context, snap *snapshot) (Stats, error) {
	products, err := s.products.ActiveProducts(ctx)
	if err != nil {
		return Stats{}, storeError("count active products", err)
	}

	st := Stats{
		TotalProducts: len(products),
		TotalOrders:   snap.corpus.orders,
		TotalUsers:    snap.corpus.customers,
		MatrixSize:    snap.matrix.Pairs(),
		BuiltAt:       snap.builtAt,
	}
	if snap.corpus.orders > 0 {
		st.AvgItemsPerOrder = float64(snap.corpus.distinctItems) / float64(snap.corpus.orders)
	}
	if n := len(snap.matrix.Products()); n > 0 {
		st.AvgCoOccurrencesPerProduct = float64(snap.matrix.TotalCount()) / float64(n)
	}
	return st, nil
}
