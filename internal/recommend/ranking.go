package recommend

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"storefront/internal/metrics"
)

const reasonPopular = "popular overall"

// sortByPopularity orders by sales count desc, newest first, then ID.
func sortByPopularity(products []ProductSummary) {
	sort.SliceStable(products, func(i, j int) bool {
		a, b := products[i], products[j]
		if a.SalesCount != b.SalesCount {
			return a.SalesCount > b.SalesCount
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// popularityResult ranks active products and scores each by its share of
// the top sales count.
func popularityResult(products []ProductSummary, limit int, reason string) (Result, error) {
	ranked := make([]ProductSummary, 0, len(products))
	for _, p := range products {
		if p.Active {
			ranked = append(ranked, p)
		}
	}
	sortByPopularity(ranked)

	top := 0
	if len(ranked) > 0 {
		top = ranked[0].SalesCount
	}

	out := make(Result, 0, min(limit, len(ranked)))
	for _, p := range ranked {
		if len(out) == limit {
			break
		}
		score := 0.0
		if top > 0 {
			score = float64(p.SalesCount) / float64(top)
		}
		if err := checkScore(p.ID, score); err != nil {
			metrics.RecommendRejectedScores.Inc()
			return nil, err
		}
		out = append(out, Recommendation{Product: p, Score: score, Reason: reason})
	}
	return out, nil
}

// PopularProducts returns the best sellers. It is the fallback for every
// personalized list.
func (s *Service) PopularProducts(ctx context.Context, limit int) (res Result, err error) {
	defer func() { metrics.ObserveRequest("popular", err) }()

	if err := s.checkLimit(limit); err != nil {
		return nil, err
	}
	return s.popular(ctx, limit)
}

func (s *Service) popular(ctx context.Context, limit int) (Result, error) {
	products, err := s.products.ActiveProducts(ctx)
	if err != nil {
		return nil, storeError("load active products", err)
	}
	return popularityResult(products, limit, reasonPopular)
}

// ByCategory ranks the active products of one category by popularity.
func (s *Service) ByCategory(ctx context.Context, category string, limit int) (res Result, err error) {
	defer func() { metrics.ObserveRequest("category", err) }()

	category = strings.TrimSpace(category)
	if category == "" {
		return nil, invalidInput("category is required")
	}
	if err := s.checkLimit(limit); err != nil {
		return nil, err
	}
	return s.byCategory(ctx, category, limit)
}

func (s *Service) byCategory(ctx context.Context, category string, limit int) (Result, error) {
	products, err := s.products.ProductsByCategory(ctx, category)
	if err != nil {
		return nil, storeError("load category products", err)
	}
	tagged := products[:0:0]
	for _, p := range products {
		if hasCategory(p, category) {
			tagged = append(tagged, p)
		}
	}
	return popularityResult(tagged, limit, "popular in "+category)
}

// ItemBased recommends products bought together with productID. Score is
// the share of the seed's orders that also contained the candidate.
func (s *Service) ItemBased(ctx context.Context, productID string, limit int) (res Result, err error) {
	defer func() { metrics.ObserveRequest("item", err) }()

	if productID == "" {
		return nil, invalidInput("product id is required")
	}
	if err := s.checkLimit(limit); err != nil {
		return nil, err
	}
	if _, err := s.products.ProductByID(ctx, productID); err != nil {
		return nil, storeError("load seed product", err)
	}
	return s.itemBased(ctx, productID, limit)
}

func (s *Service) itemBased(ctx context.Context, seed string, limit int) (Result, error) {
	snap, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	if !snap.matrix.HasRow(seed) {
		metrics.RecommendFallbacks.WithLabelValues("item").Inc()
		s.log.Debug("seed has no co-purchases", zap.String("product_id", seed))
		return Result{}, nil
	}

	partners := snap.matrix.Partners(seed)
	ids := make([]string, 0, len(partners))
	for id, count := range partners {
		if id != seed && count > 0 {
			ids = append(ids, id)
		}
	}
	products, err := s.products.ProductsByIDs(ctx, ids)
	if err != nil {
		return nil, storeError("load partner products", err)
	}

	denom := float64(max(1, snap.matrix.Occurrences(seed)))
	out := make(Result, 0, len(ids))
	for _, id := range ids {
		p, ok := products[id]
		if !ok || !p.Active {
			continue
		}
		count := partners[id]
		score := clamp01(float64(count) / denom)
		if err := checkScore(id, score); err != nil {
			metrics.RecommendRejectedScores.Inc()
			return nil, err
		}
		out = append(out, Recommendation{
			Product: p,
			Score:   score,
			Reason:  fmt.Sprintf("frequently bought together (%d orders)", count),
		})
	}

	sortByScore(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// sortByScore orders by score desc, then sales desc, price asc, ID asc.
func sortByScore(r Result) {
	sort.SliceStable(r, func(i, j int) bool {
		a, b := r[i], r[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Product.SalesCount != b.Product.SalesCount {
			return a.Product.SalesCount > b.Product.SalesCount
		}
		if a.Product.Price != b.Product.Price {
			return a.Product.Price < b.Product.Price
		}
		return a.Product.ID < b.Product.ID
	})
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
