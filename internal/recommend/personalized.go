package recommend

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"storefront/internal/metrics"
)

// UserBased recommends from the customer's category affinities. Customers
// without eligible orders get exactly PopularProducts(limit).
func (s *Service) UserBased(ctx context.Context, customerID string, limit int) (res Result, err error) {
	defer func() { metrics.ObserveRequest("user", err) }()

	if customerID == "" {
		return nil, invalidInput("customer id is required")
	}
	if err := s.checkLimit(limit); err != nil {
		return nil, err
	}

	profile, err := s.loadProfile(ctx, customerID)
	if err != nil {
		return nil, err
	}
	return s.userBased(ctx, profile, limit)
}

func (s *Service) userBased(ctx context.Context, profile *customerProfile, limit int) (Result, error) {
	if !profile.hasHistory() {
		metrics.RecommendFallbacks.WithLabelValues("user").Inc()
		s.log.Debug("no order history, serving popular", zap.String("customer_id", profile.metrics.CustomerID))
		return s.popular(ctx, limit)
	}

	// over-fetch so exclusions still leave enough candidates per category
	pool := limit + len(profile.purchased)
	best := make(map[string]Recommendation)

	for _, cw := range topCategories(profile.metrics.CategoryFrequency, s.cfg.TopCategories) {
		ranked, err := s.byCategory(ctx, cw.category, pool)
		if err != nil {
			return nil, err
		}
		rank := 0
		for _, rec := range ranked {
			if _, bought := profile.purchased[rec.Product.ID]; bought {
				continue
			}
			score := cw.weight / float64(1+rank)
			rank++
			if err := checkScore(rec.Product.ID, score); err != nil {
				metrics.RecommendRejectedScores.Inc()
				return nil, err
			}
			if prev, ok := best[rec.Product.ID]; ok && prev.Score >= score {
				continue
			}
			best[rec.Product.ID] = Recommendation{
				Product: rec.Product,
				Score:   score,
				Reason:  "because you buy " + cw.category,
			}
		}
	}

	out := make(Result, 0, len(best))
	for _, rec := range best {
		out = append(out, rec)
	}
	sortByScore(out)
	if len(out) > limit {
		out = out[:limit]
	}
	if len(out) == limit {
		return out, nil
	}

	// top up with best sellers the customer has not bought
	popular, err := s.popular(ctx, limit+len(profile.purchased)+len(out))
	if err != nil {
		return nil, err
	}
	for _, rec := range popular {
		if len(out) == limit {
			break
		}
		if _, bought := profile.purchased[rec.Product.ID]; bought {
			continue
		}
		if _, listed := best[rec.Product.ID]; listed {
			continue
		}
		out = append(out, Recommendation{Product: rec.Product, Score: 0, Reason: reasonPopular})
	}
	return out, nil
}

// Hybrid computes the personalized, popular, segment and similar lists
// concurrently. Lists are not de-duplicated against each other.
func (s *Service) Hybrid(ctx context.Context, customerID string, opts HybridOptions) (res HybridResult, err error) {
	defer func() { metrics.ObserveRequest("hybrid", err) }()

	if customerID == "" {
		return HybridResult{}, invalidInput("customer id is required")
	}
	if err := s.checkLimit(opts.Limit); err != nil {
		return HybridResult{}, err
	}

	profile, err := s.loadProfile(ctx, customerID)
	if err != nil {
		return HybridResult{}, err
	}

	out := HybridResult{CustomerSeg: profile.segment}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := s.userBased(gctx, profile, opts.Limit)
		out.Personalized = r
		return err
	})
	g.Go(func() error {
		r, err := s.popular(gctx, opts.Limit)
		out.Popular = r
		return err
	})
	g.Go(func() error {
		r, err := s.segmentList(gctx, profile, opts.Limit)
		out.Segment = r
		return err
	})
	g.Go(func() error {
		if profile.lastProduct == "" {
			out.Similar = Result{}
			return nil
		}
		r, err := s.itemBased(gctx, profile.lastProduct, opts.Limit)
		out.Similar = r
		return err
	})
	if err := g.Wait(); err != nil {
		s.log.Warn("hybrid recommendation failed", zap.String("customer_id", customerID), zap.Error(err))
		return HybridResult{}, err
	}
	return out, nil
}

// segmentCategories resolves the categories that represent a customer's
// segment: the configured tags, else the customer's dominant category.
func (s *Service) segmentCategories(profile *customerProfile) []string {
	if cats := s.table.CategoriesFor(profile.segment.Label); len(cats) > 0 {
		return cats
	}
	if top := topCategories(profile.metrics.CategoryFrequency, 1); len(top) > 0 {
		return []string{top[0].category}
	}
	return nil
}

// segmentList ranks the products of the segment's categories together by
// popularity. Without any category it falls back to the popular list.
func (s *Service) segmentList(ctx context.Context, profile *customerProfile, limit int) (Result, error) {
	categories := s.segmentCategories(profile)
	if len(categories) == 0 {
		metrics.RecommendFallbacks.WithLabelValues("segment").Inc()
		return s.popular(ctx, limit)
	}

	seen := make(map[string]struct{})
	var candidates []ProductSummary
	for _, category := range categories {
		products, err := s.products.ProductsByCategory(ctx, category)
		if err != nil {
			return nil, storeError("load segment products", err)
		}
		for _, p := range products {
			if _, ok := seen[p.ID]; ok {
				continue
			}
			seen[p.ID] = struct{}{}
			candidates = append(candidates, p)
		}
	}
	return popularityResult(candidates, limit, "popular with "+string(profile.segment.Label)+" customers")
}
