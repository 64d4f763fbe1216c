package recommend

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"
)

// LifetimeValueFunc derives lifetime value from spend and order count.
// Results below spend are raised to spend.
type LifetimeValueFunc func(totalSpent float64, totalOrders int) float64

// IdentityLifetimeValue is the default: LTV equals total spend.
func IdentityLifetimeValue(totalSpent float64, _ int) float64 { return totalSpent }

// ComputeMetrics aggregates a customer's full eligible history. Category
// frequency counts, per order, each distinct primary category once.
// products must hold every product referenced by orders; unknown products
// contribute spend but no category.
func ComputeMetrics(customerID string, orders []OrderRecord, products map[string]ProductSummary, ltv LifetimeValueFunc) CustomerMetrics {
	if ltv == nil {
		ltv = IdentityLifetimeValue
	}

	m := CustomerMetrics{
		CustomerID:        customerID,
		CategoryFrequency: make(map[string]int),
	}

	var last time.Time
	for _, o := range orders {
		m.TotalOrders++
		m.TotalSpent += OrderTotal(o)
		if o.OrderedAt.After(last) {
			last = o.OrderedAt
		}

		seen := make(map[string]struct{})
		for _, id := range distinctProducts(o) {
			category := PrimaryCategory(products[id])
			if category == "" {
				continue
			}
			if _, ok := seen[category]; ok {
				continue
			}
			seen[category] = struct{}{}
			m.CategoryFrequency[category]++
		}
	}

	if !last.IsZero() {
		m.LastOrderDate = &last
	}

	m.LifetimeValue = ltv(m.TotalSpent, m.TotalOrders)
	if math.IsNaN(m.LifetimeValue) || m.LifetimeValue < m.TotalSpent {
		m.LifetimeValue = m.TotalSpent
	}
	return m
}

type categoryWeight struct {
	category string
	count    int
	weight   float64
}

// topCategories returns up to n categories by frequency (ties by name) with
// their share of the whole frequency map.
func topCategories(freq map[string]int, n int) []categoryWeight {
	total := 0
	all := make([]categoryWeight, 0, len(freq))
	for c, count := range freq {
		if count <= 0 {
			continue
		}
		total += count
		all = append(all, categoryWeight{category: c, count: count})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].count != all[j].count {
			return all[i].count > all[j].count
		}
		return all[i].category < all[j].category
	})
	if n > 0 && len(all) > n {
		all = all[:n]
	}
	for i := range all {
		all[i].weight = float64(all[i].count) / float64(total)
	}
	return all
}

// customerProfile is the per-request view of a customer shared by the
// user-based, segment and similar lists.
type customerProfile struct {
	metrics     CustomerMetrics
	segment     Segment
	purchased   map[string]struct{}
	lastProduct string
}

func (p *customerProfile) hasHistory() bool {
	return p.metrics.TotalOrders > 0
}

// loadProfile reads a customer's history and derives metrics without
// writing anything.
func (s *Service) loadProfile(ctx context.Context, customerID string) (*customerProfile, error) {
	exists, err := s.customers.CustomerExists(ctx, customerID)
	if err != nil {
		return nil, storeError("check customer", err)
	}
	if !exists {
		return nil, notFound("customer", customerID)
	}

	orders, err := s.orders.CustomerOrders(ctx, customerID)
	if err != nil {
		return nil, storeError("load customer orders", err)
	}

	ids := make([]string, 0)
	purchased := make(map[string]struct{})
	for _, o := range orders {
		for _, id := range distinctProducts(o) {
			if _, ok := purchased[id]; !ok {
				purchased[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}

	products := map[string]ProductSummary{}
	if len(ids) > 0 {
		products, err = s.products.ProductsByIDs(ctx, ids)
		if err != nil {
			return nil, storeError("load purchased products", err)
		}
	}

	metrics := ComputeMetrics(customerID, orders, products, s.cfg.LifetimeValue)
	return &customerProfile{
		metrics:     metrics,
		segment:     Classify(metrics, s.table),
		purchased:   purchased,
		lastProduct: lastPurchasedProduct(orders),
	}, nil
}

// lastPurchasedProduct picks the first line item of the newest order. Ties
// on timestamp go to the greater order ID so the choice is stable.
func lastPurchasedProduct(orders []OrderRecord) string {
	var latest *OrderRecord
	for i := range orders {
		o := &orders[i]
		if len(distinctProducts(*o)) == 0 {
			continue
		}
		if latest == nil || o.OrderedAt.After(latest.OrderedAt) ||
			(o.OrderedAt.Equal(latest.OrderedAt) && o.ID > latest.ID) {
			latest = o
		}
	}
	if latest == nil {
		return ""
	}
	return distinctProducts(*latest)[0]
}

// RefreshMetrics recomputes a customer's metrics and segment from the full
// eligible history and overwrites the stored snapshot. Concurrent refreshes
// of the same customer are serialized.
func (s *Service) RefreshMetrics(ctx context.Context, customerID string) (CustomerSnapshot, error) {
	if customerID == "" {
		return CustomerSnapshot{}, invalidInput("customer id is required")
	}

	release, err := s.locker.Lock(ctx, "customer-metrics:"+customerID)
	if err != nil {
		return CustomerSnapshot{}, fmt.Errorf("lock customer %s: %w: %v", customerID, ErrServiceUnavailable, err)
	}
	defer release()

	profile, err := s.loadProfile(ctx, customerID)
	if err != nil {
		return CustomerSnapshot{}, err
	}

	snapshot := CustomerSnapshot{
		Metrics:   profile.metrics,
		Segment:   profile.segment,
		UpdatedAt: s.now().UTC(),
	}
	if err := s.customers.SaveSnapshot(ctx, snapshot); err != nil {
		return CustomerSnapshot{}, storeError("save customer snapshot", err)
	}

	s.log.Info("customer metrics refreshed",
		zap.String("customer_id", customerID),
		zap.Int("orders", snapshot.Metrics.TotalOrders),
		zap.String("segment", string(snapshot.Segment.Label)),
		zap.String("tier", snapshot.Segment.Tier.String()),
	)
	return snapshot, nil
}

// CustomerSnapshot returns the last snapshot written by RefreshMetrics.
// Customers that were never refreshed report ErrNotFound.
func (s *Service) CustomerSnapshot(ctx context.Context, customerID string) (CustomerSnapshot, error) {
	if customerID == "" {
		return CustomerSnapshot{}, invalidInput("customer id is required")
	}
	snap, err := s.customers.LoadSnapshot(ctx, customerID)
	if err != nil {
		return CustomerSnapshot{}, storeError("load customer snapshot", err)
	}
	if snap == nil {
		return CustomerSnapshot{}, notFound("customer snapshot", customerID)
	}
	return *snap, nil
}
