package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"storefront/internal/recommend"
)

// Memory is an in-process store implementing every recommendation port.
// It backs tests and local runs without MongoDB.
type Memory struct {
	mu        sync.RWMutex
	orders    []recommend.OrderRecord
	products  map[string]recommend.ProductSummary
	customers map[string]struct{}
	snapshots map[string]recommend.CustomerSnapshot
	saves     int
}

func NewMemory() *Memory {
	return &Memory{
		products:  make(map[string]recommend.ProductSummary),
		customers: make(map[string]struct{}),
		snapshots: make(map[string]recommend.CustomerSnapshot),
	}
}

// AddProducts upserts products by ID.
func (m *Memory) AddProducts(products ...recommend.ProductSummary) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range products {
		m.products[p.ID] = p
	}
}

// AddCustomers registers customer accounts.
func (m *Memory) AddCustomers(ids ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		m.customers[id] = struct{}{}
	}
}

// AddOrders appends orders of any status; reads filter eligibility.
func (m *Memory) AddOrders(orders ...recommend.OrderRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders = append(m.orders, orders...)
}

// Saves counts SaveSnapshot calls.
func (m *Memory) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}

func eligible(status string) bool {
	for _, s := range recommend.EligibleStatuses {
		if s == status {
			return true
		}
	}
	return false
}

func (m *Memory) EligibleOrders(_ context.Context, since time.Time) ([]recommend.OrderRecord, error) {
	return m.filterOrders(func(o recommend.OrderRecord) bool {
		return since.IsZero() || !o.OrderedAt.Before(since)
	}), nil
}

func (m *Memory) CustomerOrders(_ context.Context, customerID string) ([]recommend.OrderRecord, error) {
	return m.filterOrders(func(o recommend.OrderRecord) bool {
		return o.CustomerID == customerID
	}), nil
}

func (m *Memory) filterOrders(keep func(recommend.OrderRecord) bool) []recommend.OrderRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]recommend.OrderRecord, 0)
	for _, o := range m.orders {
		if eligible(o.Status) && keep(o) {
			o.Items = append([]recommend.LineItem(nil), o.Items...)
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OrderedAt.Before(out[j].OrderedAt) })
	return out
}

func (m *Memory) ProductByID(_ context.Context, id string) (recommend.ProductSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.products[id]
	if !ok {
		return recommend.ProductSummary{}, fmt.Errorf("%w: product %s", recommend.ErrNotFound, id)
	}
	return p, nil
}

func (m *Memory) ProductsByIDs(_ context.Context, ids []string) (map[string]recommend.ProductSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]recommend.ProductSummary, len(ids))
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (m *Memory) ProductsByCategory(_ context.Context, category string) ([]recommend.ProductSummary, error) {
	return m.filterProducts(func(p recommend.ProductSummary) bool {
		for _, c := range p.Categories {
			if c == category {
				return true
			}
		}
		return false
	}), nil
}

func (m *Memory) ActiveProducts(_ context.Context) ([]recommend.ProductSummary, error) {
	return m.filterProducts(func(recommend.ProductSummary) bool { return true }), nil
}

func (m *Memory) filterProducts(keep func(recommend.ProductSummary) bool) []recommend.ProductSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]recommend.ProductSummary, 0)
	for _, p := range m.products {
		if p.Active && keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Memory) CustomerExists(_ context.Context, customerID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.customers[customerID]
	return ok, nil
}

func (m *Memory) LoadSnapshot(_ context.Context, customerID string) (*recommend.CustomerSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.snapshots[customerID]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

func (m *Memory) SaveSnapshot(_ context.Context, snapshot recommend.CustomerSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[snapshot.Metrics.CustomerID] = snapshot
	m.saves++
	return nil
}
