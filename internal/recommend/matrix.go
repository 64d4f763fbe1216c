package recommend

import (
	"sort"
)

// Matrix is a symmetric product co-occurrence table built from a set of
// orders. A Matrix is immutable once BuildMatrix returns.
//
//	counts[a][b] = number of distinct orders containing both a and b
//
// counts[a][b] == counts[b][a] and counts[a][a] never exists.
type Matrix struct {
	counts      map[string]map[string]int
	occurrences map[string]int
	pairs       int
}

// BuildMatrix recomputes the table from scratch. Quantities are ignored: a
// product either appeared in an order or it did not. Orders with fewer than
// two distinct products contribute occurrences but no pairs.
func BuildMatrix(orders []OrderRecord) *Matrix {
	m := &Matrix{
		counts:      make(map[string]map[string]int),
		occurrences: make(map[string]int),
	}

	for _, o := range orders {
		ids := distinctProducts(o)
		for _, id := range ids {
			m.occurrences[id]++
		}
		if len(ids) < 2 {
			continue
		}

		for i := 0; i < len(ids); i++ {
			for j := i + 1; j < len(ids); j++ {
				m.increment(ids[i], ids[j])
				m.increment(ids[j], ids[i])
			}
		}
	}

	for a, row := range m.counts {
		for b := range row {
			if a < b {
				m.pairs++
			}
		}
	}
	return m
}

func (m *Matrix) increment(a, b string) {
	row := m.counts[a]
	if row == nil {
		row = make(map[string]int)
		m.counts[a] = row
	}
	row[b]++
}

// Count returns how many orders contained both a and b.
func (m *Matrix) Count(a, b string) int {
	if m == nil || a == b {
		return 0
	}
	return m.counts[a][b]
}

// Occurrences returns how many orders contained id.
func (m *Matrix) Occurrences(id string) int {
	if m == nil {
		return 0
	}
	return m.occurrences[id]
}

// Partners returns the products co-purchased with id and their counts. The
// returned map is a copy.
func (m *Matrix) Partners(id string) map[string]int {
	if m == nil {
		return nil
	}
	row, ok := m.counts[id]
	if !ok {
		return nil
	}
	out := make(map[string]int, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

// HasRow reports whether id was paired with anything.
func (m *Matrix) HasRow(id string) bool {
	if m == nil {
		return false
	}
	return len(m.counts[id]) > 0
}

// Pairs is the number of unordered product pairs with a non-zero count.
func (m *Matrix) Pairs() int {
	if m == nil {
		return 0
	}
	return m.pairs
}

// Products returns the IDs that have at least one partner, sorted.
func (m *Matrix) Products() []string {
	if m == nil {
		return nil
	}
	ids := make([]string, 0, len(m.counts))
	for id := range m.counts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// TotalCount sums every directed cell, so each pair is counted twice.
func (m *Matrix) TotalCount() int {
	if m == nil {
		return 0
	}
	total := 0
	for _, row := range m.counts {
		for _, c := range row {
			total += c
		}
	}
	return total
}

// corpusStats are the order-level aggregates captured alongside a matrix so
// Stats reports on exactly the corpus the matrix was built from.
type corpusStats struct {
	orders        int
	customers     int
	distinctItems int
}

func summarizeCorpus(orders []OrderRecord) corpusStats {
	customers := make(map[string]struct{})
	cs := corpusStats{orders: len(orders)}
	for _, o := range orders {
		if o.CustomerID != "" {
			customers[o.CustomerID] = struct{}{}
		}
		cs.distinctItems += len(distinctProducts(o))
	}
	cs.customers = len(customers)
	return cs
}
