package recommend

import (
	"time"
)

// Order statuses that feed the recommendation corpus. Anything else
// (pending, cancelled, refunded) is ignored.
const (
	StatusDelivered = "delivered"
	StatusCompleted = "completed"
)

// EligibleStatuses lists the fulfillment statuses read by the order store.
var EligibleStatuses = []string{StatusDelivered, StatusCompleted}

// LineItem is a single product entry inside an order.
type LineItem struct {
	ProductID string  `json:"productId"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
}

// OrderRecord is the read view of a fulfilled order.
type OrderRecord struct {
	ID         string     `json:"id"`
	CustomerID string     `json:"customerId"`
	OrderedAt  time.Time  `json:"orderedAt"`
	Status     string     `json:"status"`
	Total      float64    `json:"total"`
	Items      []LineItem `json:"items"`
}

// OrderTotal returns the stored total, or the sum of the line items when
// the order was persisted without one.
func OrderTotal(o OrderRecord) float64 {
	if o.Total > 0 {
		return o.Total
	}
	var sum float64
	for _, item := range o.Items {
		sum += float64(item.Quantity) * item.UnitPrice
	}
	return sum
}

// distinctProducts returns the product IDs of an order in first-seen order,
// without repeats.
func distinctProducts(o OrderRecord) []string {
	seen := make(map[string]struct{}, len(o.Items))
	ids := make([]string, 0, len(o.Items))
	for _, item := range o.Items {
		if item.ProductID == "" {
			continue
		}
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	return ids
}

// ProductSummary is the catalog view used for ranking.
type ProductSummary struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Brand      string    `json:"brand,omitempty"`
	Price      float64   `json:"price"`
	Categories []string  `json:"categories"`
	SalesCount int       `json:"salesCount"`
	Active     bool      `json:"isActive"`
	CreatedAt  time.Time `json:"createdAt"`
}

// PrimaryCategory is the first category tag, or "" for untagged products.
func PrimaryCategory(p ProductSummary) string {
	if len(p.Categories) == 0 {
		return ""
	}
	return p.Categories[0]
}

func hasCategory(p ProductSummary, category string) bool {
	for _, c := range p.Categories {
		if c == category {
			return true
		}
	}
	return false
}

// CustomerMetrics is the recomputed lifetime view of one customer.
type CustomerMetrics struct {
	CustomerID        string         `json:"customerId"`
	TotalOrders       int            `json:"totalOrders"`
	TotalSpent        float64        `json:"totalSpent"`
	LifetimeValue     float64        `json:"lifetimeValue"`
	LastOrderDate     *time.Time     `json:"lastOrderDate,omitempty"`
	CategoryFrequency map[string]int `json:"categoryFrequency"`
}

// SegmentLabel is a behavioral customer segment.
type SegmentLabel string

const (
	SegmentBodybuilder     SegmentLabel = "bodybuilder"
	SegmentWeightLoss      SegmentLabel = "weight-loss"
	SegmentBulking         SegmentLabel = "bulking"
	SegmentHealthConscious SegmentLabel = "health-conscious"
	SegmentCasual          SegmentLabel = "casual"
)

// SegmentLabels is the fixed label order; earlier labels win ties.
var SegmentLabels = []SegmentLabel{
	SegmentBodybuilder,
	SegmentWeightLoss,
	SegmentBulking,
	SegmentHealthConscious,
	SegmentCasual,
}

// Valid reports whether l is one of SegmentLabels.
func (l SegmentLabel) Valid() bool {
	for _, known := range SegmentLabels {
		if l == known {
			return true
		}
	}
	return false
}

// LoyaltyTier is ordered: Bronze < Silver < Gold < Platinum < Diamond.
type LoyaltyTier int

const (
	TierBronze LoyaltyTier = iota
	TierSilver
	TierGold
	TierPlatinum
	TierDiamond
)

var tierNames = [...]string{"Bronze", "Silver", "Gold", "Platinum", "Diamond"}

func (t LoyaltyTier) String() string {
	if t < TierBronze || t > TierDiamond {
		return "Unknown"
	}
	return tierNames[t]
}

// ParseTier resolves a tier name case-sensitively.
func ParseTier(name string) (LoyaltyTier, bool) {
	for i, n := range tierNames {
		if n == name {
			return LoyaltyTier(i), true
		}
	}
	return TierBronze, false
}

// MarshalText renders the tier by name so JSON and BSON carry "Gold" rather
// than an integer.
func (t LoyaltyTier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *LoyaltyTier) UnmarshalText(text []byte) error {
	tier, ok := ParseTier(string(text))
	if !ok {
		return invalidInput("unknown loyalty tier %q", string(text))
	}
	*t = tier
	return nil
}

// Segment pairs a behavioral label with a loyalty tier.
type Segment struct {
	Label SegmentLabel `json:"label"`
	Tier  LoyaltyTier  `json:"tier"`
}

// CustomerSnapshot is what the customer store persists on refresh.
type CustomerSnapshot struct {
	Metrics   CustomerMetrics `json:"metrics"`
	Segment   Segment         `json:"segment"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Recommendation is one ranked entry.
type Recommendation struct {
	Product ProductSummary `json:"product"`
	Score   float64        `json:"score"`
	Reason  string         `json:"reason"`
}

// Result is an ordered recommendation list.
type Result []Recommendation

// HybridOptions controls the hybrid bundle.
type HybridOptions struct {
	Limit int `json:"limit"`
}

// HybridResult groups the independently computed lists.
type HybridResult struct {
	Personalized Result  `json:"personalized"`
	Popular      Result  `json:"popular"`
	Segment      Result  `json:"segment"`
	Similar      Result  `json:"similar"`
	CustomerSeg  Segment `json:"customerSegment"`
}

// Stats is the diagnostic aggregate over the corpus and matrix.
type Stats struct {
	TotalProducts              int       `json:"totalProducts"`
	TotalOrders                int       `json:"totalOrders"`
	TotalUsers                 int       `json:"totalUsers"`
	AvgItemsPerOrder           float64   `json:"avgItemsPerOrder"`
	AvgCoOccurrencesPerProduct float64   `json:"avgCoOccurrencesPerProduct"`
	MatrixSize                 int       `json:"matrixSize"`
	BuiltAt                    time.Time `json:"builtAt"`
}
