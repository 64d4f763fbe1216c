//go:generate mockgen -source=store.go -destination=mock_store_test.go -package=recommend

package recommend

import (
	"context"
	"time"
)

// OrderReader reads eligible (delivered or completed) orders.
type OrderReader interface {
	// EligibleOrders returns orders placed at or after since. A zero since
	// means the full history.
	EligibleOrders(ctx context.Context, since time.Time) ([]OrderRecord, error)
	// CustomerOrders returns the eligible history of one customer.
	CustomerOrders(ctx context.Context, customerID string) ([]OrderRecord, error)
}

// ProductReader reads catalog summaries.
type ProductReader interface {
	// ProductByID returns ErrNotFound for unknown or deleted products.
	ProductByID(ctx context.Context, id string) (ProductSummary, error)
	// ProductsByIDs silently omits unknown IDs.
	ProductsByIDs(ctx context.Context, ids []string) (map[string]ProductSummary, error)
	// ProductsByCategory returns active products tagged with category.
	ProductsByCategory(ctx context.Context, category string) ([]ProductSummary, error)
	ActiveProducts(ctx context.Context) ([]ProductSummary, error)
}

// CustomerStore reads and overwrites customer snapshots.
type CustomerStore interface {
	CustomerExists(ctx context.Context, customerID string) (bool, error)
	// LoadSnapshot returns nil, nil when no snapshot was written yet.
	LoadSnapshot(ctx context.Context, customerID string) (*CustomerSnapshot, error)
	// SaveSnapshot replaces the stored snapshot as a whole.
	SaveSnapshot(ctx context.Context, snapshot CustomerSnapshot) error
}

// Locker serializes work on a key. The returned release func must be called
// exactly once.
type Locker interface {
	Lock(ctx context.Context, key string) (release func(), err error)
}
