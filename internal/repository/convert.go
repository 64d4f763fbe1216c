package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"storefront/internal/models"
	"storefront/internal/recommend"
)

// normalizeProductDocument coerces legacy field shapes before decoding:
// string categories, numeric salesCount stored as any BSON number, and a
// missing isActive flag (treated as active, matching the storefront's
// "isActive != false" filter).
func normalizeProductDocument(raw bson.M) (models.Product, error) {
	if cat, ok := raw["category"].(string); ok {
		raw["category"] = []string{cat}
	}

	switch typed := raw["salesCount"].(type) {
	case int32:
		raw["salesCount"] = int(typed)
	case int64:
		raw["salesCount"] = int(typed)
	case float64:
		raw["salesCount"] = int(typed)
	case int:
	default:
		raw["salesCount"] = 0
	}

	if _, ok := raw["isActive"].(bool); !ok {
		raw["isActive"] = true
	}

	data, err := bson.Marshal(raw)
	if err != nil {
		return models.Product{}, err
	}

	var p models.Product
	if err := bson.Unmarshal(data, &p); err != nil {
		return models.Product{}, err
	}
	return p, nil
}

func decodeProducts(ctx context.Context, cursor *mongo.Cursor) ([]models.Product, error) {
	products := make([]models.Product, 0)

	for cursor.Next(ctx) {
		var raw bson.M
		if err := cursor.Decode(&raw); err != nil {
			return nil, err
		}

		product, err := normalizeProductDocument(raw)
		if err != nil {
			return nil, err
		}

		products = append(products, product)
	}

	if err := cursor.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func toProductSummary(p models.Product) recommend.ProductSummary {
	sales := p.SalesCount
	if sales < 0 {
		sales = 0
	}
	return recommend.ProductSummary{
		ID:         p.ID.Hex(),
		Name:       p.Name,
		Brand:      p.Brand,
		Price:      effectiveProductPrice(p.Price, p.SaleEnabled, p.SalePrice),
		Categories: append([]string(nil), p.Category...),
		SalesCount: sales,
		Active:     p.IsActive && !p.IsDeleted,
		CreatedAt:  p.CreatedAt,
	}
}

func toOrderRecord(o models.Order) recommend.OrderRecord {
	rec := recommend.OrderRecord{
		ID:        o.ID.Hex(),
		OrderedAt: o.CreatedAt,
		Status:    o.Status,
		Total:     o.TotalPrice,
		Items:     make([]recommend.LineItem, 0, len(o.Items)),
	}
	if o.UserID != nil && !o.UserID.IsZero() {
		rec.CustomerID = o.UserID.Hex()
	}
	for _, item := range o.Items {
		if item.ProductID.IsZero() {
			continue
		}
		rec.Items = append(rec.Items, recommend.LineItem{
			ProductID: item.ProductID.Hex(),
			Quantity:  item.Quantity,
			UnitPrice: item.Price,
		})
	}
	return rec
}

func toMetricsDocument(id primitive.ObjectID, snap recommend.CustomerSnapshot) models.CustomerMetrics {
	freq := make(map[string]int, len(snap.Metrics.CategoryFrequency))
	for k, v := range snap.Metrics.CategoryFrequency {
		freq[k] = v
	}
	return models.CustomerMetrics{
		ID:                id,
		TotalOrders:       snap.Metrics.TotalOrders,
		TotalSpent:        snap.Metrics.TotalSpent,
		LifetimeValue:     snap.Metrics.LifetimeValue,
		LastOrderDate:     snap.Metrics.LastOrderDate,
		CategoryFrequency: freq,
		Segment:           string(snap.Segment.Label),
		LoyaltyTier:       snap.Segment.Tier.String(),
		UpdatedAt:         snap.UpdatedAt,
	}
}

func fromMetricsDocument(doc models.CustomerMetrics) recommend.CustomerSnapshot {
	tier, _ := recommend.ParseTier(doc.LoyaltyTier)
	label := recommend.SegmentLabel(doc.Segment)
	if !label.Valid() {
		label = recommend.SegmentCasual
	}
	freq := doc.CategoryFrequency
	if freq == nil {
		freq = map[string]int{}
	}
	return recommend.CustomerSnapshot{
		Metrics: recommend.CustomerMetrics{
			CustomerID:        doc.ID.Hex(),
			TotalOrders:       doc.TotalOrders,
			TotalSpent:        doc.TotalSpent,
			LifetimeValue:     doc.LifetimeValue,
			LastOrderDate:     doc.LastOrderDate,
			CategoryFrequency: freq,
		},
		Segment:   recommend.Segment{Label: label, Tier: tier},
		UpdatedAt: doc.UpdatedAt,
	}
}
