package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"storefront/internal/models"
	"storefront/internal/recommend"
)

const (
	ordersCollection          = "orders"
	productsCollection        = "products"
	usersCollection           = "users"
	customerMetricsCollection = "customer_metrics"

	defaultQueryTimeout = 5 * time.Second
)

// Orders reads fulfilled orders from the orders collection.
type Orders struct {
	db      *mongo.Database
	timeout time.Duration
}

func NewOrders(db *mongo.Database) *Orders {
	return &Orders{db: db, timeout: defaultQueryTimeout}
}

// WithTimeout overrides the per-query timeout. The corpus scan usually
// needs more than the default.
func (r *Orders) WithTimeout(d time.Duration) *Orders {
	if d > 0 {
		r.timeout = d
	}
	return r
}

func eligibleFilter() bson.M {
	return bson.M{"status": bson.M{"$in": recommend.EligibleStatuses}}
}

func (r *Orders) EligibleOrders(ctx context.Context, since time.Time) ([]recommend.OrderRecord, error) {
	filter := eligibleFilter()
	if !since.IsZero() {
		filter["createdAt"] = bson.M{"$gte": since}
	}
	return r.find(ctx, filter)
}

func (r *Orders) CustomerOrders(ctx context.Context, customerID string) ([]recommend.OrderRecord, error) {
	userID, err := primitive.ObjectIDFromHex(customerID)
	if err != nil {
		return []recommend.OrderRecord{}, nil
	}
	filter := eligibleFilter()
	filter["userId"] = userID
	return r.find(ctx, filter)
}

func (r *Orders) find(ctx context.Context, filter bson.M) ([]recommend.OrderRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	findOptions := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}).
		SetProjection(bson.M{"userId": 1, "items": 1, "totalPrice": 1, "status": 1, "createdAt": 1})

	cursor, err := r.db.Collection(ordersCollection).Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	records := make([]recommend.OrderRecord, 0)
	for cursor.Next(ctx) {
		var order models.Order
		if err := cursor.Decode(&order); err != nil {
			return nil, err
		}
		records = append(records, toOrderRecord(order))
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return records, nil
}
