package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"storefront/internal/models"
	"storefront/internal/recommend"
)

// Customers checks accounts in users and keeps metric snapshots in
// customer_metrics.
type Customers struct {
	db      *mongo.Database
	timeout time.Duration
}

func NewCustomers(db *mongo.Database) *Customers {
	return &Customers{db: db, timeout: defaultQueryTimeout}
}

func (r *Customers) CustomerExists(ctx context.Context, customerID string) (bool, error) {
	oid, err := primitive.ObjectIDFromHex(customerID)
	if err != nil {
		return false, nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	n, err := r.db.Collection(usersCollection).CountDocuments(ctx, bson.M{"_id": oid}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *Customers) LoadSnapshot(ctx context.Context, customerID string) (*recommend.CustomerSnapshot, error) {
	oid, err := primitive.ObjectIDFromHex(customerID)
	if err != nil {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var doc models.CustomerMetrics
	err = r.db.Collection(customerMetricsCollection).FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	snap := fromMetricsDocument(doc)
	return &snap, nil
}

// SaveSnapshot replaces the whole document; fields are never patched.
func (r *Customers) SaveSnapshot(ctx context.Context, snapshot recommend.CustomerSnapshot) error {
	oid, err := primitive.ObjectIDFromHex(snapshot.Metrics.CustomerID)
	if err != nil {
		return fmt.Errorf("%w: customer %s", recommend.ErrNotFound, snapshot.Metrics.CustomerID)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err = r.db.Collection(customerMetricsCollection).ReplaceOne(
		ctx,
		bson.M{"_id": oid},
		toMetricsDocument(oid, snapshot),
		options.Replace().SetUpsert(true),
	)
	return err
}
