package database

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// EnsureProductIndexes backs the category and best-seller reads.
func EnsureProductIndexes(db *mongo.Database) error {
	return ensureIndexes(db, "products", []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "category", Value: 1}},
			Options: options.Index().SetName("category_index"),
		},
		{
			Keys:    bson.D{{Key: "salesCount", Value: -1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("salesCount_createdAt_index"),
		},
	})
}

// EnsureOrderIndexes backs the corpus scan and per-customer history reads.
func EnsureOrderIndexes(db *mongo.Database) error {
	return ensureIndexes(db, "orders", []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "userId", Value: 1}},
			Options: options.Index().SetName("userId_index"),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("status_createdAt_index"),
		},
	})
}

// EnsureCustomerMetricsIndexes lets operators list snapshots by segment.
func EnsureCustomerMetricsIndexes(db *mongo.Database) error {
	return ensureIndexes(db, "customer_metrics", []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "segment", Value: 1}, {Key: "loyaltyTier", Value: 1}},
			Options: options.Index().SetName("segment_tier_index"),
		},
	})
}

func ensureIndexes(db *mongo.Database, collection string, models []mongo.IndexModel) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	log := zap.L().With(zap.String("collection", collection))
	log.Info("ensuring indexes", zap.Int("count", len(models)))

	names, err := db.Collection(collection).Indexes().CreateMany(ctx, models)
	if err != nil {
		log.Error("index creation failed", zap.Error(err))
		return err
	}
	log.Info("indexes ready", zap.Strings("names", names))
	return nil
}
