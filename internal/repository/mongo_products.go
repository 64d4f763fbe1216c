package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"storefront/internal/recommend"
)

// Products reads catalog summaries from the products collection.
type Products struct {
	db      *mongo.Database
	timeout time.Duration
}

func NewProducts(db *mongo.Database) *Products {
	return &Products{db: db, timeout: defaultQueryTimeout}
}

func activeFilter() bson.M {
	return bson.M{
		"isActive":  bson.M{"$ne": false},
		"isDeleted": bson.M{"$ne": true},
	}
}

func (r *Products) ProductByID(ctx context.Context, id string) (recommend.ProductSummary, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return recommend.ProductSummary{}, fmt.Errorf("%w: product %s", recommend.ErrNotFound, id)
	}

	products, err := r.find(ctx, bson.M{"_id": oid, "isDeleted": bson.M{"$ne": true}}, nil)
	if err != nil {
		return recommend.ProductSummary{}, err
	}
	if len(products) == 0 {
		return recommend.ProductSummary{}, fmt.Errorf("%w: product %s", recommend.ErrNotFound, id)
	}
	return products[0], nil
}

func (r *Products) ProductsByIDs(ctx context.Context, ids []string) (map[string]recommend.ProductSummary, error) {
	oids := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if oid, err := primitive.ObjectIDFromHex(id); err == nil {
			oids = append(oids, oid)
		}
	}
	out := make(map[string]recommend.ProductSummary, len(oids))
	if len(oids) == 0 {
		return out, nil
	}

	products, err := r.find(ctx, bson.M{"_id": bson.M{"$in": oids}, "isDeleted": bson.M{"$ne": true}}, nil)
	if err != nil {
		return nil, err
	}
	for _, p := range products {
		out[p.ID] = p
	}
	return out, nil
}

func (r *Products) ProductsByCategory(ctx context.Context, category string) ([]recommend.ProductSummary, error) {
	filter := activeFilter()
	filter["category"] = bson.M{"$in": []string{strings.TrimSpace(category)}}
	return r.find(ctx, filter, bySales())
}

func (r *Products) ActiveProducts(ctx context.Context) ([]recommend.ProductSummary, error) {
	return r.find(ctx, activeFilter(), bySales())
}

func bySales() *options.FindOptions {
	return options.Find().SetSort(bson.D{
		{Key: "salesCount", Value: -1},
		{Key: "createdAt", Value: -1},
	})
}

func (r *Products) find(ctx context.Context, filter bson.M, findOptions *options.FindOptions) ([]recommend.ProductSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if findOptions == nil {
		findOptions = options.Find()
	}
	cursor, err := r.db.Collection(productsCollection).Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	products, err := decodeProducts(ctx, cursor)
	if err != nil {
		return nil, err
	}

	out := make([]recommend.ProductSummary, 0, len(products))
	for _, p := range products {
		out = append(out, toProductSummary(p))
	}
	return out, nil
}
