package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CustomerMetrics is the snapshot document in customer_metrics, keyed by
// the user's ObjectID. Each refresh replaces the whole document.
type CustomerMetrics struct {
	ID                primitive.ObjectID `bson:"_id" json:"customerId"`
	TotalOrders       int                `bson:"totalOrders" json:"totalOrders"`
	TotalSpent        float64            `bson:"totalSpent" json:"totalSpent"`
	LifetimeValue     float64            `bson:"lifetimeValue" json:"lifetimeValue"`
	LastOrderDate     *time.Time         `bson:"lastOrderDate,omitempty" json:"lastOrderDate,omitempty"`
	CategoryFrequency map[string]int     `bson:"categoryFrequency" json:"categoryFrequency"`
	Segment           string             `bson:"segment" json:"segment"`
	LoyaltyTier       string             `bson:"loyaltyTier" json:"loyaltyTier"`
	UpdatedAt         time.Time          `bson:"updatedAt" json:"updatedAt"`
}
