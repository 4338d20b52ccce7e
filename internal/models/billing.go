package models

import "time"

// Client is a customer profile bound to one authenticated user
type Client struct {
	Id          string `gorm:"primaryKey;size:36"`
	UserId      string `gorm:"size:255;not null;uniqueIndex"`
	CompanyName string `gorm:"size:255;not null"`
	Phone       string `gorm:"size:32"`
	Address     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Plan defines the resource ceilings a subscription purchases
type Plan struct {
	Id             string `gorm:"primaryKey;size:36"`
	Name           string `gorm:"size:100;not null;uniqueIndex"`
	MaxInstances   int    `gorm:"not null"`
	MaxUsers       int
	StorageLimitGb int
	IsActive       bool `gorm:"not null"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// SubscriptionStatus is the billing state of a subscription
type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusSuspended SubscriptionStatus = "suspended"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
)

// Subscription is a client's entitlement to a plan.
// The partial unique index keeps a single active subscription per client.
type Subscription struct {
	Id        string             `gorm:"primaryKey;size:36"`
	ClientId  string             `gorm:"size:36;not null;index;uniqueIndex:idx_subscriptions_active,where:status = 'active'"`
	PlanId    string             `gorm:"size:36;not null"`
	Plan      *Plan              `gorm:"foreignKey:PlanId"`
	Status    SubscriptionStatus `gorm:"size:16;not null"`
	StartDate time.Time          `gorm:"not null"`
	EndDate   *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}
