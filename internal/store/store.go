// ABOUTME: Store interfaces and data types for the gateway's identity directory
// ABOUTME: Defines User, FeatureUsage and the interfaces backed by SQLite, Postgres and the mock

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateUser is returned when creating a user whose id already exists
var ErrDuplicateUser = errors.New("user already exists")

// Tier is a subscription tier
type Tier string

const (
	TierFree       Tier = "free"
	TierPremium    Tier = "premium"
	TierEnterprise Tier = "enterprise"
)

// Valid reports whether t is a known tier
func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierPremium, TierEnterprise:
		return true
	}
	return false
}

// User is an identity that may open realtime sessions
type User struct {
	ID        string
	Email     string
	Tier      Tier
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// FeatureUsage records one processed feature request
type FeatureUsage struct {
	ID        string
	UserID    string
	Feature   string
	Success   bool
	LatencyMS int64
	CreatedAt time.Time
}

// UsageFilter narrows usage statistics queries
type UsageFilter struct {
	UserID *string
	Since  *time.Time
	Until  *time.Time
}

// FeatureStats aggregates usage for one feature
type FeatureStats struct {
	Feature      string
	Requests     int64
	Failures     int64
	AvgLatencyMS float64
}

// UserStore manages the identity directory
type UserStore interface {
	GetUser(ctx context.Context, id string) (*User, error)
	CreateUser(ctx context.Context, user *User) error
	SetUserActive(ctx context.Context, id string, active bool) error
	ListUsers(ctx context.Context) ([]*User, error)
}

// UsageStore persists feature usage for analytics
type UsageStore interface {
	SaveUsage(ctx context.Context, usage *FeatureUsage) error
	GetUsageStats(ctx context.Context, filter UsageFilter) ([]*FeatureStats, error)
}

// Store is the full persistence surface used by the gateway
type Store interface {
	UserStore
	UsageStore
	Close() error
}
