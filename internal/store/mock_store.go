// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite or Postgres

package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu    sync.RWMutex
	users map[string]*User
	usage []*FeatureUsage

	// GetUserErr, when set, is returned by GetUser to simulate an unavailable directory.
	GetUserErr error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		users: make(map[string]*User),
	}
}

// GetUser retrieves a user by id.
func (m *MockStore) GetUser(ctx context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.GetUserErr != nil {
		return nil, m.GetUserErr
	}
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	// Return a copy to avoid external modification
	cp := *u
	return &cp, nil
}

// CreateUser stores a new user.
func (m *MockStore) CreateUser(ctx context.Context, user *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[user.ID]; ok {
		return ErrDuplicateUser
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	if user.Tier == "" {
		user.Tier = TierFree
	}
	cp := *user
	m.users[cp.ID] = &cp
	return nil
}

// SetUserActive enables or disables a user.
func (m *MockStore) SetUserActive(ctx context.Context, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Active = active
	u.UpdatedAt = time.Now().UTC()
	return nil
}

// ListUsers returns copies of every user ordered by creation time.
func (m *MockStore) ListUsers(ctx context.Context) ([]*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	users := make([]*User, 0, len(m.users))
	for _, u := range m.users {
		cp := *u
		users = append(users, &cp)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].ID < users[j].ID
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users, nil
}

// SaveUsage appends a usage record.
func (m *MockStore) SaveUsage(ctx context.Context, usage *FeatureUsage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *usage
	m.usage = append(m.usage, &cp)
	return nil
}

// GetUsageStats aggregates stored usage records per feature.
func (m *MockStore) GetUsageStats(ctx context.Context, filter UsageFilter) ([]*FeatureStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byFeature := make(map[string]*FeatureStats)
	totals := make(map[string]int64)
	for _, u := range m.usage {
		if filter.UserID != nil && u.UserID != *filter.UserID {
			continue
		}
		if filter.Since != nil && u.CreatedAt.Before(*filter.Since) {
			continue
		}
		if filter.Until != nil && !u.CreatedAt.Before(*filter.Until) {
			continue
		}
		fs, ok := byFeature[u.Feature]
		if !ok {
			fs = &FeatureStats{Feature: u.Feature}
			byFeature[u.Feature] = fs
		}
		fs.Requests++
		if !u.Success {
			fs.Failures++
		}
		totals[u.Feature] += u.LatencyMS
	}

	stats := make([]*FeatureStats, 0, len(byFeature))
	for feature, fs := range byFeature {
		fs.AvgLatencyMS = float64(totals[feature]) / float64(fs.Requests)
		stats = append(stats, fs)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Feature < stats[j].Feature })
	return stats, nil
}

// UsageRecords returns a copy of every saved usage record.
func (m *MockStore) UsageRecords() []*FeatureUsage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*FeatureUsage, 0, len(m.usage))
	for _, u := range m.usage {
		cp := *u
		out = append(out, &cp)
	}
	return out
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}

// Ensure MockStore implements Store interface.
var _ Store = (*MockStore)(nil)
