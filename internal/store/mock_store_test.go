// ABOUTME: Tests for the in-memory MockStore
// ABOUTME: Verifies copy semantics and injected lookup failures

package store

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockStore_ReturnsCopies(t *testing.T) {
	m := NewMockStore()
	require.NoError(t, m.CreateUser(t.Context(), &User{ID: "u1", Email: "u1@example.com", Active: true}))

	got, err := m.GetUser(t.Context(), "u1")
	require.NoError(t, err)
	got.Active = false

	again, err := m.GetUser(t.Context(), "u1")
	require.NoError(t, err)
	assert.True(t, again.Active, "mutating a returned user must not change the store")
	assert.Equal(t, TierFree, again.Tier)
}

func TestMockStore_GetUserErr(t *testing.T) {
	m := NewMockStore()
	m.GetUserErr = errors.New("directory offline")

	_, err := m.GetUser(t.Context(), "u1")
	require.EqualError(t, err, "directory offline")
}

func TestMockStore_UsageStats(t *testing.T) {
	m := NewMockStore()
	require.NoError(t, m.SaveUsage(t.Context(), &FeatureUsage{ID: "1", UserID: "u1", Feature: "ocr", Success: true, LatencyMS: 10}))
	require.NoError(t, m.SaveUsage(t.Context(), &FeatureUsage{ID: "2", UserID: "u1", Feature: "ocr", Success: false, LatencyMS: 30}))

	stats, err := m.GetUsageStats(t.Context(), UsageFilter{})
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, int64(2), stats[0].Requests)
	assert.Equal(t, int64(1), stats[0].Failures)
	assert.InDelta(t, 20.0, stats[0].AvgLatencyMS, 0.001)
	assert.Len(t, m.UsageRecords(), 2)
}

func TestTierValid(t *testing.T) {
	assert.True(t, TierEnterprise.Valid())
	assert.False(t, Tier("platinum").Valid())
}
