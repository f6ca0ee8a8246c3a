package stdb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTraceFilter(t *testing.T) {
	filter, err := NewTraceFilter([]string{"users", "orders"})
	require.NoError(t, err)
	require.NotNil(t, filter)

	assert.Len(t, filter.tableGlobs, 2)
}

func TestTraceFilterEmptyPatternsDisabled(t *testing.T) {
	// No patterns means tracing is off entirely
	filter, err := NewTraceFilter(nil)
	require.NoError(t, err)
	require.Nil(t, filter)

	// Nil receiver never matches
	assert.False(t, filter.Match("users"))
	assert.False(t, filter.Match(""))
}

func TestTraceFilterExactMatch(t *testing.T) {
	filter, err := NewTraceFilter([]string{"users"})
	require.NoError(t, err)

	assert.True(t, filter.Match("users"))
	assert.False(t, filter.Match("orders"))
	assert.False(t, filter.Match("users_archive"))
}

func TestTraceFilterWildcard(t *testing.T) {
	filter, err := NewTraceFilter([]string{"user*"})
	require.NoError(t, err)

	assert.True(t, filter.Match("users"))
	assert.True(t, filter.Match("user_accounts"))
	assert.False(t, filter.Match("orders"))
}

func TestTraceFilterMultiplePatterns(t *testing.T) {
	filter, err := NewTraceFilter([]string{"users", "order_*", "msg?"})
	require.NoError(t, err)

	assert.True(t, filter.Match("users"))
	assert.True(t, filter.Match("order_items"))
	assert.True(t, filter.Match("msg1"))

	assert.False(t, filter.Match("inventory"))
	assert.False(t, filter.Match("msg12"))
}

func TestTraceFilterBraceAlternatives(t *testing.T) {
	filter, err := NewTraceFilter([]string{"player_{state,inventory}"})
	require.NoError(t, err)

	assert.True(t, filter.Match("player_state"))
	assert.True(t, filter.Match("player_inventory"))
	assert.False(t, filter.Match("player_stats"))
}

func TestTraceFilterInvalidPattern(t *testing.T) {
	_, err := NewTraceFilter([]string{"user["})
	assert.Error(t, err)
}

func BenchmarkTraceFilterMatch(b *testing.B) {
	filter, err := NewTraceFilter([]string{"user*", "order*", "product*"})
	require.NoError(b, err)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		filter.Match("users")
	}
}

func BenchmarkTraceFilterMiss(b *testing.B) {
	filter, err := NewTraceFilter([]string{"user*", "order*"})
	require.NoError(b, err)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		filter.Match("inventory")
	}
}
