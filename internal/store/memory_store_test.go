package store

import (
	"testing"

	"github.com/eidolon-project/eidolon/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryConfigStore_GetMissingReturnsFalse(t *testing.T) {
	s := NewMemoryConfigStore()
	_, ok, err := s.Get("user-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryConfigStore_PutThenGetRoundTrips(t *testing.T) {
	s := NewMemoryConfigStore()
	cfg := types.DefaultScanConfig()

	require.NoError(t, s.Put("user-1", cfg))

	got, ok, err := s.Get("user-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, cfg, got)
}
