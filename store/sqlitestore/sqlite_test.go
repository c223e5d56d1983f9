package sqlitestore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGetRoundTrip(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Set([]byte("wallet:abc"), []byte("100")))

	got, err := s.Get([]byte("wallet:abc"))
	require.NoError(t, err)
	assert.Equal(t, []byte("100"), got)

	has, err := s.Has([]byte("wallet:abc"))
	require.NoError(t, err)
	assert.True(t, has)

	got, err = s.Get([]byte("missing"))
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.Delete([]byte("wallet:abc")))
	has, err = s.Has([]byte("wallet:abc"))
	require.NoError(t, err)
	assert.False(t, has)
}

func TestCacheWrapCommitsAtomically(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	cache := s.CacheWrap()
	require.NoError(t, cache.Set([]byte("a"), []byte("1")))
	require.NoError(t, cache.Set([]byte("b"), []byte("2")))

	// nothing durable until Write
	has, err := s.Has([]byte("a"))
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, cache.Write())

	got, err := s.Get([]byte("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), got)
	got, err = s.Get([]byte("b"))
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), got)
}

func TestCacheWrapDiscard(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	cache := s.CacheWrap()
	require.NoError(t, cache.Set([]byte("a"), []byte("1")))
	cache.Discard()

	has, err := s.Has([]byte("a"))
	require.NoError(t, err)
	assert.False(t, has)
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Set([]byte("k"), []byte("v")))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
}
