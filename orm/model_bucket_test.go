package orm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umoja-network/umoja/errors"
	"github.com/umoja-network/umoja/store"
)

type counter struct {
	Count int64 `json:"count"`
}

func (c *counter) Marshal() ([]byte, error) { return json.Marshal(c) }
func (c *counter) Unmarshal(raw []byte) error {
	return json.Unmarshal(raw, c)
}
func (c *counter) Validate() error {
	if c.Count < 0 {
		return errors.Wrap(errors.ErrModel, "negative count")
	}
	return nil
}

func TestModelBucketPutOne(t *testing.T) {
	db := store.MemStore()
	b := NewModelBucket("cnts")

	require.NoError(t, b.Put(db, []byte("a"), &counter{Count: 5}))

	var got counter
	require.NoError(t, b.One(db, []byte("a"), &got))
	assert.Equal(t, int64(5), got.Count)

	err := b.One(db, []byte("missing"), &got)
	assert.True(t, errors.ErrNotFound.Is(err))
}

func TestModelBucketPutRejectsInvalid(t *testing.T) {
	db := store.MemStore()
	b := NewModelBucket("cnts")

	err := b.Put(db, []byte("a"), &counter{Count: -1})
	assert.True(t, errors.ErrModel.Is(err))

	err = b.Put(db, nil, &counter{Count: 1})
	assert.True(t, errors.ErrEmpty.Is(err))
}

func TestModelBucketDelete(t *testing.T) {
	db := store.MemStore()
	b := NewModelBucket("cnts")

	err := b.Delete(db, []byte("a"))
	assert.True(t, errors.ErrNotFound.Is(err))

	require.NoError(t, b.Put(db, []byte("a"), &counter{Count: 1}))
	require.NoError(t, b.Delete(db, []byte("a")))

	has, err := b.Has(db, []byte("a"))
	require.NoError(t, err)
	assert.False(t, has)
}

func TestModelBucketPrefixesDoNotClash(t *testing.T) {
	db := store.MemStore()
	ba := NewModelBucket("aaa")
	bb := NewModelBucket("bbb")

	require.NoError(t, ba.Put(db, []byte("k"), &counter{Count: 1}))
	require.NoError(t, bb.Put(db, []byte("k"), &counter{Count: 2}))

	var got counter
	require.NoError(t, ba.One(db, []byte("k"), &got))
	assert.Equal(t, int64(1), got.Count)
	require.NoError(t, bb.One(db, []byte("k"), &got))
	assert.Equal(t, int64(2), got.Count)
}

func TestBadBucketName(t *testing.T) {
	assert.Panics(t, func() { NewModelBucket("BAD NAME") })
}
