/*
Package orm provides an easy to use db wrapper

Break state space into prefixed sections called buckets. Each bucket
contains only one type of entity and operates directly on the
underlying key-value store. Related counters are managed by Sequence
and unique entity identifiers by IDGen.
*/
package orm

import (
	"fmt"
	"regexp"

	"github.com/umoja-network/umoja"
	"github.com/umoja-network/umoja/errors"
)

var isBucketName = regexp.MustCompile(`^[a-z_]{3,10}$`).MatchString

// Model is implemented by any entity that can be stored in a
// ModelBucket.
type Model interface {
	umoja.Persistent
	Validate() error
}

// ModelBucket is a prefixed subspace of the database holding entities
// of a single type.
type ModelBucket struct {
	name   string
	prefix []byte
}

// NewModelBucket returns a bucket to store entities under the given
// name prefix.
func NewModelBucket(name string) ModelBucket {
	if !isBucketName(name) {
		panic(fmt.Sprintf("illegal bucket: %s", name))
	}
	return ModelBucket{
		name:   name,
		prefix: append([]byte(name), ':'),
	}
}

// DBKey is the full key we store in the db, including prefix.
// We copy into a new array rather than use append, as we don't
// want consecutive calls to overwrite the same byte array.
func (b ModelBucket) DBKey(key []byte) []byte {
	l := len(b.prefix)
	out := make([]byte, l+len(key))
	copy(out, b.prefix)
	copy(out[l:], key)
	return out
}

// One queries the database for a single entity. Lookup is done by the
// primary key and the result is loaded into dest. This method returns
// ErrNotFound if the entity does not exist in the database.
func (b ModelBucket) One(db umoja.ReadOnlyKVStore, key []byte, dest Model) error {
	raw, err := db.Get(b.DBKey(key))
	if err != nil {
		return err
	}
	if raw == nil {
		return errors.Wrapf(errors.ErrNotFound, "%T not in the store", dest)
	}
	if err := dest.Unmarshal(raw); err != nil {
		return errors.Wrapf(errors.ErrModel, "cannot unmarshal %T: %s", dest, err)
	}
	return nil
}

// Put validates and saves given entity in the database.
func (b ModelBucket) Put(db umoja.KVStore, key []byte, m Model) error {
	if len(key) == 0 {
		return errors.Wrap(errors.ErrEmpty, "missing key")
	}
	if err := m.Validate(); err != nil {
		return errors.Wrap(err, "invalid model")
	}
	raw, err := m.Marshal()
	if err != nil {
		return errors.Wrapf(errors.ErrModel, "cannot marshal %T: %s", m, err)
	}
	if err := db.Set(b.DBKey(key), raw); err != nil {
		return errors.Wrap(err, "cannot store in the database")
	}
	return nil
}

// Has returns true if an entity with given primary key exists.
func (b ModelBucket) Has(db umoja.ReadOnlyKVStore, key []byte) (bool, error) {
	return db.Has(b.DBKey(key))
}

// Delete removes an entity with given primary key from the database.
// It returns ErrNotFound if an entity with given key does not exist.
func (b ModelBucket) Delete(db umoja.KVStore, key []byte) error {
	dbkey := b.DBKey(key)
	has, err := db.Has(dbkey)
	if err != nil {
		return err
	}
	if !has {
		return errors.Wrapf(errors.ErrNotFound, "no %s entity under this key", b.name)
	}
	return db.Delete(dbkey)
}
