package store

import "github.com/umoja-network/umoja"

// EmptyKVStore never holds any data, used as a base layer under a
// cache wrap to build a pure in-memory store.
type EmptyKVStore struct{}

var _ umoja.KVStore = EmptyKVStore{}

// Get always returns nil
func (e EmptyKVStore) Get(key []byte) ([]byte, error) { return nil, nil }

// Has always returns false
func (e EmptyKVStore) Has(key []byte) (bool, error) { return false, nil }

// Set is a noop
func (e EmptyKVStore) Set(key, value []byte) error { return nil }

// Delete is a noop
func (e EmptyKVStore) Delete(key []byte) error { return nil }

// Op represents one write operation, either a set or a delete. The
// batch records them in order so a flush replays the exact sequence.
type Op struct {
	delete bool
	key    []byte
	value  []byte
}

// SetOp is a helper to create a set operation
func SetOp(key, value []byte) Op {
	return Op{
		delete: false,
		key:    key,
		value:  value,
	}
}

// DelOp is a helper to create a del operation
func DelOp(key []byte) Op {
	return Op{
		delete: true,
		key:    key,
	}
}

// Apply performs the stored operation on a writable store
func (o Op) Apply(out umoja.KVStore) error {
	if o.delete {
		return out.Delete(o.key)
	}
	return out.Set(o.key, o.value)
}

// IsSetOp returns true if it is setting (false implies delete)
func (o Op) IsSetOp() bool {
	return !o.delete
}

// Key returns a copy of the key
func (o Op) Key() []byte {
	return append([]byte(nil), o.key...)
}

// Value returns the value this Op would set, nil for a delete.
func (o Op) Value() []byte {
	return o.value
}

// NonAtomicBatch just piles up ops and executes them later
// on the underlying store. Can be used when there is no better
// option (for in-memory stores).
type NonAtomicBatch struct {
	out umoja.KVStore
	ops []Op
}

var _ umoja.Batch = (*NonAtomicBatch)(nil)

// NewNonAtomicBatch creates an empty batch to be later written
// to the KVStore
func NewNonAtomicBatch(out umoja.KVStore) *NonAtomicBatch {
	return &NonAtomicBatch{
		out: out,
	}
}

// Set adds a set operation to the batch
func (b *NonAtomicBatch) Set(key, value []byte) error {
	set := Op{
		key:   key,
		value: value,
	}
	b.ops = append(b.ops, set)
	return nil
}

// Delete adds a delete operation to the batch
func (b *NonAtomicBatch) Delete(key []byte) error {
	del := Op{
		delete: true,
		key:    key,
	}
	b.ops = append(b.ops, del)
	return nil
}

// Write writes all the ops to the underlying store and resets
func (b *NonAtomicBatch) Write() error {
	for _, Op := range b.ops {
		if err := Op.Apply(b.out); err != nil {
			return err
		}
	}
	b.ops = nil
	return nil
}

// ShowOps is instrumentation for testing, returns all ops
// that were recorded but not yet written.
func (b *NonAtomicBatch) ShowOps() []Op {
	return b.ops
}
