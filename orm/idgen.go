package orm

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/umoja-network/umoja"
	"github.com/umoja-network/umoja/errors"
)

// IDLength is the size of every generated entity identifier.
const IDLength = sha256.Size

// IDGen produces opaque 32-byte entity identifiers. Each identifier is
// a sha256 digest over the acting party, the generator label, the
// current timestamp and a persistent counter. Including the counter
// guarantees uniqueness for concurrent calls within the same instant,
// including the actor prevents cross-party collisions.
type IDGen struct {
	label []byte
	seq   Sequence
}

// NewIDGen returns an identifier generator for the given label. The
// label names the entity family (for example "pool" or "remittance")
// and scopes the backing counter.
func NewIDGen(label string) IDGen {
	return IDGen{
		label: []byte(label),
		seq:   NewSequence(label, "id"),
	}
}

// NextID generates a fresh identifier on behalf of the given actor.
// The counter state is persisted, so this mutates the store.
func (g IDGen) NextID(db umoja.KVStore, actor umoja.Address, now umoja.UnixTime) ([]byte, error) {
	if len(actor) == 0 {
		return nil, errors.Wrap(errors.ErrEmpty, "actor")
	}
	cnt, err := g.seq.NextVal(db)
	if err != nil {
		return nil, errors.Wrap(err, "sequence")
	}

	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(now))

	h := sha256.New()
	h.Write(actor)
	h.Write(g.label)
	h.Write(ts[:])
	h.Write(cnt)
	return h.Sum(nil), nil
}
