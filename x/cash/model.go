package cash

import (
	"encoding/json"

	"github.com/umoja-network/umoja"
	"github.com/umoja-network/umoja/coin"
	"github.com/umoja-network/umoja/errors"
	"github.com/umoja-network/umoja/orm"
)

// BucketName is where we store the balances
const BucketName = "cash"

var _ orm.Model = (*Wallet)(nil)

// Wallet is the set of coins held by one address.
type Wallet struct {
	Coins coin.Coins `json:"coins"`
}

func (w *Wallet) Marshal() ([]byte, error) {
	return json.Marshal(w)
}

func (w *Wallet) Unmarshal(raw []byte) error {
	return json.Unmarshal(raw, w)
}

// Validate requires that all coins are valid, unique and sorted.
func (w *Wallet) Validate() error {
	return w.Coins.Validate()
}

// Add modifies the wallet to apply the given coin. A negative amount
// subtracts; the balance of any ticker must never drop below zero.
func (w *Wallet) Add(c coin.Coin) error {
	cs, err := w.Coins.Combine(c)
	if err != nil {
		return err
	}
	w.Coins = cs
	return nil
}

// Subtract modifies the wallet to remove Coin c
func (w *Wallet) Subtract(c coin.Coin) error {
	return w.Add(c.Negative())
}

// Bucket is a type-safe wrapper around orm.ModelBucket keyed by the
// wallet owner address.
type Bucket struct {
	orm.ModelBucket
}

// NewBucket initializes a cash.Bucket with default name
func NewBucket() Bucket {
	return Bucket{
		ModelBucket: orm.NewModelBucket(BucketName),
	}
}

// Get loads the wallet of the given address, nil if none exists yet.
func (b Bucket) Get(db umoja.ReadOnlyKVStore, key umoja.Address) (*Wallet, error) {
	var w Wallet
	switch err := b.One(db, key, &w); {
	case err == nil:
		return &w, nil
	case errors.ErrNotFound.Is(err):
		return nil, nil
	default:
		return nil, err
	}
}

// GetOrCreate loads the wallet of the given address, creating an empty
// one when the address holds nothing yet.
func (b Bucket) GetOrCreate(db umoja.ReadOnlyKVStore, key umoja.Address) (*Wallet, error) {
	wallet, err := b.Get(db, key)
	if err != nil {
		return nil, err
	}
	if wallet == nil {
		wallet = &Wallet{}
	}
	return wallet, nil
}

// Save persists the wallet under the owner address.
func (b Bucket) Save(db umoja.KVStore, key umoja.Address, w *Wallet) error {
	return b.Put(db, key, w)
}
