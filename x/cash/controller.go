package cash

import (
	"github.com/umoja-network/umoja"
	"github.com/umoja-network/umoja/coin"
	"github.com/umoja-network/umoja/errors"
)

// Controller is the value transfer primitive: it moves fungible
// balance atomically between two holders or fails entirely. Every
// engine that custodies funds depends on this interface instead of the
// wallet bucket, so the token implementation can be swapped out.
type Controller interface {
	// MoveCoins moves the given amount from src to dest. If src
	// doesn't exist, or doesn't have sufficient coins, it fails and
	// nothing is changed.
	MoveCoins(db umoja.KVStore, src, dest umoja.Address, amount coin.Coin) error

	// IssueCoins attempts to add the given amount of coins to the
	// destination address. The amount may also be negative:
	// "the lord giveth and the lord taketh away"
	IssueCoins(db umoja.KVStore, dest umoja.Address, amount coin.Coin) error

	// Balance returns the coins held by an address. An address that
	// never held funds reports an empty set.
	Balance(db umoja.ReadOnlyKVStore, addr umoja.Address) (coin.Coins, error)
}

// CashController implements Controller on top of the wallet bucket.
type CashController struct {
	bucket Bucket
}

var _ Controller = CashController{}

// NewController returns a controller using the default wallet bucket.
func NewController() CashController {
	return CashController{bucket: NewBucket()}
}

// MoveCoins moves the given amount from src to dest.
func (c CashController) MoveCoins(db umoja.KVStore, src, dest umoja.Address, amount coin.Coin) error {
	if !amount.IsPositive() {
		return errors.Wrapf(errors.ErrAmount, "non-positive transfer: %v", amount)
	}
	if err := amount.Validate(); err != nil {
		return err
	}

	sender, err := c.bucket.Get(db, src)
	if err != nil {
		return err
	}
	if sender == nil {
		return errors.Wrapf(errors.ErrInsufficientFunds, "empty account %s", src)
	}
	if !sender.Coins.Contains(amount) {
		return errors.Wrapf(errors.ErrInsufficientFunds,
			"%s holds %d %s", src, sender.Coins.Amount(amount.Ticker), amount.Ticker)
	}

	recipient, err := c.bucket.GetOrCreate(db, dest)
	if err != nil {
		return err
	}
	if err := sender.Subtract(amount); err != nil {
		return err
	}
	if err := recipient.Add(amount); err != nil {
		return err
	}

	if err := c.bucket.Save(db, src, sender); err != nil {
		return err
	}
	return c.bucket.Save(db, dest, recipient)
}

// IssueCoins attempts to add the given amount of coins to
// the destination address. Fails if it overflows the wallet.
func (c CashController) IssueCoins(db umoja.KVStore, dest umoja.Address, amount coin.Coin) error {
	recipient, err := c.bucket.GetOrCreate(db, dest)
	if err != nil {
		return err
	}
	if err := recipient.Add(amount); err != nil {
		return err
	}
	return c.bucket.Save(db, dest, recipient)
}

// Balance returns the coins held by an address.
func (c CashController) Balance(db umoja.ReadOnlyKVStore, addr umoja.Address) (coin.Coins, error) {
	wallet, err := c.bucket.Get(db, addr)
	if err != nil {
		return nil, err
	}
	if wallet == nil {
		return nil, nil
	}
	return wallet.Coins, nil
}
