// Package coin holds the integer money type used across the ledger.
//
// A Coin is an amount of the smallest indivisible unit of one token,
// identified by its ticker. There is no fractional part: every token
// amount is an integer count of base units, the same way the custody
// contracts operate on raw i128 token units.
package coin

import (
	"fmt"
	"regexp"

	"github.com/umoja-network/umoja/errors"
)

// IsCC determines if a string is a valid currency code (ticker).
var IsCC = regexp.MustCompile(`^[A-Z]{3,4}$`).MatchString

const (
	// MaxAmount is the largest amount of base units a single Coin can
	// represent.
	MaxAmount int64 = 1<<63 - 1

	// BpsDenominator converts basis points into a fraction.
	BpsDenominator int64 = 10000
)

// Coin is an amount of base units of a single token.
type Coin struct {
	Ticker string `json:"ticker"`
	Amount int64  `json:"amount"`
}

// NewCoin creates a coin with the given amount of base units.
func NewCoin(amount int64, ticker string) Coin {
	return Coin{
		Ticker: ticker,
		Amount: amount,
	}
}

// Validate ensures the ticker is well formed.
func (c Coin) Validate() error {
	if !IsCC(c.Ticker) {
		return errors.Wrapf(errors.ErrCurrency, "invalid currency: %s", c.Ticker)
	}
	return nil
}

// IsZero returns true on an amount of zero base units.
func (c Coin) IsZero() bool {
	return c.Amount == 0
}

// IsPositive returns true if the amount is greater than zero.
func (c Coin) IsPositive() bool {
	return c.Amount > 0
}

// IsNonNegative returns true if the amount is zero or above.
func (c Coin) IsNonNegative() bool {
	return c.Amount >= 0
}

// IsGTE returns true if c holds at least as much as o. Coins of
// different tickers are never comparable.
func (c Coin) IsGTE(o Coin) bool {
	return c.SameType(o) && c.Amount >= o.Amount
}

// SameType returns true if both coins use the same ticker.
func (c Coin) SameType(o Coin) bool {
	return c.Ticker == o.Ticker
}

// Equals returns true if both ticker and amount match.
func (c Coin) Equals(o Coin) bool {
	return c.Ticker == o.Ticker && c.Amount == o.Amount
}

// Negative returns the same coin with the opposite sign.
func (c Coin) Negative() Coin {
	return Coin{
		Ticker: c.Ticker,
		Amount: -c.Amount,
	}
}

// Add combines two coins of the same ticker. An overflow or a ticker
// mismatch is an error.
func (c Coin) Add(o Coin) (Coin, error) {
	if !c.SameType(o) {
		return Coin{}, errors.Wrapf(errors.ErrCurrency, "adding %s to %s", o.Ticker, c.Ticker)
	}
	amount, err := addInt64(c.Amount, o.Amount)
	if err != nil {
		return Coin{}, err
	}
	return Coin{Ticker: c.Ticker, Amount: amount}, nil
}

// Subtract removes o from c. Equivalent to c.Add(o.Negative()).
func (c Coin) Subtract(o Coin) (Coin, error) {
	return c.Add(o.Negative())
}

func (c Coin) String() string {
	return fmt.Sprintf("%d %s", c.Amount, c.Ticker)
}

// MulBps computes amount*bps/10000 using integer division that
// truncates toward zero, the exact arithmetic the fee and
// exchange-rate computations require. Both arguments must be
// non-negative. Overflow is detected and returned as an error.
func MulBps(amount, bps int64) (int64, error) {
	if amount < 0 || bps < 0 {
		return 0, errors.Wrap(errors.ErrAmount, "negative multiplication")
	}
	// Split amount to avoid overflowing the product for large values:
	// amount*bps/10000 == (q*10000 + r)*bps/10000 == q*bps + r*bps/10000
	// where the second term cannot overflow for any sane bps value.
	q, r := amount/BpsDenominator, amount%BpsDenominator
	high, err := mulInt64(q, bps)
	if err != nil {
		return 0, err
	}
	low, err := mulInt64(r, bps)
	if err != nil {
		return 0, err
	}
	return addInt64(high, low/BpsDenominator)
}

func addInt64(a, b int64) (int64, error) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, errors.Wrap(errors.ErrOverflow, "int64 addition")
	}
	return sum, nil
}

func mulInt64(a, b int64) (int64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	prod := a * b
	if prod/b != a {
		return 0, errors.Wrap(errors.ErrOverflow, "int64 multiplication")
	}
	return prod, nil
}
