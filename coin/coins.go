package coin

import (
	"sort"

	"github.com/umoja-network/umoja/errors"
)

// Coins is a set of coins, at most one per ticker, kept sorted by
// ticker with no zero amounts. Use Combine to uphold the invariants.
type Coins []Coin

// Validate ensures the set invariants hold: sorted by ticker, unique
// tickers, valid coins, no zero amounts.
func (cs Coins) Validate() error {
	last := ""
	for _, c := range cs {
		if err := c.Validate(); err != nil {
			return err
		}
		if c.IsZero() {
			return errors.Wrap(errors.ErrAmount, "zero coin in a set")
		}
		if c.Ticker <= last {
			return errors.Wrap(errors.ErrState, "coins not sorted by ticker")
		}
		last = c.Ticker
	}
	return nil
}

// Clone returns an independent copy of the set.
func (cs Coins) Clone() Coins {
	if cs == nil {
		return nil
	}
	out := make(Coins, len(cs))
	copy(out, cs)
	return out
}

// Amount returns the amount held for the given ticker, zero when the
// ticker is not present.
func (cs Coins) Amount(ticker string) int64 {
	for _, c := range cs {
		if c.Ticker == ticker {
			return c.Amount
		}
	}
	return 0
}

// Contains returns true if the set holds at least the given coin.
func (cs Coins) Contains(c Coin) bool {
	if !c.IsPositive() {
		return false
	}
	return cs.Amount(c.Ticker) >= c.Amount
}

// Combine adds a coin to the set, returning a new set. The coin may be
// negative to subtract. The result must not leave any ticker with a
// negative amount.
func (cs Coins) Combine(c Coin) (Coins, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	out := cs.Clone()
	for i, have := range out {
		if have.Ticker != c.Ticker {
			continue
		}
		sum, err := have.Add(c)
		if err != nil {
			return nil, err
		}
		if !sum.IsNonNegative() {
			return nil, errors.Wrapf(errors.ErrAmount, "negative balance of %s", c.Ticker)
		}
		if sum.IsZero() {
			return append(out[:i], out[i+1:]...), nil
		}
		out[i] = sum
		return out, nil
	}

	if c.IsZero() {
		return out, nil
	}
	if !c.IsPositive() {
		return nil, errors.Wrapf(errors.ErrAmount, "negative balance of %s", c.Ticker)
	}
	out = append(out, c)
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out, nil
}
