package tokenreg

import (
	"math"

	"github.com/umoja-network/umoja"
	"github.com/umoja-network/umoja/coin"
	"github.com/umoja-network/umoja/errors"
	"github.com/umoja-network/umoja/orm"
	"github.com/umoja-network/umoja/x"
)

// Controller exposes the token registry operations.
type Controller interface {
	Register(ctx umoja.Context, db umoja.KVStore, info TokenInfo) error
	SetExchangeRate(ctx umoja.Context, db umoja.KVStore, code string, rate int64) error
	Get(db umoja.ReadOnlyKVStore, code string) (*TokenInfo, error)
	GetBySymbol(db umoja.ReadOnlyKVStore, symbol string) (*TokenInfo, error)
	GetByCountry(db umoja.ReadOnlyKVStore, country string) ([]*TokenInfo, error)
	Convert(db umoja.ReadOnlyKVStore, from, to string, amount int64) (int64, error)
}

// RegController is the registry implementation gated on a single admin
// address fixed at construction.
type RegController struct {
	auth      x.Authenticator
	admin     umoja.Address
	bucket    orm.ModelBucket
	symbols   orm.ModelBucket
	countries orm.ModelBucket
}

var _ Controller = (*RegController)(nil)

// NewController returns a registry controller. Only the given admin
// may register tokens or change exchange rates.
func NewController(auth x.Authenticator, admin umoja.Address) *RegController {
	return &RegController{
		auth:      auth,
		admin:     admin,
		bucket:    NewBucket(),
		symbols:   newSymbolBucket(),
		countries: newCountryBucket(),
	}
}

func (c *RegController) authorize(ctx umoja.Context) error {
	if !c.auth.HasAddress(ctx, c.admin) {
		return errors.Wrap(errors.ErrForbidden, "not the registry admin")
	}
	return nil
}

// Register stores metadata for a new token. Neither the currency code
// nor the display symbol may be taken yet.
func (c *RegController) Register(ctx umoja.Context, db umoja.KVStore, info TokenInfo) error {
	if err := c.authorize(ctx); err != nil {
		return err
	}
	if err := info.Validate(); err != nil {
		return err
	}
	switch has, err := c.bucket.Has(db, []byte(info.Code)); {
	case err != nil:
		return err
	case has:
		return errors.Wrapf(errors.ErrDuplicate, "token %q already registered", info.Code)
	}
	switch has, err := c.symbols.Has(db, []byte(info.Symbol)); {
	case err != nil:
		return err
	case has:
		return errors.Wrapf(errors.ErrDuplicate, "symbol %q already registered", info.Symbol)
	}
	if err := c.bucket.Put(db, []byte(info.Code), &info); err != nil {
		return err
	}
	if err := c.symbols.Put(db, []byte(info.Symbol), &tokenRef{Code: info.Code}); err != nil {
		return err
	}
	if info.CountryCode == "" {
		return nil
	}
	var refs tokenRefs
	if err := c.countries.One(db, []byte(info.CountryCode), &refs); err != nil && !errors.ErrNotFound.Is(err) {
		return err
	}
	refs.Codes = append(refs.Codes, info.Code)
	return c.countries.Put(db, []byte(info.CountryCode), &refs)
}

// SetExchangeRate updates the reference rate of a registered token.
func (c *RegController) SetExchangeRate(ctx umoja.Context, db umoja.KVStore, code string, rate int64) error {
	if err := c.authorize(ctx); err != nil {
		return err
	}
	if rate <= 0 {
		return errors.Wrap(errors.ErrAmount, "exchange rate must be positive")
	}
	var info TokenInfo
	if err := c.bucket.One(db, []byte(code), &info); err != nil {
		return err
	}
	info.ExchangeRate = rate
	return c.bucket.Put(db, []byte(code), &info)
}

// Get returns the registry entry for a currency code.
func (c *RegController) Get(db umoja.ReadOnlyKVStore, code string) (*TokenInfo, error) {
	var info TokenInfo
	if err := c.bucket.One(db, []byte(code), &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetBySymbol returns the registry entry behind a display symbol.
func (c *RegController) GetBySymbol(db umoja.ReadOnlyKVStore, symbol string) (*TokenInfo, error) {
	var ref tokenRef
	if err := c.symbols.One(db, []byte(symbol), &ref); err != nil {
		return nil, err
	}
	return c.Get(db, ref.Code)
}

// GetByCountry returns all registry entries registered for a country,
// in registration order. An unknown country yields an empty slice.
func (c *RegController) GetByCountry(db umoja.ReadOnlyKVStore, country string) ([]*TokenInfo, error) {
	var refs tokenRefs
	if err := c.countries.One(db, []byte(country), &refs); err != nil {
		if errors.ErrNotFound.Is(err) {
			return nil, nil
		}
		return nil, err
	}
	res := make([]*TokenInfo, 0, len(refs.Codes))
	for _, code := range refs.Codes {
		info, err := c.Get(db, code)
		if err != nil {
			return nil, err
		}
		res = append(res, info)
	}
	return res, nil
}

// Convert prices an amount of one registered token in another, going
// through the common reference unit. The result truncates.
func (c *RegController) Convert(db umoja.ReadOnlyKVStore, from, to string, amount int64) (int64, error) {
	if amount < 0 {
		return 0, errors.Wrap(errors.ErrAmount, "negative amount")
	}
	src, err := c.Get(db, from)
	if err != nil {
		return 0, err
	}
	dst, err := c.Get(db, to)
	if err != nil {
		return 0, err
	}
	ref, err := coin.MulBps(amount, src.ExchangeRate)
	if err != nil {
		return 0, err
	}
	if ref > math.MaxInt64/coin.BpsDenominator {
		return 0, errors.Wrap(errors.ErrOverflow, "conversion overflows")
	}
	return ref * coin.BpsDenominator / dst.ExchangeRate, nil
}
