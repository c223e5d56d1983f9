package tokenreg

import (
	"encoding/json"
	"regexp"

	"github.com/umoja-network/umoja"
	"github.com/umoja-network/umoja/coin"
	"github.com/umoja-network/umoja/errors"
	"github.com/umoja-network/umoja/orm"
)

// BucketName is where token metadata lives, keyed by currency code.
const BucketName = "tokeninfo"

// Secondary lookup buckets. Symbols resolve to a single currency
// code, countries to the list of codes registered for them.
const (
	symbolBucketName  = "tsymbol"
	countryBucketName = "tcountry"
)

var (
	isTokenName = regexp.MustCompile(`^[A-Za-z0-9 \-_:]{3,32}$`).MatchString
	isSymbol    = regexp.MustCompile(`^[^\s]{1,8}$`).MatchString
)

var _ orm.Model = (*TokenInfo)(nil)

// TokenInfo is the registry entry of one fungible token: its metadata
// and the exchange rate to the common reference unit, expressed in
// basis points (rate 1.0 == 10_000).
type TokenInfo struct {
	Code         string        `json:"code"`
	Name         string        `json:"name"`
	Symbol       string        `json:"symbol"`
	Decimals     uint32        `json:"decimals"`
	Issuer       umoja.Address `json:"issuer"`
	TokenAddress umoja.Address `json:"token_address"`
	IsStablecoin bool          `json:"is_stablecoin"`
	CountryCode  string        `json:"country_code"`
	ExchangeRate int64         `json:"exchange_rate"`
}

func (t *TokenInfo) Marshal() ([]byte, error) {
	return json.Marshal(t)
}

func (t *TokenInfo) Unmarshal(raw []byte) error {
	return json.Unmarshal(raw, t)
}

func (t *TokenInfo) Validate() error {
	if !coin.IsCC(t.Code) {
		return errors.Wrapf(errors.ErrCurrency, "invalid token code %q", t.Code)
	}
	if !isTokenName(t.Name) {
		return errors.Wrapf(errors.ErrInput, "invalid token name %q", t.Name)
	}
	if !isSymbol(t.Symbol) {
		return errors.Wrapf(errors.ErrInput, "invalid token symbol %q", t.Symbol)
	}
	if t.ExchangeRate <= 0 {
		return errors.Wrap(errors.ErrAmount, "exchange rate must be positive")
	}
	return nil
}

// NewBucket returns the bucket storing TokenInfo entries, using the
// currency code as the key.
func NewBucket() orm.ModelBucket {
	return orm.NewModelBucket(BucketName)
}

var _ orm.Model = (*tokenRef)(nil)

// tokenRef resolves a unique secondary key, the display symbol, to
// the currency code of a registry entry.
type tokenRef struct {
	Code string `json:"code"`
}

func (r *tokenRef) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

func (r *tokenRef) Unmarshal(raw []byte) error {
	return json.Unmarshal(raw, r)
}

func (r *tokenRef) Validate() error {
	if !coin.IsCC(r.Code) {
		return errors.Wrapf(errors.ErrCurrency, "invalid token code %q", r.Code)
	}
	return nil
}

var _ orm.Model = (*tokenRefs)(nil)

// tokenRefs resolves a shared secondary key, the country code, to all
// currency codes registered under it.
type tokenRefs struct {
	Codes []string `json:"codes"`
}

func (r *tokenRefs) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

func (r *tokenRefs) Unmarshal(raw []byte) error {
	return json.Unmarshal(raw, r)
}

func (r *tokenRefs) Validate() error {
	for _, code := range r.Codes {
		if !coin.IsCC(code) {
			return errors.Wrapf(errors.ErrCurrency, "invalid token code %q", code)
		}
	}
	return nil
}

func newSymbolBucket() orm.ModelBucket {
	return orm.NewModelBucket(symbolBucketName)
}

func newCountryBucket() orm.ModelBucket {
	return orm.NewModelBucket(countryBucketName)
}
