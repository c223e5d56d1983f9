package remit

import (
	"bytes"
	"encoding/json"
	"regexp"

	"github.com/umoja-network/umoja"
	"github.com/umoja-network/umoja/coin"
	"github.com/umoja-network/umoja/errors"
	"github.com/umoja-network/umoja/orm"
)

// MaxBps caps both the fee and the insurance rate at 10%.
const MaxBps = 1000

var isPhone = regexp.MustCompile(`^\+?[0-9]{6,15}$`).MatchString

// Status is the lifecycle state of a remittance. The only transitions
// are Pending to Completed (redeem) and Pending to Cancelled
// (cancel). Expired is part of the stored vocabulary but no operation
// produces it.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

func (s Status) Validate() error {
	switch s {
	case StatusPending, StatusCompleted, StatusCancelled, StatusExpired:
		return nil
	}
	return errors.Wrapf(errors.ErrState, "invalid status %q", s)
}

// Terminal returns true once no further transition is permitted.
func (s Status) Terminal() bool {
	return s != StatusPending
}

var _ orm.Model = (*Configuration)(nil)

// Configuration is the singleton engine setup: the admin allowed to
// change rates and the current fee and insurance rates in basis
// points.
type Configuration struct {
	Admin        umoja.Address `json:"admin"`
	FeeBps       int64         `json:"fee_bps"`
	InsuranceBps int64         `json:"insurance_bps"`
}

func (c *Configuration) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

func (c *Configuration) Unmarshal(raw []byte) error {
	return json.Unmarshal(raw, c)
}

func (c *Configuration) Validate() error {
	if err := c.Admin.Validate(); err != nil {
		return errors.Wrap(err, "admin")
	}
	if c.FeeBps < 0 || c.FeeBps > MaxBps {
		return errors.Wrapf(errors.ErrInput, "fee rate %d out of range", c.FeeBps)
	}
	if c.InsuranceBps < 0 || c.InsuranceBps > MaxBps {
		return errors.Wrapf(errors.ErrInput, "insurance rate %d out of range", c.InsuranceBps)
	}
	return nil
}

// Recipient describes who may redeem. The address is optional: a
// remittance may be sent to an off-chain identity reachable only by
// phone, in which case possession of the redemption code is the sole
// gate.
type Recipient struct {
	Address umoja.Address `json:"address,omitempty"`
	Phone   string        `json:"phone"`
	Name    string        `json:"name"`
	Country string        `json:"country"`
}

func (r Recipient) Validate() error {
	if len(r.Address) != 0 {
		if err := r.Address.Validate(); err != nil {
			return errors.Wrap(err, "address")
		}
	}
	if !isPhone(r.Phone) {
		return errors.Wrapf(errors.ErrInput, "invalid phone %q", r.Phone)
	}
	return nil
}

var _ orm.Model = (*Remittance)(nil)

// Remittance is one escrowed transfer. The full escrow at creation is
// Amount + Fee + InsuranceFee, all in the source token. The exchange
// rate is fixed at creation in basis points of the target token per
// source unit.
type Remittance struct {
	ID             []byte         `json:"id"`
	Sender         umoja.Address  `json:"sender"`
	Recipient      Recipient      `json:"recipient"`
	Amount         int64          `json:"amount"`
	SourceTicker   string         `json:"source_token"`
	TargetTicker   string         `json:"target_token"`
	ExchangeRate   int64          `json:"exchange_rate"`
	Fee            int64          `json:"fee"`
	Insurance      bool           `json:"insurance"`
	InsuranceFee   int64          `json:"insurance_fee"`
	RedemptionCode []byte         `json:"redemption_code"`
	Notes          string         `json:"notes,omitempty"`
	Status         Status         `json:"status"`
	CreatedAt      umoja.UnixTime `json:"created_at"`
	CompletedAt    umoja.UnixTime `json:"completed_at,omitempty"`
}

func (r *Remittance) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

func (r *Remittance) Unmarshal(raw []byte) error {
	return json.Unmarshal(raw, r)
}

func (r *Remittance) Validate() error {
	if len(r.ID) != orm.IDLength {
		return errors.Wrap(errors.ErrInput, "invalid remittance id")
	}
	if err := r.Sender.Validate(); err != nil {
		return errors.Wrap(err, "sender")
	}
	if err := r.Recipient.Validate(); err != nil {
		return errors.Wrap(err, "recipient")
	}
	if r.Amount <= 0 {
		return errors.Wrap(errors.ErrAmount, "amount must be positive")
	}
	if !coin.IsCC(r.SourceTicker) {
		return errors.Wrapf(errors.ErrCurrency, "invalid source token %q", r.SourceTicker)
	}
	if !coin.IsCC(r.TargetTicker) {
		return errors.Wrapf(errors.ErrCurrency, "invalid target token %q", r.TargetTicker)
	}
	if r.ExchangeRate <= 0 {
		return errors.Wrap(errors.ErrAmount, "exchange rate must be positive")
	}
	if r.Fee < 0 || r.InsuranceFee < 0 {
		return errors.Wrap(errors.ErrAmount, "negative fee")
	}
	if len(r.RedemptionCode) == 0 {
		return errors.Wrap(errors.ErrEmpty, "missing redemption code")
	}
	if err := r.Status.Validate(); err != nil {
		return err
	}
	return r.CreatedAt.Validate()
}

// EscrowedAmount is the total debited from the sender at creation.
func (r *Remittance) EscrowedAmount() int64 {
	return r.Amount + r.Fee + r.InsuranceFee
}

var _ orm.Model = (*RemittanceIndex)(nil)

// RemittanceIndex is a reverse index list of remittance ids, stored
// once per sender address and once per recipient phone number.
type RemittanceIndex struct {
	IDs [][]byte `json:"ids"`
}

func (x *RemittanceIndex) Marshal() ([]byte, error) {
	return json.Marshal(x)
}

func (x *RemittanceIndex) Unmarshal(raw []byte) error {
	return json.Unmarshal(raw, x)
}

func (x *RemittanceIndex) Validate() error {
	for _, id := range x.IDs {
		if len(id) != orm.IDLength {
			return errors.Wrap(errors.ErrInput, "invalid remittance id")
		}
	}
	return nil
}

func (x *RemittanceIndex) add(id []byte) {
	for _, have := range x.IDs {
		if bytes.Equal(have, id) {
			return
		}
	}
	x.IDs = append(x.IDs, id)
}

func newRemittanceBucket() orm.ModelBucket { return orm.NewModelBucket("remit") }
func newConfigBucket() orm.ModelBucket     { return orm.NewModelBucket("remit_conf") }
func newSenderBucket() orm.ModelBucket     { return orm.NewModelBucket("rsender") }
func newPhoneBucket() orm.ModelBucket      { return orm.NewModelBucket("rphone") }
