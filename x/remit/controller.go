package remit

import (
	"crypto/subtle"

	"github.com/umoja-network/umoja"
	"github.com/umoja-network/umoja/coin"
	"github.com/umoja-network/umoja/errors"
	"github.com/umoja-network/umoja/orm"
	"github.com/umoja-network/umoja/x"
	"github.com/umoja-network/umoja/x/cash"
)

var (
	// custodyCondition guards all escrowed remittance funds. Fee and
	// insurance residue accumulates here and is visible through
	// CustodyBalance.
	custodyCondition = umoja.NewCondition("remit", "escrow", []byte("custody"))

	configKey = []byte("configuration")
)

// CustodyAccount returns the address holding all escrowed remittance
// funds.
func CustodyAccount() umoja.Address {
	return custodyCondition.Address()
}

// Controller exposes every remittance escrow operation.
type Controller interface {
	Initialize(ctx umoja.Context, db umoja.KVStore, admin umoja.Address, feeBps, insuranceBps int64) error
	UpdateFeeBps(ctx umoja.Context, db umoja.KVStore, feeBps int64) error
	UpdateInsuranceBps(ctx umoja.Context, db umoja.KVStore, insuranceBps int64) error

	CreateRemittance(ctx umoja.Context, db umoja.KVStore, r CreateRemittanceParams) ([]byte, error)
	RedeemRemittance(ctx umoja.Context, db umoja.KVStore, id, code []byte, recipient umoja.Address) error
	CancelRemittance(ctx umoja.Context, db umoja.KVStore, id []byte, sender umoja.Address) error

	GetConfiguration(db umoja.ReadOnlyKVStore) (*Configuration, error)
	GetRemittance(db umoja.ReadOnlyKVStore, id []byte) (*Remittance, error)
	GetUserRemittances(db umoja.ReadOnlyKVStore, sender umoja.Address) ([]*Remittance, error)
	GetPhoneRemittances(db umoja.ReadOnlyKVStore, phone string) ([]*Remittance, error)
	CustodyBalance(db umoja.ReadOnlyKVStore) (coin.Coins, error)
}

// CreateRemittanceParams carries the caller input of
// CreateRemittance.
type CreateRemittanceParams struct {
	Sender         umoja.Address
	Recipient      Recipient
	Amount         int64
	SourceTicker   string
	TargetTicker   string
	ExchangeRate   int64
	Insurance      bool
	RedemptionCode []byte
	Notes          string
}

// RemitController implements Controller on top of the wallet moving
// primitive and the remittance buckets.
type RemitController struct {
	auth        x.Authenticator
	cash        cash.Controller
	remittances orm.ModelBucket
	config      orm.ModelBucket
	bySender    orm.ModelBucket
	byPhone     orm.ModelBucket
	ids         orm.IDGen
}

var _ Controller = (*RemitController)(nil)

// NewController returns a remittance controller using the given
// authenticator and value mover.
func NewController(auth x.Authenticator, mover cash.Controller) *RemitController {
	return &RemitController{
		auth:        auth,
		cash:        mover,
		remittances: newRemittanceBucket(),
		config:      newConfigBucket(),
		bySender:    newSenderBucket(),
		byPhone:     newPhoneBucket(),
		ids:         orm.NewIDGen("remittance"),
	}
}

// Initialize performs the one-time engine setup. Repeating it fails.
func (c *RemitController) Initialize(ctx umoja.Context, db umoja.KVStore, admin umoja.Address, feeBps, insuranceBps int64) error {
	if !c.auth.HasAddress(ctx, admin) {
		return errors.Wrap(errors.ErrUnauthorized, "admin did not authorize")
	}
	switch has, err := c.config.Has(db, configKey); {
	case err != nil:
		return err
	case has:
		return errors.Wrap(errors.ErrInitialized, "configuration exists")
	}
	conf := Configuration{
		Admin:        admin,
		FeeBps:       feeBps,
		InsuranceBps: insuranceBps,
	}
	return c.config.Put(db, configKey, &conf)
}

// UpdateFeeBps changes the fee rate. Admin only.
func (c *RemitController) UpdateFeeBps(ctx umoja.Context, db umoja.KVStore, feeBps int64) error {
	conf, err := c.requireAdmin(ctx, db)
	if err != nil {
		return err
	}
	conf.FeeBps = feeBps
	return c.config.Put(db, configKey, conf)
}

// UpdateInsuranceBps changes the insurance rate. Admin only.
func (c *RemitController) UpdateInsuranceBps(ctx umoja.Context, db umoja.KVStore, insuranceBps int64) error {
	conf, err := c.requireAdmin(ctx, db)
	if err != nil {
		return err
	}
	conf.InsuranceBps = insuranceBps
	return c.config.Put(db, configKey, conf)
}

// CreateRemittance escrows amount plus fees from the sender and
// records the transfer as pending. The escrow transfer runs before
// anything is recorded, so a failed transfer leaves no trace.
func (c *RemitController) CreateRemittance(ctx umoja.Context, db umoja.KVStore, p CreateRemittanceParams) ([]byte, error) {
	if !c.auth.HasAddress(ctx, p.Sender) {
		return nil, errors.Wrap(errors.ErrUnauthorized, "sender did not authorize")
	}
	if p.Amount <= 0 {
		return nil, errors.Wrap(errors.ErrAmount, "amount must be positive")
	}
	conf, err := c.GetConfiguration(db)
	if err != nil {
		return nil, err
	}
	now, err := blockNow(ctx)
	if err != nil {
		return nil, err
	}

	fee, err := coin.MulBps(p.Amount, conf.FeeBps)
	if err != nil {
		return nil, err
	}
	var insuranceFee int64
	if p.Insurance {
		insuranceFee, err = coin.MulBps(p.Amount, conf.InsuranceBps)
		if err != nil {
			return nil, err
		}
	}

	escrow := coin.NewCoin(p.Amount+fee+insuranceFee, p.SourceTicker)
	if err := c.cash.MoveCoins(db, p.Sender, CustodyAccount(), escrow); err != nil {
		return nil, errors.Wrap(err, "cannot move funds into custody")
	}

	id, err := c.ids.NextID(db, p.Sender, now)
	if err != nil {
		return nil, err
	}
	r := Remittance{
		ID:             id,
		Sender:         p.Sender,
		Recipient:      p.Recipient,
		Amount:         p.Amount,
		SourceTicker:   p.SourceTicker,
		TargetTicker:   p.TargetTicker,
		ExchangeRate:   p.ExchangeRate,
		Fee:            fee,
		Insurance:      p.Insurance,
		InsuranceFee:   insuranceFee,
		RedemptionCode: p.RedemptionCode,
		Notes:          p.Notes,
		Status:         StatusPending,
		CreatedAt:      now,
	}
	if err := c.remittances.Put(db, id, &r); err != nil {
		return nil, err
	}
	if err := c.index(db, c.bySender, []byte(p.Sender), id); err != nil {
		return nil, err
	}
	if err := c.index(db, c.byPhone, []byte(p.Recipient.Phone), id); err != nil {
		return nil, err
	}
	return id, nil
}

// RedeemRemittance releases the converted amount to the recipient in
// exchange for the redemption code. The code comparison is constant
// time. Fee and insurance residue stays in custody.
func (c *RemitController) RedeemRemittance(ctx umoja.Context, db umoja.KVStore, id, code []byte, recipient umoja.Address) error {
	if !c.auth.HasAddress(ctx, recipient) {
		return errors.Wrap(errors.ErrUnauthorized, "recipient did not authorize")
	}
	r, err := c.GetRemittance(db, id)
	if err != nil {
		return err
	}
	if r.Status.Terminal() {
		return errors.Wrapf(errors.ErrState, "remittance is %s", r.Status)
	}
	if len(r.Recipient.Address) != 0 && !r.Recipient.Address.Equals(recipient) {
		return errors.Wrap(errors.ErrForbidden, "not the designated recipient")
	}
	if subtle.ConstantTimeCompare(r.RedemptionCode, code) != 1 {
		return errors.Wrap(errors.ErrForbidden, "redemption code mismatch")
	}
	now, err := blockNow(ctx)
	if err != nil {
		return err
	}

	target, err := coin.MulBps(r.Amount, r.ExchangeRate)
	if err != nil {
		return err
	}
	payout := coin.NewCoin(target, r.TargetTicker)
	if err := c.cash.MoveCoins(db, CustodyAccount(), recipient, payout); err != nil {
		return errors.Wrap(err, "cannot pay out of custody")
	}

	r.Status = StatusCompleted
	r.CompletedAt = now
	return c.remittances.Put(db, id, r)
}

// CancelRemittance returns escrowed funds to the sender. Insured
// remittances refund everything, uninsured ones forfeit the fee.
func (c *RemitController) CancelRemittance(ctx umoja.Context, db umoja.KVStore, id []byte, sender umoja.Address) error {
	if !c.auth.HasAddress(ctx, sender) {
		return errors.Wrap(errors.ErrUnauthorized, "sender did not authorize")
	}
	r, err := c.GetRemittance(db, id)
	if err != nil {
		return err
	}
	if !r.Sender.Equals(sender) {
		return errors.Wrap(errors.ErrForbidden, "not the sender")
	}
	if r.Status.Terminal() {
		return errors.Wrapf(errors.ErrState, "remittance is %s", r.Status)
	}
	now, err := blockNow(ctx)
	if err != nil {
		return err
	}

	refund := r.Amount
	if r.Insurance {
		refund = r.EscrowedAmount()
	}
	if err := c.cash.MoveCoins(db, CustodyAccount(), sender, coin.NewCoin(refund, r.SourceTicker)); err != nil {
		return errors.Wrap(err, "cannot refund out of custody")
	}

	r.Status = StatusCancelled
	r.CompletedAt = now
	return c.remittances.Put(db, id, r)
}

// GetConfiguration returns the engine setup written by Initialize.
func (c *RemitController) GetConfiguration(db umoja.ReadOnlyKVStore) (*Configuration, error) {
	var conf Configuration
	if err := c.config.One(db, configKey, &conf); err != nil {
		return nil, errors.Wrap(err, "configuration")
	}
	return &conf, nil
}

// GetRemittance returns the remittance record.
func (c *RemitController) GetRemittance(db umoja.ReadOnlyKVStore, id []byte) (*Remittance, error) {
	var r Remittance
	if err := c.remittances.One(db, id, &r); err != nil {
		return nil, errors.Wrap(err, "remittance")
	}
	return &r, nil
}

// GetUserRemittances returns every remittance created by the sender.
// Unknown senders get an empty result, not an error.
func (c *RemitController) GetUserRemittances(db umoja.ReadOnlyKVStore, sender umoja.Address) ([]*Remittance, error) {
	return c.lookup(db, c.bySender, []byte(sender))
}

// GetPhoneRemittances returns every remittance addressed to a phone
// number. Unknown numbers get an empty result, not an error.
func (c *RemitController) GetPhoneRemittances(db umoja.ReadOnlyKVStore, phone string) ([]*Remittance, error) {
	return c.lookup(db, c.byPhone, []byte(phone))
}

// CustodyBalance returns all funds currently held at the custody
// address: pending escrows plus accumulated fee residue.
func (c *RemitController) CustodyBalance(db umoja.ReadOnlyKVStore) (coin.Coins, error) {
	return c.cash.Balance(db, CustodyAccount())
}

func (c *RemitController) requireAdmin(ctx umoja.Context, db umoja.ReadOnlyKVStore) (*Configuration, error) {
	conf, err := c.GetConfiguration(db)
	if err != nil {
		return nil, err
	}
	if !c.auth.HasAddress(ctx, conf.Admin) {
		return nil, errors.Wrap(errors.ErrForbidden, "not the remittance admin")
	}
	return conf, nil
}

func (c *RemitController) index(db umoja.KVStore, bucket orm.ModelBucket, key, id []byte) error {
	var idx RemittanceIndex
	switch err := bucket.One(db, key, &idx); {
	case err == nil, errors.ErrNotFound.Is(err):
	default:
		return err
	}
	idx.add(id)
	return bucket.Put(db, key, &idx)
}

func (c *RemitController) lookup(db umoja.ReadOnlyKVStore, bucket orm.ModelBucket, key []byte) ([]*Remittance, error) {
	var idx RemittanceIndex
	switch err := bucket.One(db, key, &idx); {
	case errors.ErrNotFound.Is(err):
		return nil, nil
	case err != nil:
		return nil, err
	}
	out := make([]*Remittance, 0, len(idx.IDs))
	for _, id := range idx.IDs {
		r, err := c.GetRemittance(db, id)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func blockNow(ctx umoja.Context) (umoja.UnixTime, error) {
	t, err := umoja.BlockTime(ctx)
	if err != nil {
		return 0, err
	}
	return umoja.AsUnixTime(t), nil
}
