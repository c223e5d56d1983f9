package remit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umoja-network/umoja"
	"github.com/umoja-network/umoja/coin"
	"github.com/umoja-network/umoja/errors"
	"github.com/umoja-network/umoja/store"
	"github.com/umoja-network/umoja/umojatest"
	"github.com/umoja-network/umoja/x"
	"github.com/umoja-network/umoja/x/cash"
)

type fixture struct {
	ctrl      *RemitController
	cash      cash.Controller
	db        umoja.CacheableKVStore
	ctx       umoja.Context
	admin     umoja.Address
	sender    umoja.Address
	recipient umoja.Condition
}

// newFixture initializes the engine at 100 bps fee and 50 bps
// insurance, funds the sender with 100000 USDC and seeds custody
// liquidity in the target token.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	admin := umojatest.NewCondition()
	sender := umojatest.NewCondition()
	recipient := umojatest.NewCondition()

	// the admin and sender sign statically, the recipient signs
	// through the request context
	ctxAuth := &umojatest.CtxAuth{Key: "auth"}
	auth := x.ChainAuth(&umojatest.Auth{Signers: []umoja.Condition{admin, sender}}, ctxAuth)
	mover := cash.NewController()
	ctrl := NewController(auth, mover)

	db := store.MemStore()
	ctx := ctxAuth.SetConditions(umojatest.Ctx(time.Now()), recipient)

	require.NoError(t, ctrl.Initialize(ctx, db, admin.Address(), 100, 50))
	require.NoError(t, mover.IssueCoins(db, sender.Address(), coin.NewCoin(100000, "USDC")))
	require.NoError(t, mover.IssueCoins(db, CustodyAccount(), coin.NewCoin(10000000, "KES")))

	return &fixture{
		ctrl:      ctrl,
		cash:      mover,
		db:        db,
		ctx:       ctx,
		admin:     admin.Address(),
		sender:    sender.Address(),
		recipient: recipient,
	}
}

func (f *fixture) create(t *testing.T, amount int64, insurance bool) []byte {
	t.Helper()
	id, err := f.ctrl.CreateRemittance(f.ctx, f.db, CreateRemittanceParams{
		Sender: f.sender,
		Recipient: Recipient{
			Address: f.recipient.Address(),
			Phone:   "+254700111222",
			Name:    "Akinyi O.",
			Country: "KE",
		},
		Amount:         amount,
		SourceTicker:   "USDC",
		TargetTicker:   "KES",
		ExchangeRate:   1_290_000,
		Insurance:      insurance,
		RedemptionCode: []byte("mango-tree-42"),
	})
	require.NoError(t, err)
	return id
}

func TestInitializeOnce(t *testing.T) {
	f := newFixture(t)

	err := f.ctrl.Initialize(f.ctx, f.db, f.admin, 200, 100)
	assert.Equal(t, errors.ErrInitialized.Code(), errors.Code(err))

	conf, err := f.ctrl.GetConfiguration(f.db)
	require.NoError(t, err)
	assert.Equal(t, int64(100), conf.FeeBps)
	assert.Equal(t, int64(50), conf.InsuranceBps)
}

func TestInitializeRejectsExcessiveRates(t *testing.T) {
	admin := umojatest.NewCondition()
	ctrl := NewController(&umojatest.Auth{Signer: admin}, cash.NewController())
	db := store.MemStore()

	err := ctrl.Initialize(umojatest.Ctx(time.Now()), db, admin.Address(), 1001, 0)
	assert.Equal(t, errors.ErrInput.Code(), errors.Code(err))
}

func TestCreateEscrowsAmountPlusFee(t *testing.T) {
	f := newFixture(t)

	id := f.create(t, 1000, false)

	r, err := f.ctrl.GetRemittance(f.db, id)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, r.Status)
	assert.Equal(t, int64(10), r.Fee)
	assert.Equal(t, int64(0), r.InsuranceFee)
	assert.Equal(t, int64(1010), r.EscrowedAmount())

	balance, err := f.cash.Balance(f.db, f.sender)
	require.NoError(t, err)
	assert.Equal(t, int64(100000-1010), balance.Amount("USDC"))

	custody, err := f.ctrl.CustodyBalance(f.db)
	require.NoError(t, err)
	assert.Equal(t, int64(1010), custody.Amount("USDC"))
}

func TestCreateWithInsurance(t *testing.T) {
	f := newFixture(t)

	id := f.create(t, 1000, true)

	r, err := f.ctrl.GetRemittance(f.db, id)
	require.NoError(t, err)
	assert.Equal(t, int64(10), r.Fee)
	assert.Equal(t, int64(5), r.InsuranceFee)
	assert.Equal(t, int64(1015), r.EscrowedAmount())

	balance, err := f.cash.Balance(f.db, f.sender)
	require.NoError(t, err)
	assert.Equal(t, int64(100000-1015), balance.Amount("USDC"))
}

func TestCreateFailedEscrowRecordsNothing(t *testing.T) {
	f := newFixture(t)

	_, err := f.ctrl.CreateRemittance(f.ctx, f.db, CreateRemittanceParams{
		Sender:         f.sender,
		Recipient:      Recipient{Phone: "+254700111222"},
		Amount:         99999999,
		SourceTicker:   "USDC",
		TargetTicker:   "KES",
		ExchangeRate:   1_290_000,
		RedemptionCode: []byte("code"),
	})
	assert.Equal(t, errors.ErrInsufficientFunds.Code(), errors.Code(err))

	rs, err := f.ctrl.GetUserRemittances(f.db, f.sender)
	require.NoError(t, err)
	assert.Empty(t, rs)
}

func TestRedeem(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, 1000, false)

	require.NoError(t, f.ctrl.RedeemRemittance(f.ctx, f.db, id, []byte("mango-tree-42"), f.recipient.Address()))

	r, err := f.ctrl.GetRemittance(f.db, id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, r.Status)
	assert.False(t, r.CompletedAt.IsZero())

	// 1000 * 1_290_000 bps / 10000 = 129000 KES
	balance, err := f.cash.Balance(f.db, f.recipient.Address())
	require.NoError(t, err)
	assert.Equal(t, int64(129000), balance.Amount("KES"))

	// the fee residue never leaves custody
	custody, err := f.ctrl.CustodyBalance(f.db)
	require.NoError(t, err)
	assert.Equal(t, int64(1010), custody.Amount("USDC"))
}

func TestRedeemWrongCode(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, 1000, false)

	before, err := f.cash.Balance(f.db, f.recipient.Address())
	require.NoError(t, err)

	err = f.ctrl.RedeemRemittance(f.ctx, f.db, id, []byte("mango-tree-43"), f.recipient.Address())
	assert.Equal(t, errors.ErrForbidden.Code(), errors.Code(err))

	r, err := f.ctrl.GetRemittance(f.db, id)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, r.Status)

	after, err := f.cash.Balance(f.db, f.recipient.Address())
	require.NoError(t, err)
	assert.Equal(t, before.Amount("KES"), after.Amount("KES"))
}

func TestRedeemWrongRecipient(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, 1000, false)

	imposter := umojatest.NewCondition()
	auth := &umojatest.Auth{Signer: imposter}
	ctrl := NewController(auth, f.cash)

	err := ctrl.RedeemRemittance(f.ctx, f.db, id, []byte("mango-tree-42"), imposter.Address())
	assert.Equal(t, errors.ErrForbidden.Code(), errors.Code(err))
}

func TestRedeemIsTerminal(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, 1000, false)

	require.NoError(t, f.ctrl.RedeemRemittance(f.ctx, f.db, id, []byte("mango-tree-42"), f.recipient.Address()))

	err := f.ctrl.RedeemRemittance(f.ctx, f.db, id, []byte("mango-tree-42"), f.recipient.Address())
	assert.Equal(t, errors.ErrState.Code(), errors.Code(err))
	err = f.ctrl.CancelRemittance(f.ctx, f.db, id, f.sender)
	assert.Equal(t, errors.ErrState.Code(), errors.Code(err))
}

func TestCancelUninsuredForfeitsFee(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, 1000, false)

	require.NoError(t, f.ctrl.CancelRemittance(f.ctx, f.db, id, f.sender))

	r, err := f.ctrl.GetRemittance(f.db, id)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, r.Status)
	assert.False(t, r.CompletedAt.IsZero())

	// escrowed 1010, refunded 1000, fee stays in custody
	balance, err := f.cash.Balance(f.db, f.sender)
	require.NoError(t, err)
	assert.Equal(t, int64(100000-10), balance.Amount("USDC"))

	custody, err := f.ctrl.CustodyBalance(f.db)
	require.NoError(t, err)
	assert.Equal(t, int64(10), custody.Amount("USDC"))
}

func TestCancelInsuredRefundsEverything(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, 1000, true)

	require.NoError(t, f.ctrl.CancelRemittance(f.ctx, f.db, id, f.sender))

	// escrowed 1015, refunded 1015
	balance, err := f.cash.Balance(f.db, f.sender)
	require.NoError(t, err)
	assert.Equal(t, int64(100000), balance.Amount("USDC"))

	custody, err := f.ctrl.CustodyBalance(f.db)
	require.NoError(t, err)
	assert.Equal(t, int64(0), custody.Amount("USDC"))
}

func TestCancelSenderOnly(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, 1000, false)

	err := f.ctrl.CancelRemittance(f.ctx, f.db, id, f.recipient.Address())
	assert.Equal(t, errors.ErrForbidden.Code(), errors.Code(err))
}

func TestUpdateRates(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.ctrl.UpdateFeeBps(f.ctx, f.db, 200))
	require.NoError(t, f.ctrl.UpdateInsuranceBps(f.ctx, f.db, 75))

	conf, err := f.ctrl.GetConfiguration(f.db)
	require.NoError(t, err)
	assert.Equal(t, int64(200), conf.FeeBps)
	assert.Equal(t, int64(75), conf.InsuranceBps)

	err = f.ctrl.UpdateFeeBps(f.ctx, f.db, 1001)
	assert.Equal(t, errors.ErrInput.Code(), errors.Code(err))
}

func TestUpdateRatesRequiresAdmin(t *testing.T) {
	f := newFixture(t)

	stranger := umojatest.NewCondition()
	ctrl := NewController(&umojatest.Auth{Signer: stranger}, f.cash)

	err := ctrl.UpdateFeeBps(f.ctx, f.db, 200)
	assert.Equal(t, errors.ErrForbidden.Code(), errors.Code(err))
}

func TestLookups(t *testing.T) {
	f := newFixture(t)
	first := f.create(t, 1000, false)
	second := f.create(t, 2000, true)

	rs, err := f.ctrl.GetUserRemittances(f.db, f.sender)
	require.NoError(t, err)
	require.Len(t, rs, 2)
	assert.Equal(t, first, rs[0].ID)
	assert.Equal(t, second, rs[1].ID)

	rs, err = f.ctrl.GetPhoneRemittances(f.db, "+254700111222")
	require.NoError(t, err)
	assert.Len(t, rs, 2)

	rs, err = f.ctrl.GetPhoneRemittances(f.db, "+254700999999")
	require.NoError(t, err)
	assert.Empty(t, rs)

	_, err = f.ctrl.GetRemittance(f.db, make([]byte, 32))
	assert.Equal(t, errors.ErrNotFound.Code(), errors.Code(err))
}
