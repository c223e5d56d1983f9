package pool

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
	"github.com/umoja-network/umoja/x/cash"
)

type fixture struct {
	ctrl    *PoolController
	cash    cash.Controller
	db      umoja.CacheableKVStore
	ctx     umoja.Context
	creator umoja.Address
	poolID  []byte
}

// newFixture creates a pool with a funded creator holding 10000 USDC
// and a withdrawal limit of 500.
func newFixture(t *testing.T, conds ...umoja.Condition) *fixture {
	t.Helper()

	creator := umojatest.NewCondition()
	auth := &umojatest.Auth{Signers: append(conds, creator)}
	mover := cash.NewController()
	ctrl := NewController(auth, mover)

	db := store.MemStore()
	ctx := umojatest.Ctx(time.Now())

	require.NoError(t, mover.IssueCoins(db, creator.Address(), coin.NewCoin(10000, "USDC")))
	for _, c := range conds {
		require.NoError(t, mover.IssueCoins(db, c.Address(), coin.NewCoin(10000, "USDC")))
	}

	poolID, err := ctrl.CreatePool(ctx, db, creator.Address(), "family fund", "USDC", 500, PeriodMonthly)
	require.NoError(t, err)

	return &fixture{
		ctrl:    ctrl,
		cash:    mover,
		db:      db,
		ctx:     ctx,
		creator: creator.Address(),
		poolID:  poolID,
	}
}

func TestCreatePool(t *testing.T) {
	f := newFixture(t)

	pool, err := f.ctrl.GetPool(f.db, f.poolID)
	require.NoError(t, err)
	assert.Equal(t, "family fund", pool.Name)
	assert.Equal(t, int64(0), pool.Balance)
	assert.Equal(t, f.creator, pool.Creator)

	members, err := f.ctrl.GetPoolMembers(f.db, f.poolID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, RoleAdmin, members[0].Role)

	ids, err := f.ctrl.GetUserPools(f.db, f.creator)
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.Equal(t, f.poolID, ids[0])
}

func TestCreatePoolRejectsBadLimit(t *testing.T) {
	creator := umojatest.NewCondition()
	ctrl := NewController(&umojatest.Auth{Signer: creator}, cash.NewController())
	db := store.MemStore()

	_, err := ctrl.CreatePool(umojatest.Ctx(time.Now()), db, creator.Address(), "family fund", "USDC", 0, PeriodDaily)
	assert.Equal(t, errors.ErrInput.Code(), errors.Code(err))
}

func TestAddMember(t *testing.T) {
	other := umojatest.NewCondition()
	f := newFixture(t, other)

	require.NoError(t, f.ctrl.AddMember(f.ctx, f.db, f.poolID, f.creator, other.Address(), RoleContributor))

	members, err := f.ctrl.GetPoolMembers(f.db, f.poolID)
	require.NoError(t, err)
	assert.Len(t, members, 2)

	ids, err := f.ctrl.GetUserPools(f.db, other.Address())
	require.NoError(t, err)
	assert.Len(t, ids, 1)

	err = f.ctrl.AddMember(f.ctx, f.db, f.poolID, f.creator, other.Address(), RoleContributor)
	assert.Equal(t, errors.ErrDuplicate.Code(), errors.Code(err))
}

func TestAddRecipientSkipsIndex(t *testing.T) {
	other := umojatest.NewCondition()
	f := newFixture(t, other)

	require.NoError(t, f.ctrl.AddMember(f.ctx, f.db, f.poolID, f.creator, other.Address(), RoleRecipient))

	ids, err := f.ctrl.GetUserPools(f.db, other.Address())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestAddMemberRequiresAdmin(t *testing.T) {
	other := umojatest.NewCondition()
	f := newFixture(t, other)
	require.NoError(t, f.ctrl.AddMember(f.ctx, f.db, f.poolID, f.creator, other.Address(), RoleContributor))

	stranger := umojatest.NewCondition().Address()
	err := f.ctrl.AddMember(f.ctx, f.db, f.poolID, other.Address(), stranger, RoleContributor)
	assert.Equal(t, errors.ErrForbidden.Code(), errors.Code(err))
}

func TestRemoveMember(t *testing.T) {
	other := umojatest.NewCondition()
	f := newFixture(t, other)
	require.NoError(t, f.ctrl.AddMember(f.ctx, f.db, f.poolID, f.creator, other.Address(), RoleContributor))

	require.NoError(t, f.ctrl.RemoveMember(f.ctx, f.db, f.poolID, f.creator, other.Address()))

	members, err := f.ctrl.GetPoolMembers(f.db, f.poolID)
	require.NoError(t, err)
	assert.Len(t, members, 1)

	ids, err := f.ctrl.GetUserPools(f.db, other.Address())
	require.NoError(t, err)
	assert.Empty(t, ids)

	err = f.ctrl.RemoveMember(f.ctx, f.db, f.poolID, f.creator, other.Address())
	assert.Equal(t, errors.ErrNotFound.Code(), errors.Code(err))
}

func TestCreatorCannotBeRemoved(t *testing.T) {
	f := newFixture(t)

	err := f.ctrl.RemoveMember(f.ctx, f.db, f.poolID, f.creator, f.creator)
	assert.Equal(t, errors.ErrImmutable.Code(), errors.Code(err))
}

func TestContribute(t *testing.T) {
	f := newFixture(t)

	id, err := f.ctrl.Contribute(f.ctx, f.db, f.poolID, f.creator, 700)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	pool, err := f.ctrl.GetPool(f.db, f.poolID)
	require.NoError(t, err)
	assert.Equal(t, int64(700), pool.Balance)

	custody, err := f.cash.Balance(f.db, PoolAccount(f.poolID))
	require.NoError(t, err)
	assert.Equal(t, int64(700), custody.Amount("USDC"))

	log, err := f.ctrl.GetPoolContributions(f.db, f.poolID)
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, int64(700), log[0].Amount)
}

func TestContributeFailedTransferMutatesNothing(t *testing.T) {
	f := newFixture(t)

	_, err := f.ctrl.Contribute(f.ctx, f.db, f.poolID, f.creator, 99999)
	assert.Equal(t, errors.ErrInsufficientFunds.Code(), errors.Code(err))

	pool, err := f.ctrl.GetPool(f.db, f.poolID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), pool.Balance)

	log, err := f.ctrl.GetPoolContributions(f.db, f.poolID)
	require.NoError(t, err)
	assert.Empty(t, log)
}

func TestContributeRequiresMembership(t *testing.T) {
	other := umojatest.NewCondition()
	f := newFixture(t, other)

	_, err := f.ctrl.Contribute(f.ctx, f.db, f.poolID, other.Address(), 100)
	assert.Equal(t, errors.ErrForbidden.Code(), errors.Code(err))
}

func TestAdminWithdrawalSettlesImmediately(t *testing.T) {
	f := newFixture(t)
	_, err := f.ctrl.Contribute(f.ctx, f.db, f.poolID, f.creator, 800)
	require.NoError(t, err)

	id, err := f.ctrl.RequestWithdrawal(f.ctx, f.db, f.poolID, f.creator, f.creator, 300)
	require.NoError(t, err)

	log, err := f.ctrl.GetPoolWithdrawals(f.db, f.poolID)
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, id, log[0].ID)
	assert.Equal(t, WithdrawalApproved, log[0].Status)
	assert.False(t, log[0].CompletedAt.IsZero())

	pool, err := f.ctrl.GetPool(f.db, f.poolID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), pool.Balance)
}

func TestMemberWithdrawalStartsPending(t *testing.T) {
	other := umojatest.NewCondition()
	f := newFixture(t, other)
	require.NoError(t, f.ctrl.AddMember(f.ctx, f.db, f.poolID, f.creator, other.Address(), RoleContributor))
	_, err := f.ctrl.Contribute(f.ctx, f.db, f.poolID, f.creator, 800)
	require.NoError(t, err)

	_, err = f.ctrl.RequestWithdrawal(f.ctx, f.db, f.poolID, other.Address(), other.Address(), 300)
	require.NoError(t, err)

	log, err := f.ctrl.GetPoolWithdrawals(f.db, f.poolID)
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, WithdrawalPending, log[0].Status)

	// nothing paid out yet
	pool, err := f.ctrl.GetPool(f.db, f.poolID)
	require.NoError(t, err)
	assert.Equal(t, int64(800), pool.Balance)
}

func TestWithdrawalLimitBindsAdminsToo(t *testing.T) {
	f := newFixture(t)
	_, err := f.ctrl.Contribute(f.ctx, f.db, f.poolID, f.creator, 5000)
	require.NoError(t, err)

	_, err = f.ctrl.RequestWithdrawal(f.ctx, f.db, f.poolID, f.creator, f.creator, 501)
	assert.Equal(t, errors.ErrLimit.Code(), errors.Code(err))
}

func TestWithdrawalChecksBalance(t *testing.T) {
	f := newFixture(t)
	_, err := f.ctrl.Contribute(f.ctx, f.db, f.poolID, f.creator, 100)
	require.NoError(t, err)

	_, err = f.ctrl.RequestWithdrawal(f.ctx, f.db, f.poolID, f.creator, f.creator, 200)
	assert.Equal(t, errors.ErrInsufficientFunds.Code(), errors.Code(err))
}

func TestWithdrawalForOtherMember(t *testing.T) {
	recipient := umojatest.NewCondition()
	contributor := umojatest.NewCondition()
	f := newFixture(t, recipient, contributor)
	require.NoError(t, f.ctrl.AddMember(f.ctx, f.db, f.poolID, f.creator, recipient.Address(), RoleRecipient))
	require.NoError(t, f.ctrl.AddMember(f.ctx, f.db, f.poolID, f.creator, contributor.Address(), RoleContributor))
	_, err := f.ctrl.Contribute(f.ctx, f.db, f.poolID, f.creator, 800)
	require.NoError(t, err)

	// a contributor may not request for someone else
	_, err = f.ctrl.RequestWithdrawal(f.ctx, f.db, f.poolID, contributor.Address(), recipient.Address(), 100)
	assert.Equal(t, errors.ErrForbidden.Code(), errors.Code(err))

	// an admin may, but only for a recipient member
	_, err = f.ctrl.RequestWithdrawal(f.ctx, f.db, f.poolID, f.creator, contributor.Address(), 100)
	assert.Equal(t, errors.ErrInput.Code(), errors.Code(err))

	_, err = f.ctrl.RequestWithdrawal(f.ctx, f.db, f.poolID, f.creator, recipient.Address(), 100)
	require.NoError(t, err)

	balance, err := f.cash.Balance(f.db, recipient.Address())
	require.NoError(t, err)
	assert.Equal(t, int64(10100), balance.Amount("USDC"))
}

func TestProcessWithdrawalApprove(t *testing.T) {
	other := umojatest.NewCondition()
	f := newFixture(t, other)
	require.NoError(t, f.ctrl.AddMember(f.ctx, f.db, f.poolID, f.creator, other.Address(), RoleContributor))
	_, err := f.ctrl.Contribute(f.ctx, f.db, f.poolID, f.creator, 800)
	require.NoError(t, err)
	id, err := f.ctrl.RequestWithdrawal(f.ctx, f.db, f.poolID, other.Address(), other.Address(), 300)
	require.NoError(t, err)

	require.NoError(t, f.ctrl.ProcessWithdrawal(f.ctx, f.db, f.poolID, id, f.creator, true))

	log, err := f.ctrl.GetPoolWithdrawals(f.db, f.poolID)
	require.NoError(t, err)
	assert.Equal(t, WithdrawalApproved, log[0].Status)
	assert.False(t, log[0].CompletedAt.IsZero())

	pool, err := f.ctrl.GetPool(f.db, f.poolID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), pool.Balance)

	balance, err := f.cash.Balance(f.db, other.Address())
	require.NoError(t, err)
	assert.Equal(t, int64(10300), balance.Amount("USDC"))
}

func TestProcessWithdrawalReject(t *testing.T) {
	other := umojatest.NewCondition()
	f := newFixture(t, other)
	require.NoError(t, f.ctrl.AddMember(f.ctx, f.db, f.poolID, f.creator, other.Address(), RoleContributor))
	_, err := f.ctrl.Contribute(f.ctx, f.db, f.poolID, f.creator, 800)
	require.NoError(t, err)
	id, err := f.ctrl.RequestWithdrawal(f.ctx, f.db, f.poolID, other.Address(), other.Address(), 300)
	require.NoError(t, err)

	require.NoError(t, f.ctrl.ProcessWithdrawal(f.ctx, f.db, f.poolID, id, f.creator, false))

	log, err := f.ctrl.GetPoolWithdrawals(f.db, f.poolID)
	require.NoError(t, err)
	assert.Equal(t, WithdrawalRejected, log[0].Status)
	assert.False(t, log[0].CompletedAt.IsZero())

	pool, err := f.ctrl.GetPool(f.db, f.poolID)
	require.NoError(t, err)
	assert.Equal(t, int64(800), pool.Balance)
}

func TestProcessWithdrawalIsTerminal(t *testing.T) {
	other := umojatest.NewCondition()
	f := newFixture(t, other)
	require.NoError(t, f.ctrl.AddMember(f.ctx, f.db, f.poolID, f.creator, other.Address(), RoleContributor))
	_, err := f.ctrl.Contribute(f.ctx, f.db, f.poolID, f.creator, 800)
	require.NoError(t, err)
	id, err := f.ctrl.RequestWithdrawal(f.ctx, f.db, f.poolID, other.Address(), other.Address(), 300)
	require.NoError(t, err)

	require.NoError(t, f.ctrl.ProcessWithdrawal(f.ctx, f.db, f.poolID, id, f.creator, true))

	err = f.ctrl.ProcessWithdrawal(f.ctx, f.db, f.poolID, id, f.creator, true)
	assert.Equal(t, errors.ErrState.Code(), errors.Code(err))
	err = f.ctrl.ProcessWithdrawal(f.ctx, f.db, f.poolID, id, f.creator, false)
	assert.Equal(t, errors.ErrState.Code(), errors.Code(err))

	// only one payout happened
	pool, err := f.ctrl.GetPool(f.db, f.poolID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), pool.Balance)
}

// Two approvals racing on one withdrawal: each runs in its own cache
// wrap, the first commit wins and the loser observes the terminal
// state after a reload.
func TestConcurrentApprovalOnlyOneWins(t *testing.T) {
	other := umojatest.NewCondition()
	f := newFixture(t, other)
	require.NoError(t, f.ctrl.AddMember(f.ctx, f.db, f.poolID, f.creator, other.Address(), RoleContributor))
	_, err := f.ctrl.Contribute(f.ctx, f.db, f.poolID, f.creator, 800)
	require.NoError(t, err)
	id, err := f.ctrl.RequestWithdrawal(f.ctx, f.db, f.poolID, other.Address(), other.Address(), 300)
	require.NoError(t, err)

	first := f.db.CacheWrap()
	require.NoError(t, f.ctrl.ProcessWithdrawal(f.ctx, first, f.poolID, id, f.creator, true))
	require.NoError(t, first.Write())

	second := f.db.CacheWrap()
	err = f.ctrl.ProcessWithdrawal(f.ctx, second, f.poolID, id, f.creator, true)
	assert.Equal(t, errors.ErrState.Code(), errors.Code(err))
	second.Discard()

	pool, err := f.ctrl.GetPool(f.db, f.poolID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), pool.Balance)
}

func TestProcessWithdrawalRechecksBalance(t *testing.T) {
	other := umojatest.NewCondition()
	f := newFixture(t, other)
	require.NoError(t, f.ctrl.AddMember(f.ctx, f.db, f.poolID, f.creator, other.Address(), RoleContributor))
	_, err := f.ctrl.Contribute(f.ctx, f.db, f.poolID, f.creator, 500)
	require.NoError(t, err)
	id, err := f.ctrl.RequestWithdrawal(f.ctx, f.db, f.poolID, other.Address(), other.Address(), 400)
	require.NoError(t, err)

	// drain the pool before the approval lands
	_, err = f.ctrl.RequestWithdrawal(f.ctx, f.db, f.poolID, f.creator, f.creator, 300)
	require.NoError(t, err)

	err = f.ctrl.ProcessWithdrawal(f.ctx, f.db, f.poolID, id, f.creator, true)
	assert.Equal(t, errors.ErrInsufficientFunds.Code(), errors.Code(err))
}

func TestUpdateWithdrawalLimit(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.ctrl.UpdateWithdrawalLimit(f.ctx, f.db, f.poolID, f.creator, 900))
	pool, err := f.ctrl.GetPool(f.db, f.poolID)
	require.NoError(t, err)
	assert.Equal(t, int64(900), pool.WithdrawalLimit)

	err = f.ctrl.UpdateWithdrawalLimit(f.ctx, f.db, f.poolID, f.creator, 0)
	assert.Equal(t, errors.ErrInput.Code(), errors.Code(err))
}

func TestUpdateWithdrawalPeriod(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.ctrl.UpdateWithdrawalPeriod(f.ctx, f.db, f.poolID, f.creator, PeriodWeekly))
	pool, err := f.ctrl.GetPool(f.db, f.poolID)
	require.NoError(t, err)
	assert.Equal(t, PeriodWeekly, pool.WithdrawalPeriod)
}

func TestGetUnknownPool(t *testing.T) {
	f := newFixture(t)
	unknown := make([]byte, 32)

	_, err := f.ctrl.GetPool(f.db, unknown)
	assert.Equal(t, errors.ErrNotFound.Code(), errors.Code(err))
	_, err = f.ctrl.GetPoolMembers(f.db, unknown)
	assert.Equal(t, errors.ErrNotFound.Code(), errors.Code(err))
	_, err = f.ctrl.GetPoolWithdrawals(f.db, unknown)
	assert.Equal(t, errors.ErrNotFound.Code(), errors.Code(err))

	ids, err := f.ctrl.GetUserPools(f.db, umojatest.NewCondition().Address())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestReconcile(t *testing.T) {
	other := umojatest.NewCondition()
	f := newFixture(t, other)
	require.NoError(t, f.ctrl.AddMember(f.ctx, f.db, f.poolID, f.creator, other.Address(), RoleContributor))

	require.NoError(t, f.ctrl.Reconcile(f.db, f.poolID))

	_, err := f.ctrl.Contribute(f.ctx, f.db, f.poolID, f.creator, 800)
	require.NoError(t, err)
	_, err = f.ctrl.Contribute(f.ctx, f.db, f.poolID, other.Address(), 200)
	require.NoError(t, err)
	require.NoError(t, f.ctrl.Reconcile(f.db, f.poolID))

	id, err := f.ctrl.RequestWithdrawal(f.ctx, f.db, f.poolID, other.Address(), other.Address(), 300)
	require.NoError(t, err)
	require.NoError(t, f.ctrl.Reconcile(f.db, f.poolID))

	require.NoError(t, f.ctrl.ProcessWithdrawal(f.ctx, f.db, f.poolID, id, f.creator, true))
	require.NoError(t, f.ctrl.Reconcile(f.db, f.poolID))

	// corrupt the balance behind the log's back
	var pool Pool
	require.NoError(t, f.ctrl.pools.One(f.db, f.poolID, &pool))
	pool.Balance += 5
	require.NoError(t, f.ctrl.pools.Put(f.db, f.poolID, &pool))

	err = f.ctrl.Reconcile(f.db, f.poolID)
	assert.Equal(t, errors.ErrState.Code(), errors.Code(err))
}

// roles not in the capability table are rejected up front
func TestAddMemberRejectsBadRole(t *testing.T) {
	f := newFixture(t)

	err := f.ctrl.AddMember(f.ctx, f.db, f.poolID, f.creator, umojatest.NewCondition().Address(), Role(42))
	assert.Equal(t, errors.ErrState.Code(), errors.Code(err))
}
