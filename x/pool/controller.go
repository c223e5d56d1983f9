package pool

import (
	"github.com/umoja-network/umoja"
	"github.com/umoja-network/umoja/coin"
	"github.com/umoja-network/umoja/errors"
	"github.com/umoja-network/umoja/orm"
	"github.com/umoja-network/umoja/x"
	"github.com/umoja-network/umoja/x/cash"
)

// PoolAccount returns the custody address holding the funds of one
// pool. Nobody owns the matching private material, so the only way
// value leaves is through the controller.
func PoolAccount(poolID []byte) umoja.Address {
	return umoja.NewCondition("pool", "escrow", poolID).Address()
}

// Controller exposes every fund pool operation.
type Controller interface {
	CreatePool(ctx umoja.Context, db umoja.KVStore, creator umoja.Address, name, ticker string, limit int64, period Period) ([]byte, error)
	AddMember(ctx umoja.Context, db umoja.KVStore, poolID []byte, admin, member umoja.Address, role Role) error
	RemoveMember(ctx umoja.Context, db umoja.KVStore, poolID []byte, admin, target umoja.Address) error
	Contribute(ctx umoja.Context, db umoja.KVStore, poolID []byte, contributor umoja.Address, amount int64) ([]byte, error)
	RequestWithdrawal(ctx umoja.Context, db umoja.KVStore, poolID []byte, requester, recipient umoja.Address, amount int64) ([]byte, error)
	ProcessWithdrawal(ctx umoja.Context, db umoja.KVStore, poolID, withdrawalID []byte, admin umoja.Address, approve bool) error
	UpdateWithdrawalLimit(ctx umoja.Context, db umoja.KVStore, poolID []byte, admin umoja.Address, limit int64) error
	UpdateWithdrawalPeriod(ctx umoja.Context, db umoja.KVStore, poolID []byte, admin umoja.Address, period Period) error

	GetPool(db umoja.ReadOnlyKVStore, poolID []byte) (*Pool, error)
	GetPoolMembers(db umoja.ReadOnlyKVStore, poolID []byte) ([]Member, error)
	GetPoolContributions(db umoja.ReadOnlyKVStore, poolID []byte) ([]Contribution, error)
	GetPoolWithdrawals(db umoja.ReadOnlyKVStore, poolID []byte) ([]Withdrawal, error)
	GetUserPools(db umoja.ReadOnlyKVStore, user umoja.Address) ([][]byte, error)
	Reconcile(db umoja.ReadOnlyKVStore, poolID []byte) error
}

// PoolController implements Controller on top of the wallet moving
// primitive and the pool buckets.
type PoolController struct {
	auth        x.Authenticator
	cash        cash.Controller
	pools       orm.ModelBucket
	members     orm.ModelBucket
	contribs    orm.ModelBucket
	withdrawals orm.ModelBucket
	userIndex   orm.ModelBucket
	poolIDs     orm.IDGen
	contribIDs  orm.IDGen
	withdrawIDs orm.IDGen
}

var _ Controller = (*PoolController)(nil)

// NewController returns a pool controller using the given
// authenticator and value mover.
func NewController(auth x.Authenticator, mover cash.Controller) *PoolController {
	return &PoolController{
		auth:        auth,
		cash:        mover,
		pools:       newPoolBucket(),
		members:     newMemberBucket(),
		contribs:    newContributionBucket(),
		withdrawals: newWithdrawalBucket(),
		userIndex:   newUserIndexBucket(),
		poolIDs:     orm.NewIDGen("pool"),
		contribIDs:  orm.NewIDGen("contribution"),
		withdrawIDs: orm.NewIDGen("withdrawal"),
	}
}

// CreatePool registers a new fund with the creator as its only
// member, holding the admin role.
func (c *PoolController) CreatePool(ctx umoja.Context, db umoja.KVStore, creator umoja.Address, name, ticker string, limit int64, period Period) ([]byte, error) {
	if !c.auth.HasAddress(ctx, creator) {
		return nil, errors.Wrap(errors.ErrUnauthorized, "creator did not authorize")
	}
	if limit <= 0 {
		return nil, errors.Wrap(errors.ErrInput, "withdrawal limit must be positive")
	}
	now, err := blockNow(ctx)
	if err != nil {
		return nil, err
	}

	id, err := c.poolIDs.NextID(db, creator, now)
	if err != nil {
		return nil, err
	}
	pool := Pool{
		ID:               id,
		Name:             name,
		Creator:          creator,
		Ticker:           ticker,
		Balance:          0,
		WithdrawalLimit:  limit,
		WithdrawalPeriod: period,
		CreatedAt:        now,
	}
	if err := c.pools.Put(db, id, &pool); err != nil {
		return nil, err
	}

	members := MemberList{Members: []Member{
		{Address: creator, Role: RoleAdmin, AddedAt: now},
	}}
	if err := c.members.Put(db, id, &members); err != nil {
		return nil, err
	}
	if err := c.indexUser(db, creator, id); err != nil {
		return nil, err
	}
	return id, nil
}

// AddMember inserts a new party into the pool. Only admins may do
// this. Recipients are not listed in the reverse index.
func (c *PoolController) AddMember(ctx umoja.Context, db umoja.KVStore, poolID []byte, admin, member umoja.Address, role Role) error {
	if err := role.Validate(); err != nil {
		return err
	}
	_, members, err := c.requireAdmin(ctx, db, poolID, admin)
	if err != nil {
		return err
	}
	if members.Find(member) != nil {
		return errors.Wrapf(errors.ErrDuplicate, "%s is already a member", member)
	}
	now, err := blockNow(ctx)
	if err != nil {
		return err
	}
	members.Members = append(members.Members, Member{
		Address: member,
		Role:    role,
		AddedAt: now,
	})
	if err := c.members.Put(db, poolID, members); err != nil {
		return err
	}
	if role.can(capBrowse) {
		return c.indexUser(db, member, poolID)
	}
	return nil
}

// RemoveMember drops a party from the pool. The creator is
// permanently protected.
func (c *PoolController) RemoveMember(ctx umoja.Context, db umoja.KVStore, poolID []byte, admin, target umoja.Address) error {
	pool, members, err := c.requireAdmin(ctx, db, poolID, admin)
	if err != nil {
		return err
	}
	if target.Equals(pool.Creator) {
		return errors.Wrap(errors.ErrImmutable, "cannot remove the pool creator")
	}
	if !members.Remove(target) {
		return errors.Wrapf(errors.ErrNotFound, "%s is not a member", target)
	}
	if err := c.members.Put(db, poolID, members); err != nil {
		return err
	}
	return c.unindexUser(db, target, poolID)
}

// Contribute moves funds from the contributor into pool custody and
// records the receipt. The transfer runs before any bookkeeping, so a
// failed transfer leaves the ledger untouched.
func (c *PoolController) Contribute(ctx umoja.Context, db umoja.KVStore, poolID []byte, contributor umoja.Address, amount int64) ([]byte, error) {
	if !c.auth.HasAddress(ctx, contributor) {
		return nil, errors.Wrap(errors.ErrUnauthorized, "contributor did not authorize")
	}
	if amount <= 0 {
		return nil, errors.Wrap(errors.ErrAmount, "contribution must be positive")
	}
	pool, err := c.loadPool(db, poolID)
	if err != nil {
		return nil, err
	}
	members, err := c.loadMembers(db, poolID)
	if err != nil {
		return nil, err
	}
	if members.Find(contributor) == nil {
		return nil, errors.Wrapf(errors.ErrForbidden, "%s is not a member", contributor)
	}
	now, err := blockNow(ctx)
	if err != nil {
		return nil, err
	}

	deposit := coin.NewCoin(amount, pool.Ticker)
	if err := c.cash.MoveCoins(db, contributor, PoolAccount(poolID), deposit); err != nil {
		return nil, errors.Wrap(err, "cannot move funds into custody")
	}

	id, err := c.contribIDs.NextID(db, contributor, now)
	if err != nil {
		return nil, err
	}
	var log ContributionList
	if err := c.loadList(db, c.contribs, poolID, &log); err != nil {
		return nil, err
	}
	log.Contributions = append(log.Contributions, Contribution{
		ID:          id,
		Contributor: contributor,
		Amount:      amount,
		Ticker:      pool.Ticker,
		CreatedAt:   now,
	})
	if err := c.contribs.Put(db, poolID, &log); err != nil {
		return nil, err
	}

	balance, err := coin.NewCoin(pool.Balance, pool.Ticker).Add(deposit)
	if err != nil {
		return nil, err
	}
	pool.Balance = balance.Amount
	if err := c.pools.Put(db, poolID, pool); err != nil {
		return nil, err
	}
	return id, nil
}

// RequestWithdrawal files a fund release request. Admin requests
// settle immediately, everything else starts pending and waits for an
// admin decision.
func (c *PoolController) RequestWithdrawal(ctx umoja.Context, db umoja.KVStore, poolID []byte, requester, recipient umoja.Address, amount int64) ([]byte, error) {
	if !c.auth.HasAddress(ctx, requester) {
		return nil, errors.Wrap(errors.ErrUnauthorized, "requester did not authorize")
	}
	if amount <= 0 {
		return nil, errors.Wrap(errors.ErrAmount, "withdrawal must be positive")
	}
	pool, err := c.loadPool(db, poolID)
	if err != nil {
		return nil, err
	}
	members, err := c.loadMembers(db, poolID)
	if err != nil {
		return nil, err
	}
	self := members.Find(requester)
	if self == nil {
		return nil, errors.Wrapf(errors.ErrForbidden, "%s is not a member", requester)
	}
	if amount > pool.Balance {
		return nil, errors.Wrapf(errors.ErrInsufficientFunds,
			"pool holds %d %s", pool.Balance, pool.Ticker)
	}
	if amount > pool.WithdrawalLimit {
		return nil, errors.Wrapf(errors.ErrLimit,
			"withdrawal limit is %d %s", pool.WithdrawalLimit, pool.Ticker)
	}
	if !recipient.Equals(requester) {
		if !self.Role.can(capManage) {
			return nil, errors.Wrap(errors.ErrForbidden, "only an admin may withdraw for another member")
		}
		target := members.Find(recipient)
		if target == nil || !target.Role.can(capReceive) {
			return nil, errors.Wrapf(errors.ErrInput, "%s is not a pool recipient", recipient)
		}
	}
	now, err := blockNow(ctx)
	if err != nil {
		return nil, err
	}

	id, err := c.withdrawIDs.NextID(db, requester, now)
	if err != nil {
		return nil, err
	}
	wd := Withdrawal{
		ID:        id,
		Requester: requester,
		Recipient: recipient,
		Amount:    amount,
		Ticker:    pool.Ticker,
		Status:    WithdrawalPending,
		CreatedAt: now,
	}

	if self.Role.can(capManage) {
		if err := c.settle(db, pool, &wd, now); err != nil {
			return nil, err
		}
		if err := c.pools.Put(db, poolID, pool); err != nil {
			return nil, err
		}
	}

	var log WithdrawalList
	if err := c.loadList(db, c.withdrawals, poolID, &log); err != nil {
		return nil, err
	}
	log.Withdrawals = append(log.Withdrawals, wd)
	if err := c.withdrawals.Put(db, poolID, &log); err != nil {
		return nil, err
	}
	return id, nil
}

// ProcessWithdrawal is the admin decision on a pending request.
// Approving pays the recipient from custody, rejecting moves no
// funds. Either way the request reaches a terminal state exactly
// once.
func (c *PoolController) ProcessWithdrawal(ctx umoja.Context, db umoja.KVStore, poolID, withdrawalID []byte, admin umoja.Address, approve bool) error {
	pool, _, err := c.requireAdmin(ctx, db, poolID, admin)
	if err != nil {
		return err
	}
	var log WithdrawalList
	if err := c.loadList(db, c.withdrawals, poolID, &log); err != nil {
		return err
	}
	wd := log.Find(withdrawalID)
	if wd == nil {
		return errors.Wrap(errors.ErrNotFound, "no such withdrawal")
	}
	if wd.Status.Terminal() {
		return errors.Wrapf(errors.ErrState, "withdrawal is %s", wd.Status)
	}
	now, err := blockNow(ctx)
	if err != nil {
		return err
	}

	if approve {
		if err := c.settle(db, pool, wd, now); err != nil {
			return err
		}
		if err := c.pools.Put(db, poolID, pool); err != nil {
			return err
		}
	} else {
		wd.Status = WithdrawalRejected
		wd.CompletedAt = now
	}
	return c.withdrawals.Put(db, poolID, &log)
}

// settle re-checks the balance, pays the recipient from custody and
// marks the withdrawal approved. The balance may have moved since the
// request was filed, so the re-check is not optional.
func (c *PoolController) settle(db umoja.KVStore, pool *Pool, wd *Withdrawal, now umoja.UnixTime) error {
	if wd.Amount > pool.Balance {
		return errors.Wrapf(errors.ErrInsufficientFunds,
			"pool holds %d %s", pool.Balance, pool.Ticker)
	}
	payout := coin.NewCoin(wd.Amount, pool.Ticker)
	if err := c.cash.MoveCoins(db, PoolAccount(pool.ID), wd.Recipient, payout); err != nil {
		return errors.Wrap(err, "cannot pay out of custody")
	}
	pool.Balance -= wd.Amount
	wd.Status = WithdrawalApproved
	wd.CompletedAt = now
	return nil
}

// UpdateWithdrawalLimit changes the per-withdrawal cap. Admin only.
func (c *PoolController) UpdateWithdrawalLimit(ctx umoja.Context, db umoja.KVStore, poolID []byte, admin umoja.Address, limit int64) error {
	pool, _, err := c.requireAdmin(ctx, db, poolID, admin)
	if err != nil {
		return err
	}
	if limit <= 0 {
		return errors.Wrap(errors.ErrInput, "withdrawal limit must be positive")
	}
	pool.WithdrawalLimit = limit
	return c.pools.Put(db, poolID, pool)
}

// UpdateWithdrawalPeriod changes the declared limit window. Admin
// only.
func (c *PoolController) UpdateWithdrawalPeriod(ctx umoja.Context, db umoja.KVStore, poolID []byte, admin umoja.Address, period Period) error {
	pool, _, err := c.requireAdmin(ctx, db, poolID, admin)
	if err != nil {
		return err
	}
	if err := period.Validate(); err != nil {
		return err
	}
	pool.WithdrawalPeriod = period
	return c.pools.Put(db, poolID, pool)
}

// GetPool returns the pool record.
func (c *PoolController) GetPool(db umoja.ReadOnlyKVStore, poolID []byte) (*Pool, error) {
	return c.loadPool(db, poolID)
}

// GetPoolMembers returns the membership of an existing pool.
func (c *PoolController) GetPoolMembers(db umoja.ReadOnlyKVStore, poolID []byte) ([]Member, error) {
	if _, err := c.loadPool(db, poolID); err != nil {
		return nil, err
	}
	members, err := c.loadMembers(db, poolID)
	if err != nil {
		return nil, err
	}
	return members.Members, nil
}

// GetPoolContributions returns the contribution log of an existing
// pool.
func (c *PoolController) GetPoolContributions(db umoja.ReadOnlyKVStore, poolID []byte) ([]Contribution, error) {
	if _, err := c.loadPool(db, poolID); err != nil {
		return nil, err
	}
	var log ContributionList
	if err := c.loadList(db, c.contribs, poolID, &log); err != nil {
		return nil, err
	}
	return log.Contributions, nil
}

// GetPoolWithdrawals returns the withdrawal log of an existing pool.
func (c *PoolController) GetPoolWithdrawals(db umoja.ReadOnlyKVStore, poolID []byte) ([]Withdrawal, error) {
	if _, err := c.loadPool(db, poolID); err != nil {
		return nil, err
	}
	var log WithdrawalList
	if err := c.loadList(db, c.withdrawals, poolID, &log); err != nil {
		return nil, err
	}
	return log.Withdrawals, nil
}

// GetUserPools returns the ids of the pools listed under a party.
// Unknown parties get an empty result, not an error.
func (c *PoolController) GetUserPools(db umoja.ReadOnlyKVStore, user umoja.Address) ([][]byte, error) {
	var idx UserPools
	switch err := c.userIndex.One(db, user, &idx); {
	case err == nil:
		return idx.PoolIDs, nil
	case errors.ErrNotFound.Is(err):
		return nil, nil
	default:
		return nil, err
	}
}

// Reconcile checks that the sum of contributions minus settled
// withdrawals equals the pool balance. A mismatch means the audit log
// and the ledger drifted apart.
func (c *PoolController) Reconcile(db umoja.ReadOnlyKVStore, poolID []byte) error {
	pool, err := c.loadPool(db, poolID)
	if err != nil {
		return err
	}
	var contribs ContributionList
	if err := c.loadList(db, c.contribs, poolID, &contribs); err != nil {
		return err
	}
	var withdrawals WithdrawalList
	if err := c.loadList(db, c.withdrawals, poolID, &withdrawals); err != nil {
		return err
	}

	var expect int64
	for _, in := range contribs.Contributions {
		expect += in.Amount
	}
	for _, out := range withdrawals.Withdrawals {
		switch out.Status {
		case WithdrawalApproved, WithdrawalCompleted:
			expect -= out.Amount
		}
	}
	if expect != pool.Balance {
		return errors.Wrapf(errors.ErrState,
			"balance is %d, log accounts for %d", pool.Balance, expect)
	}
	return nil
}

func (c *PoolController) loadPool(db umoja.ReadOnlyKVStore, poolID []byte) (*Pool, error) {
	var pool Pool
	if err := c.pools.One(db, poolID, &pool); err != nil {
		return nil, errors.Wrap(err, "pool")
	}
	return &pool, nil
}

func (c *PoolController) loadMembers(db umoja.ReadOnlyKVStore, poolID []byte) (*MemberList, error) {
	var members MemberList
	if err := c.members.One(db, poolID, &members); err != nil {
		return nil, errors.Wrap(err, "members")
	}
	return &members, nil
}

// loadList fills dest from the given log bucket. A missing log reads
// as empty.
func (c *PoolController) loadList(db umoja.ReadOnlyKVStore, bucket orm.ModelBucket, poolID []byte, dest orm.Model) error {
	switch err := bucket.One(db, poolID, dest); {
	case err == nil, errors.ErrNotFound.Is(err):
		return nil
	default:
		return err
	}
}

// requireAdmin verifies that the given party authorized the call and
// holds the management capability in this pool.
func (c *PoolController) requireAdmin(ctx umoja.Context, db umoja.KVStore, poolID []byte, admin umoja.Address) (*Pool, *MemberList, error) {
	if !c.auth.HasAddress(ctx, admin) {
		return nil, nil, errors.Wrap(errors.ErrUnauthorized, "admin did not authorize")
	}
	pool, err := c.loadPool(db, poolID)
	if err != nil {
		return nil, nil, err
	}
	members, err := c.loadMembers(db, poolID)
	if err != nil {
		return nil, nil, err
	}
	m := members.Find(admin)
	if m == nil || !m.Role.can(capManage) {
		return nil, nil, errors.Wrapf(errors.ErrForbidden, "%s is not a pool admin", admin)
	}
	return pool, members, nil
}

func (c *PoolController) indexUser(db umoja.KVStore, user umoja.Address, poolID []byte) error {
	var idx UserPools
	if err := c.loadList(db, c.userIndex, []byte(user), &idx); err != nil {
		return err
	}
	idx.add(poolID)
	return c.userIndex.Put(db, user, &idx)
}

func (c *PoolController) unindexUser(db umoja.KVStore, user umoja.Address, poolID []byte) error {
	var idx UserPools
	if err := c.loadList(db, c.userIndex, []byte(user), &idx); err != nil {
		return err
	}
	idx.remove(poolID)
	return c.userIndex.Put(db, user, &idx)
}

func blockNow(ctx umoja.Context) (umoja.UnixTime, error) {
	t, err := umoja.BlockTime(ctx)
	if err != nil {
		return 0, err
	}
	return umoja.AsUnixTime(t), nil
}
