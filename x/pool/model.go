package pool

import (
	"bytes"
	"encoding/json"
	"regexp"

	"github.com/umoja-network/umoja"
	"github.com/umoja-network/umoja/coin"
	"github.com/umoja-network/umoja/errors"
	"github.com/umoja-network/umoja/orm"
)

var isPoolName = regexp.MustCompile(`^[a-zA-Z0-9 \-_.]{3,40}$`).MatchString

// Role determines what a member may do within a pool.
type Role uint8

const (
	RoleInvalid Role = iota
	RoleAdmin
	RoleContributor
	RoleRecipient
)

// capability names one thing a role is allowed to do. Authorization
// decisions go through this table instead of comparing roles inline,
// so the rules live in one place.
type capability uint8

const (
	// capManage covers member management, withdrawal processing and
	// pool configuration updates.
	capManage capability = iota + 1
	// capReceive allows being named recipient of a withdrawal
	// requested by an admin on the member's behalf.
	capReceive
	// capBrowse lists the pool in the member's reverse index.
	// Recipients are deliberately left out.
	capBrowse
)

var roleCaps = map[Role][]capability{
	RoleAdmin:       {capManage, capBrowse},
	RoleContributor: {capBrowse},
	RoleRecipient:   {capReceive},
}

func (r Role) can(c capability) bool {
	for _, have := range roleCaps[r] {
		if have == c {
			return true
		}
	}
	return false
}

func (r Role) Validate() error {
	if _, ok := roleCaps[r]; !ok {
		return errors.Wrapf(errors.ErrState, "invalid role %d", r)
	}
	return nil
}

func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "admin"
	case RoleContributor:
		return "contributor"
	case RoleRecipient:
		return "recipient"
	}
	return "invalid"
}

// Period is the declared withdrawal limit window. It is stored and
// returned but no code path resets limits per window.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

func (p Period) Validate() error {
	switch p {
	case PeriodDaily, PeriodWeekly, PeriodMonthly:
		return nil
	}
	return errors.Wrapf(errors.ErrState, "invalid period %q", p)
}

// WithdrawalStatus is the lifecycle state of a withdrawal request.
// The only transitions are Pending to Approved and Pending to
// Rejected. Completed is part of the stored vocabulary but no
// operation produces it.
type WithdrawalStatus string

const (
	WithdrawalPending   WithdrawalStatus = "pending"
	WithdrawalApproved  WithdrawalStatus = "approved"
	WithdrawalRejected  WithdrawalStatus = "rejected"
	WithdrawalCompleted WithdrawalStatus = "completed"
)

func (s WithdrawalStatus) Validate() error {
	switch s {
	case WithdrawalPending, WithdrawalApproved, WithdrawalRejected, WithdrawalCompleted:
		return nil
	}
	return errors.Wrapf(errors.ErrState, "invalid withdrawal status %q", s)
}

// Terminal returns true once no further transition is permitted.
func (s WithdrawalStatus) Terminal() bool {
	return s != WithdrawalPending
}

var _ orm.Model = (*Pool)(nil)

// Pool is one custodial fund. The balance field is the source of
// truth; the contribution log is an audit record, not an input to it.
type Pool struct {
	ID               []byte         `json:"id"`
	Name             string         `json:"name"`
	Creator          umoja.Address  `json:"creator"`
	Ticker           string         `json:"token"`
	Balance          int64          `json:"balance"`
	WithdrawalLimit  int64          `json:"withdrawal_limit"`
	WithdrawalPeriod Period         `json:"withdrawal_period"`
	CreatedAt        umoja.UnixTime `json:"created_at"`
}

func (p *Pool) Marshal() ([]byte, error) {
	return json.Marshal(p)
}

func (p *Pool) Unmarshal(raw []byte) error {
	return json.Unmarshal(raw, p)
}

func (p *Pool) Validate() error {
	if len(p.ID) != orm.IDLength {
		return errors.Wrap(errors.ErrInput, "invalid pool id")
	}
	if !isPoolName(p.Name) {
		return errors.Wrapf(errors.ErrInput, "invalid pool name %q", p.Name)
	}
	if err := p.Creator.Validate(); err != nil {
		return errors.Wrap(err, "creator")
	}
	if !coin.IsCC(p.Ticker) {
		return errors.Wrapf(errors.ErrCurrency, "invalid ticker %q", p.Ticker)
	}
	if p.Balance < 0 {
		return errors.Wrap(errors.ErrState, "negative balance")
	}
	if p.WithdrawalLimit <= 0 {
		return errors.Wrap(errors.ErrInput, "withdrawal limit must be positive")
	}
	if err := p.WithdrawalPeriod.Validate(); err != nil {
		return err
	}
	if err := p.CreatedAt.Validate(); err != nil {
		return errors.Wrap(err, "created at")
	}
	return nil
}

// Member is one party of a pool together with its role.
type Member struct {
	Address umoja.Address  `json:"address"`
	Role    Role           `json:"role"`
	AddedAt umoja.UnixTime `json:"added_at"`
}

func (m Member) Validate() error {
	if err := m.Address.Validate(); err != nil {
		return errors.Wrap(err, "address")
	}
	if err := m.Role.Validate(); err != nil {
		return err
	}
	return m.AddedAt.Validate()
}

var _ orm.Model = (*MemberList)(nil)

// MemberList is the full membership of one pool, stored under the
// pool id.
type MemberList struct {
	Members []Member `json:"members"`
}

func (l *MemberList) Marshal() ([]byte, error) {
	return json.Marshal(l)
}

func (l *MemberList) Unmarshal(raw []byte) error {
	return json.Unmarshal(raw, l)
}

func (l *MemberList) Validate() error {
	for _, m := range l.Members {
		if err := m.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Find returns the member with the given address, or nil.
func (l *MemberList) Find(addr umoja.Address) *Member {
	for i := range l.Members {
		if l.Members[i].Address.Equals(addr) {
			return &l.Members[i]
		}
	}
	return nil
}

// Remove drops the member with the given address. It reports whether
// a member was removed.
func (l *MemberList) Remove(addr umoja.Address) bool {
	for i := range l.Members {
		if l.Members[i].Address.Equals(addr) {
			l.Members = append(l.Members[:i], l.Members[i+1:]...)
			return true
		}
	}
	return false
}

// Contribution is an immutable receipt of one deposit. The log is
// append only.
type Contribution struct {
	ID          []byte         `json:"id"`
	Contributor umoja.Address  `json:"contributor"`
	Amount      int64          `json:"amount"`
	Ticker      string         `json:"token"`
	CreatedAt   umoja.UnixTime `json:"created_at"`
}

var _ orm.Model = (*ContributionList)(nil)

// ContributionList is the contribution log of one pool.
type ContributionList struct {
	Contributions []Contribution `json:"contributions"`
}

func (l *ContributionList) Marshal() ([]byte, error) {
	return json.Marshal(l)
}

func (l *ContributionList) Unmarshal(raw []byte) error {
	return json.Unmarshal(raw, l)
}

func (l *ContributionList) Validate() error {
	for _, c := range l.Contributions {
		if len(c.ID) != orm.IDLength {
			return errors.Wrap(errors.ErrInput, "invalid contribution id")
		}
		if c.Amount <= 0 {
			return errors.Wrap(errors.ErrAmount, "non-positive contribution")
		}
	}
	return nil
}

// Withdrawal is one fund release request and its lifecycle record.
type Withdrawal struct {
	ID          []byte           `json:"id"`
	Requester   umoja.Address    `json:"requester"`
	Recipient   umoja.Address    `json:"recipient"`
	Amount      int64            `json:"amount"`
	Ticker      string           `json:"token"`
	Status      WithdrawalStatus `json:"status"`
	CreatedAt   umoja.UnixTime   `json:"created_at"`
	CompletedAt umoja.UnixTime   `json:"completed_at,omitempty"`
}

var _ orm.Model = (*WithdrawalList)(nil)

// WithdrawalList is the withdrawal log of one pool.
type WithdrawalList struct {
	Withdrawals []Withdrawal `json:"withdrawals"`
}

func (l *WithdrawalList) Marshal() ([]byte, error) {
	return json.Marshal(l)
}

func (l *WithdrawalList) Unmarshal(raw []byte) error {
	return json.Unmarshal(raw, l)
}

func (l *WithdrawalList) Validate() error {
	for _, w := range l.Withdrawals {
		if len(w.ID) != orm.IDLength {
			return errors.Wrap(errors.ErrInput, "invalid withdrawal id")
		}
		if w.Amount <= 0 {
			return errors.Wrap(errors.ErrAmount, "non-positive withdrawal")
		}
		if err := w.Status.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Find returns the withdrawal with the given id, or nil.
func (l *WithdrawalList) Find(id []byte) *Withdrawal {
	for i := range l.Withdrawals {
		if bytes.Equal(l.Withdrawals[i].ID, id) {
			return &l.Withdrawals[i]
		}
	}
	return nil
}

var _ orm.Model = (*UserPools)(nil)

// UserPools is the reverse index from a party to the pools it can
// browse, stored under the party address.
type UserPools struct {
	PoolIDs [][]byte `json:"pool_ids"`
}

func (u *UserPools) Marshal() ([]byte, error) {
	return json.Marshal(u)
}

func (u *UserPools) Unmarshal(raw []byte) error {
	return json.Unmarshal(raw, u)
}

func (u *UserPools) Validate() error {
	for _, id := range u.PoolIDs {
		if len(id) != orm.IDLength {
			return errors.Wrap(errors.ErrInput, "invalid pool id")
		}
	}
	return nil
}

func (u *UserPools) add(id []byte) {
	for _, have := range u.PoolIDs {
		if bytes.Equal(have, id) {
			return
		}
	}
	u.PoolIDs = append(u.PoolIDs, id)
}

func (u *UserPools) remove(id []byte) {
	for i, have := range u.PoolIDs {
		if bytes.Equal(have, id) {
			u.PoolIDs = append(u.PoolIDs[:i], u.PoolIDs[i+1:]...)
			return
		}
	}
}

func newPoolBucket() orm.ModelBucket         { return orm.NewModelBucket("pool") }
func newMemberBucket() orm.ModelBucket       { return orm.NewModelBucket("member") }
func newContributionBucket() orm.ModelBucket { return orm.NewModelBucket("contrib") }
func newWithdrawalBucket() orm.ModelBucket   { return orm.NewModelBucket("withdrawal") }
func newUserIndexBucket() orm.ModelBucket    { return orm.NewModelBucket("userpool") }
