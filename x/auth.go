// Package x holds the interfaces shared by the ledger extensions.
//
// Every extension that mutates state receives an Authenticator at
// construction time and uses it to verify that the party named in the
// call actually authorized it.
package x

import (
	"github.com/umoja-network/umoja"
)

// Authenticator is an interface we can use to extract authentication
// info from the context. This should be passed into the constructor of
// controllers, so we can plug in another authentication system, rather
// than hard-coding one implementation for all extensions.
type Authenticator interface {
	// GetConditions reveals all Conditions fulfilled
	GetConditions(umoja.Context) []umoja.Condition

	// HasAddress checks if any condition matches this address
	HasAddress(umoja.Context, umoja.Address) bool
}

// MultiAuth chains together many Authenticators into one
type MultiAuth struct {
	impls []Authenticator
}

var _ Authenticator = MultiAuth{}

// ChainAuth groups together a series of Authenticator
func ChainAuth(impls ...Authenticator) MultiAuth {
	return MultiAuth{impls}
}

// GetConditions combines all Conditions from all Authenticators
func (m MultiAuth) GetConditions(ctx umoja.Context) []umoja.Condition {
	var res []umoja.Condition
	for _, impl := range m.impls {
		add := impl.GetConditions(ctx)
		if len(add) > 0 {
			res = append(res, add...)
		}
	}
	return res
}

// HasAddress returns true iff any Authenticator supports this
func (m MultiAuth) HasAddress(ctx umoja.Context, addr umoja.Address) bool {
	for _, impl := range m.impls {
		if impl.HasAddress(ctx, addr) {
			return true
		}
	}
	return false
}
