// Package umojatest provides mocks and helpers shared by the test
// suites of all extensions.
package umojatest

import (
	"context"
	"fmt"

	"github.com/umoja-network/umoja"
)

// Auth is a mock implementing x.Authenticator interface.
//
// This structure authenticates any of the referenced conditions.
// You can use either Signer or Signers (or both) attributes to
// reference conditions. Each time all signers (regardless which
// attribute) are considered.
type Auth struct {
	// Signer represents an authentication of a single signer. This is
	// a convenience attribute when creating an authentication method
	// for a single signer.
	Signer umoja.Condition

	// Signers represents an authentication of multiple signers.
	Signers []umoja.Condition
}

func (a *Auth) GetConditions(umoja.Context) []umoja.Condition {
	if a.Signer != nil {
		return append(a.Signers, a.Signer)
	}
	return a.Signers
}

func (a *Auth) HasAddress(ctx umoja.Context, addr umoja.Address) bool {
	for _, s := range a.Signers {
		if addr.Equals(s.Address()) {
			return true
		}
	}
	if a.Signer == nil {
		return false
	}
	return addr.Equals(a.Signer.Address())
}

// CtxAuth is a mock implementing x.Authenticator interface.
//
// This implementation is using context to store and retrieve
// conditions.
type CtxAuth struct {
	// Key used to set and retrieve conditions from the context. For
	// convenience only string type keys are allowed.
	Key string
}

func (a *CtxAuth) SetConditions(ctx umoja.Context, permissions ...umoja.Condition) umoja.Context {
	return context.WithValue(ctx, ctxAuthKey(a.Key), permissions)
}

func (a *CtxAuth) GetConditions(ctx umoja.Context) []umoja.Condition {
	val := ctx.Value(ctxAuthKey(a.Key))
	if val == nil {
		return nil
	}
	conds, ok := val.([]umoja.Condition)
	if !ok {
		panic(fmt.Sprintf("instead of []umoja.Condition got %T", val))
	}
	return conds
}

func (a *CtxAuth) HasAddress(ctx umoja.Context, addr umoja.Address) bool {
	for _, s := range a.GetConditions(ctx) {
		if addr.Equals(s.Address()) {
			return true
		}
	}
	return false
}

type ctxAuthKey string
