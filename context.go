package umoja

import (
	"context"
	"time"

	"github.com/umoja-network/umoja/errors"
)

type contextKey int

const (
	contextKeyTime contextKey = iota
)

// Context is just a long-winded way to say "context.Context".
// It is imported by all the extension packages, so alias it here.
type Context = context.Context

// WithBlockTime sets the timestamp that all operations within this
// call consider the current moment. The host is expected to provide a
// monotonic source.
func WithBlockTime(ctx Context, t time.Time) Context {
	return context.WithValue(ctx, contextKeyTime, t)
}

// BlockTime returns the timestamp declared for this call. An error is
// returned if the context was not initialized with a time, because a
// ledger must never fall back to a wall clock on its own.
func BlockTime(ctx Context) (time.Time, error) {
	val, ok := ctx.Value(contextKeyTime).(time.Time)
	if !ok {
		return time.Time{}, errors.Wrap(errors.ErrHuman, "block time not present in the context")
	}
	return val, nil
}

// IsExpired returns true if given time is in the past as compared to
// the "now" declared for the context. Expiration is inclusive.
func IsExpired(ctx Context, t UnixTime) (bool, error) {
	now, err := BlockTime(ctx)
	if err != nil {
		return false, err
	}
	return t <= AsUnixTime(now), nil
}
