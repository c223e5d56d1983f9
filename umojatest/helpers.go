package umojatest

import (
	"context"
	"crypto/rand"
	"time"

	"github.com/umoja-network/umoja"
)

// NewCondition returns a random condition, unique for every call. A
// distinct condition hashes to a distinct address, which is all the
// engines care about.
func NewCondition() umoja.Condition {
	data := make([]byte, 32)
	if _, err := rand.Read(data); err != nil {
		panic(err)
	}
	return umoja.NewCondition("test", "random", data)
}

// Ctx returns a context with the given block time set, so controllers
// that read timestamps do not error out.
func Ctx(at time.Time) umoja.Context {
	return umoja.WithBlockTime(context.Background(), at)
}
