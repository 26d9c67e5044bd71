package testutil

import (
	"context"
	"sync"

	"github.com/roach88/conformity/internal/ir"
)

// Gate is a custom-rule predicate that blocks until released.
//
// Register Gate.Predicate under a hook name, add a Custom rule using that
// hook, and the analysis parks inside rule evaluation. Tests use it to
// hold analyses in Processing while they assert on admission, progress
// or cancellation.
//
//	gate := testutil.NewGate()
//	eng := rules.New(rules.WithPredicate("gate", gate.Predicate))
//	...
//	<-gate.Entered()  // an analysis is parked
//	gate.Release()    // let every parked analysis continue
type Gate struct {
	entered chan string
	release chan struct{}
	once    sync.Once

	// Fail is the predicate outcome after release.
	Fail bool
}

// NewGate creates a closed gate. Entered is buffered for up to 64 waiters.
func NewGate() *Gate {
	return &Gate{
		entered: make(chan string, 64),
		release: make(chan struct{}),
	}
}

// Predicate blocks until Release or ctx is done. It reports the id of the
// rule it parks on through Entered.
//
// Matches rules.Predicate.
func (g *Gate) Predicate(ctx context.Context, rule ir.Rule, _ string) (bool, error) {
	select {
	case g.entered <- rule.ID:
	default:
	}

	select {
	case <-g.release:
		return g.Fail, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Entered delivers one value per predicate call that reached the gate.
func (g *Gate) Entered() <-chan string {
	return g.entered
}

// Release opens the gate for current and future callers. Safe to call
// more than once.
func (g *Gate) Release() {
	g.once.Do(func() { close(g.release) })
}
