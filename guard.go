package amp

import (
	"context"
	"sync/atomic"
	"time"
)

// outcome is the single terminal result of a guarded call.
type outcome struct {
	resp *Response
	err  error
}

// guard races one transport call against a deadline. Whichever settles
// first wins; the other result is discarded.
type guard struct {
	completed atomic.Bool
	done      chan outcome
	onSettle  func(outcome)
}

// runGuarded invokes call and returns exactly one outcome: the transport's,
// or ErrEarlyTermination when deadline elapses first. onSettle, if set, runs
// once for the winning outcome before runGuarded returns. The context handed
// to call is cancelled as soon as the race is decided, which abandons a
// losing transport call.
func runGuarded(ctx context.Context, deadline time.Duration, call func(context.Context) (*Response, error), onSettle func(outcome)) outcome {
	g := &guard{
		done:     make(chan outcome, 1),
		onSettle: onSettle,
	}

	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if deadline > 0 {
		timer := time.AfterFunc(deadline, func() {
			g.settle(outcome{err: ErrEarlyTermination})
		})
		defer timer.Stop()
	}

	go func() {
		resp, err := call(callCtx)
		g.settle(outcome{resp: resp, err: err})
	}()

	return <-g.done
}

// settle delivers o if no other outcome has been delivered yet.
func (g *guard) settle(o outcome) bool {
	if !g.completed.CompareAndSwap(false, true) {
		return false
	}
	if g.onSettle != nil {
		g.onSettle(o)
	}
	g.done <- o
	return true
}
