// Package loop implements the single-threaded cooperative scheduler
// spec §5 requires: the world model is touched from many goroutines
// (IRC connection readers, the upstream stream reader, timers), but
// every one of those touches is a closure posted onto one channel
// that a single goroutine drains and runs to completion before
// looking at the next. Between posted closures, nothing else can
// observe or mutate shared state — there is exactly one mutator.
//
// This generalizes the teacher repo's own Commands-channel-into-a-
// single-Run-loop shape (internal/core/hub.go, internal/core/client.go)
// from a fixed Command struct to an arbitrary closure, since this
// bridge's "commands" span IRC dispatch, upstream events, and timer
// fires rather than one fixed message type.
package loop

import "context"

// Loop drains posted work on a single goroutine.
type Loop struct {
	work chan func()
}

// New returns a Loop with the given pending-work buffer size.
func New(buffer int) *Loop {
	return &Loop{work: make(chan func(), buffer)}
}

// Post enqueues fn to run on the loop goroutine and returns
// immediately without waiting for it to run.
func (l *Loop) Post(fn func()) {
	l.work <- fn
}

// PostSync enqueues fn and blocks the calling goroutine until it has
// finished running on the loop goroutine. Used when the caller needs
// a result from, or must order itself after, a world-touching
// closure — e.g. the upstream session populating the world during
// bootstrap before it can report self_id back to its own state
// machine.
func (l *Loop) PostSync(fn func()) {
	done := make(chan struct{})
	l.work <- func() {
		fn()
		close(done)
	}
	<-done
}

// Run drains posted work until ctx is cancelled. Call this from
// exactly one goroutine — the loop's entire correctness argument rests
// on there being only one.
func (l *Loop) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-l.work:
			fn()
		}
	}
}
