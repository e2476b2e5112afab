package browser

import (
	"context"
	"time"
)

// combineContext derives a context from session (carrying the protocol
// connection values and lifetime) that is additionally canceled when op
// is. Protocol actions must run on a context descending from the session
// context or chromedp cannot find the connection.
func combineContext(session, op context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(session)

	go func() {
		select {
		case <-op.Done():
			cancel()
		case <-combined.Done():
		}
	}()

	return combined, cancel
}

// valueOnlyContext inherits values from its parent but ignores the
// parent's deadline and cancellation.
type valueOnlyContext struct {
	context.Context
}

func (valueOnlyContext) Deadline() (deadline time.Time, ok bool) { return }
func (valueOnlyContext) Done() <-chan struct{}                   { return nil }
func (valueOnlyContext) Err() error                              { return nil }

// detach returns a context that keeps ctx's values (including the
// protocol connection) but outlives its cancellation. Used for cleanup
// commands that must still reach the browser after the operation that
// triggered them has been canceled.
func detach(ctx context.Context) context.Context {
	return valueOnlyContext{ctx}
}
