package routing

import (
	"context"
	"sync"

	"github.com/glimte/courier-go/contracts"
)

// ReplyFuture settles exactly once with either the reply envelope for a
// pending request or the error that evicted it. Duplicate settlement
// attempts are ignored.
type ReplyFuture struct {
	done chan struct{}
	once sync.Once

	mu    sync.Mutex
	reply *contracts.Envelope
	err   error
}

func newReplyFuture() *ReplyFuture {
	return &ReplyFuture{
		done: make(chan struct{}),
	}
}

// complete settles the future with a reply. No-op if already settled.
func (f *ReplyFuture) complete(reply *contracts.Envelope) {
	f.once.Do(func() {
		f.mu.Lock()
		f.reply = reply
		f.mu.Unlock()
		close(f.done)
	})
}

// fail settles the future with an error. No-op if already settled.
func (f *ReplyFuture) fail(err error) {
	f.once.Do(func() {
		f.mu.Lock()
		f.err = err
		f.mu.Unlock()
		close(f.done)
	})
}

// Done returns a channel that is closed once the future settles.
func (f *ReplyFuture) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future settles or ctx is cancelled.
func (f *ReplyFuture) Wait(ctx context.Context) (*contracts.Envelope, error) {
	select {
	case <-f.done:
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.reply, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result returns the settled value and whether the future is done. Before
// settlement it returns (nil, false, nil).
func (f *ReplyFuture) Result() (*contracts.Envelope, bool, error) {
	select {
	case <-f.done:
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.reply, true, f.err
	default:
		return nil, false, nil
	}
}
