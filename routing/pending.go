package routing

import (
	"log/slog"
	"sync"
	"time"

	"github.com/glimte/courier-go/contracts"
)

// pendingRequest is one registered request awaiting its reply.
type pendingRequest struct {
	id     string
	future *ReplyFuture
	timer  *time.Timer
	ttl    time.Duration
}

// PendingTable registers requests by correlation id, resolves them when a
// matching reply arrives, and evicts them when their TTL elapses. Settlement
// is first-writer-wins: whichever of reply, timer, or caller-driven eviction
// removes the entry from the table settles its future; the losing paths
// observe the entry absent and do nothing.
type PendingTable struct {
	mu        sync.Mutex
	pending   map[string]*pendingRequest
	onTimeout TimeoutListener
	logger    *slog.Logger
}

// PendingTableOption configures the PendingTable
type PendingTableOption func(*PendingTable)

// WithPendingLogger sets the logger
func WithPendingLogger(logger *slog.Logger) PendingTableOption {
	return func(t *PendingTable) {
		t.logger = logger
	}
}

// WithTimeoutListener sets the listener notified on timer eviction
func WithTimeoutListener(listener TimeoutListener) PendingTableOption {
	return func(t *PendingTable) {
		t.onTimeout = listener
	}
}

// NewPendingTable creates a new pending request table
func NewPendingTable(options ...PendingTableOption) *PendingTable {
	t := &PendingTable{
		pending: make(map[string]*pendingRequest),
		logger:  slog.Default(),
	}

	for _, opt := range options {
		opt(t)
	}

	return t
}

// Register inserts a new pending request under id and arms its timer. The
// returned future settles when the entry is resolved by a reply, evicted by
// the timer, or unregistered by the caller.
func (t *PendingTable) Register(id string, ttl time.Duration) (*ReplyFuture, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.pending[id]; exists {
		return nil, &DuplicateIDError{ID: id}
	}

	req := &pendingRequest{
		id:     id,
		future: newReplyFuture(),
		ttl:    ttl,
	}
	req.timer = time.AfterFunc(ttl, func() {
		t.expire(id)
	})
	t.pending[id] = req

	return req.future, nil
}

// CallByID settles the pending request matching id with reply and removes
// it. An absent id is a no-op: a late or duplicate delivery must not crash
// the router.
func (t *PendingTable) CallByID(id string, reply *contracts.Envelope) bool {
	req, ok := t.take(id)
	if !ok {
		t.logger.Debug("dropping reply with no pending request",
			"correlationId", id,
		)
		return false
	}

	req.future.complete(reply)
	return true
}

// Unregister evicts the pending request matching id and settles it with a
// rejection carrying cause. Used when sending the original request failed.
func (t *PendingTable) Unregister(id string, cause error) bool {
	req, ok := t.take(id)
	if !ok {
		return false
	}

	req.future.fail(cause)
	return true
}

// Len returns the number of requests currently pending.
func (t *PendingTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// take removes and returns the entry for id, cancelling its timer. Exactly
// one caller wins the removal; this is the settlement guard.
func (t *PendingTable) take(id string) (*pendingRequest, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	req, ok := t.pending[id]
	if !ok {
		return nil, false
	}

	delete(t.pending, id)
	if req.timer != nil {
		req.timer.Stop()
	}
	return req, true
}

// expire is the timer path. If a reply or unregister already took the entry,
// the map lookup misses and nothing happens.
func (t *PendingTable) expire(id string) {
	req, ok := t.take(id)
	if !ok {
		return
	}

	req.future.fail(&RequestTimeoutError{ID: id, TTL: req.ttl})

	t.logger.Warn("request timed out",
		"correlationId", id,
		"ttl", req.ttl,
	)

	if t.onTimeout != nil {
		t.onTimeout(id)
	}
}
