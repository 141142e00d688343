package p2p

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Retry/backoff/expiry bounds for queued PARENT_REQUEST application
// messages (spec §4.7).
const (
	ParentRequestMaxRetries = 5
	parentRequestBackoffMin = 2 * time.Second
	parentRequestBackoffMax = 3 * time.Second
	parentRequestExpiry     = 5 * time.Minute
)

// pendingParentRequest tracks one outstanding child->parent attachment ask.
type pendingParentRequest struct {
	payload   ParentRequestPayload
	attempts  int
	queuedAt  time.Time
	lastTried time.Time
}

// ParentRequestQueue resends PARENT_REQUEST messages to every connected
// session until Resolve is called for the child, the retry budget is
// exhausted, or the request has been queued longer than
// parentRequestExpiry (spec §4.7's application-message queueing).
// Host.Dispatch does not call Resolve: inbound PARENT_RESPONSE messages
// are dropped there.
type ParentRequestQueue struct {
	host *Host

	mu      sync.Mutex
	pending map[string]*pendingParentRequest // keyed by childId
	backoff func(attempt int) time.Duration
}

// NewParentRequestQueue builds an empty queue bound to host.
func NewParentRequestQueue(host *Host) *ParentRequestQueue {
	return &ParentRequestQueue{
		host:    host,
		pending: make(map[string]*pendingParentRequest),
		backoff: defaultParentBackoff,
	}
}

func defaultParentBackoff(attempt int) time.Duration {
	step := parentRequestBackoffMax - parentRequestBackoffMin
	if attempt <= 0 {
		return parentRequestBackoffMin
	}
	// Linear ramp within [min,max], capped at max.
	d := parentRequestBackoffMin + time.Duration(attempt)*step/time.Duration(ParentRequestMaxRetries)
	if d > parentRequestBackoffMax {
		return parentRequestBackoffMax
	}
	return d
}

// Enqueue adds or refreshes a pending PARENT_REQUEST for childId.
func (q *ParentRequestQueue) Enqueue(childID, parentID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := time.Now()
	if existing, ok := q.pending[childID]; ok {
		existing.payload.ParentID = parentID
		return
	}
	q.pending[childID] = &pendingParentRequest{
		payload:  ParentRequestPayload{ChildID: childID, ParentID: parentID},
		queuedAt: now,
	}
}

// Resolve removes childId's pending request.
func (q *ParentRequestQueue) Resolve(childID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.pending, childID)
}

// Run periodically resends due requests and drops expired/exhausted ones
// until ctx is done.
func (q *ParentRequestQueue) Run(ctx context.Context) {
	ticker := time.NewTicker(parentRequestBackoffMin)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.tick()
		}
	}
}

func (q *ParentRequestQueue) tick() {
	now := time.Now()
	var toSend []ParentRequestPayload
	var expired []string

	q.mu.Lock()
	for childID, req := range q.pending {
		if now.Sub(req.queuedAt) > parentRequestExpiry {
			expired = append(expired, childID)
			continue
		}
		if req.attempts >= ParentRequestMaxRetries {
			expired = append(expired, childID)
			continue
		}
		if !req.lastTried.IsZero() && now.Sub(req.lastTried) < q.backoff(req.attempts) {
			continue
		}
		req.attempts++
		req.lastTried = now
		toSend = append(toSend, req.payload)
	}
	for _, childID := range expired {
		delete(q.pending, childID)
	}
	q.mu.Unlock()

	for _, payload := range toSend {
		env, err := envelopeFor(MsgParentRequest, payload)
		if err != nil {
			continue
		}
		// Sent directly rather than through Host.Broadcast, whose gossip
		// dedup cache would drop every resend of an identical envelope.
		for _, s := range q.host.Sessions() {
			_ = s.Send(env)
		}
	}
}

func envelopeFor(kind MessageType, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: kind, Payload: raw}, nil
}
