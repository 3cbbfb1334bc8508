package obsws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

type requestOutcome struct {
	data json.RawMessage
	err  error
}

// pendingRequest is an in-flight Request waiting for its RequestResponse.
type pendingRequest struct {
	id          string
	requestType string
	sentAt      time.Time
	timer       *time.Timer
	done        chan requestOutcome
}

// correlator matches RequestResponse frames to pending requests by id.
// Every completion path removes the entry under mu before delivering, so a
// request completes exactly once.
type correlator struct {
	mu       sync.Mutex
	pending  map[string]*pendingRequest
	closed   error
	observer Observer
}

func newCorrelator(observer Observer) *correlator {
	if observer == nil {
		observer = nopObserver{}
	}
	return &correlator{
		pending:  make(map[string]*pendingRequest),
		observer: observer,
	}
}

// register creates a pending entry whose timer rejects it after timeout.
func (c *correlator) register(requestType string, timeout time.Duration) (*pendingRequest, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed != nil {
		return nil, &ConnectivityError{Op: requestType, Err: c.closed}
	}

	id := uuid.NewString()
	for c.pending[id] != nil {
		id = uuid.NewString()
	}

	p := &pendingRequest{
		id:          id,
		requestType: requestType,
		sentAt:      time.Now(),
		done:        make(chan requestOutcome, 1),
	}
	p.timer = time.AfterFunc(timeout, func() {
		c.complete(id, requestOutcome{err: &RequestTimeoutError{
			RequestType: requestType,
			RequestID:   id,
			Timeout:     timeout,
		}}, "timeout")
	})
	c.pending[id] = p
	return p, nil
}

// resolve completes the request matching resp. It returns false when no
// request with that id is pending (late, duplicate, or foreign responses).
func (c *correlator) resolve(resp RequestResponse) bool {
	if resp.RequestStatus.Result {
		return c.complete(resp.RequestID, requestOutcome{data: resp.ResponseData}, "success")
	}
	return c.complete(resp.RequestID, requestOutcome{err: &RemoteRejectionError{
		RequestType: resp.RequestType,
		Code:        resp.RequestStatus.Code,
		Comment:     resp.RequestStatus.Comment,
	}}, "rejected")
}

// cancel removes id with err as its outcome, if it is still pending.
func (c *correlator) cancel(id string, err error) bool {
	return c.complete(id, requestOutcome{err: err}, "cancelled")
}

func (c *correlator) complete(id string, out requestOutcome, result string) bool {
	c.mu.Lock()
	p, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	if !ok {
		return false
	}

	p.timer.Stop()
	c.observer.RequestCompleted(p.requestType, result, time.Since(p.sentAt))
	p.done <- out
	return true
}

// rejectAll fails every pending request with a ConnectivityError wrapping
// cause and refuses further registrations. It returns the number rejected.
func (c *correlator) rejectAll(cause error) int {
	c.mu.Lock()
	if c.closed == nil {
		c.closed = cause
	}
	pending := c.pending
	c.pending = make(map[string]*pendingRequest)
	c.mu.Unlock()

	for _, p := range pending {
		p.timer.Stop()
		c.observer.RequestCompleted(p.requestType, "disconnected", time.Since(p.sentAt))
		p.done <- requestOutcome{err: &ConnectivityError{Op: p.requestType, Err: cause}}
	}
	return len(pending)
}

func (c *correlator) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
