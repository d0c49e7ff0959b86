package station

import (
	"time"

	"github.com/google/uuid"

	"github.com/aircast/backend/internal/models"
)

// callQueue is the ordered set of pending call requests for one broadcast.
// It is not safe for concurrent use; the owning broadcast's lock serializes
// access.
type callQueue struct {
	pending []*models.CallRequest
}

// push appends a request to the tail and returns its 0-based position.
func (q *callQueue) push(req *models.CallRequest) int {
	q.pending = append(q.pending, req)
	return len(q.pending) - 1
}

// get returns the pending request with the given id, or nil.
func (q *callQueue) get(callID uuid.UUID) *models.CallRequest {
	for _, req := range q.pending {
		if req.CallID == callID {
			return req
		}
	}
	return nil
}

// remove takes the request with the given id out of the queue and returns
// it, or nil if it is not pending.
func (q *callQueue) remove(callID uuid.UUID) *models.CallRequest {
	for i, req := range q.pending {
		if req.CallID == callID {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			return req
		}
	}
	return nil
}

// removeByConn removes and returns the pending request submitted by the
// given connection, or nil.
func (q *callQueue) removeByConn(connID uuid.UUID) *models.CallRequest {
	for i, req := range q.pending {
		if req.CallerConnID == connID {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			return req
		}
	}
	return nil
}

// position returns the current 0-based index of the given call among
// pending requests, or -1. Positions are recomputed on every query because
// earlier entries may have been accepted, rejected or expired.
func (q *callQueue) position(callID uuid.UUID) int {
	for i, req := range q.pending {
		if req.CallID == callID {
			return i
		}
	}
	return -1
}

// expire removes every pending request older than maxAge relative to now
// and returns the removed entries in queue order.
func (q *callQueue) expire(now time.Time, maxAge time.Duration) []*models.CallRequest {
	var expired []*models.CallRequest
	kept := q.pending[:0]
	for _, req := range q.pending {
		if now.Sub(req.RequestedAt) > maxAge {
			expired = append(expired, req)
		} else {
			kept = append(kept, req)
		}
	}
	q.pending = kept
	return expired
}

// drain empties the queue and returns everything that was pending.
func (q *callQueue) drain() []*models.CallRequest {
	drained := q.pending
	q.pending = nil
	return drained
}

func (q *callQueue) len() int { return len(q.pending) }
