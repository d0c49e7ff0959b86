package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CallStatus is the lifecycle state of a call request.
type CallStatus string

const (
	CallPending  CallStatus = "pending"
	CallAccepted CallStatus = "accepted"
	CallRejected CallStatus = "rejected"
	CallActive   CallStatus = "active"
	CallEnded    CallStatus = "ended"
	CallTimedOut CallStatus = "timed_out"
)

// validTransitions encodes the monotonic call state machine: pending may go
// to accepted, rejected or timed_out, or straight to ended when the whole
// broadcast tears down; accepted goes live; live calls end. Nothing ever
// re-enters pending.
var validTransitions = map[CallStatus][]CallStatus{
	CallPending:  {CallAccepted, CallRejected, CallTimedOut, CallEnded},
	CallAccepted: {CallActive, CallEnded},
	CallActive:   {CallEnded},
}

// CanTransitionTo reports whether moving from s to next is allowed.
func (s CallStatus) CanTransitionTo(next CallStatus) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// CallRequest is a pending request to become an audio source on a broadcast.
type CallRequest struct {
	CallID         uuid.UUID  `json:"call_id"`
	CallerConnID   uuid.UUID  `json:"caller_connection_id"`
	CallerName     string     `json:"caller_name"`
	CallerLocation string     `json:"caller_location,omitempty"`
	RequestedAt    time.Time  `json:"requested_at"`
	Status         CallStatus `json:"status"`
}

func (r *CallRequest) Validate() error {
	if r.CallerName == "" {
		return fmt.Errorf("caller name is required")
	}
	if len(r.CallerName) > 255 {
		return fmt.Errorf("caller name too long")
	}
	return nil
}

// ActiveCall is a caller currently live on the audio mix. AudioChannelID
// references the engine channel allocated on accept and torn down on end.
type ActiveCall struct {
	CallID         uuid.UUID `json:"call_id"`
	CallerConnID   uuid.UUID `json:"caller_connection_id"`
	CallerName     string    `json:"caller_name"`
	AudioChannelID uuid.UUID `json:"audio_channel_id"`
	AcceptedAt     time.Time `json:"accepted_at"`
}

// CallLogEntry is the per-call history row.
type CallLogEntry struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	CallID      uuid.UUID  `json:"call_id" db:"call_id"`
	BroadcastID string     `json:"broadcast_id" db:"broadcast_id"`
	CallerName  string     `json:"caller_name" db:"caller_name"`
	Outcome     CallStatus `json:"outcome" db:"outcome"`
	RequestedAt time.Time  `json:"requested_at" db:"requested_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty" db:"ended_at"`
}
