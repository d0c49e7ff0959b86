package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// BroadcasterInfo is the display metadata supplied by the identity service.
type BroadcasterInfo struct {
	DisplayName string `json:"display_name"`
	StationName string `json:"station_name"`
}

func (b *BroadcasterInfo) Validate() error {
	if b.DisplayName == "" {
		return fmt.Errorf("display name is required")
	}
	if b.StationName == "" {
		return fmt.Errorf("station name is required")
	}
	return nil
}

// BroadcastStats is the per-broadcast counter block carried in broadcast-info
// events and persisted when the session ends.
type BroadcastStats struct {
	CurrentListeners int `json:"current_listeners"`
	PeakListeners    int `json:"peak_listeners"`
	TotalCalls       int `json:"total_calls"`
	TotalMessages    int `json:"total_messages"`
}

// BroadcastSummary is the directory view of a live broadcast.
type BroadcastSummary struct {
	ID          string          `json:"id"`
	Broadcaster BroadcasterInfo `json:"broadcaster"`
	IsLive      bool            `json:"is_live"`
	StartedAt   time.Time       `json:"started_at"`
	Listeners   int             `json:"listeners"`
	QueueLength int             `json:"queue_length"`
	ActiveCalls int             `json:"active_calls"`
}

// JoinResult is returned to a listener joining a broadcast.
type JoinResult struct {
	HasOffer    bool            `json:"has_offer"`
	Broadcaster BroadcasterInfo `json:"broadcaster"`
	Stats       BroadcastStats  `json:"stats"`
}

// BroadcastSession is the history row written when a broadcast finishes.
type BroadcastSession struct {
	ID            uuid.UUID  `json:"id" db:"id"`
	BroadcastID   string     `json:"broadcast_id" db:"broadcast_id"`
	StationName   string     `json:"station_name" db:"station_name"`
	DisplayName   string     `json:"display_name" db:"display_name"`
	PeakListeners int        `json:"peak_listeners" db:"peak_listeners"`
	TotalCalls    int        `json:"total_calls" db:"total_calls"`
	StartedAt     time.Time  `json:"started_at" db:"started_at"`
	EndedAt       *time.Time `json:"ended_at,omitempty" db:"ended_at"`
	EndReason     string     `json:"end_reason" db:"end_reason"`
}
