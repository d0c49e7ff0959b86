package models

import (
	"time"

	"github.com/google/uuid"
)

// Role describes what a connection is doing inside a broadcast.
type Role string

const (
	RoleBroadcaster Role = "broadcaster"
	RoleListener    Role = "listener"
	RoleCaller      Role = "caller"
)

// Connection represents one transport endpoint's membership in the system.
// BroadcastID is empty until the connection joins a broadcast; a connection
// belongs to at most one broadcast at a time.
type Connection struct {
	ID          uuid.UUID `json:"id"`
	BroadcastID string    `json:"broadcast_id,omitempty"`
	Role        Role      `json:"role,omitempty"`
	ConnectedAt time.Time `json:"connected_at"`
}
