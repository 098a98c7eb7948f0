package domain

type (
	RoomID string
	ConnID string
)

// Connection is the per-connection record owned by the transport session.
// RoomID is empty while the connection is not in a room.
type Connection struct {
	ID       ConnID
	Identity Identity
	RoomID   RoomID
}

func (c Connection) InRoom() bool { return c.RoomID != "" }
