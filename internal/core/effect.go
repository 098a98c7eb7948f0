package core

import (
	"encoding/json"

	"github.com/dkeye/StudyRoom/internal/domain"
)

// Outbound message types.
const (
	TypeRoomSnapshot = "room-snapshot"
	TypePeerArrived  = "peer-arrived"
	TypePeerDeparted = "peer-departed"
	TypeChatMessage  = "chat-message"
	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeICECandidate = "ice-candidate"
)

// IsSignal reports whether typ is one of the relayed negotiation kinds.
func IsSignal(typ string) bool {
	switch typ {
	case TypeOffer, TypeAnswer, TypeICECandidate:
		return true
	}
	return false
}

// Snapshot is the full state of a room as sent to its members.
type Snapshot struct {
	ID           domain.RoomID            `json:"id"`
	Members      []domain.ConnID          `json:"members"`
	Host         domain.ConnID            `json:"host,omitempty"`
	ChatEnabled  bool                     `json:"chatEnabled"`
	DisplayNames map[domain.ConnID]string `json:"displayNames"`
	Statuses     map[domain.ConnID]string `json:"statuses"`
}

// Message is the outbound envelope. Payload is never inspected.
type Message struct {
	Type    string          `json:"type"`
	Room    *Snapshot       `json:"room,omitempty"`
	Peer    domain.ConnID   `json:"peer,omitempty"`
	From    domain.ConnID   `json:"from,omitempty"`
	Target  domain.ConnID   `json:"target,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Effect is one outbound message addressed to an explicit set of connections.
// Transitions return effects instead of doing I/O.
type Effect struct {
	To  []domain.ConnID
	Msg Message
}

// Sink delivers effects. Room.Apply calls it inside the room's critical
// section, so implementations must not block and must not call back into the room.
type Sink interface {
	Deliver(effects []Effect)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func([]Effect)

func (f SinkFunc) Deliver(effects []Effect) { f(effects) }
