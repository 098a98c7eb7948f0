package core

import (
	"sync"

	"github.com/dkeye/StudyRoom/internal/domain"
	"github.com/rs/zerolog/log"
)

// Room is a threadsafe in-memory room.
// A room retires the moment its last member leaves and never accepts a
// transition afterwards; the directory replaces retired rooms on the next join.
type Room struct {
	mu      sync.Mutex
	state   State
	retired bool
}

func NewRoom(id domain.RoomID) *Room {
	return &Room{state: newState(id)}
}

func (r *Room) ID() domain.RoomID { return r.state.ID }

// Apply runs t and hands its effects to sink, both inside the room's critical
// section. A transition that breaks an invariant retires the room.
func (r *Room) Apply(t Transition, sink Sink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.retired {
		return ErrRoomRetired
	}

	effects, err := t(&r.state)
	if verr := r.state.Validate(); verr != nil {
		log.Error().Err(verr).Str("module", "core.room").Str("room", string(r.state.ID)).Msg("retiring corrupted room")
		r.retired = true
		return verr
	}
	if len(r.state.Members) == 0 {
		r.retired = true
	}
	if len(effects) > 0 && sink != nil {
		sink.Deliver(effects)
	}
	return err
}

// Snapshot reports the current state, or false if the room is retired.
func (r *Room) Snapshot() (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.retired {
		return Snapshot{}, false
	}
	return r.state.Snapshot(), true
}

func (r *Room) MemberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.state.Members)
}

// Retired reports whether the room is empty for good.
func (r *Room) Retired() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.retired
}

// Info is a cheap summary used for listings.
func (r *Room) Info() RoomInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RoomInfo{ID: r.state.ID, MemberCount: len(r.state.Members), ChatEnabled: r.state.ChatEnabled}
}
