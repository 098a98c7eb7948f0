package orch

import (
	"encoding/json"
	"errors"

	"github.com/dkeye/StudyRoom/internal/core"
	"github.com/dkeye/StudyRoom/internal/domain"
	"github.com/rs/zerolog/log"
)

// a join can race with the room's last member leaving; retry on a fresh room
const maxJoinAttempts = 3

// Join puts sid into room, leaving its current room first if different.
// Joining the room it is already in is a no-op.
func (o *Orchestrator) Join(sid domain.ConnID, roomID domain.RoomID) error {
	conn, ok := o.Registry.Get(sid)
	if !ok {
		return ErrNoSession
	}
	if conn.RoomID == roomID {
		return core.ErrAlreadyMember
	}
	if conn.InRoom() {
		if err := o.Leave(sid); err != nil && !errors.Is(err, core.ErrNotJoined) {
			return err
		}
		log.Info().Str("module", "orch").Str("sid", string(sid)).Str("from_room", string(conn.RoomID)).Msg("left previous room")
	}

	join := core.Join(sid, conn.Identity.DisplayName, o.idleStatus())
	for i := 0; i < maxJoinAttempts; i++ {
		room := o.Rooms.GetOrCreate(roomID)
		o.Registry.UpdateRoom(sid, roomID)
		err := o.apply(room, join)
		if errors.Is(err, core.ErrRoomRetired) {
			continue
		}
		if err != nil && !errors.Is(err, core.ErrAlreadyMember) {
			o.Registry.RemoveRoom(sid)
			return err
		}
		o.Metrics.SetRooms(o.Rooms.Len())
		log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(roomID)).Msg("added to room")
		return err
	}
	o.Registry.RemoveRoom(sid)
	return core.ErrRoomRetired
}

// Leave removes sid from its room without closing the connection.
func (o *Orchestrator) Leave(sid domain.ConnID) error {
	roomID, ok := o.Registry.RoomOf(sid)
	if !ok {
		return core.ErrNotJoined
	}
	o.Registry.RemoveRoom(sid)
	room, ok := o.Rooms.Get(roomID)
	if !ok {
		return nil
	}
	err := o.apply(room, core.Leave(sid))
	if errors.Is(err, core.ErrNotMember) {
		return nil
	}
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(roomID)).Msg("removed from room")
	return err
}

func (o *Orchestrator) Chat(sid domain.ConnID, payload json.RawMessage) error {
	return o.inRoom(sid, core.Chat(sid, payload))
}

func (o *Orchestrator) ToggleChat(sid domain.ConnID, enabled bool) error {
	return o.inRoom(sid, core.ToggleChat(sid, enabled))
}

func (o *Orchestrator) TransferHost(sid, target domain.ConnID) error {
	return o.inRoom(sid, core.TransferHost(sid, target))
}

func (o *Orchestrator) SyncStatus(sid domain.ConnID, status string) error {
	return o.inRoom(sid, core.SyncStatus(sid, status))
}

// Rename validates name and updates the sender's display name in its room.
func (o *Orchestrator) Rename(sid domain.ConnID, name string) error {
	name, err := domain.NormalizeDisplayName(name)
	if err != nil {
		return err
	}
	return o.inRoom(sid, core.Rename(sid, name))
}
