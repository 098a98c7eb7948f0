// Package orch coordinates rooms: it resolves the sender's room, applies a
// core transition under the room lock and delivers the resulting effects.
package orch

import (
	"encoding/json"
	"errors"

	"github.com/dkeye/StudyRoom/internal/app"
	"github.com/dkeye/StudyRoom/internal/core"
	"github.com/dkeye/StudyRoom/internal/domain"
	"github.com/dkeye/StudyRoom/internal/metrics"
	"github.com/rs/zerolog/log"
)

const DefaultIdleStatus = "idle"

// ErrNoSession is returned for events from a connection the registry does not know.
var ErrNoSession = errors.New("no session")

type Orchestrator struct {
	Registry   *app.Registry
	Rooms      core.RoomDirectory
	Policy     app.Policy
	Metrics    *metrics.Metrics
	IdleStatus string
}

func (o *Orchestrator) idleStatus() string {
	if o.IdleStatus == "" {
		return DefaultIdleStatus
	}
	return o.IdleStatus
}

// Connect registers an admitted connection. It is not in any room yet.
func (o *Orchestrator) Connect(conn domain.Connection, sig core.SignalConnection, cancel func()) {
	o.Registry.Bind(conn, sig, cancel)
	o.Metrics.SetConnections(o.Registry.Len())
}

// OnDisconnect removes the connection from its room and forgets it.
func (o *Orchestrator) OnDisconnect(sid domain.ConnID) {
	if err := o.Leave(sid); err != nil && !errors.Is(err, core.ErrNotJoined) {
		log.Warn().Err(err).Str("module", "orch").Str("sid", string(sid)).Msg("disconnect cleanup")
	}
	o.Registry.Unbind(sid)
	o.Metrics.SetConnections(o.Registry.Len())
}

// delivery is the Sink for one Apply call. Slow members are only recorded
// here; the policy runs after the room lock is released.
type delivery struct {
	reg  *app.Registry
	slow []domain.ConnID
}

func (d *delivery) Deliver(effects []core.Effect) {
	for _, e := range effects {
		frame, err := json.Marshal(e.Msg)
		if err != nil {
			log.Error().Err(err).Str("module", "orch").Str("type", e.Msg.Type).Msg("marshal effect")
			continue
		}
		for _, to := range e.To {
			sig, ok := d.reg.Signal(to)
			if !ok {
				continue
			}
			if err := sig.TrySend(frame); err != nil {
				d.slow = append(d.slow, to)
			}
		}
	}
}

// apply runs t on room and takes care of everything that must happen outside
// the room lock: backpressure policy, eviction and directory cleanup.
func (o *Orchestrator) apply(room *core.Room, t core.Transition) error {
	d := &delivery{reg: o.Registry}
	err := room.Apply(t, d)
	id := room.ID()

	o.onBackPressure(id, d.slow)
	if errors.Is(err, core.ErrInvariant) {
		o.evict(id)
	}
	if o.Rooms.RemoveIfEmpty(id) {
		o.Metrics.SetRooms(o.Rooms.Len())
	}
	return err
}

func (o *Orchestrator) onBackPressure(room domain.RoomID, slow []domain.ConnID) {
	for _, sid := range slow {
		o.Metrics.Dropped(metrics.ReasonBackpressure)
		if o.Policy == nil {
			continue
		}
		switch o.Policy.OnBackPressure(room, sid) {
		case app.KickMember:
			log.Warn().Str("module", "orch").Str("sid", string(sid)).Str("room", string(room)).Msg("kicking slow member")
			o.Registry.Cancel(sid)
		case app.NoAction:
		}
	}
}

// evict detaches every connection still pointing at a retired room.
func (o *Orchestrator) evict(room domain.RoomID) {
	for _, sid := range o.Registry.MembersOfRoom(room) {
		o.Registry.RemoveRoom(sid)
		log.Warn().Str("module", "orch").Str("sid", string(sid)).Str("room", string(room)).Msg("evicted from corrupted room")
	}
}

// inRoom applies t to the sender's current room.
func (o *Orchestrator) inRoom(sid domain.ConnID, t core.Transition) error {
	roomID, ok := o.Registry.RoomOf(sid)
	if !ok {
		o.Metrics.Dropped(metrics.ReasonNotJoined)
		return core.ErrNotJoined
	}
	room, ok := o.Rooms.Get(roomID)
	if !ok {
		o.Registry.RemoveRoom(sid)
		o.Metrics.Dropped(metrics.ReasonNotJoined)
		return core.ErrNotJoined
	}
	err := o.apply(room, t)
	if errors.Is(err, core.ErrPermissionDenied) {
		o.Metrics.Dropped(metrics.ReasonPermission)
	}
	return err
}
