package orch

import (
	"encoding/json"
	"fmt"

	"github.com/dkeye/StudyRoom/internal/core"
	"github.com/dkeye/StudyRoom/internal/domain"
	"github.com/dkeye/StudyRoom/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Relay forwards a negotiation message to target only, regardless of room
// membership. The payload is passed through untouched.
func (o *Orchestrator) Relay(from domain.ConnID, kind string, target domain.ConnID, payload json.RawMessage) error {
	if !core.IsSignal(kind) {
		return fmt.Errorf("relay: unsupported kind %q", kind)
	}
	sig, ok := o.Registry.Signal(target)
	if !ok {
		o.Metrics.Dropped(metrics.ReasonUnknownPeer)
		return core.ErrUnknownTarget
	}
	frame, err := json.Marshal(core.Message{Type: kind, From: from, Target: target, Payload: payload})
	if err != nil {
		return fmt.Errorf("relay: %w", err)
	}
	if err := sig.TrySend(frame); err != nil {
		log.Debug().Err(err).Str("module", "orch").Str("from", string(from)).Str("target", string(target)).Msg("relay dropped")
		roomID, _ := o.Registry.RoomOf(target)
		o.onBackPressure(roomID, []domain.ConnID{target})
		return err
	}
	return nil
}
