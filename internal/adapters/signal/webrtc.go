package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/StudyRoom/internal/domain"
)

// handleRelay forwards offer/answer/ice-candidate to the named peer.
func (ctl *SignalWSController) handleRelay(sid domain.ConnID, c *WsSignalConn, data []byte) {
	var p struct {
		Type    string          `json:"type"`
		Target  string          `json:"target"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.Target == "" {
		log.Error().Err(err).Str("module", "signal").Msg("bad relay payload")
		ctl.sendError(c, "bad_payload")
		return
	}
	logDrop(sid, p.Type, ctl.Orch.Relay(sid, p.Type, domain.ConnID(p.Target), p.Payload))
}
