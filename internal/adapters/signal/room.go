package signal

import (
	"encoding/json"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/StudyRoom/internal/domain"
)

const maxRoomIDLen = 64

func (ctl *SignalWSController) handleJoin(sid domain.ConnID, c *WsSignalConn, data []byte) {
	var p struct {
		Room string `json:"room"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.sendError(c, "bad_payload")
		return
	}
	room := strings.TrimSpace(p.Room)
	if room == "" || len(room) > maxRoomIDLen {
		ctl.sendError(c, "invalid_room")
		return
	}

	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", room).Msg("join")
	logDrop(sid, "join-room", ctl.Orch.Join(sid, domain.RoomID(room)))
}

// handleLeave leaves the current room; the connection stays open.
func (ctl *SignalWSController) handleLeave(sid domain.ConnID, c *WsSignalConn, _ []byte) {
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("leave")
	logDrop(sid, "leave-room", ctl.Orch.Leave(sid))
	ctl.sendJSON(c, map[string]any{"type": "left"})
}

func (ctl *SignalWSController) handleChat(sid domain.ConnID, c *WsSignalConn, data []byte) {
	var p struct {
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &p); err != nil || len(p.Payload) == 0 {
		ctl.sendError(c, "bad_payload")
		return
	}
	logDrop(sid, "chat-message", ctl.Orch.Chat(sid, p.Payload))
}

func (ctl *SignalWSController) handleToggleChat(sid domain.ConnID, c *WsSignalConn, data []byte) {
	var p struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.Enabled == nil {
		ctl.sendError(c, "bad_payload")
		return
	}
	logDrop(sid, "toggle-chat", ctl.Orch.ToggleChat(sid, *p.Enabled))
}

func (ctl *SignalWSController) handleTransferHost(sid domain.ConnID, c *WsSignalConn, data []byte) {
	var p struct {
		Target string `json:"target"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.Target == "" {
		ctl.sendError(c, "bad_payload")
		return
	}
	logDrop(sid, "transfer-host", ctl.Orch.TransferHost(sid, domain.ConnID(p.Target)))
}

func (ctl *SignalWSController) handleSyncStatus(sid domain.ConnID, c *WsSignalConn, data []byte) {
	var p struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(c, "bad_payload")
		return
	}
	logDrop(sid, "sync-status", ctl.Orch.SyncStatus(sid, p.Status))
}
