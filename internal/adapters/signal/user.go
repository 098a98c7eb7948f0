package signal

import (
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/StudyRoom/internal/core"
	"github.com/dkeye/StudyRoom/internal/domain"
)

func (ctl *SignalWSController) handleRename(sid domain.ConnID, c *WsSignalConn, data []byte) {
	var p struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad rename payload")
		ctl.sendError(c, "bad_payload")
		return
	}

	err := ctl.Orch.Rename(sid, p.Name)
	switch {
	case errors.Is(err, domain.ErrDisplayNameTooShort), errors.Is(err, domain.ErrDisplayNameTooLong):
		ctl.sendError(c, "invalid_name")
	case err != nil:
		logDrop(sid, "update-name", err)
	default:
		log.Info().Str("module", "signal").Str("sid", string(sid)).Str("name", p.Name).Msg("rename")
	}
}

func (ctl *SignalWSController) handleWhoAmI(sid domain.ConnID, c *WsSignalConn, _ []byte) {
	conn, ok := ctl.Orch.Registry.Get(sid)
	if !ok {
		return
	}
	resp := struct {
		Type string          `json:"type"`
		ID   domain.ConnID   `json:"id"`
		User domain.Identity `json:"user"`
		Room domain.RoomID   `json:"room,omitempty"`
		Host bool            `json:"host"`
	}{
		Type: "whoami",
		ID:   sid,
		User: conn.Identity,
		Room: conn.RoomID,
	}
	if room, ok := ctl.Orch.Rooms.Get(conn.RoomID); ok {
		if snap, ok := room.Snapshot(); ok {
			resp.Host = snap.Host == sid
		}
	}
	ctl.sendJSON(c, resp)
}

var _ core.SignalConnection = (*WsSignalConn)(nil)
