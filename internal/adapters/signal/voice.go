package signal

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicegate/internal/domain"
)

func (ctl *SignalWSController) handleJoinVoice(
	ctx context.Context,
	uid domain.UserID,
	conn *WsSignalConn,
	data []byte,
) {
	type joinPayload struct {
		Type string `json:"type"`
		Room string `json:"room"`
	}
	var p joinPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	if ctl.Limiter != nil && !ctl.Limiter.Allow(uid) {
		log.Warn().Str("module", "signal").Str("sid", string(uid)).Msg("join rate limited")
		ctl.sendError(conn, "rate_limited")
		return
	}

	desc, err := ctl.Access.RequestRoomAccess(ctx, p.Room, uid)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrVoiceServiceUnavailable):
		ctl.sendError(conn, "voice_unavailable")
		return
	case errors.Is(err, domain.ErrInvalidArgument):
		ctl.sendError(conn, "bad_request")
		return
	default:
		log.Error().Err(err).Str("module", "signal").Str("sid", string(uid)).Msg("join voice")
		ctl.sendError(conn, "internal")
		return
	}

	conn.setRoom(desc.RoomID)
	log.Info().Str("module", "signal").Str("sid", string(uid)).Str("room_id", string(desc.RoomID)).Msg("voice join")
	ctl.sendJSON(conn, struct {
		Type       string                 `json:"type"`
		Descriptor *domain.JoinDescriptor `json:"descriptor"`
	}{
		Type:       "voice_join",
		Descriptor: desc,
	})
}
