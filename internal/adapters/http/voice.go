package http

import (
	"errors"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicegate/internal/app"
	"github.com/dkeye/voicegate/internal/domain"
)

const sessionRoomKey = "voice_room"

type voiceHandlers struct {
	broker  *app.Broker
	channel ChannelControl
}

type joinRequest struct {
	UserID string `json:"user_id" binding:"omitempty,max=64"`
}

// join answers POST /api/voice/rooms/:room/join. Without a body the caller's
// client cookie identifies the user.
func (h *voiceHandlers) join(c *gin.Context) {
	var req joinRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad_payload"})
			return
		}
	}
	userID := req.UserID
	if userID == "" {
		userID = c.GetString("client_token")
	}

	desc, err := h.broker.RequestRoomAccess(c.Request.Context(), c.Param("room"), domain.UserID(userID))
	if err != nil {
		writeError(c, err)
		return
	}

	session := sessions.Default(c)
	session.Set(sessionRoomKey, string(desc.RoomID))
	if err := session.Save(); err != nil {
		log.Warn().Err(err).Str("module", "adapters.http").Msg("session save")
	}
	c.JSON(http.StatusOK, desc)
}

func (h *voiceHandlers) release(c *gin.Context) {
	if _, err := h.broker.ReleaseRoom(c.Param("room")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *voiceHandlers) whoami(c *gin.Context) {
	resp := gin.H{"user_id": c.GetString("client_token")}
	if room, ok := sessions.Default(c).Get(sessionRoomKey).(string); ok {
		resp["room_id"] = room
	}
	c.JSON(http.StatusOK, resp)
}

func (h *voiceHandlers) status(c *gin.Context) {
	c.JSON(http.StatusOK, h.channel.Status())
}

// health is 503 whenever voice cannot be granted, including when the
// reconnect budget is exhausted and an operator has to step in.
func (h *voiceHandlers) health(c *gin.Context) {
	st := h.channel.Status()
	if !st.Healthy {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":    "down",
			"state":     st.State,
			"exhausted": st.Exhausted,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "up", "state": st.State})
}

func (h *voiceHandlers) reconnect(c *gin.Context) {
	log.Info().Str("module", "adapters.http").Msg("manual reconnect requested")
	if err := h.channel.Connect(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, h.channel.Status())
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrVoiceServiceUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "voice_unavailable", "message": "voice temporarily unavailable"})
	case errors.Is(err, domain.ErrInvalidArgument):
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": err.Error()})
	default:
		log.Error().Err(err).Str("module", "adapters.http").Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
	}
}
