package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicegate/internal/app/sfu"
	"github.com/dkeye/voicegate/internal/domain"
)

// ControlChannel is the part of sfu.Channel the broker relies on.
type ControlChannel interface {
	Identity() sfu.Identity
	Healthy() bool
	EnsureRegistered(room domain.RoomID) error
	Unregister(room domain.RoomID)
}

var _ ControlChannel = (*sfu.Channel)(nil)

type TokenIssuer interface {
	Issue(userID domain.UserID, roomID domain.RoomID) (string, error)
}

// JoinRecorder counts request outcomes. Optional.
type JoinRecorder interface {
	JoinRequest(outcome string)
}

// Broker turns an end user's "join voice room" request into a join
// descriptor. It never retries: reconnecting is the control channel's job,
// the caller only learns that voice is unavailable right now.
type Broker struct {
	channel ControlChannel
	tokens  TokenIssuer
	metrics JoinRecorder
	now     func() time.Time
}

func NewBroker(channel ControlChannel, tokens TokenIssuer, metrics JoinRecorder) *Broker {
	return &Broker{
		channel: channel,
		tokens:  tokens,
		metrics: metrics,
		now:     time.Now,
	}
}

func (b *Broker) RequestRoomAccess(ctx context.Context, rawRoomID string, userID domain.UserID) (*domain.JoinDescriptor, error) {
	desc, err := b.requestRoomAccess(ctx, rawRoomID, userID)
	b.record(err)
	return desc, err
}

func (b *Broker) requestRoomAccess(ctx context.Context, rawRoomID string, userID domain.UserID) (*domain.JoinDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id := b.channel.Identity()
	roomID, err := domain.NamespacedRoomID(id.ServerID, rawRoomID)
	if err != nil {
		return nil, err
	}
	if !userID.Valid() {
		return nil, fmt.Errorf("%w: user id", domain.ErrInvalidArgument)
	}

	logger := log.With().
		Str("module", "app.broker").
		Str("room_id", string(roomID)).
		Str("user_id", string(userID)).
		Logger()

	if !b.channel.Healthy() {
		logger.Warn().Msg("voice unavailable: control channel unhealthy")
		return nil, domain.ErrVoiceServiceUnavailable
	}
	if err := b.channel.EnsureRegistered(roomID); err != nil {
		if errors.Is(err, domain.ErrChannelUnavailable) {
			logger.Warn().Err(err).Msg("voice unavailable: registration failed")
			return nil, fmt.Errorf("%w: %v", domain.ErrVoiceServiceUnavailable, err)
		}
		return nil, err
	}

	userToken, err := b.tokens.Issue(userID, roomID)
	if err != nil {
		return nil, fmt.Errorf("issue user token: %w", err)
	}

	logger.Info().Msg("room access granted")
	return &domain.JoinDescriptor{
		RoomID:      roomID,
		ServerID:    id.ServerID,
		ServerToken: id.ServerToken,
		UserToken:   userToken,
		SFUURL:      id.ControlURL(),
		Timestamp:   b.now().UnixMilli(),
	}, nil
}

// ReleaseRoom tears a room down so it is no longer re-registered after a
// reconnect.
func (b *Broker) ReleaseRoom(rawRoomID string) (domain.RoomID, error) {
	roomID, err := domain.NamespacedRoomID(b.channel.Identity().ServerID, rawRoomID)
	if err != nil {
		return "", err
	}
	b.channel.Unregister(roomID)
	return roomID, nil
}

func (b *Broker) record(err error) {
	if b.metrics == nil {
		return
	}
	switch {
	case err == nil:
		b.metrics.JoinRequest("granted")
	case errors.Is(err, domain.ErrVoiceServiceUnavailable):
		b.metrics.JoinRequest("unavailable")
	case errors.Is(err, domain.ErrInvalidArgument):
		b.metrics.JoinRequest("invalid")
	default:
		b.metrics.JoinRequest("error")
	}
}
