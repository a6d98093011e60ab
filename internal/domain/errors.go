package domain

import (
	"errors"
	"fmt"
)

var (
	ErrConfiguration           = errors.New("configuration error")
	ErrTimeout                 = errors.New("connection timeout")
	ErrChannelUnavailable      = errors.New("sfu control channel unavailable")
	ErrVoiceServiceUnavailable = errors.New("voice temporarily unavailable")
	ErrInvalidArgument         = errors.New("invalid argument")
	ErrInvalidRoomID           = fmt.Errorf("%w: invalid room id", ErrInvalidArgument)
)
