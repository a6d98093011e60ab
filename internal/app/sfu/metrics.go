package sfu

import "time"

// Recorder receives control channel events for metrics collection.
type Recorder interface {
	StateChanged(state State)
	ReconnectScheduled(attempt int, delay time.Duration)
	ReconnectsExhausted()
	RoomRegistered()
	RoomRegistrationFailed()
	KeepAliveFailed()
	PendingRooms(n int)
}

type noopRecorder struct{}

func (noopRecorder) StateChanged(State)                    {}
func (noopRecorder) ReconnectScheduled(int, time.Duration) {}
func (noopRecorder) ReconnectsExhausted()                  {}
func (noopRecorder) RoomRegistered()                       {}
func (noopRecorder) RoomRegistrationFailed()               {}
func (noopRecorder) KeepAliveFailed()                      {}
func (noopRecorder) PendingRooms(int)                      {}
