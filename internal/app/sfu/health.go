package sfu

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// HealthMonitor pushes a keep-alive on every tick while the channel is up.
// It is not an RTT measurement: it keeps idle connections open through proxies and
// catches half-open sockets. The first failed check stops the monitor; the
// channel then drops the connection and starts a fresh monitor on its next
// successful open.
type HealthMonitor struct {
	interval time.Duration
	check    func() error
	logger   zerolog.Logger

	stopChan chan struct{}
	once     sync.Once
}

func NewHealthMonitor(interval time.Duration, check func() error, logger zerolog.Logger) *HealthMonitor {
	return &HealthMonitor{
		interval: interval,
		check:    check,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

func (m *HealthMonitor) Start() {
	ticker := time.NewTicker(m.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := m.check(); err != nil {
					m.logger.Warn().Err(err).Msg("keep-alive failed, monitor stopped")
					return
				}
			case <-m.stopChan:
				return
			}
		}
	}()
}

// Stop is safe to call more than once and never waits for a running check.
func (m *HealthMonitor) Stop() {
	m.once.Do(func() { close(m.stopChan) })
}
