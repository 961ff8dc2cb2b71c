package session

import (
	"github.com/go-go-golems/lenin/pkg/claims"
)

// armRefreshTimerLocked replaces any pending timer with one that fires margin before the
// current access token expires. Nothing is armed when that moment has already passed.
func (m *Manager) armRefreshTimerLocked() {
	m.stopTimerLocked()

	delay := claims.TimeUntilExpiry(m.store.AccessToken(), m.margin, m.clock.Now())
	if delay <= 0 {
		return
	}
	m.timerGen++
	gen := m.timerGen
	m.timer = m.clock.AfterFunc(delay, func() { m.onRefreshTimer(gen) })
	m.timerState = TimerArmed
	m.logger.Debug().Dur("delay", delay).Uint64("gen", gen).Msg("refresh timer armed")
}

func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.timerGen++
	m.timerState = TimerIdle
}

func (m *Manager) onRefreshTimer(gen uint64) {
	m.mu.Lock()
	if gen != m.timerGen || m.timer == nil {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	m.timerState = TimerFiring
	ctx := m.timerCtx
	m.mu.Unlock()

	if _, err := m.RefreshAccessToken(ctx); err != nil {
		m.logger.Error().Err(err).Msg("scheduled token refresh failed")
	}

	m.mu.Lock()
	if m.timerState == TimerFiring {
		m.timerState = TimerIdle
	}
	m.mu.Unlock()
}
