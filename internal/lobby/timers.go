package lobby

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// TimerService owns every timer a lobby runs, keyed by purpose: the challenge
// countdown (recurring tick plus an independent backstop at the nominal
// deadline), the WAITING-phase inactivity timer, per-participant disconnect
// grace timers and the post-end disposal timer. Whatever event supersedes a
// timer's purpose cancels it explicitly.
type TimerService struct {
	clock clockwork.Clock

	startTime time.Time
	endTime   time.Time

	challengeTicker clockwork.Ticker
	tickerStop      chan struct{}
	tickerStopped   bool
	backstop        clockwork.Timer
	inactivity      clockwork.Timer
	disposal        clockwork.Timer
}

func NewTimerService(clock clockwork.Clock) *TimerService {
	return &TimerService{clock: clock}
}

// StartChallenge arms the countdown: onTick fires every tick interval with
// the remaining time, onExpire when the countdown reaches zero. The backstop
// fires onExpire at the same nominal deadline even if the ticker is starved;
// the caller's end guard makes the double firing harmless.
func (t *TimerService) StartChallenge(duration, tick time.Duration, onTick func(remaining time.Duration), onExpire func()) {
	t.startTime = t.clock.Now()
	t.endTime = t.startTime.Add(duration)
	t.challengeTicker = t.clock.NewTicker(tick)
	t.tickerStop = make(chan struct{})
	t.tickerStopped = false
	t.backstop = t.clock.AfterFunc(duration, onExpire)

	go func(ticker clockwork.Ticker, stop chan struct{}) {
		for {
			select {
			case <-stop:
				return
			case <-ticker.Chan():
				remaining := t.endTime.Sub(t.clock.Now())
				onTick(remaining)
				if remaining <= 0 {
					onExpire()
					return
				}
			}
		}
	}(t.challengeTicker, t.tickerStop)
}

// Remaining reports time left on the challenge countdown, zero if it never
// started or already ran out.
func (t *TimerService) Remaining() time.Duration {
	if t.startTime.IsZero() {
		return 0
	}
	remaining := t.endTime.Sub(t.clock.Now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// StopChallenge cancels the tick and its backstop.
func (t *TimerService) StopChallenge() {
	if t.challengeTicker != nil {
		t.challengeTicker.Stop()
	}
	if t.tickerStop != nil && !t.tickerStopped {
		t.tickerStopped = true
		close(t.tickerStop)
	}
	if t.backstop != nil {
		t.backstop.Stop()
	}
}

// ArmInactivity starts the WAITING-phase inactivity countdown.
func (t *TimerService) ArmInactivity(d time.Duration, fn func()) {
	t.inactivity = t.clock.AfterFunc(d, fn)
}

// TouchInactivity pushes the inactivity deadline out again.
func (t *TimerService) TouchInactivity(d time.Duration) {
	if t.inactivity != nil {
		t.inactivity.Reset(d)
	}
}

func (t *TimerService) StopInactivity() {
	if t.inactivity != nil {
		t.inactivity.Stop()
	}
}

// NewGraceTimer arms a disconnect-grace countdown for one participant. The
// handle is stored on the disconnected record so reconnection can cancel it.
func (t *TimerService) NewGraceTimer(d time.Duration, fn func()) clockwork.Timer {
	return t.clock.AfterFunc(d, fn)
}

// ScheduleDisposal arms the post-end retention countdown.
func (t *TimerService) ScheduleDisposal(d time.Duration, fn func()) {
	t.disposal = t.clock.AfterFunc(d, fn)
}

// StopAll cancels everything still armed. Grace timers are owned by their
// disconnected records and are guarded by the lobby's end flag instead.
func (t *TimerService) StopAll() {
	t.StopChallenge()
	t.StopInactivity()
	if t.disposal != nil {
		t.disposal.Stop()
	}
}
