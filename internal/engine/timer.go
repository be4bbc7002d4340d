package engine

// TimerState is the session timer's lifecycle state.
type TimerState int

const (
	TimerIdle TimerState = iota
	TimerActive
	TimerPaused
	TimerExpired
)

func (s TimerState) String() string {
	switch s {
	case TimerIdle:
		return "idle"
	case TimerActive:
		return "active"
	case TimerPaused:
		return "paused"
	case TimerExpired:
		return "expired"
	}
	return "unknown"
}

// Timer is an immutable countdown value. It only counts down through
// Tick while Active; Expired latches and cannot be restarted. Only
// switching scenarios produces a fresh Idle timer.
type Timer struct {
	State     TimerState
	Remaining int // seconds
	Total     int // configured seconds
}

// NewTimer returns an Idle timer for the given duration in seconds.
func NewTimer(seconds int) Timer {
	return Timer{State: TimerIdle, Remaining: seconds, Total: seconds}
}

// Start activates an Idle or Paused timer. Starting an Expired timer is
// a no-op: an expired session must be finished or reset by switching
// scenarios.
func (t Timer) Start() Timer {
	if t.State == TimerIdle || t.State == TimerPaused {
		t.State = TimerActive
	}
	return t
}

// Pause stops the countdown without resetting the remaining time.
func (t Timer) Pause() Timer {
	if t.State == TimerActive {
		t.State = TimerPaused
	}
	return t
}

// Tick advances the countdown by one second. The second return value is
// true only on the Active-to-Expired edge, so the expiry penalty fires
// exactly once even if the clock mechanism delivers late ticks.
func (t Timer) Tick() (Timer, bool) {
	if t.State != TimerActive {
		return t, false
	}
	t.Remaining--
	if t.Remaining <= 0 {
		t.Remaining = 0
		t.State = TimerExpired
		return t, true
	}
	return t, false
}

// Elapsed returns the consumed time in seconds.
func (t Timer) Elapsed() int {
	return t.Total - t.Remaining
}
