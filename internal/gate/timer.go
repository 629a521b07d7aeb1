package gate

import "time"

// ResendTimer throttles OTP re-sends on the client. It runs on its own clock
// and says nothing about whether the server still holds the code.
type ResendTimer struct {
	Interval time.Duration
	last     time.Time
	now      func() time.Time
}

func NewResendTimer(interval time.Duration, now func() time.Time) ResendTimer {
	if now == nil {
		now = time.Now
	}
	return ResendTimer{Interval: interval, now: now}
}

// Start begins a countdown from now.
func (t *ResendTimer) Start() { t.last = t.clock() }

// Remaining is the time left before another send is allowed.
func (t *ResendTimer) Remaining() time.Duration {
	if t.last.IsZero() {
		return 0
	}
	left := t.Interval - t.clock().Sub(t.last)
	if left < 0 {
		return 0
	}
	return left
}

func (t *ResendTimer) Ready() bool { return t.Remaining() == 0 }

func (t *ResendTimer) clock() time.Time {
	if t.now == nil {
		return time.Now()
	}
	return t.now()
}
