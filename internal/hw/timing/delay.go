package timing

import (
	"time"
)

// Delay abstracts blocking waits so pulse generation can be tested
// with a recorder instead of real microsecond sleeps.
type Delay interface {
	Wait(d time.Duration)
}

// Busy waits by spinning on the monotonic clock. time.Sleep cannot be
// trusted below roughly a millisecond, and a servo pulse is shaped by
// waits in the 500µs-2500µs range: oversleeping translates directly
// into position error.
type Busy struct{}

func (Busy) Wait(d time.Duration) {
	if d <= 0 {
		return
	}
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
	}
}

// Sleeper waits with time.Sleep. Good enough for coarse waits
// (inter-step delays, poll intervals) where millisecond jitter does
// not matter.
type Sleeper struct{}

func (Sleeper) Wait(d time.Duration) {
	if d <= 0 {
		return
	}
	time.Sleep(d)
}

// Recorder is a test fake: it returns instantly and records every
// requested duration.
type Recorder struct {
	Waits []time.Duration
}

func (r *Recorder) Wait(d time.Duration) {
	r.Waits = append(r.Waits, d)
}

// Total returns the sum of all recorded waits.
func (r *Recorder) Total() time.Duration {
	var sum time.Duration
	for _, d := range r.Waits {
		sum += d
	}
	return sum
}
