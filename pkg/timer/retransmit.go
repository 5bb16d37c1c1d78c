package timer

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Retransmitter tracks a single outstanding retransmittable send: at most
// one in flight at a time, matching the "one outstanding INIT/COOKIE_ECHO"
// and "one outstanding flight" invariants of spec.md §4.3/§4.4.
type Retransmitter struct {
	mu       sync.Mutex
	schedule *backoff.ExponentialBackOff
	timer    *time.Timer
	attempts int
	maxTries int
	onFire   func(attempt int)
}

// NewRetransmitter creates a Retransmitter that calls onFire (with the
// 1-based attempt number about to be sent) each time the schedule elapses,
// up to maxTries total sends.
func NewRetransmitter(schedule *backoff.ExponentialBackOff, maxTries int, onFire func(attempt int)) *Retransmitter {
	return &Retransmitter{
		schedule: schedule,
		maxTries: maxTries,
		onFire:   onFire,
	}
}

// Start arms the timer for the first retransmission after the initial send.
func (r *Retransmitter) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = 1
	r.arm()
}

// Stop cancels any pending timer. Called on receipt of the expected reply
// or on close.
func (r *Retransmitter) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

// Attempts returns the number of sends made so far, including the initial one.
func (r *Retransmitter) Attempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts
}

// Exhausted reports whether the attempt ceiling has been reached.
func (r *Retransmitter) Exhausted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts >= r.maxTries
}

func (r *Retransmitter) arm() {
	delay := r.schedule.NextBackOff()
	if delay == backoff.Stop {
		return
	}
	r.timer = time.AfterFunc(delay, r.fire)
}

func (r *Retransmitter) fire() {
	r.mu.Lock()
	if r.attempts >= r.maxTries {
		r.mu.Unlock()
		return
	}
	r.attempts++
	attempt := r.attempts
	r.arm()
	cb := r.onFire
	r.mu.Unlock()

	if cb != nil {
		cb(attempt)
	}
}
