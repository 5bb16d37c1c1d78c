// Package timer provides the retransmission bookkeeping shared by the DTLS
// handshake (flight retransmit) and the SCTP association (T1/T2/T-Reconfig).
//
// Both layers need the same primitive: send something, start a timer, and if
// it fires before the matching reply arrives, resend with a longer timeout up
// to some ceiling and give up after a bounded number of attempts.
package timer

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// NewSchedule builds the doubling-with-cap backoff spec.md prescribes for
// DTLS flight retransmission ("initial 1s, doubling to a cap of 60s") and,
// with different bounds, for SCTP's T1/T2/T-Reconfig timers. Jitter is
// disabled: retransmission timing here is a liveness mechanism, not a
// congestion-avoidance one, so deterministic doubling is preferable.
func NewSchedule(initial, max time.Duration) *backoff.ExponentialBackOff {
	eb := &backoff.ExponentialBackOff{
		InitialInterval:     initial,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         max,
		MaxElapsedTime:      0, // callers enforce their own attempt ceilings
		Clock:               backoff.SystemClock,
	}
	eb.Reset()
	return eb
}

// GrowRTO implements the SCTP reconfig timer's rto := ceil(rto * 1.5) growth
// rule, capped at max.
func GrowRTO(rto, max time.Duration) time.Duration {
	grown := time.Duration(float64(rto) * 1.5)
	if grown > max {
		return max
	}
	if grown <= rto {
		return rto + time.Millisecond
	}
	return grown
}
