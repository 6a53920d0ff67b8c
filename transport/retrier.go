package transport

import (
	"context"
	"time"
)

// Retrier is an exponential-backoff reconnect helper for the client
// side: transport errors bubble to the connection owner, which then
// triggers a reconnect.
//
// Its RTT smoothing (SRTT/RTTVar; every sample is used, Karn's
// algorithm is not applied) and backoff shape
// are repurposed from a sliding-window ARQ's RTT estimator: that
// machinery existed to retransmit lost UDP datagrams, which no longer
// applies once every transport variant is reliable on its own, but the
// RTT-driven backoff math is exactly what a reconnect delay needs.
type Retrier struct {
	srtt    time.Duration
	rttvar  time.Duration
	samples int

	attempt    uint32
	maxAttempt uint32
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// NewRetrier returns a Retrier seeded with a starting RTT estimate and
// capped at maxAttempt reconnect attempts (0 = unlimited).
func NewRetrier(initialRTT time.Duration, maxAttempt uint32) *Retrier {
	return &Retrier{
		srtt:       initialRTT,
		rttvar:     initialRTT / 2,
		maxAttempt: maxAttempt,
		baseDelay:  100 * time.Millisecond,
		maxDelay:   30 * time.Second,
	}
}

// ObserveRTT folds a new round-trip sample into the smoothed estimate
// using classic TCP RTT-estimation formulas (SRTT' = 7/8 SRTT + 1/8
// sample, RTTVar' = 3/4 RTTVar + 1/4 |SRTT-sample|).
func (r *Retrier) ObserveRTT(sample time.Duration) {
	if r.samples == 0 {
		r.srtt = sample
		r.rttvar = sample / 2
	} else {
		delta := sample - r.srtt
		if delta < 0 {
			delta = -delta
		}
		r.rttvar = (3*r.rttvar + delta) / 4
		r.srtt = (7*r.srtt + sample) / 8
	}
	r.samples++
}

// NextDelay returns the backoff delay for the next reconnect attempt
// and reports whether the attempt budget is exhausted. Delay is the
// current RTO estimate (srtt + 4*rttvar, at least baseDelay) doubled
// once per prior attempt, capped at maxDelay.
func (r *Retrier) NextDelay() (delay time.Duration, exhausted bool) {
	if r.maxAttempt > 0 && r.attempt >= r.maxAttempt {
		return 0, true
	}

	rto := r.srtt + 4*r.rttvar
	if rto < r.baseDelay {
		rto = r.baseDelay
	}

	delay = rto
	for i := uint32(0); i < r.attempt; i++ {
		delay *= 2
		if delay >= r.maxDelay {
			delay = r.maxDelay
			break
		}
	}
	r.attempt++
	return delay, false
}

// Reset clears the attempt counter after a successful reconnect,
// leaving the RTT estimate intact for the next failure.
func (r *Retrier) Reset() {
	r.attempt = 0
}

// Dial retries dialFn with the Retrier's backoff schedule until it
// succeeds, the context is canceled, or the attempt budget runs out.
func Dial(ctx context.Context, r *Retrier, dialFn func(context.Context) (Transport, error)) (Transport, error) {
	for {
		start := time.Now()
		t, err := dialFn(ctx)
		if err == nil {
			r.ObserveRTT(time.Since(start))
			r.Reset()
			return t, nil
		}

		delay, exhausted := r.NextDelay()
		if exhausted {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
}
