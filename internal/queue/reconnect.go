package queue

import (
	"math/rand"
	"time"
)

// ReconnectPolicy computes exponential backoff delays, with jitter, for a
// client redialing after a disconnect. Recovered from logos-collab's
// client.rs, which backs off before each reconnect attempt rather than
// hammering the server immediately; spec's offline-queue section is silent
// on redial timing, since dialing itself is out of this module's core
// scope — only the delay computation lives here, for whatever transport
// code drives the actual reconnect.
type ReconnectPolicy struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
	JitterFactor   float64
}

// DefaultReconnectPolicy mirrors a typical retry policy's defaults in
// spirit (exponential, capped, lightly jittered), tuned to a half-second
// floor appropriate for a live collaboration session rather than an
// outbound API call.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		BackoffFactor:  2.0,
		JitterFactor:   0.2,
	}
}

// NextDelay returns how long to wait before reconnect attempt number
// attempt (1-indexed). The base delay starts at InitialBackoff and grows by
// BackoffFactor per attempt, capped at MaxBackoff, then a uniform jitter of
// +/- JitterFactor is applied so many clients disconnected by the same
// event don't redial in lockstep.
func (p ReconnectPolicy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := p.InitialBackoff
	for i := 1; i < attempt; i++ {
		base = time.Duration(float64(base) * p.BackoffFactor)
		if base > p.MaxBackoff {
			base = p.MaxBackoff
			break
		}
	}
	if p.JitterFactor <= 0 {
		return base
	}
	jitter := (rand.Float64()*2 - 1) * p.JitterFactor
	return time.Duration(float64(base) * (1.0 + jitter))
}
