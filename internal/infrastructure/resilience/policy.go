package resilience

import (
	"strings"
	"time"
)

// Policy is the retry and breaker budget applied to one class of
// outbound operation.
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64

	BreakerMinRequests  uint32
	BreakerFailureRatio float64
	BreakerOpenTimeout  time.Duration
	BreakerHalfOpenMax  uint32
}

// Operation names are class-prefixed: "recorder.denver", "court.co",
// "commercial.search", "queue.publish". The class before the first dot
// selects the policy.
func policyFor(operation string) Policy {
	class, _, _ := strings.Cut(operation, ".")
	switch class {
	case "recorder", "court":
		// County and court portals throttle aggressively and recover
		// slowly. Back off in seconds and keep a tripped breaker open
		// long enough for the portal's penalty window to pass.
		return Policy{
			MaxAttempts:         3,
			InitialBackoff:      500 * time.Millisecond,
			MaxBackoff:          5 * time.Second,
			Multiplier:          2.0,
			BreakerMinRequests:  5,
			BreakerFailureRatio: 0.6,
			BreakerOpenTimeout:  2 * time.Minute,
			BreakerHalfOpenMax:  1,
		}
	case "commercial":
		// The paid API bills per call; one retry, then let the search
		// fail over to its own terminal handling.
		return Policy{
			MaxAttempts:         2,
			InitialBackoff:      250 * time.Millisecond,
			MaxBackoff:          time.Second,
			Multiplier:          2.0,
			BreakerMinRequests:  10,
			BreakerFailureRatio: 0.5,
			BreakerOpenTimeout:  30 * time.Second,
			BreakerHalfOpenMax:  2,
		}
	case "queue":
		// Publishes sit on the request path, so retries stay short;
		// JetStream redelivery covers anything beyond them.
		return Policy{
			MaxAttempts:         4,
			InitialBackoff:      50 * time.Millisecond,
			MaxBackoff:          400 * time.Millisecond,
			Multiplier:          2.0,
			BreakerMinRequests:  20,
			BreakerFailureRatio: 0.5,
			BreakerOpenTimeout:  5 * time.Second,
			BreakerHalfOpenMax:  2,
		}
	}
	return Policy{
		MaxAttempts:         3,
		InitialBackoff:      100 * time.Millisecond,
		MaxBackoff:          time.Second,
		Multiplier:          2.0,
		BreakerMinRequests:  10,
		BreakerFailureRatio: 0.5,
		BreakerOpenTimeout:  30 * time.Second,
		BreakerHalfOpenMax:  2,
	}
}

func (p Policy) normalize() Policy {
	def := policyFor("")
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = def.InitialBackoff
	}
	if p.MaxBackoff < p.InitialBackoff {
		p.MaxBackoff = p.InitialBackoff
	}
	if p.Multiplier < 1.0 {
		p.Multiplier = def.Multiplier
	}
	if p.BreakerMinRequests == 0 {
		p.BreakerMinRequests = def.BreakerMinRequests
	}
	if p.BreakerFailureRatio <= 0 || p.BreakerFailureRatio > 1 {
		p.BreakerFailureRatio = def.BreakerFailureRatio
	}
	if p.BreakerOpenTimeout <= 0 {
		p.BreakerOpenTimeout = def.BreakerOpenTimeout
	}
	if p.BreakerHalfOpenMax == 0 {
		p.BreakerHalfOpenMax = def.BreakerHalfOpenMax
	}
	return p
}
