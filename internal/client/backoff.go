package client

import "time"

// Policy maps a retry attempt count to a reconnect delay: Base doubled per
// attempt, capped at Cap. It is a plain value consumed by the supervising
// loop; the attempt counter lives in the manager, not in closures.
type Policy struct {
	Base time.Duration
	Cap  time.Duration
}

var DefaultPolicy = Policy{Base: time.Second, Cap: 30 * time.Second}

func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	// Past 62 doublings the shift wraps; everything that far out is capped
	// anyway.
	if attempt > 62 {
		return p.Cap
	}
	d := p.Base << uint(attempt)
	if d <= 0 || d > p.Cap {
		return p.Cap
	}
	return d
}
