package challenge

import (
	"time"

	"golang.org/x/time/rate"
)

// throttle rate-limits challenge issuance for each recovery part with a
// token bucket, evicting parts that have gone quiet for longer than ttl.
// It does not track how many issued challenges are still unanswered. It keeps no lock of its own: Session.EmitChallenge already holds
// Session.mu for the whole of a challenge issuance, and throttle is
// never reached any other way, so a second mutex here would just be a
// second lock guarding the same invariant.
type throttle struct {
	limit   rate.Limit
	burst   int
	ttl     time.Duration
	entries map[int]*throttleBucket
}

type throttleBucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func newThrottle(limit rate.Limit, burst int, ttl time.Duration) *throttle {
	return &throttle{
		limit:   limit,
		burst:   burst,
		ttl:     ttl,
		entries: make(map[int]*throttleBucket),
	}
}

// allow reports whether a challenge may be issued for partIndex right
// now, consuming one token if so. Callers must hold Session.mu.
func (t *throttle) allow(partIndex int) bool {
	now := time.Now()
	b := t.entries[partIndex]
	if b == nil {
		b = &throttleBucket{lim: rate.NewLimiter(t.limit, t.burst), lastSeen: now}
		t.entries[partIndex] = b
	}
	b.lastSeen = now

	for k, v := range t.entries {
		if now.Sub(v.lastSeen) > t.ttl {
			delete(t.entries, k)
		}
	}
	return b.lim.Allow()
}
