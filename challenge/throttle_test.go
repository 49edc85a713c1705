package challenge

import (
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestThrottleAllow(t *testing.T) {
	th := newThrottle(rate.Limit(2), 2, time.Minute)
	if !th.allow(0) {
		t.Fatal("first allow should pass")
	}
	if !th.allow(0) {
		t.Fatal("second allow should pass")
	}
	if th.allow(0) {
		t.Fatal("third allow should be rate limited")
	}
}

func TestThrottleKeysAreIndependent(t *testing.T) {
	th := newThrottle(rate.Limit(1), 1, time.Minute)
	if !th.allow(0) {
		t.Fatal("part 0's first allow should pass")
	}
	if th.allow(0) {
		t.Fatal("part 0's burst should now be exhausted")
	}
	// Touching a sibling part must not reset part 0's already-consumed
	// burst: with a zero ttl every allow() call would evict every bucket
	// not seen in that exact call, wiping part 0's state here.
	if !th.allow(1) {
		t.Fatal("part 1's first allow should pass")
	}
	if th.allow(0) {
		t.Fatal("part 0 should still be throttled after part 1 was touched")
	}
}
