package stream

import (
	"testing"
	"time"
)

func TestPickPrefersFewestFailures(t *testing.T) {
	s := newEndpointSet([]string{"a", "b"}, 3, time.Minute)

	if got := s.pick(); got != "a" {
		t.Fatalf("pick = %q, want first domain on a clean slate", got)
	}

	s.fail("a")
	if got := s.pick(); got != "b" {
		t.Fatalf("pick = %q, want the domain with fewer failures", got)
	}
}

func TestPickSkipsCoolingDomain(t *testing.T) {
	s := newEndpointSet([]string{"a", "b"}, 2, time.Minute)

	s.fail("a")
	s.fail("a") // crosses threshold, enters cooldown

	if got := s.pick(); got != "b" {
		t.Fatalf("pick = %q, want the healthy domain while a cools down", got)
	}
}

func TestPickFallsBackWhenAllCooling(t *testing.T) {
	s := newEndpointSet([]string{"a", "b"}, 1, time.Minute)

	s.fail("a")
	s.fail("b")
	s.fail("b")

	if got := s.pick(); got != "a" {
		t.Fatalf("pick = %q, want the least-failed domain when all cool down", got)
	}
}

func TestSuccessResetsFailures(t *testing.T) {
	s := newEndpointSet([]string{"a", "b"}, 2, time.Minute)

	s.fail("a")
	s.fail("a")
	s.success("a")

	if got := s.fails("a"); got != 0 {
		t.Fatalf("fails = %d, want reset to 0", got)
	}
	if got := s.pick(); got != "a" {
		t.Fatalf("pick = %q, want the recovered domain again", got)
	}
}

func TestCooldownExpires(t *testing.T) {
	s := newEndpointSet([]string{"a", "b"}, 1, 10*time.Millisecond)

	s.fail("a")
	if got := s.pick(); got != "b" {
		t.Fatalf("pick = %q, want b during cooldown", got)
	}

	time.Sleep(20 * time.Millisecond)

	s.fail("b")
	s.fail("b")
	if got := s.pick(); got != "a" {
		t.Fatalf("pick = %q, want a after its cooldown expired", got)
	}
}

func TestBackoffDelayCapped(t *testing.T) {
	if backoffDelay(0) != time.Second {
		t.Errorf("attempt 0 = %v, want 1s", backoffDelay(0))
	}
	if backoffDelay(3) != 8*time.Second {
		t.Errorf("attempt 3 = %v, want 8s", backoffDelay(3))
	}
	if backoffDelay(50) != backoffDelay(maxBackoffSteps) {
		t.Error("backoff must cap instead of overflowing")
	}
}
