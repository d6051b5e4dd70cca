package domain

import (
	"testing"
	"time"
)

func TestPolicyBackoff(t *testing.T) {
	p := Policy{MaxAttempts: 5, BaseDelay: time.Minute, MaxDelay: 5 * time.Minute}
	cases := map[int]time.Duration{
		0: time.Minute,
		1: time.Minute,
		2: 2 * time.Minute,
		3: 4 * time.Minute,
		4: 5 * time.Minute,
		40: 5 * time.Minute,
	}
	for attempts, want := range cases {
		if got := p.Backoff(attempts); got != want {
			t.Fatalf("attempts=%d: expected %s, got %s", attempts, want, got)
		}
	}
}

func TestPolicyExhausted(t *testing.T) {
	p := Policy{MaxAttempts: 3}
	if p.Exhausted(2) {
		t.Fatalf("expected attempts below the cap to continue")
	}
	if !p.Exhausted(3) {
		t.Fatalf("expected cap to be enforced")
	}
	if (Policy{}).Exhausted(1000) {
		t.Fatalf("expected zero MaxAttempts to mean no cap")
	}
}

func TestPolicyBackoffNeverOverflows(t *testing.T) {
	p := Policy{BaseDelay: time.Minute}
	for _, attempts := range []int{30, 64, 70, 1 << 20} {
		got := p.Backoff(attempts)
		if got != MaxBackoffCeiling {
			t.Fatalf("attempts=%d: expected ceiling %s, got %s", attempts, MaxBackoffCeiling, got)
		}
	}

	huge := Policy{BaseDelay: 1 << 62, MaxDelay: 1 << 62}
	if got := huge.Backoff(10); got != 1<<62 {
		t.Fatalf("expected delay clamped to MaxDelay, got %s", got)
	}
}
