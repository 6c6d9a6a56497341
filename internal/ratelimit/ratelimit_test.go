package ratelimit

import (
	"fmt"
	"testing"
	"time"
)

func TestSignupLimiterCapsPerOrigin(t *testing.T) {
	l := NewSignupLimiter(5, 24*time.Hour)
	for i := 0; i < 5; i++ {
		if !l.Allow("10.0.0.1") {
			t.Fatalf("attempt %d should be allowed", i+1)
		}
	}
	if l.Allow("10.0.0.1") {
		t.Fatal("sixth attempt within the window should be refused")
	}
}

func TestSignupLimiterIsolatesOrigins(t *testing.T) {
	l := NewSignupLimiter(1, 24*time.Hour)
	if !l.Allow("10.0.0.1") {
		t.Fatal("first origin should be allowed")
	}
	if !l.Allow("10.0.0.2") {
		t.Fatal("second origin must not share the first origin's budget")
	}
	if l.Allow("10.0.0.1") {
		t.Fatal("first origin should now be refused")
	}
}

func TestSignupLimiterPrunesIdleOrigins(t *testing.T) {
	l := NewSignupLimiter(1, time.Millisecond)
	for i := 0; i < 5000; i++ {
		l.Allow(fmt.Sprintf("10.0.%d.%d", i/256, i%256))
	}
	time.Sleep(5 * time.Millisecond)
	l.Allow("trigger-prune")

	l.mu.Lock()
	n := len(l.origins)
	l.mu.Unlock()
	if n > 4096 {
		t.Fatalf("idle origins not pruned, map holds %d entries", n)
	}
}
