package nlp

import (
	"testing"
	"time"
)

func TestRateLimiter_AllowsUpToLimit(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !rl.Allow("breeder-1") {
			t.Fatalf("call %d denied, want allowed", i+1)
		}
	}
	if rl.Allow("breeder-1") {
		t.Error("call above limit allowed, want denied")
	}
}

func TestRateLimiter_SendersAreIndependent(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)

	if !rl.Allow("breeder-1") {
		t.Fatal("first sender denied")
	}
	if !rl.Allow("breeder-2") {
		t.Error("second sender denied, quotas must be per sender")
	}
	if rl.Allow("breeder-1") {
		t.Error("first sender allowed above limit")
	}
}

func TestRateLimiter_WindowSlides(t *testing.T) {
	rl := NewRateLimiter(1, 20*time.Millisecond)

	if !rl.Allow("breeder-1") {
		t.Fatal("first call denied")
	}
	if rl.Allow("breeder-1") {
		t.Fatal("second call within window allowed")
	}

	time.Sleep(30 * time.Millisecond)
	if !rl.Allow("breeder-1") {
		t.Error("call after window expiry denied")
	}
}

func TestRateLimiter_Remaining(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)

	if got := rl.Remaining("breeder-1"); got != 3 {
		t.Errorf("Remaining = %d, want 3", got)
	}
	rl.Allow("breeder-1")
	rl.Allow("breeder-1")
	if got := rl.Remaining("breeder-1"); got != 1 {
		t.Errorf("Remaining after 2 calls = %d, want 1", got)
	}
}

func TestRateLimiter_Defaults(t *testing.T) {
	rl := NewRateLimiter(0, 0)
	if rl.limit != DefaultRateLimit {
		t.Errorf("limit = %d, want %d", rl.limit, DefaultRateLimit)
	}
	if rl.window != time.Minute {
		t.Errorf("window = %v, want 1m", rl.window)
	}
}
