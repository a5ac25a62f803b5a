package bot

import (
	"testing"
	"time"
)

// testClock returns a limiter whose clock the test controls.
func testClock(max int, window time.Duration) (*Limiter, *time.Time) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l := NewLimiter(max, window)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestAllow_UnderQuota(t *testing.T) {
	l, _ := testClock(5, time.Minute)

	for i := 0; i < 5; i++ {
		if !l.Allow("room-1") {
			t.Fatalf("call %d should be allowed", i+1)
		}
	}
	if l.Allow("room-1") {
		t.Fatal("6th call within the window should be denied")
	}
}

func TestAllow_DenialDoesNotConsumeQuota(t *testing.T) {
	l, now := testClock(5, time.Minute)

	for i := 0; i < 5; i++ {
		l.Allow("room-1")
	}
	// Repeated denied attempts must not extend the lockout.
	for i := 0; i < 10; i++ {
		if l.Allow("room-1") {
			t.Fatal("over-quota call should be denied")
		}
	}

	*now = now.Add(61 * time.Second)
	if !l.Allow("room-1") {
		t.Fatal("quota should reset once the original timestamps expire")
	}
}

func TestAllow_WindowSlides(t *testing.T) {
	l, now := testClock(2, time.Minute)

	if !l.Allow("room-1") {
		t.Fatal("1st call should be allowed")
	}
	*now = now.Add(30 * time.Second)
	if !l.Allow("room-1") {
		t.Fatal("2nd call should be allowed")
	}
	if l.Allow("room-1") {
		t.Fatal("3rd call at +30s should be denied")
	}

	// At +61s the first timestamp has aged out, but the +30s one has not.
	*now = now.Add(31 * time.Second)
	if !l.Allow("room-1") {
		t.Fatal("call at +61s should be allowed after partial expiry")
	}
	if l.Allow("room-1") {
		t.Fatal("window should be full again at +61s")
	}
}

func TestAllow_PerRoomIsolation(t *testing.T) {
	l, _ := testClock(1, time.Minute)

	if !l.Allow("room-1") {
		t.Fatal("room-1 first call should be allowed")
	}
	if l.Allow("room-1") {
		t.Fatal("room-1 should be exhausted")
	}
	if !l.Allow("room-2") {
		t.Fatal("room-2 must have its own quota")
	}
}
