package resilience

import (
	"testing"
	"time"
)

func TestBackoff_ExponentialWithCap(t *testing.T) {
	b := NewBackoff(time.Second, 10*time.Second)

	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		10 * time.Second, // capped
		10 * time.Second,
	}
	for i, w := range want {
		if got := b.Next(); got != w {
			t.Errorf("Next() call %d = %v, want %v", i, got, w)
		}
	}
	if b.Attempt() != len(want) {
		t.Errorf("Attempt() = %d, want %d", b.Attempt(), len(want))
	}
}

func TestBackoff_ResetRestartsSchedule(t *testing.T) {
	b := NewBackoff(time.Second, time.Minute)
	b.Next()
	b.Next()
	b.Reset()

	if b.Attempt() != 0 {
		t.Errorf("Attempt() after reset = %d, want 0", b.Attempt())
	}
	if got := b.Next(); got != time.Second {
		t.Errorf("Next() after reset = %v, want 1s", got)
	}
}

func TestBackoff_Defaults(t *testing.T) {
	b := NewBackoff(0, 0)
	if got := b.Next(); got != time.Second {
		t.Errorf("default base Next() = %v, want 1s", got)
	}
}

func TestBackoff_NoOverflowPastCap(t *testing.T) {
	b := NewBackoff(time.Second, 30*time.Second)
	for i := 0; i < 80; i++ {
		if got := b.Next(); got <= 0 || got > 30*time.Second {
			t.Fatalf("Next() call %d = %v, out of range", i, got)
		}
	}
}
