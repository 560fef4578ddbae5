package clock

import (
	"testing"
	"time"
)

func TestNewNormalizerRejectsBadZone(t *testing.T) {
	if _, err := NewNormalizer("Not/AZone"); err == nil {
		t.Fatal("expected error for unknown timezone")
	}
}

func TestNormalizeInterpretsWallClockInBusinessZone(t *testing.T) {
	n, err := NewNormalizer("America/New_York")
	if err != nil {
		t.Fatalf("NewNormalizer: %v", err)
	}

	// 10:00 wall clock on a January day is 15:00 UTC (EST, UTC-5).
	wall := time.Date(2025, time.January, 15, 10, 0, 0, 0, time.UTC)
	got := n.Normalize(wall)
	want := time.Date(2025, time.January, 15, 15, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Normalize = %v, want %v", got, want)
	}

	// Same wall clock in July is 14:00 UTC (EDT, UTC-4).
	wall = time.Date(2025, time.July, 15, 10, 0, 0, 0, time.UTC)
	got = n.Normalize(wall)
	want = time.Date(2025, time.July, 15, 14, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Normalize (DST) = %v, want %v", got, want)
	}
}

func TestFormatting(t *testing.T) {
	n, err := NewNormalizer("America/New_York")
	if err != nil {
		t.Fatalf("NewNormalizer: %v", err)
	}
	instant := time.Date(2025, time.March, 3, 19, 30, 0, 0, time.UTC) // 14:30 EST

	if got := n.FormatDate(instant); got != "Monday, March 3, 2025" {
		t.Errorf("FormatDate = %q", got)
	}
	if got := n.FormatTime(instant); got != "2:30 PM" {
		t.Errorf("FormatTime = %q", got)
	}
}

func TestFixedClock(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	if !Fixed(at).Now().Equal(at) {
		t.Error("Fixed clock did not return its instant")
	}
}
