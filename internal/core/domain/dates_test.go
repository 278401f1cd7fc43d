package domain

import (
	"testing"
	"time"
)

func TestNormalizeDateDayFirst(t *testing.T) {
	if got := NormalizeDate("15-03-2024"); got != "2024-03-15" {
		t.Fatalf("NormalizeDate(15-03-2024) = %q", got)
	}
	if got := NormalizeDate("01-12-1999"); got != "1999-12-01" {
		t.Fatalf("NormalizeDate(01-12-1999) = %q", got)
	}
}

func TestNormalizeDateISOUnchanged(t *testing.T) {
	if got := NormalizeDate("2024-03-15"); got != "2024-03-15" {
		t.Fatalf("NormalizeDate(2024-03-15) = %q", got)
	}
}

func TestNormalizeDateIdempotent(t *testing.T) {
	inputs := []string{"15-03-2024", "2024-03-15", "garbage", "2024/03/15", "99-99-2024"}
	for _, in := range inputs {
		once := NormalizeDate(in)
		twice := NormalizeDate(once)
		if once != twice {
			t.Fatalf("NormalizeDate not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestNormalizeDateFallsBackToCurrentDate(t *testing.T) {
	now := time.Date(2025, 6, 7, 12, 0, 0, 0, time.UTC)
	if got := normalizeDateAt("", now); got != "2025-06-07" {
		t.Fatalf("empty input should fall back to the current date, got %q", got)
	}
	if got := normalizeDateAt("   ", now); got != "2025-06-07" {
		t.Fatalf("blank input should fall back to the current date, got %q", got)
	}
}

func TestNormalizeDatePassesThroughUnrecognized(t *testing.T) {
	for _, in := range []string{"2024/03/15", "March 15", "99-99-2024", "153-2024"} {
		if got := NormalizeDate(in); got != in {
			t.Fatalf("NormalizeDate(%q) = %q, expected passthrough", in, got)
		}
	}
}

func TestSessionStateTransitions(t *testing.T) {
	legal := [][2]SessionState{
		{StateIdle, StateFileSelected},
		{StateAnalyzing, StateOcrRetrying},
		{StateOcrRetrying, StateAnalysisFailed},
		{StateResultsShown, StateRejected},
		{StateSubmitting, StateDuplicateDetected},
		{StateDuplicateDetected, StateSubmitting},
		{StateSubmitFailed, StateSubmitting},
	}
	for _, tc := range legal {
		if !CanTransition(tc[0], tc[1]) {
			t.Fatalf("expected %s -> %s to be legal", tc[0], tc[1])
		}
	}

	illegal := [][2]SessionState{
		{StateIdle, StateSubmitting},
		{StateOcrRetrying, StateOcrRetrying},
		{StateSaved, StateSubmitting},
		{StateRejected, StateConfirmed},
	}
	for _, tc := range illegal {
		if CanTransition(tc[0], tc[1]) {
			t.Fatalf("expected %s -> %s to be illegal", tc[0], tc[1])
		}
	}
	if !StateSaved.IsTerminal() {
		t.Fatalf("saved must be terminal")
	}
}
