package domain

import (
	"strings"
	"time"
)

const isoDateLayout = "2006-01-02"

// NormalizeDate reconciles the two date shapes the analysis backend emits,
// ISO ("2024-03-15") and day-first ("15-03-2024"), into ISO. The shape is
// detected by the length of the first hyphen-delimited segment. Empty input
// falls back to the current date; anything that matches neither grammar is
// passed through unchanged so downstream date fields can treat it as empty.
// The function is idempotent.
func NormalizeDate(raw string) string {
	return normalizeDateAt(raw, time.Now().UTC())
}

func normalizeDateAt(raw string, now time.Time) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return now.Format(isoDateLayout)
	}

	first, _, found := strings.Cut(s, "-")
	if !found {
		return raw
	}

	switch len(first) {
	case 2:
		t, err := time.Parse("02-01-2006", s)
		if err != nil {
			return raw
		}
		return t.Format(isoDateLayout)
	case 4:
		t, err := time.Parse(isoDateLayout, s)
		if err != nil {
			return raw
		}
		return t.Format(isoDateLayout)
	default:
		return raw
	}
}
