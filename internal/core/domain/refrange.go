package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// RangeNotSpecified is the display fallback for a range with no usable bounds.
const RangeNotSpecified = "not specified"

// RefRange is a parsed reference range. A nil bound means the side is open.
// Both bounds nil means the raw text was empty or unparseable, never a
// fabricated range.
type RefRange struct {
	Min *float64 `json:"min"`
	Max *float64 `json:"max"`
}

func (r RefRange) IsZero() bool {
	return r.Min == nil && r.Max == nil
}

// ParseRefRange parses a free-text laboratory reference range.
//
// Accepted forms:
//
//	"3.5 - 5.0"  -> both bounds
//	">=10", ">10" -> lower bound only
//	"<=5", "<5"   -> upper bound only
//	"10"          -> bare lower bound
//
// Anything else yields an open range on both sides.
func ParseRefRange(raw string) RefRange {
	s := strings.TrimSpace(raw)
	if s == "" {
		return RefRange{}
	}

	switch {
	case strings.HasPrefix(s, ">="), strings.HasPrefix(s, ">"):
		v, ok := parseBound(strings.TrimLeft(s, ">="))
		if !ok {
			return RefRange{}
		}
		return RefRange{Min: &v}
	case strings.HasPrefix(s, "<="), strings.HasPrefix(s, "<"):
		v, ok := parseBound(strings.TrimLeft(s, "<="))
		if !ok {
			return RefRange{}
		}
		return RefRange{Max: &v}
	}

	if lo, hi, ok := splitHyphenRange(s); ok {
		minV, okLo := parseBound(lo)
		maxV, okHi := parseBound(hi)
		if okLo && okHi {
			return RefRange{Min: &minV, Max: &maxV}
		}
		return RefRange{}
	}

	// Bare numeric value acts as a lower bound with no upper.
	if v, ok := parseBound(s); ok {
		return RefRange{Min: &v}
	}
	return RefRange{}
}

// Render is the inverse of ParseRefRange. Bounds are formatted at fixed
// two-decimal precision so edit-form round trips are stable.
func (r RefRange) Render() string {
	switch {
	case r.Min != nil && r.Max != nil:
		return fmt.Sprintf("%.2f - %.2f", *r.Min, *r.Max)
	case r.Min != nil:
		return fmt.Sprintf(">=%.2f", *r.Min)
	case r.Max != nil:
		return fmt.Sprintf("<=%.2f", *r.Max)
	default:
		return RangeNotSpecified
	}
}

// Contains reports whether v falls inside the range. Open sides always pass.
func (r RefRange) Contains(v float64) bool {
	if r.Min != nil && v < *r.Min {
		return false
	}
	if r.Max != nil && v > *r.Max {
		return false
	}
	return true
}

func parseBound(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// splitHyphenRange splits "A - B" on the hyphen separating the two bounds,
// skipping a leading minus sign so negative lower bounds survive.
func splitHyphenRange(s string) (string, string, bool) {
	for i := 1; i < len(s); i++ {
		if s[i] != '-' {
			continue
		}
		lo := strings.TrimSpace(s[:i])
		hi := strings.TrimSpace(s[i+1:])
		if lo == "" || hi == "" {
			return "", "", false
		}
		return lo, hi, true
	}
	return "", "", false
}
