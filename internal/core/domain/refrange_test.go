package domain

import "testing"

func fptr(v float64) *float64 { return &v }

func TestParseRefRangeBothBounds(t *testing.T) {
	cases := []struct {
		raw      string
		min, max float64
	}{
		{"3.5-5.0", 3.5, 5.0},
		{"3.5 - 5.0", 3.5, 5.0},
		{" 10 -  20 ", 10, 20},
		{"-2 - 2", -2, 2},
	}
	for _, tc := range cases {
		r := ParseRefRange(tc.raw)
		if r.Min == nil || r.Max == nil {
			t.Fatalf("ParseRefRange(%q) = %+v, expected both bounds", tc.raw, r)
		}
		if *r.Min != tc.min || *r.Max != tc.max {
			t.Fatalf("ParseRefRange(%q) = [%v, %v], expected [%v, %v]", tc.raw, *r.Min, *r.Max, tc.min, tc.max)
		}
	}
}

func TestParseRefRangeSingleSided(t *testing.T) {
	r := ParseRefRange(">=10")
	if r.Min == nil || *r.Min != 10 || r.Max != nil {
		t.Fatalf("ParseRefRange(>=10) = %+v", r)
	}
	r = ParseRefRange("<=5.5")
	if r.Max == nil || *r.Max != 5.5 || r.Min != nil {
		t.Fatalf("ParseRefRange(<=5.5) = %+v", r)
	}
	r = ParseRefRange("12")
	if r.Min == nil || *r.Min != 12 || r.Max != nil {
		t.Fatalf("bare numeric should become a lower bound, got %+v", r)
	}
}

func TestParseRefRangeNeverFabricates(t *testing.T) {
	for _, raw := range []string{"", "   ", "see notes", "negative", "a - b", ">=x"} {
		if r := ParseRefRange(raw); !r.IsZero() {
			t.Fatalf("ParseRefRange(%q) = %+v, expected open range", raw, r)
		}
	}
}

func TestRenderRefRange(t *testing.T) {
	if got := (RefRange{Min: fptr(3.5), Max: fptr(5)}).Render(); got != "3.50 - 5.00" {
		t.Fatalf("Render() = %q", got)
	}
	if got := (RefRange{Min: fptr(10)}).Render(); got != ">=10.00" {
		t.Fatalf("Render() = %q", got)
	}
	if got := (RefRange{Max: fptr(5.5)}).Render(); got != "<=5.50" {
		t.Fatalf("Render() = %q", got)
	}
	if got := (RefRange{}).Render(); got != RangeNotSpecified {
		t.Fatalf("Render() = %q", got)
	}
}

func TestRefRangeRenderParseRoundTrip(t *testing.T) {
	cases := []RefRange{
		{Min: fptr(3.5), Max: fptr(5.0)},
		{Min: fptr(0.25)},
		{Max: fptr(140)},
		{Min: fptr(-1.5), Max: fptr(1.5)},
	}
	for _, r := range cases {
		rendered := r.Render()
		again := ParseRefRange(rendered).Render()
		if again != rendered {
			t.Fatalf("round trip changed %q to %q", rendered, again)
		}
	}
}

func TestRefRangeContains(t *testing.T) {
	r := RefRange{Min: fptr(3.5), Max: fptr(5.0)}
	if !r.Contains(4.2) || r.Contains(5.1) || r.Contains(3.4) {
		t.Fatalf("Contains misclassified bounds")
	}
	open := RefRange{Min: fptr(10)}
	if !open.Contains(1e9) || open.Contains(9.99) {
		t.Fatalf("open-sided Contains misclassified")
	}
}

func TestDeriveStatus(t *testing.T) {
	m := ExtractedMetric{Value: "5.4", Reference: RefRange{Min: fptr(3.5), Max: fptr(5.0)}}
	if m.DeriveStatus() != MetricStatusAbnormal {
		t.Fatalf("expected abnormal")
	}
	m.Value = "4.0"
	if m.DeriveStatus() != MetricStatusNormal {
		t.Fatalf("expected normal")
	}
	m.Value = "positive"
	if m.DeriveStatus() != MetricStatusNormal {
		t.Fatalf("non-numeric values stay normal")
	}
	if (ExtractedMetric{Value: "99"}).DeriveStatus() != MetricStatusNormal {
		t.Fatalf("open range stays normal")
	}
}
