package repository

import (
	"testing"
	"time"
)

func TestIsValidInterval(t *testing.T) {
	for _, iv := range []AggregationInterval{1, 15, 30, 60, 120, 240, 1440} {
		if !IsValidInterval(iv) {
			t.Fatalf("expected %d to be valid", iv)
		}
	}
	for _, iv := range []AggregationInterval{0, -1, 5, 45, 10080} {
		if IsValidInterval(iv) {
			t.Fatalf("expected %d to be invalid", iv)
		}
	}
}

func TestIntervalDuration(t *testing.T) {
	if got := Interval4h.Duration(); got != 4*time.Hour {
		t.Fatalf("unexpected duration %v", got)
	}
	if got := Interval15m.RowsPerBucket(); got != 15 {
		t.Fatalf("unexpected rows per bucket %d", got)
	}
	if got := FinestInterval.RowsPerBucket(); got != 1 {
		t.Fatalf("unexpected rows per bucket %d", got)
	}
}

func TestIntervalString(t *testing.T) {
	cases := map[AggregationInterval]string{
		Interval1m:  "1m",
		Interval30m: "30m",
		Interval2h:  "2h",
		Interval1d:  "1d",
	}
	for iv, want := range cases {
		if got := iv.String(); got != want {
			t.Fatalf("%d: got %q want %q", iv, got, want)
		}
	}
}
