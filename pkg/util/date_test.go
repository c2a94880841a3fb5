package util

import (
	"strconv"
	"testing"
	"time"
)

func TestParseTime(t *testing.T) {
	want := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)
	cases := []struct {
		in string
		ok bool
	}{
		{"2024-10-10T10:10:10Z", true},
		{"2024-10-10T12:10:10+02:00", true},
		{"2024-10-10T10:10:10.000Z", true},
		{"2024-10-10T10:10:10", true},
		{strconv.FormatInt(want.Unix(), 10), true},
		{"", false},
		{"yesterday", false},
		{"-5", false},
	}
	for _, tc := range cases {
		got, ok := ParseTime(tc.in)
		if ok != tc.ok {
			t.Fatalf("%q: ok = %v", tc.in, ok)
		}
		if ok && !got.Equal(want) {
			t.Fatalf("%q: got %v", tc.in, got)
		}
	}
}
