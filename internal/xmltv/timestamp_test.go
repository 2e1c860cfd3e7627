package xmltv

import (
	"testing"
	"time"
)

func TestParseTimestampWithOffset(t *testing.T) {
	ts, off, has, err := ParseTimestamp("20240610120000 +0100")
	if err != nil {
		t.Fatalf("ParseTimestamp: %v", err)
	}
	if !has || off != 60 {
		t.Fatalf("expected offset 60, got %d (has=%v)", off, has)
	}
	want := time.Date(2024, 6, 10, 11, 0, 0, 0, time.UTC)
	if !ts.Equal(want) {
		t.Fatalf("got %v want %v", ts, want)
	}
}

func TestParseTimestampNoOffsetIsUTC(t *testing.T) {
	ts, off, has, err := ParseTimestamp("20240610120000")
	if err != nil {
		t.Fatalf("ParseTimestamp: %v", err)
	}
	if has || off != 0 {
		t.Fatalf("expected no offset, got %d (has=%v)", off, has)
	}
	want := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	if !ts.Equal(want) {
		t.Fatalf("got %v want %v", ts, want)
	}
}

func TestParseTimestampZ(t *testing.T) {
	ts, _, has, err := ParseTimestamp("20240610120000 Z")
	if err != nil {
		t.Fatalf("ParseTimestamp: %v", err)
	}
	if !has {
		t.Fatalf("expected explicit offset flag for Z")
	}
	want := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	if !ts.Equal(want) {
		t.Fatalf("got %v want %v", ts, want)
	}
}

func TestParseTimestampNegativeOffset(t *testing.T) {
	ts, off, _, err := ParseTimestamp("20240610120000 -0530")
	if err != nil {
		t.Fatalf("ParseTimestamp: %v", err)
	}
	if off != -330 {
		t.Fatalf("expected -330 minutes, got %d", off)
	}
	want := time.Date(2024, 6, 10, 17, 30, 0, 0, time.UTC)
	if !ts.Equal(want) {
		t.Fatalf("got %v want %v", ts, want)
	}
}

func TestParseTimestampMalformed(t *testing.T) {
	if _, _, _, err := ParseTimestamp("not-a-date"); err == nil {
		t.Fatal("expected error for malformed timestamp")
	}
}

func TestFormatTimestampRoundTrip(t *testing.T) {
	wall := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	got := FormatTimestamp(wall, 60)
	if got != "20240610120000 +0100" {
		t.Fatalf("got %q", got)
	}
}

func TestClampOffsetMinutes(t *testing.T) {
	cases := []struct{ in, want int }{
		{0, 0},
		{840, 840},
		{841, 840},
		{-841, -840},
		{100, 100},
	}
	for _, c := range cases {
		if got := ClampOffsetMinutes(c.in); got != c.want {
			t.Errorf("ClampOffsetMinutes(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}
