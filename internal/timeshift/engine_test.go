package timeshift

import (
	"testing"
	"time"

	"epgviewer/internal/xmltv"
)

func TestFormatFastPathPassthrough(t *testing.T) {
	e := Engine{}
	got, err := e.Format(Params{
		UTC:           time.Date(2024, 6, 10, 11, 0, 0, 0, time.UTC),
		Raw:           "20240610120000 +0100",
		OffsetMinutes: 0,
		Mode:          ModeWall,
	})
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if got != "20240610120000 +0100" {
		t.Fatalf("got %q", got)
	}
}

func TestFormatForceZeroOffsetKeepsWallDigits(t *testing.T) {
	e := Engine{}
	got, err := e.Format(Params{
		UTC:             time.Date(2024, 6, 10, 11, 0, 0, 0, time.UTC),
		Raw:             "20240610120000 +0100",
		OffsetMinutes:   0,
		Mode:            ModeWall,
		ForceZeroOffset: true,
	})
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if got != "20240610120000 +0000" {
		t.Fatalf("got %q", got)
	}
}

func TestFormatOffsetModePassThroughDigitsAdjustOffset(t *testing.T) {
	e := Engine{}
	// input start 20240610120000 +0200, offsetMinutes=30, mode=offset
	utc, _, _, _ := mustParse("20240610120000 +0200")
	got, err := e.Format(Params{
		UTC:           utc,
		Raw:           "20240610120000 +0200",
		OffsetMinutes: 30,
		Mode:          ModeOffset,
	})
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if got != "20240610120000 +0230" {
		t.Fatalf("got %q", got)
	}
}

func TestFormatOffsetModeThenForceZero(t *testing.T) {
	e := Engine{}
	utc, _, _, _ := mustParse("20240610120000 +0200")
	got, err := e.Format(Params{
		UTC:             utc,
		Raw:             "20240610120000 +0200",
		OffsetMinutes:   30,
		Mode:            ModeOffset,
		ForceZeroOffset: true,
	})
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if got != "20240610120000 +0000" {
		t.Fatalf("got %q, wall digits must survive force-zero", got)
	}
}

func TestFormatWallModeWithZoneDST(t *testing.T) {
	e := Engine{}
	// Just before BST begins: 2024-03-31T00:30:00Z is still GMT (UTC+0) in
	// London; London switches to BST (UTC+1) at 01:00 UTC that day.
	utc := time.Date(2024, 3, 31, 0, 30, 0, 0, time.UTC)
	got, err := e.Format(Params{
		UTC:           utc,
		ZoneID:        "Europe/London",
		OffsetMinutes: 60,
		Mode:          ModeWall,
	})
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	// Shifted instant is 01:30 UTC, which is already BST (+0100): local wall
	// is 02:30 BST.
	if got != "20240331023000 +0100" {
		t.Fatalf("got %q", got)
	}
}

func TestFormatWallModeZoneDSTHonoredAtEachInstant(t *testing.T) {
	e := Engine{}
	// Second case, entirely within BST already.
	utc := time.Date(2024, 6, 10, 11, 0, 0, 0, time.UTC)
	got, err := e.Format(Params{
		UTC:           utc,
		ZoneID:        "Europe/London",
		OffsetMinutes: 0,
		Mode:          ModeWall,
	})
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if got != "20240610120000 +0100" {
		t.Fatalf("got %q", got)
	}
}

func TestFormatWallModeNoZoneUsesFixedOriginalOffset(t *testing.T) {
	e := Engine{}
	utc, _, _, _ := mustParse("20240610120000 +0100")
	got, err := e.Format(Params{
		UTC:           utc,
		Raw:           "20240610120000 +0100",
		OffsetMinutes: 60,
		Mode:          ModeWall,
	})
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if got != "20240610130000 +0100" {
		t.Fatalf("got %q", got)
	}
}

func TestFormatWallModeNoZoneNoRawOffset(t *testing.T) {
	e := Engine{}
	utc := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	got, err := e.Format(Params{
		UTC:           utc,
		OffsetMinutes: 60,
		Mode:          ModeWall,
	})
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if got != "20240610130000 +0000" {
		t.Fatalf("got %q", got)
	}
}

func TestFormatOffsetModeClampsToFourteenHours(t *testing.T) {
	e := Engine{}
	utc, _, _, _ := mustParse("20240610120000 +1300")
	got, err := e.Format(Params{
		UTC:           utc,
		Raw:           "20240610120000 +1300",
		OffsetMinutes: 120,
		Mode:          ModeOffset,
	})
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if got != "20240610120000 +1400" {
		t.Fatalf("got %q, expected clamp to +1400", got)
	}
}

func mustParse(raw string) (time.Time, int, bool, error) {
	return xmltv.ParseTimestamp(raw)
}
