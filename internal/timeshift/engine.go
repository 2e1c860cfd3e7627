// Package timeshift implements the TimeShiftEngine: conversion of programme
// instants between UTC and an output XMLTV timestamp under "wall" or
// "offset" mode, with an optional IANA zone.
package timeshift

import (
	"strings"
	"time"

	"epgviewer/internal/xmltv"
)

// Mode selects how a non-zero OffsetMinutes is applied.
type Mode string

const (
	// ModeWall shifts the wall clock, honoring DST at the shifted instant.
	ModeWall Mode = "wall"
	// ModeOffset keeps wall-clock digits and adjusts only the numeric offset.
	ModeOffset Mode = "offset"
)

// Params bundles one shift request. UTC is always required (every emitted
// Programme carries a start_utc); Raw is the original XMLTV timestamp text
// when one exists, used for the fast pass-through path and as the fallback
// "fixed offset" source in wall mode.
type Params struct {
	UTC             time.Time
	Raw             string
	ZoneID          string
	OffsetMinutes   int
	Mode            Mode
	ForceZeroOffset bool
}

// Engine formats programme instants under wall or offset mode. It holds no
// state; it exists so call sites read as Engine.Format(...) and the zero
// value is always ready to use.
type Engine struct{}

// Format renders p into an XMLTV timestamp string.
func (Engine) Format(p Params) (string, error) {
	mode := p.Mode
	if mode == "" {
		mode = ModeWall
	}

	origOffset, origHasOffset := 0, false
	if p.Raw != "" {
		if _, off, has, err := xmltv.ParseTimestamp(p.Raw); err == nil {
			origOffset, origHasOffset = off, has
		}
	}

	// Fast path: zero shift and (no zone or offset mode) passes the
	// original bytes straight through, only normalizing the offset field
	// afterward if requested.
	if p.OffsetMinutes == 0 && (p.ZoneID == "" || mode == ModeOffset) && p.Raw != "" {
		return applyForceZero(p.Raw, p.ForceZeroOffset), nil
	}

	var out string
	var err error
	switch mode {
	case ModeOffset:
		out, err = formatOffsetMode(p, origOffset, origHasOffset)
	default:
		out, err = formatWallMode(p, origOffset, origHasOffset)
	}
	if err != nil {
		return "", err
	}
	return applyForceZero(out, p.ForceZeroOffset), nil
}

func formatWallMode(p Params, origOffset int, origHasOffset bool) (string, error) {
	shifted := p.UTC.Add(time.Duration(p.OffsetMinutes) * time.Minute)

	switch {
	case p.ZoneID != "":
		loc, err := time.LoadLocation(p.ZoneID)
		if err != nil {
			return "", err
		}
		wall := shifted.In(loc)
		_, offsetSec := wall.Zone()
		return xmltv.FormatTimestamp(wall, offsetSec/60), nil

	case origHasOffset:
		loc := time.FixedZone("", origOffset*60)
		wall := shifted.In(loc)
		return xmltv.FormatTimestamp(wall, origOffset), nil

	default:
		return xmltv.FormatTimestamp(shifted, 0), nil
	}
}

func formatOffsetMode(p Params, origOffset int, origHasOffset bool) (string, error) {
	var wall time.Time
	baseOffset := 0

	switch {
	case p.Raw != "":
		loc := time.FixedZone("", origOffset*60)
		w, err := xmltv.ParseWallDigits(p.Raw, loc)
		if err != nil {
			return "", err
		}
		wall = w
		if origHasOffset {
			baseOffset = origOffset
		}

	case p.ZoneID != "":
		loc, err := time.LoadLocation(p.ZoneID)
		if err != nil {
			return "", err
		}
		wall = p.UTC.In(loc)
		_, offsetSec := wall.Zone()
		baseOffset = offsetSec / 60

	default:
		wall = p.UTC
		baseOffset = 0
	}

	newOffset := xmltv.ClampOffsetMinutes(baseOffset + p.OffsetMinutes)
	return xmltv.FormatTimestamp(wall, newOffset), nil
}

// applyForceZero rewrites the numeric-offset field of an already-formatted
// timestamp to +0000 without touching the wall-clock digits.
func applyForceZero(formatted string, force bool) string {
	if !force {
		return formatted
	}
	idx := strings.IndexByte(formatted, ' ')
	if idx < 0 {
		return formatted
	}
	return formatted[:idx] + " +0000"
}
