// Package xmltv holds the wire model shared by the streaming parser and the
// export renderer: the XMLTV element vocabulary this system understands, and
// the timestamp grammar used on the wire.
package xmltv

import "time"

// Channel is the channel header emitted between <channel> and </channel>.
type Channel struct {
	ID          string
	DisplayName string
	IconURL     string
}

// Programme is the atomic schedule record for one channel.
//
// StartRaw/StopRaw preserve the original XMLTV timestamp text (including its
// numeric offset) exactly as it appeared on the wire, so a pass-through
// export can reproduce it byte for byte.
type Programme struct {
	ChannelID   string
	StartUTC    time.Time
	StopUTC     time.Time // zero Time means absent
	StartRaw    string
	StopRaw     string
	Title       string
	Description string
	Category    string
	IconURL     string
}

// HasStop reports whether StopUTC/StopRaw are populated.
func (p Programme) HasStop() bool { return p.StopRaw != "" }

// Window is a half-open UTC interval [From, To). A zero From or To leaves
// that side unbounded, so the zero value filters nothing; NoWindow set means
// "no time filter applies" whatever From and To hold.
type Window struct {
	From     time.Time
	To       time.Time
	NoWindow bool
}

// Overlaps reports whether [start,stop) overlaps the window. A zero stop
// means "open-ended" (absent).
func (w Window) Overlaps(start, stop time.Time) bool {
	if w.NoWindow {
		return true
	}
	beforeTo := func(t time.Time) bool { return w.To.IsZero() || t.Before(w.To) }
	afterFrom := func(t time.Time) bool { return w.From.IsZero() || t.After(w.From) }
	hasStop := !stop.IsZero()
	cond1 := beforeTo(start) && (!hasStop || afterFrom(stop))
	cond2 := hasStop && afterFrom(stop) && (start.IsZero() || beforeTo(start))
	return cond1 || cond2
}
