package model

import (
	"strings"
	"time"
)

// timestampLayouts are tried in order by ParseTimestamp. Layouts without a
// zone are interpreted as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp parses an ISO-8601 timestamp.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatMillis renders epoch milliseconds as an ISO string in UTC.
func FormatMillis(ms int64) string {
	return time.UnixMilli(ms).UTC().Format("2006-01-02T15:04:05.000Z")
}

// TimeRange is an inclusive [From, To] window. A zero bound is open.
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Bounded reports whether at least one side of the range is set.
func (r TimeRange) Bounded() bool {
	return !r.From.IsZero() || !r.To.IsZero()
}

// ContainsMillis reports whether ms falls inside the range.
func (r TimeRange) ContainsMillis(ms int64) bool {
	if !r.From.IsZero() && ms < r.From.UnixMilli() {
		return false
	}
	if !r.To.IsZero() && ms > r.To.UnixMilli() {
		return false
	}
	return true
}

// Includes reports whether a document falls inside the range. Documents
// with an unparseable timestamp only pass an unbounded range.
func (r TimeRange) Includes(d *Document) bool {
	if !r.Bounded() {
		return true
	}
	ms, ok := d.UnixMilli()
	if !ok {
		return false
	}
	return r.ContainsMillis(ms)
}
