package state

import (
	"strings"
	"time"
)

// TimestampLayout is the normalized UTC layout bookmarks are written in.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

// StartDateLayout is the layout of the configured start_date.
const StartDateLayout = "2006-01-02T15:04:05Z"

var parseLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses a replication-key value into a UTC time.
// It accepts strings in the common ISO-8601 shapes and time.Time values.
func ParseTimestamp(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		if t.IsZero() {
			return time.Time{}, false
		}
		return t.UTC(), true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range parseLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC(), true
			}
		}
	}
	return time.Time{}, false
}

// FormatTimestamp renders t in the normalized UTC layout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// FromEpoch converts epoch seconds into the normalized UTC string form.
func FromEpoch(seconds int64) string {
	return FormatTimestamp(time.Unix(seconds, 0))
}
