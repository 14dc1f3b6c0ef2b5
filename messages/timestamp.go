package messages

import (
	"fmt"
	"strconv"
	"time"
)

// timestampLayouts are tried in order. The service emits .NET round-trip
// timestamps, which carry up to seven fractional digits and may omit the zone.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.9999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Timestamp is a time.Time that decodes every timestamp form the service
// produces. Zone-less values are read as UTC.
type Timestamp struct {
	time.Time
}

// NewTimestamp wraps t.
func NewTimestamp(t time.Time) *Timestamp {
	return &Timestamp{Time: t}
}

// ParseTimestamp parses s using the accepted layouts.
func ParseTimestamp(s string) (Timestamp, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return Timestamp{Time: t}, nil
		}
	}
	return Timestamp{}, fmt.Errorf("invalid timestamp %q", s)
}

// MarshalJSON encodes the timestamp as RFC 3339 with nanoseconds.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(strconv.Quote(t.Time.Format(time.RFC3339Nano))), nil
}

// UnmarshalJSON decodes a quoted timestamp. null and "" leave t zero.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		return nil
	}
	unquoted, err := strconv.Unquote(s)
	if err != nil {
		return fmt.Errorf("invalid timestamp %s: %w", s, err)
	}
	if unquoted == "" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := ParseTimestamp(unquoted)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// TimeOf returns the wrapped time, or the zero time for nil.
func TimeOf(t *Timestamp) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.Time
}
