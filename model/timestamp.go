package model

import (
	"fmt"
	"strings"
	"time"
)

// TimeLayout is the wire format for all job timestamps.
const TimeLayout = "2006-01-02T15:04:05"

// Timestamp is a time.Time that marshals as "yyyy-MM-ddTHH:mm:ss" without a
// zone suffix, matching the format the status endpoints have always emitted.
type Timestamp struct {
	time.Time
}

// Now returns the current time as a Timestamp, truncated to seconds.
func Now() Timestamp {
	return Timestamp{time.Now().Truncate(time.Second)}
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + t.Format(TimeLayout) + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler. It accepts the wire layout as
// well as RFC 3339 for tolerance toward hand-written payloads.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "null" || s == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range []string{TimeLayout, time.RFC3339} {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("invalid timestamp %q", s)
}
