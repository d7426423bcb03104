package httpdto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
}

// ParseTimestamp accepts RFC3339 strings, zone-less LocalDateTime strings
// (interpreted in loc), epoch milliseconds, and the [y,M,d,h,m,s,nanos]
// array form Jackson writes when date serialization is left at its default.
func ParseTimestamp(raw json.RawMessage, loc *time.Location) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, err
		}
		return parseTimestampString(strings.TrimSpace(s), loc)
	case '[':
		var parts []int
		if err := json.Unmarshal(raw, &parts); err != nil {
			return time.Time{}, err
		}
		return fromParts(parts, loc)
	default:
		var ms int64
		if err := json.Unmarshal(raw, &ms); err != nil {
			return time.Time{}, err
		}
		return time.UnixMilli(ms), nil
	}
}

func parseTimestampString(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func fromParts(p []int, loc *time.Location) (time.Time, error) {
	if len(p) < 3 {
		return time.Time{}, fmt.Errorf("timestamp array too short: %v", p)
	}
	get := func(i int) int {
		if i < len(p) {
			return p[i]
		}
		return 0
	}
	return time.Date(p[0], time.Month(p[1]), p[2], get(3), get(4), get(5), get(6), loc), nil
}
