package zaptec

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Field names in priority order.
var (
	startFields  = []string{"StartDateTime", "StartDate"}
	endFields    = []string{"EndDateTime", "EndDate"}
	energyFields = []string{"KWh", "kWh", "Energy"}
)

// ParseZaptecTime parses Zaptec API timestamps and converts to local timezone.
// Timestamps without an offset are taken as UTC.
func ParseZaptecTime(timeStr string, localTimezone *time.Location) time.Time {
	timeStr = strings.TrimSpace(timeStr)
	if timeStr == "" || timeStr == "0001-01-01T00:00:00" || timeStr == "0001-01-01T00:00:00Z" {
		return time.Time{}
	}

	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, timeStr); err == nil {
			return t.In(localTimezone)
		}
	}

	return time.Time{}
}

// ExtractSessionBounds returns the start and end of a session. The end falls
// back to the start when absent. ok is false when no parsable start exists
// or the end is present but unparsable.
func ExtractSessionBounds(entry SessionEntry, loc *time.Location) (start, end time.Time, ok bool) {
	startValue := firstString(entry, startFields)
	if startValue == "" {
		return time.Time{}, time.Time{}, false
	}
	endValue := firstString(entry, endFields)
	if endValue == "" {
		endValue = startValue
	}

	start = ParseZaptecTime(startValue, loc)
	end = ParseZaptecTime(endValue, loc)
	if start.IsZero() || end.IsZero() {
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

// ExtractKWh reads the session energy from the first energy field holding a
// number, defaulting to 0.
func ExtractKWh(entry SessionEntry) float64 {
	for _, key := range energyFields {
		if f, ok := toFloat(entry[key]); ok {
			return f
		}
	}
	return 0
}

func firstString(entry SessionEntry, keys []string) string {
	for _, key := range keys {
		if s, ok := entry[key].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(n), ",", "."), 64)
		return f, err == nil
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
