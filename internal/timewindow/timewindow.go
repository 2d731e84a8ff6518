// Package timewindow parses the gateway's time-window configuration values:
// either a bare non-negative integer (milliseconds) or a string of the form
// "<digits><unit>" where unit is one of ms, s, m, h, d.
package timewindow

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var pattern = regexp.MustCompile(`^(\d+)(ms|s|m|h|d)$`)

var unitMillis = map[string]int64{
	"ms": 1,
	"s":  int64(time.Second / time.Millisecond),
	"m":  int64(time.Minute / time.Millisecond),
	"h":  int64(time.Hour / time.Millisecond),
	"d":  24 * int64(time.Hour/time.Millisecond),
}

// Parse accepts a non-negative integer (milliseconds), an int64/uint64/float64
// carrying the same, a string matching the unit-suffixed form, or a bare
// digit string (milliseconds), and returns the duration in milliseconds.
// Anything else is rejected.
func Parse(v interface{}) (uint64, error) {
	switch t := v.(type) {
	case string:
		return parseString(t)
	case int:
		return parseInt(int64(t))
	case int64:
		return parseInt(t)
	case uint64:
		return t, nil
	case float64:
		if t < 0 || t != float64(int64(t)) {
			return 0, newInvalidErr(fmt.Sprintf("%v", v))
		}
		return uint64(t), nil
	default:
		return 0, newInvalidErr(fmt.Sprintf("%v", v))
	}
}

func parseInt(n int64) (uint64, error) {
	if n < 0 {
		return 0, newInvalidErr(strconv.FormatInt(n, 10))
	}
	return uint64(n), nil
}

func parseString(s string) (uint64, error) {
	m := pattern.FindStringSubmatch(s)
	if m == nil {
		// A bare digit string is also accepted as a millisecond count.
		if n, err := strconv.ParseUint(s, 10, 64); err == nil {
			return n, nil
		}
		return 0, newInvalidErr(s)
	}
	n, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil {
		return 0, newInvalidErr(s)
	}
	return n * uint64(unitMillis[m[2]]), nil
}

// ParseDuration is a convenience wrapper returning a time.Duration.
func ParseDuration(v interface{}) (time.Duration, error) {
	ms, err := Parse(v)
	if err != nil {
		return 0, err
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// InvalidTimeWindowError reports that a value could not be parsed as a time
// window. config.Resolve wraps it as a gwerrors AI_OPTIONS_ERROR.
type InvalidTimeWindowError struct {
	Value string
}

func (e *InvalidTimeWindowError) Error() string {
	return fmt.Sprintf("invalid time window: %q", e.Value)
}

func newInvalidErr(value string) error {
	return &InvalidTimeWindowError{Value: value}
}
