// Package gtime implements schedule time arithmetic as plain seconds since
// local midnight. GTFS allows clock values past 24:00:00 for trips that run
// over midnight, so a Time is not a wall-clock instant and never wraps.
package gtime

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Time is a non-negative number of seconds since local midnight of the
// service day. Values above 86400 are valid and denote the following
// calendar day (e.g. 25:10:00).
type Time int32

// Duration is a signed span of seconds.
type Duration int32

const (
	// None marks an unreached label in forward searches. Any real arrival
	// compares smaller.
	None Time = math.MaxInt32
	// NegInf marks an unreached label in reverse (latest-departure)
	// searches. Any real departure compares greater.
	NegInf Time = math.MinInt32

	secondsPerMinute = 60
	secondsPerHour   = 60 * 60
)

// Parse reads a GTFS "HH:MM:SS" clock value. HH may exceed 23.
func Parse(s string) (Time, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid time %q: want HH:MM:SS", s)
	}
	var fields [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0, fmt.Errorf("invalid time %q: %w", s, err)
		}
		fields[i] = n
	}
	h, m, sec := fields[0], fields[1], fields[2]
	if h < 0 || m < 0 || m > 59 || sec < 0 || sec > 59 {
		return 0, fmt.Errorf("invalid time %q: component out of range", s)
	}
	return Time(h*secondsPerHour + m*secondsPerMinute + sec), nil
}

// FromSeconds wraps a raw seconds-since-midnight value.
func FromSeconds(secs int) Time {
	return Time(secs)
}

// Seconds returns the raw seconds-since-midnight value.
func (t Time) Seconds() int {
	return int(t)
}

// Valid reports whether t carries a real schedule value rather than a
// search sentinel.
func (t Time) Valid() bool {
	return t != None && t != NegInf
}

// String formats the time as HH:MM:SS. Hours above 23 print as-is, so
// parsing and re-formatting round-trips for any HH.
func (t Time) String() string {
	h := t / secondsPerHour
	m := (t % secondsPerHour) / secondsPerMinute
	s := t % secondsPerMinute
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// Add advances the time by d seconds.
func (t Time) Add(d Duration) Time {
	return t + Time(d)
}

// Sub moves the time back by d seconds, saturating at midnight.
func (t Time) Sub(d Duration) Time {
	if Time(d) > t {
		return 0
	}
	return t - Time(d)
}

// Since returns the signed span from u to t.
func (t Time) Since(u Time) Duration {
	return Duration(t - u)
}
