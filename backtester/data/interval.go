package data

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Interval is the duration of a bar
type Interval time.Duration

// Supported intervals
const (
	OneMin     = Interval(time.Minute)
	FiveMin    = OneMin * 5
	FifteenMin = OneMin * 15
	ThirtyMin  = OneMin * 30
	OneHour    = Interval(time.Hour)
	FourHour   = OneHour * 4
	OneDay     = OneHour * 24
	OneWeek    = OneDay * 7
)

// Duration returns interval casted as time.Duration for compatibility
func (i Interval) Duration() time.Duration {
	return time.Duration(i)
}

// String returns the short form of the interval, for example 1m, 4h or 1d
func (i Interval) String() string {
	d := time.Duration(i)
	switch {
	case d <= 0:
		return "0"
	case d%(7*24*time.Hour) == 0:
		return strconv.FormatInt(int64(d/(7*24*time.Hour)), 10) + "w"
	case d%(24*time.Hour) == 0:
		return strconv.FormatInt(int64(d/(24*time.Hour)), 10) + "d"
	case d%time.Hour == 0:
		return strconv.FormatInt(int64(d/time.Hour), 10) + "h"
	case d%time.Minute == 0:
		return strconv.FormatInt(int64(d/time.Minute), 10) + "m"
	}
	return d.String()
}

// MarshalText implements encoding.TextMarshaler so intervals can key JSON maps
func (i Interval) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (i *Interval) UnmarshalText(b []byte) error {
	v, err := ParseInterval(string(b))
	if err != nil {
		return err
	}
	*i = v
	return nil
}

// ParseInterval parses short interval notation such as 15m, 1h, 1d or 1w.
// Anything time.ParseDuration understands is also accepted
func ParseInterval(s string) (Interval, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidInterval)
	}
	unit := s[len(s)-1]
	var mult time.Duration
	switch unit {
	case 'd':
		mult = 24 * time.Hour
	case 'w':
		mult = 7 * 24 * time.Hour
	}
	if mult > 0 {
		n, err := strconv.ParseInt(s[:len(s)-1], 10, 64)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("%w: %q", ErrInvalidInterval, s)
		}
		return Interval(time.Duration(n) * mult), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidInterval, s)
	}
	return Interval(d), nil
}
