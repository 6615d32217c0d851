package clock

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidTime is returned for anything that isn't a well-formed
// HH:MM or HH:MM:SS time of day.
var ErrInvalidTime = errors.New("invalid time of day")

const (
	secondsPerMinute = 60
	secondsPerHour   = 60 * secondsPerMinute
	secondsPerDay    = 24 * secondsPerHour

	// Service day hours go up to 99.
	maxHour    = 99
	maxSeconds = (maxHour+1)*secondsPerHour - 1
)

// TimeOfDay is a number of seconds after midnight of a service
// day. Values past 24:00:00 belong to the following calendar day(s)
// and are never wrapped.
type TimeOfDay int

// Parses "HH:MM" or "HH:MM:SS". Seconds default to 0.
func Parse(s string) (TimeOfDay, error) {
	split := strings.Split(strings.TrimSpace(s), ":")
	if len(split) != 2 && len(split) != 3 {
		return 0, fmt.Errorf("%w: found %d parts in '%s'", ErrInvalidTime, len(split), s)
	}

	hms := [3]int{}
	for i, str := range split {
		if str == "" || len(str) > 2 {
			return 0, fmt.Errorf("%w: bad field in '%s' pos %d", ErrInvalidTime, s, i)
		}
		// Atoi would take a sign
		for _, c := range str {
			if c < '0' || c > '9' {
				return 0, fmt.Errorf("%w: non-digit in '%s' pos %d", ErrInvalidTime, s, i)
			}
		}
		j, err := strconv.Atoi(str)
		if err != nil {
			return 0, fmt.Errorf("%w: non-integer in '%s' pos %d", ErrInvalidTime, s, i)
		}
		hms[i] = j
	}

	if hms[0] < 0 || hms[0] > maxHour {
		return 0, fmt.Errorf("%w: invalid hour in '%s'", ErrInvalidTime, s)
	}
	if hms[1] < 0 || hms[1] > 59 {
		return 0, fmt.Errorf("%w: invalid minute in '%s'", ErrInvalidTime, s)
	}
	if hms[2] < 0 || hms[2] > 59 {
		return 0, fmt.Errorf("%w: invalid second in '%s'", ErrInvalidTime, s)
	}

	return TimeOfDay(hms[0]*secondsPerHour + hms[1]*secondsPerMinute + hms[2]), nil
}

// MustParse is Parse for constants and tests.
func MustParse(s string) TimeOfDay {
	t, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return t
}

// AddSeconds adds delta seconds to a HH:MM[:SS] string and returns
// the result in the same display format.
func AddSeconds(s string, delta int) (string, error) {
	t, err := Parse(s)
	if err != nil {
		return "", err
	}
	res, err := t.Add(delta)
	if err != nil {
		return "", err
	}
	return res.String(), nil
}

func (t TimeOfDay) Add(delta int) (TimeOfDay, error) {
	res := int(t) + delta
	if res < 0 || res > maxSeconds {
		return 0, fmt.Errorf("%w: %s%+ds is out of range", ErrInvalidTime, t, delta)
	}
	return TimeOfDay(res), nil
}

// Seconds elapsed from t to other.
func (t TimeOfDay) Until(other TimeOfDay) int {
	return int(other) - int(t)
}

func (t TimeOfDay) hms() (int, int, int) {
	s := int(t)
	return s / secondsPerHour, (s % secondsPerHour) / secondsPerMinute, s % secondsPerMinute
}

// String renders HH:MM when the seconds component is zero, and
// HH:MM:SS otherwise. Hours may exceed 23.
func (t TimeOfDay) String() string {
	h, m, s := t.hms()
	if s == 0 {
		return fmt.Sprintf("%02d:%02d", h, m)
	}
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// Day is the number of whole days t lies past its service day.
func (t TimeOfDay) Day() int {
	return int(t) / secondsPerDay
}

// Wall renders t on a 24h clock, with a "+N" day suffix when t
// rolled past midnight.
func (t TimeOfDay) Wall() string {
	wall := TimeOfDay(int(t) % secondsPerDay).String()
	if d := t.Day(); d > 0 {
		return fmt.Sprintf("%s +%d", wall, d)
	}
	return wall
}

func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *TimeOfDay) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Used by gocsv.
func (t *TimeOfDay) UnmarshalCSV(s string) error {
	return t.UnmarshalText([]byte(s))
}
