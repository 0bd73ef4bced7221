package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DaySet is the set of weekdays a listing can be booked on.
// Bit i corresponds to time.Weekday(i), so Sunday is bit 0.
type DaySet uint8

const allDays DaySet = 1<<7 - 1

// daySeparator is the delimiter used for the stored representation.
const daySeparator = ","

// ParseWeekday resolves a weekday name ("Monday", "monday", " Mon ") to a time.Weekday.
func ParseWeekday(name string) (time.Weekday, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if len(n) < 3 {
		return 0, fmt.Errorf("unknown weekday %q", name)
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if n == full || n == full[:3] {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", name)
}

// NewDaySet builds a set from weekday names. Duplicates collapse.
func NewDaySet(names ...string) (DaySet, error) {
	var s DaySet
	for _, name := range names {
		d, err := ParseWeekday(name)
		if err != nil {
			return 0, err
		}
		s = s.With(d)
	}
	return s, nil
}

// With returns a copy of the set including d.
func (s DaySet) With(d time.Weekday) DaySet {
	return s | 1<<uint(d)
}

// Has reports whether d is in the set.
func (s DaySet) Has(d time.Weekday) bool {
	return s&(1<<uint(d)) != 0
}

// Empty reports whether no day is set.
func (s DaySet) Empty() bool {
	return s&allDays == 0
}

// Weekdays returns the members in calendar order, Sunday first.
func (s DaySet) Weekdays() []time.Weekday {
	var out []time.Weekday
	for d := time.Sunday; d <= time.Saturday; d++ {
		if s.Has(d) {
			out = append(out, d)
		}
	}
	return out
}

// Names returns the English weekday names in calendar order.
func (s DaySet) Names() []string {
	days := s.Weekdays()
	names := make([]string, 0, len(days))
	for _, d := range days {
		names = append(names, d.String())
	}
	return names
}

// String renders the stored form, e.g. "Monday,Wednesday,Friday".
func (s DaySet) String() string {
	return strings.Join(s.Names(), daySeparator)
}

// ParseDaySet decodes the stored delimited form. Blank segments are skipped.
func ParseDaySet(stored string) (DaySet, error) {
	var s DaySet
	for _, part := range strings.Split(stored, daySeparator) {
		if strings.TrimSpace(part) == "" {
			continue
		}
		d, err := ParseWeekday(part)
		if err != nil {
			return 0, err
		}
		s = s.With(d)
	}
	return s, nil
}

// Value implements driver.Valuer. The delimited string only exists in storage.
func (s DaySet) Value() (driver.Value, error) {
	return s.String(), nil
}

// Scan implements sql.Scanner.
func (s *DaySet) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*s = 0
		return nil
	case string:
		parsed, err := ParseDaySet(v)
		if err != nil {
			return err
		}
		*s = parsed
		return nil
	case []byte:
		return s.Scan(string(v))
	default:
		return fmt.Errorf("cannot scan %T into DaySet", src)
	}
}

// MarshalJSON renders the set as an array of names.
func (s DaySet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Names())
}

// UnmarshalJSON accepts either an array of names or a delimited string.
func (s *DaySet) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err == nil {
		parsed, err := NewDaySet(names...)
		if err != nil {
			return err
		}
		*s = parsed
		return nil
	}
	var stored string
	if err := json.Unmarshal(data, &stored); err != nil {
		return fmt.Errorf("days must be an array of weekday names")
	}
	parsed, err := ParseDaySet(stored)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
