package booking

import (
	"fmt"
	"strconv"
	"strings"
)

// Clock is a time of day with minute precision.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock accepts 24-hour "HH:MM" (e.g. "09:00", "17:00") or 12-hour
// display strings (e.g. "8:00 AM", "12:30 pm").
func ParseClock(s string) (Clock, error) {
	raw := strings.TrimSpace(s)
	upper := strings.ToUpper(raw)

	period := ""
	switch {
	case strings.HasSuffix(upper, "AM"):
		period = "AM"
	case strings.HasSuffix(upper, "PM"):
		period = "PM"
	}
	body := strings.TrimSpace(strings.TrimSuffix(upper, period))

	hh, mm, ok := strings.Cut(body, ":")
	if !ok {
		return Clock{}, fmt.Errorf("invalid time %q", s)
	}
	hour, err := strconv.Atoi(hh)
	if err != nil {
		return Clock{}, fmt.Errorf("invalid time %q", s)
	}
	minute, err := strconv.Atoi(mm)
	if err != nil || len(mm) != 2 || minute < 0 || minute > 59 {
		return Clock{}, fmt.Errorf("invalid time %q", s)
	}

	if period != "" {
		if hour < 1 || hour > 12 {
			return Clock{}, fmt.Errorf("invalid time %q", s)
		}
		if period == "PM" && hour != 12 {
			hour += 12
		}
		if period == "AM" && hour == 12 {
			hour = 0
		}
	} else if hour < 0 || hour > 24 || (hour == 24 && minute != 0) {
		return Clock{}, fmt.Errorf("invalid time %q", s)
	}
	return Clock{Hour: hour, Minute: minute}, nil
}

// HourOf parses s and returns its hour, discarding minutes.
func HourOf(s string) (int, error) {
	c, err := ParseClock(s)
	if err != nil {
		return 0, err
	}
	return c.Hour, nil
}

// FormatHour renders a whole hour in the 24-hour form used for bookings, e.g. "09:00".
func FormatHour(h int) string {
	return fmt.Sprintf("%02d:00", h)
}

// DisplayHour renders a whole hour in the 12-hour display form, e.g. "9:00 AM".
func DisplayHour(h int) string {
	h12 := h % 12
	if h12 == 0 {
		h12 = 12
	}
	period := "AM"
	if h%24 >= 12 {
		period = "PM"
	}
	return fmt.Sprintf("%d:00 %s", h12, period)
}
