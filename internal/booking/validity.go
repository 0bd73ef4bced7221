// Package booking decides whether a requested booking is admissible for a
// listing and prices it. It never touches storage; the date conflict check
// lives with the caller that owns the transaction.
package booking

import (
	"fmt"
	"time"

	"github.com/hawkpark/hawkpark-be/internal/models"
)

// DateLayout is the calendar-date format used for booking dates.
const DateLayout = "2006-01-02"

// Request is a proposed booking for a single date.
type Request struct {
	Date  string // YYYY-MM-DD
	Start string // HH:MM or h:MM AM/PM
	End   string
}

// Quote is a validated, priced booking draft.
type Quote struct {
	Date      string       `json:"booking_date"`
	Weekday   time.Weekday `json:"-"`
	StartHour int          `json:"-"`
	EndHour   int          `json:"-"`
	Start     string       `json:"start_time"`
	End       string       `json:"end_time"`
	Hours     int          `json:"hours"`
	Total     models.Money `json:"total_price"`
}

// Window is a listing's bookable hour range, [Open, Close).
type Window struct {
	Open  int
	Close int
}

// ListingWindow derives the whole-hour window from a listing's display times.
func ListingWindow(l models.Listing) (Window, error) {
	open, err := HourOf(l.AvailabilityFrom)
	if err != nil {
		return Window{}, fmt.Errorf("availability_from: %w", err)
	}
	closing, err := HourOf(l.AvailabilityTo)
	if err != nil {
		return Window{}, fmt.Errorf("availability_to: %w", err)
	}
	if closing <= open {
		return Window{}, fmt.Errorf("availability window %s-%s is empty", l.AvailabilityFrom, l.AvailabilityTo)
	}
	return Window{Open: open, Close: closing}, nil
}

// StartHours lists the hours a booking may start at: [Open, Close-1].
func (w Window) StartHours() []int {
	return hourRange(w.Open, w.Close-1)
}

// EndHours lists the hours a booking may end at: [Open+1, Close].
func (w Window) EndHours() []int {
	return hourRange(w.Open+1, w.Close)
}

// CanStart reports whether h is a valid start hour.
func (w Window) CanStart(h int) bool {
	return h >= w.Open && h <= w.Close-1
}

// CanEnd reports whether h is a valid end hour.
func (w Window) CanEnd(h int) bool {
	return h >= w.Open+1 && h <= w.Close
}

func hourRange(from, to int) []int {
	if to < from {
		return nil
	}
	out := make([]int, 0, to-from+1)
	for h := from; h <= to; h++ {
		out = append(out, h)
	}
	return out
}

// Slot is a selectable hour option.
type Slot struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Slots returns the start and end options offered for a window.
func (w Window) Slots() (starts, ends []Slot) {
	for _, h := range w.StartHours() {
		starts = append(starts, Slot{Value: FormatHour(h), Label: DisplayHour(h)})
	}
	for _, h := range w.EndHours() {
		ends = append(ends, Slot{Value: FormatHour(h), Label: DisplayHour(h)})
	}
	return starts, ends
}

// ValidateAndPrice checks a request against the listing's days and hours and
// computes the charge. The time range is checked before the day so that an
// inverted range is always reported as such.
func ValidateAndPrice(l models.Listing, req Request) (Quote, error) {
	start, end, err := parseRange(req.Start, req.End)
	if err != nil {
		return Quote{}, err
	}

	date, err := time.Parse(DateLayout, req.Date)
	if err != nil {
		return Quote{}, models.NewAppError(models.CodeInvalidFields, "booking_date must be a date in YYYY-MM-DD format")
	}
	weekday := date.Weekday()
	if !l.Days.Has(weekday) {
		return Quote{}, models.NewAppError(models.CodeDayNotAvailable,
			fmt.Sprintf("This parking spot is not available on %s", weekday))
	}

	w, err := ListingWindow(l)
	if err != nil {
		return Quote{}, &models.AppError{
			Code:    models.CodeOutsideAvailability,
			Message: "listing has no bookable hours",
			Err:     err,
		}
	}
	if !w.CanStart(start) || !w.CanEnd(end) {
		return Quote{}, models.NewAppError(models.CodeOutsideAvailability,
			fmt.Sprintf("Booking must fall within %s - %s", l.AvailabilityFrom, l.AvailabilityTo))
	}

	hours := end - start
	return Quote{
		Date:      date.Format(DateLayout),
		Weekday:   weekday,
		StartHour: start,
		EndHour:   end,
		Start:     FormatHour(start),
		End:       FormatHour(end),
		Hours:     hours,
		Total:     l.Price.Times(hours),
	}, nil
}

func parseRange(startRaw, endRaw string) (int, int, error) {
	start, err := ParseClock(startRaw)
	if err != nil {
		return 0, 0, models.NewAppError(models.CodeInvalidTimeRange, "start_time is not a valid time")
	}
	end, err := ParseClock(endRaw)
	if err != nil {
		return 0, 0, models.NewAppError(models.CodeInvalidTimeRange, "end_time is not a valid time")
	}
	if start.Minute != 0 || end.Minute != 0 {
		return 0, 0, models.NewAppError(models.CodeInvalidTimeRange, "bookings are made in whole hours")
	}
	if end.Hour <= start.Hour {
		return 0, 0, models.NewAppError(models.CodeInvalidTimeRange, "End time must be after start time")
	}
	return start.Hour, end.Hour, nil
}
