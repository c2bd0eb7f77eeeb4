// Package shift centralizes the work-shift calendar: which local date a
// moment belongs to, when a shift starts, and whether a moment falls
// inside the working window.
package shift

import (
	"errors"
	"fmt"
	"time"
)

// DateLayout is the format of ShiftRecord.Date.
const DateLayout = "2006-01-02"

// Window describes the daily working window in a fixed local zone.
type Window struct {
	StartHour   int
	StartMinute int
	EndHour     int
	EndMinute   int
	HoursPerDay float64
	Location    *time.Location
}

// NewWindow builds a Window for a fixed UTC offset expressed in hours.
func NewWindow(startHour, startMinute, endHour, endMinute int, hoursPerDay float64, utcOffsetHours int) (Window, error) {
	if startHour < 0 || startHour > 23 || endHour < 0 || endHour > 24 {
		return Window{}, fmt.Errorf("shift: hour out of range (start=%d end=%d)", startHour, endHour)
	}
	if startMinute < 0 || startMinute > 59 || endMinute < 0 || endMinute > 59 {
		return Window{}, fmt.Errorf("shift: minute out of range (start=%d end=%d)", startMinute, endMinute)
	}
	if startHour*60+startMinute >= endHour*60+endMinute {
		return Window{}, fmt.Errorf("shift: start %02d:%02d is not before end %02d:%02d",
			startHour, startMinute, endHour, endMinute)
	}
	if hoursPerDay <= 0 {
		return Window{}, fmt.Errorf("shift: hours per day must be positive, got %v", hoursPerDay)
	}
	name := fmt.Sprintf("UTC%+d", utcOffsetHours)
	return Window{
		StartHour:   startHour,
		StartMinute: startMinute,
		EndHour:     endHour,
		EndMinute:   endMinute,
		HoursPerDay: hoursPerDay,
		Location:    time.FixedZone(name, utcOffsetHours*3600),
	}, nil
}

func (w Window) location() *time.Location {
	if w.Location == nil {
		return time.UTC
	}
	return w.Location
}

// LocalDate returns the shift-local calendar date of t shifted by
// offsetDays, formatted as YYYY-MM-DD.
func (w Window) LocalDate(t time.Time, offsetDays int) string {
	return t.In(w.location()).AddDate(0, 0, offsetDays).Format(DateLayout)
}

// Start returns the instant the shift of the given date begins.
func (w Window) Start(date string) (time.Time, error) {
	day, err := time.ParseInLocation(DateLayout, date, w.location())
	if err != nil {
		return time.Time{}, fmt.Errorf("%w %q: %v", ErrInvalidDate, date, err)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), w.StartHour, w.StartMinute, 0, 0, w.location()), nil
}

// End returns the instant the shift of the given date closes.
func (w Window) End(date string) (time.Time, error) {
	start, err := w.Start(date)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(start.Year(), start.Month(), start.Day(), w.EndHour, w.EndMinute, 0, 0, w.location()), nil
}

// Contains reports whether t falls inside the working window:
// start inclusive, end exclusive, at minute resolution.
func (w Window) Contains(t time.Time) bool {
	local := t.In(w.location())
	current := local.Hour()*60 + local.Minute()
	return current >= w.StartHour*60+w.StartMinute && current < w.EndHour*60+w.EndMinute
}

// Started reports whether the shift of t's local date has begun by t.
func (w Window) Started(t time.Time) bool {
	local := t.In(w.location())
	return local.Hour()*60+local.Minute() >= w.StartHour*60+w.StartMinute
}

// NextStart returns the first shift start strictly after t.
func (w Window) NextStart(t time.Time) time.Time {
	local := t.In(w.location())
	start := time.Date(local.Year(), local.Month(), local.Day(), w.StartHour, w.StartMinute, 0, 0, w.location())
	if !start.After(t) {
		start = start.AddDate(0, 0, 1)
	}
	return start
}

// String formats the window as "06:00 - 18:00".
func (w Window) String() string {
	return fmt.Sprintf("%02d:%02d - %02d:%02d", w.StartHour, w.StartMinute, w.EndHour, w.EndMinute)
}

// ErrInvalidDate is returned for dates not in YYYY-MM-DD form.
var ErrInvalidDate = errors.New("shift: invalid date")

// ParseDate parses a YYYY-MM-DD shift date.
func ParseDate(date string) (time.Time, error) {
	day, err := time.Parse(DateLayout, date)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w %q: %v", ErrInvalidDate, date, err)
	}
	return day, nil
}

// MondayOf returns the Monday of the ISO week containing date.
func MondayOf(date string) (string, error) {
	day, err := ParseDate(date)
	if err != nil {
		return "", err
	}
	diff := 1 - int(day.Weekday())
	if day.Weekday() == time.Sunday {
		diff = -6
	}
	return day.AddDate(0, 0, diff).Format(DateLayout), nil
}

// WeekDates returns the seven dates starting at monday.
func WeekDates(monday string) ([]string, error) {
	day, err := ParseDate(monday)
	if err != nil {
		return nil, err
	}
	dates := make([]string, 7)
	for i := range dates {
		dates[i] = day.AddDate(0, 0, i).Format(DateLayout)
	}
	return dates, nil
}

// MonthDates returns every date of the month containing date.
func MonthDates(date string) ([]string, error) {
	day, err := ParseDate(date)
	if err != nil {
		return nil, err
	}
	first := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
	var dates []string
	for d := first; d.Month() == first.Month(); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d.Format(DateLayout))
	}
	return dates, nil
}

var weekdayNames = [...]string{"CN", "T2", "T3", "T4", "T5", "T6", "T7"}

// Weekday returns the short Vietnamese weekday label shown by the
// dashboard ("T2" for Monday ... "CN" for Sunday).
func Weekday(date string) string {
	day, err := time.Parse(DateLayout, date)
	if err != nil {
		return ""
	}
	return weekdayNames[day.Weekday()]
}
