package mileage

import (
	"fmt"
	"time"
)

// MonthWindow is the half-open calendar month [first of month, first of next
// month) in Location. MonthIndex is zero based: January is 0, December is 11.
type MonthWindow struct {
	MonthIndex int
	Year       int
	Location   *time.Location
}

// NewMonthWindow builds a window from a calendar month.
func NewMonthWindow(year int, month time.Month, loc *time.Location) MonthWindow {
	return MonthWindow{MonthIndex: int(month) - 1, Year: year, Location: loc}
}

// Valid reports whether MonthIndex names a real month.
func (w MonthWindow) Valid() bool {
	return w.MonthIndex >= 0 && w.MonthIndex <= 11
}

// Month returns the calendar month of the window.
func (w MonthWindow) Month() time.Month {
	return time.Month(w.MonthIndex + 1)
}

func (w MonthWindow) location() *time.Location {
	if w.Location == nil {
		return time.Local
	}
	return w.Location
}

// Bounds returns the inclusive start and exclusive end of the window.
func (w MonthWindow) Bounds() (time.Time, time.Time) {
	start := time.Date(w.Year, w.Month(), 1, 0, 0, 0, 0, w.location())
	return start, start.AddDate(0, 1, 0)
}

// Contains reports whether t falls inside the window. An invalid window
// contains nothing.
func (w MonthWindow) Contains(t time.Time) bool {
	if !w.Valid() {
		return false
	}
	start, end := w.Bounds()
	return !t.Before(start) && t.Before(end)
}

// Title renders the window as "January 2026".
func (w MonthWindow) Title() string {
	return fmt.Sprintf("%s %d", w.Month(), w.Year)
}

func (w MonthWindow) String() string {
	return fmt.Sprintf("%04d-%02d", w.Year, w.MonthIndex+1)
}
