package deduplication

import "time"

// Window is the half-open interval [Start, End) of the run's civil day
type Window struct {
	Start time.Time
	End   time.Time
}

// NewWindow returns the window for a run at runTime: from local midnight in
// loc up to runTime. A positive endHour (1..24) caps End at that local hour.
func NewWindow(runTime time.Time, loc *time.Location, endHour int) Window {
	if loc == nil {
		loc = time.UTC
	}
	local := runTime.In(loc)
	y, m, d := local.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)
	end := local

	if endHour > 0 && endHour <= 24 {
		if limit := time.Date(y, m, d, endHour, 0, 0, 0, loc); limit.Before(end) {
			end = limit
		}
	}
	return Window{Start: start, End: end}
}

// Contains reports whether Start <= t < End
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// RunDate is the civil date of the window start, formatted YYYY-MM-DD
func (w Window) RunDate() string {
	return w.Start.Format("2006-01-02")
}

// DayWindow covers the whole civil day runDate (YYYY-MM-DD) in loc, capped at
// endHour like NewWindow. It is used to recover a past day.
func DayWindow(runDate string, loc *time.Location, endHour int) (Window, error) {
	if loc == nil {
		loc = time.UTC
	}
	day, err := time.ParseInLocation("2006-01-02", runDate, loc)
	if err != nil {
		return Window{}, err
	}
	w := Window{Start: day, End: day.AddDate(0, 0, 1)}
	if endHour > 0 && endHour < 24 {
		w.End = time.Date(day.Year(), day.Month(), day.Day(), endHour, 0, 0, 0, loc)
	}
	return w, nil
}
