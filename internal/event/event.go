package event

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the layout of Record.Date ("01 Mar 2025").
const DateLayout = "02 Jan 2006"

// ClockLayout is the layout of Record.StartTime and Record.EndTime.
const ClockLayout = "15:04"

// Record is the validated form submission the banner is rendered from.
type Record struct {
	Country   string `json:"country" yaml:"country"`
	Callsign  string `json:"callsign" yaml:"callsign"`
	ICAO      string `json:"icao" yaml:"icao"`
	Logon     string `json:"logon" yaml:"logon"`
	Type      string `json:"type" yaml:"type"`
	Date      string `json:"date" yaml:"date"`
	StartTime string `json:"startTime" yaml:"start_time"`
	EndTime   string `json:"endTime" yaml:"end_time"`
	Candidate string `json:"candidate" yaml:"candidate"`
	Place     string `json:"place,omitempty" yaml:"place"`
}

// Day parses Date.
func (r Record) Day() (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(r.Date))
	if err != nil {
		return time.Time{}, fmt.Errorf("unable parse date %q: %w", r.Date, err)
	}
	return d, nil
}

// Slot returns the session window shown on the banner, e.g. "17:00 - 19:00z".
func (r Record) Slot() string {
	start := strings.TrimSpace(r.StartTime)
	end := strings.TrimSpace(r.EndTime)
	switch {
	case start != "" && end != "":
		return start + " - " + end + "z"
	case start != "":
		return start + "z"
	case end != "":
		return end + "z"
	}
	return ""
}

// Window returns the UTC start and end instants of the session. An end
// time earlier than the start is taken to be on the following day.
func (r Record) Window() (time.Time, time.Time, error) {
	day, err := r.Day()
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start, err := onDay(day, r.StartTime)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := onDay(day, r.EndTime)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !end.After(start) {
		end = end.AddDate(0, 0, 1)
	}
	return start, end, nil
}

func onDay(day time.Time, clock string) (time.Time, error) {
	t, err := time.Parse(ClockLayout, strings.TrimSpace(clock))
	if err != nil {
		return time.Time{}, fmt.Errorf("unable parse time %q: %w", clock, err)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC), nil
}
