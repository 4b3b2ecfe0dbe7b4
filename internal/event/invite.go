package event

import (
	"fmt"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
)

// Invite builds a single-event calendar for the session so that
// controllers and pilots can save it next to the banner.
func Invite(r Record, summary string, stamp time.Time) ([]byte, error) {
	start, end, err := r.Window()
	if err != nil {
		return nil, fmt.Errorf("unable build invite: %w", err)
	}

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//cpt-banner-generator//EN")

	ev := cal.AddEvent(inviteUID(r, start))
	ev.SetDtStampTime(stamp.UTC())
	ev.SetStartAt(start)
	ev.SetEndAt(end)
	ev.SetSummary(summary)

	location := r.Place
	if location == "" {
		location = r.ICAO
	}
	if location != "" {
		ev.SetLocation(location)
	}
	if r.Callsign != "" {
		ev.SetDescription(r.Callsign + " (" + r.Logon + ")")
	}

	return []byte(cal.Serialize()), nil
}

func inviteUID(r Record, start time.Time) string {
	logon := strings.ToLower(strings.TrimSpace(r.Logon))
	if logon == "" {
		logon = "unit"
	}
	return fmt.Sprintf("%s-%s@cpt-banner-generator", logon, start.Format("20060102T1504"))
}
