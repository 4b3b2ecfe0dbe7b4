package banner

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/ottotuhkunen/cpt-banner-generator/internal/event"
)

// Ordinal returns day with its English suffix: 1st, 2nd, 3rd, 4th, 11th, 21st.
func Ordinal(day int) string {
	suffix := "th"
	switch day % 100 {
	case 11, 12, 13:
	default:
		switch day % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return fmt.Sprintf("%d%s", day, suffix)
}

// LongDate formats t as "1st of March 2025".
func LongDate(t time.Time) string {
	return fmt.Sprintf("%s of %s %d", Ordinal(t.Day()), t.Month(), t.Year())
}

// longDate parses a record date and formats it long-form, keeping the raw
// value when it cannot be parsed.
func longDate(raw string) string {
	t, err := time.Parse(event.DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return raw
	}
	return LongDate(t)
}

// Capitalize upper-cases the first letter and leaves the rest as is.
func Capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// Title is the display label of a banner, "EFHK_TWR | ATC Exam".
func Title(logon, typ string) string {
	var parts []string
	for _, p := range []string{strings.TrimSpace(logon), strings.TrimSpace(typ)} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " | ")
}

var descriptionTpl = template.Must(template.New("description").Parse(
	`<p>Welcome to {{.Place}}! On {{.Date}}{{if .Slot}} at {{.Slot}}{{end}} {{.Candidate}} takes the {{.Type}} on {{.Logon}}{{if .Callsign}} ({{.Callsign}}){{end}}. Come fly with us and make it a busy session!</p>` +
		`<p><a href="{{.Charts}}" target="_blank">Charts</a> | <a href="{{.Briefing}}" target="_blank">Pilot briefing</a></p>` +
		`{{if .Staffing}}<p>Want to control around the exam? <a href="{{.Staffing}}" target="_blank">Book a position</a> and help us staff the neighbouring sectors.</p>{{else}}<p>Want to control around the exam? Book a position and help us staff the neighbouring sectors.</p>{{end}}`))

type descriptionView struct {
	Place     string
	Date      string
	Slot      string
	Candidate string
	Type      string
	Logon     string
	Callsign  string
	Charts    string
	Briefing  string
	Staffing  string
}

// Description writes the HTML caption for units under the national
// prefix and returns "" for every other unit.
func Description(rec event.Record, p DescriptionPolicy) (string, error) {
	icao := strings.ToUpper(strings.TrimSpace(rec.ICAO))
	if !p.applies(icao) {
		return "", nil
	}
	links := p.links(icao)

	place := strings.TrimSpace(rec.Place)
	if place == "" {
		place = icao
	}
	view := descriptionView{
		Place:     place,
		Date:      longDate(rec.Date),
		Slot:      rec.Slot(),
		Candidate: Capitalize(strings.TrimSpace(rec.Candidate)),
		Type:      rec.Type,
		Logon:     rec.Logon,
		Callsign:  rec.Callsign,
		Charts:    links.Charts,
		Briefing:  links.Briefing,
		Staffing:  p.StaffingURL,
	}

	var buf bytes.Buffer
	if err := descriptionTpl.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("unable render description: %w", err)
	}
	return buf.String(), nil
}
