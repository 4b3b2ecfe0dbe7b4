package banner

import (
	"strings"

	"github.com/ottotuhkunen/cpt-banner-generator/internal/assets"
)

// Slot ids every template is expected to define. A template that lacks
// one simply keeps its own content for it.
const (
	SlotCallsign  = "callsign"
	SlotType      = "type"
	SlotDate      = "date"
	SlotTime      = "time"
	SlotCandidate = "candidate"
	SlotICAO      = "icao"
)

// Slots lists the slot ids in fill order.
var Slots = []string{SlotCallsign, SlotType, SlotDate, SlotTime, SlotCandidate, SlotICAO}

// Policy holds the lookup tables and fallbacks the compositor applies.
type Policy struct {
	Major            []string          `yaml:"major_identifiers"`
	DefaultCallsign  string            `yaml:"default_callsign"`
	MissingCandidate string            `yaml:"missing_candidate"`
	MissingICAO      string            `yaml:"missing_icao"`
	MaxICAOLength    int               `yaml:"max_icao_length"`
	LongICAOStyle    string            `yaml:"long_icao_style"`
	Description      DescriptionPolicy `yaml:"description"`
}

// DescriptionPolicy decides when a caption is written and where its links
// point. "{icao}" in a URL is replaced with the location identifier.
type DescriptionPolicy struct {
	NationalPrefix  string `yaml:"national_prefix"`
	SecondaryPrefix string `yaml:"secondary_prefix"`
	Secondary       Links  `yaml:"secondary"`
	Default         Links  `yaml:"default"`
	StaffingURL     string `yaml:"staffing_url"`
}

type Links struct {
	Charts   string `yaml:"charts"`
	Briefing string `yaml:"briefing"`
}

func DefaultPolicy() Policy {
	return Policy{
		Major:            append([]string(nil), assets.DefaultMajor...),
		DefaultCallsign:  "Donlon Tower",
		MissingCandidate: "Error",
		MissingICAO:      "ZZZZ",
		MaxICAOLength:    4,
		LongICAOStyle:    "font-size: 46px;",
		Description: DescriptionPolicy{
			NationalPrefix:  "EF",
			SecondaryPrefix: "EFHK",
			Secondary: Links{
				Charts:   "https://chartfox.org/{icao}",
				Briefing: "https://wiki.vatsim-scandinavia.org/books/pilot-briefings/page/helsinki-vantaa-efhk",
			},
			Default: Links{
				Charts:   "https://www.ais.fi/eaip/",
				Briefing: "https://wiki.vatsim-scandinavia.org/books/pilot-briefings/page/finland",
			},
			StaffingURL: "https://cc.vatsim-scandinavia.org/booking",
		},
	}
}

// withDefaults fills zero fields from DefaultPolicy.
func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.Major == nil {
		p.Major = d.Major
	}
	if p.DefaultCallsign == "" {
		p.DefaultCallsign = d.DefaultCallsign
	}
	if p.MissingCandidate == "" {
		p.MissingCandidate = d.MissingCandidate
	}
	if p.MissingICAO == "" {
		p.MissingICAO = d.MissingICAO
	}
	if p.MaxICAOLength <= 0 {
		p.MaxICAOLength = d.MaxICAOLength
	}
	if p.LongICAOStyle == "" {
		p.LongICAOStyle = d.LongICAOStyle
	}
	if p.Description == (DescriptionPolicy{}) {
		p.Description = d.Description
	}
	return p
}

// links picks the chart and briefing targets for icao.
func (d DescriptionPolicy) links(icao string) Links {
	l := d.Default
	if d.SecondaryPrefix != "" && strings.HasPrefix(icao, d.SecondaryPrefix) {
		l = d.Secondary
	}
	return Links{
		Charts:   strings.ReplaceAll(l.Charts, "{icao}", icao),
		Briefing: strings.ReplaceAll(l.Briefing, "{icao}", icao),
	}
}

func (d DescriptionPolicy) applies(icao string) bool {
	return d.NationalPrefix != "" && strings.HasPrefix(strings.ToUpper(icao), strings.ToUpper(d.NationalPrefix))
}
