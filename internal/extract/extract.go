// Package extract samples hourly staff counts from a schedule page and
// accumulates them into tables.
//
// A run activates each of the 24 hour cells of the displayed day in order
// and, after each activation, counts the indicator elements the page shows
// for that hour. The weekly run repeats this for seven days, clicking the
// page's next-day button in between and waiting for the date label to change
// before sampling again.
package extract

import (
	"errors"
	"time"
)

var (
	ErrSlotCountMismatch = errors.New("slot count mismatch")
	ErrIndicatorQuery    = errors.New("indicator query failed")
	ErrNavigationTimeout = errors.New("navigation timeout")
)

// Selectors locate the parts of the schedule page a run touches.
type Selectors struct {
	Slot       string `toml:"slot" json:"slot"`
	Indicator  string `toml:"indicator" json:"indicator"`
	DateLabel  string `toml:"date_label" json:"date_label"`
	NextButton string `toml:"next_button" json:"next_button"`
}

func DefaultSelectors() Selectors {
	return Selectors{
		Slot:       `[class="cell"], [class="cell selected"]`,
		Indicator:  `[class="greyHeader tab-td pointer ng-pristine ng-untouched ng-valid"]`,
		DateLabel:  ".calendarDateLabel",
		NextButton: `[class="calNextButton pointer jm-color-495e9e glyphicon glyphicon-chevron-right"]`,
	}
}

// WithDefaults fills empty fields from DefaultSelectors.
func (s Selectors) WithDefaults() Selectors {
	d := DefaultSelectors()
	if s.Slot == "" {
		s.Slot = d.Slot
	}
	if s.Indicator == "" {
		s.Indicator = d.Indicator
	}
	if s.DateLabel == "" {
		s.DateLabel = d.DateLabel
	}
	if s.NextButton == "" {
		s.NextButton = d.NextButton
	}
	return s
}

const (
	DefaultSettle     = time.Second
	DefaultNavTimeout = 30 * time.Second
	DefaultStable     = 2 * time.Second

	DayFile  = "day.csv"
	WeekFile = "week.csv"
)

// DayNames labels weekly rows. Row i is always DayNames[i]; the page is
// assumed to start on Monday.
var DayNames = [7]string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}
