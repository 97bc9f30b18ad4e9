package calendar

import (
	"io"
	"strings"

	ics "github.com/arran4/golang-ical"
	"github.com/pkg/errors"
)

// ImportResult reports what ParseICS kept.
type ImportResult struct {
	Events  []NewEvent `json:"-"`
	Skipped int        `json:"skipped"`
}

// ParseICS reads a calendar feed and returns its timed single events as busy events.
// All day and recurring entries are skipped.
func ParseICS(r io.Reader) (ImportResult, error) {
	var res ImportResult

	cal, err := ics.ParseCalendar(r)
	if err != nil {
		return res, errors.Wrap(err, "parsing calendar")
	}

	for _, ve := range cal.Events() {
		if ve.GetProperty(ics.ComponentPropertyRrule) != nil {
			res.Skipped++
			continue
		}
		if p := ve.GetProperty(ics.ComponentPropertyDtStart); p == nil || !strings.Contains(p.Value, "T") {
			res.Skipped++
			continue
		}
		start, err := ve.GetStartAt()
		if err != nil {
			res.Skipped++
			continue
		}
		end, err := ve.GetEndAt()
		if err != nil || !end.After(start) {
			res.Skipped++
			continue
		}

		ne := NewEvent{Kind: KindBusy}
		if p := ve.GetProperty(ics.ComponentPropertySummary); p != nil {
			ne.Title = p.Value
		}
		start, end = start.UTC(), end.UTC()
		ne.StartTime, ne.EndTime = &start, &end
		res.Events = append(res.Events, ne)
	}
	return res, nil
}
