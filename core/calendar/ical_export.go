package calendar

import (
	"io"
	"time"

	"github.com/emersion/go-ical"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
)

const icalProductID = "-//academia//calendar//EN"

func newICalendar() *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, icalProductID)
	return cal
}

// EncodeSchedule writes the materialized items as one VEVENT per occurrence.
func EncodeSchedule(w io.Writer, items []ScheduleItem) error {
	cal := newICalendar()
	stamp := core.NowFunc()
	for _, item := range items {
		ve := ical.NewComponent(ical.CompEvent)
		ve.Props.SetText(ical.PropUID, item.ID+"-"+item.Date+"@academia")
		ve.Props.SetDateTime(ical.PropDateTimeStamp, stamp)
		ve.Props.SetDateTime(ical.PropDateTimeStart, item.Start)
		ve.Props.SetDateTime(ical.PropDateTimeEnd, item.End)
		title := item.Title
		if title == "" {
			title = string(item.Kind)
		}
		ve.Props.SetText(ical.PropSummary, title)
		if item.Location != "" {
			ve.Props.SetText(ical.PropLocation, item.Location)
		}
		ve.Props.SetText(ical.PropCategories, string(item.Source))
		cal.Children = append(cal.Children, ve)
	}
	if len(cal.Children) == 0 {
		// an empty VCALENDAR is rejected by the encoder
		return errors.Wrap(writeEmptyCalendar(w), "encoding empty schedule")
	}
	return errors.Wrap(ical.NewEncoder(w).Encode(cal), "encoding schedule")
}

func writeEmptyCalendar(w io.Writer) error {
	_, err := io.WriteString(w, "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:"+icalProductID+"\r\nEND:VCALENDAR\r\n")
	return err
}

// EncodeLecture writes a single VEVENT describing the lecture, with its RRULE when recurring.
func EncodeLecture(w io.Writer, l Lecture, loc *time.Location) error {
	cal := newICalendar()
	ve := ical.NewComponent(ical.CompEvent)
	ve.Props.SetText(ical.PropUID, l.ID+"@academia")
	ve.Props.SetDateTime(ical.PropDateTimeStamp, core.NowFunc())
	ve.Props.SetDateTime(ical.PropDateTimeStart, l.StartTime.In(loc))
	ve.Props.SetDateTime(ical.PropDateTimeEnd, l.EndTime.In(loc))
	ve.Props.SetText(ical.PropSummary, l.Title)
	if l.Description != "" {
		ve.Props.SetText(ical.PropDescription, l.Description)
	}
	if l.Location != "" {
		ve.Props.SetText(ical.PropLocation, l.Location)
	}
	if l.IsRecurring && l.Recurrence != nil {
		opt, err := l.Recurrence.option(l.StartTime.In(loc))
		if err != nil {
			return errors.Wrap(err, "building recurrence rule")
		}
		opt.Until = opt.Until.UTC()
		ve.Props.SetRecurrenceRule(&opt)
	}
	cal.Children = append(cal.Children, ve)
	return errors.Wrap(ical.NewEncoder(w).Encode(cal), "encoding lecture")
}
