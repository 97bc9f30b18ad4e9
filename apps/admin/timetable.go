package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/trezcool/academia/core/calendar"
	"github.com/trezcool/academia/core/user"
)

type (
	timetable struct {
		Lectures []timetableEntry `yaml:"lectures"`
	}

	timetableEntry struct {
		Group       string           `yaml:"group"`
		Title       string           `yaml:"title"`
		Description string           `yaml:"description"`
		Location    string           `yaml:"location"`
		Start       time.Time        `yaml:"start"`
		End         time.Time        `yaml:"end"`
		Repeat      *timetableRepeat `yaml:"repeat"`
	}

	timetableRepeat struct {
		Frequency string   `yaml:"frequency"`
		Interval  int      `yaml:"interval"`
		Weekdays  []string `yaml:"weekdays"`
		Until     string   `yaml:"until"`
		Count     int      `yaml:"count"`
	}
)

func (e timetableEntry) lecture() calendar.NewLecture {
	nl := calendar.NewLecture{
		GroupID:     e.Group,
		Title:       e.Title,
		Description: e.Description,
		Location:    e.Location,
		StartTime:   e.Start,
		EndTime:     e.End,
	}
	if e.Repeat != nil {
		nl.IsRecurring = true
		nl.Recurrence = &calendar.Rule{
			Frequency: calendar.Frequency(e.Repeat.Frequency),
			Interval:  e.Repeat.Interval,
			ByWeekday: e.Repeat.Weekdays,
			Until:     e.Repeat.Until,
			Count:     e.Repeat.Count,
		}
	}
	return nl
}

func readTimetable(path string) (timetable, error) {
	var tt timetable
	f, err := os.Open(path)
	if err != nil {
		return tt, err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&tt); err != nil {
		return tt, errors.Wrap(err, "decoding timetable")
	}
	return tt, nil
}

func (cmd *commandLine) scheduler(ctx context.Context, uname string) (user.User, error) {
	if uname != "" {
		return cmd.usrSvc.GetByUsernameOrEmail(ctx, uname)
	}
	id, err := cmd.usrSvc.AdminID(ctx)
	if err != nil {
		return user.User{}, err
	}
	return cmd.usrSvc.GetByID(ctx, id)
}

// importLectures schedules every lecture of the timetable at path.
// Lectures are created one by one: a rejected entry does not stop the others.
func (cmd *commandLine) importLectures(ctx context.Context, path, as string) error {
	tt, err := readTimetable(path)
	if err != nil {
		return err
	}
	actor, err := cmd.scheduler(ctx, as)
	if err != nil {
		return errors.Wrap(err, "finding scheduling user")
	}

	var failed int
	for i, entry := range tt.Lectures {
		lec, err := cmd.calSvc.CreateLecture(ctx, actor, entry.lecture())
		if err != nil {
			failed++
			fmt.Fprintf(cmd.out, "#%d %q: %v\n", i+1, entry.Title, err)
			continue
		}
		fmt.Fprintf(cmd.out, "#%d %q: scheduled (%s)\n", i+1, lec.Title, lec.ID)
	}
	fmt.Fprintf(cmd.out, "%d scheduled, %d failed\n", len(tt.Lectures)-failed, failed)
	if failed > 0 {
		return fmt.Errorf("%d lecture(s) could not be scheduled", failed)
	}
	return nil
}
