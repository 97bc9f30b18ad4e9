package calendar

import (
	"sort"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
)

// Availability maps a date (YYYY-MM-DD) to the fraction of members free at each hour of that day.
type Availability map[string]map[int]float64

// AggregateAvailability overlays the personal events of every member on the hourly grid [startHour, endHour) of
// each day in w. A member contributes +1 to an hour fully covered by one of their preferred events and -1 to an
// hour touched by a busy one. Sums are divided by the member count and clamped to [0, 1].
func AggregateAvailability(w Window, loc *time.Location, members map[string][]Event, excs ExceptionSet, startHour, endHour int) Availability {
	days := w.Days(loc)
	avail := make(Availability, len(days))
	for _, day := range days {
		avail[formatDate(day)] = make(map[int]float64, endHour-startHour)
	}
	if len(members) == 0 || endHour <= startHour {
		return avail
	}

	sums := make(map[string][]int, len(days))
	for _, day := range days {
		sums[formatDate(day)] = make([]int, endHour-startHour)
	}

	for _, events := range members {
		preferred := make(map[string][]bool, len(days))
		busy := make(map[string][]bool, len(days))
		for _, ev := range events {
			occs, err := ev.Expand(w, loc, excs)
			if err != nil {
				continue
			}
			marks, cover := busy, false
			if ev.Kind == KindPreferred {
				marks, cover = preferred, true
			}
			for _, occ := range occs {
				markHours(marks, days, loc, occ, startHour, endHour, cover)
			}
		}
		for date, hours := range sums {
			for i := range hours {
				if preferred[date] != nil && preferred[date][i] {
					hours[i]++
				}
				if busy[date] != nil && busy[date][i] {
					hours[i]--
				}
			}
		}
	}

	n := float64(len(members))
	for date, hours := range sums {
		for i, sum := range hours {
			frac := float64(sum) / n
			if frac < 0 {
				frac = 0
			} else if frac > 1 {
				frac = 1
			}
			avail[date][startHour+i] = frac
		}
	}
	return avail
}

// markHours flags the hours occ overlaps, or only those it spans entirely when cover is set.
func markHours(marks map[string][]bool, days []time.Time, loc *time.Location, occ Occurrence, startHour, endHour int, cover bool) {
	for _, day := range days {
		for h := startHour; h < endHour; h++ {
			slotStart := time.Date(day.Year(), day.Month(), day.Day(), h, 0, 0, 0, loc)
			slotEnd := slotStart.Add(time.Hour)
			if cover {
				if occ.Start.After(slotStart) || occ.End.Before(slotEnd) {
					continue
				}
			} else if !overlaps(occ.Start, occ.End, slotStart, slotEnd) {
				continue
			}
			date := formatDate(day)
			if marks[date] == nil {
				marks[date] = make([]bool, endHour-startHour)
			}
			marks[date][h-startHour] = true
		}
	}
}

// Slot is a suggested lecture time.
type Slot struct {
	Date  string    `json:"date"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Score float64   `json:"score"` // mean availability over the slot
}

// SuggestSlots returns up to limit non overlapping blocks of hours consecutive hours within a single day, best
// average availability first. Blocks nobody is free for, or overlapping one of blocked, are never suggested.
func SuggestSlots(avail Availability, loc *time.Location, hours, limit int, blocked ...Window) ([]Slot, error) {
	if err := vala.BeginValidation().Validate(
		vala.GreaterThan(hours, 0, "duration"),
		vala.GreaterThan(limit, 0, "limit"),
	).Check(); err != nil {
		return nil, errors.Wrap(err, "suggesting slots")
	}

	var candidates []Slot
	for date, byHour := range avail {
		day, err := time.ParseInLocation(core.DateLayout, date, loc)
		if err != nil {
			continue
		}
		for h := range byHour {
			var total float64
			complete := true
			for i := 0; i < hours; i++ {
				v, ok := byHour[h+i]
				if !ok {
					complete = false
					break
				}
				total += v
			}
			if !complete || total == 0 {
				continue
			}
			start := time.Date(day.Year(), day.Month(), day.Day(), h, 0, 0, 0, loc)
			end := start.Add(time.Duration(hours) * time.Hour)
			if isBlocked(start, end, blocked) {
				continue
			}
			candidates = append(candidates, Slot{
				Date:  date,
				Start: start,
				End:   end,
				Score: total / float64(hours),
			})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Start.Before(candidates[j].Start)
	})

	var out []Slot
	for _, c := range candidates {
		if len(out) == limit {
			break
		}
		free := true
		for _, s := range out {
			if overlaps(c.Start, c.End, s.Start, s.End) {
				free = false
				break
			}
		}
		if free {
			out = append(out, c)
		}
	}
	return out, nil
}

func isBlocked(start, end time.Time, blocked []Window) bool {
	for _, w := range blocked {
		if overlaps(start, end, w.Start, w.End) {
			return true
		}
	}
	return false
}
