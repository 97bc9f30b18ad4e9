package calendar

import (
	"fmt"
	"sort"
	"time"

	"github.com/trezcool/academia/core"
)

type Source string

const (
	SourceEvent   Source = "event"
	SourceLecture Source = "lecture"
)

// ScheduleItem is one render ready occurrence of a personal event or a lecture.
type ScheduleItem struct {
	ID          string        `json:"id"` // id of the event or lecture
	Source      Source        `json:"source"`
	Kind        Kind          `json:"type,omitempty"`
	Title       string        `json:"title"`
	Date        string        `json:"date"`
	Start       time.Time     `json:"start"`
	End         time.Time     `json:"end"`
	StartLocal  string        `json:"startLocal"` // HH:MM
	EndLocal    string        `json:"endLocal"`   // HH:MM
	Display     string        `json:"display"`
	IsRecurring bool          `json:"isRecurring"`
	GroupID     string        `json:"groupId,omitempty"`
	Location    string        `json:"location,omitempty"`
	Status      LectureStatus `json:"status,omitempty"`
}

// Materializer lays personal events and lectures out over a window.
type Materializer struct {
	loc    *time.Location
	logger core.Logger
}

func NewMaterializer(loc *time.Location, logger core.Logger) *Materializer {
	if loc == nil {
		loc = time.UTC
	}
	return &Materializer{loc: loc, logger: logger}
}

// Materialize expands every event and lecture over w and returns their occurrences ordered by start.
// The personal and lecture layers are merged as is. Malformed stored definitions are skipped.
func (m *Materializer) Materialize(w Window, events []Event, lectures []Lecture, excs ExceptionSet) []ScheduleItem {
	var items []ScheduleItem
	now := core.NowFunc()

	for _, ev := range events {
		occs, err := ev.Expand(w, m.loc, excs)
		if err != nil {
			m.logger.Warn("skipping malformed event", err, map[string]interface{}{"event_id": ev.ID})
			continue
		}
		for _, occ := range occs {
			items = append(items, m.item(occ, ScheduleItem{
				ID:          ev.ID,
				Source:      SourceEvent,
				Kind:        ev.Kind,
				Title:       ev.Title,
				IsRecurring: ev.IsRecurring,
				GroupID:     ev.GroupID,
			}))
		}
	}

	for _, l := range lectures {
		occs, err := l.Expand(w, m.loc, excs)
		if err != nil {
			m.logger.Warn("skipping malformed lecture", err, map[string]interface{}{"lecture_id": l.ID})
			continue
		}
		for _, occ := range occs {
			item := m.item(occ, ScheduleItem{
				ID:          l.ID,
				Source:      SourceLecture,
				Title:       l.Title,
				IsRecurring: l.IsRecurring,
				GroupID:     l.GroupID,
				Location:    l.Location,
			})
			switch {
			case now.Before(occ.Start):
				item.Status = LectureScheduled
			case now.Before(occ.End):
				item.Status = LectureOngoing
			default:
				item.Status = LectureCompleted
			}
			items = append(items, item)
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Start.Equal(items[j].Start) {
			return items[i].End.Before(items[j].End)
		}
		return items[i].Start.Before(items[j].Start)
	})
	return items
}

func (m *Materializer) item(occ Occurrence, item ScheduleItem) ScheduleItem {
	start, end := occ.Start.In(m.loc), occ.End.In(m.loc)
	item.Date = occ.Date
	item.Start = occ.Start.UTC()
	item.End = occ.End.UTC()
	item.StartLocal = start.Format("15:04")
	item.EndLocal = end.Format("15:04")
	item.Display = fmt.Sprintf("%s %s - %s", start.Format("Mon 02 Jan"), item.StartLocal, item.EndLocal)
	return item
}
