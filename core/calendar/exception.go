package calendar

import "time"

// Exception suppresses a single occurrence of a recurring series.
type Exception struct {
	SeriesID  string    `json:"seriesId" db:"series_id"`
	Date      string    `json:"date" db:"date"` // YYYY-MM-DD
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// ExceptionSet indexes exception dates by series. The zero value is empty and read-only.
type ExceptionSet map[string]map[string]struct{}

func NewExceptionSet(excs ...Exception) ExceptionSet {
	set := make(ExceptionSet)
	for _, exc := range excs {
		set.Add(exc.SeriesID, exc.Date)
	}
	return set
}

func (s ExceptionSet) Add(seriesID, date string) {
	dates, ok := s[seriesID]
	if !ok {
		dates = make(map[string]struct{})
		s[seriesID] = dates
	}
	dates[date] = struct{}{}
}

func (s ExceptionSet) Has(seriesID, date string) bool {
	_, ok := s[seriesID][date]
	return ok
}

// Dates returns the excepted dates of a series, in no particular order.
func (s ExceptionSet) Dates(seriesID string) []string {
	dates := make([]string, 0, len(s[seriesID]))
	for d := range s[seriesID] {
		dates = append(dates, d)
	}
	return dates
}
