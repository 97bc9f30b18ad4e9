package echoapi

import (
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/calendar"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// bindWindow reads ?start=&end= as RFC 3339 instants. Both are optional; the window defaults to the current week.
func bindWindow(ctx echo.Context, loc *time.Location) (calendar.Window, error) {
	w := calendar.WeekOf(core.NowFunc().In(loc))
	var flds []core.FieldError

	if s := ctx.QueryParam("start"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			flds = append(flds, core.FieldError{Field: "start", Error: "must be an RFC 3339 timestamp"})
		}
		w.Start = t
		if ctx.QueryParam("end") == "" {
			w.End = t.AddDate(0, 0, 7)
		}
	}
	if s := ctx.QueryParam("end"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			flds = append(flds, core.FieldError{Field: "end", Error: "must be an RFC 3339 timestamp"})
		}
		w.End = t
	}

	if len(flds) > 0 {
		return calendar.Window{}, core.NewValidationError(nil, flds...)
	}
	return w, nil
}

// bindWeek reads ?week=YYYY-MM-DD as a day in loc, today by default.
func bindWeek(ctx echo.Context, loc *time.Location) (time.Time, error) {
	s := ctx.QueryParam("week")
	if s == "" {
		return core.NowFunc().In(loc), nil
	}
	day, err := time.ParseInLocation(core.DateLayout, s, loc)
	if err != nil {
		return time.Time{}, core.NewValidationError(nil, core.FieldError{Field: "week", Error: "must be a date formatted as YYYY-MM-DD"})
	}
	return day, nil
}

// bindPositiveInt reads an optional positive integer query param.
func bindPositiveInt(ctx echo.Context, name string, def int) (int, error) {
	s := ctx.QueryParam(name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, core.NewValidationError(nil, core.FieldError{Field: name, Error: "must be a positive integer"})
	}
	return n, nil
}
