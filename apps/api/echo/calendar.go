package echoapi

import (
	"bytes"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core/calendar"
)

const (
	defaultSlotHours = 1
	defaultSlotLimit = 5
)

type calendarApi struct {
	svc *calendar.Service
}

func registerCalendarAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps Deps) {
	api := calendarApi{svc: deps.CalendarSvc}

	cg := g.Group("/calendar-events", jwt, activeUserMiddleware(deps.UserSvc))
	cg.GET("/my-schedule", api.mySchedule)
	cg.GET("/my-schedule.ics", api.myScheduleICS)
	cg.POST("", api.create)
	cg.POST("/import", api.importICS)
	cg.PUT("/:id", api.update)
	cg.DELETE("/:id", api.destroy)
	cg.GET("/availability/:groupId", api.availability)
	cg.GET("/availability/:groupId/suggestions", api.suggestions)
}

// mySchedule serves the Monday-to-Monday week holding ?week= when given, the ?start=&end= window otherwise.
func (api *calendarApi) mySchedule(ctx echo.Context) error {
	var (
		items []calendar.ScheduleItem
		err   error
	)
	if ctx.QueryParam("week") != "" {
		var day time.Time
		if day, err = bindWeek(ctx, api.svc.Location()); err != nil {
			return err
		}
		items, err = api.svc.Week(ctx.Request().Context(), contextUser(ctx), day)
	} else {
		var w calendar.Window
		if w, err = bindWindow(ctx, api.svc.Location()); err != nil {
			return err
		}
		items, err = api.svc.MySchedule(ctx.Request().Context(), contextUser(ctx), w)
	}
	if err != nil {
		return errors.Wrap(err, "building schedule")
	}
	if items == nil {
		items = []calendar.ScheduleItem{}
	}
	return ctx.JSON(http.StatusOK, items)
}

func (api *calendarApi) myScheduleICS(ctx echo.Context) error {
	w, err := bindWindow(ctx, api.svc.Location())
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err = api.svc.ExportICS(ctx.Request().Context(), contextUser(ctx), w, &buf); err != nil {
		return errors.Wrap(err, "exporting schedule")
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="schedule.ics"`)
	return ctx.Blob(http.StatusOK, "text/calendar; charset=utf-8", buf.Bytes())
}

func (api *calendarApi) create(ctx echo.Context) error {
	var data calendar.NewEvent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewEvent")
	}
	evt, err := api.svc.CreateEvent(ctx.Request().Context(), contextUser(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating event")
	}
	return ctx.JSON(http.StatusCreated, evt)
}

func (api *calendarApi) update(ctx echo.Context) error {
	var data calendar.NewEvent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewEvent")
	}
	evt, err := api.svc.UpdateEvent(ctx.Request().Context(), contextUser(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating event")
	}
	return ctx.JSON(http.StatusOK, evt)
}

func (api *calendarApi) destroy(ctx echo.Context) error {
	var data calendar.DeleteEvent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to DeleteEvent")
	}
	if err := api.svc.DeleteEvent(ctx.Request().Context(), contextUser(ctx), ctx.Param("id"), data); err != nil {
		return errors.Wrap(err, "deleting event")
	}
	return ctx.NoContent(http.StatusNoContent)
}

type importResponse struct {
	Events  []calendar.Event `json:"events"`
	Skipped int              `json:"skipped"`
}

func (api *calendarApi) importICS(ctx echo.Context) error {
	events, res, err := api.svc.ImportICS(ctx.Request().Context(), contextUser(ctx), ctx.Request().Body)
	if err != nil {
		return errors.Wrap(err, "importing calendar")
	}
	if events == nil {
		events = []calendar.Event{}
	}
	return ctx.JSON(http.StatusCreated, importResponse{Events: events, Skipped: res.Skipped})
}

func (api *calendarApi) availability(ctx echo.Context) error {
	day, err := bindWeek(ctx, api.svc.Location())
	if err != nil {
		return err
	}
	avail, err := api.svc.GroupAvailability(ctx.Request().Context(), contextUser(ctx), ctx.Param("groupId"), day)
	if err != nil {
		return errors.Wrap(err, "aggregating availability")
	}
	return ctx.JSON(http.StatusOK, avail)
}

func (api *calendarApi) suggestions(ctx echo.Context) error {
	day, err := bindWeek(ctx, api.svc.Location())
	if err != nil {
		return err
	}
	hours, err := bindPositiveInt(ctx, "duration", defaultSlotHours)
	if err != nil {
		return err
	}
	limit, err := bindPositiveInt(ctx, "limit", defaultSlotLimit)
	if err != nil {
		return err
	}

	slots, err := api.svc.SuggestLectureSlots(ctx.Request().Context(), contextUser(ctx), ctx.Param("groupId"), day, hours, limit)
	if err != nil {
		return errors.Wrap(err, "suggesting slots")
	}
	if slots == nil {
		slots = []calendar.Slot{}
	}
	return ctx.JSON(http.StatusOK, slots)
}
