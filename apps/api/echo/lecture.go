package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core/calendar"
)

type lectureApi struct {
	svc *calendar.Service
}

func registerLectureAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps Deps) {
	api := lectureApi{svc: deps.CalendarSvc}

	lg := g.Group("/lectures", jwt, activeUserMiddleware(deps.UserSvc))
	lg.GET("/group/:groupId", api.forGroup)
	lg.POST("", api.create, teacherMiddleware)
	lg.PUT("/:id", api.update, teacherMiddleware)
	lg.DELETE("/:id", api.destroy, teacherMiddleware)
}

func (api *lectureApi) create(ctx echo.Context) error {
	var data calendar.NewLecture
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewLecture")
	}
	lec, err := api.svc.CreateLecture(ctx.Request().Context(), contextUser(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating lecture")
	}
	return ctx.JSON(http.StatusCreated, lec)
}

func (api *lectureApi) update(ctx echo.Context) error {
	var data calendar.NewLecture
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewLecture")
	}
	lec, err := api.svc.UpdateLecture(ctx.Request().Context(), contextUser(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating lecture")
	}
	return ctx.JSON(http.StatusOK, lec)
}

func (api *lectureApi) destroy(ctx echo.Context) error {
	var data calendar.DeleteEvent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to DeleteEvent")
	}
	if err := api.svc.DeleteLecture(ctx.Request().Context(), contextUser(ctx), ctx.Param("id"), data); err != nil {
		return errors.Wrap(err, "deleting lecture")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *lectureApi) forGroup(ctx echo.Context) error {
	lectures, err := api.svc.GroupLectures(ctx.Request().Context(), contextUser(ctx), ctx.Param("groupId"))
	if err != nil {
		return errors.Wrap(err, "querying lectures")
	}
	if lectures == nil {
		lectures = []calendar.Lecture{}
	}
	return ctx.JSON(http.StatusOK, lectures)
}
