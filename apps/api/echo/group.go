package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core/group"
)

type groupApi struct {
	svc *group.Service
}

func registerGroupAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps Deps) {
	api := groupApi{svc: deps.GroupSvc}

	gg := g.Group("/groups", jwt, activeUserMiddleware(deps.UserSvc))
	gg.GET("", api.mine)
	gg.POST("", api.create, teacherMiddleware)
	gg.GET("/:id", api.retrieve)
	gg.POST("/:id/students", api.addStudents, teacherMiddleware)
}

func (api *groupApi) create(ctx echo.Context) error {
	var data group.NewGroup
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewGroup")
	}
	grp, err := api.svc.Create(ctx.Request().Context(), contextUser(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating group")
	}
	return ctx.JSON(http.StatusCreated, grp)
}

func (api *groupApi) mine(ctx echo.Context) error {
	groups, err := api.svc.QueryForParticipant(ctx.Request().Context(), contextUser(ctx).ID)
	if err != nil {
		return errors.Wrap(err, "querying groups")
	}
	if groups == nil {
		groups = []group.Group{}
	}
	return ctx.JSON(http.StatusOK, groups)
}

// retrieve hides groups the user takes no part in.
func (api *groupApi) retrieve(ctx echo.Context) error {
	usr := contextUser(ctx)
	grp, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding group")
	}
	if !(usr.IsAdmin() || grp.IsParticipant(usr.ID)) {
		return errHttpNotFound
	}
	return ctx.JSON(http.StatusOK, grp)
}

type addStudentsRequest struct {
	StudentIDs []string `json:"studentIds"`
}

func (api *groupApi) addStudents(ctx echo.Context) error {
	var data addStudentsRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to addStudentsRequest")
	}
	grp, err := api.svc.AddStudents(ctx.Request().Context(), contextUser(ctx), ctx.Param("id"), data.StudentIDs)
	if err != nil {
		return errors.Wrap(err, "adding students")
	}
	return ctx.JSON(http.StatusOK, grp)
}
