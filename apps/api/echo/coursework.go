package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core/coursework"
)

type courseworkApi struct {
	svc      *coursework.Service
	validate *validator.Validate
}

func registerCourseworkAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps Deps) {
	api := courseworkApi{svc: deps.CourseworkSvc, validate: deps.Validate}
	auth := activeUserMiddleware(deps.UserSvc)

	qg := g.Group("/quizzes", jwt, auth)
	qg.POST("", api.create(coursework.KindQuiz), teacherMiddleware)
	qg.GET("/student", api.forStudent(coursework.KindQuiz))
	qg.GET("/template/:id", api.forTemplate)
	qg.GET("/:id", api.retrieve(coursework.KindQuiz))
	qg.POST("/:id/start", api.start)
	qg.POST("/attempt/:id/submit", api.submit(coursework.KindQuiz))
	qg.PUT("/grade/:id", api.grade(coursework.KindQuiz), teacherMiddleware)

	ag := g.Group("/assignments", jwt, auth)
	ag.POST("", api.create(coursework.KindAssignment), teacherMiddleware)
	ag.GET("/student", api.forStudent(coursework.KindAssignment))
	ag.GET("/template/:id", api.forTemplate)
	ag.GET("/:id", api.retrieve(coursework.KindAssignment))
	ag.POST("/:id/submit", api.submit(coursework.KindAssignment))
	ag.DELETE("/:id/submit", api.unsubmit(coursework.KindAssignment))
	ag.PUT("/grade/:id", api.grade(coursework.KindAssignment), teacherMiddleware)

	rg := g.Group("/retakes", jwt, auth)
	rg.POST("", api.requestRetake)
	rg.PUT("/:id/approve", api.approveRetake, teacherMiddleware)
	rg.PUT("/:id/reject", api.rejectRetake, teacherMiddleware)
}

type templateResponse struct {
	Template coursework.Template   `json:"template"`
	Items    []coursework.WorkItem `json:"items"`
}

func (api *courseworkApi) create(kind coursework.Kind) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		var data coursework.NewTemplate
		if err := ctx.Bind(&data); err != nil {
			return errors.Wrap(err, "binding to NewTemplate")
		}
		data.Kind = kind

		tmpl, items, err := api.svc.CreateTemplate(ctx.Request().Context(), contextUser(ctx), data)
		if err != nil {
			return errors.Wrapf(err, "creating %s", kind)
		}
		if items == nil {
			items = []coursework.WorkItem{}
		}
		return ctx.JSON(http.StatusCreated, templateResponse{Template: tmpl, Items: items})
	}
}

func (api *courseworkApi) forStudent(kind coursework.Kind) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		var query coursework.StatusQuery
		if err := ctx.Bind(&query); err != nil {
			return errors.Wrap(err, "binding to StatusQuery")
		}
		if err := api.validate.Struct(query); err != nil {
			return err
		}
		statuses, err := coursework.ParseStatuses(query.Status)
		if err != nil {
			return err
		}

		items, err := api.svc.ListForStudent(ctx.Request().Context(), contextUser(ctx), kind, statuses)
		if err != nil {
			return errors.Wrapf(err, "listing %s items", kind)
		}
		if items == nil {
			items = []coursework.WorkItem{}
		}
		return ctx.JSON(http.StatusOK, items)
	}
}

func (api *courseworkApi) forTemplate(ctx echo.Context) error {
	items, err := api.svc.ListForTemplate(ctx.Request().Context(), contextUser(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "listing template items")
	}
	if items == nil {
		items = []coursework.WorkItem{}
	}
	return ctx.JSON(http.StatusOK, items)
}

func (api *courseworkApi) retrieve(kind coursework.Kind) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		item, err := api.svc.Get(ctx.Request().Context(), contextUser(ctx), ctx.Param("id"), kind)
		if err != nil {
			return errors.Wrapf(err, "finding %s", kind)
		}
		return ctx.JSON(http.StatusOK, item)
	}
}

func (api *courseworkApi) start(ctx echo.Context) error {
	item, err := api.svc.StartQuiz(ctx.Request().Context(), contextUser(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "starting quiz")
	}
	return ctx.JSON(http.StatusOK, item)
}

func (api *courseworkApi) submit(kind coursework.Kind) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		var data coursework.NewSubmission
		if err := ctx.Bind(&data); err != nil {
			return errors.Wrap(err, "binding to NewSubmission")
		}
		item, err := api.svc.Submit(ctx.Request().Context(), contextUser(ctx), ctx.Param("id"), kind, data)
		if err != nil {
			return errors.Wrapf(err, "submitting %s", kind)
		}
		return ctx.JSON(http.StatusOK, item)
	}
}

func (api *courseworkApi) unsubmit(kind coursework.Kind) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		item, err := api.svc.Unsubmit(ctx.Request().Context(), contextUser(ctx), ctx.Param("id"), kind)
		if err != nil {
			return errors.Wrapf(err, "unsubmitting %s", kind)
		}
		return ctx.JSON(http.StatusOK, item)
	}
}

func (api *courseworkApi) grade(kind coursework.Kind) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		var data coursework.NewGrade
		if err := ctx.Bind(&data); err != nil {
			return errors.Wrap(err, "binding to NewGrade")
		}
		item, err := api.svc.Grade(ctx.Request().Context(), contextUser(ctx), ctx.Param("id"), kind, data)
		if err != nil {
			return errors.Wrapf(err, "grading %s", kind)
		}
		return ctx.JSON(http.StatusOK, item)
	}
}

// Retakes

type retakeApprovalResponse struct {
	Request coursework.RetakeRequest `json:"request"`
	Item    coursework.WorkItem      `json:"item"`
}

func (api *courseworkApi) requestRetake(ctx echo.Context) error {
	var data coursework.NewRetakeRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewRetakeRequest")
	}
	req, err := api.svc.RequestRetake(ctx.Request().Context(), contextUser(ctx), data)
	if err != nil {
		return errors.Wrap(err, "requesting retake")
	}
	return ctx.JSON(http.StatusCreated, req)
}

func (api *courseworkApi) approveRetake(ctx echo.Context) error {
	var data coursework.RetakeDecision
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RetakeDecision")
	}
	req, item, err := api.svc.ApproveRetake(ctx.Request().Context(), contextUser(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "approving retake")
	}
	return ctx.JSON(http.StatusOK, retakeApprovalResponse{Request: req, Item: item})
}

func (api *courseworkApi) rejectRetake(ctx echo.Context) error {
	var data coursework.RetakeDecision
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RetakeDecision")
	}
	req, err := api.svc.RejectRetake(ctx.Request().Context(), contextUser(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "rejecting retake")
	}
	return ctx.JSON(http.StatusOK, req)
}
