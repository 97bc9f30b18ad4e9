package group

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/user"
)

var ErrNotFound = core.NewNotFoundError("group")

type (
	Repository interface {
		CreateGroup(ctx context.Context, grp Group, exec ...core.DBExecutor) (Group, error)
		GetGroup(ctx context.Context, id string, exec ...core.DBExecutor) (Group, error)
		QueryGroups(ctx context.Context, filter QueryFilter, exec ...core.DBExecutor) ([]Group, error)
		AddStudents(ctx context.Context, groupID string, studentIDs []string, exec ...core.DBExecutor) (Group, error)
	}

	// AdminResolver returns the ID of the administrator every new group is attached to.
	AdminResolver func(ctx context.Context) (string, error)

	Service struct {
		repo         Repository
		resolveAdmin AdminResolver
		validate     *validator.Validate
		logger       core.Logger
	}
)

func NewService(repo Repository, resolveAdmin AdminResolver, validate *validator.Validate, logger core.Logger) *Service {
	return &Service{
		repo:         repo,
		resolveAdmin: resolveAdmin,
		validate:     validate,
		logger:       logger,
	}
}

// Create creates a group taught by ng.InstructorID (the actor by default) and attaches the admin to it.
func (svc *Service) Create(ctx context.Context, actor user.User, ng NewGroup) (Group, error) {
	if !actor.CanTeach() {
		return Group{}, core.NewAuthorizationError("only teachers and admins can create groups")
	}
	ng.Name = core.CleanString(ng.Name)
	if err := svc.validate.Struct(ng); err != nil {
		return Group{}, err
	}

	now := core.NowFunc()
	grp := Group{
		Name:         ng.Name,
		Description:  core.CleanString(ng.Description),
		InstructorID: ng.InstructorID,
		StudentIDs:   dedupe(ng.StudentIDs),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if grp.InstructorID == "" {
		grp.InstructorID = actor.ID
	}

	if svc.resolveAdmin != nil {
		adminID, err := svc.resolveAdmin(ctx)
		switch {
		case err == nil:
			grp.AdminID = adminID
		case errors.Is(err, user.ErrNoAdmin):
			svc.logger.Warn("creating group without admin", map[string]interface{}{"group": grp.Name})
		default:
			return Group{}, errors.Wrap(err, "resolving admin")
		}
	}

	grp, err := svc.repo.CreateGroup(ctx, grp)
	return grp, errors.Wrap(err, "creating group")
}

func (svc *Service) GetByID(ctx context.Context, id string) (Group, error) {
	return svc.repo.GetGroup(ctx, id)
}

// QueryForParticipant returns the groups userID studies, teaches or administrates.
func (svc *Service) QueryForParticipant(ctx context.Context, userID string) ([]Group, error) {
	return svc.repo.QueryGroups(ctx, QueryFilter{ParticipantID: userID})
}

func (svc *Service) AddStudents(ctx context.Context, actor user.User, groupID string, studentIDs []string) (Group, error) {
	grp, err := svc.repo.GetGroup(ctx, groupID)
	if err != nil {
		return Group{}, err
	}
	if !(actor.IsAdmin() || grp.InstructorID == actor.ID) {
		return Group{}, core.NewAuthorizationError("only the instructor can enrol students")
	}
	if err = svc.validate.Var(studentIDs, "required,dive,uuid"); err != nil {
		return Group{}, err
	}
	return svc.repo.AddStudents(ctx, groupID, dedupe(studentIDs))
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !core.ContainsString(out, id) {
			out = append(out, id)
		}
	}
	return out
}
