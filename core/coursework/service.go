package coursework

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/group"
	"github.com/trezcool/academia/core/user"
)

var (
	ErrTemplateNotFound = core.NewNotFoundError("template")
	ErrItemNotFound     = core.NewNotFoundError("work item")
	ErrRetakeNotFound   = core.NewNotFoundError("retake request")

	errNotOwner      = core.NewAuthorizationError("this work item is assigned to another student")
	errNotInstructor = core.NewAuthorizationError("only the group instructor or an admin can do this")
)

type (
	Repository interface {
		CreateTemplate(ctx context.Context, tmpl Template, exec ...core.DBExecutor) (Template, error)
		GetTemplate(ctx context.Context, id string, exec ...core.DBExecutor) (Template, error)

		CreateWorkItems(ctx context.Context, items []WorkItem, exec ...core.DBExecutor) ([]WorkItem, error)
		GetWorkItem(ctx context.Context, id string, exec ...core.DBExecutor) (WorkItem, error)
		QueryWorkItems(ctx context.Context, filter WorkItemFilter, exec ...core.DBExecutor) ([]WorkItem, error)
		UpdateWorkItem(ctx context.Context, item WorkItem, exec ...core.DBExecutor) (WorkItem, error)

		CreateRetakeRequest(ctx context.Context, req RetakeRequest, exec ...core.DBExecutor) (RetakeRequest, error)
		GetRetakeRequest(ctx context.Context, id string, exec ...core.DBExecutor) (RetakeRequest, error)
		UpdateRetakeRequest(ctx context.Context, req RetakeRequest, exec ...core.DBExecutor) (RetakeRequest, error)
		HasPendingRetake(ctx context.Context, itemID string, exec ...core.DBExecutor) (bool, error)
	}

	// Ledger keeps one points entry per graded work item.
	Ledger interface {
		UpsertEntry(ctx context.Context, entry LedgerEntry, exec ...core.DBExecutor) error
		DeleteEntry(ctx context.Context, sourceID string, sourceType Kind, exec ...core.DBExecutor) error
	}

	GroupDirectory interface {
		GetByID(ctx context.Context, id string) (group.Group, error)
	}

	// Notifier is told about status transitions observed by the sweep.
	Notifier interface {
		StatusChanged(ctx context.Context, item WorkItem, from Status)
	}

	Service struct {
		repo     Repository
		ledger   Ledger
		tx       core.Transactor
		groups   GroupDirectory
		notifier Notifier
		validate *validator.Validate
		logger   core.Logger
		metrics  core.Metrics
	}

	SweepReport struct {
		Scanned int           `json:"scanned"`
		Changed int           `json:"changed"`
		Failed  int           `json:"failed"`
		Took    time.Duration `json:"took"`
	}
)

func NewService(
	repo Repository,
	ledger Ledger,
	tx core.Transactor,
	groups GroupDirectory,
	validate *validator.Validate,
	logger core.Logger,
	metrics core.Metrics,
) *Service {
	if metrics == nil {
		metrics = core.NopMetrics
	}
	return &Service{
		repo:     repo,
		ledger:   ledger,
		tx:       tx,
		groups:   groups,
		validate: validate,
		logger:   logger,
		metrics:  metrics,
	}
}

func (svc *Service) SetNotifier(n Notifier) {
	svc.notifier = n
}

// CreateTemplate creates the template and one work item per student of the group, all or nothing.
func (svc *Service) CreateTemplate(ctx context.Context, actor user.User, nt NewTemplate) (Template, []WorkItem, error) {
	nt.Clean()
	if err := svc.validate.Struct(nt); err != nil {
		return Template{}, nil, err
	}
	grp, err := svc.groups.GetByID(ctx, nt.GroupID)
	if err != nil {
		return Template{}, nil, err
	}
	if !canGrade(actor, grp) {
		return Template{}, nil, errNotInstructor
	}

	now := core.NowFunc()
	tmpl := Template{
		Kind:          nt.Kind,
		GroupID:       grp.ID,
		AuthorID:      actor.ID,
		Title:         nt.Title,
		Description:   nt.Description,
		Points:        nt.Points,
		AvailableFrom: nt.AvailableFrom,
		DueAt:         nt.DueAt,
		AllowLate:     nt.AllowLate,
		AnswerKey:     nt.AnswerKey,
		CreatedAt:     now,
	}

	var items []WorkItem
	err = svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		created, err := svc.repo.CreateTemplate(ctx, tmpl, exec)
		if err != nil {
			return errors.Wrap(err, "creating template")
		}

		fanout := make([]WorkItem, 0, len(grp.StudentIDs))
		for _, studentID := range grp.StudentIDs {
			item := WorkItem{
				TemplateID:    created.ID,
				StudentID:     studentID,
				GroupID:       created.GroupID,
				Kind:          created.Kind,
				Title:         created.Title,
				Points:        created.Points,
				AvailableFrom: created.AvailableFrom,
				DueAt:         created.DueAt,
				AllowLate:     created.AllowLate,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			item.Refresh(now)
			fanout = append(fanout, item)
		}
		if len(fanout) > 0 {
			if fanout, err = svc.repo.CreateWorkItems(ctx, fanout, exec); err != nil {
				return errors.Wrap(err, "creating work items")
			}
		}
		tmpl, items = created, fanout
		return nil
	})
	if err != nil {
		return Template{}, nil, err
	}
	return tmpl, items, nil
}

// ListForStudent returns the actor's work items of kind, restricted to statuses when given.
// Every status is recomputed and stale caches are written back before filtering.
func (svc *Service) ListForStudent(ctx context.Context, actor user.User, kind Kind, statuses []Status) ([]WorkItem, error) {
	items, err := svc.repo.QueryWorkItems(ctx, WorkItemFilter{StudentID: actor.ID, Kind: kind})
	if err != nil {
		return nil, errors.Wrap(err, "querying work items")
	}

	now := core.NowFunc()
	out := make([]WorkItem, 0, len(items))
	for _, item := range items {
		if item, err = svc.refresh(ctx, item, now); err != nil {
			return nil, err
		}
		if len(statuses) == 0 || containsStatus(statuses, item.Status) {
			out = append(out, item)
		}
	}
	return out, nil
}

// ListForTemplate returns the work items of every student of a template.
func (svc *Service) ListForTemplate(ctx context.Context, actor user.User, templateID string) ([]WorkItem, error) {
	tmpl, err := svc.repo.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if err = svc.checkInstructor(ctx, actor, tmpl.GroupID); err != nil {
		return nil, err
	}
	items, err := svc.repo.QueryWorkItems(ctx, WorkItemFilter{TemplateID: tmpl.ID})
	if err != nil {
		return nil, errors.Wrap(err, "querying work items")
	}
	now := core.NowFunc()
	for i := range items {
		if items[i], err = svc.refresh(ctx, items[i], now); err != nil {
			return nil, err
		}
	}
	return items, nil
}

// Get returns a work item of the given kind to its student or to whoever grades it.
func (svc *Service) Get(ctx context.Context, actor user.User, id string, kind Kind) (WorkItem, error) {
	item, err := svc.repo.GetWorkItem(ctx, id)
	if err != nil {
		return WorkItem{}, err
	}
	if item.Kind != kind {
		return WorkItem{}, ErrItemNotFound
	}
	if item.StudentID != actor.ID {
		if err = svc.checkInstructor(ctx, actor, item.GroupID); err != nil {
			return WorkItem{}, err
		}
	}
	return svc.refresh(ctx, item, core.NowFunc())
}

func (svc *Service) refresh(ctx context.Context, item WorkItem, now time.Time, exec ...core.DBExecutor) (WorkItem, error) {
	if !item.Refresh(now) {
		return item, nil
	}
	item.UpdatedAt = now
	updated, err := svc.repo.UpdateWorkItem(ctx, item, exec...)
	if err != nil {
		return WorkItem{}, errors.Wrap(err, "saving status")
	}
	return updated, nil
}

// StartQuiz marks the beginning of a quiz attempt.
func (svc *Service) StartQuiz(ctx context.Context, actor user.User, id string) (WorkItem, error) {
	item, err := svc.ownItem(ctx, actor, id, KindQuiz)
	if err != nil {
		return WorkItem{}, err
	}

	now := core.NowFunc()
	if item.StartedAt != nil && item.Submission == nil && !now.After(item.DueAt) {
		return svc.refresh(ctx, item, now) // already running
	}
	if !CanStart(now, item.Facts()) {
		return WorkItem{}, transitionError(item, now, "start")
	}

	item.StartedAt = &now
	item.Refresh(now)
	item.UpdatedAt = now
	item, err = svc.repo.UpdateWorkItem(ctx, item)
	return item, errors.Wrap(err, "starting quiz")
}

// Submit records the actor's submission. Quizzes with an answer key are graded right away and their points booked
// in the same transaction.
func (svc *Service) Submit(ctx context.Context, actor user.User, id string, kind Kind, ns NewSubmission) (WorkItem, error) {
	if err := svc.validate.Struct(ns); err != nil {
		return WorkItem{}, err
	}
	item, err := svc.ownItem(ctx, actor, id, kind)
	if err != nil {
		return WorkItem{}, err
	}
	if kind == KindAssignment && len(ns.Files) == 0 {
		return WorkItem{}, core.NewValidationError(nil, core.FieldError{Field: "files", Error: "at least one file is required"})
	}

	now := core.NowFunc()
	if !CanSubmit(now, item.Facts(), item.AllowLate) {
		return WorkItem{}, transitionError(item, now, "submit")
	}

	item.Submission = &Submission{
		SubmittedAt: now,
		IsLate:      now.After(item.DueAt),
		Files:       ns.Files,
		Answers:     ns.Answers,
	}

	var key map[string]string
	if kind == KindQuiz {
		tmpl, err := svc.repo.GetTemplate(ctx, item.TemplateID)
		if err != nil {
			return WorkItem{}, errors.Wrap(err, "getting template")
		}
		key = tmpl.AnswerKey
	}
	if len(key) > 0 {
		item.Grade = &Grade{Score: autoScore(item.Points, key, ns.Answers), GradedAt: now}
	}
	item.Refresh(now)
	item.UpdatedAt = now

	err = svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		updated, err := svc.repo.UpdateWorkItem(ctx, item, exec)
		if err != nil {
			return errors.Wrap(err, "saving submission")
		}
		if updated.Grade != nil {
			if err = svc.ledger.UpsertEntry(ctx, updated.ledgerEntry(), exec); err != nil {
				return errors.Wrap(err, "booking points")
			}
		}
		item = updated
		return nil
	})
	if err != nil {
		return WorkItem{}, err
	}
	return item, nil
}

// autoScore awards points in proportion of the answers matching the key.
func autoScore(points float64, key, answers map[string]string) float64 {
	var correct int
	for q, want := range key {
		if got, ok := answers[q]; ok && core.CleanString(got, true) == core.CleanString(want, true) {
			correct++
		}
	}
	return points * float64(correct) / float64(len(key))
}

// Unsubmit withdraws the actor's submission while the item is still due.
func (svc *Service) Unsubmit(ctx context.Context, actor user.User, id string, kind Kind) (WorkItem, error) {
	item, err := svc.ownItem(ctx, actor, id, kind)
	if err != nil {
		return WorkItem{}, err
	}
	now := core.NowFunc()
	if !CanUnsubmit(now, item.Facts()) {
		return WorkItem{}, transitionError(item, now, "unsubmit")
	}

	item.Submission = nil
	item.StartedAt = nil
	item.Refresh(now)
	item.UpdatedAt = now
	item, err = svc.repo.UpdateWorkItem(ctx, item)
	return item, errors.Wrap(err, "withdrawing submission")
}

// Grade records the grade of a completed or past-due item and books its points, in one transaction.
func (svc *Service) Grade(ctx context.Context, actor user.User, id string, kind Kind, ng NewGrade) (WorkItem, error) {
	if err := svc.validate.Struct(ng); err != nil {
		return WorkItem{}, err
	}
	item, err := svc.repo.GetWorkItem(ctx, id)
	if err != nil {
		return WorkItem{}, err
	}
	if item.Kind != kind {
		return WorkItem{}, ErrItemNotFound
	}
	if err = svc.checkInstructor(ctx, actor, item.GroupID); err != nil {
		return WorkItem{}, err
	}
	if ng.Score > item.Points {
		return WorkItem{}, core.NewValidationError(nil, core.FieldError{Field: "score", Error: "score cannot exceed the points of the work"})
	}

	now := core.NowFunc()
	switch ComputeStatus(now, item.Facts()) {
	case StatusCompleted, StatusPastDue, StatusGraded:
	default:
		return WorkItem{}, transitionError(item, now, "grade")
	}

	item.Grade = &Grade{Score: ng.Score, Feedback: core.CleanString(ng.Feedback), GradedAt: now, GradedBy: actor.ID}
	item.Refresh(now)
	item.UpdatedAt = now

	err = svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		updated, err := svc.repo.UpdateWorkItem(ctx, item, exec)
		if err != nil {
			return errors.Wrap(err, "saving grade")
		}
		if err = svc.ledger.UpsertEntry(ctx, updated.ledgerEntry(), exec); err != nil {
			return errors.Wrap(err, "booking points")
		}
		item = updated
		return nil
	})
	if err != nil {
		return WorkItem{}, err
	}
	return item, nil
}

// Retakes

// RequestRetake asks the instructor to reopen a past-due or graded item.
func (svc *Service) RequestRetake(ctx context.Context, actor user.User, nr NewRetakeRequest) (RetakeRequest, error) {
	nr.Reason = core.CleanString(nr.Reason)
	if err := svc.validate.Struct(nr); err != nil {
		return RetakeRequest{}, err
	}
	item, err := svc.ownItem(ctx, actor, nr.ItemID, "")
	if err != nil {
		return RetakeRequest{}, err
	}

	now := core.NowFunc()
	if st := ComputeStatus(now, item.Facts()); st != StatusPastDue && st != StatusGraded {
		return RetakeRequest{}, transitionError(item, now, "request a retake of")
	}
	pending, err := svc.repo.HasPendingRetake(ctx, item.ID)
	if err != nil {
		return RetakeRequest{}, errors.Wrap(err, "checking pending retakes")
	}
	if pending {
		return RetakeRequest{}, core.NewValidationError(nil, core.FieldError{Field: "itemId", Error: "a retake request is already pending"})
	}

	target, err := NewRetakeTarget(item.Kind, item.ID)
	if err != nil {
		return RetakeRequest{}, err
	}
	req := RetakeRequest{
		Target:    target,
		StudentID: actor.ID,
		GroupID:   item.GroupID,
		Reason:    nr.Reason,
		State:     RetakePending,
		CreatedAt: now,
	}
	req, err = svc.repo.CreateRetakeRequest(ctx, req)
	return req, errors.Wrap(err, "creating retake request")
}

// ApproveRetake reopens the target item until decision.NewDueAt, from decision.AvailableFrom when given: submission
// and grade are cleared and the points booked for it are withdrawn.
func (svc *Service) ApproveRetake(ctx context.Context, actor user.User, id string, decision RetakeDecision) (RetakeRequest, WorkItem, error) {
	if err := svc.validate.Struct(decision); err != nil {
		return RetakeRequest{}, WorkItem{}, err
	}
	req, err := svc.pendingRetake(ctx, actor, id)
	if err != nil {
		return RetakeRequest{}, WorkItem{}, err
	}
	now := core.NowFunc()
	if !decision.NewDueAt.After(now) {
		return RetakeRequest{}, WorkItem{}, core.NewValidationError(nil, core.FieldError{Field: "newDueAt", Error: "new due date must be in the future"})
	}
	newDue := decision.NewDueAt.UTC()
	if decision.AvailableFrom != nil && !decision.AvailableFrom.Before(newDue) {
		return RetakeRequest{}, WorkItem{}, core.NewValidationError(nil, core.FieldError{Field: "availableFrom", Error: "the retake must open before its due date"})
	}

	var item WorkItem
	err = svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		item, err = svc.repo.GetWorkItem(ctx, req.Target.WorkItemID(), exec)
		if err != nil {
			return err
		}

		switch req.Target.(type) {
		case QuizTarget:
			item.StartedAt = nil
			item.Submission = nil
			item.Grade = nil
		case AssignmentTarget:
			item.Submission = nil
			item.Grade = nil
		default:
			return errors.Errorf("unknown retake target %T", req.Target)
		}
		item.DueAt = newDue
		if decision.AvailableFrom != nil {
			item.AvailableFrom = decision.AvailableFrom.UTC()
		}
		item.Refresh(now)
		item.UpdatedAt = now

		if item, err = svc.repo.UpdateWorkItem(ctx, item, exec); err != nil {
			return errors.Wrap(err, "reopening work item")
		}
		if err = svc.ledger.DeleteEntry(ctx, item.ID, item.Kind, exec); err != nil {
			return errors.Wrap(err, "withdrawing points")
		}

		req.State = RetakeApproved
		req.NewDueAt = &newDue
		req.Comment = core.CleanString(decision.Comment)
		req.DecidedBy = actor.ID
		req.DecidedAt = &now
		if req, err = svc.repo.UpdateRetakeRequest(ctx, req, exec); err != nil {
			return errors.Wrap(err, "approving retake request")
		}
		return nil
	})
	if err != nil {
		return RetakeRequest{}, WorkItem{}, err
	}
	return req, item, nil
}

func (svc *Service) RejectRetake(ctx context.Context, actor user.User, id string, decision RetakeDecision) (RetakeRequest, error) {
	if err := svc.validate.Struct(decision); err != nil {
		return RetakeRequest{}, err
	}
	req, err := svc.pendingRetake(ctx, actor, id)
	if err != nil {
		return RetakeRequest{}, err
	}
	now := core.NowFunc()
	req.State = RetakeRejected
	req.Comment = core.CleanString(decision.Comment)
	req.DecidedBy = actor.ID
	req.DecidedAt = &now
	req, err = svc.repo.UpdateRetakeRequest(ctx, req)
	return req, errors.Wrap(err, "rejecting retake request")
}

func (svc *Service) pendingRetake(ctx context.Context, actor user.User, id string) (RetakeRequest, error) {
	req, err := svc.repo.GetRetakeRequest(ctx, id)
	if err != nil {
		return RetakeRequest{}, err
	}
	if err = svc.checkInstructor(ctx, actor, req.GroupID); err != nil {
		return RetakeRequest{}, err
	}
	if req.State != RetakePending {
		return RetakeRequest{}, core.NewValidationError(nil, core.FieldError{Field: "state", Error: "retake request was already " + string(req.State)})
	}
	return req, nil
}

// Sweep

// Sweep recomputes the status of every item not graded yet. A failing item is logged and skipped.
func (svc *Service) Sweep(ctx context.Context) (SweepReport, error) {
	started := time.Now()
	var report SweepReport

	items, err := svc.repo.QueryWorkItems(ctx, WorkItemFilter{NotStatuses: []Status{StatusGraded}})
	if err != nil {
		return report, errors.Wrap(err, "querying work items")
	}

	now := core.NowFunc()
	for _, item := range items {
		if err = ctx.Err(); err != nil {
			break
		}
		report.Scanned++

		from := item.Status
		if !item.Refresh(now) {
			continue
		}
		item.UpdatedAt = now
		updated, err := svc.repo.UpdateWorkItem(ctx, item)
		if err != nil {
			report.Failed++
			svc.logger.Error("sweeping work item", err, map[string]interface{}{"item_id": item.ID})
			continue
		}
		report.Changed++
		if svc.notifier != nil {
			svc.notifier.StatusChanged(ctx, updated, from)
		}
	}

	report.Took = time.Since(started)
	svc.metrics.SweepCompleted(report.Scanned, report.Changed, report.Failed, report.Took.Seconds())
	svc.logger.Info("status sweep done", map[string]interface{}{
		"scanned": report.Scanned, "changed": report.Changed, "failed": report.Failed, "took": report.Took.String(),
	})
	return report, errors.Wrap(err, "sweep interrupted")
}

// helpers

func (svc *Service) ownItem(ctx context.Context, actor user.User, id string, kind Kind) (WorkItem, error) {
	item, err := svc.repo.GetWorkItem(ctx, id)
	if err != nil {
		return WorkItem{}, err
	}
	if kind != "" && item.Kind != kind {
		return WorkItem{}, ErrItemNotFound
	}
	if item.StudentID != actor.ID {
		return WorkItem{}, errNotOwner
	}
	return item, nil
}

func (svc *Service) checkInstructor(ctx context.Context, actor user.User, groupID string) error {
	if actor.IsAdmin() {
		return nil
	}
	grp, err := svc.groups.GetByID(ctx, groupID)
	if err != nil {
		return err
	}
	if !canGrade(actor, grp) {
		return errNotInstructor
	}
	return nil
}

func canGrade(actor user.User, grp group.Group) bool {
	return actor.IsAdmin() || (actor.IsTeacher() && grp.InstructorID == actor.ID)
}

func transitionError(item WorkItem, now time.Time, action string) error {
	st := ComputeStatus(now, item.Facts())
	return core.NewValidationError(nil, core.FieldError{
		Field: "status",
		Error: "cannot " + action + " a " + string(item.Kind) + " that is " + string(st),
	})
}

func containsStatus(list []Status, s Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
