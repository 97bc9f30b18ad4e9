package coursework

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
)

type Kind string

const (
	KindQuiz       Kind = "quiz"
	KindAssignment Kind = "assignment"
)

func (k Kind) IsValid() bool {
	return k == KindQuiz || k == KindAssignment
}

// Template is the definition of a quiz or assignment shared by every student of a group.
type Template struct {
	ID            string            `json:"id"`
	Kind          Kind              `json:"kind"`
	GroupID       string            `json:"groupId"`
	AuthorID      string            `json:"authorId"`
	Title         string            `json:"title"`
	Description   string            `json:"description,omitempty"`
	Points        float64           `json:"points"`
	AvailableFrom time.Time         `json:"availableFrom"`
	DueAt         time.Time         `json:"dueAt"`
	AllowLate     bool              `json:"allowLate"`
	AnswerKey     map[string]string `json:"answerKey,omitempty"` // quiz question id -> expected answer
	CreatedAt     time.Time         `json:"createdAt"`
}

type Submission struct {
	SubmittedAt time.Time         `json:"submittedAt"`
	IsLate      bool              `json:"isLate"`
	Files       []string          `json:"files,omitempty"`
	Answers     map[string]string `json:"answers,omitempty"`
}

type Grade struct {
	Score    float64   `json:"score"`
	Feedback string    `json:"feedback,omitempty"`
	GradedAt time.Time `json:"gradedAt"`
	GradedBy string    `json:"gradedBy,omitempty"` // empty when auto-graded
}

// WorkItem is the copy of a Template assigned to one student.
// Template fields are copied so listing never needs a join. DueAt may differ from the template after a retake.
type WorkItem struct {
	ID            string      `json:"id"`
	TemplateID    string      `json:"templateId"`
	StudentID     string      `json:"studentId"`
	GroupID       string      `json:"groupId"`
	Kind          Kind        `json:"kind"`
	Title         string      `json:"title"`
	Points        float64     `json:"points"`
	AvailableFrom time.Time   `json:"availableFrom"`
	DueAt         time.Time   `json:"dueAt"`
	AllowLate     bool        `json:"allowLate"`
	Status        Status      `json:"status"` // cache of ComputeStatus, never authoritative
	StartedAt     *time.Time  `json:"startedAt,omitempty"`
	Submission    *Submission `json:"submission,omitempty"`
	Grade         *Grade      `json:"grade,omitempty"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

func (w WorkItem) Facts() Facts {
	return Facts{
		AvailableFrom: w.AvailableFrom,
		DueAt:         w.DueAt,
		HasSubmission: w.Submission != nil,
		HasGrade:      w.Grade != nil,
		InProgress:    w.StartedAt != nil && w.Submission == nil,
	}
}

// Refresh recomputes the cached status at now and reports whether it changed.
func (w *WorkItem) Refresh(now time.Time) bool {
	st := ComputeStatus(now, w.Facts())
	if st == w.Status {
		return false
	}
	w.Status = st
	return true
}

func (w WorkItem) ledgerEntry() LedgerEntry {
	return LedgerEntry{
		SourceID:   w.ID,
		SourceType: w.Kind,
		StudentID:  w.StudentID,
		GroupID:    w.GroupID,
		Points:     w.Grade.Score,
		AwardedAt:  w.Grade.GradedAt,
	}
}

// LedgerEntry records the points a student earned from one graded work item.
type LedgerEntry struct {
	SourceID   string    `json:"sourceId"`
	SourceType Kind      `json:"sourceType"`
	StudentID  string    `json:"studentId"`
	GroupID    string    `json:"groupId"`
	Points     float64   `json:"points"`
	AwardedAt  time.Time `json:"awardedAt"`
}

// RetakeTarget is the work item a retake request is about. It is either a QuizTarget or an AssignmentTarget.
type RetakeTarget interface {
	WorkItemID() string
	Kind() Kind
	retakeTarget()
}

type QuizTarget struct{ ItemID string }

func (t QuizTarget) WorkItemID() string { return t.ItemID }
func (QuizTarget) Kind() Kind           { return KindQuiz }
func (QuizTarget) retakeTarget()        {}

type AssignmentTarget struct{ ItemID string }

func (t AssignmentTarget) WorkItemID() string { return t.ItemID }
func (AssignmentTarget) Kind() Kind           { return KindAssignment }
func (AssignmentTarget) retakeTarget()        {}

// NewRetakeTarget builds the target matching kind.
func NewRetakeTarget(kind Kind, itemID string) (RetakeTarget, error) {
	switch kind {
	case KindQuiz:
		return QuizTarget{ItemID: itemID}, nil
	case KindAssignment:
		return AssignmentTarget{ItemID: itemID}, nil
	default:
		return nil, errors.Errorf("unknown retake target kind %q", kind)
	}
}

type RetakeState string

const (
	RetakePending  RetakeState = "pending"
	RetakeApproved RetakeState = "approved"
	RetakeRejected RetakeState = "rejected"
)

type RetakeRequest struct {
	ID        string       `json:"id"`
	Target    RetakeTarget `json:"-"`
	StudentID string       `json:"studentId"`
	GroupID   string       `json:"groupId"`
	Reason    string       `json:"reason"`
	State     RetakeState  `json:"state"`
	NewDueAt  *time.Time   `json:"newDueAt,omitempty"`
	Comment   string       `json:"comment,omitempty"`
	DecidedBy string       `json:"decidedBy,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
	DecidedAt *time.Time   `json:"decidedAt,omitempty"`
}

func (r RetakeRequest) MarshalJSON() ([]byte, error) {
	type alias RetakeRequest
	out := struct {
		alias
		TargetType Kind   `json:"targetType"`
		TargetID   string `json:"targetId"`
	}{alias: alias(r)}
	if r.Target != nil {
		out.TargetType = r.Target.Kind()
		out.TargetID = r.Target.WorkItemID()
	}
	return json.Marshal(out)
}

// Inputs

// NewTemplate contains the information needed to create a Template. Kind is set from the route.
type NewTemplate struct {
	Kind          Kind              `json:"-" validate:"required,coursekind"`
	GroupID       string            `json:"groupId" validate:"required,uuid"`
	Title         string            `json:"title" validate:"required,notblank,max=200"`
	Description   string            `json:"description" validate:"max=5000"`
	Points        float64           `json:"points" validate:"gt=0"`
	AvailableFrom time.Time         `json:"availableFrom" validate:"required"`
	DueAt         time.Time         `json:"dueAt" validate:"required,gtfield=AvailableFrom"`
	AllowLate     bool              `json:"allowLate"`
	AnswerKey     map[string]string `json:"answerKey" validate:"omitempty,dive,keys,required,endkeys,required"`
}

func (nt *NewTemplate) Clean() {
	nt.Title = core.CleanString(nt.Title)
	nt.Description = core.CleanString(nt.Description)
	nt.AvailableFrom = nt.AvailableFrom.UTC()
	nt.DueAt = nt.DueAt.UTC()
	if nt.Kind != KindQuiz {
		nt.AnswerKey = nil
	}
}

type NewSubmission struct {
	Files   []string          `json:"files" validate:"dive,required,url"`
	Answers map[string]string `json:"answers"`
}

type NewGrade struct {
	Score    float64 `json:"score" validate:"gte=0"`
	Feedback string  `json:"feedback" validate:"max=2000"`
}

type NewRetakeRequest struct {
	ItemID string `json:"itemId" validate:"required,uuid"`
	Reason string `json:"reason" validate:"required,notblank,max=1000"`
}

// RetakeDecision settles a retake request. AvailableFrom, when set, reopens the item later instead of at once.
type RetakeDecision struct {
	NewDueAt      time.Time  `json:"newDueAt"`
	AvailableFrom *time.Time `json:"availableFrom,omitempty"`
	Comment       string     `json:"comment" validate:"max=1000"`
}

type WorkItemFilter struct {
	StudentID  string
	TemplateID string
	Kind       Kind
	Statuses   []Status
	// NotStatuses excludes items whose cached status is listed.
	NotStatuses []Status
}
