package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/coursework"
)

type CourseworkRepository struct {
	db *DB
}

var (
	_ coursework.Repository = (*CourseworkRepository)(nil) // interface compliance check
	_ coursework.Ledger     = (*CourseworkRepository)(nil) // interface compliance check
)

// NewCourseworkRepository returns a store implementing both coursework.Repository and coursework.Ledger.
func NewCourseworkRepository(db *DB) *CourseworkRepository {
	return &CourseworkRepository{db: db}
}

func cloneStrings(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	c := make(map[string]string, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

func cloneItem(item coursework.WorkItem) coursework.WorkItem {
	if item.StartedAt != nil {
		t := *item.StartedAt
		item.StartedAt = &t
	}
	if item.Submission != nil {
		sub := *item.Submission
		sub.Files = append([]string(nil), sub.Files...)
		sub.Answers = cloneStrings(sub.Answers)
		item.Submission = &sub
	}
	if item.Grade != nil {
		g := *item.Grade
		item.Grade = &g
	}
	return item
}

// templates

func (repo *CourseworkRepository) CreateTemplate(_ context.Context, tmpl coursework.Template, _ ...core.DBExecutor) (coursework.Template, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	tmpl.ID = uuid.New().String()
	tmpl.AnswerKey = cloneStrings(tmpl.AnswerKey)
	repo.db.templates[tmpl.ID] = tmpl
	return tmpl, nil
}

func (repo *CourseworkRepository) GetTemplate(_ context.Context, id string, _ ...core.DBExecutor) (coursework.Template, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	tmpl, ok := repo.db.templates[id]
	if !ok {
		return coursework.Template{}, coursework.ErrTemplateNotFound
	}
	tmpl.AnswerKey = cloneStrings(tmpl.AnswerKey)
	return tmpl, nil
}

// work items

func (repo *CourseworkRepository) CreateWorkItems(_ context.Context, items []coursework.WorkItem, _ ...core.DBExecutor) ([]coursework.WorkItem, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	created := make([]coursework.WorkItem, 0, len(items))
	for _, item := range items {
		item.ID = uuid.New().String()
		repo.db.items[item.ID] = cloneItem(item)
		created = append(created, item)
	}
	return created, nil
}

func (repo *CourseworkRepository) GetWorkItem(_ context.Context, id string, _ ...core.DBExecutor) (coursework.WorkItem, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if item, ok := repo.db.items[id]; ok {
		return cloneItem(item), nil
	}
	return coursework.WorkItem{}, coursework.ErrItemNotFound
}

func (repo *CourseworkRepository) QueryWorkItems(_ context.Context, filter coursework.WorkItemFilter, _ ...core.DBExecutor) ([]coursework.WorkItem, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	items := make([]coursework.WorkItem, 0)
	for _, item := range repo.db.items {
		if !matchItem(item, filter) {
			continue
		}
		items = append(items, cloneItem(item))
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].DueAt.Equal(items[j].DueAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].DueAt.Before(items[j].DueAt)
	})
	return items, nil
}

func matchItem(item coursework.WorkItem, filter coursework.WorkItemFilter) bool {
	switch {
	case filter.StudentID != "" && item.StudentID != filter.StudentID:
		return false
	case filter.TemplateID != "" && item.TemplateID != filter.TemplateID:
		return false
	case filter.Kind != "" && item.Kind != filter.Kind:
		return false
	case len(filter.Statuses) > 0 && !hasStatus(filter.Statuses, item.Status):
		return false
	case hasStatus(filter.NotStatuses, item.Status):
		return false
	}
	return true
}

func hasStatus(list []coursework.Status, s coursework.Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (repo *CourseworkRepository) UpdateWorkItem(_ context.Context, item coursework.WorkItem, _ ...core.DBExecutor) (coursework.WorkItem, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.items[item.ID]; !ok {
		return coursework.WorkItem{}, coursework.ErrItemNotFound
	}
	repo.db.items[item.ID] = cloneItem(item)
	return item, nil
}

// retake requests

func (repo *CourseworkRepository) CreateRetakeRequest(_ context.Context, req coursework.RetakeRequest, _ ...core.DBExecutor) (coursework.RetakeRequest, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	req.ID = uuid.New().String()
	repo.db.retakes[req.ID] = req
	return req, nil
}

func (repo *CourseworkRepository) GetRetakeRequest(_ context.Context, id string, _ ...core.DBExecutor) (coursework.RetakeRequest, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if req, ok := repo.db.retakes[id]; ok {
		return req, nil
	}
	return coursework.RetakeRequest{}, coursework.ErrRetakeNotFound
}

func (repo *CourseworkRepository) UpdateRetakeRequest(_ context.Context, req coursework.RetakeRequest, _ ...core.DBExecutor) (coursework.RetakeRequest, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.retakes[req.ID]; !ok {
		return coursework.RetakeRequest{}, coursework.ErrRetakeNotFound
	}
	repo.db.retakes[req.ID] = req
	return req, nil
}

func (repo *CourseworkRepository) HasPendingRetake(_ context.Context, itemID string, _ ...core.DBExecutor) (bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, req := range repo.db.retakes {
		if req.State == coursework.RetakePending && req.Target != nil && req.Target.WorkItemID() == itemID {
			return true, nil
		}
	}
	return false, nil
}

// ledger

func (repo *CourseworkRepository) UpsertEntry(_ context.Context, entry coursework.LedgerEntry, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	repo.db.ledger[ledgerKey{sourceID: entry.SourceID, sourceType: entry.SourceType}] = entry
	return nil
}

func (repo *CourseworkRepository) DeleteEntry(_ context.Context, sourceID string, sourceType coursework.Kind, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	delete(repo.db.ledger, ledgerKey{sourceID: sourceID, sourceType: sourceType})
	return nil
}

// LedgerEntries returns the entries of a student, oldest first.
func (repo *CourseworkRepository) LedgerEntries(studentID string) []coursework.LedgerEntry {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var entries []coursework.LedgerEntry
	for _, e := range repo.db.ledger {
		if e.StudentID == studentID {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].AwardedAt.Before(entries[j].AwardedAt) })
	return entries
}
