package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/group"
)

type groupRepository struct {
	db *DB
}

var _ group.Repository = (*groupRepository)(nil) // interface compliance check

func NewGroupRepository(db *DB) group.Repository {
	return &groupRepository{db: db}
}

func (repo *groupRepository) CreateGroup(_ context.Context, grp group.Group, _ ...core.DBExecutor) (group.Group, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	grp.ID = uuid.New().String()
	grp.StudentIDs = append([]string{}, grp.StudentIDs...)
	repo.db.groups[grp.ID] = grp
	return grp, nil
}

func (repo *groupRepository) GetGroup(_ context.Context, id string, _ ...core.DBExecutor) (group.Group, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if grp, ok := repo.db.groups[id]; ok {
		return grp, nil
	}
	return group.Group{}, group.ErrNotFound
}

func (repo *groupRepository) QueryGroups(_ context.Context, filter group.QueryFilter, _ ...core.DBExecutor) ([]group.Group, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	groups := make([]group.Group, 0)
	for _, grp := range repo.db.groups {
		if filter.ParticipantID != "" && !grp.IsParticipant(filter.ParticipantID) {
			continue
		}
		groups = append(groups, grp)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })
	return groups, nil
}

func (repo *groupRepository) AddStudents(_ context.Context, groupID string, studentIDs []string, _ ...core.DBExecutor) (group.Group, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	grp, ok := repo.db.groups[groupID]
	if !ok {
		return group.Group{}, group.ErrNotFound
	}
	ids := append([]string{}, grp.StudentIDs...)
	for _, id := range studentIDs {
		if !core.ContainsString(ids, id) {
			ids = append(ids, id)
		}
	}
	grp.StudentIDs = ids
	grp.UpdatedAt = core.NowFunc()
	repo.db.groups[grp.ID] = grp
	return grp, nil
}
