package inmemdb

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/malipo/core/group"
)

type groupRepository struct {
	db *groupTable
}

var _ group.Repository = (*groupRepository)(nil) // interface compliance check

func NewGroupRepository(db *DB) *groupRepository {
	return &groupRepository{db: db.group}
}

func (repo *groupRepository) CreateGroup(ctx context.Context, grp group.Group) (group.Group, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	grp.ID = uuid.New().String()
	grp.Version = 1
	repo.db.table[grp.ID] = &grp
	return grp, nil
}

func (repo *groupRepository) GetGroup(ctx context.Context, id string) (group.Group, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if grp, ok := repo.db.table[id]; ok {
		return *grp, nil
	}
	return group.Group{}, group.ErrNotFound
}

func (repo *groupRepository) UpdateGroup(ctx context.Context, grp group.Group) (group.Group, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.table[grp.ID]
	if !ok {
		return group.Group{}, group.ErrNotFound
	}
	if orig.Version != grp.Version {
		return group.Group{}, group.ErrVersionConflict
	}
	grp.Version++
	repo.db.table[grp.ID] = &grp
	return grp, nil
}

func (repo *groupRepository) QueryGroupsBySchool(ctx context.Context, schoolID string) ([]group.Group, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	groups := make([]group.Group, 0)
	for _, grp := range repo.db.table {
		if grp.SchoolID == schoolID {
			groups = append(groups, *grp)
		}
	}
	return groups, nil
}

func (repo *groupRepository) MarkCycle(ctx context.Context, groupID string, dueDate time.Time) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	key := cycleKeyFor(groupID, dueDate)
	if _, ok := repo.db.cycles[key]; ok {
		return group.ErrCycleDistributed
	}
	repo.db.cycles[key] = struct{}{}
	return nil
}
