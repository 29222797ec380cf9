package inmemdb

import (
	"context"

	"github.com/google/uuid"

	"github.com/edulab/lectura/core/activity"
)

type activityRepository struct {
	db *DB
}

var _ activity.Repository = (*activityRepository)(nil)

func NewActivityRepository(db *DB) activity.Repository {
	return &activityRepository{db: db}
}

func (repo *activityRepository) CreateActivity(_ context.Context, act activity.Activity) (activity.Activity, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	act.ID = uuid.NewString()
	for qi := range act.Questions {
		if act.Questions[qi].ID == "" {
			act.Questions[qi].ID = uuid.NewString()
		}
		for ai := range act.Questions[qi].Alternatives {
			if act.Questions[qi].Alternatives[ai].ID == "" {
				act.Questions[qi].Alternatives[ai].ID = uuid.NewString()
			}
		}
	}
	repo.db.acts[act.ID] = &act
	return act, nil
}

func (repo *activityRepository) GetActivityByID(_ context.Context, id string) (activity.Activity, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if act, ok := repo.db.acts[id]; ok {
		return *act, nil
	}
	return activity.Activity{}, activity.ErrNotFound
}

func (repo *activityRepository) QueryActivities(_ context.Context) ([]activity.Activity, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	acts := make([]activity.Activity, 0, len(repo.db.acts))
	for _, act := range repo.db.acts {
		acts = append(acts, *act)
	}
	return acts, nil
}

func (repo *activityRepository) DeleteActivity(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	delete(repo.db.acts, id)
	return nil
}

func (repo *activityRepository) CreateProgress(_ context.Context, prog activity.Progress) (activity.Progress, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, p := range repo.db.progress {
		if p.StudentID == prog.StudentID && p.ActivityID == prog.ActivityID {
			return activity.Progress{}, activity.ErrAlreadyCompleted
		}
	}
	prog.ID = uuid.NewString()
	repo.db.progress[prog.ID] = &prog
	return prog, nil
}

func (repo *activityRepository) QueryProgressByStudent(_ context.Context, studentID string) ([]activity.Progress, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	progs := make([]activity.Progress, 0)
	for _, p := range repo.db.progress {
		if p.StudentID == studentID {
			progs = append(progs, *p)
		}
	}
	return progs, nil
}

func (repo *activityRepository) DeleteProgressByStudent(_ context.Context, studentID string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	for id, p := range repo.db.progress {
		if p.StudentID == studentID {
			delete(repo.db.progress, id)
		}
	}
	return nil
}
