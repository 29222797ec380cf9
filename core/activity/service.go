package activity

import (
	"context"
	"errors"
	"time"

	pkgerrors "github.com/pkg/errors"
)

var (
	// errors
	ErrNotFound         = errors.New("activity not found")
	ErrAlreadyCompleted = errors.New("activity already completed by this student")
)

var nowFunc = time.Now // mockable

type (
	Repository interface {
		CreateActivity(ctx context.Context, act Activity) (Activity, error)
		GetActivityByID(ctx context.Context, id string) (Activity, error)
		QueryActivities(ctx context.Context) ([]Activity, error)
		DeleteActivity(ctx context.Context, id string) error

		// CreateProgress must enforce (student, activity) uniqueness and
		// report ErrAlreadyCompleted on conflict.
		CreateProgress(ctx context.Context, prog Progress) (Progress, error)
		QueryProgressByStudent(ctx context.Context, studentID string) ([]Progress, error)
		DeleteProgressByStudent(ctx context.Context, studentID string) error
	}

	Service interface {
		Create(ctx context.Context, act Activity) (Activity, error)
		GetByID(ctx context.Context, id string) (Activity, error)
		QueryAll(ctx context.Context) ([]Activity, error)
		Delete(ctx context.Context, id string) error

		// Submit grades the answers (question id -> chosen alternative id)
		// server-side and records the student's progress.
		Submit(ctx context.Context, studentID, activityID string, answers map[string]string) (Progress, error)
		ProgressFor(ctx context.Context, studentID string) ([]Progress, error)
		// XP is the student's accumulated score across completed activities.
		XP(ctx context.Context, studentID string) (int, error)
		ForgetStudent(ctx context.Context, studentID string) error
	}

	service struct {
		repo Repository
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (svc *service) Create(ctx context.Context, act Activity) (Activity, error) {
	now := nowFunc().UTC()
	act.CreatedAt = now
	act.UpdatedAt = now
	if act.ImageURL == "" {
		act.ImageURL = DefaultImageURL
	}
	return svc.repo.CreateActivity(ctx, act)
}

func (svc *service) GetByID(ctx context.Context, id string) (Activity, error) {
	return svc.repo.GetActivityByID(ctx, id)
}

func (svc *service) QueryAll(ctx context.Context) ([]Activity, error) {
	return svc.repo.QueryActivities(ctx)
}

func (svc *service) Delete(ctx context.Context, id string) error {
	return svc.repo.DeleteActivity(ctx, id)
}

func (svc *service) Submit(ctx context.Context, studentID, activityID string, answers map[string]string) (Progress, error) {
	act, err := svc.repo.GetActivityByID(ctx, activityID)
	if err != nil {
		return Progress{}, err
	}

	var score int
	for _, q := range act.Questions {
		chosen, ok := answers[q.ID]
		if !ok {
			continue
		}
		for _, alt := range q.Alternatives {
			if alt.ID == chosen && alt.Correct {
				score += q.Points
				break
			}
		}
	}

	prog := Progress{
		StudentID:   studentID,
		ActivityID:  act.ID,
		Score:       score,
		TotalScore:  act.TotalPoints(),
		CompletedAt: nowFunc().UTC(),
	}
	prog, err = svc.repo.CreateProgress(ctx, prog)
	if err != nil {
		if err == ErrAlreadyCompleted {
			return Progress{}, err
		}
		return Progress{}, pkgerrors.Wrap(err, "recording progress")
	}
	return prog, nil
}

func (svc *service) ProgressFor(ctx context.Context, studentID string) ([]Progress, error) {
	return svc.repo.QueryProgressByStudent(ctx, studentID)
}

func (svc *service) XP(ctx context.Context, studentID string) (int, error) {
	progs, err := svc.repo.QueryProgressByStudent(ctx, studentID)
	if err != nil {
		return 0, err
	}
	var xp int
	for _, p := range progs {
		xp += p.Score
	}
	return xp, nil
}

func (svc *service) ForgetStudent(ctx context.Context, studentID string) error {
	return svc.repo.DeleteProgressByStudent(ctx, studentID)
}
