package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/edulab/lectura/core/activity"
)

type dbActivity struct {
	ID          string    `db:"id"`
	Title       string    `db:"title"`
	Description string    `db:"description"`
	Topic       string    `db:"topic"`
	Difficulty  string    `db:"difficulty"`
	ImageURL    string    `db:"image_url"`
	TeacherID   string    `db:"teacher_id"`
	Questions   []byte    `db:"questions"` // jsonb
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// dbQuestion mirrors activity.Question but keeps the correct-answer flag,
// which the domain model never serializes towards clients.
type dbQuestion struct {
	ID           string          `json:"id"`
	Text         string          `json:"texto"`
	Points       int             `json:"puntaje"`
	Alternatives []dbAlternative `json:"alternativas"`
}

type dbAlternative struct {
	ID      string `json:"id"`
	Text    string `json:"texto"`
	Correct bool   `json:"esCorrecta"`
}

func (da dbActivity) toDomain() (activity.Activity, error) {
	var dqs []dbQuestion
	if err := json.Unmarshal(da.Questions, &dqs); err != nil {
		return activity.Activity{}, errors.Wrap(err, "decoding questions")
	}
	questions := make([]activity.Question, 0, len(dqs))
	for _, dq := range dqs {
		q := activity.Question{ID: dq.ID, Text: dq.Text, Points: dq.Points}
		for _, alt := range dq.Alternatives {
			q.Alternatives = append(q.Alternatives, activity.Alternative(alt))
		}
		questions = append(questions, q)
	}
	return activity.Activity{
		ID:          da.ID,
		Title:       da.Title,
		Description: da.Description,
		Topic:       da.Topic,
		Difficulty:  da.Difficulty,
		ImageURL:    da.ImageURL,
		TeacherID:   da.TeacherID,
		Questions:   questions,
		CreatedAt:   da.CreatedAt,
		UpdatedAt:   da.UpdatedAt,
	}, nil
}

func fromDomainActivity(act activity.Activity) (dbActivity, error) {
	dqs := make([]dbQuestion, 0, len(act.Questions))
	for _, q := range act.Questions {
		dq := dbQuestion{ID: q.ID, Text: q.Text, Points: q.Points}
		for _, alt := range q.Alternatives {
			dq.Alternatives = append(dq.Alternatives, dbAlternative(alt))
		}
		dqs = append(dqs, dq)
	}
	raw, err := json.Marshal(dqs)
	if err != nil {
		return dbActivity{}, errors.Wrap(err, "encoding questions")
	}
	return dbActivity{
		ID:          act.ID,
		Title:       act.Title,
		Description: act.Description,
		Topic:       act.Topic,
		Difficulty:  act.Difficulty,
		ImageURL:    act.ImageURL,
		TeacherID:   act.TeacherID,
		Questions:   raw,
		CreatedAt:   act.CreatedAt,
		UpdatedAt:   act.UpdatedAt,
	}, nil
}

type dbProgress struct {
	ID          string    `db:"id"`
	StudentID   string    `db:"student_id"`
	ActivityID  string    `db:"activity_id"`
	Score       int       `db:"score"`
	TotalScore  int       `db:"total_score"`
	CompletedAt time.Time `db:"completed_at"`
}

type activityRepository struct {
	db *sqlx.DB
}

var _ activity.Repository = (*activityRepository)(nil)

func NewActivityRepository(db *sqlx.DB) activity.Repository {
	return &activityRepository{db: db}
}

func (repo *activityRepository) CreateActivity(ctx context.Context, act activity.Activity) (activity.Activity, error) {
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

	da, err := fromDomainActivity(act)
	if err != nil {
		return activity.Activity{}, err
	}
	_, err = repo.db.NamedExecContext(ctx, `
		INSERT INTO activities (id, title, description, topic, difficulty, image_url,
		                        teacher_id, questions, created_at, updated_at)
		VALUES (:id, :title, :description, :topic, :difficulty, :image_url,
		        :teacher_id, :questions, :created_at, :updated_at)`, da)
	if err != nil {
		return activity.Activity{}, errors.Wrap(err, "inserting activity")
	}
	return act, nil
}

func (repo *activityRepository) GetActivityByID(ctx context.Context, id string) (activity.Activity, error) {
	var da dbActivity
	if err := repo.db.GetContext(ctx, &da, `SELECT * FROM activities WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return activity.Activity{}, activity.ErrNotFound
		}
		return activity.Activity{}, errors.Wrap(err, "querying activity")
	}
	return da.toDomain()
}

func (repo *activityRepository) QueryActivities(ctx context.Context) ([]activity.Activity, error) {
	var das []dbActivity
	if err := repo.db.SelectContext(ctx, &das, `SELECT * FROM activities ORDER BY created_at DESC`); err != nil {
		return nil, errors.Wrap(err, "querying activities")
	}
	acts := make([]activity.Activity, 0, len(das))
	for _, da := range das {
		act, err := da.toDomain()
		if err != nil {
			return nil, err
		}
		acts = append(acts, act)
	}
	return acts, nil
}

func (repo *activityRepository) DeleteActivity(ctx context.Context, id string) error {
	_, err := repo.db.ExecContext(ctx, `DELETE FROM activities WHERE id = $1`, id)
	return errors.Wrap(err, "deleting activity")
}

func (repo *activityRepository) CreateProgress(ctx context.Context, prog activity.Progress) (activity.Progress, error) {
	prog.ID = uuid.NewString()
	dp := dbProgress(prog)
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO progress (id, student_id, activity_id, score, total_score, completed_at)
		VALUES (:id, :student_id, :activity_id, :score, :total_score, :completed_at)`, dp)
	if err != nil {
		if pqErr, ok := errors.Cause(err).(*pq.Error); ok && pqErr.Code == pqUniqueViolation {
			return activity.Progress{}, activity.ErrAlreadyCompleted
		}
		return activity.Progress{}, errors.Wrap(err, "inserting progress")
	}
	return prog, nil
}

func (repo *activityRepository) QueryProgressByStudent(ctx context.Context, studentID string) ([]activity.Progress, error) {
	var dps []dbProgress
	err := repo.db.SelectContext(ctx, &dps,
		`SELECT * FROM progress WHERE student_id = $1 ORDER BY completed_at DESC`, studentID)
	if err != nil {
		return nil, errors.Wrap(err, "querying progress")
	}
	progs := make([]activity.Progress, 0, len(dps))
	for _, dp := range dps {
		progs = append(progs, activity.Progress(dp))
	}
	return progs, nil
}

func (repo *activityRepository) DeleteProgressByStudent(ctx context.Context, studentID string) error {
	_, err := repo.db.ExecContext(ctx, `DELETE FROM progress WHERE student_id = $1`, studentID)
	return errors.Wrap(err, "deleting progress")
}
