package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/edulab/lectura/core/user"
)

const pqUniqueViolation = "23505"

type dbUser struct {
	ID                string         `db:"id"`
	Name              string         `db:"name"`
	Email             string         `db:"email"`
	Role              string         `db:"role"`
	Grade             string         `db:"grade"`
	AvatarURL         string         `db:"avatar_url"`
	PasswordHash      []byte         `db:"password_hash"`
	LoginAttempts     int            `db:"login_attempts"`
	LockUntil         sql.NullTime   `db:"lock_until"`
	ResetToken        sql.NullString `db:"reset_token"`
	ResetTokenExpires sql.NullTime   `db:"reset_token_expires"`
	CreatedAt         time.Time      `db:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at"`
	LastLogin         time.Time      `db:"last_login"`
}

func (du dbUser) toDomain() user.User {
	usr := user.User{
		ID:            du.ID,
		Name:          du.Name,
		Email:         du.Email,
		Role:          du.Role,
		Grade:         du.Grade,
		AvatarURL:     du.AvatarURL,
		PasswordHash:  du.PasswordHash,
		LoginAttempts: du.LoginAttempts,
		CreatedAt:     du.CreatedAt,
		UpdatedAt:     du.UpdatedAt,
		LastLogin:     du.LastLogin,
	}
	if du.LockUntil.Valid {
		t := du.LockUntil.Time
		usr.LockUntil = &t
	}
	if du.ResetToken.Valid {
		s := du.ResetToken.String
		usr.ResetToken = &s
	}
	if du.ResetTokenExpires.Valid {
		t := du.ResetTokenExpires.Time
		usr.ResetTokenExpires = &t
	}
	return usr
}

func fromDomain(usr user.User) dbUser {
	du := dbUser{
		ID:            usr.ID,
		Name:          usr.Name,
		Email:         usr.Email,
		Role:          usr.Role,
		Grade:         usr.Grade,
		AvatarURL:     usr.AvatarURL,
		PasswordHash:  usr.PasswordHash,
		LoginAttempts: usr.LoginAttempts,
		CreatedAt:     usr.CreatedAt,
		UpdatedAt:     usr.UpdatedAt,
		LastLogin:     usr.LastLogin,
	}
	if usr.LockUntil != nil {
		du.LockUntil = sql.NullTime{Time: *usr.LockUntil, Valid: true}
	}
	if usr.ResetToken != nil {
		du.ResetToken = sql.NullString{String: *usr.ResetToken, Valid: true}
	}
	if usr.ResetTokenExpires != nil {
		du.ResetTokenExpires = sql.NullTime{Time: *usr.ResetTokenExpires, Valid: true}
	}
	return du
}

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *sqlx.DB) user.Repository {
	return &userRepository{db: db}
}

func (repo *userRepository) CheckEmailUniqueness(ctx context.Context, email string, excludedUsers ...user.User) error {
	exclIDs := make([]string, 0, len(excludedUsers))
	for _, usr := range excludedUsers {
		exclIDs = append(exclIDs, usr.ID)
	}

	var exists bool
	err := repo.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM users WHERE email = $1 AND id != ALL($2))`,
		email, pq.Array(exclIDs),
	)
	if err != nil {
		return errors.Wrap(err, "checking email uniqueness")
	}
	if exists {
		return user.ErrEmailExists
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	usr.ID = uuid.NewString()
	du := fromDomain(usr)
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO users (id, name, email, role, grade, avatar_url, password_hash,
		                   login_attempts, lock_until, reset_token, reset_token_expires,
		                   created_at, updated_at)
		VALUES (:id, :name, :email, :role, :grade, :avatar_url, :password_hash,
		        :login_attempts, :lock_until, :reset_token, :reset_token_expires,
		        :created_at, :updated_at)`, du)
	if err != nil {
		if pqErr, ok := errors.Cause(err).(*pq.Error); ok && pqErr.Code == pqUniqueViolation {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo *userRepository) getUser(ctx context.Context, query string, args ...interface{}) (user.User, error) {
	var du dbUser
	if err := repo.db.GetContext(ctx, &du, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "querying user")
	}
	return du.toDomain(), nil
}

func (repo *userRepository) GetUserByID(ctx context.Context, id string) (user.User, error) {
	return repo.getUser(ctx, `SELECT * FROM users WHERE id = $1`, id)
}

func (repo *userRepository) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	return repo.getUser(ctx, `SELECT * FROM users WHERE email = $1`, email)
}

func (repo *userRepository) GetUserByResetToken(ctx context.Context, token string) (user.User, error) {
	return repo.getUser(ctx, `SELECT * FROM users WHERE reset_token = $1`, token)
}

func (repo *userRepository) QueryUsersByRole(ctx context.Context, role string) ([]user.User, error) {
	var dus []dbUser
	err := repo.db.SelectContext(ctx, &dus, `SELECT * FROM users WHERE role = $1 ORDER BY name`, role)
	if err != nil {
		return nil, errors.Wrap(err, "querying users by role")
	}
	users := make([]user.User, 0, len(dus))
	for _, du := range dus {
		users = append(users, du.toDomain())
	}
	return users, nil
}

// UpdateUser writes all mutable columns in one statement; the reset
// token/expiry pair always travels together.
func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	du := fromDomain(usr)
	res, err := repo.db.NamedExecContext(ctx, `
		UPDATE users
		SET name = :name, email = :email, role = :role, grade = :grade,
		    avatar_url = :avatar_url, password_hash = :password_hash,
		    login_attempts = :login_attempts, lock_until = :lock_until,
		    reset_token = :reset_token, reset_token_expires = :reset_token_expires,
		    updated_at = :updated_at, last_login = :last_login
		WHERE id = :id`, du)
	if err != nil {
		if pqErr, ok := errors.Cause(err).(*pq.Error); ok && pqErr.Code == pqUniqueViolation {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

func (repo *userRepository) DeleteUsersByID(ctx context.Context, ids ...string) error {
	_, err := repo.db.ExecContext(ctx, `DELETE FROM users WHERE id = ANY($1)`, pq.Array(ids))
	return errors.Wrap(err, "deleting users")
}
