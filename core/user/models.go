package user

import (
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/edulab/lectura/core"
)

// Roles. An account holds exactly one.
const (
	RoleStudent = "estudiante"
	RoleTeacher = "profesor"
)

const DefaultAvatarURL = "/images/default-avatar.png"

var AllRoles = []string{RoleStudent, RoleTeacher}

type User struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Role         string `json:"role"`
	Grade        string `json:"grade,omitempty"`
	AvatarURL    string `json:"avatar_url"`
	PasswordHash []byte `json:"-"`

	// account lockout state
	LoginAttempts int        `json:"-"`
	LockUntil     *time.Time `json:"-"`

	// password reset state; both nil or both set
	ResetToken        *string    `json:"-"`
	ResetTokenExpires *time.Time `json:"-"`

	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
	LastLogin time.Time `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

// Locked reports whether the account is still under a lockout window.
func (u *User) Locked(now time.Time) bool {
	return u.LockUntil != nil && u.LockUntil.After(now)
}

// ClearResetToken nulls the token/expiry pair together (single-use guarantee).
func (u *User) ClearResetToken() {
	u.ResetToken = nil
	u.ResetTokenExpires = nil
}

func (u *User) IsStudent() bool { return u.Role == RoleStudent }
func (u *User) IsTeacher() bool { return u.Role == RoleTeacher }

// NewStudent contains information needed by a teacher to enroll a student.
type NewStudent struct {
	FirstName string `json:"nombres" validate:"required"`
	LastName  string `json:"apellidos" validate:"required"`
	Grade     string `json:"grado" validate:"required"`
	Email     string `json:"email" validate:"required,inst_email"`
	Password  string `json:"password" validate:"required"`
}

func (ns *NewStudent) Validate(svc Service) error {
	ns.FirstName = core.CleanString(ns.FirstName)
	ns.LastName = core.CleanString(ns.LastName)
	ns.Grade = core.CleanString(ns.Grade)
	ns.Email = core.CleanString(ns.Email, true /* lower */)

	if err := core.Validate.Struct(ns); err != nil {
		return err
	}
	return svc.CheckEmailUniqueness(ns.Email)
}

// UpdateStudent defines what a teacher may modify on a student account.
type UpdateStudent struct {
	FirstName string `json:"nombres"`
	LastName  string `json:"apellidos"`
	Grade     string `json:"grado"`
	Email     string `json:"email" validate:"omitempty,inst_email"`
}

func (us *UpdateStudent) Validate(origUsr User, svc Service) error {
	us.FirstName = core.CleanString(us.FirstName)
	us.LastName = core.CleanString(us.LastName)
	us.Grade = core.CleanString(us.Grade)
	us.Email = core.CleanString(us.Email, true /* lower */)

	if err := core.Validate.Struct(us); err != nil {
		return err
	}
	if us.Email != "" && us.Email != origUsr.Email {
		return svc.CheckEmailUniqueness(us.Email, origUsr)
	}
	return nil
}

// UpdateInfo defines what an account owner may modify on their own profile.
type UpdateInfo struct {
	Name  string `json:"nombre" validate:"required"`
	Email string `json:"email" validate:"required,inst_email"`
}

func (ui *UpdateInfo) Validate(origUsr User, svc Service) error {
	ui.Name = core.CleanString(ui.Name)
	ui.Email = core.CleanString(ui.Email, true /* lower */)

	if err := core.Validate.Struct(ui); err != nil {
		return err
	}
	if ui.Email != origUsr.Email {
		return svc.CheckEmailUniqueness(ui.Email, origUsr)
	}
	return nil
}

// ChangePassword carries an owner-initiated password change.
type ChangePassword struct {
	Current         string `json:"password_actual" validate:"required"`
	Password        string `json:"password_nueva" validate:"required"`
	PasswordConfirm string `json:"password_confirmar" validate:"required,eqfield=Password"`
}

func (cp ChangePassword) Validate() error { return core.Validate.Struct(cp) }

// ResetUserPassword carries a token-based password reset submission.
type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"confirmPassword,omitempty" validate:"required,eqfield=Password"`
}

func (rp ResetUserPassword) Validate() error { return core.Validate.Struct(rp) }
