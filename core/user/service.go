package user

import (
	"bytes"
	"context"
	"errors"
	htmltmpl "html/template"
	"math"
	"net/mail"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/edulab/lectura/core"
)

// abuse/DoS guards on raw login input
const (
	maxEmailLen    = 254
	maxPasswordLen = 128
)

var (
	// errors
	ErrNotFound      = errors.New("user not found")
	ErrEmailExists   = errors.New("a user with this email already exists")
	ErrAuthFailed    = errors.New("authentication failed")
	ErrInvalidToken  = errors.New("invalid or expired reset token")
	ErrWrongPassword = errors.New("current password is incorrect")
)

// LockedError rejects a login while the lockout window is still open.
type LockedError struct {
	Until time.Time
}

func (e *LockedError) Error() string { return "account temporarily locked" }

// RemainingMinutes is rounded up so the user is never told 0 minutes.
func (e *LockedError) RemainingMinutes(now time.Time) int {
	mins := int(math.Ceil(e.Until.Sub(now).Minutes()))
	if mins < 1 {
		mins = 1
	}
	return mins
}

type (
	Repository interface {
		CheckEmailUniqueness(ctx context.Context, email string, excludedUsers ...User) error
		CreateUser(ctx context.Context, usr User) (User, error)
		GetUserByID(ctx context.Context, id string) (User, error)
		GetUserByEmail(ctx context.Context, email string) (User, error)
		GetUserByResetToken(ctx context.Context, token string) (User, error)
		QueryUsersByRole(ctx context.Context, role string) ([]User, error)
		// UpdateUser must persist the reset token/expiry pair atomically together.
		UpdateUser(ctx context.Context, usr User) (User, error)
		DeleteUsersByID(ctx context.Context, ids ...string) error
	}

	Service interface {
		Authenticate(ctx context.Context, email, password string) (User, error)
		RequestPasswordReset(ctx context.Context, email string) error
		VerifyResetToken(ctx context.Context, token string) (User, error)
		ResetPassword(ctx context.Context, rp ResetUserPassword) error
		ChangePassword(ctx context.Context, id string, cp ChangePassword) error

		CheckEmailUniqueness(email string, excludedUsers ...User) error
		CreateStudent(ctx context.Context, ns NewStudent) (User, error)
		CreateTeacher(ctx context.Context, name, email, pwd string) (User, error)
		GetByID(ctx context.Context, id string) (User, error)
		GetByEmail(ctx context.Context, email string) (User, error)
		QueryStudents(ctx context.Context) ([]User, error)
		UpdateStudent(ctx context.Context, id string, us UpdateStudent) (User, error)
		UpdateInfo(ctx context.Context, id string, ui UpdateInfo) (User, error)
		SetPassword(ctx context.Context, id, pwd string) error
		Delete(ctx context.Context, ids ...string) error
	}

	service struct {
		repo    Repository
		mailSvc core.EmailService
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, mailSvc core.EmailService) Service {
	return &service{repo: repo, mailSvc: mailSvc}
}

// Authenticate runs the credential checks in order, short-circuiting on the
// first failure. All rejection paths (missing fields, bad domain, unknown
// account, wrong password) return the same ErrAuthFailed so a caller cannot
// tell which check failed; only an in-flight lockout is distinguishable.
func (svc *service) Authenticate(ctx context.Context, email, password string) (User, error) {
	email = core.CleanString(email, true /* lower */)

	if email == "" || password == "" {
		return User{}, ErrAuthFailed
	}
	if len(email) > maxEmailLen || len(password) > maxPasswordLen {
		return User{}, ErrAuthFailed
	}
	if !MatchesInstitutionalEmail(email) {
		return User{}, ErrAuthFailed
	}

	usr, err := svc.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if err == ErrNotFound {
			return User{}, ErrAuthFailed
		}
		return User{}, pkgerrors.Wrap(err, "finding user by email")
	}

	now := nowFunc()

	// a locked account is rejected before the password is even checked,
	// and the rejection does not touch the attempt counter
	if usr.Locked(now) {
		return User{}, &LockedError{Until: *usr.LockUntil}
	}

	if err := usr.CheckPassword(password); err != nil {
		usr.LoginAttempts++
		if usr.LoginAttempts >= core.Conf.Login.MaxAttempts {
			until := now.Add(core.Conf.Login.LockDuration)
			usr.LockUntil = &until
		}
		if _, err := svc.repo.UpdateUser(ctx, usr); err != nil {
			return User{}, pkgerrors.Wrap(err, "recording failed attempt")
		}
		return User{}, ErrAuthFailed
	}

	usr.LoginAttempts = 0
	usr.LockUntil = nil
	usr.LastLogin = now.UTC()
	usr.UpdatedAt = now.UTC()
	if usr, err = svc.repo.UpdateUser(ctx, usr); err != nil {
		return User{}, pkgerrors.Wrap(err, "clearing lockout state")
	}
	return usr, nil
}

// RequestPasswordReset issues a fresh token and mails the reset link.
// ErrNotFound is returned for unknown emails; the caller must swallow it and
// answer with the same generic message either way (anti-enumeration).
func (svc *service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.repo.GetUserByEmail(ctx, core.CleanString(email, true /* lower */))
	if err != nil {
		return err
	}

	token, err := makeResetToken()
	if err != nil {
		return pkgerrors.Wrap(err, "generating reset token")
	}
	expires := nowFunc().Add(core.Conf.PasswordResetTimeout)
	usr.ResetToken = &token
	usr.ResetTokenExpires = &expires
	if usr, err = svc.repo.UpdateUser(ctx, usr); err != nil {
		return pkgerrors.Wrap(err, "storing reset token")
	}

	svc.sendPasswordResetMail(usr, token)
	return nil
}

// VerifyResetToken succeeds only if an account holds that exact token and it
// has not expired. Valid for repeated reads up to expiry.
func (svc *service) VerifyResetToken(ctx context.Context, token string) (User, error) {
	if token == "" {
		return User{}, ErrInvalidToken
	}
	usr, err := svc.repo.GetUserByResetToken(ctx, token)
	if err != nil {
		if err == ErrNotFound {
			return User{}, ErrInvalidToken
		}
		return User{}, pkgerrors.Wrap(err, "finding user by reset token")
	}
	if usr.ResetTokenExpires == nil || !usr.ResetTokenExpires.After(nowFunc()) {
		return User{}, ErrInvalidToken
	}
	return usr, nil
}

// ResetPassword consumes the token: the token is re-verified (it could have
// expired between page-load and submit), the credential is overwritten and the
// token/expiry pair is nulled together before persisting.
func (svc *service) ResetPassword(ctx context.Context, rp ResetUserPassword) error {
	if err := rp.Validate(); err != nil {
		return err
	}

	usr, err := svc.VerifyResetToken(ctx, rp.Token)
	if err != nil {
		return err
	}

	if err := usr.SetPassword(rp.Password); err != nil {
		return pkgerrors.Wrap(err, "hashing password")
	}
	usr.ClearResetToken()
	usr.UpdatedAt = nowFunc().UTC()
	if _, err := svc.repo.UpdateUser(ctx, usr); err != nil {
		return pkgerrors.Wrap(err, "saving new password")
	}
	return nil
}

func (svc *service) ChangePassword(ctx context.Context, id string, cp ChangePassword) error {
	if err := cp.Validate(); err != nil {
		return err
	}
	usr, err := svc.repo.GetUserByID(ctx, id)
	if err != nil {
		return err
	}
	if err := usr.CheckPassword(cp.Current); err != nil {
		return ErrWrongPassword
	}
	if err := usr.SetPassword(cp.Password); err != nil {
		return pkgerrors.Wrap(err, "hashing password")
	}
	usr.UpdatedAt = nowFunc().UTC()
	_, err = svc.repo.UpdateUser(ctx, usr)
	return err
}

func (svc *service) CheckEmailUniqueness(email string, excludedUsers ...User) error {
	if err := svc.repo.CheckEmailUniqueness(context.Background(), email, excludedUsers...); err != nil {
		if err == ErrEmailExists {
			return core.NewValidationError(err, core.FieldError{Field: "email", Error: err.Error()})
		}
		return err
	}
	return nil
}

func (svc *service) CreateStudent(ctx context.Context, ns NewStudent) (User, error) {
	now := nowFunc().UTC()
	usr := User{
		Name:      ns.FirstName + " " + ns.LastName,
		Email:     ns.Email,
		Role:      RoleStudent,
		Grade:     ns.Grade,
		AvatarURL: DefaultAvatarURL,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(ns.Password); err != nil {
		return User{}, pkgerrors.Wrap(err, "hashing password")
	}
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *service) CreateTeacher(ctx context.Context, name, email, pwd string) (User, error) {
	now := nowFunc().UTC()
	usr := User{
		Name:      core.CleanString(name),
		Email:     core.CleanString(email, true /* lower */),
		Role:      RoleTeacher,
		AvatarURL: DefaultAvatarURL,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(pwd); err != nil {
		return User{}, pkgerrors.Wrap(err, "hashing password")
	}
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUserByID(ctx, id)
}

func (svc *service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUserByEmail(ctx, core.CleanString(email, true /* lower */))
}

func (svc *service) QueryStudents(ctx context.Context) ([]User, error) {
	return svc.repo.QueryUsersByRole(ctx, RoleStudent)
}

func (svc *service) UpdateStudent(ctx context.Context, id string, us UpdateStudent) (User, error) {
	usr, err := svc.repo.GetUserByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	if name := core.CleanString(us.FirstName + " " + us.LastName); name != "" {
		usr.Name = name
	}
	if us.Grade != "" {
		usr.Grade = us.Grade
	}
	if us.Email != "" {
		usr.Email = us.Email
	}
	usr.UpdatedAt = nowFunc().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *service) UpdateInfo(ctx context.Context, id string, ui UpdateInfo) (User, error) {
	usr, err := svc.repo.GetUserByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	usr.Name = ui.Name
	usr.Email = ui.Email
	usr.UpdatedAt = nowFunc().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *service) SetPassword(ctx context.Context, id, pwd string) error {
	usr, err := svc.repo.GetUserByID(ctx, id)
	if err != nil {
		return err
	}
	if err := usr.SetPassword(pwd); err != nil {
		return pkgerrors.Wrap(err, "hashing password")
	}
	usr.UpdatedAt = nowFunc().UTC()
	_, err = svc.repo.UpdateUser(ctx, usr)
	return err
}

func (svc *service) Delete(ctx context.Context, ids ...string) error {
	return svc.repo.DeleteUsersByID(ctx, ids...)
}

var resetMailTmpl = htmltmpl.Must(htmltmpl.New("resetMail").Parse(`
<h2>¡Hola, {{.Name}}!</h2>
<p>Recibimos una solicitud para resetear tu contraseña. Haz clic en el siguiente enlace para continuar:</p>
<a href="{{.ResetURL}}" style="background: #4396ea; color: white; padding: 10px 15px; text-decoration: none; border-radius: 5px;">Resetear mi Contraseña</a>
<p>Este enlace expirará en 1 hora.</p>
<p>Si tú no solicitaste esto, puedes ignorar este email.</p>
`))

// sendPasswordResetMail hands the message to the email service; dispatch is
// fire-and-forget relative to the user-visible outcome.
func (svc *service) sendPasswordResetMail(usr User, token string) {
	resetURL := core.Conf.Server.BaseURL + "/contrasena_resetear/" + token

	var body bytes.Buffer
	_ = resetMailTmpl.Execute(&body, struct {
		Name     string
		ResetURL string
	}{usr.Name, resetURL})

	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:          []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:     "Enlace para resetear tu contraseña",
		TextContent: "Usa este enlace para resetear tu contraseña: " + resetURL,
		HTMLContent: body.String(),
	})
}
