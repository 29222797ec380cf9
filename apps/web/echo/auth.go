package echoweb

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/edulab/lectura/core"
	"github.com/edulab/lectura/core/activity"
	"github.com/edulab/lectura/core/session"
	"github.com/edulab/lectura/core/user"
)

// user-facing messages (flash)
const (
	msgAuthFailed   = "Email o contraseña incorrectos."
	msgLockedFmt    = "Cuenta bloqueada temporalmente. Inténtalo de nuevo en %d minutos."
	msgResetSent    = "Si existe una cuenta con ese email, recibirás un enlace para resetear tu contraseña."
	msgTokenInvalid = "El enlace es inválido o ha expirado."
	msgPwdMismatch  = "Las contraseñas no coinciden."
	msgPwdReset     = "¡Contraseña actualizada! Ya puedes iniciar sesión."
)

type handlers struct {
	logger     core.Logger
	usrSvc     user.Service
	actSvc     activity.Service
	sessionMgr *session.Manager
}

// ensureSession returns the request's session, creating an unsaved anonymous
// one when the request carries none. Needed to flash messages pre-login.
func (h *handlers) ensureSession(ctx echo.Context) *session.Session {
	if sess := currentSession(ctx); sess != nil {
		return sess
	}
	sess := h.sessionMgr.New()
	ctx.Set(sessionContextKey, sess)
	return sess
}

// flashError persists the message then redirects; the store write completes
// before the Location header is sent, so the message survives the redirect.
func (h *handlers) flashError(ctx echo.Context, msg, url string) error {
	sess := h.ensureSession(ctx)
	if err := h.sessionMgr.FlashError(ctx.Request().Context(), sess, msg); err != nil {
		return errors.Wrap(err, "flashing error message")
	}
	setSessionCookie(ctx, sess, int(h.sessionMgr.TTL(sess).Seconds()))
	return ctx.Redirect(http.StatusFound, url)
}

func (h *handlers) flashSuccess(ctx echo.Context, msg, url string) error {
	sess := h.ensureSession(ctx)
	if err := h.sessionMgr.FlashSuccess(ctx.Request().Context(), sess, msg); err != nil {
		return errors.Wrap(err, "flashing success message")
	}
	setSessionCookie(ctx, sess, int(h.sessionMgr.TTL(sess).Seconds()))
	return ctx.Redirect(http.StatusFound, url)
}

// popFlash consumes the session's one-shot messages for page data.
func (h *handlers) popFlash(ctx echo.Context) (errMsg, successMsg string, err error) {
	return h.sessionMgr.PopFlash(ctx.Request().Context(), currentSession(ctx))
}

type loginRequest struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
	Remember bool   `json:"remember" form:"remember"`
}

// loginPage returns the login page data; an already-authenticated session is
// sent straight to its dashboard.
func (h *handlers) loginPage(ctx echo.Context) error {
	if sess := currentSession(ctx); sess.Authenticated() {
		return ctx.Redirect(http.StatusFound, dashboardPath(sess.User.Role))
	}
	errMsg, successMsg, err := h.popFlash(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"error": errMsg, "success": successMsg})
}

func (h *handlers) login(ctx echo.Context) error {
	var data loginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to loginRequest")
	}

	usr, err := h.usrSvc.Authenticate(ctx.Request().Context(), data.Email, data.Password)
	if err != nil {
		if lockErr, ok := errors.Cause(err).(*user.LockedError); ok {
			msg := fmt.Sprintf(msgLockedFmt, lockErr.RemainingMinutes(time.Now()))
			return h.flashError(ctx, msg, "/login")
		}
		if errors.Cause(err) == user.ErrAuthFailed {
			return h.flashError(ctx, msgAuthFailed, "/login")
		}
		return errors.Wrap(err, "authenticating")
	}

	src := projectionSource{usrSvc: h.usrSvc, actSvc: h.actSvc}
	proj, err := src.Projection(ctx.Request().Context(), usr.ID)
	if err != nil {
		return errors.Wrap(err, "building session projection")
	}

	// fixation defense: any pre-auth session is destroyed and the data goes
	// into a freshly-identified record; a store failure aborts the login
	sess, err := h.sessionMgr.Login(ctx.Request().Context(), currentSession(ctx), proj, data.Remember)
	if err != nil {
		return errors.Wrap(err, "establishing session")
	}
	ctx.Set(sessionContextKey, sess)
	setSessionCookie(ctx, sess, int(h.sessionMgr.TTL(sess).Seconds()))
	return ctx.Redirect(http.StatusFound, dashboardPath(usr.Role))
}

func (h *handlers) logout(ctx echo.Context) error {
	if sess := currentSession(ctx); sess != nil {
		if err := h.sessionMgr.Destroy(ctx.Request().Context(), sess); err != nil {
			return errors.Wrap(err, "destroying session")
		}
		ctx.Set(sessionContextKey, nil)
	}
	clearSessionCookie(ctx)
	return ctx.Redirect(http.StatusFound, "/login")
}

func (h *handlers) forgotPasswordPage(ctx echo.Context) error {
	errMsg, successMsg, err := h.popFlash(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"error": errMsg, "success": successMsg})
}

type passwordResetRequest struct {
	Email string `json:"email" form:"email"`
}

// forgotPassword answers with the same generic message whether or not the
// email maps to an account; do not leak account existence to attackers.
func (h *handlers) forgotPassword(ctx echo.Context) error {
	var data passwordResetRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to passwordResetRequest")
	}

	if err := h.usrSvc.RequestPasswordReset(ctx.Request().Context(), data.Email); err != nil {
		if errors.Cause(err) != user.ErrNotFound {
			h.logger.Error("requesting password reset", errors.Wrap(err, "requesting password reset"))
		}
	}
	return h.flashSuccess(ctx, msgResetSent, "/contrasena_olvidada")
}

func (h *handlers) resetPasswordPage(ctx echo.Context) error {
	token := ctx.Param("token")
	if _, err := h.usrSvc.VerifyResetToken(ctx.Request().Context(), token); err != nil {
		if errors.Cause(err) == user.ErrInvalidToken {
			return h.flashError(ctx, msgTokenInvalid, "/contrasena_olvidada")
		}
		return errors.Wrap(err, "verifying reset token")
	}

	errMsg, successMsg, err := h.popFlash(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"token": token, "error": errMsg, "success": successMsg})
}

func (h *handlers) resetPassword(ctx echo.Context) error {
	var data user.ResetUserPassword
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ResetUserPassword")
	}
	data.Token = ctx.Param("token")

	// mismatch sends the user back to the same form; the token is untouched
	// and stays usable until consumed or expired
	if data.Password != data.PasswordConfirm {
		return h.flashError(ctx, msgPwdMismatch, "/contrasena_resetear/"+data.Token)
	}

	if err := h.usrSvc.ResetPassword(ctx.Request().Context(), data); err != nil {
		if errors.Cause(err) == user.ErrInvalidToken {
			return h.flashError(ctx, msgTokenInvalid, "/contrasena_olvidada")
		}
		return err
	}
	return h.flashSuccess(ctx, msgPwdReset, "/login")
}
