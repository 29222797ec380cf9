package echoweb

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/edulab/lectura/core"
	"github.com/edulab/lectura/core/activity"
	"github.com/edulab/lectura/core/session"
	"github.com/edulab/lectura/core/user"
)

const sessionContextKey = "session"

// currentSession returns the request's session, or nil for anonymous requests.
func currentSession(ctx echo.Context) *session.Session {
	sess, _ := ctx.Get(sessionContextKey).(*session.Session)
	return sess
}

func dashboardPath(role string) string {
	if role == user.RoleTeacher {
		return "/profesor/dashboard"
	}
	return "/dashboard"
}

func setSessionCookie(ctx echo.Context, sess *session.Session, maxAge int) {
	ctx.SetCookie(&http.Cookie{
		Name:     core.Conf.Session.CookieName,
		Value:    sess.ID,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   core.Conf.IsProd(),
	})
}

func clearSessionCookie(ctx echo.Context) {
	ctx.SetCookie(&http.Cookie{
		Name:     core.Conf.Session.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   core.Conf.IsProd(),
	})
}

// loadSession resolves the session cookie against the store. An unknown or
// expired identifier is treated as an anonymous request, never an error.
func (h *handlers) loadSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		cookie, err := ctx.Cookie(core.Conf.Session.CookieName)
		if err == nil && cookie.Value != "" {
			sess, err := h.sessionMgr.Load(ctx.Request().Context(), cookie.Value)
			switch {
			case err == nil:
				ctx.Set(sessionContextKey, sess)
			case errors.Cause(err) == session.ErrNotFound:
				clearSessionCookie(ctx)
			default:
				return errors.Wrap(err, "loading session")
			}
		}
		return next(ctx)
	}
}

// refreshSessionProjection re-reads the account and overwrites the session
// projection before any guard runs, so role changes and profile edits apply
// immediately. A vanished account invalidates the session on the spot.
func (h *handlers) refreshSessionProjection(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		sess := currentSession(ctx)
		if sess.Authenticated() {
			if err := h.sessionMgr.Refresh(ctx.Request().Context(), sess); err != nil {
				if errors.Cause(err) == session.ErrUnknownAccount {
					ctx.Set(sessionContextKey, nil)
					clearSessionCookie(ctx)
					return ctx.Redirect(http.StatusFound, "/login")
				}
				return errors.Wrap(err, "refreshing session")
			}
			// rolling expiry: the cookie is re-armed alongside the store record
			setSessionCookie(ctx, sess, int(h.sessionMgr.TTL(sess).Seconds()))
		}
		return next(ctx)
	}
}

func requireAuthenticated(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		if !currentSession(ctx).Authenticated() {
			return ctx.Redirect(http.StatusFound, "/login")
		}
		return next(ctx)
	}
}

// requireRole admits only sessions holding the role; the check reads the
// session projection, never storage.
func requireRole(role string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			sess := currentSession(ctx)
			if !sess.Authenticated() {
				return ctx.Redirect(http.StatusFound, "/login")
			}
			if !sess.HasRole(role) {
				return ctx.Redirect(http.StatusFound, dashboardPath(sess.User.Role))
			}
			return next(ctx)
		}
	}
}

// projectionSource assembles the account snapshot stored in sessions. XP only
// applies to students.
type projectionSource struct {
	usrSvc user.Service
	actSvc activity.Service
}

var _ session.ProjectionSource = (*projectionSource)(nil)

func NewProjectionSource(usrSvc user.Service, actSvc activity.Service) session.ProjectionSource {
	return &projectionSource{usrSvc: usrSvc, actSvc: actSvc}
}

func (src *projectionSource) Projection(ctx context.Context, userID string) (session.Projection, error) {
	usr, err := src.usrSvc.GetByID(ctx, userID)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return session.Projection{}, session.ErrUnknownAccount
		}
		return session.Projection{}, errors.Wrap(err, "finding account")
	}

	proj := session.Projection{
		UserID:    usr.ID,
		Name:      usr.Name,
		Role:      usr.Role,
		AvatarURL: usr.AvatarURL,
	}
	if usr.IsStudent() {
		if proj.XP, err = src.actSvc.XP(ctx, usr.ID); err != nil {
			return session.Projection{}, errors.Wrap(err, "computing student XP")
		}
	}
	return proj, nil
}
