package echoweb

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/edulab/lectura/core/activity"
	"github.com/edulab/lectura/core/user"
)

const (
	msgActivityDone    = "Ya completaste esta actividad."
	msgWrongCurrentPwd = "La contraseña actual es incorrecta."
	msgPasswordChanged = "Contraseña actualizada correctamente."
	msgProfileUpdated  = "Perfil actualizado correctamente."
)

func (h *handlers) studentDashboard(ctx echo.Context) error {
	sess := currentSession(ctx)

	progs, err := h.actSvc.ProgressFor(ctx.Request().Context(), sess.User.UserID)
	if err != nil {
		return errors.Wrap(err, "querying student progress")
	}

	errMsg, successMsg, err := h.popFlash(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{
		"user":     sess.User,
		"progreso": progs,
		"error":    errMsg,
		"success":  successMsg,
	})
}

// pendingActivities lists the activities the student has not completed yet.
func (h *handlers) pendingActivities(ctx echo.Context) error {
	sess := currentSession(ctx)
	reqCtx := ctx.Request().Context()

	acts, err := h.actSvc.QueryAll(reqCtx)
	if err != nil {
		return errors.Wrap(err, "querying activities")
	}
	progs, err := h.actSvc.ProgressFor(reqCtx, sess.User.UserID)
	if err != nil {
		return errors.Wrap(err, "querying student progress")
	}

	done := make(map[string]bool, len(progs))
	for _, prog := range progs {
		done[prog.ActivityID] = true
	}
	pending := make([]activity.Activity, 0, len(acts))
	for _, act := range acts {
		if !done[act.ID] {
			pending = append(pending, act)
		}
	}
	return ctx.JSON(http.StatusOK, echo.Map{"actividades": pending})
}

type submitRequest struct {
	// question id -> chosen alternative id
	Answers map[string]string `json:"respuestas"`
}

// submitActivity grades the submission server-side and records the progress.
func (h *handlers) submitActivity(ctx echo.Context) error {
	var data submitRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to submitRequest")
	}

	sess := currentSession(ctx)
	prog, err := h.actSvc.Submit(ctx.Request().Context(), sess.User.UserID, ctx.Param("id"), data.Answers)
	if err != nil {
		switch errors.Cause(err) {
		case activity.ErrNotFound:
			return errHTTPNotFound
		case activity.ErrAlreadyCompleted:
			return h.flashError(ctx, msgActivityDone, "/actividades")
		}
		return errors.Wrap(err, "submitting activity")
	}
	return ctx.JSON(http.StatusCreated, prog)
}

func (h *handlers) profile(ctx echo.Context) error {
	sess := currentSession(ctx)

	usr, err := h.usrSvc.GetByID(ctx.Request().Context(), sess.User.UserID)
	if err != nil {
		return errors.Wrap(err, "finding account")
	}

	errMsg, successMsg, err := h.popFlash(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{
		"user":    usr,
		"xp":      sess.User.XP,
		"error":   errMsg,
		"success": successMsg,
	})
}

func (h *handlers) changePassword(ctx echo.Context) error {
	var data user.ChangePassword
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ChangePassword")
	}

	sess := currentSession(ctx)
	if err := h.usrSvc.ChangePassword(ctx.Request().Context(), sess.User.UserID, data); err != nil {
		if errors.Cause(err) == user.ErrWrongPassword {
			return h.flashError(ctx, msgWrongCurrentPwd, "/perfil")
		}
		return err
	}
	return h.flashSuccess(ctx, msgPasswordChanged, "/perfil")
}

func (h *handlers) updateInfo(ctx echo.Context) error {
	var data user.UpdateInfo
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateInfo")
	}

	sess := currentSession(ctx)
	reqCtx := ctx.Request().Context()

	usr, err := h.usrSvc.GetByID(reqCtx, sess.User.UserID)
	if err != nil {
		return errors.Wrap(err, "finding account")
	}
	if err := data.Validate(usr, h.usrSvc); err != nil {
		return err
	}
	if _, err := h.usrSvc.UpdateInfo(reqCtx, usr.ID, data); err != nil {
		return errors.Wrap(err, "updating profile")
	}

	// pick up the new name/email right away rather than on the next request
	if err := h.sessionMgr.Refresh(reqCtx, sess); err != nil {
		return errors.Wrap(err, "refreshing session")
	}
	return h.flashSuccess(ctx, msgProfileUpdated, "/perfil")
}
