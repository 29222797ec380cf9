package echoweb

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/edulab/lectura/core/user"
)

func (h *handlers) teacherDashboard(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()

	students, err := h.usrSvc.QueryStudents(reqCtx)
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	acts, err := h.actSvc.QueryAll(reqCtx)
	if err != nil {
		return errors.Wrap(err, "querying activities")
	}

	errMsg, successMsg, err := h.popFlash(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{
		"user":             currentSession(ctx).User,
		"totalEstudiantes": len(students),
		"totalActividades": len(acts),
		"error":            errMsg,
		"success":          successMsg,
	})
}

func (h *handlers) queryStudents(ctx echo.Context) error {
	students, err := h.usrSvc.QueryStudents(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	if students == nil {
		students = []user.User{}
	}
	return ctx.JSON(http.StatusOK, students)
}

func (h *handlers) createStudent(ctx echo.Context) error {
	var data user.NewStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudent")
	}
	if err := data.Validate(h.usrSvc); err != nil {
		return err
	}

	usr, err := h.usrSvc.CreateStudent(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating student")
	}
	return ctx.JSON(http.StatusCreated, usr)
}

// getStudent loads the target account and 404s unless it is a student;
// teachers cannot manage other teachers through these endpoints.
func (h *handlers) getStudent(ctx echo.Context) (user.User, error) {
	usr, err := h.usrSvc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return user.User{}, errHTTPNotFound
		}
		return user.User{}, errors.Wrap(err, "finding student")
	}
	if !usr.IsStudent() {
		return user.User{}, errHTTPNotFound
	}
	return usr, nil
}

func (h *handlers) updateStudent(ctx echo.Context) error {
	usr, err := h.getStudent(ctx)
	if err != nil {
		return err
	}

	var data user.UpdateStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateStudent")
	}
	if err := data.Validate(usr, h.usrSvc); err != nil {
		return err
	}

	usr, err = h.usrSvc.UpdateStudent(ctx.Request().Context(), usr.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating student")
	}
	return ctx.JSON(http.StatusOK, usr)
}

type setPasswordRequest struct {
	Password string `json:"password" form:"password"`
}

// resetStudentPassword lets a teacher overwrite a student's credential without
// going through the emailed-token flow.
func (h *handlers) resetStudentPassword(ctx echo.Context) error {
	usr, err := h.getStudent(ctx)
	if err != nil {
		return err
	}

	var data setPasswordRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to setPasswordRequest")
	}
	if err := h.usrSvc.SetPassword(ctx.Request().Context(), usr.ID, data.Password); err != nil {
		return errors.Wrap(err, "setting student password")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (h *handlers) deleteStudent(ctx echo.Context) error {
	usr, err := h.getStudent(ctx)
	if err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	if err := h.actSvc.ForgetStudent(reqCtx, usr.ID); err != nil {
		return errors.Wrap(err, "deleting student progress")
	}
	if err := h.usrSvc.Delete(reqCtx, usr.ID); err != nil {
		return errors.Wrap(err, "deleting student")
	}
	return ctx.NoContent(http.StatusNoContent)
}
