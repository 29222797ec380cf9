package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edulab/lectura/core/user"
	testutil "github.com/edulab/lectura/tests"
)

func Test_perfil(t *testing.T) {
	h := setup(t)
	testutil.CreateUser(t, h.usrRepo, "Ana Torres", studentEmail, testPwd, user.RoleStudent, "3ro A")
	cookie := h.login(t, studentEmail, testPwd)

	t.Run("own profile", func(t *testing.T) {
		rec := h.do(t, http.MethodGet, "/perfil", nil, cookie)
		require.Equal(t, http.StatusOK, rec.Code)

		data := decodeMap(t, rec)
		usr := data["user"].(map[string]interface{})
		assert.Equal(t, studentEmail, usr["email"])
		assert.Equal(t, "3ro A", usr["grade"])
	})

	t.Run("change password rejects a wrong current password", func(t *testing.T) {
		body := marshallObj(t, map[string]interface{}{
			"password_actual":    "nope1234",
			"password_nueva":     "NuevaClave#1",
			"password_confirmar": "NuevaClave#1",
		})
		rec := h.do(t, http.MethodPost, "/perfil/password", body, cookie)
		checkRedirect(t, rec, "/perfil")

		errMsg, _ := h.flash(t, "/perfil", cookie)
		assert.Equal(t, "La contraseña actual es incorrecta.", errMsg)
	})

	t.Run("change password", func(t *testing.T) {
		body := marshallObj(t, map[string]interface{}{
			"password_actual":    testPwd,
			"password_nueva":     "NuevaClave#1",
			"password_confirmar": "NuevaClave#1",
		})
		rec := h.do(t, http.MethodPost, "/perfil/password", body, cookie)
		checkRedirect(t, rec, "/perfil")

		_, successMsg := h.flash(t, "/perfil", cookie)
		assert.Equal(t, "Contraseña actualizada correctamente.", successMsg)

		h.login(t, studentEmail, "NuevaClave#1")
	})

	t.Run("update info refreshes the session projection", func(t *testing.T) {
		body := marshallObj(t, map[string]interface{}{
			"nombre": "Ana María Torres",
			"email":  "ana.maria@ucvvirtual.edu.pe",
		})
		rec := h.do(t, http.MethodPost, "/perfil/info", body, cookie)
		checkRedirect(t, rec, "/perfil")

		rec = h.do(t, http.MethodGet, "/dashboard", nil, cookie)
		require.Equal(t, http.StatusOK, rec.Code)
		sessUser := decodeMap(t, rec)["user"].(map[string]interface{})
		assert.Equal(t, "Ana María Torres", sessUser["name"])
	})

	t.Run("update info rejects a foreign email domain", func(t *testing.T) {
		body := marshallObj(t, map[string]interface{}{"nombre": "Ana", "email": "ana@gmail.com"})
		rec := h.do(t, http.MethodPost, "/perfil/info", body, cookie)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, decodeMap(t, rec), "email")
	})
}

func Test_profesor_estudiantes(t *testing.T) {
	h := setup(t)
	testutil.CreateUser(t, h.usrRepo, "Prof. Rivas", teacherEmail, testPwd, user.RoleTeacher, "")
	cookie := h.login(t, teacherEmail, testPwd)

	newStudent := map[string]interface{}{
		"nombres":   "Luis",
		"apellidos": "Paredes",
		"grado":     "3ro A",
		"email":     "luis@ucvvirtual.edu.pe",
		"password":  testPwd,
	}

	var studentID string
	t.Run("enroll a student", func(t *testing.T) {
		rec := h.do(t, http.MethodPost, "/profesor/estudiantes", marshallObj(t, newStudent), cookie)
		require.Equal(t, http.StatusCreated, rec.Code, "body: %s", rec.Body.String())

		data := decodeMap(t, rec)
		studentID = data["id"].(string)
		assert.Equal(t, "Luis Paredes", data["name"])
		assert.Equal(t, user.RoleStudent, data["role"])

		h.login(t, "luis@ucvvirtual.edu.pe", testPwd)
	})

	t.Run("duplicate email rejected", func(t *testing.T) {
		rec := h.do(t, http.MethodPost, "/profesor/estudiantes", marshallObj(t, newStudent), cookie)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, decodeMap(t, rec), "email")
	})

	t.Run("list students", func(t *testing.T) {
		rec := h.do(t, http.MethodGet, "/profesor/estudiantes", nil, cookie)
		require.Equal(t, http.StatusOK, rec.Code)

		var students []map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &students))
		require.Len(t, students, 1)
		assert.Equal(t, studentID, students[0]["id"])
	})

	t.Run("update a student", func(t *testing.T) {
		body := marshallObj(t, map[string]interface{}{"nombres": "Luis Alberto", "apellidos": "Paredes", "grado": "4to B"})
		rec := h.do(t, http.MethodPost, "/profesor/estudiantes/"+studentID, body, cookie)
		require.Equal(t, http.StatusOK, rec.Code)

		data := decodeMap(t, rec)
		assert.Equal(t, "Luis Alberto Paredes", data["name"])
		assert.Equal(t, "4to B", data["grade"])
	})

	t.Run("reset a student password", func(t *testing.T) {
		body := marshallObj(t, map[string]interface{}{"password": "OtraClave#7"})
		rec := h.do(t, http.MethodPost, "/profesor/estudiantes/"+studentID+"/password", body, cookie)
		require.Equal(t, http.StatusNoContent, rec.Code)

		h.login(t, "luis@ucvvirtual.edu.pe", "OtraClave#7")
	})

	t.Run("teacher accounts are out of reach", func(t *testing.T) {
		teacher, err := h.usrSvc.GetByEmail(context.Background(), teacherEmail)
		require.NoError(t, err)

		body := marshallObj(t, map[string]interface{}{"password": "Hacked#123"})
		rec := h.do(t, http.MethodPost, "/profesor/estudiantes/"+teacher.ID+"/password", body, cookie)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("delete a student", func(t *testing.T) {
		rec := h.do(t, http.MethodPost, "/profesor/estudiantes/"+studentID+"/eliminar", nil, cookie)
		require.Equal(t, http.StatusNoContent, rec.Code)

		// the account is gone for good
		body := marshallObj(t, map[string]interface{}{"email": "luis@ucvvirtual.edu.pe", "password": "OtraClave#7"})
		checkRedirect(t, h.do(t, http.MethodPost, "/login", body), "/login")

		rec = h.do(t, http.MethodGet, "/profesor/estudiantes", nil, cookie)
		var students []map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &students))
		assert.Empty(t, students)
	})
}

func Test_profesor_dashboard(t *testing.T) {
	h := setup(t)
	teacher := testutil.CreateUser(t, h.usrRepo, "Prof. Rivas", teacherEmail, testPwd, user.RoleTeacher, "")
	testutil.CreateUser(t, h.usrRepo, "Ana Torres", studentEmail, testPwd, user.RoleStudent, "3ro A")
	testutil.CreateActivity(t, h.actRepo, teacher.ID, "El Principito")
	cookie := h.login(t, teacherEmail, testPwd)

	rec := h.do(t, http.MethodGet, "/profesor/dashboard", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	data := decodeMap(t, rec)
	assert.Equal(t, float64(1), data["totalEstudiantes"])
	assert.Equal(t, float64(1), data["totalActividades"])
}
