package tests

import (
	"context"
	"net/http"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edulab/lectura/core"
	"github.com/edulab/lectura/core/user"
	emailsvc "github.com/edulab/lectura/services/email"
	testutil "github.com/edulab/lectura/tests"
)

func Test_login(t *testing.T) {
	h := setup(t)
	testutil.CreateUser(t, h.usrRepo, "Ana Torres", studentEmail, testPwd, user.RoleStudent, "3ro A")
	testutil.CreateUser(t, h.usrRepo, "Prof. Rivas", teacherEmail, testPwd, user.RoleTeacher, "")

	t.Run("student lands on the student dashboard", func(t *testing.T) {
		cookie := h.login(t, studentEmail, testPwd)

		rec := h.do(t, http.MethodGet, "/dashboard", nil, cookie)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("teacher lands on the teacher dashboard", func(t *testing.T) {
		body := marshallObj(t, map[string]interface{}{"email": teacherEmail, "password": testPwd})
		rec := h.do(t, http.MethodPost, "/login", body)
		checkRedirect(t, rec, "/profesor/dashboard")
	})

	t.Run("authenticated GET /login redirects to the dashboard", func(t *testing.T) {
		cookie := h.login(t, studentEmail, testPwd)
		rec := h.do(t, http.MethodGet, "/login", nil, cookie)
		checkRedirect(t, rec, "/dashboard")
	})

	t.Run("remember extends the cookie max-age", func(t *testing.T) {
		body := marshallObj(t, map[string]interface{}{"email": studentEmail, "password": testPwd, "remember": true})
		rec := h.do(t, http.MethodPost, "/login", body)
		checkRedirect(t, rec, "/dashboard")
		assert.Equal(t, int(core.Conf.Session.RememberTimeout.Seconds()), sessionCookie(rec).MaxAge)

		rec = h.do(t, http.MethodPost, "/login", marshallObj(t, map[string]interface{}{"email": studentEmail, "password": testPwd}))
		assert.Equal(t, int(core.Conf.Session.Timeout.Seconds()), sessionCookie(rec).MaxAge)
	})
}

func Test_login_rejections(t *testing.T) {
	h := setup(t)
	testutil.CreateUser(t, h.usrRepo, "Ana Torres", studentEmail, testPwd, user.RoleStudent, "3ro A")

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{name: "wrong password", email: studentEmail, password: "nope1234"},
		{name: "unknown account", email: "ghost@ucvvirtual.edu.pe", password: testPwd},
		{name: "foreign domain", email: "ana@gmail.com", password: testPwd},
		{name: "empty fields", email: "", password: ""},
	}
	for _, tt := range tests {
		// every rejection reads the same; nothing reveals which check failed
		t.Run(tt.name, func(t *testing.T) {
			body := marshallObj(t, map[string]interface{}{"email": tt.email, "password": tt.password})
			rec := h.do(t, http.MethodPost, "/login", body)
			checkRedirect(t, rec, "/login")

			cookie := sessionCookie(rec)
			require.NotNil(t, cookie)
			errMsg, _ := h.flash(t, "/login", cookie)
			assert.Equal(t, "Email o contraseña incorrectos.", errMsg)

			// flash is read-once
			errMsg, successMsg := h.flash(t, "/login", cookie)
			assert.Empty(t, errMsg)
			assert.Empty(t, successMsg)
		})
	}
}

func Test_login_lockout(t *testing.T) {
	h := setup(t)
	testutil.CreateUser(t, h.usrRepo, "Ana Torres", studentEmail, testPwd, user.RoleStudent, "3ro A")

	wrong := marshallObj(t, map[string]interface{}{"email": studentEmail, "password": "nope1234"})
	for i := 0; i < core.Conf.Login.MaxAttempts; i++ {
		rec := h.do(t, http.MethodPost, "/login", wrong)
		checkRedirect(t, rec, "/login")
	}

	// locked now: the correct password is rejected with the lock message
	good := marshallObj(t, map[string]interface{}{"email": studentEmail, "password": testPwd})
	rec := h.do(t, http.MethodPost, "/login", good)
	checkRedirect(t, rec, "/login")

	errMsg, _ := h.flash(t, "/login", sessionCookie(rec))
	assert.Equal(t, "Cuenta bloqueada temporalmente. Inténtalo de nuevo en 15 minutos.", errMsg)
}

func Test_login_regeneratesSession(t *testing.T) {
	h := setup(t)
	testutil.CreateUser(t, h.usrRepo, "Ana Torres", studentEmail, testPwd, user.RoleStudent, "3ro A")

	// a failed attempt leaves a pre-auth session holding the flash message
	wrong := marshallObj(t, map[string]interface{}{"email": studentEmail, "password": "nope1234"})
	preAuth := sessionCookie(h.do(t, http.MethodPost, "/login", wrong))
	require.NotNil(t, preAuth)

	good := marshallObj(t, map[string]interface{}{"email": studentEmail, "password": testPwd})
	rec := h.do(t, http.MethodPost, "/login", good, preAuth)
	checkRedirect(t, rec, "/dashboard")

	authed := sessionCookie(rec)
	require.NotNil(t, authed)
	assert.NotEqual(t, preAuth.Value, authed.Value)

	// the pre-auth identifier no longer resolves to anything
	rec = h.do(t, http.MethodGet, "/dashboard", nil, preAuth)
	checkRedirect(t, rec, "/login")
}

func Test_logout(t *testing.T) {
	h := setup(t)
	testutil.CreateUser(t, h.usrRepo, "Ana Torres", studentEmail, testPwd, user.RoleStudent, "3ro A")
	cookie := h.login(t, studentEmail, testPwd)

	rec := h.do(t, http.MethodPost, "/logout", nil, cookie)
	checkRedirect(t, rec, "/login")

	// cookie cleared and server-side record destroyed
	cleared := sessionCookie(rec)
	require.NotNil(t, cleared)
	assert.Less(t, cleared.MaxAge, 0)

	rec = h.do(t, http.MethodGet, "/dashboard", nil, cookie)
	checkRedirect(t, rec, "/login")
}

func Test_accessGuards(t *testing.T) {
	h := setup(t)
	testutil.CreateUser(t, h.usrRepo, "Ana Torres", studentEmail, testPwd, user.RoleStudent, "3ro A")
	testutil.CreateUser(t, h.usrRepo, "Prof. Rivas", teacherEmail, testPwd, user.RoleTeacher, "")

	studentCookie := h.login(t, studentEmail, testPwd)
	teacherCookie := h.login(t, teacherEmail, testPwd)

	tests := []struct {
		name         string
		path         string
		cookie       *http.Cookie
		wantLocation string
	}{
		{name: "anonymous student area", path: "/dashboard", wantLocation: "/login"},
		{name: "anonymous profile", path: "/perfil", wantLocation: "/login"},
		{name: "anonymous teacher area", path: "/profesor/dashboard", wantLocation: "/login"},
		{name: "student in teacher area", path: "/profesor/dashboard", cookie: studentCookie, wantLocation: "/dashboard"},
		{name: "student listing students", path: "/profesor/estudiantes", cookie: studentCookie, wantLocation: "/dashboard"},
		{name: "teacher in student area", path: "/dashboard", cookie: teacherCookie, wantLocation: "/profesor/dashboard"},
		{name: "teacher in activities", path: "/actividades", cookie: teacherCookie, wantLocation: "/profesor/dashboard"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do(t, http.MethodGet, tt.path, nil, tt.cookie)
			checkRedirect(t, rec, tt.wantLocation)
		})
	}
}

func Test_sessionProjectionRefresh(t *testing.T) {
	h := setup(t)
	usr := testutil.CreateUser(t, h.usrRepo, "Ana Torres", studentEmail, testPwd, user.RoleStudent, "3ro A")
	cookie := h.login(t, studentEmail, testPwd)

	// a rename lands on the very next request, no re-login needed
	ctx := context.Background()
	stored, err := h.usrRepo.GetUserByID(ctx, usr.ID)
	require.NoError(t, err)
	stored.Name = "Ana María Torres"
	_, err = h.usrRepo.UpdateUser(ctx, stored)
	require.NoError(t, err)

	rec := h.do(t, http.MethodGet, "/dashboard", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeMap(t, rec)
	sessUser := data["user"].(map[string]interface{})
	assert.Equal(t, "Ana María Torres", sessUser["name"])

	// a deleted account invalidates the live session
	require.NoError(t, h.usrRepo.DeleteUsersByID(ctx, usr.ID))
	rec = h.do(t, http.MethodGet, "/dashboard", nil, cookie)
	checkRedirect(t, rec, "/login")
}

var resetURLRegex = regexp.MustCompile(`/contrasena_resetear/([0-9a-f]{64})`)

func Test_passwordReset(t *testing.T) {
	h := setup(t)
	usr := testutil.CreateUser(t, h.usrRepo, "Ana Torres", studentEmail, testPwd, user.RoleStudent, "3ro A")

	const genericMsg = "Si existe una cuenta con ese email, recibirás un enlace para resetear tu contraseña."

	t.Run("unknown email gets the same answer and no mail", func(t *testing.T) {
		body := marshallObj(t, map[string]interface{}{"email": "ghost@ucvvirtual.edu.pe"})
		rec := h.do(t, http.MethodPost, "/contrasena_olvidada", body)
		checkRedirect(t, rec, "/contrasena_olvidada")

		_, successMsg := h.flash(t, "/contrasena_olvidada", sessionCookie(rec))
		assert.Equal(t, genericMsg, successMsg)
		_, sent := emailsvc.LastSentMessage()
		assert.False(t, sent)
	})

	var token string
	t.Run("known email gets the link mailed", func(t *testing.T) {
		body := marshallObj(t, map[string]interface{}{"email": studentEmail})
		rec := h.do(t, http.MethodPost, "/contrasena_olvidada", body)
		checkRedirect(t, rec, "/contrasena_olvidada")

		_, successMsg := h.flash(t, "/contrasena_olvidada", sessionCookie(rec))
		assert.Equal(t, genericMsg, successMsg)

		msg, sent := emailsvc.LastSentMessage()
		require.True(t, sent)
		assert.Equal(t, studentEmail, msg.To[0].Address)
		m := resetURLRegex.FindStringSubmatch(msg.TextContent)
		require.NotNil(t, m, "no reset link in: %s", msg.TextContent)
		token = m[1]
	})

	t.Run("bogus token bounces to the request page", func(t *testing.T) {
		rec := h.do(t, http.MethodGet, "/contrasena_resetear/deadbeef", nil)
		checkRedirect(t, rec, "/contrasena_olvidada")
		errMsg, _ := h.flash(t, "/contrasena_olvidada", sessionCookie(rec))
		assert.Equal(t, "El enlace es inválido o ha expirado.", errMsg)
	})

	t.Run("valid token serves the form", func(t *testing.T) {
		rec := h.do(t, http.MethodGet, "/contrasena_resetear/"+token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, token, decodeMap(t, rec)["token"])
	})

	t.Run("mismatched confirmation keeps the token alive", func(t *testing.T) {
		body := marshallObj(t, map[string]interface{}{"password": "NuevaClave#1", "confirmPassword": "Distinta#2"})
		rec := h.do(t, http.MethodPost, "/contrasena_resetear/"+token, body)
		checkRedirect(t, rec, "/contrasena_resetear/"+token)

		cookie := sessionCookie(rec)
		rec = h.do(t, http.MethodGet, "/contrasena_resetear/"+token, nil, cookie)
		require.Equal(t, http.StatusOK, rec.Code)
		errMsg, _ := decodeMap(t, rec)["error"].(string)
		assert.Equal(t, "Las contraseñas no coinciden.", errMsg)
	})

	t.Run("consume resets the credential once", func(t *testing.T) {
		body := marshallObj(t, map[string]interface{}{"password": "NuevaClave#1", "confirmPassword": "NuevaClave#1"})
		rec := h.do(t, http.MethodPost, "/contrasena_resetear/"+token, body)
		checkRedirect(t, rec, "/login")

		_, successMsg := h.flash(t, "/login", sessionCookie(rec))
		assert.Equal(t, "¡Contraseña actualizada! Ya puedes iniciar sesión.", successMsg)

		// old credential out, new one in
		wrong := marshallObj(t, map[string]interface{}{"email": studentEmail, "password": testPwd})
		checkRedirect(t, h.do(t, http.MethodPost, "/login", wrong), "/login")
		h.login(t, studentEmail, "NuevaClave#1")

		// the token was consumed
		rec = h.do(t, http.MethodGet, "/contrasena_resetear/"+token, nil)
		checkRedirect(t, rec, "/contrasena_olvidada")
	})

	t.Run("expired token is rejected", func(t *testing.T) {
		require.NoError(t, h.usrSvc.RequestPasswordReset(context.Background(), studentEmail))
		stored, err := h.usrRepo.GetUserByID(context.Background(), usr.ID)
		require.NoError(t, err)

		expired := time.Now().Add(-time.Minute)
		stored.ResetTokenExpires = &expired
		_, err = h.usrRepo.UpdateUser(context.Background(), stored)
		require.NoError(t, err)

		rec := h.do(t, http.MethodGet, "/contrasena_resetear/"+*stored.ResetToken, nil)
		checkRedirect(t, rec, "/contrasena_olvidada")
	})
}
