package tests

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	echoweb "github.com/edulab/lectura/apps/web/echo"
	"github.com/edulab/lectura/core"
	"github.com/edulab/lectura/core/activity"
	"github.com/edulab/lectura/core/session"
	"github.com/edulab/lectura/core/user"
	emailsvc "github.com/edulab/lectura/services/email"
	logsvc "github.com/edulab/lectura/services/logger"
	inmemdb "github.com/edulab/lectura/storage/database/inmem"
	inmemstore "github.com/edulab/lectura/storage/sessionstore/inmem"
)

const (
	studentEmail = "ana@ucvvirtual.edu.pe"
	teacherEmail = "prof@ucvvirtual.edu.pe"
	testPwd      = "Lectura#99"
)

type harness struct {
	app     echoweb.Server
	usrRepo user.Repository
	actRepo activity.Repository
	usrSvc  user.Service
	actSvc  activity.Service
}

func setup(t *testing.T) *harness {
	t.Helper()
	emailsvc.ResetSentMessages()

	db := inmemdb.NewDB()
	usrRepo := inmemdb.NewUserRepository(db)
	actRepo := inmemdb.NewActivityRepository(db)

	logger := logsvc.NewConsoleLogger(log.New(io.Discard, "", 0))
	usrSvc := user.NewService(usrRepo, emailsvc.NewConsoleServiceMock(logger))
	actSvc := activity.NewService(actRepo)
	sessionMgr := session.NewManager(
		inmemstore.NewStore(),
		echoweb.NewProjectionSource(usrSvc, actSvc),
	)

	app := echoweb.NewServer(echoweb.ServerDeps{
		DisableReqLogs: true,
		Logger:         logger,
		UserSvc:        usrSvc,
		ActivitySvc:    actSvc,
		SessionMgr:     sessionMgr,
	})
	return &harness{
		app:     app,
		usrRepo: usrRepo,
		actRepo: actRepo,
		usrSvc:  usrSvc,
		actSvc:  actSvc,
	}
}

func marshallObj(t *testing.T, obj interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(obj)
	require.NoError(t, err)
	return data
}

func (h *harness) do(t *testing.T, method, path string, body []byte, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for _, cookie := range cookies {
		if cookie != nil {
			req.AddCookie(cookie)
		}
	}
	rec := httptest.NewRecorder()
	h.app.ServeHTTP(rec, req)
	return rec
}

// sessionCookie returns the session cookie set on the response, nil if none.
func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == core.Conf.Session.CookieName {
			return cookie
		}
	}
	return nil
}

func decodeMap(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	data := make(map[string]interface{})
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &data))
	return data
}

func checkRedirect(t *testing.T, rec *httptest.ResponseRecorder, location string) {
	t.Helper()
	require.Equal(t, http.StatusFound, rec.Code, "body: %s", rec.Body.String())
	require.Equal(t, location, rec.Header().Get("Location"))
}

// login authenticates and returns the established session cookie.
func (h *harness) login(t *testing.T, email, pwd string) *http.Cookie {
	t.Helper()

	body := marshallObj(t, map[string]interface{}{"email": email, "password": pwd})
	rec := h.do(t, http.MethodPost, "/login", body)
	require.Equal(t, http.StatusFound, rec.Code, "login failed: %s", rec.Body.String())

	cookie := sessionCookie(rec)
	require.NotNil(t, cookie, "login did not set a session cookie")
	return cookie
}

// flash reads the one-shot messages off a flash-aware page.
func (h *harness) flash(t *testing.T, path string, cookie *http.Cookie) (errMsg, successMsg string) {
	t.Helper()

	rec := h.do(t, http.MethodGet, path, nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())
	data := decodeMap(t, rec)
	errMsg, _ = data["error"].(string)
	successMsg, _ = data["success"].(string)
	return errMsg, successMsg
}
