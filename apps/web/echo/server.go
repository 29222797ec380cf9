package echoweb

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"golang.org/x/time/rate"

	"github.com/edulab/lectura/core"
	"github.com/edulab/lectura/core/activity"
	"github.com/edulab/lectura/core/session"
	"github.com/edulab/lectura/core/user"
)

const rateLimitWindow = 15 * time.Minute

type (
	ServerDeps struct {
		Addr           string
		DisableReqLogs bool
		Logger         core.Logger
		UserSvc        user.Service
		ActivitySvc    activity.Service
		SessionMgr     *session.Manager
	}

	Server interface {
		http.Handler
		Start()
		Shutdown(context.Context) error
		Close() error
		Errors() <-chan error
		ShutdownSignal() <-chan os.Signal
	}

	server struct {
		deps       ServerDeps
		app        *echo.Echo
		errCh      chan error
		shutdownCh chan os.Signal
	}
)

var _ Server = (*server)(nil)

func NewServer(deps ServerDeps) Server {
	s := &server{
		deps:       deps,
		app:        echo.New(),
		errCh:      make(chan error, 1),
		shutdownCh: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdownCh, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *server) setup() {
	h := &handlers{
		logger:     s.deps.Logger,
		usrSvc:     s.deps.UserSvc,
		actSvc:     s.deps.ActivitySvc,
		sessionMgr: s.deps.SessionMgr,
	}

	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.deps.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(core.Conf.Debug || core.Conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(middleware.Secure())
	s.app.Use(noStoreCacheHeaders)
	s.app.Use(h.loadSession)
	s.app.Use(h.refreshSessionProjection)

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.signalShutdown)
	s.app.Debug = core.Conf.Debug

	// credential endpoints get a per-IP rate limit on top
	rateLimit := middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(100 / rateLimitWindow.Seconds()),
			Burst:     100,
			ExpiresIn: rateLimitWindow,
		}),
	})

	s.app.GET("/", home)

	s.app.GET("/login", h.loginPage)
	s.app.POST("/login", h.login, rateLimit)
	s.app.POST("/logout", h.logout)
	s.app.GET("/contrasena_olvidada", h.forgotPasswordPage)
	s.app.POST("/contrasena_olvidada", h.forgotPassword, rateLimit)
	s.app.GET("/contrasena_resetear/:token", h.resetPasswordPage)
	s.app.POST("/contrasena_resetear/:token", h.resetPassword, rateLimit)

	sg := s.app.Group("", requireRole(user.RoleStudent))
	sg.GET("/dashboard", h.studentDashboard)
	sg.GET("/actividades", h.pendingActivities)
	sg.POST("/actividades/:id/enviar", h.submitActivity)

	pg := s.app.Group("/perfil", requireAuthenticated)
	pg.GET("", h.profile)
	pg.POST("/password", h.changePassword)
	pg.POST("/info", h.updateInfo)

	tg := s.app.Group("/profesor", requireRole(user.RoleTeacher))
	tg.GET("/dashboard", h.teacherDashboard)
	tg.GET("/estudiantes", h.queryStudents)
	tg.POST("/estudiantes", h.createStudent)
	tg.POST("/estudiantes/:id", h.updateStudent)
	tg.POST("/estudiantes/:id/password", h.resetStudentPassword)
	tg.POST("/estudiantes/:id/eliminar", h.deleteStudent)
}

func (s *server) Start() {
	go func() {
		s.errCh <- s.app.Start(s.deps.Addr)
	}()
}

func (s *server) Shutdown(ctx context.Context) error { return s.app.Shutdown(ctx) }
func (s *server) Close() error                       { return s.app.Close() }
func (s *server) Errors() <-chan error               { return s.errCh }
func (s *server) ShutdownSignal() <-chan os.Signal   { return s.shutdownCh }

func (s *server) signalShutdown() {
	s.shutdownCh <- syscall.SIGTERM
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.Redirect(http.StatusFound, "/login")
}

// noStoreCacheHeaders forbids caching of every response; pages leak account
// state otherwise (back button after logout).
func noStoreCacheHeaders(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		h := ctx.Response().Header()
		h.Set("Cache-Control", "no-store, no-cache, must-revalidate")
		h.Set("Pragma", "no-cache")
		h.Set("Expires", "0")
		return next(ctx)
	}
}
