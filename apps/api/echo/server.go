package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/attendance"
	"github.com/trezcool/escola/core/audit"
	"github.com/trezcool/escola/core/class"
	"github.com/trezcool/escola/core/notification"
	"github.com/trezcool/escola/core/school"
	"github.com/trezcool/escola/core/session"
	"github.com/trezcool/escola/core/settings"
	"github.com/trezcool/escola/core/stats"
	"github.com/trezcool/escola/core/student"
	"github.com/trezcool/escola/core/teacher"
	"github.com/trezcool/escola/core/user"
)

type (
	Options struct {
		Conf           *core.Config
		Logger         core.Logger
		Validate       *validator.Validate
		Translator     ut.Translator
		DisableReqLogs bool

		Sessions        *session.Registry
		UserSvc         *user.Service
		SchoolSvc       *school.Service
		TeacherSvc      *teacher.Service
		ClassSvc        *class.Service
		StudentSvc      *student.Service
		AttendanceSvc   *attendance.Service
		NotificationSvc *notification.Service
		SettingsSvc     *settings.Service
		StatsSvc        *stats.Service
		AuditSvc        *audit.Service
	}

	Server struct {
		opts     Options
		app      *echo.Echo
		auth     authenticator
		errors   chan error
		shutdown chan os.Signal
	}
)

var _ http.Handler = (*Server)(nil)

func NewServer(opts Options) *Server {
	s := &Server{
		opts:     opts,
		app:      echo.New(),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	s.auth = authenticator{
		conf:     opts.Conf,
		sessions: opts.Sessions,
		usrSvc:   opts.UserSvc,
		jwtConfig: middleware.JWTConfig{
			SigningKey:    []byte(opts.Conf.SecretKey),
			SigningMethod: middleware.AlgorithmHS256,
			ContextKey:    "userToken",
			Claims:        new(Claims),
		},
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.opts.Conf
	debug := conf.Debug && !conf.TestMode

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, s.opts.Translator, s.signalShutdown)
	s.app.Debug = debug

	s.app.GET("/", s.home)

	v1 := s.app.Group("/v1")
	authed := []echo.MiddlewareFunc{middleware.JWTWithConfig(s.auth.jwtConfig), s.auth.sessionMiddleware}

	base := baseApi{validate: s.opts.Validate, logger: s.opts.Logger, auditSvc: s.opts.AuditSvc}

	registerAuthAPI(v1, authed, base, &s.auth)
	registerUserAPI(v1, authed, base, s.opts.UserSvc)
	registerSchoolAPI(v1, authed, base, s.opts.SchoolSvc)
	registerTeacherAPI(v1, authed, base, s.opts.TeacherSvc)
	registerClassAPI(v1, authed, base, s.opts.ClassSvc, s.opts.TeacherSvc)
	registerStudentAPI(v1, authed, base, s.opts.StudentSvc, s.opts.ClassSvc)
	registerAttendanceAPI(v1, authed, base, s.opts.AttendanceSvc, s.opts.StudentSvc, s.opts.ClassSvc)
	registerNotificationAPI(v1, authed, base, s.opts.NotificationSvc)
	registerSettingsAPI(v1, authed, base, s.opts.SettingsSvc)
	registerStatsAPI(v1, authed, base, s.opts.StatsSvc)
	registerAuditAPI(v1, authed, base)
}

// Start listens on the configured address. Server failures are sent to Errors.
func (s *Server) Start() {
	if err := s.app.Start(s.opts.Conf.Server.Address()); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error { return s.errors }

// ShutdownSignal receives SIGINT, SIGTERM, and the shutdown requested by a failing handler.
func (s *Server) ShutdownSignal() <-chan os.Signal { return s.shutdown }

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default: // shutdown already requested
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.opts.Conf.AppName+" API!")
}
