package dig_container

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/escola/apps/api/echo"
	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/attendance"
	"github.com/trezcool/escola/core/audit"
	"github.com/trezcool/escola/core/cache"
	"github.com/trezcool/escola/core/class"
	"github.com/trezcool/escola/core/notification"
	"github.com/trezcool/escola/core/school"
	"github.com/trezcool/escola/core/session"
	"github.com/trezcool/escola/core/settings"
	"github.com/trezcool/escola/core/stats"
	"github.com/trezcool/escola/core/student"
	"github.com/trezcool/escola/core/teacher"
	"github.com/trezcool/escola/core/user"
	emailsvc "github.com/trezcool/escola/services/email"
	logsvc "github.com/trezcool/escola/services/logger"
	remotesvc "github.com/trezcool/escola/services/remote"
	"github.com/trezcool/escola/storage/database"
	sqlxrepos "github.com/trezcool/escola/storage/database/sqlx"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

// Backend is the store of the school data and of the user accounts.
// DB is nil on the hosted backend.
type Backend struct {
	dig.Out
	DB       *sqlx.DB
	Data     core.DataService
	Auth     session.Authenticator
	Accounts user.Registrar
}

// Caches holds the data cache, shared by the services, and the cache of the live sessions.
type Caches struct {
	dig.Out
	Data     *cache.Cache
	Sessions *cache.Cache `name:"sessionCache"`
}

type sessionRegistryParams struct {
	dig.In
	Conf   *core.Config
	Logger core.Logger
	Cache  *cache.Cache `name:"sessionCache"`
	Auth   session.Authenticator
	UsrSvc *user.Service
}

type serverParams struct {
	dig.In
	Conf            *core.Config
	Logger          core.Logger
	Validate        *validator.Validate
	Translator      ut.Translator
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

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(context.Background(), conf); err != nil {
		return nil, err
	}
	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}
	if err = database.Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func newBackend(conf *core.Config, loggerParam DBLoggerParam) Backend {
	if conf.Remote.Backend == core.BackendHosted {
		client, err := remotesvc.NewClient(conf)
		if err != nil {
			loggerParam.Logger.Fatal(fmt.Sprintf("setting up remote backend: %v", err), err)
		}
		return Backend{Data: client, Auth: client, Accounts: client}
	}

	db, err := newDB(conf)
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	auth := sqlxrepos.NewAuthenticator(db, conf.Server.JWTExpirationDelta)
	return Backend{DB: db, Data: sqlxrepos.NewStore(db), Auth: auth, Accounts: auth}
}

func newCaches(conf *core.Config) Caches {
	return Caches{
		Data:     cache.New(cache.WithTTL(conf.Cache.TTL)),
		Sessions: cache.New(cache.WithTTL(conf.Server.JWTExpirationDelta)),
	}
}

func newSessionRegistry(p sessionRegistryParams) *session.Registry {
	remote := session.NewRemote(p.Auth, p.UsrSvc)
	return session.NewRegistry(p.Cache, func() *session.Session {
		return session.New(
			remote,
			p.Logger,
			session.WithLookupAttempts(p.Conf.Session.LookupAttempts),
			session.WithLookupDelay(p.Conf.Session.LookupDelay),
		)
	})
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, log.New(os.Stdout, "MAIL : ", log.LstdFlags), logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

func newValidator(translator ut.Translator) *validator.Validate {
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate
}

func newServer(p serverParams) *echoapi.Server {
	return echoapi.NewServer(echoapi.Options{
		Conf:            p.Conf,
		Logger:          p.Logger,
		Validate:        p.Validate,
		Translator:      p.Translator,
		Sessions:        p.Sessions,
		UserSvc:         p.UserSvc,
		SchoolSvc:       p.SchoolSvc,
		TeacherSvc:      p.TeacherSvc,
		ClassSvc:        p.ClassSvc,
		StudentSvc:      p.StudentSvc,
		AttendanceSvc:   p.AttendanceSvc,
		NotificationSvc: p.NotificationSvc,
		SettingsSvc:     p.SettingsSvc,
		StatsSvc:        p.StatsSvc,
		AuditSvc:        p.AuditSvc,
	})
}

// New returns a new dependency injection dig.Container
func New(newConfig func() *core.Config) *dig.Container {
	c := dig.New()

	must(c.Provide(newConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newBackend))
	must(c.Provide(newCaches))
	must(c.Provide(newEmailService))
	must(c.Provide(newTranslator))
	must(c.Provide(newValidator))

	// core services
	must(c.Provide(user.NewService))
	must(c.Provide(school.NewService))
	must(c.Provide(student.NewService))
	must(c.Provide(teacher.NewService))
	must(c.Provide(class.NewService))
	must(c.Provide(attendance.NewService))
	must(c.Provide(notification.NewService))
	must(c.Provide(settings.NewService))
	must(c.Provide(stats.NewService))
	must(c.Provide(audit.NewService))
	must(c.Provide(newSessionRegistry))

	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
