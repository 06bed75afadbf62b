package main

import (
	"context"
	"log"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/cache"
	"github.com/trezcool/escola/core/user"
	appfs "github.com/trezcool/escola/fs"
	emailsvc "github.com/trezcool/escola/services/email"
	logsvc "github.com/trezcool/escola/services/logger"
	remotesvc "github.com/trezcool/escola/services/remote"
	"github.com/trezcool/escola/storage/database"
	sqlxrepos "github.com/trezcool/escola/storage/database/sqlx"
)

var logger core.Logger

func main() {
	conf := core.NewConfig()

	rollbarLogger := logsvc.NewRollbarLogger(log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)
	rollbarLogger.Enable(!conf.Debug)
	logger = rollbarLogger

	user.LoadCommonPasswords(appfs.FS, appfs.CommonPasswords, logger)
	core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, conf, logger)

	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	cli := commandLine{validate: validate, translator: translator}

	// set up backend
	var (
		data     core.DataService
		accounts user.Registrar
	)
	if conf.Remote.Backend == core.BackendHosted {
		client, err := remotesvc.NewClient(conf)
		errAndDie(err)
		data, accounts = client, client
	} else {
		errAndDie(database.CreateIfNotExist(context.Background(), conf))
		db, err := database.Open(conf)
		errAndDie(err)
		defer func() { _ = db.Close() }()
		errAndDie(db.Ping())

		cli.db = db
		data = sqlxrepos.NewStore(db)
		accounts = sqlxrepos.NewAuthenticator(db, conf.Server.JWTExpirationDelta)
	}
	mailSvc := emailsvc.NewConsoleService(conf, log.New(os.Stdout, "MAIL : ", log.LstdFlags), logger)
	cli.usrSvc = user.NewService(conf, data, accounts, cache.New(cache.WithTTL(conf.Cache.TTL)), mailSvc)

	// start CLI
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error("admin command failed", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err.Error(), err)
	}
}
