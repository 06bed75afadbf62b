package main

import (
	"context"
	"expvar"
	"fmt"
	"net/http"
	_ "net/http/pprof"

	"github.com/jmoiron/sqlx"
	"go.uber.org/dig"

	dig_container "github.com/trezcool/escola/apps/api/di/dig"
	echoapi "github.com/trezcool/escola/apps/api/echo"
	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/cache"
	"github.com/trezcool/escola/core/session"
	"github.com/trezcool/escola/core/user"
	appfs "github.com/trezcool/escola/fs"
)

type appParams struct {
	dig.In
	Conf      *core.Config
	APILogger core.Logger
	DBLogger  core.Logger `name:"dbLogger"`
	DB        *sqlx.DB
	DataCache *cache.Cache
	Sessions  *session.Registry
	Server    *echoapi.Server
}

func startWithDig() {
	c := dig_container.New(core.NewConfig)

	must(c.Invoke(func(p appParams) {
		conf, apiLogger := p.Conf, p.APILogger

		// =========================================================================
		// Initialize App

		apiLogger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))

		core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, conf, apiLogger)

		user.LoadCommonPasswords(appfs.FS, appfs.CommonPasswords, apiLogger)

		if p.DB != nil {
			defer func() {
				if err := p.DB.Close(); err != nil {
					p.DBLogger.Fatal("Failed to close", err)
				}
			}()
		}
		defer apiLogger.Info("Application stopped")

		// =========================================================================
		// Start Debug Service
		//
		// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
		// /debug/vars - Added to the default mux by importing the expvar package.

		// Expose important info under /debug/vars.
		expvar.NewString("build").Set(conf.Build)
		expvar.NewString("env").Set(conf.Env)
		expvar.NewString("backend").Set(conf.Remote.Backend)
		expvar.Publish("cache", expvar.Func(func() interface{} { return p.DataCache.Stats() }))
		expvar.Publish("sessions", expvar.Func(func() interface{} { return p.Sessions.Len() }))

		go func() {
			if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
				apiLogger.Error(fmt.Sprintf("debug server closed: %v", err), err)
			}
		}()

		// =========================================================================
		// Start API Service

		go func() {
			p.Server.Start()
		}()

		// =========================================================================
		// Shutdown

		select {
		case err := <-p.Server.Errors():
			apiLogger.Fatal(fmt.Sprintf("server error: %v", err), err)

		case sig := <-p.Server.ShutdownSignal():
			apiLogger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

			// give outstanding requests a deadline for completion
			ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
			defer cancel()

			// asking listener to shut down and shed load
			if err := p.Server.Shutdown(ctx); err != nil {
				apiLogger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

				if err = p.Server.Close(); err != nil {
					apiLogger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
				}
			}
		}
	}))
}
