package main

import (
	"context"
	"fmt"
	"log"
	"os"

	echoweb "github.com/edulab/lectura/apps/web/echo"
	"github.com/edulab/lectura/core"
	"github.com/edulab/lectura/core/activity"
	"github.com/edulab/lectura/core/session"
	"github.com/edulab/lectura/core/user"
	emailsvc "github.com/edulab/lectura/services/email"
	logsvc "github.com/edulab/lectura/services/logger"
	"github.com/edulab/lectura/storage/database"
	"github.com/edulab/lectura/storage/database/sqlxrepos"
	redisstore "github.com/edulab/lectura/storage/sessionstore/redis"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	stdLogger := log.New(os.Stdout, "WEB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	var logger core.Logger
	if core.Conf.Debug {
		logger = logsvc.NewConsoleLogger(stdLogger)
	} else {
		logger = logsvc.NewRollbarLogger(stdLogger, core.Conf)
	}

	db, err := database.Open(core.Conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}
	defer db.Close()
	if err = database.Ping(db); err != nil {
		logger.Fatal(fmt.Sprintf("pinging database: %v", err), err)
	}
	if err = database.Migrate(db); err != nil {
		logger.Fatal(fmt.Sprintf("migrating database: %v", err), err)
	}

	redisClient, err := redisstore.NewClient(context.Background(), core.Conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("connecting to redis: %v", err), err)
	}
	defer redisClient.Close()

	var mailSvc core.EmailService
	if core.Conf.Debug {
		mailSvc = emailsvc.NewConsoleService(logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(logger)
	}

	usrSvc := user.NewService(sqlxrepos.NewUserRepository(db), mailSvc)
	actSvc := activity.NewService(sqlxrepos.NewActivityRepository(db))
	sessionMgr := session.NewManager(
		redisstore.NewStore(redisClient),
		echoweb.NewProjectionSource(usrSvc, actSvc),
	)

	// =========================================================================
	// Start Web Service

	logger.Info(fmt.Sprintf("%s starting : env %s", core.Conf.AppName, core.Conf.Env))
	defer logger.Info("Application stopped")

	server := echoweb.NewServer(echoweb.ServerDeps{
		Addr:        fmt.Sprintf("%s:%d", core.Conf.Server.Host, core.Conf.Server.Port),
		Logger:      logger,
		UserSvc:     usrSvc,
		ActivitySvc: actSvc,
		SessionMgr:  sessionMgr,
	})
	server.Start()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), core.Conf.Server.ShutdownTimeout)
		defer cancel()

		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}
