package main

import (
	"log"
	"os"

	"github.com/edulab/lectura/core"
	"github.com/edulab/lectura/core/user"
	emailsvc "github.com/edulab/lectura/services/email"
	logsvc "github.com/edulab/lectura/services/logger"
	"github.com/edulab/lectura/storage/database"
	"github.com/edulab/lectura/storage/database/sqlxrepos"
)

var logger *log.Logger

func main() {
	defer os.Exit(0)

	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	// set up DB
	db, err := database.Open(core.Conf)
	errAndDie(err)
	defer db.Close()
	errAndDie(database.Ping(db))

	mailSvc := emailsvc.NewConsoleService(logsvc.NewConsoleLogger(logger))

	// start CLI
	cli := commandLine{
		db:     db,
		usrSvc: user.NewService(sqlxrepos.NewUserRepository(db), mailSvc),
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
