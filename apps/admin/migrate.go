package main

import (
	"github.com/edulab/lectura/storage/database"
)

var migrateFunc = database.Migrate // mockable

func (cli *commandLine) migrate(args []string) error {
	// only "up" for now; goose tracks applied versions itself
	_ = args
	return migrateFunc(cli.db)
}
