package main

import (
	"github.com/trezcool/academia/storage/database"
)

var migrateFunc = database.Migrate // mockable

func (cmd *commandLine) migrate(args []string) error {
	return migrateFunc(cmd.db, args[0], args[1:]...)
}
