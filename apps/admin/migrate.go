package main

import (
	"github.com/spf13/cobra"

	"github.com/trezcool/kikundi/storage/database"
)

var gooseRunFunc = database.RunMigrations // mockable

func (cli *commandLine) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate COMMAND [ARGS...]",
		Short: "Run a goose command (up, down, status, up-to VERSION...) against the embedded migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				_ = cmd.Usage()
				return errHelp
			}
			return gooseRunFunc(cli.db.DB, cli.conf.Database.Engine, args[0], args[1:]...)
		},
	}
}
