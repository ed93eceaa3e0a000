package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/trezcool/kikundi/core"
	"github.com/trezcool/kikundi/core/course"
	"github.com/trezcool/kikundi/core/user"
	lmssvc "github.com/trezcool/kikundi/services/lms"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	conf      *core.Config
	logger    core.Logger
	db        *sqlx.DB
	usrSvc    *user.Service
	courseSvc *course.Service
	lms       lmssvc.Provider // nil when no LMS is configured
	out       io.Writer
}

func (cli *commandLine) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "admin",
		Short:         "Kikundi administration",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(cli.out)
	root.SetErr(cli.out)

	root.AddCommand(
		cli.migrateCmd(),
		cli.addUserCmd(),
		cli.resetPasswordCmd(),
		cli.seedCmd(),
		cli.evaluateCmd(),
		cli.syncLMSCmd(),
	)
	return root
}

// run executes the command line `args` (program name included).
func (cli *commandLine) run(args []string) error {
	if cli.out == nil {
		cli.out = os.Stdout
	}
	root := cli.rootCmd()
	if len(args) < 2 {
		_ = root.Usage()
		return errHelp
	}
	root.SetArgs(args[1:])
	return root.ExecuteContext(context.Background())
}

// promptPassword reads a password from the terminal without echoing it.
func (cli *commandLine) promptPassword(cmd *cobra.Command) (string, error) {
	_, _ = fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	_, _ = fmt.Fprintln(cli.out)
	if err != nil {
		return "", errors.Wrap(err, "reading password")
	}
	if len(pwd) == 0 {
		_ = cmd.Usage()
		return "", errHelp
	}
	return string(pwd), nil
}
