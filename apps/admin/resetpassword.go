package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/trezcool/kikundi/core"
	"github.com/trezcool/kikundi/core/user"
)

func (cli *commandLine) resetPasswordCmd() *cobra.Command {
	var uname string
	cmd := &cobra.Command{
		Use:   "resetpassword",
		Short: "Reset a user's password. The password is prompted next.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if uname == "" {
				_ = cmd.Usage()
				return errHelp
			}
			pwd, err := cli.promptPassword(cmd)
			if err != nil {
				return err
			}
			return cli.resetPassword(cmd.Context(), uname, pwd)
		},
	}
	cmd.Flags().StringVarP(&uname, "username", "u", "", "the user's username or email")
	return cmd
}

func (cli *commandLine) resetPassword(ctx context.Context, uname, pwd string) error {
	usr, err := cli.usrSvc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		return err
	}
	if problem := user.PasswordProblem(pwd, usr.Name, usr.Username, usr.Email); problem != "" {
		return core.NewFieldError("password", problem)
	}
	return cli.usrSvc.ResetPassword(ctx, uname, pwd)
}
