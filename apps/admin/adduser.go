package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/trezcool/kikundi/core"
	"github.com/trezcool/kikundi/core/user"
)

func (cli *commandLine) addUserCmd() *cobra.Command {
	var name, uname, email, role string
	cmd := &cobra.Command{
		Use:   "adduser",
		Short: "Create or update an active user. The password is prompted next.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if uname == "" || email == "" {
				_ = cmd.Usage()
				return errHelp
			}
			pwd, err := cli.promptPassword(cmd)
			if err != nil {
				return err
			}
			usr, err := cli.addUser(cmd.Context(), name, uname, email, role, pwd)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cli.out, "saved %s %q (%s)\n", usr.Role, usr.Username, usr.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "full name")
	cmd.Flags().StringVarP(&uname, "username", "u", "", "username")
	cmd.Flags().StringVarP(&email, "email", "e", "", "email")
	cmd.Flags().StringVarP(&role, "role", "r", user.RoleAdmin, "one of "+strings.Join(user.AllRoles, ", "))
	return cmd
}

// addUser updates or creates a user.User
func (cli *commandLine) addUser(ctx context.Context, name, uname, email, role, pwd string) (user.User, error) {
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)
	name = core.CleanString(name)
	if name == "" {
		name = uname
	}
	if user.RolePriority(role) == 0 {
		return user.User{}, core.NewFieldError("role", "unknown role")
	}
	if problem := user.PasswordProblem(pwd, name, uname, email); problem != "" {
		return user.User{}, core.NewFieldError("password", problem)
	}

	usr := user.User{
		Name:     name,
		Username: uname,
		Email:    email,
		Role:     role,
		IsActive: true,
	}
	if err := usr.SetPassword(pwd); err != nil {
		return user.User{}, err
	}
	return cli.usrSvc.SaveUser(ctx, usr)
}
