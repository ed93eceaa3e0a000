package main

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	lmssvc "github.com/trezcool/kikundi/services/lms"
)

func (cli *commandLine) syncLMSCmd() *cobra.Command {
	var instructor string
	cmd := &cobra.Command{
		Use:   "sync-lms",
		Short: "Import courses, students and groups from the configured LMS",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := cli.syncLMS(cmd.Context(), instructor)
			if err != nil {
				return err
			}
			return json.NewEncoder(cli.out).Encode(res)
		},
	}
	cmd.Flags().StringVarP(&instructor, "instructor", "i", "", "owner of synced courses (defaults to the LMS instructor setting)")
	return cmd
}

func (cli *commandLine) syncLMS(ctx context.Context, instructor string) (lmssvc.Result, error) {
	if cli.lms == nil {
		return lmssvc.Result{}, errors.Errorf("no LMS configured: set %s_LMS_PROVIDER", cli.conf.Env)
	}
	if instructor == "" {
		instructor = cli.conf.LMS.Instructor
	}
	syncer := lmssvc.NewSyncer(cli.lms, cli.usrSvc, cli.courseSvc, cli.logger)
	prof, err := syncer.ResolveInstructor(ctx, instructor)
	if err != nil {
		return lmssvc.Result{}, err
	}
	return syncer.Sync(ctx, prof.ID)
}
