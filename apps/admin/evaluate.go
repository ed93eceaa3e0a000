package main

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/trezcool/kikundi/core/feedback"
)

func (cli *commandLine) evaluateCmd() *cobra.Command {
	var (
		file       string
		at         string
		severities []string
	)
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Print the feedback report of an offline course snapshot as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := loadSnapshot(file)
			if err != nil {
				return err
			}
			if at != "" {
				if snap.TakenAt, err = time.Parse(time.RFC3339, at); err != nil {
					return errors.Wrap(err, "parsing --at")
				}
			}
			sevs, err := parseSeverities(severities)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cli.out)
			enc.SetIndent("", "  ")
			return enc.Encode(feedback.Evaluate(snap, cli.conf.Policy, sevs...))
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "snapshot YAML file (defaults to the embedded sample)")
	cmd.Flags().StringVar(&at, "at", "", "evaluation time (RFC3339), overrides the snapshot's taken_at")
	cmd.Flags().StringSliceVarP(&severities, "severity", "s", nil, "extra severities shown to the instructor")
	return cmd
}

// parseSeverities widens the default instructor severities with `labels`.
func parseSeverities(labels []string) ([]feedback.Severity, error) {
	if len(labels) == 0 {
		return nil, nil
	}
	sevs := append([]feedback.Severity{}, feedback.DefaultInstructorSeverities...)
	for _, label := range labels {
		sev, ok := feedback.ParseSeverity(label)
		if !ok {
			return nil, errors.Errorf("unknown severity %s", strconv.Quote(label))
		}
		sevs = append(sevs, sev)
	}
	return sevs, nil
}
