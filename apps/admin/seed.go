package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/trezcool/kikundi/core/course"
	"github.com/trezcool/kikundi/core/feedback"
	"github.com/trezcool/kikundi/core/user"
)

type seedResult struct {
	Course         course.Course
	Students       int
	Groups         int
	Contributions  int
	Communications int
	Milestones     int
}

func (cli *commandLine) seedCmd() *cobra.Command {
	var file, instructor, name string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load a snapshot (the embedded sample by default) into the database as a course owned by an instructor",
		RunE: func(cmd *cobra.Command, args []string) error {
			if instructor == "" {
				_ = cmd.Usage()
				return errHelp
			}
			snap, err := loadSnapshot(file)
			if err != nil {
				return err
			}
			res, err := cli.seed(cmd.Context(), snap, instructor, name, time.Now().UTC())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cli.out, "seeded %s (%s): %d groups, %d students, %d contributions, %d communications, %d milestones\n",
				res.Course.Code, res.Course.ID, res.Groups, res.Students, res.Contributions, res.Communications, res.Milestones)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "snapshot YAML file (defaults to the embedded sample)")
	cmd.Flags().StringVarP(&instructor, "instructor", "i", "", "username or email of the owning instructor")
	cmd.Flags().StringVarP(&name, "name", "n", "", "course name (defaults to the course code)")
	return cmd
}

// seed stores `snap` as a new course. Timestamps are shifted so the snapshot's taken_at maps to `now`.
func (cli *commandLine) seed(ctx context.Context, snap feedback.Snapshot, instructor, name string, now time.Time) (seedResult, error) {
	var res seedResult
	prof, err := cli.usrSvc.GetByUsernameOrEmail(ctx, instructor)
	if err != nil {
		return res, errors.Wrapf(err, "finding instructor %q", instructor)
	}
	if !prof.IsInstructor() {
		return res, errors.Errorf("%q is not an instructor", instructor)
	}
	if name == "" {
		name = snap.CourseID
	}
	shift := now.Sub(snap.TakenAt)

	if res.Course, err = cli.courseSvc.CreateCourse(ctx, course.NewCourse{Name: name, Code: snap.CourseID, InstructorID: prof.ID}); err != nil {
		return res, err
	}

	students := make(map[string]string) // snapshot id -> user id
	groups := make(map[string]course.Group)
	for _, sg := range snap.Groups {
		g, err := cli.courseSvc.CreateGroup(ctx, res.Course.ID, course.NewGroup{Name: sg.Name})
		if err != nil {
			return res, errors.Wrapf(err, "creating group %q", sg.Name)
		}
		res.Groups++

		for _, m := range sg.Members {
			id, ok := students[m.ID]
			if !ok {
				usr, err := cli.seedStudent(ctx, m)
				if err != nil {
					return res, err
				}
				id = usr.ID
				students[m.ID] = id
				res.Students++
			}
			if g, err = cli.courseSvc.AddMember(ctx, g.ID, course.NewMember{StudentID: id}); err != nil {
				return res, errors.Wrapf(err, "adding %q to %q", m.ID, sg.Name)
			}
		}
		groups[sg.ID] = g
	}

	for _, rec := range snap.Contributions {
		g, sid := groups[rec.GroupID], students[rec.StudentID]
		_, err := cli.courseSvc.LogContribution(ctx, sid, course.NewContribution{
			GroupID:  g.ID,
			Task:     rec.Task,
			Hours:    rec.Hours,
			LoggedAt: rec.Timestamp.Add(shift),
		})
		if err != nil {
			return res, errors.Wrapf(err, "logging contribution of %q", rec.StudentID)
		}
		res.Contributions++
	}

	// posting time is not configurable: messages keep their relative order only
	for _, rec := range snap.Communications {
		g, sid := groups[rec.GroupID], students[rec.StudentID]
		if _, err := cli.courseSvc.PostCommunication(ctx, g, sid, course.NewCommunication{Message: rec.Message, Tone: string(rec.Tone)}); err != nil {
			return res, errors.Wrapf(err, "posting communication of %q", rec.StudentID)
		}
		res.Communications++
	}

	completed := true
	for _, rec := range snap.Milestones {
		g := groups[rec.GroupID]
		m, err := cli.courseSvc.CreateMilestone(ctx, g.ID, course.NewMilestone{Name: rec.Name, DueDate: rec.DueDate.Add(shift)})
		if err != nil {
			return res, errors.Wrapf(err, "creating milestone %q", rec.Name)
		}
		if rec.Status == feedback.MilestoneComplete {
			if _, err := cli.courseSvc.UpdateMilestone(ctx, g.ID, m.ID, course.UpdateMilestone{Completed: &completed}); err != nil {
				return res, errors.Wrapf(err, "completing milestone %q", rec.Name)
			}
		}
		res.Milestones++
	}

	cli.logger.Info("course seeded", map[string]interface{}{"course": res.Course.Code, "groups": res.Groups, "students": res.Students})
	return res, nil
}

// seedStudent reuses the student with the member's id as username, or creates one without a password.
func (cli *commandLine) seedStudent(ctx context.Context, m feedback.Member) (user.User, error) {
	usr, err := cli.usrSvc.GetByUsernameOrEmail(ctx, m.ID)
	switch {
	case err == nil && usr.IsStudent():
		return usr, nil
	case err == nil:
		return user.User{}, errors.Errorf("%q exists and is not a student", m.ID)
	case errors.Cause(err) != user.ErrNotFound:
		return user.User{}, err
	}
	return cli.usrSvc.SaveUser(ctx, user.User{
		Name:     m.Name,
		Username: m.ID,
		Email:    m.ID + "@students.kikundi.local",
		Role:     user.RoleStudent,
		IsActive: true,
	})
}
