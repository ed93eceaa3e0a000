package scheduler

import (
	"context"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/kikundi/core"
	"github.com/trezcool/kikundi/core/course"
	"github.com/trezcool/kikundi/core/feedback"
	"github.com/trezcool/kikundi/core/user"
	lmssvc "github.com/trezcool/kikundi/services/lms"
)

// DigestData feeds the "digest" email templates.
type DigestData struct {
	InstructorName  string
	CourseName      string
	Alerts          []feedback.GroupAlert
	Recommendations []feedback.Recommendation
	GeneratedAt     time.Time
}

// DigestJob emails each instructor the alerts of their active courses.
type DigestJob struct {
	courses *course.Service
	users   *user.Service
	email   core.EmailService
	logger  core.Logger
	now     func() time.Time
}

func NewDigestJob(courses *course.Service, users *user.Service, email core.EmailService, logger core.Logger) *DigestJob {
	return &DigestJob{courses: courses, users: users, email: email, logger: logger, now: time.Now}
}

func (j *DigestJob) Name() string { return "instructor_digest" }

func (j *DigestJob) Run(ctx context.Context) error {
	_, err := j.Send(ctx)
	return err
}

// Send evaluates every active course and emails the instructors of courses with alerts.
// It returns the number of digests sent.
func (j *DigestJob) Send(ctx context.Context) (int, error) {
	courses, err := j.courses.QueryCourses(ctx, course.CourseFilter{ActiveOnly: true})
	if err != nil {
		return 0, errors.Wrap(err, "querying courses")
	}

	now := j.now().UTC()
	messages := make([]*core.EmailMessage, 0)
	for _, c := range courses {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		snap, err := j.courses.Snapshot(ctx, c.ID, now)
		if err != nil {
			return 0, errors.Wrapf(err, "building snapshot of %s", c.Code)
		}
		report := feedback.Evaluate(snap, j.courses.Policy())
		if len(report.InstructorAlerts) == 0 {
			continue
		}

		instructor, err := j.users.GetByID(ctx, c.InstructorID)
		if err != nil {
			j.logger.Warn("digest instructor not found", err, map[string]interface{}{"course": c.Code})
			continue
		}
		if instructor.Email == "" || !instructor.IsActive {
			j.logger.Warn("digest instructor unreachable", map[string]interface{}{"course": c.Code}, instructor.LogUser())
			continue
		}
		messages = append(messages, &core.EmailMessage{
			To:           []mail.Address{{Name: instructor.Name, Address: instructor.Email}},
			Subject:      c.Code + ": groups need your attention",
			TemplateName: "digest",
			TemplateData: DigestData{
				InstructorName:  instructor.Name,
				CourseName:      c.Name,
				Alerts:          report.InstructorAlerts,
				Recommendations: report.Recommendations,
				GeneratedAt:     now,
			},
		})
	}

	if len(messages) > 0 {
		j.email.SendMessages(messages...)
	}
	return len(messages), nil
}

// SyncJob imports LMS data on behalf of the configured instructor.
type SyncJob struct {
	syncer     *lmssvc.Syncer
	instructor string // username or email
}

func NewSyncJob(syncer *lmssvc.Syncer, instructor string) *SyncJob {
	return &SyncJob{syncer: syncer, instructor: instructor}
}

func (j *SyncJob) Name() string { return "lms_sync" }

func (j *SyncJob) Run(ctx context.Context) error {
	instructor, err := j.syncer.ResolveInstructor(ctx, j.instructor)
	if err != nil {
		return err
	}
	_, err = j.syncer.Sync(ctx, instructor.ID)
	return err
}
