package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/kikundi/core"
	"github.com/trezcool/kikundi/core/course"
	"github.com/trezcool/kikundi/core/feedback"
	"github.com/trezcool/kikundi/core/user"
	emailsvc "github.com/trezcool/kikundi/services/email"
	logsvc "github.com/trezcool/kikundi/services/logger"
	sqlxrepos "github.com/trezcool/kikundi/storage/database/sqlx"
	testutil "github.com/trezcool/kikundi/tests"
)

type countJob struct {
	runs int32
	err  error
}

func (j *countJob) Name() string { return "count" }

func (j *countJob) Run(context.Context) error {
	atomic.AddInt32(&j.runs, 1)
	return j.err
}

func TestScheduler(t *testing.T) {
	s := New(logsvc.NewNopLogger())
	assert.Error(t, s.Add("not a spec", &countJob{}))

	job := &countJob{err: errors.New("boom")}
	require.NoError(t, s.Add("@every 1s", job))
	s.Start()

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&job.runs) > 0 }, 3*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}

func TestDigestJob(t *testing.T) {
	ctx := context.Background()
	db := testutil.PrepareDB(t)
	userRepo := sqlxrepos.NewUserRepository(db)
	courseRepo := sqlxrepos.NewCourseRepository(db)
	users := user.NewService(db, userRepo)
	courses := course.NewService(db, courseRepo, userRepo, feedback.DefaultPolicy())

	now := time.Date(2024, 12, 14, 12, 0, 0, 0, time.UTC)
	ada := testutil.CreateUser(t, userRepo, "Ada Prof", "ada", "ada@uni.test", "", user.RoleInstructor, true)
	ghost := testutil.CreateUser(t, userRepo, "Ghost Prof", "ghost", "", "", user.RoleInstructor, true)
	alice := testutil.CreateUser(t, userRepo, "Alice", "alice", "alice@uni.test", "", user.RoleStudent, true)
	bob := testutil.CreateUser(t, userRepo, "Bob", "bob", "bob@uni.test", "", user.RoleStudent, true)
	carol := testutil.CreateUser(t, userRepo, "Carol", "carol", "carol@uni.test", "", user.RoleStudent, true)
	dan := testutil.CreateUser(t, userRepo, "Dan", "dan", "dan@uni.test", "", user.RoleStudent, true)

	// Alice carries the whole group
	web := testutil.CreateCourse(t, courseRepo, "Web Development", "WEB-401", ada.ID)
	teamA := testutil.CreateGroup(t, courseRepo, web.ID, "Team A", alice.ID, bob.ID)
	testutil.LogHours(t, courseRepo, teamA.ID, alice.ID, "API", 10, now.Add(-24*time.Hour))

	// balanced group: no alert
	db2 := testutil.CreateCourse(t, courseRepo, "Databases", "DB-201", ada.ID)
	teamB := testutil.CreateGroup(t, courseRepo, db2.ID, "Team B", carol.ID, dan.ID)
	testutil.LogHours(t, courseRepo, teamB.ID, carol.ID, "Schema", 4, now.Add(-24*time.Hour))
	testutil.LogHours(t, courseRepo, teamB.ID, dan.ID, "Queries", 4, now.Add(-24*time.Hour))

	// alerting course, but nobody to email
	orphan := testutil.CreateCourse(t, courseRepo, "Orphan", "ORP-101", ghost.ID)
	testutil.CreateGroup(t, courseRepo, orphan.ID, "Team C", carol.ID, dan.ID)

	mock := emailsvc.NewConsoleServiceMock(&core.Config{AppName: "Kikundi"}, logsvc.NewNopLogger())
	job := NewDigestJob(courses, users, mock, logsvc.NewNopLogger())
	job.now = func() time.Time { return now }

	sent, err := job.Send(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	msgs := mock.SentMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "WEB-401: groups need your attention", msgs[0].Subject)
	assert.Equal(t, "ada@uni.test", msgs[0].To[0].Address)
	assert.Contains(t, msgs[0].TextContent, "Team A")
	assert.NotContains(t, msgs[0].TextContent, "Team B")

	data := msgs[0].TemplateData.(DigestData)
	assert.Equal(t, "Ada Prof", data.InstructorName)
	assert.Equal(t, now, data.GeneratedAt)
	require.NotEmpty(t, data.Alerts)
	assert.Equal(t, feedback.SeverityCritical, data.Alerts[0].Severity)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = job.Send(canceled)
	assert.Error(t, err)
}
