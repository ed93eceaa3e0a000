package sqlxrepos_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/kikundi/core"
	"github.com/trezcool/kikundi/core/course"
	"github.com/trezcool/kikundi/core/feedback"
	"github.com/trezcool/kikundi/core/user"
	sqlxrepos "github.com/trezcool/kikundi/storage/database/sqlx"
	testutil "github.com/trezcool/kikundi/tests"
)

func TestUserRepository(t *testing.T) {
	ctx := context.Background()
	db := testutil.PrepareDB(t)
	repo := sqlxrepos.NewUserRepository(db)

	now := time.Now().UTC()
	yesterday := now.Add(-24 * time.Hour)
	admin := testutil.CreateUser(t, repo, "Admin", "admin", "admin@kikundi.test", "Sup3r$ecret", user.RoleAdmin, true, yesterday)
	prof := testutil.CreateUser(t, repo, "Ada Prof", "ada", "ada@kikundi.test", "", user.RoleInstructor, true, now.Add(-time.Hour))
	alice := testutil.CreateUser(t, repo, "Alice", "alice", "alice@kikundi.test", "", user.RoleStudent, false, now)

	t.Run("get", func(t *testing.T) {
		usr, err := repo.GetUser(ctx, user.GetFilter{UsernameOrEmail: "admin@kikundi.test"})
		require.NoError(t, err)
		assert.Equal(t, admin.ID, usr.ID)
		assert.NoError(t, usr.CheckPassword("Sup3r$ecret"))

		_, err = repo.GetUser(ctx, user.GetFilter{ID: "not-a-uuid"})
		assert.Equal(t, user.ErrNotFound, err)
		_, err = repo.GetUser(ctx, user.GetFilter{Username: "nobody"})
		assert.Equal(t, user.ErrNotFound, err)
		_, err = repo.GetUser(ctx, user.GetFilter{})
		assert.Equal(t, user.ErrNotFound, err)
	})

	t.Run("uniqueness", func(t *testing.T) {
		assert.Equal(t, user.ErrUsernameExists, repo.CheckUsernameUniqueness(ctx, "ada", "new@kikundi.test", nil))
		assert.Equal(t, user.ErrEmailExists, repo.CheckUsernameUniqueness(ctx, "new", "ada@kikundi.test", nil))
		assert.NoError(t, repo.CheckUsernameUniqueness(ctx, "ada", "ada@kikundi.test", []user.User{prof}))
	})

	t.Run("query", func(t *testing.T) {
		active := true
		tests := []struct {
			name     string
			filter   *user.QueryFilter
			ordering []core.DBOrdering
			want     []string
		}{
			{name: "all, latest first", want: []string{alice.ID, prof.ID, admin.ID}},
			{name: "search", filter: &user.QueryFilter{Search: "ADA"}, want: []string{prof.ID}},
			{name: "roles", filter: &user.QueryFilter{Roles: []string{user.RoleStudent, user.RoleAdmin}},
				ordering: []core.DBOrdering{{Field: "name", Ascending: true}}, want: []string{admin.ID, alice.ID}},
			{name: "active", filter: &user.QueryFilter{IsActive: &active},
				ordering: []core.DBOrdering{{Field: "username", Ascending: true}}, want: []string{prof.ID, admin.ID}},
			{name: "created range", filter: &user.QueryFilter{CreatedTo: yesterday.Add(time.Minute)}, want: []string{admin.ID}},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				users, err := repo.QueryUsers(ctx, tt.filter, tt.ordering)
				require.NoError(t, err)
				ids := make([]string, 0, len(users))
				for _, u := range users {
					ids = append(ids, u.ID)
				}
				assert.Equal(t, tt.want, ids)
			})
		}
	})

	t.Run("update & delete", func(t *testing.T) {
		alice.IsActive = true
		alice.Name = "Alice Liddell"
		alice.LastLogin = &now
		usr, err := repo.UpdateUser(ctx, alice)
		require.NoError(t, err)
		assert.True(t, usr.IsActive)
		assert.Equal(t, "Alice Liddell", usr.Name)
		require.NotNil(t, usr.LastLogin)

		require.NoError(t, repo.DeleteUsers(ctx, []string{alice.ID}))
		_, err = repo.GetUser(ctx, user.GetFilter{ID: alice.ID})
		assert.Equal(t, user.ErrNotFound, err)
	})
}

func TestCourseRepository(t *testing.T) {
	ctx := context.Background()
	db := testutil.PrepareDB(t)
	users := sqlxrepos.NewUserRepository(db)
	repo := sqlxrepos.NewCourseRepository(db)

	prof := testutil.CreateUser(t, users, "Ada Prof", "ada", "ada@kikundi.test", "", user.RoleInstructor, true)
	bob := testutil.CreateUser(t, users, "Bob", "bob", "bob@kikundi.test", "", user.RoleStudent, true)
	alice := testutil.CreateUser(t, users, "Alice", "alice", "alice@kikundi.test", "", user.RoleStudent, true)

	web := testutil.CreateCourse(t, repo, "Web Development", "WEB-401", prof.ID)
	testutil.CreateCourse(t, repo, "Databases", "DB-201", prof.ID)
	team := testutil.CreateGroup(t, repo, web.ID, "Team A", bob.ID, alice.ID)

	t.Run("courses", func(t *testing.T) {
		c, err := repo.GetCourse(ctx, course.GetFilter{Code: "web-401"})
		require.NoError(t, err)
		assert.Equal(t, web.ID, c.ID)

		_, err = repo.GetCourse(ctx, course.GetFilter{Code: "nope"})
		assert.Equal(t, course.ErrCourseNotFound, err)

		courses, err := repo.QueryCourses(ctx, course.CourseFilter{InstructorID: prof.ID})
		require.NoError(t, err)
		assert.Len(t, courses, 2)

		courses, err = repo.QueryCourses(ctx, course.CourseFilter{StudentID: alice.ID})
		require.NoError(t, err)
		require.Len(t, courses, 1)
		assert.Equal(t, web.ID, courses[0].ID)
	})

	t.Run("groups", func(t *testing.T) {
		require.Len(t, team.Members, 2)
		assert.Equal(t, "Alice", team.Members[0].Name, "members are ordered by name")

		require.NoError(t, repo.AddMember(ctx, team.ID, alice.ID, time.Now()), "adding an existing member is a no-op")
		g, err := repo.GetGroup(ctx, team.ID)
		require.NoError(t, err)
		assert.Len(t, g.Members, 2)

		groups, err := repo.QueryGroups(ctx, course.GroupFilter{StudentID: bob.ID})
		require.NoError(t, err)
		require.Len(t, groups, 1)
		assert.Equal(t, team.ID, groups[0].ID)

		_, err = repo.GetGroup(ctx, "missing")
		assert.Equal(t, course.ErrGroupNotFound, err)
	})

	t.Run("activity", func(t *testing.T) {
		at := time.Date(2024, 12, 10, 9, 0, 0, 0, time.UTC)
		testutil.LogHours(t, repo, team.ID, alice.ID, "Frontend", 3.5, at)
		testutil.LogHours(t, repo, team.ID, bob.ID, "Backend", 2, at.Add(time.Hour))

		contribs, err := repo.QueryContributions(ctx, course.ActivityFilter{CourseID: web.ID})
		require.NoError(t, err)
		require.Len(t, contribs, 2)
		assert.Equal(t, at, contribs[0].LoggedAt)

		contribs, err = repo.QueryContributions(ctx, course.ActivityFilter{StudentID: bob.ID})
		require.NoError(t, err)
		require.Len(t, contribs, 1)
		assert.Equal(t, "Backend", contribs[0].Task)

		_, err = repo.CreateCommunication(ctx, course.Communication{
			StudentID: bob.ID, GroupID: team.ID, Message: "Need it ASAP", Tone: feedback.ToneUrgent, PostedAt: at,
		})
		require.NoError(t, err)
		comms, err := repo.QueryCommunications(ctx, course.ActivityFilter{GroupID: team.ID})
		require.NoError(t, err)
		require.Len(t, comms, 1)
		assert.Equal(t, feedback.ToneUrgent, comms[0].Tone)

		st, err := repo.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, course.Stats{Students: 2, Courses: 2, Groups: 1, Contributions: 2, TotalHours: 5.5}, st)
	})

	t.Run("milestones", func(t *testing.T) {
		due := time.Date(2024, 12, 20, 0, 0, 0, 0, time.UTC)
		m, err := repo.CreateMilestone(ctx, course.Milestone{GroupID: team.ID, Name: "MVP", DueDate: due, CreatedAt: time.Now()})
		require.NoError(t, err)
		assert.Nil(t, m.CompletedAt)

		done := due.Add(-time.Hour)
		m.CompletedAt = &done
		m, err = repo.UpdateMilestone(ctx, m)
		require.NoError(t, err)
		require.NotNil(t, m.CompletedAt)
		assert.Equal(t, done, *m.CompletedAt)

		ms, err := repo.QueryMilestones(ctx, course.ActivityFilter{CourseID: web.ID})
		require.NoError(t, err)
		assert.Len(t, ms, 1)
	})

	t.Run("health records", func(t *testing.T) {
		base := time.Now().UTC().Add(-time.Hour)
		for i, sev := range []feedback.Severity{feedback.SeverityHigh, feedback.SeverityCritical} {
			_, err := repo.CreateHealthRecord(ctx, course.HealthRecord{
				GroupID:    team.ID,
				Severity:   sev,
				Health:     feedback.HealthOf(sev),
				Reasons:    []string{string(sev) + " reason"},
				RecordedAt: base.Add(time.Duration(i) * time.Minute),
			})
			require.NoError(t, err)
		}

		records, err := repo.QueryHealthRecords(ctx, team.ID, 10)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, feedback.SeverityCritical, records[0].Severity, "latest first")
		assert.Equal(t, []string{"critical reason"}, records[0].Reasons)

		records, err = repo.QueryHealthRecords(ctx, team.ID, 1)
		require.NoError(t, err)
		assert.Len(t, records, 1)
	})
}
