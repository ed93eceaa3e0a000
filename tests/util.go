// Package testutil holds the fixtures shared by the repositories & API tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/trezcool/kikundi/core"
	"github.com/trezcool/kikundi/core/course"
	"github.com/trezcool/kikundi/core/user"
	"github.com/trezcool/kikundi/storage/database"
)

// PrepareDB opens a migrated in-memory SQLite database, closed when the test ends.
func PrepareDB(t *testing.T) *sqlx.DB {
	t.Helper()
	conf := core.DatabaseConfig{Engine: "sqlite", Path: ":memory:"}
	db, err := database.Open(conf)
	if err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := database.Migrate(db, conf.Engine); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	return db
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	role string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Role:      role,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateCourse(t *testing.T, repo course.Repository, name, code, instructorID string) course.Course {
	t.Helper()
	now := time.Now().UTC()
	c, err := repo.CreateCourse(context.Background(), course.Course{
		Name:         name,
		Code:         code,
		InstructorID: instructorID,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		t.Fatalf("CreateCourse() failed: %v", err)
	}
	return c
}

// CreateGroup creates a group of the course with the given students as members.
func CreateGroup(t *testing.T, repo course.Repository, courseID, name string, studentIDs ...string) course.Group {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	g, err := repo.CreateGroup(ctx, course.Group{CourseID: courseID, Name: name, CreatedAt: now})
	if err != nil {
		t.Fatalf("CreateGroup() failed: %v", err)
	}
	for _, id := range studentIDs {
		if err = repo.AddMember(ctx, g.ID, id, now); err != nil {
			t.Fatalf("CreateGroup() failed: %v", err)
		}
	}
	if g, err = repo.GetGroup(ctx, g.ID); err != nil {
		t.Fatalf("CreateGroup() failed: %v", err)
	}
	return g
}

func LogHours(t *testing.T, repo course.Repository, groupID, studentID, task string, hours float64, at time.Time) course.Contribution {
	t.Helper()
	c, err := repo.CreateContribution(context.Background(), course.Contribution{
		StudentID: studentID,
		GroupID:   groupID,
		Task:      task,
		Hours:     hours,
		LoggedAt:  at,
	})
	if err != nil {
		t.Fatalf("LogHours() failed: %v", err)
	}
	return c
}
