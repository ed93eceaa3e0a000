package sqlxrepos

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/kikundi/core"
	"github.com/trezcool/kikundi/core/course"
	"github.com/trezcool/kikundi/core/feedback"
)

type (
	courseRow struct {
		ID           string      `db:"id"`
		Name         string      `db:"name"`
		Code         string      `db:"code"`
		InstructorID string      `db:"instructor_id"`
		IsActive     bool        `db:"is_active"`
		LMSID        null.String `db:"lms_id"`
		CreatedAt    time.Time   `db:"created_at"`
		UpdatedAt    time.Time   `db:"updated_at"`
	}

	groupRow struct {
		ID        string      `db:"id"`
		CourseID  string      `db:"course_id"`
		Name      string      `db:"name"`
		LMSID     null.String `db:"lms_id"`
		CreatedAt time.Time   `db:"created_at"`
	}

	memberRow struct {
		GroupID   string      `db:"group_id"`
		StudentID string      `db:"student_id"`
		Name      string      `db:"name"`
		Email     null.String `db:"email"`
		JoinedAt  time.Time   `db:"joined_at"`
	}

	milestoneRow struct {
		ID          string    `db:"id"`
		GroupID     string    `db:"group_id"`
		Name        string    `db:"name"`
		DueDate     time.Time `db:"due_date"`
		CompletedAt null.Time `db:"completed_at"`
		CreatedAt   time.Time `db:"created_at"`
	}

	healthRow struct {
		ID                string    `db:"id"`
		GroupID           string    `db:"group_id"`
		Severity          string    `db:"severity"`
		Health            string    `db:"health"`
		MaxMemberShare    float64   `db:"max_member_share"`
		InactiveMembers   int       `db:"inactive_members"`
		OverdueMilestones int       `db:"overdue_milestones"`
		Reasons           string    `db:"reasons"`
		RecordedAt        time.Time `db:"recorded_at"`
	}
)

func (r courseRow) toCourse() course.Course {
	return course.Course{
		ID:           r.ID,
		Name:         r.Name,
		Code:         r.Code,
		InstructorID: r.InstructorID,
		IsActive:     r.IsActive,
		LMSID:        r.LMSID.String,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}

func (r milestoneRow) toMilestone() course.Milestone {
	return course.Milestone{
		ID:          r.ID,
		GroupID:     r.GroupID,
		Name:        r.Name,
		DueDate:     r.DueDate.UTC(),
		CompletedAt: timePtr(r.CompletedAt),
		CreatedAt:   r.CreatedAt.UTC(),
	}
}

type courseRepository struct {
	baseRepository
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(exec core.DBExecutor) *courseRepository {
	return &courseRepository{baseRepository{exec: exec}}
}

// where joins conditions built with `?` placeholders, expanding slices with sqlx.In.
func where(exe core.DBExecutor, base string, conds []string, args []interface{}, suffix string) (string, []interface{}, error) {
	q := base
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += suffix
	q, args, err := sqlx.In(q, args...)
	if err != nil {
		return "", nil, errors.Wrap(err, "building query")
	}
	return exe.Rebind(q), args, nil
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// Courses

const courseColumns = "id, name, code, instructor_id, is_active, lms_id, created_at, updated_at"

func (repo courseRepository) CreateCourse(ctx context.Context, c course.Course, exec ...core.DBExecutor) (course.Course, error) {
	exe := repo.getExec(exec)
	c.ID = newID()
	q := `INSERT INTO courses (` + courseColumns + `)
		VALUES (:id, :name, :code, :instructor_id, :is_active, :lms_id, :created_at, :updated_at)`
	row := courseRow{
		ID:           c.ID,
		Name:         c.Name,
		Code:         c.Code,
		InstructorID: c.InstructorID,
		IsActive:     c.IsActive,
		LMSID:        nullString(c.LMSID),
		CreatedAt:    c.CreatedAt.UTC(),
		UpdatedAt:    c.UpdatedAt.UTC(),
	}
	if _, err := sqlx.NamedExecContext(ctx, exe, q, row); err != nil {
		return course.Course{}, errors.Wrap(err, "inserting course")
	}
	return repo.GetCourse(ctx, course.GetFilter{ID: c.ID}, exe)
}

func (repo courseRepository) GetCourse(ctx context.Context, filter course.GetFilter, exec ...core.DBExecutor) (course.Course, error) {
	exe := repo.getExec(exec)

	var (
		cond string
		arg  string
	)
	switch {
	case filter.ID != "":
		if !validID(filter.ID) {
			return course.Course{}, course.ErrCourseNotFound
		}
		cond, arg = "id = ?", filter.ID
	case filter.Code != "":
		cond, arg = "LOWER(code) = ?", strings.ToLower(filter.Code)
	case filter.LMSID != "":
		cond, arg = "lms_id = ?", filter.LMSID
	default:
		return course.Course{}, course.ErrCourseNotFound
	}

	var row courseRow
	q := exe.Rebind("SELECT " + courseColumns + " FROM courses WHERE " + cond + " LIMIT 1")
	if err := exe.GetContext(ctx, &row, q, arg); err != nil {
		return course.Course{}, trapNoRowsErr(err, course.ErrCourseNotFound, "finding course")
	}
	return row.toCourse(), nil
}

func (repo courseRepository) QueryCourses(ctx context.Context, filter course.CourseFilter, exec ...core.DBExecutor) ([]course.Course, error) {
	exe := repo.getExec(exec)

	var (
		conds []string
		args  []interface{}
	)
	if filter.InstructorID != "" {
		conds = append(conds, "instructor_id = ?")
		args = append(args, filter.InstructorID)
	}
	if filter.StudentID != "" {
		conds = append(conds, `id IN (
			SELECT g.course_id FROM project_groups g JOIN group_members m ON m.group_id = g.id WHERE m.student_id = ?)`)
		args = append(args, filter.StudentID)
	}
	if filter.ActiveOnly {
		conds = append(conds, "is_active = ?")
		args = append(args, true)
	}

	q, args, err := where(exe, "SELECT "+courseColumns+" FROM courses", conds, args, " ORDER BY code")
	if err != nil {
		return nil, err
	}
	var rows []courseRow
	if err := exe.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying courses")
	}

	courses := make([]course.Course, 0, len(rows))
	for _, row := range rows {
		courses = append(courses, row.toCourse())
	}
	return courses, nil
}

func (repo courseRepository) UpdateCourse(ctx context.Context, c course.Course, exec ...core.DBExecutor) (course.Course, error) {
	exe := repo.getExec(exec)
	q := exe.Rebind("UPDATE courses SET name = ?, code = ?, instructor_id = ?, is_active = ?, updated_at = ? WHERE id = ?")
	if _, err := exe.ExecContext(ctx, q, c.Name, c.Code, c.InstructorID, c.IsActive, c.UpdatedAt.UTC(), c.ID); err != nil {
		return course.Course{}, errors.Wrap(err, "updating course")
	}
	return repo.GetCourse(ctx, course.GetFilter{ID: c.ID}, exe)
}

// Groups

const groupColumns = "id, course_id, name, lms_id, created_at"

func (repo courseRepository) CreateGroup(ctx context.Context, g course.Group, exec ...core.DBExecutor) (course.Group, error) {
	exe := repo.getExec(exec)
	g.ID = newID()
	q := exe.Rebind("INSERT INTO project_groups (" + groupColumns + ") VALUES (?, ?, ?, ?, ?)")
	if _, err := exe.ExecContext(ctx, q, g.ID, g.CourseID, g.Name, nullString(g.LMSID), g.CreatedAt.UTC()); err != nil {
		return course.Group{}, errors.Wrap(err, "inserting group")
	}
	return repo.GetGroup(ctx, g.ID, exe)
}

func (repo courseRepository) GetGroup(ctx context.Context, id string, exec ...core.DBExecutor) (course.Group, error) {
	if !validID(id) {
		return course.Group{}, course.ErrGroupNotFound
	}
	exe := repo.getExec(exec)

	var row groupRow
	q := exe.Rebind("SELECT " + groupColumns + " FROM project_groups WHERE id = ?")
	if err := exe.GetContext(ctx, &row, q, id); err != nil {
		return course.Group{}, trapNoRowsErr(err, course.ErrGroupNotFound, "finding group")
	}
	groups, err := repo.withMembers(ctx, exe, []groupRow{row})
	if err != nil {
		return course.Group{}, err
	}
	return groups[0], nil
}

func (repo courseRepository) QueryGroups(ctx context.Context, filter course.GroupFilter, exec ...core.DBExecutor) ([]course.Group, error) {
	exe := repo.getExec(exec)

	var (
		conds []string
		args  []interface{}
	)
	if filter.CourseID != "" {
		conds = append(conds, "course_id = ?")
		args = append(args, filter.CourseID)
	}
	if filter.StudentID != "" {
		conds = append(conds, "id IN (SELECT group_id FROM group_members WHERE student_id = ?)")
		args = append(args, filter.StudentID)
	}
	if filter.LMSID != "" {
		conds = append(conds, "lms_id = ?")
		args = append(args, filter.LMSID)
	}

	q, args, err := where(exe, "SELECT "+groupColumns+" FROM project_groups", conds, args, " ORDER BY name")
	if err != nil {
		return nil, err
	}
	var rows []groupRow
	if err := exe.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying groups")
	}
	return repo.withMembers(ctx, exe, rows)
}

func (repo courseRepository) withMembers(ctx context.Context, exe core.DBExecutor, rows []groupRow) ([]course.Group, error) {
	groups := make([]course.Group, 0, len(rows))
	if len(rows) == 0 {
		return groups, nil
	}

	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	q, args, err := sqlx.In(`SELECT m.group_id, m.student_id, u.name, u.email, m.joined_at
		FROM group_members m JOIN users u ON u.id = m.student_id
		WHERE m.group_id IN (?) ORDER BY u.name, u.id`, ids)
	if err != nil {
		return nil, errors.Wrap(err, "building members query")
	}
	var members []memberRow
	if err := exe.SelectContext(ctx, &members, exe.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying members")
	}

	byGroup := make(map[string][]course.Member, len(rows))
	for _, m := range members {
		byGroup[m.GroupID] = append(byGroup[m.GroupID], course.Member{
			StudentID: m.StudentID,
			Name:      m.Name,
			Email:     m.Email.String,
			JoinedAt:  m.JoinedAt.UTC(),
		})
	}
	for _, r := range rows {
		ms := byGroup[r.ID]
		if ms == nil {
			ms = []course.Member{}
		}
		groups = append(groups, course.Group{
			ID:        r.ID,
			CourseID:  r.CourseID,
			Name:      r.Name,
			LMSID:     r.LMSID.String,
			Members:   ms,
			CreatedAt: r.CreatedAt.UTC(),
		})
	}
	return groups, nil
}

func (repo courseRepository) UpdateGroup(ctx context.Context, g course.Group, exec ...core.DBExecutor) (course.Group, error) {
	exe := repo.getExec(exec)
	q := exe.Rebind("UPDATE project_groups SET name = ? WHERE id = ?")
	if _, err := exe.ExecContext(ctx, q, g.Name, g.ID); err != nil {
		return course.Group{}, errors.Wrap(err, "updating group")
	}
	return repo.GetGroup(ctx, g.ID, exe)
}

func (repo courseRepository) AddMember(ctx context.Context, groupID, studentID string, joinedAt time.Time, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)

	var count int
	q := exe.Rebind("SELECT COUNT(*) FROM group_members WHERE group_id = ? AND student_id = ?")
	if err := exe.GetContext(ctx, &count, q, groupID, studentID); err != nil {
		return errors.Wrap(err, "checking membership")
	}
	if count > 0 {
		return nil
	}

	q = exe.Rebind("INSERT INTO group_members (group_id, student_id, joined_at) VALUES (?, ?, ?)")
	if _, err := exe.ExecContext(ctx, q, groupID, studentID, joinedAt.UTC()); err != nil {
		return errors.Wrap(err, "inserting member")
	}
	return nil
}

// Activity

// activityConds narrows activity tables (which all carry group_id) by course, group & student.
func activityConds(filter course.ActivityFilter, withStudent bool) ([]string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	if filter.CourseID != "" {
		conds = append(conds, "group_id IN (SELECT id FROM project_groups WHERE course_id = ?)")
		args = append(args, filter.CourseID)
	}
	if filter.GroupID != "" {
		conds = append(conds, "group_id = ?")
		args = append(args, filter.GroupID)
	}
	if withStudent && filter.StudentID != "" {
		conds = append(conds, "student_id = ?")
		args = append(args, filter.StudentID)
	}
	return conds, args
}

func (repo courseRepository) CreateContribution(ctx context.Context, c course.Contribution, exec ...core.DBExecutor) (course.Contribution, error) {
	exe := repo.getExec(exec)
	c.ID = newID()
	c.LoggedAt = c.LoggedAt.UTC()
	q := `INSERT INTO contributions (id, student_id, group_id, task, hours, logged_at)
		VALUES (:id, :student_id, :group_id, :task, :hours, :logged_at)`
	if _, err := sqlx.NamedExecContext(ctx, exe, q, c); err != nil {
		return course.Contribution{}, errors.Wrap(err, "inserting contribution")
	}
	return c, nil
}

func (repo courseRepository) QueryContributions(ctx context.Context, filter course.ActivityFilter, exec ...core.DBExecutor) ([]course.Contribution, error) {
	exe := repo.getExec(exec)
	conds, args := activityConds(filter, true)
	q, args, err := where(exe, "SELECT id, student_id, group_id, task, hours, logged_at FROM contributions",
		conds, args, " ORDER BY logged_at, id")
	if err != nil {
		return nil, err
	}

	contribs := make([]course.Contribution, 0)
	if err := exe.SelectContext(ctx, &contribs, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying contributions")
	}
	for i := range contribs {
		contribs[i].LoggedAt = contribs[i].LoggedAt.UTC()
	}
	return contribs, nil
}

func (repo courseRepository) CreateCommunication(ctx context.Context, c course.Communication, exec ...core.DBExecutor) (course.Communication, error) {
	exe := repo.getExec(exec)
	c.ID = newID()
	c.PostedAt = c.PostedAt.UTC()
	q := exe.Rebind(`INSERT INTO communications (id, student_id, group_id, message, tone, posted_at) VALUES (?, ?, ?, ?, ?, ?)`)
	if _, err := exe.ExecContext(ctx, q, c.ID, c.StudentID, c.GroupID, c.Message, string(c.Tone), c.PostedAt); err != nil {
		return course.Communication{}, errors.Wrap(err, "inserting communication")
	}
	return c, nil
}

func (repo courseRepository) QueryCommunications(ctx context.Context, filter course.ActivityFilter, exec ...core.DBExecutor) ([]course.Communication, error) {
	exe := repo.getExec(exec)
	conds, args := activityConds(filter, true)
	q, args, err := where(exe, "SELECT id, student_id, group_id, message, tone, posted_at FROM communications",
		conds, args, " ORDER BY posted_at, id")
	if err != nil {
		return nil, err
	}

	comms := make([]course.Communication, 0)
	if err := exe.SelectContext(ctx, &comms, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying communications")
	}
	for i := range comms {
		comms[i].PostedAt = comms[i].PostedAt.UTC()
	}
	return comms, nil
}

// Milestones

const milestoneColumns = "id, group_id, name, due_date, completed_at, created_at"

func (repo courseRepository) CreateMilestone(ctx context.Context, m course.Milestone, exec ...core.DBExecutor) (course.Milestone, error) {
	exe := repo.getExec(exec)
	m.ID = newID()
	q := exe.Rebind("INSERT INTO milestones (" + milestoneColumns + ") VALUES (?, ?, ?, ?, ?, ?)")
	if _, err := exe.ExecContext(ctx, q, m.ID, m.GroupID, m.Name, m.DueDate.UTC(), nullTime(m.CompletedAt), m.CreatedAt.UTC()); err != nil {
		return course.Milestone{}, errors.Wrap(err, "inserting milestone")
	}
	return repo.GetMilestone(ctx, m.ID, exe)
}

func (repo courseRepository) GetMilestone(ctx context.Context, id string, exec ...core.DBExecutor) (course.Milestone, error) {
	if !validID(id) {
		return course.Milestone{}, course.ErrMilestoneNotFound
	}
	exe := repo.getExec(exec)

	var row milestoneRow
	q := exe.Rebind("SELECT " + milestoneColumns + " FROM milestones WHERE id = ?")
	if err := exe.GetContext(ctx, &row, q, id); err != nil {
		return course.Milestone{}, trapNoRowsErr(err, course.ErrMilestoneNotFound, "finding milestone")
	}
	return row.toMilestone(), nil
}

func (repo courseRepository) UpdateMilestone(ctx context.Context, m course.Milestone, exec ...core.DBExecutor) (course.Milestone, error) {
	exe := repo.getExec(exec)
	q := exe.Rebind("UPDATE milestones SET name = ?, due_date = ?, completed_at = ? WHERE id = ?")
	if _, err := exe.ExecContext(ctx, q, m.Name, m.DueDate.UTC(), nullTime(m.CompletedAt), m.ID); err != nil {
		return course.Milestone{}, errors.Wrap(err, "updating milestone")
	}
	return repo.GetMilestone(ctx, m.ID, exe)
}

func (repo courseRepository) QueryMilestones(ctx context.Context, filter course.ActivityFilter, exec ...core.DBExecutor) ([]course.Milestone, error) {
	exe := repo.getExec(exec)
	conds, args := activityConds(filter, false)
	q, args, err := where(exe, "SELECT "+milestoneColumns+" FROM milestones", conds, args, " ORDER BY due_date, name")
	if err != nil {
		return nil, err
	}

	var rows []milestoneRow
	if err := exe.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying milestones")
	}
	milestones := make([]course.Milestone, 0, len(rows))
	for _, row := range rows {
		milestones = append(milestones, row.toMilestone())
	}
	return milestones, nil
}

// Health records

const healthColumns = "id, group_id, severity, health, max_member_share, inactive_members, overdue_milestones, reasons, recorded_at"

func (repo courseRepository) CreateHealthRecord(ctx context.Context, r course.HealthRecord, exec ...core.DBExecutor) (course.HealthRecord, error) {
	exe := repo.getExec(exec)
	r.ID = newID()
	r.RecordedAt = r.RecordedAt.UTC()
	if r.Reasons == nil {
		r.Reasons = []string{}
	}
	reasons, err := json.Marshal(r.Reasons)
	if err != nil {
		return course.HealthRecord{}, errors.Wrap(err, "encoding reasons")
	}

	q := `INSERT INTO health_records (` + healthColumns + `)
		VALUES (:id, :group_id, :severity, :health, :max_member_share, :inactive_members, :overdue_milestones, :reasons, :recorded_at)`
	row := healthRow{
		ID:                r.ID,
		GroupID:           r.GroupID,
		Severity:          string(r.Severity),
		Health:            string(r.Health),
		MaxMemberShare:    r.MaxMemberShare,
		InactiveMembers:   r.InactiveMembers,
		OverdueMilestones: r.OverdueMilestones,
		Reasons:           string(reasons),
		RecordedAt:        r.RecordedAt,
	}
	if _, err := sqlx.NamedExecContext(ctx, exe, q, row); err != nil {
		return course.HealthRecord{}, errors.Wrap(err, "inserting health record")
	}
	return r, nil
}

func (repo courseRepository) QueryHealthRecords(ctx context.Context, groupID string, limit int, exec ...core.DBExecutor) ([]course.HealthRecord, error) {
	exe := repo.getExec(exec)
	q := exe.Rebind("SELECT " + healthColumns + " FROM health_records WHERE group_id = ? ORDER BY recorded_at DESC, id LIMIT ?")

	var rows []healthRow
	if err := exe.SelectContext(ctx, &rows, q, groupID, limit); err != nil {
		return nil, errors.Wrap(err, "querying health records")
	}

	records := make([]course.HealthRecord, 0, len(rows))
	for _, row := range rows {
		var reasons []string
		if err := json.Unmarshal([]byte(row.Reasons), &reasons); err != nil {
			return nil, errors.Wrap(err, "decoding reasons")
		}
		records = append(records, course.HealthRecord{
			ID:                row.ID,
			GroupID:           row.GroupID,
			Severity:          feedback.Severity(row.Severity),
			Health:            feedback.HealthStatus(row.Health),
			MaxMemberShare:    row.MaxMemberShare,
			InactiveMembers:   row.InactiveMembers,
			OverdueMilestones: row.OverdueMilestones,
			Reasons:           reasons,
			RecordedAt:        row.RecordedAt.UTC(),
		})
	}
	return records, nil
}

func (repo courseRepository) Stats(ctx context.Context, exec ...core.DBExecutor) (course.Stats, error) {
	exe := repo.getExec(exec)
	q := exe.Rebind(`SELECT
		(SELECT COUNT(*) FROM users WHERE role = ?) AS students,
		(SELECT COUNT(*) FROM courses) AS courses,
		(SELECT COUNT(*) FROM project_groups) AS groups_count,
		(SELECT COUNT(*) FROM contributions) AS contributions,
		(SELECT COALESCE(SUM(hours), 0.0) FROM contributions) AS total_hours`)

	var row struct {
		Students      int     `db:"students"`
		Courses       int     `db:"courses"`
		Groups        int     `db:"groups_count"`
		Contributions int     `db:"contributions"`
		TotalHours    float64 `db:"total_hours"`
	}
	if err := exe.GetContext(ctx, &row, q, "student"); err != nil {
		return course.Stats{}, errors.Wrap(err, "computing stats")
	}
	return course.Stats{
		Students:      row.Students,
		Courses:       row.Courses,
		Groups:        row.Groups,
		Contributions: row.Contributions,
		TotalHours:    row.TotalHours,
	}, nil
}
