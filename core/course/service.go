package course

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/kikundi/core"
	"github.com/trezcool/kikundi/core/feedback"
	"github.com/trezcool/kikundi/core/user"
)

var (
	// errors
	ErrCourseNotFound    = errors.New("course not found")
	ErrGroupNotFound     = errors.New("group not found")
	ErrMilestoneNotFound = errors.New("milestone not found")
	ErrCodeExists        = errors.New("a course with this code already exists")
	ErrGroupNameExists   = errors.New("a group with this name already exists in the course")
	ErrNotMember         = errors.New("student is not a member of this group")
	ErrNotStudent        = errors.New("user is not an active student")
)

type (
	// GetFilter selects a single course; the first non-empty field wins.
	GetFilter struct {
		ID    string
		Code  string
		LMSID string
	}

	// GroupFilter narrows groups queries; empty fields are ignored.
	GroupFilter struct {
		CourseID  string
		StudentID string
		LMSID     string
	}

	Repository interface {
		CreateCourse(ctx context.Context, c Course, exec ...core.DBExecutor) (Course, error)
		GetCourse(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (Course, error)
		QueryCourses(ctx context.Context, filter CourseFilter, exec ...core.DBExecutor) ([]Course, error)
		UpdateCourse(ctx context.Context, c Course, exec ...core.DBExecutor) (Course, error)

		CreateGroup(ctx context.Context, g Group, exec ...core.DBExecutor) (Group, error)
		// GetGroup & QueryGroups load group members, ordered by name.
		GetGroup(ctx context.Context, id string, exec ...core.DBExecutor) (Group, error)
		QueryGroups(ctx context.Context, filter GroupFilter, exec ...core.DBExecutor) ([]Group, error)
		UpdateGroup(ctx context.Context, g Group, exec ...core.DBExecutor) (Group, error)
		// AddMember is a no-op when the student already belongs to the group.
		AddMember(ctx context.Context, groupID, studentID string, joinedAt time.Time, exec ...core.DBExecutor) error

		CreateContribution(ctx context.Context, c Contribution, exec ...core.DBExecutor) (Contribution, error)
		QueryContributions(ctx context.Context, filter ActivityFilter, exec ...core.DBExecutor) ([]Contribution, error)
		CreateCommunication(ctx context.Context, c Communication, exec ...core.DBExecutor) (Communication, error)
		QueryCommunications(ctx context.Context, filter ActivityFilter, exec ...core.DBExecutor) ([]Communication, error)

		CreateMilestone(ctx context.Context, m Milestone, exec ...core.DBExecutor) (Milestone, error)
		GetMilestone(ctx context.Context, id string, exec ...core.DBExecutor) (Milestone, error)
		UpdateMilestone(ctx context.Context, m Milestone, exec ...core.DBExecutor) (Milestone, error)
		QueryMilestones(ctx context.Context, filter ActivityFilter, exec ...core.DBExecutor) ([]Milestone, error)

		CreateHealthRecord(ctx context.Context, r HealthRecord, exec ...core.DBExecutor) (HealthRecord, error)
		// QueryHealthRecords returns the latest records first.
		QueryHealthRecords(ctx context.Context, groupID string, limit int, exec ...core.DBExecutor) ([]HealthRecord, error)

		Stats(ctx context.Context, exec ...core.DBExecutor) (Stats, error)
	}

	Service struct {
		db     core.DB
		repo   Repository
		users  user.Repository
		policy feedback.Policy
	}
)

func NewService(db core.DB, repo Repository, users user.Repository, policy feedback.Policy) *Service {
	return &Service{db: db, repo: repo, users: users, policy: policy}
}

func (svc *Service) Policy() feedback.Policy { return svc.policy }

// Courses

func (svc *Service) CreateCourse(ctx context.Context, nc NewCourse) (Course, error) {
	if _, err := svc.repo.GetCourse(ctx, GetFilter{Code: nc.Code}); err == nil {
		return Course{}, core.NewValidationError(ErrCodeExists, core.FieldError{Field: "code", Error: ErrCodeExists.Error()})
	} else if errors.Cause(err) != ErrCourseNotFound {
		return Course{}, errors.Wrap(err, "checking course code")
	}

	instructor, err := svc.users.GetUser(ctx, user.GetFilter{ID: nc.InstructorID})
	if err != nil || !instructor.IsInstructor() {
		return Course{}, core.NewFieldError("instructor_id", "instructor not found")
	}

	now := time.Now().UTC()
	return svc.repo.CreateCourse(ctx, Course{
		Name:         nc.Name,
		Code:         nc.Code,
		InstructorID: nc.InstructorID,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
}

func (svc *Service) GetCourse(ctx context.Context, id string) (Course, error) {
	return svc.repo.GetCourse(ctx, GetFilter{ID: id})
}

func (svc *Service) QueryCourses(ctx context.Context, filter CourseFilter) ([]Course, error) {
	return svc.repo.QueryCourses(ctx, filter)
}

// UpsertCourseByLMSID creates or renames the course synced from an LMS.
func (svc *Service) UpsertCourseByLMSID(ctx context.Context, lmsID, name, code, instructorID string) (Course, bool, error) {
	now := time.Now().UTC()
	c, err := svc.repo.GetCourse(ctx, GetFilter{LMSID: lmsID})
	switch errors.Cause(err) {
	case nil:
		c.Name = core.CleanString(name)
		c.UpdatedAt = now
		c, err = svc.repo.UpdateCourse(ctx, c)
		return c, false, err
	case ErrCourseNotFound:
		c, err = svc.repo.CreateCourse(ctx, Course{
			Name:         core.CleanString(name),
			Code:         core.CleanString(code),
			InstructorID: instructorID,
			IsActive:     true,
			LMSID:        lmsID,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
		return c, err == nil, err
	default:
		return Course{}, false, err
	}
}

// Groups

func (svc *Service) CreateGroup(ctx context.Context, courseID string, ng NewGroup) (Group, error) {
	groups, err := svc.repo.QueryGroups(ctx, GroupFilter{CourseID: courseID})
	if err != nil {
		return Group{}, errors.Wrap(err, "querying groups")
	}
	for _, g := range groups {
		if g.Name == ng.Name {
			return Group{}, core.NewValidationError(ErrGroupNameExists, core.FieldError{Field: "name", Error: ErrGroupNameExists.Error()})
		}
	}
	return svc.repo.CreateGroup(ctx, Group{CourseID: courseID, Name: ng.Name, CreatedAt: time.Now().UTC()})
}

func (svc *Service) GetGroup(ctx context.Context, id string) (Group, error) {
	return svc.repo.GetGroup(ctx, id)
}

func (svc *Service) QueryGroups(ctx context.Context, filter GroupFilter) ([]Group, error) {
	return svc.repo.QueryGroups(ctx, filter)
}

// AddMember adds an active student to the group and returns the refreshed group.
func (svc *Service) AddMember(ctx context.Context, groupID string, nm NewMember) (Group, error) {
	var g Group
	err := core.WithTx(ctx, svc.db, func(tx core.DBExecutor) error {
		student, err := svc.users.GetUser(ctx, user.GetFilter{ID: nm.StudentID}, tx)
		if err != nil || !student.IsStudent() || !student.IsActive {
			return core.NewValidationError(ErrNotStudent, core.FieldError{Field: "student_id", Error: ErrNotStudent.Error()})
		}
		if err = svc.repo.AddMember(ctx, groupID, student.ID, time.Now().UTC(), tx); err != nil {
			return errors.Wrap(err, "adding member")
		}
		g, err = svc.repo.GetGroup(ctx, groupID, tx)
		return err
	})
	return g, err
}

// UpsertGroupByLMSID creates or renames the group synced from an LMS.
func (svc *Service) UpsertGroupByLMSID(ctx context.Context, courseID, lmsID, name string) (Group, bool, error) {
	groups, err := svc.repo.QueryGroups(ctx, GroupFilter{LMSID: lmsID})
	if err != nil {
		return Group{}, false, errors.Wrap(err, "querying groups")
	}
	if len(groups) > 0 {
		g := groups[0]
		g.Name = core.CleanString(name)
		g, err = svc.repo.UpdateGroup(ctx, g)
		return g, false, err
	}
	g, err := svc.repo.CreateGroup(ctx, Group{
		CourseID:  courseID,
		Name:      core.CleanString(name),
		LMSID:     lmsID,
		CreatedAt: time.Now().UTC(),
	})
	return g, err == nil, err
}

// SyncMember adds a student to a group without re-checking their role.
func (svc *Service) SyncMember(ctx context.Context, groupID, studentID string) error {
	return svc.repo.AddMember(ctx, groupID, studentID, time.Now().UTC())
}

// Activity

// LogContribution records hours the student spent on one of their groups.
func (svc *Service) LogContribution(ctx context.Context, studentID string, nc NewContribution) (Contribution, error) {
	g, err := svc.repo.GetGroup(ctx, nc.GroupID)
	if err != nil {
		if errors.Cause(err) == ErrGroupNotFound {
			return Contribution{}, core.NewFieldError("group_id", ErrGroupNotFound.Error())
		}
		return Contribution{}, errors.Wrap(err, "finding group")
	}
	if !g.HasMember(studentID) {
		return Contribution{}, core.NewFieldError("group_id", ErrNotMember.Error())
	}

	loggedAt := nc.LoggedAt.UTC()
	if nc.LoggedAt.IsZero() {
		loggedAt = time.Now().UTC()
	}
	return svc.repo.CreateContribution(ctx, Contribution{
		StudentID: studentID,
		GroupID:   g.ID,
		Task:      nc.Task,
		Hours:     nc.Hours,
		LoggedAt:  loggedAt,
	})
}

func (svc *Service) Contributions(ctx context.Context, filter ActivityFilter) ([]Contribution, error) {
	return svc.repo.QueryContributions(ctx, filter)
}

// PostCommunication records a group message. Missing tone labels are inferred from the text.
func (svc *Service) PostCommunication(ctx context.Context, g Group, studentID string, nc NewCommunication) (Communication, error) {
	if !g.HasMember(studentID) {
		return Communication{}, core.NewValidationError(ErrNotMember)
	}
	tone := feedback.ParseTone(nc.Tone)
	if tone == feedback.ToneUnknown {
		tone = InferTone(nc.Message)
	}
	return svc.repo.CreateCommunication(ctx, Communication{
		StudentID: studentID,
		GroupID:   g.ID,
		Message:   nc.Message,
		Tone:      tone,
		PostedAt:  time.Now().UTC(),
	})
}

func (svc *Service) Communications(ctx context.Context, groupID string) ([]Communication, error) {
	return svc.repo.QueryCommunications(ctx, ActivityFilter{GroupID: groupID})
}

// Milestones

func (svc *Service) CreateMilestone(ctx context.Context, groupID string, nm NewMilestone) (Milestone, error) {
	m, err := svc.repo.CreateMilestone(ctx, Milestone{
		GroupID:   groupID,
		Name:      nm.Name,
		DueDate:   nm.DueDate.UTC(),
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return Milestone{}, err
	}
	return svc.withStatus(m, time.Now().UTC()), nil
}

func (svc *Service) UpdateMilestone(ctx context.Context, groupID, id string, um UpdateMilestone) (Milestone, error) {
	m, err := svc.repo.GetMilestone(ctx, id)
	if err != nil {
		return Milestone{}, err
	}
	if m.GroupID != groupID {
		return Milestone{}, ErrMilestoneNotFound
	}

	now := time.Now().UTC()
	if um.Name != "" {
		m.Name = um.Name
	}
	if um.DueDate != nil {
		m.DueDate = um.DueDate.UTC()
	}
	if um.Completed != nil {
		switch {
		case *um.Completed && m.CompletedAt == nil:
			m.CompletedAt = &now
		case !*um.Completed:
			m.CompletedAt = nil
		}
	}
	if m, err = svc.repo.UpdateMilestone(ctx, m); err != nil {
		return Milestone{}, err
	}
	return svc.withStatus(m, now), nil
}

// Milestones lists the group milestones by due date, with their status as of `now`.
func (svc *Service) Milestones(ctx context.Context, groupID string, now time.Time) ([]Milestone, error) {
	ms, err := svc.repo.QueryMilestones(ctx, ActivityFilter{GroupID: groupID})
	if err != nil {
		return nil, err
	}
	for i := range ms {
		ms[i] = svc.withStatus(ms[i], now)
	}
	return ms, nil
}

func (svc *Service) withStatus(m Milestone, now time.Time) Milestone {
	m.Status = feedback.MilestoneStatusAt(m.DueDate, m.Completed(), now, svc.policy.DueSoonWindow)
	return m
}

// Health records

// RecordHealth stores the verdict of a group analysis.
func (svc *Service) RecordHealth(ctx context.Context, gr feedback.GroupReport) (HealthRecord, error) {
	var overdue int
	for _, m := range gr.Summary.Milestones {
		if m.Status == feedback.MilestoneOverdue {
			overdue++
		}
	}
	reasons := make([]string, 0, len(gr.Verdict.Alerts))
	for _, a := range gr.Verdict.Alerts {
		reasons = append(reasons, a.Reason)
	}
	return svc.repo.CreateHealthRecord(ctx, HealthRecord{
		GroupID:           gr.Summary.GroupID,
		Severity:          gr.Verdict.Severity,
		Health:            gr.Verdict.Health,
		MaxMemberShare:    gr.Summary.MaxMemberShare,
		InactiveMembers:   gr.Summary.InactiveMemberCount,
		OverdueMilestones: overdue,
		Reasons:           reasons,
		RecordedAt:        time.Now().UTC(),
	})
}

func (svc *Service) HealthHistory(ctx context.Context, groupID string, limit int) ([]HealthRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return svc.repo.QueryHealthRecords(ctx, groupID, limit)
}

func (svc *Service) Stats(ctx context.Context) (Stats, error) {
	st, err := svc.repo.Stats(ctx)
	st.TotalHours = core.Round2(st.TotalHours)
	return st, err
}
