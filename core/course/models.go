package course

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/kikundi/core"
	"github.com/trezcool/kikundi/core/feedback"
)

type (
	Course struct {
		ID           string    `json:"id"`
		Name         string    `json:"name"`
		Code         string    `json:"code"`
		InstructorID string    `json:"instructor_id"`
		IsActive     bool      `json:"is_active"`
		LMSID        string    `json:"lms_id,omitempty"`
		CreatedAt    time.Time `json:"created_at"`
		UpdatedAt    time.Time `json:"updated_at"`
	}

	Member struct {
		StudentID string    `json:"student_id"`
		Name      string    `json:"name"`
		Email     string    `json:"email"`
		JoinedAt  time.Time `json:"joined_at"`
	}

	Group struct {
		ID        string    `json:"id"`
		CourseID  string    `json:"course_id"`
		Name      string    `json:"name"`
		LMSID     string    `json:"lms_id,omitempty"`
		Members   []Member  `json:"members"`
		CreatedAt time.Time `json:"created_at"`
	}

	Contribution struct {
		ID        string    `json:"id" db:"id"`
		StudentID string    `json:"student_id" db:"student_id"`
		GroupID   string    `json:"group_id" db:"group_id"`
		Task      string    `json:"task" db:"task"`
		Hours     float64   `json:"hours" db:"hours"`
		LoggedAt  time.Time `json:"logged_at" db:"logged_at"`
	}

	Communication struct {
		ID        string        `json:"id" db:"id"`
		StudentID string        `json:"student_id" db:"student_id"`
		GroupID   string        `json:"group_id" db:"group_id"`
		Message   string        `json:"message" db:"message"`
		Tone      feedback.Tone `json:"tone" db:"tone"`
		PostedAt  time.Time     `json:"posted_at" db:"posted_at"`
	}

	Milestone struct {
		ID          string                   `json:"id"`
		GroupID     string                   `json:"group_id"`
		Name        string                   `json:"name"`
		DueDate     time.Time                `json:"due_date"`
		CompletedAt *time.Time               `json:"completed_at"`
		Status      feedback.MilestoneStatus `json:"status,omitempty"` // derived on read
		CreatedAt   time.Time                `json:"created_at"`
	}

	// HealthRecord is a stored group verdict.
	HealthRecord struct {
		ID                string                `json:"id"`
		GroupID           string                `json:"group_id"`
		Severity          feedback.Severity     `json:"severity"`
		Health            feedback.HealthStatus `json:"health"`
		MaxMemberShare    float64               `json:"max_member_share"`
		InactiveMembers   int                   `json:"inactive_members"`
		OverdueMilestones int                   `json:"overdue_milestones"`
		Reasons           []string              `json:"reasons"`
		RecordedAt        time.Time             `json:"recorded_at"`
	}

	Stats struct {
		Students      int     `json:"students"`
		Courses       int     `json:"courses"`
		Groups        int     `json:"groups"`
		Contributions int     `json:"contributions"`
		TotalHours    float64 `json:"total_hours"`
	}
)

// HasMember reports whether `studentID` belongs to the group.
func (g Group) HasMember(studentID string) bool {
	for _, m := range g.Members {
		if m.StudentID == studentID {
			return true
		}
	}
	return false
}

func (m Milestone) Completed() bool { return m.CompletedAt != nil }

// NewCourse contains information needed to create a new Course.
type NewCourse struct {
	Name         string `json:"name" validate:"required"`
	Code         string `json:"code" validate:"required,max=32"`
	InstructorID string `json:"instructor_id"`
}

func (nc *NewCourse) Validate(validate *validator.Validate) error {
	nc.Name = core.CleanString(nc.Name)
	nc.Code = core.CleanString(nc.Code)
	nc.InstructorID = core.CleanString(nc.InstructorID)
	return validate.Struct(nc)
}

type NewGroup struct {
	Name string `json:"name" validate:"required"`
}

func (ng *NewGroup) Validate(validate *validator.Validate) error {
	ng.Name = core.CleanString(ng.Name)
	return validate.Struct(ng)
}

type NewMember struct {
	StudentID string `json:"student_id" validate:"required"`
}

func (nm *NewMember) Validate(validate *validator.Validate) error {
	nm.StudentID = core.CleanString(nm.StudentID)
	return validate.Struct(nm)
}

// NewContribution is a contribution logged by a student. LoggedAt defaults to now.
type NewContribution struct {
	GroupID  string    `json:"group_id" validate:"required"`
	Task     string    `json:"task" validate:"required"`
	Hours    float64   `json:"hours" validate:"gt=0,lte=24"`
	LoggedAt time.Time `json:"logged_at"`
}

func (nc *NewContribution) Validate(validate *validator.Validate) error {
	nc.GroupID = core.CleanString(nc.GroupID)
	nc.Task = core.CleanString(nc.Task)
	return validate.Struct(nc)
}

// NewCommunication is a message posted to a group. Tone is inferred when empty.
type NewCommunication struct {
	Message string `json:"message" validate:"required"`
	Tone    string `json:"tone" validate:"omitempty,tone"`
}

func (nc *NewCommunication) Validate(validate *validator.Validate) error {
	nc.Message = core.CleanString(nc.Message)
	nc.Tone = core.CleanString(nc.Tone, true /* lower */)
	return validate.Struct(nc)
}

type NewMilestone struct {
	Name    string    `json:"name" validate:"required"`
	DueDate time.Time `json:"due_date" validate:"required"`
}

func (nm *NewMilestone) Validate(validate *validator.Validate) error {
	nm.Name = core.CleanString(nm.Name)
	return validate.Struct(nm)
}

type UpdateMilestone struct {
	Name      string     `json:"name"`
	DueDate   *time.Time `json:"due_date"`
	Completed *bool      `json:"completed"`
}

func (um *UpdateMilestone) Validate(validate *validator.Validate) error {
	um.Name = core.CleanString(um.Name)
	return validate.Struct(um)
}

// ActivityFilter narrows contributions & communications queries; empty fields are ignored.
type ActivityFilter struct {
	CourseID  string
	GroupID   string
	StudentID string
}

// CourseFilter restricts courses to what a user can see; empty fields are ignored.
type CourseFilter struct {
	InstructorID string // courses taught by
	StudentID    string // courses with a group the student belongs to
	ActiveOnly   bool
}
