// Package feedback turns a snapshot of group project activity into per-student nudges, per-group alerts
// and an instructor alert list. Every function in this package is pure: it reads the snapshot it is given
// and never performs I/O.
package feedback

import (
	"strings"
	"time"
)

// Tone is the label attached to a CommunicationRecord by upstream analysis.
type Tone string

const (
	ToneUnknown    Tone = ""
	ToneNeutral    Tone = "neutral"
	TonePositive   Tone = "positive"
	ToneUrgent     Tone = "urgent"
	ToneDirect     Tone = "direct"
	ToneAggressive Tone = "aggressive"
)

var (
	Tones = []Tone{ToneNeutral, TonePositive, ToneUrgent, ToneDirect, ToneAggressive}

	// toneRank breaks ties when picking a dominant tone: the more concerning tone wins.
	toneRank = map[Tone]int{
		TonePositive:   1,
		ToneNeutral:    2,
		ToneUrgent:     3,
		ToneDirect:     4,
		ToneAggressive: 5,
	}

	toneAliases = map[string]Tone{
		"supportive":    TonePositive,
		"collaborative": TonePositive,
		"informative":   ToneNeutral,
	}
)

// ParseTone maps a raw label to a Tone. Unknown labels map to ToneUnknown.
func ParseTone(s string) Tone {
	s = strings.ToLower(strings.TrimSpace(s))
	if alias, ok := toneAliases[s]; ok {
		return alias
	}
	if t := Tone(s); t.Valid() {
		return t
	}
	return ToneUnknown
}

// UnmarshalText normalizes labels read from JSON or YAML snapshots.
func (t *Tone) UnmarshalText(b []byte) error {
	*t = ParseTone(string(b))
	return nil
}

func (t Tone) Valid() bool {
	_, ok := toneRank[t]
	return ok
}

// Harsh reports whether the tone is aggressive or direct.
func (t Tone) Harsh() bool {
	return t == ToneAggressive || t == ToneDirect
}

// Concerning reports whether the tone should raise a group warning.
func (t Tone) Concerning() bool {
	return t == ToneUrgent || t.Harsh()
}

type MilestoneStatus string

const (
	MilestoneUpcoming MilestoneStatus = "upcoming"
	MilestoneDueSoon  MilestoneStatus = "due_soon"
	MilestoneOverdue  MilestoneStatus = "overdue"
	MilestoneComplete MilestoneStatus = "complete"
)

// MilestoneStatusAt derives the status of a milestone due at `due` as seen at `now`.
func MilestoneStatusAt(due time.Time, completed bool, now time.Time, dueSoonWindow time.Duration) MilestoneStatus {
	switch {
	case completed:
		return MilestoneComplete
	case due.Before(now):
		return MilestoneOverdue
	case !due.After(now.Add(dueSoonWindow)):
		return MilestoneDueSoon
	default:
		return MilestoneUpcoming
	}
}

type (
	Member struct {
		ID   string `json:"id" yaml:"id"`
		Name string `json:"name" yaml:"name"`
	}

	// Group is a project group roster. Members with no records still count towards averages.
	Group struct {
		ID      string   `json:"id" yaml:"id"`
		Name    string   `json:"name" yaml:"name"`
		Members []Member `json:"members" yaml:"members"`
	}

	ContributionRecord struct {
		StudentID string    `json:"student_id" yaml:"student_id"`
		GroupID   string    `json:"group_id" yaml:"group_id"`
		Task      string    `json:"task" yaml:"task"`
		Hours     float64   `json:"hours" yaml:"hours"`
		Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	}

	CommunicationRecord struct {
		StudentID string    `json:"student_id" yaml:"student_id"`
		GroupID   string    `json:"group_id" yaml:"group_id"`
		Message   string    `json:"message,omitempty" yaml:"message"`
		Tone      Tone      `json:"tone" yaml:"tone"`
		Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	}

	MilestoneRecord struct {
		GroupID string          `json:"group_id" yaml:"group_id"`
		Name    string          `json:"name" yaml:"name"`
		DueDate time.Time       `json:"due_date" yaml:"due_date"`
		Status  MilestoneStatus `json:"status" yaml:"status"`
	}

	// Snapshot is everything the classifier needs for one course, materialized by the caller.
	// TakenAt is the evaluation clock; nothing in this package reads the wall clock.
	Snapshot struct {
		CourseID       string                `json:"course_id" yaml:"course_id"`
		TakenAt        time.Time             `json:"taken_at" yaml:"taken_at"`
		Groups         []Group               `json:"groups" yaml:"groups"`
		Contributions  []ContributionRecord  `json:"contributions" yaml:"contributions"`
		Communications []CommunicationRecord `json:"communications" yaml:"communications"`
		Milestones     []MilestoneRecord     `json:"milestones" yaml:"milestones"`
	}
)

// Group returns the group with the given ID.
func (s Snapshot) Group(id string) (Group, bool) {
	for _, g := range s.Groups {
		if g.ID == id {
			return g, true
		}
	}
	return Group{}, false
}

// CommunicationsOf returns the communications `studentID` posted in `groupID`, in input order.
func (s Snapshot) CommunicationsOf(studentID, groupID string) []CommunicationRecord {
	var comms []CommunicationRecord
	for _, c := range s.Communications {
		if c.StudentID == studentID && c.GroupID == groupID {
			comms = append(comms, c)
		}
	}
	return comms
}

// NearestMilestone returns the non-complete milestone with the earliest due date, or nil.
// Ties keep input order.
func NearestMilestone(milestones []MilestoneRecord) *MilestoneRecord {
	var nearest *MilestoneRecord
	for i := range milestones {
		m := milestones[i]
		if m.Status == MilestoneComplete {
			continue
		}
		if nearest == nil || m.DueDate.Before(nearest.DueDate) {
			nearest = &m
		}
	}
	return nearest
}
