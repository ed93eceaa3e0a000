package feedback

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

type NudgeKind string

const (
	NudgeInactivity            NudgeKind = "inactivity"
	NudgeCommunicationTip      NudgeKind = "communication_tip"
	NudgeWorkloadBalance       NudgeKind = "workload_balance"
	NudgePositiveReinforcement NudgeKind = "positive_reinforcement"
	NudgeDeadlineReminder      NudgeKind = "deadline_reminder"
)

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

const dateLayout = "2006-01-02"

type (
	// Nudge is a small suggestion for one student. Message and Action are template prose;
	// the structured fields are what callers should rely on.
	Nudge struct {
		Kind      NudgeKind  `json:"kind"`
		Priority  Priority   `json:"priority"`
		StudentID string     `json:"student_id"`
		Title     string     `json:"title"`
		Message   string     `json:"message"`
		Action    string     `json:"action"`
		Days      int        `json:"days,omitempty"`
		Hours     float64    `json:"hours,omitempty"`
		Milestone string     `json:"milestone,omitempty"`
		DueDate   *time.Time `json:"due_date,omitempty"`
	}

	StudentEvaluation struct {
		StudentID        string   `json:"student_id"`
		GroupID          string   `json:"group_id,omitempty"`
		Nudges           []Nudge  `json:"nudges"`
		Unavailable      []string `json:"unavailable,omitempty"`
		InsufficientData bool     `json:"insufficient_data,omitempty"`
	}
)

// EvaluateStudent runs every nudge rule for one student. `comms` are the student's communications
// in the group and `nearest` the group's nearest open milestone (nil when there is none).
func EvaluateStudent(st StudentSummary, group GroupSummary, comms []CommunicationRecord, nearest *MilestoneRecord, p Policy) StudentEvaluation {
	ev := StudentEvaluation{StudentID: st.StudentID, GroupID: st.GroupID, Nudges: make([]Nudge, 0)}
	if len(group.Members) == 0 || st.StudentID == "" {
		ev.InsufficientData = true
		return ev
	}

	if n, ok := inactivityNudge(st, group, p); ok {
		ev.Nudges = append(ev.Nudges, n)
	}

	if latest, ok := latestCommunication(comms); !ok {
		ev.Unavailable = append(ev.Unavailable, string(NudgeCommunicationTip))
	} else if latest.Tone.Harsh() {
		ev.Nudges = append(ev.Nudges, Nudge{
			Kind:      NudgeCommunicationTip,
			Priority:  PriorityMedium,
			StudentID: st.StudentID,
			Title:     "Communication Tip",
			Message:   fmt.Sprintf("Your recent message came across as quite %s. Try framing it as a question, e.g. \"Could we look at this together?\"", latest.Tone),
			Action:    "Use collaborative language to encourage discussion",
		})
	}

	if group.AverageHours > 0 && st.TotalHours < p.WorkloadRatio*group.AverageHours {
		ev.Nudges = append(ev.Nudges, Nudge{
			Kind:      NudgeWorkloadBalance,
			Priority:  PriorityMedium,
			StudentID: st.StudentID,
			Title:     "Ensure Fair Load",
			Message: fmt.Sprintf("You've contributed %s hours while the group average is %s. Consider taking on an additional task.",
				formatHours(st.TotalHours), formatHours(group.AverageHours)),
			Action: "Discuss workload distribution with your team",
			Hours:  st.TotalHours,
		})
	}

	if st.TotalHours >= p.PositiveHours {
		ev.Nudges = append(ev.Nudges, Nudge{
			Kind:      NudgePositiveReinforcement,
			Priority:  PriorityLow,
			StudentID: st.StudentID,
			Title:     "Great Progress!",
			Message:   fmt.Sprintf("Great work! You've contributed %s hours. Keep the momentum!", formatHours(st.TotalHours)),
			Action:    "Consider documenting your work for the team",
			Hours:     st.TotalHours,
		})
	}

	if nearest == nil {
		ev.Unavailable = append(ev.Unavailable, string(NudgeDeadlineReminder))
	} else if n, ok := deadlineNudge(st, *nearest); ok {
		ev.Nudges = append(ev.Nudges, n)
	}

	return ev
}

func inactivityNudge(st StudentSummary, group GroupSummary, p Policy) (Nudge, bool) {
	n := Nudge{
		Kind:      NudgeInactivity,
		Priority:  PriorityHigh,
		StudentID: st.StudentID,
		Title:     "Time to Contribute!",
	}
	switch {
	case !st.HasActivity:
		n.Message = fmt.Sprintf("You haven't contributed to %s yet. Your team is already working on the project!", group.Name)
		n.Action = "Check with your group about task assignments"
		return n, true
	case st.DaysSinceLastActivity >= p.InactivityDays:
		n.Days = st.DaysSinceLastActivity
		n.Message = fmt.Sprintf("It's been %d days since you last worked on %s. The team might need your help!", st.DaysSinceLastActivity, group.Name)
		n.Action = "Catch up on project progress and rejoin"
		return n, true
	}
	return Nudge{}, false
}

func deadlineNudge(st StudentSummary, m MilestoneRecord) (Nudge, bool) {
	var when string
	var priority Priority
	switch m.Status {
	case MilestoneOverdue:
		when, priority = "was due", PriorityHigh
	case MilestoneDueSoon:
		when, priority = "is due", PriorityMedium
	default:
		return Nudge{}, false
	}
	due := m.DueDate
	return Nudge{
		Kind:      NudgeDeadlineReminder,
		Priority:  priority,
		StudentID: st.StudentID,
		Title:     "Milestone Approaching",
		Message:   fmt.Sprintf("%q %s on %s.", m.Name, when, m.DueDate.Format(dateLayout)),
		Action:    "Check milestone progress and coordinate with your team",
		Milestone: m.Name,
		DueDate:   &due,
	}, true
}

// latestCommunication returns the most recent communication carrying a known tone.
// Equal timestamps resolve to the later record.
func latestCommunication(comms []CommunicationRecord) (CommunicationRecord, bool) {
	var latest CommunicationRecord
	var found bool
	for _, c := range comms {
		if !c.Tone.Valid() {
			continue
		}
		if !found || !c.Timestamp.Before(latest.Timestamp) {
			latest, found = c, true
		}
	}
	return latest, found
}

func formatHours(h float64) string {
	return strconv.FormatFloat(math.Round(h*100)/100, 'f', -1, 64)
}
