package feedback

import (
	"math"
	"time"
)

type (
	StudentSummary struct {
		StudentID             string     `json:"student_id"`
		Name                  string     `json:"name"`
		GroupID               string     `json:"group_id"`
		TotalHours            float64    `json:"total_hours"`
		DaysSinceLastActivity int        `json:"days_since_last_activity"`
		HasActivity           bool       `json:"has_activity"`
		LastActivity          *time.Time `json:"last_activity,omitempty"`
		TaskCount             int        `json:"task_count"`
	}

	GroupSummary struct {
		GroupID             string            `json:"group_id"`
		Name                string            `json:"name"`
		Members             []StudentSummary  `json:"members"`
		TotalHours          float64           `json:"total_hours"`
		AverageHours        float64           `json:"average_hours"`
		MaxMemberShare      float64           `json:"max_member_share"`
		TopContributor      string            `json:"top_contributor,omitempty"`
		InactiveMemberCount int               `json:"inactive_member_count"`
		ParticipationRate   float64           `json:"participation_rate"`
		FullyInactive       bool              `json:"fully_inactive"`
		Milestones          []MilestoneRecord `json:"milestones"`
		DominantTone        Tone              `json:"dominant_tone,omitempty"`
	}

	memberKey struct{ group, student string }

	activity struct {
		hours float64
		tasks int
		last  time.Time
	}
)

// Member returns the summary of `studentID` within the group.
func (g GroupSummary) Member(studentID string) (StudentSummary, bool) {
	for _, m := range g.Members {
		if m.StudentID == studentID {
			return m, true
		}
	}
	return StudentSummary{}, false
}

// SummarizeGroups derives one GroupSummary per snapshot group, in snapshot order.
func SummarizeGroups(s Snapshot) []GroupSummary {
	acts := make(map[memberKey]*activity)
	for _, c := range s.Contributions {
		key := memberKey{group: c.GroupID, student: c.StudentID}
		a, ok := acts[key]
		if !ok {
			a = new(activity)
			acts[key] = a
		}
		a.hours += math.Max(c.Hours, 0)
		a.tasks++
		if c.Timestamp.After(a.last) {
			a.last = c.Timestamp
		}
	}

	summaries := make([]GroupSummary, 0, len(s.Groups))
	for _, g := range s.Groups {
		summaries = append(summaries, summarizeGroup(g, acts, s))
	}
	return summaries
}

// SummarizeGroup derives the summary of a single group.
func SummarizeGroup(s Snapshot, groupID string) (GroupSummary, bool) {
	g, ok := s.Group(groupID)
	if !ok {
		return GroupSummary{}, false
	}
	sub := s
	sub.Groups = []Group{g}
	return SummarizeGroups(sub)[0], true
}

func summarizeGroup(g Group, acts map[memberKey]*activity, s Snapshot) GroupSummary {
	gs := GroupSummary{
		GroupID:    g.ID,
		Name:       g.Name,
		Members:    make([]StudentSummary, 0, len(g.Members)),
		Milestones: make([]MilestoneRecord, 0),
	}

	var maxHours float64
	var active int
	for _, m := range g.Members {
		st := StudentSummary{StudentID: m.ID, Name: m.Name, GroupID: g.ID}
		if a, ok := acts[memberKey{group: g.ID, student: m.ID}]; ok {
			last := a.last
			st.TotalHours = a.hours
			st.TaskCount = a.tasks
			st.HasActivity = true
			st.LastActivity = &last
			st.DaysSinceLastActivity = daysBetween(last, s.TakenAt)
		}
		gs.Members = append(gs.Members, st)

		gs.TotalHours += st.TotalHours
		if st.TotalHours > 0 {
			active++
		} else {
			gs.InactiveMemberCount++
		}
		if st.TotalHours > maxHours {
			maxHours = st.TotalHours
			gs.TopContributor = st.StudentID
		}
	}

	if n := len(g.Members); n > 0 {
		gs.AverageHours = gs.TotalHours / float64(n)
		gs.ParticipationRate = float64(active) / float64(n)
		gs.FullyInactive = gs.TotalHours == 0
	}
	if gs.TotalHours > 0 {
		gs.MaxMemberShare = maxHours / gs.TotalHours
	}

	for _, m := range s.Milestones {
		if m.GroupID == g.ID {
			gs.Milestones = append(gs.Milestones, m)
		}
	}
	gs.DominantTone = dominantTone(g.ID, s.Communications)
	return gs
}

// dominantTone returns the most frequent known tone in the group, or ToneUnknown when there is none.
func dominantTone(groupID string, comms []CommunicationRecord) Tone {
	counts := make(map[Tone]int, len(toneRank))
	for _, c := range comms {
		if c.GroupID == groupID && c.Tone.Valid() {
			counts[c.Tone]++
		}
	}

	dominant := ToneUnknown
	for _, t := range Tones {
		n := counts[t]
		if n == 0 {
			continue
		}
		if best := counts[dominant]; n > best || (n == best && toneRank[t] > toneRank[dominant]) {
			dominant = t
		}
	}
	return dominant
}

// daysBetween counts whole days elapsed between `from` and `to`, never negative.
func daysBetween(from, to time.Time) int {
	d := to.Sub(from)
	if d <= 0 {
		return 0
	}
	return int(d / (24 * time.Hour))
}
