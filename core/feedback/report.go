package feedback

import (
	"fmt"
	"time"
)

type (
	Recommendation struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Target      string `json:"target"`
		Impact      string `json:"impact"`
	}

	CourseSummary struct {
		TotalGroups          int     `json:"total_groups"`
		Thriving             int     `json:"thriving"`
		Healthy              int     `json:"healthy"`
		AtRisk               int     `json:"at_risk"`
		Critical             int     `json:"critical"`
		InsufficientData     int     `json:"insufficient_data"`
		InstructorAlerts     int     `json:"instructor_alerts"`
		Recommendations      int     `json:"recommendations"`
		AverageParticipation float64 `json:"average_participation"`
	}

	GroupReport struct {
		Summary     GroupSummary        `json:"summary"`
		Verdict     GroupVerdict        `json:"verdict"`
		Students    []StudentEvaluation `json:"students"`
		Rebalancing []Suggestion        `json:"rebalancing"`
	}

	Report struct {
		CourseID         string           `json:"course_id"`
		GeneratedAt      time.Time        `json:"generated_at"`
		Policy           Policy           `json:"policy"`
		Groups           []GroupReport    `json:"groups"`
		InstructorAlerts []GroupAlert     `json:"instructor_alerts"`
		Recommendations  []Recommendation `json:"recommendations"`
		Summary          CourseSummary    `json:"summary"`
	}
)

// Evaluate runs the whole pipeline over a course snapshot. `severities` widen the instructor filter.
func Evaluate(s Snapshot, p Policy, severities ...Severity) Report {
	r := Report{
		CourseID:    s.CourseID,
		GeneratedAt: s.TakenAt,
		Policy:      p,
		Groups:      make([]GroupReport, 0, len(s.Groups)),
	}

	var alerts []GroupAlert
	for _, gs := range SummarizeGroups(s) {
		gr := analyze(s, gs, p)
		alerts = append(alerts, gr.Verdict.Alerts...)
		r.Groups = append(r.Groups, gr)
	}

	r.InstructorAlerts = FilterInstructorAlerts(alerts, severities...)
	r.Recommendations = Recommend(r.Groups, p)
	r.Summary = summarizeCourse(r)
	return r
}

// AnalyzeGroup evaluates a single group of the snapshot.
func AnalyzeGroup(s Snapshot, groupID string, p Policy) (GroupReport, bool) {
	gs, ok := SummarizeGroup(s, groupID)
	if !ok {
		return GroupReport{}, false
	}
	return analyze(s, gs, p), true
}

// StudentNudges evaluates `studentID` in every snapshot group they belong to. A student found in no
// group yields a single evaluation marked as insufficient data.
func StudentNudges(s Snapshot, studentID string, p Policy) []StudentEvaluation {
	var evals []StudentEvaluation
	for _, gs := range SummarizeGroups(s) {
		st, ok := gs.Member(studentID)
		if !ok {
			continue
		}
		evals = append(evals, evaluateMember(s, gs, st, p))
	}
	if len(evals) == 0 {
		return []StudentEvaluation{{StudentID: studentID, Nudges: make([]Nudge, 0), InsufficientData: true}}
	}
	return evals
}

func analyze(s Snapshot, gs GroupSummary, p Policy) GroupReport {
	gr := GroupReport{
		Summary:     gs,
		Verdict:     EvaluateGroup(gs, p),
		Students:    make([]StudentEvaluation, 0, len(gs.Members)),
		Rebalancing: SuggestRebalancing(gs, p),
	}
	for _, st := range gs.Members {
		gr.Students = append(gr.Students, evaluateMember(s, gs, st, p))
	}
	return gr
}

func evaluateMember(s Snapshot, gs GroupSummary, st StudentSummary, p Policy) StudentEvaluation {
	return EvaluateStudent(st, gs, s.CommunicationsOf(st.StudentID, gs.GroupID), NearestMilestone(gs.Milestones), p)
}

// Recommend derives instructor recommendations from evaluated groups.
func Recommend(groups []GroupReport, p Policy) []Recommendation {
	recs := make([]Recommendation, 0)
	var participation float64
	var counted int
	for _, g := range groups {
		switch g.Verdict.Health {
		case HealthCritical, HealthAtRisk:
			recs = append(recs, Recommendation{
				Title:       "Support " + g.Summary.Name,
				Description: fmt.Sprintf("%s is %s. Consider scheduling a check-in or providing additional resources.", g.Summary.Name, healthLabel(g.Verdict.Health)),
				Target:      g.Summary.Name,
				Impact:      "High - could improve the group's success",
			})
		}
		if !g.Verdict.InsufficientData {
			participation += g.Summary.ParticipationRate
			counted++
		}
	}
	if counted > 0 && participation/float64(counted) < p.ParticipationTarget {
		recs = append(recs, Recommendation{
			Title:       "Course-Wide Engagement",
			Description: "Overall participation is lower than expected. Consider sending a reminder or hosting an office hour.",
			Target:      "Whole class",
			Impact:      "Medium - could boost overall engagement",
		})
	}
	return recs
}

func healthLabel(h HealthStatus) string {
	if h == HealthAtRisk {
		return "at risk"
	}
	return string(h)
}

func summarizeCourse(r Report) CourseSummary {
	cs := CourseSummary{
		TotalGroups:      len(r.Groups),
		InstructorAlerts: len(r.InstructorAlerts),
		Recommendations:  len(r.Recommendations),
	}
	var participation float64
	var counted int
	for _, g := range r.Groups {
		switch g.Verdict.Health {
		case HealthThriving:
			cs.Thriving++
		case HealthHealthy:
			cs.Healthy++
		case HealthAtRisk:
			cs.AtRisk++
		case HealthCritical:
			cs.Critical++
		default:
			cs.InsufficientData++
			continue
		}
		participation += g.Summary.ParticipationRate
		counted++
	}
	if counted > 0 {
		cs.AverageParticipation = participation / float64(counted)
	}
	return cs
}
