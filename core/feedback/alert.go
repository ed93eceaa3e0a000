package feedback

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

var (
	Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityWarning, SeverityInfo}

	severityRanks = map[Severity]int{
		SeverityCritical: 5,
		SeverityHigh:     4,
		SeverityMedium:   3,
		SeverityWarning:  2,
		SeverityInfo:     1,
	}
)

// ParseSeverity maps a raw label to a Severity.
func ParseSeverity(s string) (Severity, bool) {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	_, ok := severityRanks[sev]
	return sev, ok
}

// Rank orders severities; unknown severities rank 0.
func (s Severity) Rank() int { return severityRanks[s] }

// Condition identifies one group-level rule that holds.
type Condition string

const (
	ConditionConcentration     Condition = "concentration"
	ConditionInactiveMember    Condition = "inactive_member"
	ConditionOverdueMilestone  Condition = "overdue_milestone"
	ConditionWorkloadImbalance Condition = "workload_imbalance"
	ConditionConcerningTone    Condition = "concerning_tone"
)

type HealthStatus string

const (
	HealthThriving HealthStatus = "thriving"
	HealthHealthy  HealthStatus = "healthy"
	HealthAtRisk   HealthStatus = "at_risk"
	HealthCritical HealthStatus = "critical"
	HealthUnknown  HealthStatus = "unknown"
)

// HealthOf maps a group severity to the status shown on dashboards.
func HealthOf(s Severity) HealthStatus {
	switch s {
	case SeverityCritical:
		return HealthCritical
	case SeverityHigh:
		return HealthAtRisk
	case SeverityMedium, SeverityWarning:
		return HealthHealthy
	case SeverityInfo:
		return HealthThriving
	default:
		return HealthUnknown
	}
}

type (
	GroupAlert struct {
		GroupID      string      `json:"group_id"`
		GroupName    string      `json:"group_name"`
		Severity     Severity    `json:"severity"`
		Reason       string      `json:"reason"`
		Intervention string      `json:"intervention,omitempty"`
		Conditions   []Condition `json:"conditions,omitempty"`
	}

	GroupVerdict struct {
		GroupID          string       `json:"group_id"`
		GroupName        string       `json:"group_name"`
		Severity         Severity     `json:"severity,omitempty"`
		Health           HealthStatus `json:"health"`
		Alerts           []GroupAlert `json:"alerts"`
		Conditions       []Condition  `json:"conditions"`
		Unavailable      []string     `json:"unavailable,omitempty"`
		InsufficientData bool         `json:"insufficient_data,omitempty"`
	}

	finding struct {
		condition    Condition
		severity     Severity
		reason       string
		intervention string
	}
)

// EvaluateGroup runs the group rules. Concentration alone is critical; `p.EscalationCount` or more of
// the remaining conditions collapse into a single critical alert; otherwise each condition keeps its own
// severity. A group with no condition gets one info entry.
func EvaluateGroup(g GroupSummary, p Policy) GroupVerdict {
	v := GroupVerdict{
		GroupID:    g.GroupID,
		GroupName:  g.Name,
		Alerts:     make([]GroupAlert, 0),
		Conditions: make([]Condition, 0),
	}
	if len(g.Members) == 0 {
		v.InsufficientData = true
		v.Health = HealthUnknown
		return v
	}

	var others []finding
	concentration, hasConcentration := concentrationFinding(g, p)
	if f, ok := inactiveFinding(g); ok {
		others = append(others, f)
	}
	if len(g.Milestones) == 0 {
		v.Unavailable = append(v.Unavailable, string(ConditionOverdueMilestone))
	} else if f, ok := overdueFinding(g); ok {
		others = append(others, f)
	}
	if f, ok := imbalanceFinding(g, p); ok {
		others = append(others, f)
	}
	if g.DominantTone == ToneUnknown {
		v.Unavailable = append(v.Unavailable, string(ConditionConcerningTone))
	} else if g.DominantTone.Concerning() {
		others = append(others, finding{
			condition:    ConditionConcerningTone,
			severity:     SeverityWarning,
			reason:       fmt.Sprintf("Team communication in %s is predominantly %s", g.Name, g.DominantTone),
			intervention: "Schedule a team sync to reset communication norms",
		})
	}

	if hasConcentration {
		v.Conditions = append(v.Conditions, concentration.condition)
		v.Alerts = append(v.Alerts, g.alert(concentration))
	}
	for _, f := range others {
		v.Conditions = append(v.Conditions, f.condition)
	}

	if len(others) >= p.EscalationCount {
		v.Alerts = append(v.Alerts, g.composite(others))
	} else {
		for _, f := range others {
			v.Alerts = append(v.Alerts, g.alert(f))
		}
	}

	if len(v.Alerts) == 0 {
		v.Alerts = append(v.Alerts, GroupAlert{
			GroupID:   g.GroupID,
			GroupName: g.Name,
			Severity:  SeverityInfo,
			Reason:    fmt.Sprintf("%s is on track", g.Name),
		})
	}

	sort.SliceStable(v.Alerts, func(i, j int) bool {
		return v.Alerts[i].Severity.Rank() > v.Alerts[j].Severity.Rank()
	})
	v.Severity = v.Alerts[0].Severity
	v.Health = HealthOf(v.Severity)
	return v
}

func (g GroupSummary) alert(f finding) GroupAlert {
	return GroupAlert{
		GroupID:      g.GroupID,
		GroupName:    g.Name,
		Severity:     f.severity,
		Reason:       f.reason,
		Intervention: f.intervention,
		Conditions:   []Condition{f.condition},
	}
}

func (g GroupSummary) composite(fs []finding) GroupAlert {
	reasons := make([]string, 0, len(fs))
	conds := make([]Condition, 0, len(fs))
	for _, f := range fs {
		reasons = append(reasons, f.reason)
		conds = append(conds, f.condition)
	}
	return GroupAlert{
		GroupID:      g.GroupID,
		GroupName:    g.Name,
		Severity:     SeverityCritical,
		Reason:       "Multiple issues detected: " + strings.Join(reasons, "; "),
		Intervention: "Review the group immediately and schedule a check-in with all members",
		Conditions:   conds,
	}
}

func concentrationFinding(g GroupSummary, p Policy) (finding, bool) {
	if g.TotalHours <= 0 || g.MaxMemberShare <= p.ConcentrationShare {
		return finding{}, false
	}
	top, _ := g.Member(g.TopContributor)
	return finding{
		condition: ConditionConcentration,
		severity:  SeverityCritical,
		reason: fmt.Sprintf("%s is doing %s%% of the work (%s of %s hours)",
			top.Name, formatHours(math.Round(g.MaxMemberShare*1000)/10), formatHours(top.TotalHours), formatHours(g.TotalHours)),
		intervention: "Redistribute tasks so the workload is shared more evenly",
	}, true
}

func inactiveFinding(g GroupSummary) (finding, bool) {
	if g.InactiveMemberCount == 0 {
		return finding{}, false
	}
	if g.FullyInactive {
		return finding{
			condition:    ConditionInactiveMember,
			severity:     SeverityHigh,
			reason:       fmt.Sprintf("No member of %s has logged any hours (fully inactive)", g.Name),
			intervention: "Contact the whole group and confirm the project has started",
		}, true
	}

	var names []string
	for _, m := range g.Members {
		if m.TotalHours == 0 {
			names = append(names, m.Name)
		}
	}
	verb := "has"
	if len(names) > 1 {
		verb = "have"
	}
	return finding{
		condition:    ConditionInactiveMember,
		severity:     SeverityHigh,
		reason:       fmt.Sprintf("%s %s not contributed yet", strings.Join(names, ", "), verb),
		intervention: "Reach out to inactive members and agree on task assignments",
	}, true
}

func overdueFinding(g GroupSummary) (finding, bool) {
	var overdue []string
	for _, m := range g.Milestones {
		if m.Status == MilestoneOverdue {
			overdue = append(overdue, fmt.Sprintf("%q (due %s)", m.Name, m.DueDate.Format(dateLayout)))
		}
	}
	if len(overdue) == 0 {
		return finding{}, false
	}
	return finding{
		condition:    ConditionOverdueMilestone,
		severity:     SeverityMedium,
		reason:       "Overdue milestone: " + strings.Join(overdue, ", "),
		intervention: "Review the milestone plan with the group and agree on a catch-up date",
	}, true
}

// imbalanceFinding flags members who contributed something but less than the workload ratio of the
// group average. Zero-hour members are covered by the inactive member rule.
func imbalanceFinding(g GroupSummary, p Policy) (finding, bool) {
	if g.AverageHours <= 0 {
		return finding{}, false
	}
	threshold := p.WorkloadRatio * g.AverageHours

	var low []string
	for _, m := range g.Members {
		if m.TotalHours > 0 && m.TotalHours < threshold {
			low = append(low, fmt.Sprintf("%s (%s h)", m.Name, formatHours(m.TotalHours)))
		}
	}
	if len(low) == 0 {
		return finding{}, false
	}
	return finding{
		condition: ConditionWorkloadImbalance,
		severity:  SeverityMedium,
		reason: fmt.Sprintf("Workload imbalance: %s below %s of the group average of %s hours",
			strings.Join(low, ", "), formatHours(p.WorkloadRatio*100)+"%", formatHours(g.AverageHours)),
		intervention: "Rebalance task assignments within the group",
	}, true
}
