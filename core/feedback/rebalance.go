package feedback

import (
	"fmt"
	"sort"
)

type (
	Suggestion struct {
		From      string  `json:"from"`
		FromName  string  `json:"from_name"`
		FromHours float64 `json:"from_hours"`
		To        string  `json:"to"`
		ToName    string  `json:"to_name"`
		ToHours   float64 `json:"to_hours"`
		Message   string  `json:"message"`
		Rationale string  `json:"rationale"`
	}

	// GroupMetrics is the per-group analysis shown on the group page.
	GroupMetrics struct {
		TotalHours        float64            `json:"total_hours"`
		AverageHours      float64            `json:"avg_hours"`
		ParticipationRate float64            `json:"participation_rate"`
		IndividualHours   map[string]float64 `json:"individual_hours"`
	}
)

func MetricsOf(g GroupSummary) GroupMetrics {
	m := GroupMetrics{
		TotalHours:        g.TotalHours,
		AverageHours:      g.AverageHours,
		ParticipationRate: g.ParticipationRate,
		IndividualHours:   make(map[string]float64, len(g.Members)),
	}
	for _, st := range g.Members {
		m.IndividualHours[st.StudentID] = st.TotalHours
	}
	return m
}

// SuggestRebalancing pairs overloaded members (most hours first) with underutilized members
// (fewest hours first). Ties keep roster order.
func SuggestRebalancing(g GroupSummary, p Policy) []Suggestion {
	var over, under []StudentSummary
	for _, m := range g.Members {
		switch {
		case m.TotalHours > p.OverloadedHours:
			over = append(over, m)
		case m.TotalHours < p.UnderutilizedHours:
			under = append(under, m)
		}
	}
	sort.SliceStable(over, func(i, j int) bool { return over[i].TotalHours > over[j].TotalHours })
	sort.SliceStable(under, func(i, j int) bool { return under[i].TotalHours < under[j].TotalHours })

	n := len(over)
	if len(under) < n {
		n = len(under)
	}
	suggestions := make([]Suggestion, 0, n)
	for i := 0; i < n; i++ {
		from, to := over[i], under[i]
		suggestions = append(suggestions, Suggestion{
			From:      from.StudentID,
			FromName:  from.Name,
			FromHours: from.TotalHours,
			To:        to.StudentID,
			ToName:    to.Name,
			ToHours:   to.TotalHours,
			Message:   fmt.Sprintf("Move some tasks from %s to %s for better balance.", from.Name, to.Name),
			Rationale: "Improves team equity and engagement",
		})
	}
	return suggestions
}
