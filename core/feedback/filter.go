package feedback

// DefaultInstructorSeverities are the severities instructors see unless they ask for more.
var DefaultInstructorSeverities = []Severity{SeverityCritical, SeverityHigh}

// FilterInstructorAlerts keeps the alerts whose severity is in `severities`
// (DefaultInstructorSeverities when none are given). Order is preserved.
func FilterInstructorAlerts(alerts []GroupAlert, severities ...Severity) []GroupAlert {
	if len(severities) == 0 {
		severities = DefaultInstructorSeverities
	}
	keep := make(map[Severity]bool, len(severities))
	for _, s := range severities {
		keep[s] = true
	}

	filtered := make([]GroupAlert, 0, len(alerts))
	for _, a := range alerts {
		if keep[a.Severity] {
			filtered = append(filtered, a)
		}
	}
	return filtered
}
