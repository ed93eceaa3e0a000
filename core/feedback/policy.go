package feedback

import "time"

// Policy holds the tunable thresholds of every rule.
type Policy struct {
	InactivityDays      int           `json:"inactivity_days" mapstructure:"inactivityDays" validate:"min=1"`
	WorkloadRatio       float64       `json:"workload_ratio" mapstructure:"workloadRatio" validate:"gt=0,lte=1"`
	ConcentrationShare  float64       `json:"concentration_share" mapstructure:"concentrationShare" validate:"gt=0,lte=1"`
	PositiveHours       float64       `json:"positive_hours" mapstructure:"positiveHours" validate:"gt=0"`
	EscalationCount     int           `json:"escalation_count" mapstructure:"escalationCount" validate:"min=1"`
	OverloadedHours     float64       `json:"overloaded_hours" mapstructure:"overloadedHours" validate:"gtfield=UnderutilizedHours"`
	UnderutilizedHours  float64       `json:"underutilized_hours" mapstructure:"underutilizedHours" validate:"gte=0"`
	ParticipationTarget float64       `json:"participation_target" mapstructure:"participationTarget" validate:"gte=0,lte=1"`
	DueSoonWindow       time.Duration `json:"due_soon_window" mapstructure:"dueSoonWindow" validate:"gte=0"`
}

func DefaultPolicy() Policy {
	return Policy{
		InactivityDays:      3,
		WorkloadRatio:       0.5,
		ConcentrationShare:  0.6,
		PositiveHours:       5,
		EscalationCount:     2,
		OverloadedHours:     5,
		UnderutilizedHours:  2,
		ParticipationTarget: 0.8,
		DueSoonWindow:       72 * time.Hour,
	}
}
