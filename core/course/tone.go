package course

import (
	"strings"

	"github.com/trezcool/kikundi/core/feedback"
)

var (
	urgentMarkers   = []string{"asap", "urgent", "immediately", "deadline", "right now", "hurry", "overdue"}
	directMarkers   = []string{"you need to", "you must", "just do", "do it now", "why haven't you", "why didn't you", "!!"}
	positiveMarkers = []string{"thanks", "thank you", "great", "awesome", "nice work", "good job", "well done", "appreciate", "looks good"}
)

// InferTone labels an untagged message with a keyword heuristic.
// Directive phrasing outranks urgency, which outranks praise; anything else is neutral.
func InferTone(message string) feedback.Tone {
	msg := strings.ToLower(message)
	switch {
	case containsAny(msg, directMarkers):
		return feedback.ToneDirect
	case containsAny(msg, urgentMarkers):
		return feedback.ToneUrgent
	case containsAny(msg, positiveMarkers):
		return feedback.TonePositive
	default:
		return feedback.ToneNeutral
	}
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
