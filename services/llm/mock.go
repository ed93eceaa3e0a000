package llmsvc

import (
	"context"
	"strings"
)

// MockProvider answers from prompt keywords. Used in DEV & tests.
type MockProvider struct{}

func (MockProvider) Name() string { return "mock" }

func (MockProvider) Generate(_ context.Context, req Request) (string, error) {
	prompt := strings.ToLower(req.Prompt)
	has := func(words ...string) bool {
		for _, w := range words {
			if strings.Contains(prompt, w) {
				return true
			}
		}
		return false
	}

	switch {
	case has("nudge"):
		switch {
		case has("inactivity"):
			return "It looks like you haven't contributed to your group project in a few days. " +
				"Check in with your team and pick up a task to move things forward.", nil
		case has("workload"):
			return "Your teammates are carrying more of the work right now. " +
				"Offer to take over one of their open tasks this week.", nil
		case has("deadline"):
			return "A milestone is coming up soon. Make sure your part is on track.", nil
		default:
			return "Great work on your recent contributions! Keep up the collaborative effort.", nil
		}
	case has("group", "team"):
		switch {
		case has("imbalance", "concentration"):
			return `{"assessment": "The workload is unevenly distributed across the team.", ` +
				`"recommendations": ["Redistribute open tasks"], "action_items": ["Schedule a team meeting"]}`, nil
		default:
			return `{"assessment": "The team is functioning well with balanced participation.", ` +
				`"recommendations": [], "action_items": []}`, nil
		}
	}
	return "AI-generated insight based on current data and patterns.", nil
}

func (MockProvider) Available(context.Context) bool { return true }
