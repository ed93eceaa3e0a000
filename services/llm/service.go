package llmsvc

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/kikundi/core"
	"github.com/trezcool/kikundi/core/feedback"
)

const (
	nudgeSystemPrompt = "You are a helpful learning assistant for collaborative education. " +
		"Encourage student engagement and teamwork in a positive, supportive manner."
	groupSystemPrompt = "You are a facilitator for collaborative learning groups. " +
		"Identify issues and suggest constructive interventions."
	alertSystemPrompt = "You write short alerts for instructors managing many project groups. Focus on actionable insights."

	sourceFallback = "fallback"
)

// Assessment is the narrative health assessment of a group.
type Assessment struct {
	Assessment      string   `json:"assessment"`
	Recommendations []string `json:"recommendations"`
	ActionItems     []string `json:"action_items"`
	Source          string   `json:"source"` // provider name, or "fallback"
}

type Service struct {
	provider Provider
	logger   core.Logger
	attempts int
	backoff  time.Duration // first retry delay, doubled on each retry
}

func NewService(provider Provider, logger core.Logger) *Service {
	return &Service{provider: provider, logger: logger, attempts: 3, backoff: time.Second}
}

// New builds the configured provider, falling back to the mock provider when it cannot be created.
func New(ctx context.Context, conf core.LLMConfig, logger core.Logger) *Service {
	provider, err := NewProvider(ctx, conf)
	if err != nil {
		logger.Warn("llm provider unavailable, using mock", err, map[string]interface{}{"provider": conf.Provider})
		provider = MockProvider{}
	}
	return NewService(provider, logger)
}

func (svc *Service) ProviderName() string { return svc.provider.Name() }

func (svc *Service) Healthy(ctx context.Context) bool { return svc.provider.Available(ctx) }

// generate calls the provider, retrying with exponential backoff.
func (svc *Service) generate(ctx context.Context, req Request) (string, error) {
	var lastErr error
	for attempt := 0; attempt < svc.attempts; attempt++ {
		if attempt > 0 {
			backoff := svc.backoff * time.Duration(1<<uint(attempt-1))
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		text, err := svc.provider.Generate(ctx, req)
		if err == nil {
			if text = strings.TrimSpace(text); text != "" {
				return text, nil
			}
			err = errors.New("empty response")
		}
		lastErr = err
		svc.logger.Warn("llm request failed", err, map[string]interface{}{
			"provider": svc.provider.Name(),
			"attempt":  attempt + 1,
		})
	}
	return "", errors.Wrapf(lastErr, "failed after %d attempts", svc.attempts)
}

// RephraseNudge turns a rule nudge into a personal message. The nudge's own message is the fallback.
func (svc *Service) RephraseNudge(ctx context.Context, studentName string, n feedback.Nudge, st feedback.StudentSummary) string {
	var b strings.Builder
	b.WriteString("Generate a friendly, encouraging nudge for a student in a collaborative learning environment.\n\n")
	fmt.Fprintf(&b, "Student: %s\nNudge Type: %s\nSuggestion: %s\n\n", studentName, n.Kind, n.Message)
	b.WriteString("Current Contribution Data:\n")
	fmt.Fprintf(&b, "- Total Hours: %.1f\n- Tasks Logged: %d\n", st.TotalHours, st.TaskCount)
	if st.LastActivity != nil {
		fmt.Fprintf(&b, "- Last Activity: %s\n", st.LastActivity.Format("2006-01-02"))
	} else {
		b.WriteString("- Last Activity: none\n")
	}
	b.WriteString("\nWrite 2-3 supportive sentences with an actionable suggestion. Do not be critical.\n")

	text, err := svc.generate(ctx, Request{System: nudgeSystemPrompt, Prompt: b.String(), MaxTokens: 150, Temperature: 0.7})
	if err != nil {
		svc.logger.Error("rephrasing nudge", err, map[string]interface{}{"kind": n.Kind, "student": n.StudentID})
		return n.Message
	}
	return text
}

// GroupAssessment asks for a JSON assessment of the group; plain text answers become the assessment.
func (svc *Service) GroupAssessment(ctx context.Context, gs feedback.GroupSummary, v feedback.GroupVerdict) Assessment {
	var b strings.Builder
	b.WriteString("Analyze the health of a collaborative learning group and provide recommendations.\n\n")
	fmt.Fprintf(&b, "Group: %s\n\nParticipation Distribution:\n", gs.Name)
	for _, m := range gs.Members {
		fmt.Fprintf(&b, "- %s: %.1f hours\n", m.Name, m.TotalHours)
	}
	if len(v.Alerts) > 0 {
		b.WriteString("\nDetected Issues:\n")
		for _, c := range v.Conditions {
			fmt.Fprintf(&b, "- %s\n", c)
		}
		for _, a := range v.Alerts {
			fmt.Fprintf(&b, "- %s\n", a.Reason)
		}
	}
	b.WriteString("\nReply with JSON with keys: assessment (1-2 sentences), recommendations (list), action_items (list).\n")

	text, err := svc.generate(ctx, Request{System: groupSystemPrompt, Prompt: b.String(), MaxTokens: 400, Temperature: 0.6})
	if err != nil {
		svc.logger.Error("assessing group", err, map[string]interface{}{"group": gs.GroupID})
		return fallbackAssessment(v)
	}

	a := Assessment{Source: svc.provider.Name()}
	if err := json.Unmarshal([]byte(trimCodeFence(text)), &a); err != nil || a.Assessment == "" {
		fb := fallbackAssessment(v)
		a = Assessment{
			Assessment:      text,
			Recommendations: fb.Recommendations,
			ActionItems:     fb.ActionItems,
			Source:          svc.provider.Name(),
		}
	}
	if a.Recommendations == nil {
		a.Recommendations = []string{}
	}
	if a.ActionItems == nil {
		a.ActionItems = []string{}
	}
	return a
}

// InstructorAlert writes a short alert about the group. The alert reason is the fallback.
func (svc *Service) InstructorAlert(ctx context.Context, a feedback.GroupAlert, gs feedback.GroupSummary) string {
	var b strings.Builder
	b.WriteString("Generate a concise alert for an instructor about a collaborative learning group that needs attention.\n\n")
	fmt.Fprintf(&b, "Group: %s\nSeverity: %s\nIssue: %s\n\nKey Metrics:\n", a.GroupName, a.Severity, a.Reason)
	fmt.Fprintf(&b, "- Total Hours: %.1f\n- Max Member Share: %.0f%%\n- Inactive Members: %d\n",
		gs.TotalHours, gs.MaxMemberShare*100, gs.InactiveMemberCount)
	b.WriteString("\nWrite 3-4 sentences: the issue, its impact on learning, and immediate intervention steps.\n")

	text, err := svc.generate(ctx, Request{System: alertSystemPrompt, Prompt: b.String(), MaxTokens: 200, Temperature: 0.6})
	if err != nil {
		svc.logger.Error("writing instructor alert", err, map[string]interface{}{"group": a.GroupID})
		return fmt.Sprintf("%s requires attention: %s", a.GroupName, a.Reason)
	}
	return text
}

func fallbackAssessment(v feedback.GroupVerdict) Assessment {
	a := Assessment{Source: sourceFallback, Recommendations: []string{}, ActionItems: []string{}}
	switch {
	case v.InsufficientData:
		a.Assessment = "There is not enough activity yet to assess this group."
	case v.Health == feedback.HealthCritical || v.Health == feedback.HealthAtRisk:
		a.Assessment = "The group shows signs of imbalance that require attention."
		a.Recommendations = []string{
			"Redistribute workload among team members",
			"Improve team communication patterns",
			"Set clear expectations and deadlines",
		}
		a.ActionItems = []string{
			"Schedule a team synchronization meeting",
			"Review and reassign tasks",
			"Establish a regular check-in schedule",
		}
	default:
		a.Assessment = "The group is functioning well with balanced participation."
	}
	for _, al := range v.Alerts {
		if al.Intervention != "" {
			a.ActionItems = append(a.ActionItems, al.Intervention)
		}
	}
	return a
}

// trimCodeFence strips the ```json fences models like to wrap JSON in.
func trimCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}
