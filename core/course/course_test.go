package course

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/kikundi/core"
	"github.com/trezcool/kikundi/core/feedback"
)

func TestInferTone(t *testing.T) {
	tests := []struct {
		msg  string
		want feedback.Tone
	}{
		{msg: "Need database schema ASAP", want: feedback.ToneUrgent},
		{msg: "The deadline is tomorrow", want: feedback.ToneUrgent},
		{msg: "You need to push your part today", want: feedback.ToneDirect},
		{msg: "Why haven't you replied? Urgent!", want: feedback.ToneDirect},
		{msg: "Done!!", want: feedback.ToneDirect},
		{msg: "Great work, thanks!", want: feedback.TonePositive},
		{msg: "Schema done but backend might need tweaks", want: feedback.ToneNeutral},
		{msg: "", want: feedback.ToneNeutral},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.want, InferTone(tt.msg))
		})
	}
}

func TestBuildSnapshot(t *testing.T) {
	now := time.Date(2024, 12, 14, 12, 0, 0, 0, time.UTC)
	done := now.Add(-48 * time.Hour)

	groups := []Group{{
		ID: "g1", CourseID: "c1", Name: "Web Team",
		Members: []Member{{StudentID: "alice", Name: "Alice"}, {StudentID: "bob", Name: "Bob"}},
	}}
	contribs := []Contribution{
		{StudentID: "alice", GroupID: "g1", Task: "Frontend", Hours: 3, LoggedAt: now.Add(-time.Hour)},
	}
	comms := []Communication{
		{StudentID: "alice", GroupID: "g1", Message: "Thanks Bob", Tone: "supportive", PostedAt: now},
		{StudentID: "bob", GroupID: "g1", Message: "Send it ASAP", PostedAt: now},
	}
	milestones := []Milestone{
		{GroupID: "g1", Name: "Design", DueDate: now.Add(-72 * time.Hour), CompletedAt: &done},
		{GroupID: "g1", Name: "Core", DueDate: now.Add(-time.Hour)},
		{GroupID: "g1", Name: "QA", DueDate: now.Add(24 * time.Hour)},
		{GroupID: "g1", Name: "Release", DueDate: now.Add(10 * 24 * time.Hour)},
	}

	snap := BuildSnapshot("c1", now, 72*time.Hour, groups, contribs, comms, milestones)

	assert.Equal(t, "c1", snap.CourseID)
	assert.Equal(t, now, snap.TakenAt)
	require.Len(t, snap.Groups, 1)
	assert.Equal(t, []feedback.Member{{ID: "alice", Name: "Alice"}, {ID: "bob", Name: "Bob"}}, snap.Groups[0].Members)
	require.Len(t, snap.Contributions, 1)
	assert.Equal(t, 3.0, snap.Contributions[0].Hours)

	require.Len(t, snap.Communications, 2)
	assert.Equal(t, feedback.TonePositive, snap.Communications[0].Tone)
	assert.Equal(t, feedback.ToneUrgent, snap.Communications[1].Tone, "untagged messages get an inferred tone")

	statuses := make([]feedback.MilestoneStatus, 0, len(snap.Milestones))
	for _, m := range snap.Milestones {
		statuses = append(statuses, m.Status)
	}
	assert.Equal(t, []feedback.MilestoneStatus{
		feedback.MilestoneComplete, feedback.MilestoneOverdue, feedback.MilestoneDueSoon, feedback.MilestoneUpcoming,
	}, statuses)

	gs, ok := feedback.SummarizeGroup(snap, "g1")
	require.True(t, ok)
	assert.Equal(t, 1, gs.InactiveMemberCount)
}

func TestBuildSnapshot_empty(t *testing.T) {
	snap := BuildSnapshot("c1", time.Now(), time.Hour, nil, nil, nil, nil)
	assert.NotNil(t, snap.Groups)
	assert.NotNil(t, snap.Contributions)

	report := feedback.Evaluate(snap, feedback.DefaultPolicy())
	assert.Empty(t, report.Groups)
	assert.Empty(t, report.InstructorAlerts)
}

func TestGroup_HasMember(t *testing.T) {
	g := Group{Members: []Member{{StudentID: "a"}}}
	assert.True(t, g.HasMember("a"))
	assert.False(t, g.HasMember("b"))
}

func TestNewCommunication_validation(t *testing.T) {
	validate, translator := core.NewValidation(RegisterValidators)

	nc := NewCommunication{Message: "  hello  ", Tone: " Supportive "}
	require.NoError(t, nc.Validate(validate))
	assert.Equal(t, "hello", nc.Message)
	assert.Equal(t, "supportive", nc.Tone)

	nc = NewCommunication{Message: "hello", Tone: "sarcastic"}
	err := nc.Validate(validate)
	require.Error(t, err)
	assert.Equal(t, map[string]string{"tone": toneText}, fieldErrors(t, err, translator))

	nc = NewCommunication{}
	err = nc.Validate(validate)
	require.Error(t, err)
	assert.Equal(t, map[string]string{"message": "this field is required"}, fieldErrors(t, err, translator))
}

func TestNewContribution_validation(t *testing.T) {
	validate, translator := core.NewValidation(RegisterValidators)

	nc := NewContribution{GroupID: "g1", Task: "Backend", Hours: 2.5}
	assert.NoError(t, nc.Validate(validate))

	nc = NewContribution{GroupID: "g1", Task: "Backend", Hours: -1}
	err := nc.Validate(validate)
	require.Error(t, err)
	assert.Contains(t, fieldErrors(t, err, translator), "hours")
}
