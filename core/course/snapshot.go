package course

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/kikundi/core/feedback"
)

// Snapshot materializes the activity of every group of the course as of `now`.
func (svc *Service) Snapshot(ctx context.Context, courseID string, now time.Time) (feedback.Snapshot, error) {
	if _, err := svc.repo.GetCourse(ctx, GetFilter{ID: courseID}); err != nil {
		return feedback.Snapshot{}, err
	}
	groups, err := svc.repo.QueryGroups(ctx, GroupFilter{CourseID: courseID})
	if err != nil {
		return feedback.Snapshot{}, errors.Wrap(err, "querying groups")
	}
	return svc.snapshot(ctx, courseID, groups, ActivityFilter{CourseID: courseID}, now)
}

// GroupSnapshot materializes a single group.
func (svc *Service) GroupSnapshot(ctx context.Context, g Group, now time.Time) (feedback.Snapshot, error) {
	return svc.snapshot(ctx, g.CourseID, []Group{g}, ActivityFilter{GroupID: g.ID}, now)
}

// StudentSnapshot materializes every group the student belongs to, across courses.
func (svc *Service) StudentSnapshot(ctx context.Context, studentID string, now time.Time) (feedback.Snapshot, error) {
	groups, err := svc.repo.QueryGroups(ctx, GroupFilter{StudentID: studentID})
	if err != nil {
		return feedback.Snapshot{}, errors.Wrap(err, "querying groups")
	}

	snap := feedback.Snapshot{TakenAt: now}
	for _, g := range groups {
		gs, err := svc.GroupSnapshot(ctx, g, now)
		if err != nil {
			return feedback.Snapshot{}, err
		}
		snap.Groups = append(snap.Groups, gs.Groups...)
		snap.Contributions = append(snap.Contributions, gs.Contributions...)
		snap.Communications = append(snap.Communications, gs.Communications...)
		snap.Milestones = append(snap.Milestones, gs.Milestones...)
	}
	return snap, nil
}

func (svc *Service) snapshot(ctx context.Context, courseID string, groups []Group, filter ActivityFilter, now time.Time) (feedback.Snapshot, error) {
	contribs, err := svc.repo.QueryContributions(ctx, filter)
	if err != nil {
		return feedback.Snapshot{}, errors.Wrap(err, "querying contributions")
	}
	comms, err := svc.repo.QueryCommunications(ctx, filter)
	if err != nil {
		return feedback.Snapshot{}, errors.Wrap(err, "querying communications")
	}
	milestones, err := svc.repo.QueryMilestones(ctx, filter)
	if err != nil {
		return feedback.Snapshot{}, errors.Wrap(err, "querying milestones")
	}
	return BuildSnapshot(courseID, now, svc.policy.DueSoonWindow, groups, contribs, comms, milestones), nil
}

// BuildSnapshot converts stored records to classifier records. Milestone statuses are derived at `now`;
// stored tones are normalized and untagged messages get an inferred tone.
func BuildSnapshot(
	courseID string,
	now time.Time,
	dueSoonWindow time.Duration,
	groups []Group,
	contribs []Contribution,
	comms []Communication,
	milestones []Milestone,
) feedback.Snapshot {
	snap := feedback.Snapshot{
		CourseID:       courseID,
		TakenAt:        now,
		Groups:         make([]feedback.Group, 0, len(groups)),
		Contributions:  make([]feedback.ContributionRecord, 0, len(contribs)),
		Communications: make([]feedback.CommunicationRecord, 0, len(comms)),
		Milestones:     make([]feedback.MilestoneRecord, 0, len(milestones)),
	}

	for _, g := range groups {
		fg := feedback.Group{ID: g.ID, Name: g.Name, Members: make([]feedback.Member, 0, len(g.Members))}
		for _, m := range g.Members {
			fg.Members = append(fg.Members, feedback.Member{ID: m.StudentID, Name: m.Name})
		}
		snap.Groups = append(snap.Groups, fg)
	}
	for _, c := range contribs {
		snap.Contributions = append(snap.Contributions, feedback.ContributionRecord{
			StudentID: c.StudentID,
			GroupID:   c.GroupID,
			Task:      c.Task,
			Hours:     c.Hours,
			Timestamp: c.LoggedAt,
		})
	}
	for _, c := range comms {
		tone := feedback.ParseTone(string(c.Tone))
		if tone == feedback.ToneUnknown && c.Message != "" {
			tone = InferTone(c.Message)
		}
		snap.Communications = append(snap.Communications, feedback.CommunicationRecord{
			StudentID: c.StudentID,
			GroupID:   c.GroupID,
			Message:   c.Message,
			Tone:      tone,
			Timestamp: c.PostedAt,
		})
	}
	for _, m := range milestones {
		snap.Milestones = append(snap.Milestones, feedback.MilestoneRecord{
			GroupID: m.GroupID,
			Name:    m.Name,
			DueDate: m.DueDate,
			Status:  feedback.MilestoneStatusAt(m.DueDate, m.Completed(), now, dueSoonWindow),
		})
	}
	return snap
}
