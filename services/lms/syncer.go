package lmssvc

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/kikundi/core"
	"github.com/trezcool/kikundi/core/course"
	"github.com/trezcool/kikundi/core/user"
)

// Result counts what a sync created or refreshed.
type Result struct {
	Courses  int `json:"courses"`
	Students int `json:"students"`
	Groups   int `json:"groups"`
	Members  int `json:"members"`
	Skipped  int `json:"skipped"`
}

type Syncer struct {
	provider Provider
	users    *user.Service
	courses  *course.Service
	logger   core.Logger
}

func NewSyncer(provider Provider, users *user.Service, courses *course.Service, logger core.Logger) *Syncer {
	return &Syncer{provider: provider, users: users, courses: courses, logger: logger}
}

// ResolveInstructor finds the instructor owning synced courses by username or email.
func (s *Syncer) ResolveInstructor(ctx context.Context, ident string) (user.User, error) {
	usr, err := s.users.GetByUsernameOrEmail(ctx, ident)
	if err != nil {
		return user.User{}, errors.Wrapf(err, "finding lms instructor %q", ident)
	}
	if !usr.IsInstructor() {
		return user.User{}, errors.Errorf("lms instructor %q is not an instructor", ident)
	}
	return usr, nil
}

// Sync upserts every LMS course (owned by instructorID), its students and its groups with membership.
// Records that cannot be stored are logged and skipped; provider errors abort the sync.
func (s *Syncer) Sync(ctx context.Context, instructorID string) (Result, error) {
	var res Result
	lmsCourses, err := s.provider.Courses(ctx)
	if err != nil {
		return res, err
	}

	for _, lc := range lmsCourses {
		c, _, err := s.courses.UpsertCourseByLMSID(ctx, lc.LMSID, lc.Name, lc.Code, instructorID)
		if err != nil {
			s.skip(&res, "syncing course", err, lc.LMSID)
			continue
		}
		res.Courses++

		if err := s.syncCourse(ctx, c, lc, &res); err != nil {
			return res, err
		}
	}

	s.logger.Info("lms sync done", map[string]interface{}{
		"courses": res.Courses, "students": res.Students, "groups": res.Groups,
		"members": res.Members, "skipped": res.Skipped,
	})
	return res, nil
}

func (s *Syncer) syncCourse(ctx context.Context, c course.Course, lc Course, res *Result) error {
	students, err := s.provider.Students(ctx, lc.LMSID)
	if err != nil {
		return err
	}
	local := make(map[string]string, len(students)) // {lms id: user id}
	for _, st := range students {
		if id, ok := s.upsertStudent(ctx, st, res); ok {
			local[st.LMSID] = id
			res.Students++
		}
	}

	groups, err := s.provider.Groups(ctx, lc.LMSID)
	if err != nil {
		return err
	}
	for _, lg := range groups {
		g, _, err := s.courses.UpsertGroupByLMSID(ctx, c.ID, lg.LMSID, lg.Name)
		if err != nil {
			s.skip(res, "syncing group", err, lg.LMSID)
			continue
		}
		res.Groups++

		members, err := s.provider.GroupMembers(ctx, lg.LMSID)
		if err != nil {
			return err
		}
		for _, m := range members {
			id, ok := local[m.LMSID]
			if !ok {
				if id, ok = s.upsertStudent(ctx, m, res); !ok {
					continue
				}
				local[m.LMSID] = id
			}
			if err := s.courses.SyncMember(ctx, g.ID, id); err != nil {
				s.skip(res, "syncing member", err, m.LMSID)
				continue
			}
			res.Members++
		}
	}
	return nil
}

func (s *Syncer) upsertStudent(ctx context.Context, st Student, res *Result) (string, bool) {
	usr, _, err := s.users.UpsertStudentByLMSID(ctx, st.LMSID, st.Name, st.Email)
	if err != nil {
		s.skip(res, "syncing student", err, st.LMSID)
		return "", false
	}
	return usr.ID, true
}

func (s *Syncer) skip(res *Result, msg string, err error, lmsID string) {
	res.Skipped++
	s.logger.Warn(msg, err, map[string]interface{}{"lms_id": lmsID})
}
