package tests

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/kikundi/apps/api/echo"
	"github.com/trezcool/kikundi/core/course"
	"github.com/trezcool/kikundi/core/feedback"
	"github.com/trezcool/kikundi/core/user"
	testutil "github.com/trezcool/kikundi/tests"
)

// fixture: Ada teaches WEB-401 where Alice carries Team A alone; Bob hasn't started.
type fixture struct {
	env
	prof, other, admin, alice, bob, carol user.User
	web                                   course.Course
	teamA                                 course.Group
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	e := setup(t)
	f := fixture{env: e}
	f.prof = testutil.CreateUser(t, e.usrRepo, "Ada Prof", "ada", "ada@uni.test", "", user.RoleInstructor, true)
	f.other = testutil.CreateUser(t, e.usrRepo, "Other Prof", "other", "other@uni.test", "", user.RoleInstructor, true)
	f.admin = testutil.CreateUser(t, e.usrRepo, "Admin", "admin", "admin@uni.test", "", user.RoleAdmin, true)
	f.alice = testutil.CreateUser(t, e.usrRepo, "Alice", "alice", "alice@uni.test", "", user.RoleStudent, true)
	f.bob = testutil.CreateUser(t, e.usrRepo, "Bob", "bob", "bob@uni.test", "", user.RoleStudent, true)
	f.carol = testutil.CreateUser(t, e.usrRepo, "Carol", "carol", "carol@uni.test", "", user.RoleStudent, true)

	f.web = testutil.CreateCourse(t, e.courseRepo, "Web Development", "WEB-401", f.prof.ID)
	f.teamA = testutil.CreateGroup(t, e.courseRepo, f.web.ID, "Team A", f.alice.ID, f.bob.ID)
	testutil.LogHours(t, e.courseRepo, f.teamA.ID, f.alice.ID, "API", 10, time.Now().UTC().Add(-24*time.Hour))
	return f
}

func courseCodes(courses []course.Course) []string {
	codes := make([]string, 0, len(courses))
	for _, c := range courses {
		codes = append(codes, c.Code)
	}
	return codes
}

func Test_courseApi_courses(t *testing.T) {
	f := newFixture(t)
	path := "/v1/courses/" + f.web.ID

	runTests(t, f.env, []httpTest{
		{name: "auth required", path: "/v1/courses", wantCode: http.StatusUnauthorized, wantData: marshalObj(t, errMissingToken)},
		{name: "retrieve (member)", path: path, token: getToken(t, f.alice), wantCode: http.StatusOK},
		{name: "retrieve (owner)", path: path, token: getToken(t, f.prof), wantCode: http.StatusOK},
		{name: "retrieve (outsider)", path: path, token: getToken(t, f.carol), wantCode: http.StatusNotFound, wantData: marshalObj(t, errNotFound)},
		{name: "retrieve (other instructor)", path: path, token: getToken(t, f.other), wantCode: http.StatusNotFound},
		{name: "retrieve (unknown)", path: "/v1/courses/lol", token: getToken(t, f.admin), wantCode: http.StatusNotFound},
		{
			name: "create (student)", method: http.MethodPost, path: "/v1/courses", token: getToken(t, f.alice),
			body: []byte(`{"name": "Hack", "code": "HCK-1"}`), wantCode: http.StatusForbidden, wantData: marshalObj(t, errForbidden),
		},
		{
			name: "create (missing fields)", method: http.MethodPost, path: "/v1/courses", token: getToken(t, f.other),
			body: []byte(`{}`), wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, fieldsErr{Error: map[string]string{"name": "this field is required", "code": "this field is required"}}),
		},
		{
			name: "create (duplicate code)", method: http.MethodPost, path: "/v1/courses", token: getToken(t, f.other),
			body: []byte(`{"name": "Web Again", "code": "web-401"}`), wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, fieldsErr{Error: map[string]string{"code": course.ErrCodeExists.Error()}}),
		},
	})

	t.Run("create", func(t *testing.T) {
		rec := f.do(http.MethodPost, "/v1/courses", getToken(t, f.other), []byte(`{"name": " Databases ", "code": "DB-201", "instructor_id": "`+f.prof.ID+`"}`))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var c course.Course
		decode(t, rec, &c)
		assert.Equal(t, "Databases", c.Name)
		assert.Equal(t, f.other.ID, c.InstructorID, "instructors create their own courses")
		assert.True(t, c.IsActive)
	})

	tests := []struct {
		name string
		usr  user.User
		want []string
	}{
		{name: "list (admin)", usr: f.admin, want: []string{"DB-201", "WEB-401"}},
		{name: "list (instructor)", usr: f.prof, want: []string{"WEB-401"}},
		{name: "list (other instructor)", usr: f.other, want: []string{"DB-201"}},
		{name: "list (member)", usr: f.bob, want: []string{"WEB-401"}},
		{name: "list (outsider)", usr: f.carol, want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(http.MethodGet, "/v1/courses", getToken(t, tt.usr))
			require.Equal(t, http.StatusOK, rec.Code)
			var courses []course.Course
			decode(t, rec, &courses)
			assert.Equal(t, tt.want, courseCodes(courses))
		})
	}
}

func Test_courseApi_groups(t *testing.T) {
	f := newFixture(t)
	path := "/v1/courses/" + f.web.ID + "/groups"
	profToken := getToken(t, f.prof)

	runTests(t, f.env, []httpTest{
		{
			name: "create (other instructor)", method: http.MethodPost, path: path, token: getToken(t, f.other),
			body: []byte(`{"name": "Team B"}`), wantCode: http.StatusForbidden,
		},
		{
			name: "create (duplicate)", method: http.MethodPost, path: path, token: profToken,
			body: []byte(`{"name": "Team A"}`), wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, fieldsErr{Error: map[string]string{"name": course.ErrGroupNameExists.Error()}}),
		},
		{
			name: "add member (not a student)", method: http.MethodPost, path: "/v1/groups/" + f.teamA.ID + "/members", token: profToken,
			body: []byte(`{"student_id": "` + f.other.ID + `"}`), wantCode: http.StatusBadRequest,
		},
		{
			name: "add member (student)", method: http.MethodPost, path: "/v1/groups/" + f.teamA.ID + "/members", token: getToken(t, f.alice),
			body: []byte(`{"student_id": "` + f.carol.ID + `"}`), wantCode: http.StatusForbidden,
		},
		{name: "retrieve group (outsider)", path: "/v1/groups/" + f.teamA.ID, token: getToken(t, f.carol), wantCode: http.StatusNotFound},
		{name: "retrieve group (unknown)", path: "/v1/groups/lol", token: profToken, wantCode: http.StatusNotFound},
	})

	rec := f.do(http.MethodPost, path, profToken, []byte(`{"name": "Team B"}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var teamB course.Group
	decode(t, rec, &teamB)
	assert.Empty(t, teamB.Members)

	rec = f.do(http.MethodPost, "/v1/groups/"+teamB.ID+"/members", profToken, []byte(`{"student_id": "`+f.carol.ID+`"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &teamB)
	require.Len(t, teamB.Members, 1)
	assert.Equal(t, "Carol", teamB.Members[0].Name)

	t.Run("instructor sees every group", func(t *testing.T) {
		rec := f.do(http.MethodGet, path, profToken)
		var groups []course.Group
		decode(t, rec, &groups)
		assert.Len(t, groups, 2)
	})

	t.Run("students see their own groups", func(t *testing.T) {
		rec := f.do(http.MethodGet, path, getToken(t, f.carol))
		require.Equal(t, http.StatusOK, rec.Code)
		var groups []course.Group
		decode(t, rec, &groups)
		require.Len(t, groups, 1)
		assert.Equal(t, "Team B", groups[0].Name)
	})
}

func Test_courseApi_report(t *testing.T) {
	f := newFixture(t)
	base := "/v1/courses/" + f.web.ID
	profToken := getToken(t, f.prof)

	runTests(t, f.env, []httpTest{
		{name: "student", path: base + "/report", token: getToken(t, f.alice), wantCode: http.StatusForbidden, wantData: marshalObj(t, errForbidden)},
		{name: "other instructor", path: base + "/report", token: getToken(t, f.other), wantCode: http.StatusForbidden},
		{name: "unknown severity", path: base + "/alerts?severity=lol", token: profToken, wantCode: http.StatusBadRequest},
	})

	var report feedback.Report
	rec := f.do(http.MethodGet, base+"/report", profToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &report)
	require.Len(t, report.Groups, 1)
	assert.Equal(t, feedback.HealthCritical, report.Groups[0].Verdict.Health)
	assert.Contains(t, report.Groups[0].Verdict.Conditions, feedback.ConditionConcentration)
	require.NotEmpty(t, report.InstructorAlerts)
	assert.Equal(t, "Team A", report.InstructorAlerts[0].GroupName)

	t.Run("alerts", func(t *testing.T) {
		rec := f.do(http.MethodGet, base+"/alerts?explain=true", profToken)
		require.Equal(t, http.StatusOK, rec.Code)
		var alerts []echoapi.AlertResponse
		decode(t, rec, &alerts)
		require.Len(t, alerts, len(report.InstructorAlerts))
		for _, a := range alerts {
			assert.Contains(t, []feedback.Severity{feedback.SeverityCritical, feedback.SeverityHigh}, a.Severity)
			assert.NotEmpty(t, a.Message)
		}
	})

	t.Run("summary", func(t *testing.T) {
		rec := f.do(http.MethodGet, base+"/summary", getToken(t, f.admin))
		require.Equal(t, http.StatusOK, rec.Code)
		var resp echoapi.CourseSummaryResponse
		decode(t, rec, &resp)
		assert.Equal(t, 1, resp.Summary.TotalGroups)
		assert.Equal(t, 1, resp.Summary.Critical)
		assert.Equal(t, len(report.InstructorAlerts), resp.Summary.InstructorAlerts)
	})

	t.Run("writes invalidate the cached report", func(t *testing.T) {
		body := fmt.Sprintf(`{"group_id": %q, "task": "Frontend", "hours": 10}`, f.teamA.ID)
		rec := f.do(http.MethodPost, "/v1/students/"+f.bob.ID+"/contributions", getToken(t, f.bob), []byte(body))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		rec = f.do(http.MethodGet, base+"/report", profToken)
		require.Equal(t, http.StatusOK, rec.Code)
		var refreshed feedback.Report
		decode(t, rec, &refreshed)
		assert.NotContains(t, refreshed.Groups[0].Verdict.Conditions, feedback.ConditionConcentration)
		assert.Empty(t, refreshed.InstructorAlerts)
	})
}

func Test_courseApi_analysis(t *testing.T) {
	f := newFixture(t)
	path := "/v1/groups/" + f.teamA.ID

	runTests(t, f.env, []httpTest{
		{name: "outsider", path: path + "/analysis", token: getToken(t, f.carol), wantCode: http.StatusNotFound},
		{name: "no history yet", path: path + "/health", token: getToken(t, f.prof), wantCode: http.StatusOK, wantData: []byte(`[]`)},
	})

	rec := f.do(http.MethodGet, path+"/analysis", getToken(t, f.alice))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp echoapi.GroupAnalysisResponse
	decode(t, rec, &resp)
	assert.Equal(t, feedback.HealthCritical, resp.Report.Verdict.Health)
	assert.Equal(t, 10.0, resp.Metrics.TotalHours)
	assert.Equal(t, 10.0, resp.Metrics.IndividualHours[f.alice.ID])
	assert.Equal(t, "mock", resp.Assessment.Source)
	assert.Equal(t, "The workload is unevenly distributed across the team.", resp.Assessment.Assessment)
	assert.Equal(t, feedback.HealthCritical, resp.HealthRecord.Health)
	assert.Equal(t, 1.0, resp.HealthRecord.MaxMemberShare)

	rec = f.do(http.MethodGet, path+"/health", getToken(t, f.prof))
	require.Equal(t, http.StatusOK, rec.Code)
	var history []course.HealthRecord
	decode(t, rec, &history)
	require.Len(t, history, 1)
	assert.Equal(t, resp.HealthRecord.ID, history[0].ID)
	assert.NotEmpty(t, history[0].Reasons)
}

func Test_courseApi_milestones(t *testing.T) {
	f := newFixture(t)
	path := "/v1/groups/" + f.teamA.ID + "/milestones"
	profToken := getToken(t, f.prof)
	due := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Second)

	runTests(t, f.env, []httpTest{
		{
			name: "create (student)", method: http.MethodPost, path: path, token: getToken(t, f.alice),
			body: []byte(`{"name": "MVP"}`), wantCode: http.StatusForbidden,
		},
		{
			name: "create (missing due date)", method: http.MethodPost, path: path, token: profToken,
			body: []byte(`{"name": "MVP"}`), wantCode: http.StatusBadRequest,
		},
		{
			name: "update (unknown)", method: http.MethodPut, path: path + "/lol", token: profToken,
			body: []byte(`{"completed": true}`), wantCode: http.StatusNotFound,
		},
	})

	rec := f.do(http.MethodPost, path, profToken, marshalObj(t, course.NewMilestone{Name: "MVP", DueDate: due}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var m course.Milestone
	decode(t, rec, &m)
	assert.Equal(t, feedback.MilestoneDueSoon, m.Status)

	rec = f.do(http.MethodPut, path+"/"+m.ID, profToken, []byte(`{"completed": true}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &m)
	assert.Equal(t, feedback.MilestoneComplete, m.Status)
	assert.NotNil(t, m.CompletedAt)

	rec = f.do(http.MethodGet, path, getToken(t, f.bob))
	require.Equal(t, http.StatusOK, rec.Code)
	var ms []course.Milestone
	decode(t, rec, &ms)
	require.Len(t, ms, 1)
	assert.Equal(t, "MVP", ms[0].Name)
}

func Test_courseApi_communications(t *testing.T) {
	f := newFixture(t)
	path := "/v1/groups/" + f.teamA.ID + "/communications"

	runTests(t, f.env, []httpTest{
		{
			name: "instructor is not a member", method: http.MethodPost, path: path, token: getToken(t, f.prof),
			body: []byte(`{"message": "hello"}`), wantCode: http.StatusForbidden,
		},
		{
			name: "unknown tone", method: http.MethodPost, path: path, token: getToken(t, f.alice),
			body: []byte(`{"message": "hello", "tone": "sarcastic"}`), wantCode: http.StatusBadRequest,
		},
	})

	tests := []struct {
		body string
		want feedback.Tone
	}{
		{body: `{"message": "Thanks, great work on the API!"}`, want: feedback.TonePositive},
		{body: `{"message": "You need to push your code!!"}`, want: feedback.ToneDirect},
		{body: `{"message": "Meeting notes attached", "tone": "Informative"}`, want: feedback.ToneNeutral},
	}
	for _, tt := range tests {
		rec := f.do(http.MethodPost, path, getToken(t, f.alice), []byte(tt.body))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var comm course.Communication
		decode(t, rec, &comm)
		assert.Equal(t, tt.want, comm.Tone, tt.body)
	}

	rec := f.do(http.MethodGet, path, getToken(t, f.prof))
	require.Equal(t, http.StatusOK, rec.Code)
	var comms []course.Communication
	decode(t, rec, &comms)
	assert.Len(t, comms, 3)
}

func Test_courseApi_students(t *testing.T) {
	f := newFixture(t)
	bobPath := "/v1/students/" + f.bob.ID
	bobToken := getToken(t, f.bob)

	runTests(t, f.env, []httpTest{
		{name: "other student", path: bobPath + "/nudges", token: getToken(t, f.alice), wantCode: http.StatusNotFound},
		{
			name: "not a member", method: http.MethodPost, path: "/v1/students/" + f.carol.ID + "/contributions", token: getToken(t, f.carol),
			body: []byte(`{"group_id": "` + f.teamA.ID + `", "task": "Docs", "hours": 1}`), wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, fieldsErr{Error: map[string]string{"group_id": course.ErrNotMember.Error()}}),
		},
		{
			name: "invalid hours", method: http.MethodPost, path: bobPath + "/contributions", token: bobToken,
			body: []byte(`{"group_id": "` + f.teamA.ID + `", "task": "Docs", "hours": 0}`), wantCode: http.StatusBadRequest,
		},
		{name: "contributions (none)", path: bobPath + "/contributions", token: bobToken, wantCode: http.StatusOK, wantData: []byte(`[]`)},
		{name: "stats (student)", path: "/v1/stats/overview", token: bobToken, wantCode: http.StatusForbidden},
	})

	t.Run("nudges", func(t *testing.T) {
		rec := f.do(http.MethodGet, bobPath+"/nudges", getToken(t, f.prof))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp echoapi.NudgesResponse
		decode(t, rec, &resp)
		require.Len(t, resp.Evaluations, 1)
		require.NotEmpty(t, resp.Evaluations[0].Nudges)
		n := resp.Evaluations[0].Nudges[0]
		assert.Equal(t, feedback.NudgeInactivity, n.Kind)
		assert.Contains(t, n.Message, "Team A")
		assert.Empty(t, resp.Provider)
	})

	t.Run("rephrased nudges", func(t *testing.T) {
		rec := f.do(http.MethodGet, bobPath+"/nudges?rephrase=true", bobToken)
		require.Equal(t, http.StatusOK, rec.Code)
		var resp echoapi.NudgesResponse
		decode(t, rec, &resp)
		assert.Equal(t, "mock", resp.Provider)
		assert.Contains(t, resp.Evaluations[0].Nudges[0].Message, "haven't contributed")
	})

	t.Run("outsider has insufficient data", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/v1/students/"+f.carol.ID+"/nudges", getToken(t, f.carol))
		require.Equal(t, http.StatusOK, rec.Code)
		var resp echoapi.NudgesResponse
		decode(t, rec, &resp)
		require.Len(t, resp.Evaluations, 1)
		assert.True(t, resp.Evaluations[0].InsufficientData)
	})

	t.Run("stats", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/v1/stats/overview", getToken(t, f.prof))
		require.Equal(t, http.StatusOK, rec.Code)
		var st course.Stats
		decode(t, rec, &st)
		assert.Equal(t, course.Stats{Students: 3, Courses: 1, Groups: 1, Contributions: 1, TotalHours: 10}, st)
	})
}

func Test_health(t *testing.T) {
	e := setup(t)
	rec := e.do(http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp echoapi.HealthResponse
	decode(t, rec, &resp)
	assert.Equal(t, echoapi.HealthResponse{Status: "ok", Database: "ok", LLMProvider: "mock", LLMAvailable: true}, resp)

	rec = e.do(http.MethodGet, "/", "")
	assert.Equal(t, "Welcome to Kikundi API!", rec.Body.String())
}
