package echoapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/kikundi/core"
	"github.com/trezcool/kikundi/core/course"
	"github.com/trezcool/kikundi/core/feedback"
	"github.com/trezcool/kikundi/core/user"
	llmsvc "github.com/trezcool/kikundi/services/llm"
)

// courseApi serves courses, groups, student activity & the classifier outputs.
type courseApi struct {
	conf     *core.Config
	logger   core.Logger
	users    *user.Service
	svc      *course.Service
	llm      *llmsvc.Service
	cache    core.Cache
	validate *validator.Validate
	now      func() time.Time
}

func newCourseApi(deps *Deps) *courseApi {
	return &courseApi{
		conf:     deps.Conf,
		logger:   deps.Logger,
		users:    deps.UserSvc,
		svc:      deps.CourseSvc,
		llm:      deps.LLM,
		cache:    deps.Cache,
		validate: deps.Validate,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func registerCourseAPI(g *echo.Group, jwt echo.MiddlewareFunc, api *courseApi) {
	cg := g.Group("/courses", jwt)
	cg.GET("", api.queryCourses)
	cg.POST("", api.createCourse, instructorMiddleware())
	cg.GET("/:id", api.retrieveCourse)
	cg.GET("/:id/groups", api.queryGroups)
	cg.POST("/:id/groups", api.createGroup, instructorMiddleware())
	cg.GET("/:id/report", api.report, instructorMiddleware())
	cg.GET("/:id/alerts", api.alerts, instructorMiddleware())
	cg.GET("/:id/summary", api.summary, instructorMiddleware())

	gg := g.Group("/groups", jwt)
	gg.GET("/:id", api.retrieveGroup)
	gg.POST("/:id/members", api.addMember, instructorMiddleware())
	gg.GET("/:id/analysis", api.analysis)
	gg.GET("/:id/health", api.healthHistory)
	gg.GET("/:id/milestones", api.queryMilestones)
	gg.POST("/:id/milestones", api.createMilestone, instructorMiddleware())
	gg.PUT("/:id/milestones/:mid", api.updateMilestone, instructorMiddleware())
	gg.GET("/:id/communications", api.queryCommunications)
	gg.POST("/:id/communications", api.postCommunication)

	sg := g.Group("/students/:id", jwt, ctxUserOrInstructorMiddleware(api.users))
	sg.GET("/contributions", api.queryContributions)
	sg.POST("/contributions", api.logContribution)
	sg.GET("/nudges", api.nudges)

	g.GET("/stats/overview", api.stats, jwt, instructorMiddleware())
}

// Access

// loadCourse returns the `:id` course if the user may see it. `manage` restricts to its instructor & admins.
func (api *courseApi) loadCourse(ctx echo.Context, manage bool) (course.Course, user.User, error) {
	ctxUsr, err := getContextUser(ctx, api.users)
	if err != nil {
		return course.Course{}, user.User{}, err
	}
	c, err := api.svc.GetCourse(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return course.Course{}, user.User{}, err
	}

	switch {
	case ctxUsr.IsAdmin() || c.InstructorID == ctxUsr.ID:
		return c, ctxUsr, nil
	case manage && ctxUsr.IsInstructor():
		return course.Course{}, user.User{}, errHttpForbidden
	case manage:
		return course.Course{}, user.User{}, errHttpNotFound
	}

	groups, err := api.svc.QueryGroups(ctx.Request().Context(), course.GroupFilter{CourseID: c.ID, StudentID: ctxUsr.ID})
	if err != nil {
		return course.Course{}, user.User{}, errors.Wrap(err, "querying groups")
	}
	if len(groups) == 0 {
		return course.Course{}, user.User{}, errHttpNotFound
	}
	return c, ctxUsr, nil
}

// loadGroup returns the `:id` group if the user is a member, the course instructor or an admin.
func (api *courseApi) loadGroup(ctx echo.Context, manage bool) (course.Group, user.User, error) {
	ctxUsr, err := getContextUser(ctx, api.users)
	if err != nil {
		return course.Group{}, user.User{}, err
	}
	g, err := api.svc.GetGroup(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return course.Group{}, user.User{}, err
	}
	if ctxUsr.IsAdmin() {
		return g, ctxUsr, nil
	}

	c, err := api.svc.GetCourse(ctx.Request().Context(), g.CourseID)
	if err != nil {
		return course.Group{}, user.User{}, errors.Wrap(err, "finding course")
	}
	switch {
	case c.InstructorID == ctxUsr.ID:
		return g, ctxUsr, nil
	case manage && ctxUsr.IsInstructor():
		return course.Group{}, user.User{}, errHttpForbidden
	case !manage && g.HasMember(ctxUsr.ID):
		return g, ctxUsr, nil
	}
	return course.Group{}, user.User{}, errHttpNotFound
}

// Reports

// courseReport evaluates the course, going through the report cache.
func (api *courseApi) courseReport(c context.Context, courseID string) (feedback.Report, error) {
	key := core.CacheKeyReport + courseID

	var r feedback.Report
	err := api.cache.Get(c, key, &r)
	if err == nil {
		return r, nil
	}
	if errors.Cause(err) != core.ErrCacheMiss {
		api.logger.Warn("reading cached report", err, map[string]interface{}{"course_id": courseID})
	}

	snap, err := api.svc.Snapshot(c, courseID, api.now())
	if err != nil {
		return feedback.Report{}, errors.Wrap(err, "building snapshot")
	}
	r = feedback.Evaluate(snap, api.svc.Policy())
	if err = api.cache.Set(c, key, r, api.conf.Redis.ReportTTL); err != nil {
		api.logger.Warn("caching report", err, map[string]interface{}{"course_id": courseID})
	}
	return r, nil
}

// invalidate drops the cached report of the course after a write.
func (api *courseApi) invalidate(c context.Context, courseID string) {
	if err := api.cache.Delete(c, core.CacheKeyReport+courseID); err != nil {
		api.logger.Warn("invalidating cached report", err, map[string]interface{}{"course_id": courseID})
	}
}

// Course handlers

func (api *courseApi) queryCourses(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.users)
	if err != nil {
		return err
	}

	var filter course.CourseFilter
	switch {
	case ctxUsr.IsAdmin():
	case ctxUsr.IsInstructor():
		filter.InstructorID = ctxUsr.ID
	default:
		filter.StudentID = ctxUsr.ID
	}
	courses, err := api.svc.QueryCourses(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying courses")
	}
	if courses == nil {
		courses = []course.Course{}
	}
	return ctx.JSON(http.StatusOK, courses)
}

func (api *courseApi) createCourse(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.users)
	if err != nil {
		return err
	}

	var data course.NewCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCourse")
	}
	// only admins create courses on behalf of another instructor
	if !ctxUsr.IsAdmin() || data.InstructorID == "" {
		data.InstructorID = ctxUsr.ID
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	c, err := api.svc.CreateCourse(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating course")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *courseApi) retrieveCourse(ctx echo.Context) error {
	c, _, err := api.loadCourse(ctx, false)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *courseApi) queryGroups(ctx echo.Context) error {
	c, ctxUsr, err := api.loadCourse(ctx, false)
	if err != nil {
		return err
	}

	filter := course.GroupFilter{CourseID: c.ID}
	if !ctxUsr.IsAdmin() && c.InstructorID != ctxUsr.ID {
		filter.StudentID = ctxUsr.ID // students only see their own groups
	}
	groups, err := api.svc.QueryGroups(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying groups")
	}
	if groups == nil {
		groups = []course.Group{}
	}
	return ctx.JSON(http.StatusOK, groups)
}

func (api *courseApi) createGroup(ctx echo.Context) error {
	c, _, err := api.loadCourse(ctx, true)
	if err != nil {
		return err
	}

	var data course.NewGroup
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewGroup")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	g, err := api.svc.CreateGroup(ctx.Request().Context(), c.ID, data)
	if err != nil {
		return errors.Wrap(err, "creating group")
	}
	api.invalidate(ctx.Request().Context(), c.ID)
	return ctx.JSON(http.StatusCreated, g)
}

func (api *courseApi) report(ctx echo.Context) error {
	c, _, err := api.loadCourse(ctx, true)
	if err != nil {
		return err
	}
	r, err := api.courseReport(ctx.Request().Context(), c.ID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, r)
}

// alerts lists the instructor alerts; `severity` widens the default critical & high filter
// and `explain=true` adds an LLM written message to each alert.
func (api *courseApi) alerts(ctx echo.Context) error {
	sevs, err := bindSeverities(ctx)
	if err != nil {
		return err
	}
	c, _, err := api.loadCourse(ctx, true)
	if err != nil {
		return err
	}
	r, err := api.courseReport(ctx.Request().Context(), c.ID)
	if err != nil {
		return err
	}

	alerts := r.InstructorAlerts
	if len(sevs) > 0 {
		var all []feedback.GroupAlert
		for _, g := range r.Groups {
			all = append(all, g.Verdict.Alerts...)
		}
		sevs = append(sevs, feedback.DefaultInstructorSeverities...)
		alerts = feedback.FilterInstructorAlerts(all, sevs...)
	}

	resp := make([]AlertResponse, 0, len(alerts))
	explain := bindBool(ctx, "explain")
	for _, a := range alerts {
		ar := AlertResponse{GroupAlert: a}
		if explain {
			for _, g := range r.Groups {
				if g.Summary.GroupID == a.GroupID {
					ar.Message = api.llm.InstructorAlert(ctx.Request().Context(), a, g.Summary)
					break
				}
			}
		}
		resp = append(resp, ar)
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *courseApi) summary(ctx echo.Context) error {
	c, _, err := api.loadCourse(ctx, true)
	if err != nil {
		return err
	}
	r, err := api.courseReport(ctx.Request().Context(), c.ID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, CourseSummaryResponse{
		CourseID:        c.ID,
		GeneratedAt:     r.GeneratedAt,
		Summary:         r.Summary,
		Recommendations: r.Recommendations,
	})
}

func (api *courseApi) stats(ctx echo.Context) error {
	st, err := api.svc.Stats(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "computing stats")
	}
	return ctx.JSON(http.StatusOK, st)
}

type AlertResponse struct {
	feedback.GroupAlert
	Message string `json:"message,omitempty"`
}

type CourseSummaryResponse struct {
	CourseID        string                    `json:"course_id"`
	GeneratedAt     time.Time                 `json:"generated_at"`
	Summary         feedback.CourseSummary    `json:"summary"`
	Recommendations []feedback.Recommendation `json:"recommendations"`
}
