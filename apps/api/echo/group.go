package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/kikundi/core/course"
	"github.com/trezcool/kikundi/core/feedback"
	llmsvc "github.com/trezcool/kikundi/services/llm"
)

type GroupAnalysisResponse struct {
	Report       feedback.GroupReport  `json:"report"`
	Metrics      feedback.GroupMetrics `json:"metrics"`
	Assessment   llmsvc.Assessment     `json:"assessment"`
	HealthRecord course.HealthRecord   `json:"health_record"`
}

func (api *courseApi) retrieveGroup(ctx echo.Context) error {
	g, _, err := api.loadGroup(ctx, false)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, g)
}

func (api *courseApi) addMember(ctx echo.Context) error {
	g, _, err := api.loadGroup(ctx, true)
	if err != nil {
		return err
	}

	var data course.NewMember
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewMember")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	g, err = api.svc.AddMember(ctx.Request().Context(), g.ID, data)
	if err != nil {
		return errors.Wrap(err, "adding member")
	}
	api.invalidate(ctx.Request().Context(), g.CourseID)
	return ctx.JSON(http.StatusOK, g)
}

// analysis evaluates the group now, stores a health record and asks the LLM for an assessment.
func (api *courseApi) analysis(ctx echo.Context) error {
	g, ctxUsr, err := api.loadGroup(ctx, false)
	if err != nil {
		return err
	}
	c := ctx.Request().Context()

	snap, err := api.svc.GroupSnapshot(c, g, api.now())
	if err != nil {
		return errors.Wrap(err, "building snapshot")
	}
	gr, ok := feedback.AnalyzeGroup(snap, g.ID, api.svc.Policy())
	if !ok {
		return errHttpNotFound
	}

	rec, err := api.svc.RecordHealth(c, gr)
	if err != nil {
		return errors.Wrap(err, "recording group health")
	}
	api.logger.Debug("group analyzed", map[string]interface{}{"group_id": g.ID, "health": gr.Verdict.Health}, ctxUsr.LogUser())

	return ctx.JSON(http.StatusOK, GroupAnalysisResponse{
		Report:       gr,
		Metrics:      feedback.MetricsOf(gr.Summary),
		Assessment:   api.llm.GroupAssessment(c, gr.Summary, gr.Verdict),
		HealthRecord: rec,
	})
}

func (api *courseApi) healthHistory(ctx echo.Context) error {
	g, _, err := api.loadGroup(ctx, false)
	if err != nil {
		return err
	}
	records, err := api.svc.HealthHistory(ctx.Request().Context(), g.ID, bindInt(ctx, "limit", 20))
	if err != nil {
		return errors.Wrap(err, "querying health records")
	}
	if records == nil {
		records = []course.HealthRecord{}
	}
	return ctx.JSON(http.StatusOK, records)
}

// Milestones

func (api *courseApi) queryMilestones(ctx echo.Context) error {
	g, _, err := api.loadGroup(ctx, false)
	if err != nil {
		return err
	}
	ms, err := api.svc.Milestones(ctx.Request().Context(), g.ID, api.now())
	if err != nil {
		return errors.Wrap(err, "querying milestones")
	}
	if ms == nil {
		ms = []course.Milestone{}
	}
	return ctx.JSON(http.StatusOK, ms)
}

func (api *courseApi) createMilestone(ctx echo.Context) error {
	g, _, err := api.loadGroup(ctx, true)
	if err != nil {
		return err
	}

	var data course.NewMilestone
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewMilestone")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	m, err := api.svc.CreateMilestone(ctx.Request().Context(), g.ID, data)
	if err != nil {
		return errors.Wrap(err, "creating milestone")
	}
	api.invalidate(ctx.Request().Context(), g.CourseID)
	return ctx.JSON(http.StatusCreated, m)
}

func (api *courseApi) updateMilestone(ctx echo.Context) error {
	g, _, err := api.loadGroup(ctx, true)
	if err != nil {
		return err
	}

	var data course.UpdateMilestone
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateMilestone")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	m, err := api.svc.UpdateMilestone(ctx.Request().Context(), g.ID, ctx.Param("mid"), data)
	if err != nil {
		return err
	}
	api.invalidate(ctx.Request().Context(), g.CourseID)
	return ctx.JSON(http.StatusOK, m)
}

// Communications

func (api *courseApi) queryCommunications(ctx echo.Context) error {
	g, _, err := api.loadGroup(ctx, false)
	if err != nil {
		return err
	}
	comms, err := api.svc.Communications(ctx.Request().Context(), g.ID)
	if err != nil {
		return errors.Wrap(err, "querying communications")
	}
	if comms == nil {
		comms = []course.Communication{}
	}
	return ctx.JSON(http.StatusOK, comms)
}

// postCommunication is restricted to group members.
func (api *courseApi) postCommunication(ctx echo.Context) error {
	g, ctxUsr, err := api.loadGroup(ctx, false)
	if err != nil {
		return err
	}
	if !g.HasMember(ctxUsr.ID) {
		return errHttpForbidden
	}

	var data course.NewCommunication
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCommunication")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	comm, err := api.svc.PostCommunication(ctx.Request().Context(), g, ctxUsr.ID, data)
	if err != nil {
		return errors.Wrap(err, "posting communication")
	}
	api.invalidate(ctx.Request().Context(), g.CourseID)
	return ctx.JSON(http.StatusCreated, comm)
}
