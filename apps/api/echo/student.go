package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/kikundi/core/course"
	"github.com/trezcool/kikundi/core/feedback"
	"github.com/trezcool/kikundi/core/user"
)

type NudgesResponse struct {
	StudentID   string                       `json:"student_id"`
	Evaluations []feedback.StudentEvaluation `json:"evaluations"`
	Provider    string                       `json:"provider,omitempty"` // set when rephrased
}

func (api *courseApi) queryContributions(ctx echo.Context) error {
	student, ok := ctx.Get("object").(user.User)
	if !ok {
		return errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
	}
	contribs, err := api.svc.Contributions(ctx.Request().Context(), course.ActivityFilter{StudentID: student.ID})
	if err != nil {
		return errors.Wrap(err, "querying contributions")
	}
	if contribs == nil {
		contribs = []course.Contribution{}
	}
	return ctx.JSON(http.StatusOK, contribs)
}

func (api *courseApi) logContribution(ctx echo.Context) error {
	student, ok := ctx.Get("object").(user.User)
	if !ok {
		return errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
	}

	var data course.NewContribution
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewContribution")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	c := ctx.Request().Context()
	contrib, err := api.svc.LogContribution(c, student.ID, data)
	if err != nil {
		return err
	}
	if g, err := api.svc.GetGroup(c, contrib.GroupID); err == nil {
		api.invalidate(c, g.CourseID)
	}
	return ctx.JSON(http.StatusCreated, contrib)
}

// nudges evaluates the student in each of their groups; `rephrase=true` rewrites messages with the LLM.
func (api *courseApi) nudges(ctx echo.Context) error {
	student, ok := ctx.Get("object").(user.User)
	if !ok {
		return errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
	}
	c := ctx.Request().Context()

	snap, err := api.svc.StudentSnapshot(c, student.ID, api.now())
	if err != nil {
		return errors.Wrap(err, "building snapshot")
	}
	resp := NudgesResponse{
		StudentID:   student.ID,
		Evaluations: feedback.StudentNudges(snap, student.ID, api.svc.Policy()),
	}

	if bindBool(ctx, "rephrase") {
		resp.Provider = api.llm.ProviderName()
		for _, ev := range resp.Evaluations {
			gs, _ := feedback.SummarizeGroup(snap, ev.GroupID)
			st, _ := gs.Member(student.ID)
			for i, n := range ev.Nudges {
				ev.Nudges[i].Message = api.llm.RephraseNudge(c, student.Name, n, st)
			}
		}
	}
	return ctx.JSON(http.StatusOK, resp)
}
