package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/malipo/core"
	"github.com/trezcool/malipo/core/billing"
	"github.com/trezcool/malipo/core/group"
	"github.com/trezcool/malipo/core/reminder"
)

type groupApi struct {
	svc        *group.Service
	reminders  *reminder.Service
	validate   *validator.Validate
	translator ut.Translator
}

func registerGroupAPI(g *echo.Group, svc *group.Service, reminders *reminder.Service, validate *validator.Validate, translator ut.Translator) {
	api := groupApi{
		svc:        svc,
		reminders:  reminders,
		validate:   validate,
		translator: translator,
	}

	gg := g.Group("/payment-groups")
	gg.POST("", api.create)
	gg.GET("", api.queryBySchool)

	dg := gg.Group("/:id")
	dg.GET("", api.retrieve)
	dg.GET("/members", api.memberStatuses)
	dg.PUT("/members", api.commitMembership)
	dg.POST("/distribute", api.distribute)
	dg.POST("/roll-forward", api.rollForward)
	dg.POST("/remind", api.remindOverdue)
}

// Handlers

func (api *groupApi) create(ctx echo.Context) error {
	var data group.NewGroup
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewGroup")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	grp, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating payment group")
	}
	return ctx.JSON(http.StatusCreated, grp)
}

func (api *groupApi) queryBySchool(ctx echo.Context) error {
	schoolID := core.CleanString(ctx.QueryParam("school_id"))
	if schoolID == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "school_id", Error: "this field is required"})
	}

	groups, err := api.svc.QueryBySchool(ctx.Request().Context(), schoolID)
	if err != nil {
		return errors.Wrap(err, "querying payment groups")
	}
	return ctx.JSON(http.StatusOK, groups)
}

func (api *groupApi) retrieve(ctx echo.Context) error {
	grp, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, grp)
}

func (api *groupApi) memberStatuses(ctx echo.Context) error {
	statuses, err := api.svc.MemberStatuses(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, statuses)
}

// commitMembership replaces the group's members, resolved either from a
// cohort or from an explicit payer list.
func (api *groupApi) commitMembership(ctx echo.Context) error {
	var data MembershipRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to MembershipRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	members := api.svc.ResolveManual(data.Members)
	if data.CohortID != "" {
		var err error
		if members, err = api.svc.ResolveByCohort(ctx.Request().Context(), data.CohortID); err != nil {
			return err
		}
	}

	grp, err := api.svc.CommitMembership(ctx.Request().Context(), ctx.Param("id"), members)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, grp)
}

func (api *groupApi) distribute(ctx echo.Context) error {
	var data DistributeRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to DistributeRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	res, err := api.svc.Distribute(ctx.Request().Context(), ctx.Param("id"), data.DueDate)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, newDistributeResponse(res))
}

// DistributeResponse is the wire form of a group.DistributeResult; per-member
// errors flatten to strings.
type DistributeResponse struct {
	Created []billing.Transaction `json:"created"`
	Failed  []MemberFailureItem   `json:"failed,omitempty"`
}

type MemberFailureItem struct {
	PayerID string `json:"payer_id"`
	Error   string `json:"error"`
}

func newDistributeResponse(res group.DistributeResult) DistributeResponse {
	out := DistributeResponse{Created: res.Created}
	for _, f := range res.Failed {
		out.Failed = append(out.Failed, MemberFailureItem{PayerID: f.PayerID, Error: f.Err.Error()})
	}
	return out
}

func (api *groupApi) rollForward(ctx echo.Context) error {
	var data RollForwardRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RollForwardRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	grp, err := api.svc.RollForward(ctx.Request().Context(), ctx.Param("id"), data.NextDueDate)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, grp)
}

func (api *groupApi) remindOverdue(ctx echo.Context) error {
	var data RemindRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RemindRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	grp, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	statuses, err := api.svc.MemberStatuses(ctx.Request().Context(), grp.ID)
	if err != nil {
		return err
	}

	outcomes, err := api.reminders.RemindOverdue(ctx.Request().Context(), grp, statuses, data.channels())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, newOutcomeResponses(outcomes))
}
