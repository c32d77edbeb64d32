package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/malipo/core"
	"github.com/trezcool/malipo/core/reminder"
)

type reminderApi struct {
	svc        *reminder.Service
	validate   *validator.Validate
	translator ut.Translator
}

func registerReminderAPI(g *echo.Group, svc *reminder.Service, validate *validator.Validate, translator ut.Translator) {
	api := reminderApi{
		svc:        svc,
		validate:   validate,
		translator: translator,
	}

	g.POST("/reminders", api.dispatch)
}

// OutcomeResponse is the wire form of a reminder.Outcome; errors flatten to
// strings.
type OutcomeResponse struct {
	PayerID string       `json:"payer_id"`
	Channel core.Channel `json:"channel"`
	OK      bool         `json:"ok"`
	Error   string       `json:"error,omitempty"`
}

func newOutcomeResponses(outcomes []reminder.Outcome) []OutcomeResponse {
	res := make([]OutcomeResponse, 0, len(outcomes))
	for _, out := range outcomes {
		or := OutcomeResponse{PayerID: out.PayerID, Channel: out.Channel, OK: out.OK()}
		if out.Err != nil {
			or.Error = out.Err.Error()
		}
		res = append(res, or)
	}
	return res
}

// Handlers

func (api *reminderApi) dispatch(ctx echo.Context) error {
	var data DispatchRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to DispatchRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	notif := core.Notification{Subject: data.Subject, Body: data.Body}
	outcomes, err := api.svc.DispatchToPayers(ctx.Request().Context(), data.PayerIDs, notif, data.channels())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, newOutcomeResponses(outcomes))
}
