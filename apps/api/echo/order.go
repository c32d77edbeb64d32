package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/malipo/core"
	"github.com/trezcool/malipo/core/order"
)

type orderApi struct {
	svc        *order.Service
	validate   *validator.Validate
	translator ut.Translator
}

func registerOrderAPI(g *echo.Group, svc *order.Service, validate *validator.Validate, translator ut.Translator) {
	api := orderApi{
		svc:        svc,
		validate:   validate,
		translator: translator,
	}

	og := g.Group("/orders")
	og.POST("", api.checkout)
	og.GET("", api.queryByPayer)

	dg := og.Group("/:id")
	dg.GET("", api.retrieve)
	dg.POST("/advance", api.advance)
	dg.POST("/cancel", api.cancel)
}

// Handlers

func (api *orderApi) checkout(ctx echo.Context) error {
	var data order.NewOrder
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewOrder")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	ord, err := api.svc.Checkout(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "checking out order")
	}
	return ctx.JSON(http.StatusCreated, ord)
}

func (api *orderApi) queryByPayer(ctx echo.Context) error {
	payerID := core.CleanString(ctx.QueryParam("payer_id"))
	if payerID == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "payer_id", Error: "this field is required"})
	}

	orders, err := api.svc.QueryByPayer(ctx.Request().Context(), payerID)
	if err != nil {
		return errors.Wrap(err, "querying orders")
	}
	return ctx.JSON(http.StatusOK, orders)
}

func (api *orderApi) retrieve(ctx echo.Context) error {
	ord, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, ord)
}

func (api *orderApi) advance(ctx echo.Context) error {
	ord, err := api.svc.Advance(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, ord)
}

func (api *orderApi) cancel(ctx echo.Context) error {
	ord, err := api.svc.Cancel(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, ord)
}
