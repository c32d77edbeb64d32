package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/malipo/core/credit"
)

type creditApi struct {
	svc        *credit.Service
	validate   *validator.Validate
	translator ut.Translator
}

func registerCreditAPI(g *echo.Group, svc *credit.Service, validate *validator.Validate, translator ut.Translator) {
	api := creditApi{
		svc:        svc,
		validate:   validate,
		translator: translator,
	}

	cg := g.Group("/credit-accounts/:owner_id")
	cg.GET("", api.balance)
	cg.GET("/entries", api.queryEntries)
	cg.POST("/credit", api.credit)
	cg.POST("/debit", api.debit)
	cg.POST("/settle-debt", api.settleDebt)
}

// Handlers

func (api *creditApi) balance(ctx echo.Context) error {
	acc, err := api.svc.Balance(ctx.Request().Context(), ctx.Param("owner_id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, acc)
}

func (api *creditApi) queryEntries(ctx echo.Context) error {
	entries, err := api.svc.QueryEntries(ctx.Request().Context(), ctx.Param("owner_id"))
	if err != nil {
		return errors.Wrap(err, "querying credit entries")
	}
	return ctx.JSON(http.StatusOK, entries)
}

func (api *creditApi) credit(ctx echo.Context) error {
	var data AmountRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AmountRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	acc, err := api.svc.Credit(ctx.Request().Context(), ctx.Param("owner_id"), data.Amount)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, acc)
}

func (api *creditApi) debit(ctx echo.Context) error {
	var data AmountRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AmountRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	acc, err := api.svc.Debit(ctx.Request().Context(), ctx.Param("owner_id"), data.Amount)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, acc)
}

func (api *creditApi) settleDebt(ctx echo.Context) error {
	var data AmountRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AmountRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	acc, err := api.svc.SettleDebt(ctx.Request().Context(), ctx.Param("owner_id"), data.Amount)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, acc)
}
