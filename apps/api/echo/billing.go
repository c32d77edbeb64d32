package echoapi

import (
	"io/ioutil"
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/malipo/core"
	"github.com/trezcool/malipo/core/billing"
)

type billingApi struct {
	svc        *billing.Service
	validate   *validator.Validate
	translator ut.Translator
}

func registerBillingAPI(g *echo.Group, svc *billing.Service, validate *validator.Validate, translator ut.Translator) {
	api := billingApi{
		svc:        svc,
		validate:   validate,
		translator: translator,
	}

	tg := g.Group("/transactions")
	tg.POST("", api.create)
	tg.GET("", api.filter)
	tg.GET("/debtors", api.queryDebtors)

	dg := tg.Group("/:id")
	dg.GET("", api.retrieve)
	dg.POST("/proof", api.uploadProof)
	dg.POST("/proof-file", api.attachProof)
	dg.POST("/confirm", api.confirmProof)
	dg.POST("/reject", api.rejectProof)
	dg.POST("/pay-card", api.payByCard)
	dg.POST("/pay-credit", api.payByCredit)
}

// Handlers

func (api *billingApi) create(ctx echo.Context) error {
	var data billing.NewTransaction
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTransaction")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	tx, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating transaction")
	}
	return ctx.JSON(http.StatusCreated, tx)
}

func (api *billingApi) filter(ctx echo.Context) error {
	var filter billing.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to QueryFilter")
	}

	txs, err := api.svc.Filter(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "filtering transactions")
	}
	return ctx.JSON(http.StatusOK, txs)
}

func (api *billingApi) queryDebtors(ctx echo.Context) error {
	schoolID := core.CleanString(ctx.QueryParam("school_id"))
	if schoolID == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "school_id", Error: "this field is required"})
	}

	debtors, err := api.svc.QueryDebtors(ctx.Request().Context(), schoolID)
	if err != nil {
		return errors.Wrap(err, "querying debtors")
	}
	return ctx.JSON(http.StatusOK, debtors)
}

func (api *billingApi) retrieve(ctx echo.Context) error {
	tx, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, tx)
}

func (api *billingApi) uploadProof(ctx echo.Context) error {
	var data UploadProofRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UploadProofRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	tx, err := api.svc.UploadProof(ctx.Request().Context(), ctx.Param("id"), core.BlobRef(data.ProofRef), billing.Method(data.Method))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, tx)
}

// attachProof takes the raw proof file as a multipart upload and stores it
// before moving the transaction to review.
func (api *billingApi) attachProof(ctx echo.Context) error {
	method := core.CleanString(ctx.FormValue("method"), true)
	if !billing.Method(method).IsValid() {
		return core.NewValidationError(nil, core.FieldError{Field: "method", Error: "unknown payment method"})
	}

	fh, err := ctx.FormFile("proof")
	if err != nil {
		return core.NewValidationError(nil, core.FieldError{Field: "proof", Error: "this field is required"})
	}
	f, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening proof upload")
	}
	defer func() { _ = f.Close() }()
	content, err := ioutil.ReadAll(f)
	if err != nil {
		return errors.Wrap(err, "reading proof upload")
	}

	tx, err := api.svc.AttachProof(ctx.Request().Context(), ctx.Param("id"), content, fh.Header.Get("Content-Type"), billing.Method(method))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, tx)
}

func (api *billingApi) confirmProof(ctx echo.Context) error {
	tx, err := api.svc.ConfirmProof(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, tx)
}

func (api *billingApi) rejectProof(ctx echo.Context) error {
	tx, err := api.svc.RejectProof(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, tx)
}

func (api *billingApi) payByCard(ctx echo.Context) error {
	tx, err := api.svc.PayByCard(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, tx)
}

func (api *billingApi) payByCredit(ctx echo.Context) error {
	var data PayByCreditRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PayByCreditRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	tx, err := api.svc.PayByCorporateCredit(ctx.Request().Context(), ctx.Param("id"), data.OwnerID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, tx)
}
