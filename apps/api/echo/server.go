package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/malipo/core"
	"github.com/trezcool/malipo/core/billing"
	"github.com/trezcool/malipo/core/credit"
	"github.com/trezcool/malipo/core/group"
	"github.com/trezcool/malipo/core/order"
	"github.com/trezcool/malipo/core/reminder"
)

type (
	Options struct {
		Address        string
		DisableReqLogs bool

		Logger     core.Logger
		Validate   *validator.Validate
		Translator ut.Translator

		BillingSvc  *billing.Service
		OrderSvc    *order.Service
		CreditSvc   *credit.Service
		GroupSvc    *group.Service
		ReminderSvc *reminder.Service
	}

	Server interface {
		http.Handler
		Start()
		Errors() <-chan error
		ShutdownSignal() <-chan os.Signal
		Shutdown(context.Context) error
		Close() error
	}

	server struct {
		opts     *Options
		app      *echo.Echo
		errs     chan error
		shutdown chan os.Signal
	}
)

var _ Server = (*server)(nil)

func NewServer(opts *Options) Server {
	s := &server{
		opts:     opts,
		app:      echo.New(),
		errs:     make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *server) setup() {
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(core.Conf.Debug || core.Conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, s.opts.Translator, s.signalShutdown)
	s.app.Debug = core.Conf.Debug
	s.app.HideBanner = true

	s.app.GET("/", home)

	v1 := s.app.Group("/v1")
	registerBillingAPI(v1, s.opts.BillingSvc, s.opts.Validate, s.opts.Translator)
	registerOrderAPI(v1, s.opts.OrderSvc, s.opts.Validate, s.opts.Translator)
	registerCreditAPI(v1, s.opts.CreditSvc, s.opts.Validate, s.opts.Translator)
	registerGroupAPI(v1, s.opts.GroupSvc, s.opts.ReminderSvc, s.opts.Validate, s.opts.Translator)
	registerReminderAPI(v1, s.opts.ReminderSvc, s.opts.Validate, s.opts.Translator)
}

func (s *server) Start() {
	go func() {
		s.errs <- s.app.Start(s.opts.Address)
	}()
}

func (s *server) Errors() <-chan error {
	return s.errs
}

func (s *server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

// signalShutdown is handed to the error handler so an unrecoverable error can
// trigger a graceful stop.
func (s *server) signalShutdown() {
	s.shutdown <- syscall.SIGTERM
}

func (s *server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) Close() error {
	return s.app.Close()
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+core.Conf.AppName+" API!")
}
