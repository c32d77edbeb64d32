package main

import (
	"context"
	"database/sql"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	echoapi "github.com/trezcool/malipo/apps/api/echo"
	"github.com/trezcool/malipo/core"
	"github.com/trezcool/malipo/core/billing"
	"github.com/trezcool/malipo/core/credit"
	"github.com/trezcool/malipo/core/group"
	"github.com/trezcool/malipo/core/order"
	"github.com/trezcool/malipo/core/reminder"
	blobsvc "github.com/trezcool/malipo/services/blob"
	logsvc "github.com/trezcool/malipo/services/logger"
	notifysvc "github.com/trezcool/malipo/services/notification"
	cardsvc "github.com/trezcool/malipo/services/payment"
	"github.com/trezcool/malipo/storage/database"
	inmemdb "github.com/trezcool/malipo/storage/database/inmem"
	sqlxrepos "github.com/trezcool/malipo/storage/database/sqlx"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		core.Conf,
	)
	logger.Enable(!core.Conf.Debug)

	// set up repositories; in-memory in Debug mode, postgres otherwise
	var (
		txRepo     billing.Repository
		orderRepo  order.Repository
		creditRepo credit.Repository
		groupRepo  group.Repository
		cohorts    group.CohortResolver
		directory  core.RecipientDirectory
	)
	if core.Conf.Debug {
		db, err := inmemdb.Open()
		if err != nil {
			logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
		}
		roster := inmemdb.NewRosterRepository(db)
		txRepo = inmemdb.NewTransactionRepository(db)
		orderRepo = inmemdb.NewOrderRepository(db)
		creditRepo = inmemdb.NewCreditRepository(db)
		groupRepo = inmemdb.NewGroupRepository(db)
		cohorts = roster
		directory = roster
	} else {
		db, err := setUpDB()
		if err != nil {
			logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
		}
		defer func() { _ = db.Close() }()
		xdb := sqlx.NewDb(db, core.Conf.Database.Engine)
		txRepo = sqlxrepos.NewTransactionRepository(xdb)
		orderRepo = sqlxrepos.NewOrderRepository(xdb)
		creditRepo = sqlxrepos.NewCreditRepository(xdb)
		groupRepo = sqlxrepos.NewGroupRepository(xdb)
		roster := sqlxrepos.NewRosterRepository(xdb)
		cohorts = roster
		directory = roster
	}

	// set up external capabilities
	var charger billing.CardCharger
	if core.Conf.Debug {
		charger = cardsvc.NewConsoleCharger()
	} else {
		charger = cardsvc.NewGatewayCharger()
	}
	senders := make(map[core.Channel]core.NotificationSender)
	if core.Conf.Debug {
		senders[core.ChannelEmail] = notifysvc.NewConsoleSender()
	} else {
		senders[core.ChannelEmail] = notifysvc.NewSendgridSender()
		senders[core.ChannelWhatsapp] = notifysvc.NewWhatsappSender()
	}
	senders[core.ChannelInApp] = notifysvc.NewInAppSender()
	blobs := blobsvc.NewMemoryStore()

	// set up services
	creditSvc := credit.NewService(creditRepo, logger)
	orderSvc := order.NewService(orderRepo, nil, logger) // bill creator set below
	billingSvc := billing.NewService(txRepo, charger, creditSvc, orderSvc, blobs, logger)
	orderSvc.SetBillCreator(billingSvc)
	groupSvc := group.NewService(groupRepo, cohorts, billingSvc, logger)
	reminderSvc := reminder.NewService(senders, directory, logger)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", core.Conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	expvar.NewString("build").Set(core.Conf.Build)
	expvar.NewString("env").Set(core.Conf.Env)

	go func() {
		if err := http.ListenAndServe(core.Conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		&echoapi.Options{
			Address:     core.Conf.Server.Host + ":" + core.Conf.Server.Port,
			Logger:      logger,
			Validate:    validate,
			Translator:  translator,
			BillingSvc:  billingSvc,
			OrderSvc:    orderSvc,
			CreditSvc:   creditSvc,
			GroupSvc:    groupSvc,
			ReminderSvc: reminderSvc,
		},
	)
	server.Start()

	// =========================================================================
	// Shutdown

	select {
	case err := <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), core.Conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err := server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func setUpDB() (*sql.DB, error) {
	if err := database.CreateIfNotExist(core.Conf); err != nil {
		return nil, err
	}

	db, err := database.Open(core.Conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}
