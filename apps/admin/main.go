package main

import (
	"log"
	"os"

	"github.com/jmoiron/sqlx"

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
	sqlxrepos "github.com/trezcool/malipo/storage/database/sqlx"
)

func main() {
	defer os.Exit(0)

	stdLogger := log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, core.Conf)
	logger.Enable(!core.Conf.Debug)

	// set up DB
	db, err := database.Open(core.Conf)
	errAndDie(stdLogger, err)
	defer func() { _ = db.Close() }()
	errAndDie(stdLogger, db.Ping())
	xdb := sqlx.NewDb(db, core.Conf.Database.Engine)

	// set up services
	txRepo := sqlxrepos.NewTransactionRepository(xdb)
	roster := sqlxrepos.NewRosterRepository(xdb)

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

	creditSvc := credit.NewService(sqlxrepos.NewCreditRepository(xdb), logger)
	orderSvc := order.NewService(sqlxrepos.NewOrderRepository(xdb), nil, logger)
	billingSvc := billing.NewService(txRepo, charger, creditSvc, orderSvc, blobsvc.NewMemoryStore(), logger)
	orderSvc.SetBillCreator(billingSvc)
	groupSvc := group.NewService(sqlxrepos.NewGroupRepository(xdb), roster, billingSvc, logger)
	reminderSvc := reminder.NewService(senders, roster, logger)

	// start CLI
	cli := commandLine{
		db:          db,
		billingSvc:  billingSvc,
		groupSvc:    groupSvc,
		reminderSvc: reminderSvc,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			stdLogger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(logger *log.Logger, err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
