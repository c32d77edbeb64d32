package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/trezcool/malipo/core"
	"github.com/trezcool/malipo/core/billing"
	"github.com/trezcool/malipo/core/group"
	"github.com/trezcool/malipo/core/reminder"
)

var (
	nowFunc = time.Now // mockable

	errHelp = errors.New("help provided")
)

const dueDateLayout = "2006-01-02"

type commandLine struct {
	db          *sql.DB
	billingSvc  *billing.Service
	groupSvc    *group.Service
	reminderSvc *reminder.Service
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS...] - run database migrations (goose commands)")
	fmt.Println("  distribute -group GROUPID -due YYYY-MM-DD - raise the cycle's transactions for a payment group")
	fmt.Println("  markoverdue -school SCHOOLID - sweep pending transactions past their due date")
	fmt.Println("  remind -group GROUPID -channels email,whatsapp - notify overdue members of a payment group")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	distributeCmd := flag.NewFlagSet("distribute", flag.ExitOnError)
	distributeGroup := distributeCmd.String("group", "", "The payment group's id.")
	distributeDue := distributeCmd.String("due", "", "The cycle's due date, YYYY-MM-DD.")

	markOverdueCmd := flag.NewFlagSet("markoverdue", flag.ExitOnError)
	markOverdueSchool := markOverdueCmd.String("school", "", "The school's id.")

	remindCmd := flag.NewFlagSet("remind", flag.ExitOnError)
	remindGroup := remindCmd.String("group", "", "The payment group's id.")
	remindChannels := remindCmd.String("channels", "email", "Comma-separated notification channels.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "distribute":
		if err := distributeCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *distributeGroup == "" || *distributeDue == "" {
			distributeCmd.Usage()
			return errHelp
		}
		dueDate, err := time.Parse(dueDateLayout, *distributeDue)
		if err != nil {
			return fmt.Errorf("due date must be of form YYYY-MM-DD (got %q)", *distributeDue)
		}
		return cli.distribute(*distributeGroup, dueDate)
	case "markoverdue":
		if err := markOverdueCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *markOverdueSchool == "" {
			markOverdueCmd.Usage()
			return errHelp
		}
		return cli.markOverdue(*markOverdueSchool)
	case "remind":
		if err := remindCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *remindGroup == "" {
			remindCmd.Usage()
			return errHelp
		}
		channels := core.ParseChannels(*remindChannels)
		if len(channels) == 0 {
			remindCmd.Usage()
			return errHelp
		}
		return cli.remind(*remindGroup, channels)
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) distribute(groupID string, dueDate time.Time) error {
	res, err := cli.groupSvc.Distribute(context.Background(), groupID, dueDate)
	if err != nil {
		return err
	}
	fmt.Printf("distributed: %d transaction(s) created, %d failed\n", len(res.Created), len(res.Failed))
	for _, f := range res.Failed {
		fmt.Printf("  %s: %v\n", f.PayerID, f.Err)
	}
	return nil
}

// markOverdue sweeps the school's pending transactions whose due date has
// passed and flips each to overdue.
func (cli *commandLine) markOverdue(schoolID string) error {
	ctx := context.Background()
	now := nowFunc().UTC()

	txs, err := cli.billingSvc.Filter(ctx, billing.QueryFilter{
		SchoolID: schoolID,
		Statuses: []billing.Status{billing.StatusPending},
		DueTo:    now,
	})
	if err != nil {
		return err
	}

	var flipped int
	for _, tx := range txs {
		updated, err := cli.billingSvc.MarkOverdue(ctx, tx.ID, now)
		if err != nil {
			return err
		}
		if updated.Status == billing.StatusOverdue {
			flipped++
		}
	}
	fmt.Printf("marked %d of %d transaction(s) overdue\n", flipped, len(txs))
	return nil
}

func (cli *commandLine) remind(groupID string, channels []core.Channel) error {
	ctx := context.Background()

	grp, err := cli.groupSvc.Get(ctx, groupID)
	if err != nil {
		return err
	}
	statuses, err := cli.groupSvc.MemberStatuses(ctx, grp.ID)
	if err != nil {
		return err
	}
	outcomes, err := cli.reminderSvc.RemindOverdue(ctx, grp, statuses, channels)
	if err != nil {
		return err
	}

	var failed int
	for _, out := range outcomes {
		if !out.OK() {
			failed++
			fmt.Printf("  %s via %s: %v\n", out.PayerID, out.Channel, out.Err)
		}
	}
	fmt.Printf("reminded: %d send(s), %d failed\n", len(outcomes), failed)
	return nil
}
