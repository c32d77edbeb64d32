package inmemdb

import (
	"sync"
	"time"

	"github.com/trezcool/malipo/core"
	"github.com/trezcool/malipo/core/billing"
	"github.com/trezcool/malipo/core/credit"
	"github.com/trezcool/malipo/core/group"
	"github.com/trezcool/malipo/core/order"
)

type (
	DB struct {
		transaction *transactionTable
		order       *orderTable
		account     *accountTable
		group       *groupTable
		roster      *rosterTable
	}

	transactionTable struct {
		table map[string]*billing.Transaction
		mutex sync.RWMutex
	}

	orderTable struct {
		table map[string]*order.Order
		mutex sync.RWMutex
	}

	accountTable struct {
		accounts map[string]*credit.Account
		entries  map[string][]credit.Entry
		mutex    sync.RWMutex
	}

	groupTable struct {
		table  map[string]*group.Group
		cycles map[cycleKey]struct{}
		mutex  sync.RWMutex
	}

	cycleKey struct {
		groupID string
		dueDate string // calendar date, UTC
	}

	rosterTable struct {
		cohorts    map[string][]string // cohortID -> studentIDs
		payers     map[string]string   // studentID -> payerID
		recipients map[string]core.Recipient
		mutex      sync.RWMutex
	}
)

func Open() (*DB, error) {
	db := &DB{
		transaction: &transactionTable{table: make(map[string]*billing.Transaction)},
		order:       &orderTable{table: make(map[string]*order.Order)},
		account: &accountTable{
			accounts: make(map[string]*credit.Account),
			entries:  make(map[string][]credit.Entry),
		},
		group: &groupTable{
			table:  make(map[string]*group.Group),
			cycles: make(map[cycleKey]struct{}),
		},
		roster: &rosterTable{
			cohorts:    make(map[string][]string),
			payers:     make(map[string]string),
			recipients: make(map[string]core.Recipient),
		},
	}
	return db, nil
}

func cycleKeyFor(groupID string, dueDate time.Time) cycleKey {
	return cycleKey{groupID: groupID, dueDate: dueDate.UTC().Format("2006-01-02")}
}
