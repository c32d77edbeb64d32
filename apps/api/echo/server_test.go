package echoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	"github.com/go-playground/locales/en"

	"github.com/trezcool/malipo/core"
	"github.com/trezcool/malipo/core/billing"
	"github.com/trezcool/malipo/core/credit"
	"github.com/trezcool/malipo/core/group"
	"github.com/trezcool/malipo/core/order"
	"github.com/trezcool/malipo/core/reminder"
	blobsvc "github.com/trezcool/malipo/services/blob"
	notifysvc "github.com/trezcool/malipo/services/notification"
	cardsvc "github.com/trezcool/malipo/services/payment"
	inmemdb "github.com/trezcool/malipo/storage/database/inmem"
	"github.com/trezcool/malipo/tests"
)

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	wantCode int
	wantData []byte
}

func setup(t *testing.T) (Server, *billing.Service) {
	core.Conf.Debug = false
	core.Conf.TestMode = true

	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("setup() failed: %v", err)
	}
	logger := testutil.NewLogger(t)
	roster := inmemdb.NewRosterRepository(db)
	roster.SeedRecipient(core.Recipient{PayerID: "payer1", Name: "Jane Doe", Email: "jane@test.com"})

	creditSvc := credit.NewService(inmemdb.NewCreditRepository(db), logger)
	orderSvc := order.NewService(inmemdb.NewOrderRepository(db), nil, logger)
	billingSvc := billing.NewService(
		inmemdb.NewTransactionRepository(db),
		cardsvc.NewConsoleChargerMock(),
		creditSvc, orderSvc, blobsvc.NewMemoryStore(), logger,
	)
	orderSvc.SetBillCreator(billingSvc)
	groupSvc := group.NewService(inmemdb.NewGroupRepository(db), roster, billingSvc, logger)
	reminderSvc := reminder.NewService(
		map[core.Channel]core.NotificationSender{core.ChannelEmail: notifysvc.NewConsoleSenderMock()},
		roster, logger,
	)

	validate := validator.New()
	translator := newTestTranslator()
	core.InitValidators(validate, translator)

	server := NewServer(&Options{
		DisableReqLogs: true,
		Logger:         logger,
		Validate:       validate,
		Translator:     translator,
		BillingSvc:     billingSvc,
		OrderSvc:       orderSvc,
		CreditSvc:      creditSvc,
		GroupSvc:       groupSvc,
		ReminderSvc:    reminderSvc,
	})
	return server, billingSvc
}

func newTestTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	return req, rec
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	return assert.ObjectsAreEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func createTx(t *testing.T, svc *billing.Service) billing.Transaction {
	t.Helper()
	tx, err := svc.Create(context.Background(), billing.NewTransaction{
		PayerID:  "payer1",
		SchoolID: "sch1",
		Concept:  "Tuition Q1",
		Amount:   testutil.USD(t, "150.00"),
		Method:   billing.MethodBankTransfer,
		DueDate:  time.Date(2021, 9, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("createTx() failed: %v", err)
	}
	return tx
}

func Test_billingApi(t *testing.T) {
	server, svc := setup(t)
	tx := createTx(t, svc)

	tests := []httpTest{
		{
			name: "Create requires a positive amount", method: http.MethodPost, path: "/v1/transactions",
			body: marchallObj(t, billing.NewTransaction{
				PayerID: "payer1", SchoolID: "sch1", Concept: "Tuition Q1",
				Amount: core.ZeroMoney("USD"), Method: billing.MethodCard,
				DueDate: time.Date(2021, 9, 1, 0, 0, 0, 0, time.UTC),
			}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"amount": core.ErrInvalidAmount.Error()}),
		},
		{
			name: "Retrieve", method: http.MethodGet, path: "/v1/transactions/" + tx.ID,
			wantCode: http.StatusOK, wantData: marchallObj(t, tx),
		},
		{
			name: "Retrieve unknown is a 404", method: http.MethodGet, path: "/v1/transactions/nope",
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, map[string]string{"error": billing.ErrNotFound.Error()}),
		},
		{
			name: "Confirm before upload conflicts", method: http.MethodPost, path: "/v1/transactions/" + tx.ID + "/confirm",
			wantCode: http.StatusConflict,
			wantData: marchallObj(t, map[string]string{
				"error":     "transaction " + tx.ID + ": cannot transition from pending to confirmed",
				"current":   "pending",
				"attempted": "confirmed",
			}),
		},
		{
			name: "Upload proof", method: http.MethodPost, path: "/v1/transactions/" + tx.ID + "/proof",
			body:     marchallObj(t, UploadProofRequest{ProofRef: "blob-1", Method: string(billing.MethodBankTransfer)}),
			wantCode: http.StatusOK,
		},
		{
			name: "Confirm proof", method: http.MethodPost, path: "/v1/transactions/" + tx.ID + "/confirm",
			wantCode: http.StatusOK,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.method == "" {
				tt.method = http.MethodGet
			}
			req, rec := newRequest(tt.method, tt.path, tt.body)
			server.ServeHTTP(rec, req)

			if tt.wantData == nil {
				if rec.Code != tt.wantCode {
					t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}

	// the machine is settled end to end
	got, err := svc.Get(context.Background(), tx.ID)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.Status != billing.StatusConfirmed {
		t.Errorf("status = %s, want %s", got.Status, billing.StatusConfirmed)
	}
}

func Test_creditApi(t *testing.T) {
	server, _ := setup(t)

	tests := []httpTest{
		{
			name: "Unknown account is a 404", method: http.MethodGet, path: "/v1/credit-accounts/acme",
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, map[string]string{"error": credit.ErrNotFound.Error()}),
		},
		{
			name: "Credit", method: http.MethodPost, path: "/v1/credit-accounts/acme/credit",
			body:     []byte(`{"amount": {"amount": "100.00", "currency": "USD"}}`),
			wantCode: http.StatusOK,
		},
		{
			name: "Zero amount is rejected", method: http.MethodPost, path: "/v1/credit-accounts/acme/debit",
			body:     []byte(`{"amount": {"amount": "0", "currency": "USD"}}`),
			wantCode: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path, tt.body)
			server.ServeHTTP(rec, req)

			if tt.wantData == nil {
				if rec.Code != tt.wantCode {
					t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}
