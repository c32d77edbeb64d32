package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/malipo/core"
	"github.com/trezcool/malipo/core/billing"
	"github.com/trezcool/malipo/core/order"
)

type orderRepository struct {
	db *sqlx.DB
}

var _ order.Repository = (*orderRepository)(nil) // interface compliance check

func NewOrderRepository(db *sqlx.DB) *orderRepository {
	return &orderRepository{db: db}
}

type orderRow struct {
	ID             string          `db:"id"`
	PayerID        string          `db:"payer_id"`
	SchoolID       string          `db:"school_id"`
	StudentID      string          `db:"student_id"`
	Subtotal       decimal.Decimal `db:"subtotal"`
	FinalAmount    decimal.Decimal `db:"final_amount"`
	Currency       string          `db:"currency"`
	PaymentMethod  string          `db:"payment_method"`
	Status         string          `db:"status"`
	PaymentSettled bool            `db:"payment_settled"`
	TransactionID  string          `db:"transaction_id"`
	OrderDate      time.Time       `db:"order_date"`
	Version        int             `db:"version"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

type orderItemRow struct {
	ID        int64           `db:"id"`
	OrderID   string          `db:"order_id"`
	ProductID string          `db:"product_id"`
	Quantity  int             `db:"quantity"`
	UnitPrice decimal.Decimal `db:"unit_price"`
	Currency  string          `db:"currency"`
}

func (repo orderRepository) row(ord order.Order) orderRow {
	return orderRow{
		ID:             ord.ID,
		PayerID:        ord.PayerID,
		SchoolID:       ord.SchoolID,
		StudentID:      ord.StudentID,
		Subtotal:       ord.Subtotal.Amount,
		FinalAmount:    ord.FinalAmount.Amount,
		Currency:       ord.FinalAmount.Currency,
		PaymentMethod:  string(ord.PaymentMethod),
		Status:         string(ord.Status),
		PaymentSettled: ord.PaymentSettled,
		TransactionID:  ord.TransactionID,
		OrderDate:      ord.OrderDate.UTC(),
		Version:        ord.Version,
		UpdatedAt:      ord.UpdatedAt.UTC(),
	}
}

func (repo orderRepository) unrow(row orderRow, items []orderItemRow) order.Order {
	ord := order.Order{
		ID:             row.ID,
		PayerID:        row.PayerID,
		SchoolID:       row.SchoolID,
		StudentID:      row.StudentID,
		Subtotal:       core.NewMoney(row.Subtotal, row.Currency),
		FinalAmount:    core.NewMoney(row.FinalAmount, row.Currency),
		PaymentMethod:  billing.Method(row.PaymentMethod),
		Status:         order.Status(row.Status),
		PaymentSettled: row.PaymentSettled,
		TransactionID:  row.TransactionID,
		OrderDate:      row.OrderDate.UTC(),
		Version:        row.Version,
		UpdatedAt:      row.UpdatedAt.UTC(),
	}
	for _, it := range items {
		ord.Items = append(ord.Items, order.Item{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: core.NewMoney(it.UnitPrice, it.Currency),
		})
	}
	return ord
}

func (repo *orderRepository) CreateOrder(ctx context.Context, ord order.Order) (order.Order, error) {
	row := repo.row(ord)
	row.Version = 1

	dbtx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return order.Order{}, errors.Wrap(err, "beginning order insert")
	}
	defer func() { _ = dbtx.Rollback() }()

	query := `
		INSERT INTO "order" (
			payer_id, school_id, student_id, subtotal, final_amount, currency,
			payment_method, status, payment_settled, transaction_id, order_date,
			version, updated_at
		) VALUES (
			:payer_id, :school_id, :student_id, :subtotal, :final_amount, :currency,
			:payment_method, :status, :payment_settled, :transaction_id, :order_date,
			:version, :updated_at
		) RETURNING id`
	rows, err := sqlx.NamedQueryContext(ctx, dbtx, query, row)
	if err != nil {
		return order.Order{}, errors.Wrap(err, "inserting order")
	}
	if rows.Next() {
		if err = rows.Scan(&row.ID); err != nil {
			_ = rows.Close()
			return order.Order{}, errors.Wrap(err, "scanning order id")
		}
	}
	if err = rows.Err(); err != nil {
		_ = rows.Close()
		return order.Order{}, errors.Wrap(err, "inserting order")
	}
	_ = rows.Close()

	itemQuery := `
		INSERT INTO order_item (order_id, product_id, quantity, unit_price, currency)
		VALUES (:order_id, :product_id, :quantity, :unit_price, :currency)`
	for _, it := range ord.Items {
		itemRow := orderItemRow{
			OrderID:   row.ID,
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice.Amount,
			Currency:  it.UnitPrice.Currency,
		}
		if _, err = sqlx.NamedExecContext(ctx, dbtx, itemQuery, itemRow); err != nil {
			return order.Order{}, errors.Wrap(err, "inserting order item")
		}
	}

	if err = dbtx.Commit(); err != nil {
		return order.Order{}, errors.Wrap(err, "committing order insert")
	}
	created := repo.unrow(row, nil)
	created.Items = ord.Items
	return created, nil
}

func (repo *orderRepository) GetOrder(ctx context.Context, id string) (order.Order, error) {
	var row orderRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM "order" WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return order.Order{}, order.ErrNotFound
		}
		return order.Order{}, errors.Wrap(err, "getting order")
	}
	items, err := repo.items(ctx, id)
	if err != nil {
		return order.Order{}, err
	}
	return repo.unrow(row, items), nil
}

func (repo *orderRepository) UpdateOrder(ctx context.Context, ord order.Order) (order.Order, error) {
	row := repo.row(ord)
	query := `
		UPDATE "order" SET
			status = :status, payment_settled = :payment_settled,
			transaction_id = :transaction_id, version = version + 1,
			updated_at = :updated_at
		WHERE id = :id AND version = :version`
	res, err := sqlx.NamedExecContext(ctx, repo.db, query, row)
	if err != nil {
		return order.Order{}, errors.Wrap(err, "updating order")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return order.Order{}, errors.Wrap(err, "updating order")
	}
	if n == 0 {
		if _, err := repo.GetOrder(ctx, ord.ID); err != nil {
			return order.Order{}, err
		}
		return order.Order{}, order.ErrVersionConflict
	}
	ord.Version++
	return ord, nil
}

func (repo *orderRepository) QueryOrdersByPayer(ctx context.Context, payerID string) ([]order.Order, error) {
	var rows []orderRow
	if err := repo.db.SelectContext(ctx, &rows, `SELECT * FROM "order" WHERE payer_id = $1 ORDER BY order_date DESC`, payerID); err != nil {
		return nil, errors.Wrap(err, "querying orders")
	}
	orders := make([]order.Order, 0, len(rows))
	for _, row := range rows {
		items, err := repo.items(ctx, row.ID)
		if err != nil {
			return nil, err
		}
		orders = append(orders, repo.unrow(row, items))
	}
	return orders, nil
}

func (repo *orderRepository) items(ctx context.Context, orderID string) ([]orderItemRow, error) {
	var items []orderItemRow
	if err := repo.db.SelectContext(ctx, &items, `SELECT * FROM order_item WHERE order_id = $1 ORDER BY id`, orderID); err != nil {
		return nil, errors.Wrap(err, "querying order items")
	}
	return items, nil
}
