package inmemdb

import (
	"context"

	"github.com/google/uuid"

	"github.com/trezcool/malipo/core/order"
)

type orderRepository struct {
	db *orderTable
}

var _ order.Repository = (*orderRepository)(nil) // interface compliance check

func NewOrderRepository(db *DB) *orderRepository {
	return &orderRepository{db: db.order}
}

func (repo *orderRepository) CreateOrder(ctx context.Context, ord order.Order) (order.Order, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	ord.ID = uuid.New().String()
	ord.Version = 1
	repo.db.table[ord.ID] = &ord
	return ord, nil
}

func (repo *orderRepository) GetOrder(ctx context.Context, id string) (order.Order, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if ord, ok := repo.db.table[id]; ok {
		return *ord, nil
	}
	return order.Order{}, order.ErrNotFound
}

func (repo *orderRepository) UpdateOrder(ctx context.Context, ord order.Order) (order.Order, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.table[ord.ID]
	if !ok {
		return order.Order{}, order.ErrNotFound
	}
	if orig.Version != ord.Version {
		return order.Order{}, order.ErrVersionConflict
	}
	ord.Version++
	repo.db.table[ord.ID] = &ord
	return ord, nil
}

func (repo *orderRepository) QueryOrdersByPayer(ctx context.Context, payerID string) ([]order.Order, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	orders := make([]order.Order, 0)
	for _, ord := range repo.db.table {
		if ord.PayerID == payerID {
			orders = append(orders, *ord)
		}
	}
	return orders, nil
}
