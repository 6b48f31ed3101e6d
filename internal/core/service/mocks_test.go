package service

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

type mockStore struct {
	mock.Mock
	tx port.Tx
}

func (m *mockStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx port.Tx) error) error {
	m.Called(ctx)
	return fn(ctx, m.tx)
}

func (m *mockStore) GetProduct(ctx context.Context, productID int64) (*domain.Product, error) {
	args := m.Called(ctx, productID)
	p, _ := args.Get(0).(*domain.Product)
	return p, args.Error(1)
}

func (m *mockStore) ListProducts(ctx context.Context) ([]domain.Product, error) {
	args := m.Called(ctx)
	products, _ := args.Get(0).([]domain.Product)
	return products, args.Error(1)
}

func (m *mockStore) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	args := m.Called(ctx, orderID)
	o, _ := args.Get(0).(*domain.Order)
	return o, args.Error(1)
}

func (m *mockStore) ListOrders(ctx context.Context, userID string, offset, limit int) ([]domain.Order, error) {
	args := m.Called(ctx, userID, offset, limit)
	orders, _ := args.Get(0).([]domain.Order)
	return orders, args.Error(1)
}

type mockTx struct {
	mock.Mock
}

func (m *mockTx) GetProductForUpdate(ctx context.Context, productID int64) (*domain.Product, error) {
	args := m.Called(ctx, productID)
	p, _ := args.Get(0).(*domain.Product)
	return p, args.Error(1)
}

func (m *mockTx) DecrementStock(ctx context.Context, productID int64, quantity int) (bool, error) {
	args := m.Called(ctx, productID, quantity)
	return args.Bool(0), args.Error(1)
}

func (m *mockTx) InsertOrder(ctx context.Context, order *domain.Order) error {
	return m.Called(ctx, order).Error(0)
}

type mockCache struct {
	mock.Mock
}

func (m *mockCache) GetProduct(ctx context.Context, productID int64) (*domain.Product, error) {
	args := m.Called(ctx, productID)
	p, _ := args.Get(0).(*domain.Product)
	return p, args.Error(1)
}

func (m *mockCache) SetProduct(ctx context.Context, product domain.Product) error {
	return m.Called(ctx, product).Error(0)
}

func (m *mockCache) InvalidateProducts(ctx context.Context, productIDs ...int64) error {
	return m.Called(ctx, productIDs).Error(0)
}

// recordingPublisher keeps every event it is handed.
type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.OrderPlacedEvent
	err    error
}

func (p *recordingPublisher) PublishOrderPlaced(ctx context.Context, event domain.OrderPlacedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) Events() []domain.OrderPlacedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.OrderPlacedEvent(nil), p.events...)
}
