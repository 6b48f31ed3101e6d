package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

// MemoryAdapter keeps everything in process. A unit of work holds the store
// lock from start to commit, so transactions are serial. Writes are staged and
// only applied when fn succeeds.
type MemoryAdapter struct {
	mu            sync.Mutex
	products      map[int64]domain.Product
	orders        map[string]domain.Order
	nextProductID int64
}

func NewMemoryAdapter(products ...domain.Product) *MemoryAdapter {
	m := &MemoryAdapter{
		products:      make(map[int64]domain.Product),
		orders:        make(map[string]domain.Order),
		nextProductID: 1,
	}
	for _, p := range products {
		m.PutProduct(p)
	}
	return m
}

// DemoProducts is the catalog the demo server starts with.
func DemoProducts() []domain.Product {
	return []domain.Product{
		{ID: 1, Name: "Laptop", Price: decimal.RequireFromString("999.99"), StockQuantity: 10, Active: true},
		{ID: 2, Name: "Mouse", Price: decimal.RequireFromString("29.99"), StockQuantity: 50, Active: true},
		{ID: 3, Name: "Keyboard", Price: decimal.RequireFromString("79.99"), StockQuantity: 25, Active: true},
	}
}

// PutProduct inserts or replaces a product. A zero ID gets the next free one.
func (m *MemoryAdapter) PutProduct(p domain.Product) domain.Product {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p.ID == 0 {
		p.ID = m.nextProductID
	}
	if p.ID >= m.nextProductID {
		m.nextProductID = p.ID + 1
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	m.products[p.ID] = p
	return p
}

func (m *MemoryAdapter) WithinTx(ctx context.Context, fn func(ctx context.Context, tx port.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memoryTx{store: m, stock: make(map[int64]int)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	now := time.Now().UTC()
	for id, qty := range tx.stock {
		p := m.products[id]
		p.StockQuantity = qty
		p.UpdatedAt = now
		m.products[id] = p
	}
	for _, o := range tx.orders {
		m.orders[o.ID] = o
	}
	return nil
}

type memoryTx struct {
	store  *MemoryAdapter
	stock  map[int64]int
	orders []domain.Order
}

func (t *memoryTx) GetProductForUpdate(ctx context.Context, productID int64) (*domain.Product, error) {
	p, ok := t.store.products[productID]
	if !ok {
		return nil, nil
	}
	if qty, staged := t.stock[productID]; staged {
		p.StockQuantity = qty
	}
	return &p, nil
}

func (t *memoryTx) DecrementStock(ctx context.Context, productID int64, quantity int) (bool, error) {
	if quantity <= 0 {
		return false, fmt.Errorf("update stock: quantity must be positive, got %d", quantity)
	}
	p, err := t.GetProductForUpdate(ctx, productID)
	if err != nil || p == nil {
		return false, err
	}
	if p.StockQuantity < quantity {
		return false, nil
	}
	t.stock[productID] = p.StockQuantity - quantity
	return true, nil
}

func (t *memoryTx) InsertOrder(ctx context.Context, order *domain.Order) error {
	if order.ID == "" {
		return fmt.Errorf("insert order: empty id")
	}
	if _, exists := t.store.orders[order.ID]; exists {
		return fmt.Errorf("insert order: duplicate id %s", order.ID)
	}
	for _, l := range order.Lines {
		if _, ok := t.store.products[l.ProductID]; !ok {
			return fmt.Errorf("insert order item: unknown product %d", l.ProductID)
		}
	}
	t.orders = append(t.orders, copyOrder(*order))
	return nil
}

func (m *MemoryAdapter) GetProduct(ctx context.Context, productID int64) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[productID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *MemoryAdapter) ListProducts(ctx context.Context) ([]domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	products := make([]domain.Product, 0, len(m.products))
	for _, p := range m.products {
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	return products, nil
}

func (m *MemoryAdapter) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok {
		return nil, nil
	}
	o = copyOrder(o)
	return &o, nil
}

func (m *MemoryAdapter) ListOrders(ctx context.Context, userID string, offset, limit int) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var orders []domain.Order
	for _, o := range m.orders {
		if userID == "" || o.UserID == userID {
			orders = append(orders, copyOrder(o))
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.After(orders[j].CreatedAt)
		}
		return orders[i].ID < orders[j].ID
	})

	if offset >= len(orders) {
		return nil, nil
	}
	end := offset + limit
	if end > len(orders) {
		end = len(orders)
	}
	return orders[offset:end], nil
}

func copyOrder(o domain.Order) domain.Order {
	o.Lines = append([]domain.OrderLine(nil), o.Lines...)
	return o
}
