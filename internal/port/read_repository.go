package port

import (
	"context"

	"github.com/rl1809/storefront/internal/core/domain"
)

type ProductReader interface {
	// GetProduct returns nil, nil when the product does not exist.
	GetProduct(ctx context.Context, productID int64) (*domain.Product, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
}

type OrderReader interface {
	// GetOrder returns the order with its lines, or nil, nil when missing.
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)

	// ListOrders returns orders newest first. An empty userID lists every order.
	ListOrders(ctx context.Context, userID string, offset, limit int) ([]domain.Order, error)
}

// Store is what every storage adapter provides.
type Store interface {
	UnitOfWork
	ProductReader
	OrderReader
}
