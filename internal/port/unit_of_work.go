package port

import (
	"context"

	"github.com/rl1809/storefront/internal/core/domain"
)

// UnitOfWork runs fn inside one transaction. The transaction commits only if fn
// returns nil; any error, panic or context cancellation rolls back every write
// made through tx.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the set of operations available inside a unit of work.
type Tx interface {
	// GetProductForUpdate reads a product and locks its row until the
	// transaction ends. Returns nil, nil when the product does not exist.
	GetProductForUpdate(ctx context.Context, productID int64) (*domain.Product, error)

	// DecrementStock subtracts quantity only if at least quantity units are
	// in stock. Returns false when the condition does not hold and an error
	// when quantity is not positive.
	DecrementStock(ctx context.Context, productID int64, quantity int) (bool, error)

	// InsertOrder writes the order row and all of its lines.
	InsertOrder(ctx context.Context, order *domain.Order) error
}
