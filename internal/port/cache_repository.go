package port

import (
	"context"

	"github.com/rl1809/storefront/internal/core/domain"
)

type ProductCache interface {
	// GetProduct returns nil, nil on a cache miss.
	GetProduct(ctx context.Context, productID int64) (*domain.Product, error)

	SetProduct(ctx context.Context, product domain.Product) error

	// InvalidateProducts drops the cached entries of the given products.
	InvalidateProducts(ctx context.Context, productIDs ...int64) error
}
