package service

import (
	"context"
	"log"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

// CatalogService serves product reads outside of order placement. Placement
// never goes through the cache.
type CatalogService struct {
	products port.ProductReader
	cache    port.ProductCache
}

func NewCatalogService(products port.ProductReader, cache port.ProductCache) *CatalogService {
	return &CatalogService{products: products, cache: cache}
}

// GetProduct reports inactive products as not found. Only active products
// are cached.
func (s *CatalogService) GetProduct(ctx context.Context, productID int64) (*domain.Product, error) {
	if s.cache != nil {
		p, err := s.cache.GetProduct(ctx, productID)
		if err != nil {
			log.Printf("catalog: cache read failed for product %d: %v", productID, err)
		} else if p != nil {
			if !p.Active {
				return nil, &domain.ProductNotFoundError{ProductID: productID}
			}
			return p, nil
		}
	}

	p, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		return nil, &domain.StorageError{Op: "get product", Err: err}
	}
	if p == nil || !p.Active {
		return nil, &domain.ProductNotFoundError{ProductID: productID}
	}

	if s.cache != nil {
		if err := s.cache.SetProduct(ctx, *p); err != nil {
			log.Printf("catalog: cache write failed for product %d: %v", productID, err)
		}
	}
	return p, nil
}

// ListProducts returns one page of active products. Paging follows
// ListOrders: a negative offset reads from the start and limit is clamped to
// (0, maxListLimit].
func (s *CatalogService) ListProducts(ctx context.Context, offset, limit int) ([]domain.Product, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	all, err := s.products.ListProducts(ctx)
	if err != nil {
		return nil, &domain.StorageError{Op: "list products", Err: err}
	}

	active := make([]domain.Product, 0, len(all))
	for _, p := range all {
		if p.Active {
			active = append(active, p)
		}
	}
	if offset >= len(active) {
		return []domain.Product{}, nil
	}
	end := min(offset+limit, len(active))
	return active[offset:end], nil
}
