package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/storefront/internal/core/domain"
)

func TestCatalog_GetProduct_CacheHit(t *testing.T) {
	store := &mockStore{}
	cache := &mockCache{}
	cached := product(1, "9.99", 3)
	cache.On("GetProduct", mock.Anything, int64(1)).Return(&cached, nil)

	svc := NewCatalogService(store, cache)
	p, err := svc.GetProduct(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "9.99", p.Price.StringFixed(2))
	store.AssertNotCalled(t, "GetProduct", mock.Anything, mock.Anything)
}

func TestCatalog_GetProduct_CacheMissFillsCache(t *testing.T) {
	store := &mockStore{}
	cache := &mockCache{}
	stored := product(1, "9.99", 3)
	cache.On("GetProduct", mock.Anything, int64(1)).Return(nil, nil)
	store.On("GetProduct", mock.Anything, int64(1)).Return(&stored, nil)
	cache.On("SetProduct", mock.Anything, stored).Return(nil)

	svc := NewCatalogService(store, cache)
	p, err := svc.GetProduct(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.ID)
	cache.AssertExpectations(t)
}

func TestCatalog_GetProduct_CacheErrorFallsThrough(t *testing.T) {
	store := &mockStore{}
	cache := &mockCache{}
	stored := product(1, "9.99", 3)
	cache.On("GetProduct", mock.Anything, int64(1)).Return(nil, errors.New("redis down"))
	store.On("GetProduct", mock.Anything, int64(1)).Return(&stored, nil)
	cache.On("SetProduct", mock.Anything, stored).Return(errors.New("redis down"))

	svc := NewCatalogService(store, cache)
	p, err := svc.GetProduct(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.ID)
}

func TestCatalog_GetProduct_Errors(t *testing.T) {
	store := &mockStore{}
	store.On("GetProduct", mock.Anything, int64(1)).Return(nil, nil)
	store.On("GetProduct", mock.Anything, int64(2)).Return(nil, errors.New("connection refused"))

	svc := NewCatalogService(store, nil)

	_, err := svc.GetProduct(context.Background(), 1)
	var notFound *domain.ProductNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, int64(1), notFound.ProductID)

	_, err = svc.GetProduct(context.Background(), 2)
	assert.ErrorIs(t, err, domain.ErrStorage)
}

func TestCatalog_GetProduct_Inactive(t *testing.T) {
	inactive := product(5, "4.00", 2)
	inactive.Active = false

	t.Run("from store", func(t *testing.T) {
		store := &mockStore{}
		cache := &mockCache{}
		cache.On("GetProduct", mock.Anything, int64(5)).Return(nil, nil)
		store.On("GetProduct", mock.Anything, int64(5)).Return(&inactive, nil)

		svc := NewCatalogService(store, cache)
		_, err := svc.GetProduct(context.Background(), 5)
		var notFound *domain.ProductNotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, int64(5), notFound.ProductID)
		cache.AssertNotCalled(t, "SetProduct", mock.Anything, mock.Anything)
	})

	t.Run("from cache", func(t *testing.T) {
		store := &mockStore{}
		cache := &mockCache{}
		cached := inactive
		cache.On("GetProduct", mock.Anything, int64(5)).Return(&cached, nil)

		svc := NewCatalogService(store, cache)
		_, err := svc.GetProduct(context.Background(), 5)
		assert.ErrorIs(t, err, domain.ErrProductNotFound)
		store.AssertNotCalled(t, "GetProduct", mock.Anything, mock.Anything)
	})
}

func TestCatalog_ListProducts_ActiveOnly(t *testing.T) {
	inactive := product(2, "1.00", 1)
	inactive.Active = false
	store := &mockStore{}
	store.On("ListProducts", mock.Anything).Return([]domain.Product{
		product(1, "1.00", 1), inactive, product(3, "1.00", 1),
	}, nil)

	svc := NewCatalogService(store, nil)
	products, err := svc.ListProducts(context.Background(), 0, 0)
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, int64(1), products[0].ID)
	assert.Equal(t, int64(3), products[1].ID)
}

func TestCatalog_ListProducts_Paging(t *testing.T) {
	all := make([]domain.Product, 0, 150)
	for i := int64(1); i <= 150; i++ {
		all = append(all, product(i, "1.00", 1))
	}
	store := &mockStore{}
	store.On("ListProducts", mock.Anything).Return(all, nil)
	svc := NewCatalogService(store, nil)

	tests := []struct {
		name          string
		offset, limit int
		wantLen       int
		wantFirst     int64
	}{
		{"defaults", 0, 0, 100, 1},
		{"limit capped", 0, 500, 100, 1},
		{"skip", 10, 5, 5, 11},
		{"negative offset", -4, 2, 2, 1},
		{"tail", 140, 100, 10, 141},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := svc.ListProducts(context.Background(), tt.offset, tt.limit)
			require.NoError(t, err)
			require.Len(t, page, tt.wantLen)
			assert.Equal(t, tt.wantFirst, page[0].ID)
		})
	}

	page, err := svc.ListProducts(context.Background(), 150, 10)
	require.NoError(t, err)
	assert.NotNil(t, page)
	assert.Empty(t, page)
}
