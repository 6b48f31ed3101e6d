package storage

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

// seedFunc creates an active product and returns its id.
type seedFunc func(t *testing.T, name, price string, stock int) int64

func runStoreContract(t *testing.T, store port.Store, seed seedFunc) {
	t.Run("ConditionalDecrement", func(t *testing.T) {
		ctx := context.Background()
		id := seed(t, "decrement", "29.99", 10)

		err := store.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
			ok, err := tx.DecrementStock(ctx, id, 3)
			require.NoError(t, err)
			assert.True(t, ok)

			p, err := tx.GetProductForUpdate(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, 7, p.StockQuantity, "reads inside the tx see its own writes")

			ok, err = tx.DecrementStock(ctx, id, 8)
			require.NoError(t, err)
			assert.False(t, ok)
			return nil
		})
		require.NoError(t, err)

		p, err := store.GetProduct(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 7, p.StockQuantity)
		assert.True(t, p.Price.Equal(decimal.RequireFromString("29.99")))
	})

	t.Run("RejectsNonPositiveDecrement", func(t *testing.T) {
		ctx := context.Background()
		id := seed(t, "non-positive", "1.00", 5)

		for _, qty := range []int{0, -3} {
			err := store.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
				ok, err := tx.DecrementStock(ctx, id, qty)
				assert.False(t, ok)
				return err
			})
			assert.Error(t, err, "quantity %d", qty)
		}

		p, err := store.GetProduct(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 5, p.StockQuantity)
	})

	t.Run("MissingProduct", func(t *testing.T) {
		ctx := context.Background()
		err := store.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
			p, err := tx.GetProductForUpdate(ctx, 987654321)
			assert.Nil(t, p)
			return err
		})
		require.NoError(t, err)

		p, err := store.GetProduct(ctx, 987654321)
		require.NoError(t, err)
		assert.Nil(t, p)
	})

	t.Run("RollbackOnError", func(t *testing.T) {
		ctx := context.Background()
		id := seed(t, "rollback", "5.00", 4)
		order := newTestOrder("rollback-user", id, 2, "5.00")
		boom := errors.New("writer failed")

		err := store.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
			ok, err := tx.DecrementStock(ctx, id, 2)
			require.NoError(t, err)
			require.True(t, ok)
			require.NoError(t, tx.InsertOrder(ctx, order))
			return boom
		})
		require.ErrorIs(t, err, boom)

		p, err := store.GetProduct(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 4, p.StockQuantity)

		got, err := store.GetOrder(ctx, order.ID)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("CancelledContextRollsBack", func(t *testing.T) {
		id := seed(t, "cancel", "1.00", 3)
		ctx, cancel := context.WithCancel(context.Background())

		err := store.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
			if _, err := tx.DecrementStock(ctx, id, 1); err != nil {
				return err
			}
			cancel()
			return ctx.Err()
		})
		require.ErrorIs(t, err, context.Canceled)

		p, err := store.GetProduct(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, 3, p.StockQuantity)
	})

	t.Run("InsertAndReadOrder", func(t *testing.T) {
		ctx := context.Background()
		id := seed(t, "insert", "29.99", 10)
		userID := "reader-" + uuid.NewString()
		first := newTestOrder(userID, id, 3, "29.99")
		second := newTestOrder(userID, id, 1, "29.99")
		second.CreatedAt = first.CreatedAt.Add(time.Second)
		second.UpdatedAt = second.CreatedAt

		for _, o := range []*domain.Order{first, second} {
			err := store.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
				return tx.InsertOrder(ctx, o)
			})
			require.NoError(t, err)
		}

		got, err := store.GetOrder(ctx, first.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, userID, got.UserID)
		assert.Equal(t, domain.OrderStatusPending, got.Status)
		require.NotNil(t, got.ShippingAddress)
		assert.Equal(t, "1 Main St", *got.ShippingAddress)
		assert.True(t, got.TotalAmount.Equal(decimal.RequireFromString("89.97")))
		require.Len(t, got.Lines, 1)
		assert.Equal(t, id, got.Lines[0].ProductID)
		assert.True(t, got.Lines[0].UnitPrice.Equal(decimal.RequireFromString("29.99")))
		assert.True(t, got.TotalAmount.Equal(got.LinesTotal()))
		assert.WithinDuration(t, first.CreatedAt, got.CreatedAt, time.Millisecond)

		orders, err := store.ListOrders(ctx, userID, 0, 10)
		require.NoError(t, err)
		require.Len(t, orders, 2)
		assert.Equal(t, second.ID, orders[0].ID, "newest first")
		assert.Len(t, orders[1].Lines, 1)

		page, err := store.ListOrders(ctx, userID, 1, 10)
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, first.ID, page[0].ID)
	})

	t.Run("ConcurrentLastUnits", func(t *testing.T) {
		ctx := context.Background()
		id := seed(t, "race", "10.00", 5)

		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := store.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
					p, err := tx.GetProductForUpdate(ctx, id)
					if err != nil {
						return err
					}
					if p.StockQuantity < 5 {
						return domain.ErrInsufficientStock
					}
					ok, err := tx.DecrementStock(ctx, id, 5)
					if err != nil {
						return err
					}
					if !ok {
						return domain.ErrInsufficientStock
					}
					return tx.InsertOrder(ctx, newTestOrder("racer", id, 5, "10.00"))
				})
				if err == nil {
					wins.Add(1)
				} else {
					assert.ErrorIs(t, err, domain.ErrInsufficientStock)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), wins.Load())
		p, err := store.GetProduct(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 0, p.StockQuantity)
	})
}

func newTestOrder(userID string, productID int64, qty int, price string) *domain.Order {
	now := time.Now().UTC().Truncate(time.Microsecond)
	address := "1 Main St"
	unit := decimal.RequireFromString(price)
	order := &domain.Order{
		ID:              uuid.NewString(),
		UserID:          userID,
		Status:          domain.OrderStatusPending,
		ShippingAddress: &address,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	order.Lines = []domain.OrderLine{{
		ID:        uuid.NewString(),
		OrderID:   order.ID,
		ProductID: productID,
		Quantity:  qty,
		UnitPrice: unit,
		CreatedAt: now,
	}}
	order.TotalAmount = order.LinesTotal()
	return order
}
