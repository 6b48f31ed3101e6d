package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
	"github.com/rl1809/storefront/internal/telemetry"
)

const (
	defaultListLimit = 100
	maxListLimit     = 100

	defaultCacheRecheckDelay = 500 * time.Millisecond
)

type OrderService struct {
	store   port.Store
	cache   port.ProductCache
	metrics *telemetry.Metrics
	tracer  trace.Tracer
	timeout time.Duration
	recheck time.Duration
	now     func() time.Time
	newID   func() string

	mu         sync.RWMutex
	closed     bool
	eventQueue chan domain.OrderPlacedEvent
}

type Option func(*OrderService)

func WithCache(cache port.ProductCache) Option {
	return func(s *OrderService) { s.cache = cache }
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *OrderService) { s.metrics = m }
}

// WithTimeout bounds a single placement. The transaction rolls back if the
// deadline passes before commit.
func WithTimeout(d time.Duration) Option {
	return func(s *OrderService) { s.timeout = d }
}

// WithCacheRecheckDelay sets how long after commit the touched products are
// invalidated a second time. A catalog read that loaded the old stock before
// commit can refill the cache after the first invalidation; the second one
// evicts it. Zero or negative disables the second pass.
func WithCacheRecheckDelay(d time.Duration) Option {
	return func(s *OrderService) { s.recheck = d }
}

func WithClock(now func() time.Time) Option {
	return func(s *OrderService) { s.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(s *OrderService) { s.newID = newID }
}

func NewOrderService(store port.Store, queueSize int, opts ...Option) *OrderService {
	s := &OrderService{
		store:      store,
		tracer:     otel.Tracer("github.com/rl1809/storefront/order-service"),
		recheck:    defaultCacheRecheckDelay,
		now:        time.Now,
		newID:      func() string { return uuid.New().String() },
		eventQueue: make(chan domain.OrderPlacedEvent, queueSize),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PlaceOrder validates the requested lines, decrements stock and writes the
// order in a single transaction. The returned order is committed. Placing the
// same payload twice creates two orders.
func (s *OrderService) PlaceOrder(ctx context.Context, userID string, lines []domain.LineRequest, shippingAddress *string) (*domain.Order, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "order.place", trace.WithAttributes(
		attribute.String("user.id", userID),
		attribute.Int("order.lines", len(lines)),
	))
	defer span.End()

	order, err := s.placeOrder(ctx, userID, lines, shippingAddress)
	s.metrics.ObservePlaceOrder(placementResult(err), time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.String("order.id", order.ID),
		attribute.String("order.total", order.TotalAmount.StringFixed(2)),
	)
	s.afterCommit(ctx, order)
	return order, nil
}

func (s *OrderService) placeOrder(ctx context.Context, userID string, lines []domain.LineRequest, shippingAddress *string) (*domain.Order, error) {
	if err := validateRequest(userID, lines); err != nil {
		return nil, err
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	var order *domain.Order
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		draft, err := s.assemble(ctx, tx, userID, lines, shippingAddress)
		if err != nil {
			return err
		}
		if err := s.applyDecrements(ctx, tx, draft); err != nil {
			return err
		}
		order, err = s.persist(ctx, tx, draft)
		return err
	})
	if err != nil {
		if domain.IsOrderPlacementError(err) {
			return nil, err
		}
		return nil, &domain.StorageError{Op: "place order", Err: err}
	}

	return order, nil
}

func validateRequest(userID string, lines []domain.LineRequest) error {
	if userID == "" {
		return &domain.ValidationError{Reason: "user id is required"}
	}
	if len(lines) == 0 {
		return &domain.ValidationError{Reason: "order must contain at least one item"}
	}
	demand := make(map[int64]int, len(lines))
	for i, l := range lines {
		if l.Quantity <= 0 {
			return &domain.ValidationError{
				Reason: fmt.Sprintf("item %d: quantity must be greater than 0, got %d", i, l.Quantity),
			}
		}
		if l.Quantity > domain.MaxQuantity {
			return &domain.ValidationError{
				Reason: fmt.Sprintf("item %d: quantity must be at most %d, got %d", i, domain.MaxQuantity, l.Quantity),
			}
		}
		if demand[l.ProductID] > domain.MaxQuantity-l.Quantity {
			return &domain.ValidationError{
				Reason: fmt.Sprintf("product %d: total quantity must be at most %d", l.ProductID, domain.MaxQuantity),
			}
		}
		demand[l.ProductID] += l.Quantity
	}
	return nil
}

// assemble locks every referenced product row in ascending id order, checks
// that the summed demand per product is in stock and prices each line. It does
// not write.
func (s *OrderService) assemble(ctx context.Context, tx port.Tx, userID string, lines []domain.LineRequest, shippingAddress *string) (*domain.Draft, error) {
	products := make(map[int64]*domain.Product, len(lines))
	for _, id := range distinctProductIDs(lines) {
		p, err := tx.GetProductForUpdate(ctx, id)
		if err != nil {
			return nil, &domain.StorageError{Op: "read product", Err: err}
		}
		if p == nil || !p.Active {
			return nil, &domain.ProductNotFoundError{ProductID: id}
		}
		products[id] = p
	}

	draft := &domain.Draft{
		UserID:          userID,
		ShippingAddress: shippingAddress,
		Total:           decimal.Zero,
	}
	for _, l := range lines {
		price := products[l.ProductID].Price
		subtotal := price.Mul(decimal.NewFromInt(int64(l.Quantity)))
		draft.Lines = append(draft.Lines, domain.DraftLine{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: price,
			Subtotal:  subtotal,
		})
		draft.Total = draft.Total.Add(subtotal)
	}

	demand := draft.Demand()
	for _, l := range draft.Lines {
		p := products[l.ProductID]
		if demand[p.ID] > p.StockQuantity {
			return nil, &domain.InsufficientStockError{
				ProductID: p.ID,
				Available: p.StockQuantity,
				Requested: demand[p.ID],
			}
		}
	}

	return draft, nil
}

// applyDecrements re-checks availability at write time. A failed conditional
// decrement aborts the unit of work, which undoes earlier decrements.
func (s *OrderService) applyDecrements(ctx context.Context, tx port.Tx, draft *domain.Draft) error {
	demand := draft.Demand()
	for _, id := range sortedKeys(demand) {
		ok, err := tx.DecrementStock(ctx, id, demand[id])
		if err != nil {
			return &domain.StorageError{Op: "decrement stock", Err: err}
		}
		if ok {
			continue
		}

		available := 0
		p, err := tx.GetProductForUpdate(ctx, id)
		if err != nil {
			return &domain.StorageError{Op: "read product", Err: err}
		}
		if p != nil {
			available = p.StockQuantity
		}
		return &domain.InsufficientStockError{ProductID: id, Available: available, Requested: demand[id]}
	}
	return nil
}

func (s *OrderService) persist(ctx context.Context, tx port.Tx, draft *domain.Draft) (*domain.Order, error) {
	now := s.now().UTC().Truncate(time.Microsecond)
	order := &domain.Order{
		ID:              s.newID(),
		UserID:          draft.UserID,
		TotalAmount:     draft.Total,
		Status:          domain.OrderStatusPending,
		ShippingAddress: draft.ShippingAddress,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for _, l := range draft.Lines {
		order.Lines = append(order.Lines, domain.OrderLine{
			ID:        s.newID(),
			OrderID:   order.ID,
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			CreatedAt: now,
		})
	}

	if err := tx.InsertOrder(ctx, order); err != nil {
		return nil, &domain.StorageError{Op: "insert order", Err: err}
	}
	return order, nil
}

func (s *OrderService) afterCommit(ctx context.Context, order *domain.Order) {
	if s.cache != nil {
		ids := make([]int64, 0, len(order.Lines))
		for _, l := range order.Lines {
			ids = append(ids, l.ProductID)
		}
		bg := context.WithoutCancel(ctx)
		if err := s.cache.InvalidateProducts(bg, ids...); err != nil {
			log.Printf("order service: cache invalidation failed for order %s: %v", order.ID, err)
		}
		if s.recheck > 0 {
			time.AfterFunc(s.recheck, func() {
				if err := s.cache.InvalidateProducts(bg, ids...); err != nil {
					log.Printf("order service: delayed cache invalidation failed for order %s: %v", order.ID, err)
				}
			})
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.eventQueue <- domain.NewOrderPlacedEvent(order):
	default:
		log.Printf("order service: event queue full, dropping order.placed for %s", order.ID)
	}
}

func (s *OrderService) GetOrder(ctx context.Context, requester domain.Requester, orderID string) (*domain.Order, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, &domain.StorageError{Op: "get order", Err: err}
	}
	if order == nil {
		return nil, fmt.Errorf("order %s: %w", orderID, domain.ErrOrderNotFound)
	}
	if !requester.CanView(order) {
		return nil, domain.ErrForbidden
	}
	return order, nil
}

// ListOrders returns the requester's orders, or every order for admins.
func (s *OrderService) ListOrders(ctx context.Context, requester domain.Requester, offset, limit int) ([]domain.Order, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	userID := requester.UserID
	if requester.IsAdmin {
		userID = ""
	}

	orders, err := s.store.ListOrders(ctx, userID, offset, limit)
	if err != nil {
		return nil, &domain.StorageError{Op: "list orders", Err: err}
	}
	return orders, nil
}

func (s *OrderService) GetEventQueue() <-chan domain.OrderPlacedEvent {
	return s.eventQueue
}

func (s *OrderService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.eventQueue)
	}
}

func placementResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrValidation):
		return "invalid"
	case errors.Is(err, domain.ErrProductNotFound):
		return "product_not_found"
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient_stock"
	default:
		return "storage_error"
	}
}

func distinctProductIDs(lines []domain.LineRequest) []int64 {
	seen := make(map[int64]int, len(lines))
	for _, l := range lines {
		seen[l.ProductID] += l.Quantity
	}
	return sortedKeys(seen)
}

func sortedKeys(m map[int64]int) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
