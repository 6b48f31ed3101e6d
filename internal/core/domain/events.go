package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const OrderPlacedQueue = "order.placed"

type OrderPlacedEvent struct {
	OrderID     string           `json:"order_id"`
	UserID      string           `json:"user_id"`
	TotalAmount decimal.Decimal  `json:"total_amount"`
	Items       []OrderItemEvent `json:"items"`
	PlacedAt    time.Time        `json:"placed_at"`
}

type OrderItemEvent struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

func NewOrderPlacedEvent(order *Order) OrderPlacedEvent {
	event := OrderPlacedEvent{
		OrderID:     order.ID,
		UserID:      order.UserID,
		TotalAmount: order.TotalAmount,
		PlacedAt:    order.CreatedAt,
	}
	for _, l := range order.Lines {
		event.Items = append(event.Items, OrderItemEvent{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
		})
	}
	return event
}
