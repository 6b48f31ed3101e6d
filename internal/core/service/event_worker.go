package service

import (
	"context"
	"log"
	"time"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

const publishTimeout = 5 * time.Second

// RunEventWorker publishes order.placed events until queue is closed. Orders
// are already committed, so a failed publish is logged and the event dropped.
func RunEventWorker(id int, queue <-chan domain.OrderPlacedEvent, publisher port.EventPublisher) {
	for event := range queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)

		if err := publisher.PublishOrderPlaced(ctx, event); err != nil {
			log.Printf("worker %d: failed to publish order.placed for %s: %v", id, event.OrderID, err)
		} else {
			log.Printf("worker %d: published order.placed for %s", id, event.OrderID)
		}

		cancel()
	}
}
