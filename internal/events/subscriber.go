package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/events"
	"github.com/appetiteclub/kds/internal/kds"
	"github.com/appetiteclub/kds/pkg/event"
)

// OrderSubscriber consumes order placement events and feeds them into the
// routing engine. Malformed payloads are logged and dropped, never retried:
// a payload that fails to decode once will fail forever.
type OrderSubscriber struct {
	subscriber events.Subscriber
	router     *kds.Router
	logger     apt.Logger
}

func NewOrderSubscriber(subscriber events.Subscriber, router *kds.Router, logger apt.Logger) *OrderSubscriber {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &OrderSubscriber{
		subscriber: subscriber,
		router:     router,
		logger:     logger,
	}
}

func (s *OrderSubscriber) Start(ctx context.Context) error {
	s.logger.Info("Starting OrderSubscriber for topic: " + event.OrdersCreatedTopic)

	if err := s.subscriber.Subscribe(ctx, event.OrdersCreatedTopic, s.handleEvent); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", event.OrdersCreatedTopic, err)
	}

	s.logger.Info("OrderSubscriber started successfully")
	return nil
}

func (s *OrderSubscriber) handleEvent(ctx context.Context, msg []byte) error {
	var evt event.OrderCreatedEvent
	if err := json.Unmarshal(msg, &evt); err != nil {
		s.logger.Errorf("Failed to unmarshal event: %v", err)
		return nil
	}

	if evt.EventType != event.EventOrderCreated {
		s.logger.Infof("Unknown event type: %s", evt.EventType)
		return nil
	}

	if len(evt.LineItems) == 0 {
		s.logger.Info("order has no line items, nothing to route", "order_id", evt.OrderID)
		return nil
	}

	if err := s.router.RouteOrder(ctx, &evt); err != nil {
		s.logger.Errorf("Failed to route order %s: %v", evt.OrderID, err)
		return err
	}
	return nil
}
