package kds

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/events"
	"github.com/appetiteclub/kds/pkg/enums/itemstate"
	"github.com/appetiteclub/kds/pkg/event"
	"github.com/google/uuid"
)

// Router fans an incoming order out across the active stations: one PENDING
// item instance per (line item, station) pair whose filter matches. Routing
// is not idempotent by itself; firing order.created once per order is the
// producer's contract.
type Router struct {
	stations  StationRepository
	set       *WorkingSet
	repo      ItemRepository
	gateway   *Gateway
	publisher events.Publisher
	logger    apt.Logger

	// failOpen governs stations with filtering enabled but an empty filter
	// set (config routing.failopen, default true).
	failOpen bool
}

func NewRouter(stations StationRepository, set *WorkingSet, repo ItemRepository, gateway *Gateway, publisher events.Publisher, failOpen bool, logger apt.Logger) *Router {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &Router{
		stations:  stations,
		set:       set,
		repo:      repo,
		gateway:   gateway,
		publisher: publisher,
		failOpen:  failOpen,
		logger:    logger,
	}
}

// RouteOrder creates the item instances for a newly placed order and
// notifies every touched station's subscribers. A line item that matches
// several stations intentionally yields several independent instances.
func (r *Router) RouteOrder(ctx context.Context, evt *event.OrderCreatedEvent) error {
	orderID, err := uuid.Parse(evt.OrderID)
	if err != nil {
		return fmt.Errorf("invalid order_id %q: %w", evt.OrderID, err)
	}

	stations, err := r.stations.List(ctx, true)
	if err != nil {
		return fmt.Errorf("cannot list stations: %w", err)
	}
	sort.SliceStable(stations, func(i, j int) bool {
		return stations[i].DisplayOrder < stations[j].DisplayOrder
	})

	now := time.Now().UTC()
	var created []*ItemInstance

	for _, line := range evt.LineItems {
		lineItemID, err := uuid.Parse(line.LineItemID)
		if err != nil {
			r.logger.Error("skipping line item with invalid id", "line_item_id", line.LineItemID, "order_id", evt.OrderID)
			continue
		}
		productID, _ := uuid.Parse(line.ProductID)
		categoryID, _ := uuid.Parse(line.CategoryID)
		productTypeID, _ := uuid.Parse(line.ProductTypeID)

		for i := range stations {
			station := &stations[i]
			if !station.Matches(categoryID, productTypeID, r.failOpen) {
				continue
			}

			item := r.newInstance(orderID, lineItemID, productID, station.ID, &line, evt, now)
			if r.repo != nil {
				if err := r.repo.Create(ctx, item); err != nil {
					// Routing keeps going; the instance still reaches the
					// board through the working set.
					r.logger.Error("cannot persist routed item", "item_id", item.ID.String(), "error", err)
				}
			}
			r.set.Insert(item.Clone())
			created = append(created, item)
		}
	}

	r.logger.Info("order routed", "order_id", evt.OrderID, "line_items", len(evt.LineItems), "instances", len(created))

	for _, item := range created {
		r.announce(ctx, item)
	}
	return nil
}

func (r *Router) newInstance(orderID, lineItemID, productID uuid.UUID, stationID StationID, line *event.OrderLineItem, evt *event.OrderCreatedEvent, now time.Time) *ItemInstance {
	estimated := line.PrepMinutes
	if estimated <= 0 {
		estimated = DefaultEstimatedMinutes
	}
	return &ItemInstance{
		ID:               uuid.New(),
		OrderID:          orderID,
		LineItemID:       lineItemID,
		StationID:        stationID,
		ProductID:        productID,
		ProductName:      line.ProductName,
		Quantity:         line.Quantity,
		Notes:            line.Notes,
		State:            itemstate.States.Pending.Name,
		Priority:         1,
		EstimatedMinutes: estimated,
		ReceivedAt:       now,
		TableNumber:      evt.TableNumber,
		ServerName:       evt.ServerName,
		ModelVersion:     1,
	}
}

func (r *Router) announce(ctx context.Context, item *ItemInstance) {
	evt := item.Event(event.KindItemAdded, "", time.Now().UTC())

	if r.gateway != nil {
		r.gateway.Publish(item.StationID.String(), evt)
	}
	if r.publisher != nil {
		payload, _ := json.Marshal(evt)
		if err := r.publisher.Publish(ctx, event.ItemsTopic, payload); err != nil {
			r.logger.Errorf("Failed to publish item-added event: %v", err)
		}
	}
}
