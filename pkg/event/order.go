package event

import "time"

const (
	OrdersCreatedTopic = "orders.created"
	EventOrderCreated  = "order.created"
)

// OrderCreatedEvent is the upstream signal consumed by the routing engine.
// It is published by the order-management service once per placed order.
type OrderCreatedEvent struct {
	EventType  string          `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	OrderID    string          `json:"order_id"`
	LineItems  []OrderLineItem `json:"line_items"`

	// Denormalized data for display
	TableNumber string `json:"table_number,omitempty"`
	ServerName  string `json:"server_name,omitempty"`
}

// OrderLineItem carries the routing-relevant attributes of a single line
// item: what it is, how it is categorized, and how long it nominally takes.
type OrderLineItem struct {
	LineItemID    string `json:"line_item_id"`
	ProductID     string `json:"product_id"`
	ProductName   string `json:"product_name,omitempty"`
	CategoryID    string `json:"category_id,omitempty"`
	ProductTypeID string `json:"product_type_id,omitempty"`
	Quantity      int    `json:"quantity"`
	Notes         string `json:"notes,omitempty"`
	PrepMinutes   int    `json:"prep_minutes,omitempty"`
}
