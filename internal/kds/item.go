package kds

import (
	"time"

	"github.com/appetiteclub/kds/pkg/event"
	"github.com/google/uuid"
)

type ItemID = uuid.UUID
type OrderID = uuid.UUID
type LineItemID = uuid.UUID
type StationID = uuid.UUID

const DefaultEstimatedMinutes = 10

// ItemInstance is the unit the lifecycle state machine operates on: one
// (line item, station) assignment created by the routing engine. The same
// line item legitimately yields several instances when multiple station
// filters match it.
type ItemInstance struct {
	ID         ItemID     `bson:"_id" json:"id"`
	OrderID    OrderID    `bson:"order_id" json:"order_id"`
	LineItemID LineItemID `bson:"line_item_id" json:"line_item_id"`
	StationID  StationID  `bson:"station_id" json:"station_id"`

	ProductID   uuid.UUID `bson:"product_id" json:"product_id"`
	ProductName string    `bson:"product_name,omitempty" json:"product_name,omitempty"`
	Quantity    int       `bson:"quantity" json:"quantity"`
	Notes       string    `bson:"notes,omitempty" json:"notes,omitempty"`

	State            string `bson:"state" json:"state"`
	Priority         int    `bson:"priority" json:"priority"`
	EstimatedMinutes int    `bson:"estimated_minutes" json:"estimated_minutes"`

	ReceivedAt  time.Time  `bson:"received_at" json:"received_at"`
	StartedAt   *time.Time `bson:"started_at,omitempty" json:"started_at,omitempty"`
	CompletedAt *time.Time `bson:"completed_at,omitempty" json:"completed_at,omitempty"`

	PreparerID *uuid.UUID `bson:"preparer_id,omitempty" json:"preparer_id,omitempty"`

	// Alert is system-set by the escalation sweep; RequiresAttention is
	// human-set. The two flags are independent.
	Alert             bool `bson:"alert" json:"alert"`
	RequiresAttention bool `bson:"requires_attention" json:"requires_attention"`

	PositionOverride *int `bson:"position_override,omitempty" json:"position_override,omitempty"`

	// Denormalized data for display purposes
	TableNumber string `bson:"table_number,omitempty" json:"table_number,omitempty"`
	ServerName  string `bson:"server_name,omitempty" json:"server_name,omitempty"`

	ModelVersion int `bson:"model_version" json:"model_version"`
}

// Clone returns a copy safe to hand out while the original keeps mutating
// under its working-set lock.
func (i *ItemInstance) Clone() *ItemInstance {
	c := *i
	if i.StartedAt != nil {
		t := *i.StartedAt
		c.StartedAt = &t
	}
	if i.CompletedAt != nil {
		t := *i.CompletedAt
		c.CompletedAt = &t
	}
	if i.PreparerID != nil {
		id := *i.PreparerID
		c.PreparerID = &id
	}
	if i.PositionOverride != nil {
		p := *i.PositionOverride
		c.PositionOverride = &p
	}
	return &c
}

// Event builds the broadcast payload for a mutation of this item.
func (i *ItemInstance) Event(kind, previousState string, at time.Time) *event.ItemEvent {
	evt := &event.ItemEvent{
		Kind:              kind,
		OccurredAt:        at,
		ItemID:            i.ID.String(),
		OrderID:           i.OrderID.String(),
		LineItemID:        i.LineItemID.String(),
		StationID:         i.StationID.String(),
		ProductID:         i.ProductID.String(),
		State:             i.State,
		PreviousState:     previousState,
		Priority:          i.Priority,
		Alert:             i.Alert,
		RequiresAttention: i.RequiresAttention,
		EstimatedMinutes:  i.EstimatedMinutes,
		ReceivedAt:        i.ReceivedAt,
		StartedAt:         i.StartedAt,
		CompletedAt:       i.CompletedAt,
		ProductName:       i.ProductName,
		Quantity:          i.Quantity,
		Notes:             i.Notes,
		TableNumber:       i.TableNumber,
		ServerName:        i.ServerName,
	}
	if i.PreparerID != nil {
		evt.PreparerID = i.PreparerID.String()
	}
	if i.PositionOverride != nil {
		p := *i.PositionOverride
		evt.PositionOverride = &p
	}
	return evt
}
