package event

import "time"

const (
	ItemsTopic = "kds.items"

	KindSnapshot         = "snapshot"
	KindItemAdded        = "item-added"
	KindStateChanged     = "state-changed"
	KindPriorityChanged  = "priority-changed"
	KindAttentionChanged = "attention-changed"
	KindAlertRaised      = "alert-raised"
)

// ItemEvent is the incremental update pushed to display subscribers and
// published to the persistent kds.items stream on every mutation. It carries
// the full item state, including identity, so a replay of the stream alone
// reconstructs every item.
type ItemEvent struct {
	Kind       string    `json:"kind"`
	OccurredAt time.Time `json:"occurred_at"`
	ItemID     string    `json:"item_id"`
	OrderID    string    `json:"order_id"`
	LineItemID string    `json:"line_item_id,omitempty"`
	StationID  string    `json:"station_id"`
	ProductID  string    `json:"product_id,omitempty"`

	State             string     `json:"state"`
	PreviousState     string     `json:"previous_state,omitempty"`
	Priority          int        `json:"priority"`
	Alert             bool       `json:"alert"`
	RequiresAttention bool       `json:"requires_attention"`
	EstimatedMinutes  int        `json:"estimated_minutes,omitempty"`
	ReceivedAt        time.Time  `json:"received_at"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	PreparerID        string     `json:"preparer_id,omitempty"`
	PositionOverride  *int       `json:"position_override,omitempty"`

	// Denormalized data for display
	ProductName string `json:"product_name,omitempty"`
	Quantity    int    `json:"quantity,omitempty"`
	Notes       string `json:"notes,omitempty"`
	TableNumber string `json:"table_number,omitempty"`
	ServerName  string `json:"server_name,omitempty"`
}
