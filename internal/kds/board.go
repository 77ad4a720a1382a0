package kds

import (
	"sort"
	"time"

	"github.com/appetiteclub/kds/pkg/enums/itemstate"
	"github.com/google/uuid"
)

// BoardFilter narrows the ticket projection. Zero values mean "no filter".
type BoardFilter struct {
	StationID      *StationID
	State          *string
	MinPriority    int
	TableNumber    string
	MinWaitMinutes int
}

// ItemView is the lightweight row a display renders inside a ticket.
type ItemView struct {
	ID                ItemID     `json:"id"`
	StationID         StationID  `json:"station_id"`
	ProductName       string     `json:"product_name,omitempty"`
	Quantity          int        `json:"quantity"`
	Notes             string     `json:"notes,omitempty"`
	State             string     `json:"state"`
	Priority          int        `json:"priority"`
	Alert             bool       `json:"alert"`
	RequiresAttention bool       `json:"requires_attention"`
	EstimatedMinutes  int        `json:"estimated_minutes"`
	WaitMinutes       int        `json:"wait_minutes"`
	ReceivedAt        time.Time  `json:"received_at"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	PreparerID        *uuid.UUID `json:"preparer_id,omitempty"`
	PositionOverride  *int       `json:"position_override,omitempty"`
}

// Ticket is the derived, order-scoped aggregate the board renders. It is
// rebuilt on every read and never persisted.
type Ticket struct {
	OrderID           OrderID    `json:"order_id"`
	TableNumber       string     `json:"table_number,omitempty"`
	ServerName        string     `json:"server_name,omitempty"`
	Items             []ItemView `json:"items"`
	MaxWaitMinutes    int        `json:"max_wait_minutes"`
	MaxPriority       int        `json:"max_priority"`
	HasAlert          bool       `json:"has_alert"`
	CompletionPercent int        `json:"completion_percent"`
	ReceivedAt        time.Time  `json:"received_at"`
}

// BoardStats are the quick counters returned with every board snapshot.
type BoardStats struct {
	Tickets      int `json:"tickets"`
	LiveItems    int `json:"live_items"`
	AlertedItems int `json:"alerted_items"`
}

// BoardSnapshot is the full response of a board read.
type BoardSnapshot struct {
	Tickets []Ticket   `json:"tickets"`
	Stats   BoardStats `json:"stats"`
}

// Board is the ticket aggregator: a pure projection over the working set.
// Identical underlying state always produces identical output.
type Board struct {
	set *WorkingSet
}

func NewBoard(set *WorkingSet) *Board {
	return &Board{set: set}
}

// ListTickets groups live item instances by order, computes the derived
// ticket fields, and orders tickets the way operators should address them:
// highest priority first, oldest first within a priority.
//
// Served instances are excluded from the rendered rows but are the ones
// that count toward completion, so a ticket shows progress as its items go
// out. Cancelled instances are ignored entirely.
func (b *Board) ListTickets(filter BoardFilter, now time.Time) BoardSnapshot {
	var items []ItemInstance
	if filter.StationID != nil {
		items = b.set.ByStation(*filter.StationID)
	} else {
		items = b.set.All()
	}

	type group struct {
		live   []ItemInstance
		served int
	}
	groups := make(map[OrderID]*group)

	for i := range items {
		item := &items[i]
		if item.State == itemstate.States.Cancelled.Name {
			continue
		}
		g := groups[item.OrderID]
		if g == nil {
			g = &group{}
			groups[item.OrderID] = g
		}
		if item.State == itemstate.States.Served.Name {
			g.served++
			continue
		}
		g.live = append(g.live, *item)
	}

	snapshot := BoardSnapshot{Tickets: make([]Ticket, 0, len(groups))}

	for orderID, g := range groups {
		if len(g.live) == 0 {
			continue
		}
		ticket := b.buildTicket(orderID, g.live, g.served, now)
		if !matchesTicketFilter(&ticket, g.live, filter) {
			continue
		}
		snapshot.Tickets = append(snapshot.Tickets, ticket)
		snapshot.Stats.LiveItems += len(ticket.Items)
		for _, row := range ticket.Items {
			if row.Alert {
				snapshot.Stats.AlertedItems++
			}
		}
	}

	sort.SliceStable(snapshot.Tickets, func(i, j int) bool {
		a, b := &snapshot.Tickets[i], &snapshot.Tickets[j]
		if a.MaxPriority != b.MaxPriority {
			return a.MaxPriority > b.MaxPriority
		}
		return a.ReceivedAt.Before(b.ReceivedAt)
	})

	snapshot.Stats.Tickets = len(snapshot.Tickets)
	return snapshot
}

func (b *Board) buildTicket(orderID OrderID, live []ItemInstance, served int, now time.Time) Ticket {
	ticket := Ticket{
		OrderID:     orderID,
		TableNumber: live[0].TableNumber,
		ServerName:  live[0].ServerName,
		Items:       make([]ItemView, 0, len(live)),
		ReceivedAt:  live[0].ReceivedAt,
	}

	completed := served
	for i := range live {
		item := &live[i]
		if item.ReceivedAt.Before(ticket.ReceivedAt) {
			ticket.ReceivedAt = item.ReceivedAt
		}
		wait := ElapsedMinutes(item.ReceivedAt, now)
		if wait > ticket.MaxWaitMinutes {
			ticket.MaxWaitMinutes = wait
		}
		if item.Priority > ticket.MaxPriority {
			ticket.MaxPriority = item.Priority
		}
		if item.Alert {
			ticket.HasAlert = true
		}

		ticket.Items = append(ticket.Items, ItemView{
			ID:                item.ID,
			StationID:         item.StationID,
			ProductName:       item.ProductName,
			Quantity:          item.Quantity,
			Notes:             item.Notes,
			State:             item.State,
			Priority:          item.Priority,
			Alert:             item.Alert,
			RequiresAttention: item.RequiresAttention,
			EstimatedMinutes:  item.EstimatedMinutes,
			WaitMinutes:       wait,
			ReceivedAt:        item.ReceivedAt,
			StartedAt:         item.StartedAt,
			CompletedAt:       item.CompletedAt,
			PreparerID:        item.PreparerID,
			PositionOverride:  item.PositionOverride,
		})
	}

	total := len(live) + served
	if total > 0 {
		ticket.CompletionPercent = 100 * completed / total
	}

	sort.SliceStable(ticket.Items, func(i, j int) bool {
		a, b := &ticket.Items[i], &ticket.Items[j]
		switch {
		case a.PositionOverride != nil && b.PositionOverride != nil:
			return *a.PositionOverride < *b.PositionOverride
		case a.PositionOverride != nil:
			return true
		case b.PositionOverride != nil:
			return false
		default:
			return a.ReceivedAt.Before(b.ReceivedAt)
		}
	})

	return ticket
}

func matchesTicketFilter(ticket *Ticket, live []ItemInstance, filter BoardFilter) bool {
	if filter.MinPriority > 0 && ticket.MaxPriority < filter.MinPriority {
		return false
	}
	if filter.TableNumber != "" && ticket.TableNumber != filter.TableNumber {
		return false
	}
	if filter.MinWaitMinutes > 0 && ticket.MaxWaitMinutes < filter.MinWaitMinutes {
		return false
	}
	if filter.State != nil {
		found := false
		for i := range live {
			if live[i].State == *filter.State {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
