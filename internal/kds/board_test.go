package kds

import (
	"testing"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/google/uuid"
)

func newTestBoard(items ...*ItemInstance) (*Board, *WorkingSet) {
	set := NewWorkingSet(nil, nil, apt.NewNoopLogger())
	for _, item := range items {
		set.Insert(item.Clone())
	}
	return NewBoard(set), set
}

func TestBoardGroupsByOrder(t *testing.T) {
	orderA := uuid.New()
	orderB := uuid.New()

	a1 := newTestItem("pending")
	a1.OrderID = orderA
	a2 := newTestItem("in_progress")
	a2.OrderID = orderA
	b1 := newTestItem("pending")
	b1.OrderID = orderB

	board, _ := newTestBoard(a1, a2, b1)

	snapshot := board.ListTickets(BoardFilter{}, time.Now().UTC())
	if len(snapshot.Tickets) != 2 {
		t.Fatalf("ListTickets() tickets = %d, want 2", len(snapshot.Tickets))
	}
	if snapshot.Stats.Tickets != 2 || snapshot.Stats.LiveItems != 3 {
		t.Errorf("stats = %+v, want 2 tickets / 3 live items", snapshot.Stats)
	}
}

func TestBoardExcludesCancelledAndServedRows(t *testing.T) {
	orderID := uuid.New()

	live := newTestItem("pending")
	live.OrderID = orderID
	served := newTestItem("served")
	served.OrderID = orderID
	cancelled := newTestItem("cancelled")
	cancelled.OrderID = orderID

	board, _ := newTestBoard(live, served, cancelled)

	snapshot := board.ListTickets(BoardFilter{}, time.Now().UTC())
	if len(snapshot.Tickets) != 1 {
		t.Fatalf("ListTickets() tickets = %d, want 1", len(snapshot.Tickets))
	}
	if len(snapshot.Tickets[0].Items) != 1 {
		t.Errorf("ticket rows = %d, want only the live item", len(snapshot.Tickets[0].Items))
	}
}

func TestBoardCompletionPercent(t *testing.T) {
	orderID := uuid.New()

	// 1 served out of 3 counted instances (cancelled excluded entirely).
	pending := newTestItem("pending")
	pending.OrderID = orderID
	ready := newTestItem("ready")
	ready.OrderID = orderID
	served := newTestItem("served")
	served.OrderID = orderID
	cancelled := newTestItem("cancelled")
	cancelled.OrderID = orderID

	board, _ := newTestBoard(pending, ready, served, cancelled)

	snapshot := board.ListTickets(BoardFilter{}, time.Now().UTC())
	if len(snapshot.Tickets) != 1 {
		t.Fatalf("ListTickets() tickets = %d, want 1", len(snapshot.Tickets))
	}
	if got := snapshot.Tickets[0].CompletionPercent; got != 33 {
		t.Errorf("CompletionPercent = %d, want 33", got)
	}
}

func TestBoardFullyServedOrderDisappears(t *testing.T) {
	orderID := uuid.New()
	served := newTestItem("served")
	served.OrderID = orderID

	board, _ := newTestBoard(served)

	snapshot := board.ListTickets(BoardFilter{}, time.Now().UTC())
	if len(snapshot.Tickets) != 0 {
		t.Errorf("ListTickets() tickets = %d, want 0 for fully served order", len(snapshot.Tickets))
	}
}

func TestBoardTicketOrdering(t *testing.T) {
	now := time.Now().UTC()

	oldLow := newTestItem("pending")
	oldLow.ReceivedAt = now.Add(-30 * time.Minute)
	newLow := newTestItem("pending")
	newLow.ReceivedAt = now.Add(-5 * time.Minute)
	rushed := newTestItem("pending")
	rushed.Priority = 9
	rushed.ReceivedAt = now.Add(-1 * time.Minute)

	board, _ := newTestBoard(oldLow, newLow, rushed)

	snapshot := board.ListTickets(BoardFilter{}, now)
	if len(snapshot.Tickets) != 3 {
		t.Fatalf("ListTickets() tickets = %d, want 3", len(snapshot.Tickets))
	}

	// Highest priority first, then oldest first.
	if snapshot.Tickets[0].OrderID != rushed.OrderID {
		t.Error("highest priority ticket is not first")
	}
	if snapshot.Tickets[1].OrderID != oldLow.OrderID {
		t.Error("older ticket does not precede newer one within the same priority")
	}
}

func TestBoardDerivedFields(t *testing.T) {
	now := time.Now().UTC()
	orderID := uuid.New()

	quiet := newTestItem("pending")
	quiet.OrderID = orderID
	quiet.ReceivedAt = now.Add(-4 * time.Minute)

	loud := newTestItem("in_progress")
	loud.OrderID = orderID
	loud.Priority = 7
	loud.Alert = true
	loud.ReceivedAt = now.Add(-17 * time.Minute)

	board, _ := newTestBoard(quiet, loud)

	snapshot := board.ListTickets(BoardFilter{}, now)
	ticket := snapshot.Tickets[0]

	if ticket.MaxWaitMinutes != 17 {
		t.Errorf("MaxWaitMinutes = %d, want 17", ticket.MaxWaitMinutes)
	}
	if ticket.MaxPriority != 7 {
		t.Errorf("MaxPriority = %d, want 7", ticket.MaxPriority)
	}
	if !ticket.HasAlert {
		t.Error("HasAlert = false, want true")
	}
	if !ticket.ReceivedAt.Equal(loud.ReceivedAt) {
		t.Errorf("ticket ReceivedAt = %v, want the oldest item's %v", ticket.ReceivedAt, loud.ReceivedAt)
	}
	if snapshot.Stats.AlertedItems != 1 {
		t.Errorf("AlertedItems = %d, want 1", snapshot.Stats.AlertedItems)
	}
}

func TestBoardRowOrdering(t *testing.T) {
	now := time.Now().UTC()
	orderID := uuid.New()

	first := newTestItem("pending")
	first.OrderID = orderID
	first.ReceivedAt = now.Add(-10 * time.Minute)

	second := newTestItem("pending")
	second.OrderID = orderID
	second.ReceivedAt = now.Add(-8 * time.Minute)

	pinned := newTestItem("pending")
	pinned.OrderID = orderID
	pinned.ReceivedAt = now.Add(-1 * time.Minute)
	position := 0
	pinned.PositionOverride = &position

	board, _ := newTestBoard(first, second, pinned)

	snapshot := board.ListTickets(BoardFilter{}, now)
	rows := snapshot.Tickets[0].Items
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}
	if rows[0].ID != pinned.ID {
		t.Error("pinned row is not first")
	}
	if rows[1].ID != first.ID || rows[2].ID != second.ID {
		t.Error("unpinned rows are not in arrival order")
	}
}

func TestBoardStationFilter(t *testing.T) {
	grillID := uuid.New()

	grillItem := newTestItem("pending")
	grillItem.StationID = grillID
	barItem := newTestItem("pending")

	board, _ := newTestBoard(grillItem, barItem)

	snapshot := board.ListTickets(BoardFilter{StationID: &grillID}, time.Now().UTC())
	if len(snapshot.Tickets) != 1 {
		t.Fatalf("station-filtered tickets = %d, want 1", len(snapshot.Tickets))
	}
	if snapshot.Tickets[0].Items[0].StationID != grillID {
		t.Error("filtered ticket contains a foreign station's item")
	}
}

func TestBoardTicketFilters(t *testing.T) {
	now := time.Now().UTC()

	urgent := newTestItem("in_progress")
	urgent.Priority = 5
	urgent.TableNumber = "7"
	urgent.ReceivedAt = now.Add(-20 * time.Minute)

	calm := newTestItem("pending")
	calm.TableNumber = "3"
	calm.ReceivedAt = now.Add(-2 * time.Minute)

	board, _ := newTestBoard(urgent, calm)

	tests := []struct {
		name   string
		filter BoardFilter
		want   int
	}{
		{"minPriority", BoardFilter{MinPriority: 3}, 1},
		{"table", BoardFilter{TableNumber: "3"}, 1},
		{"minWait", BoardFilter{MinWaitMinutes: 10}, 1},
		{"state", BoardFilter{State: strPtr("in_progress")}, 1},
		{"noMatch", BoardFilter{MinPriority: 100}, 0},
		{"unfiltered", BoardFilter{}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snapshot := board.ListTickets(tt.filter, now)
			if got := len(snapshot.Tickets); got != tt.want {
				t.Errorf("tickets = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestBoardDeterministic(t *testing.T) {
	now := time.Now().UTC()
	board, _ := newTestBoard(newTestItem("pending"), newTestItem("in_progress"), newTestItem("ready"))

	first := board.ListTickets(BoardFilter{}, now)
	second := board.ListTickets(BoardFilter{}, now)

	if len(first.Tickets) != len(second.Tickets) {
		t.Fatal("repeated reads over unchanged state differ in ticket count")
	}
	for i := range first.Tickets {
		if first.Tickets[i].OrderID != second.Tickets[i].OrderID {
			t.Fatal("repeated reads over unchanged state differ in ordering")
		}
	}
}

func strPtr(s string) *string {
	return &s
}
