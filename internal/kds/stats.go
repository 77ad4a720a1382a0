package kds

import (
	"sort"
	"time"

	"github.com/appetiteclub/kds/pkg/enums/itemstate"
)

const DefaultStatsWindow = 50

// StatsSnapshot is the read-only rollup over the working set. All fields
// are zero-valued on an empty set.
type StatsSnapshot struct {
	CountsByState  map[string]int `json:"counts_by_state"`
	AlertedItems   int            `json:"alerted_items"`
	LiveOrders     int            `json:"live_orders"`
	AvgPrepMinutes float64        `json:"avg_prep_minutes"`
	WindowSize     int            `json:"window_size"`
}

// Stats computes rollups without ever mutating state.
type Stats struct {
	set    *WorkingSet
	window int
}

func NewStats(set *WorkingSet, window int) *Stats {
	if window <= 0 {
		window = DefaultStatsWindow
	}
	return &Stats{set: set, window: window}
}

// Snapshot rolls up counts by live state, alerted items, distinct live
// orders, and the average prep duration of the most recent window of served
// items. stationID narrows the scan to one station when set.
func (s *Stats) Snapshot(stationID *StationID, now time.Time) StatsSnapshot {
	var items []ItemInstance
	if stationID != nil {
		items = s.set.ByStation(*stationID)
	} else {
		items = s.set.All()
	}

	snapshot := StatsSnapshot{
		CountsByState: make(map[string]int),
		WindowSize:    s.window,
	}
	for _, state := range itemstate.All {
		snapshot.CountsByState[state.Name] = 0
	}

	liveOrders := make(map[OrderID]struct{})
	type servedItem struct {
		completedAt time.Time
		duration    time.Duration
	}
	var served []servedItem

	for i := range items {
		item := &items[i]
		snapshot.CountsByState[item.State]++

		if itemstate.IsLive(item.State) {
			liveOrders[item.OrderID] = struct{}{}
			if item.Alert {
				snapshot.AlertedItems++
			}
		}

		if item.State == itemstate.States.Served.Name {
			if d, ok := PrepDuration(item.StartedAt, item.CompletedAt); ok {
				served = append(served, servedItem{completedAt: *item.CompletedAt, duration: d})
			}
		}
	}

	snapshot.LiveOrders = len(liveOrders)

	if len(served) > 0 {
		sort.Slice(served, func(i, j int) bool {
			return served[i].completedAt.After(served[j].completedAt)
		})
		if len(served) > s.window {
			served = served[:s.window]
		}
		var total time.Duration
		for _, s := range served {
			total += s.duration
		}
		snapshot.AvgPrepMinutes = total.Minutes() / float64(len(served))
	}

	return snapshot
}
