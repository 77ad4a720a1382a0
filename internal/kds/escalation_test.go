package kds

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/kds/pkg/event"
	"github.com/google/uuid"
)

func newTestSweeper(station *Station, items ...*ItemInstance) (*Sweeper, *WorkingSet, *MockItemRepository, *MockPublisher) {
	stationRepo := NewMockStationRepository()
	if station != nil {
		stationRepo.AddStation(station)
	}

	set := NewWorkingSet(nil, nil, apt.NewNoopLogger())
	itemRepo := NewMockItemRepository()
	publisher := NewMockPublisher()
	gateway := NewGateway(apt.NewNoopLogger())

	for _, item := range items {
		itemRepo.Create(context.Background(), item)
		set.Insert(item.Clone())
	}

	sweeper := NewSweeper(set, stationRepo, itemRepo, gateway, publisher, time.Minute, apt.NewNoopLogger())
	return sweeper, set, itemRepo, publisher
}

func TestSweepFlagsOverdueItem(t *testing.T) {
	now := time.Now().UTC()
	station := newTestStation("Grill")
	station.AlertThresholdMinutes = 5

	tests := []struct {
		name      string
		elapsed   time.Duration
		wantAlert bool
	}{
		{"wellWithinBudget", 9 * time.Minute, false},
		{"insideThreshold", 14 * time.Minute, false},
		{"atBoundary", 15 * time.Minute, true},
		{"pastBoundary", 20 * time.Minute, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := newTestItem("pending")
			item.StationID = station.ID
			item.EstimatedMinutes = 10
			item.ReceivedAt = now.Add(-tt.elapsed)

			sweeper, set, _, _ := newTestSweeper(station, item)
			sweeper.Sweep(context.Background(), now)

			if got := set.Get(item.ID).Alert; got != tt.wantAlert {
				t.Errorf("alert after sweep = %v, want %v", got, tt.wantAlert)
			}
		})
	}
}

func TestSweepSkipsReadyAndTerminalItems(t *testing.T) {
	now := time.Now().UTC()
	station := newTestStation("Grill")
	station.AlertThresholdMinutes = 0

	states := []string{"ready", "served", "cancelled"}
	for _, state := range states {
		t.Run(state, func(t *testing.T) {
			item := newTestItem(state)
			item.StationID = station.ID
			item.EstimatedMinutes = 1
			item.ReceivedAt = now.Add(-time.Hour)

			sweeper, set, _, _ := newTestSweeper(station, item)
			sweeper.Sweep(context.Background(), now)

			if set.Get(item.ID).Alert {
				t.Errorf("%s item was flagged by the sweep", state)
			}
		})
	}
}

func TestSweepAnnouncesAlertOnce(t *testing.T) {
	now := time.Now().UTC()
	station := newTestStation("Grill")
	station.AlertThresholdMinutes = 0

	item := newTestItem("in_progress")
	item.StationID = station.ID
	item.EstimatedMinutes = 1
	item.ReceivedAt = now.Add(-time.Hour)

	sweeper, _, repo, publisher := newTestSweeper(station, item)

	sweeper.Sweep(context.Background(), now)
	sweeper.Sweep(context.Background(), now.Add(time.Minute))

	published := publisher.Published()
	if len(published) != 1 {
		t.Fatalf("sweep published %d events across two runs, want 1", len(published))
	}

	var evt event.ItemEvent
	if err := json.Unmarshal(published[0].Data, &evt); err != nil {
		t.Fatalf("cannot decode published event: %v", err)
	}
	if evt.Kind != event.KindAlertRaised {
		t.Errorf("event kind = %s, want %s", evt.Kind, event.KindAlertRaised)
	}
	if !evt.Alert {
		t.Error("published event does not carry the alert flag")
	}

	stored := repo.StoredItem(item.ID)
	if stored == nil || !stored.Alert {
		t.Error("sweep did not persist the alert flag")
	}
}

func TestSweepSkipsUnknownStation(t *testing.T) {
	now := time.Now().UTC()
	station := newTestStation("Grill")
	station.AlertThresholdMinutes = 0

	orphan := newTestItem("pending")
	orphan.EstimatedMinutes = 1
	orphan.ReceivedAt = now.Add(-time.Hour)
	// orphan.StationID points at no registered station

	owned := newTestItem("pending")
	owned.StationID = station.ID
	owned.EstimatedMinutes = 1
	owned.ReceivedAt = now.Add(-time.Hour)

	sweeper, set, _, _ := newTestSweeper(station, orphan, owned)
	sweeper.Sweep(context.Background(), now)

	if set.Get(orphan.ID).Alert {
		t.Error("item on an unknown station was flagged")
	}
	if !set.Get(owned.ID).Alert {
		t.Error("a misconfigured sibling prevented flagging a valid item")
	}
}

func TestSweepSkipsItemsWithoutEstimate(t *testing.T) {
	now := time.Now().UTC()
	station := newTestStation("Grill")

	item := newTestItem("pending")
	item.StationID = station.ID
	item.EstimatedMinutes = 0
	item.ReceivedAt = now.Add(-time.Hour)

	sweeper, set, _, _ := newTestSweeper(station, item)
	sweeper.Sweep(context.Background(), now)

	if set.Get(item.ID).Alert {
		t.Error("item without an estimate was flagged")
	}
}

func TestSweepAbortsWhenStationsUnavailable(t *testing.T) {
	now := time.Now().UTC()

	item := newTestItem("pending")
	item.EstimatedMinutes = 1
	item.ReceivedAt = now.Add(-time.Hour)

	sweeper, set, _, _ := newTestSweeper(nil, item)
	sweeper.stations.(*MockStationRepository).ListFunc = func(ctx context.Context, activeOnly bool) ([]Station, error) {
		return nil, errors.New("mongo down")
	}

	sweeper.Sweep(context.Background(), now)

	if set.Get(item.ID).Alert {
		t.Error("sweep flagged items despite failing to load stations")
	}
}

func TestSweeperStartStop(t *testing.T) {
	station := newTestStation("Grill")
	sweeper, _, _, _ := newTestSweeper(station)

	ctx := context.Background()
	if err := sweeper.Start(ctx); err != nil {
		t.Fatalf("Start() unexpected error: %v", err)
	}

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := sweeper.Stop(stopCtx); err != nil {
		t.Fatalf("Stop() unexpected error: %v", err)
	}
}

func TestSweepRacingTransitionKeepsConsistency(t *testing.T) {
	// An item that went ready between the live snapshot and the per-item
	// re-check must not be flagged.
	now := time.Now().UTC()
	station := newTestStation("Grill")
	station.AlertThresholdMinutes = 0

	item := newTestItem("pending")
	item.StationID = station.ID
	item.EstimatedMinutes = 1
	item.ReceivedAt = now.Add(-time.Hour)

	sweeper, set, _, _ := newTestSweeper(station, item)

	if _, err := set.Mutate(item.ID, func(i *ItemInstance) error {
		i.State = "ready"
		return nil
	}); err != nil {
		t.Fatalf("Mutate() unexpected error: %v", err)
	}

	sweeper.Sweep(context.Background(), now)

	if set.Get(item.ID).Alert {
		t.Error("sweep flagged an item that had already gone ready")
	}
}

func TestSweepIgnoresForeignStationID(t *testing.T) {
	now := time.Now().UTC()
	station := newTestStation("Grill")
	station.AlertThresholdMinutes = 5

	item := newTestItem("pending")
	item.StationID = uuid.New()
	item.EstimatedMinutes = 10
	item.ReceivedAt = now.Add(-time.Hour)

	sweeper, set, _, publisher := newTestSweeper(station, item)
	sweeper.Sweep(context.Background(), now)

	if set.Get(item.ID).Alert {
		t.Error("sweep flagged an item owned by an unregistered station")
	}
	if len(publisher.Published()) != 0 {
		t.Error("sweep published events for a skipped item")
	}
}
