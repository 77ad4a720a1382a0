package kds

import (
	"context"
	"encoding/json"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/events"
	"github.com/appetiteclub/kds/pkg/enums/itemstate"
	"github.com/appetiteclub/kds/pkg/event"
)

const DefaultSweepInterval = time.Minute

// Sweeper is the escalation process: a fixed-cadence scan that raises the
// alert flag on items whose elapsed time has blown their budget plus the
// owning station's threshold. It only ever sets alert to true; the flag is
// retired implicitly when a terminal transition removes the item from the
// live scan.
type Sweeper struct {
	set       *WorkingSet
	stations  StationRepository
	repo      ItemRepository
	gateway   *Gateway
	publisher events.Publisher
	interval  time.Duration
	logger    apt.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func NewSweeper(set *WorkingSet, stations StationRepository, repo ItemRepository, gateway *Gateway, publisher events.Publisher, interval time.Duration, logger apt.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &Sweeper{
		set:       set,
		stations:  stations,
		repo:      repo,
		gateway:   gateway,
		publisher: publisher,
		interval:  interval,
		logger:    logger,
	}
}

// Start launches the sweep loop. Lifecycle member: called once by the app.
func (s *Sweeper) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(runCtx)

	s.logger.Info("escalation sweeper started", "interval", s.interval.String())
	return nil
}

// Stop terminates the sweep loop.
func (s *Sweeper) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.done != nil {
		select {
		case <-s.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.logger.Info("escalation sweeper stopped")
	return nil
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx, time.Now().UTC())
		}
	}
}

// Sweep performs one escalation pass. Exported so tests drive it with a
// fixed clock instead of waiting on the ticker. Per-item failures are
// logged and skipped; a corrupt record never aborts the run.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) {
	thresholds, err := s.stationThresholds(ctx)
	if err != nil {
		s.logger.Error("escalation sweep cannot load stations", "error", err)
		return
	}

	var flagged int
	for _, id := range s.set.LiveIDs() {
		item, err := s.sweepItem(id, thresholds, now)
		if err != nil {
			s.logger.Error("escalation sweep skipping item", "item_id", id.String(), "error", err)
			continue
		}
		if item == nil {
			continue
		}

		flagged++
		s.persist(ctx, item)
		s.announce(ctx, item)
	}

	if flagged > 0 {
		s.logger.Info("escalation sweep flagged items", "count", flagged)
	}
}

// sweepItem re-validates the item under its own lock so the sweep never
// clobbers a state transition that won the race. It returns the flagged
// item, or nil when the item needed no change.
func (s *Sweeper) sweepItem(id ItemID, thresholds map[StationID]int, now time.Time) (*ItemInstance, error) {
	return s.set.Mutate(id, func(item *ItemInstance) error {
		if item.Alert || !itemstate.IsLive(item.State) || item.State == itemstate.States.Ready.Name {
			return errNoChange
		}
		if item.EstimatedMinutes <= 0 {
			return errNoChange
		}

		threshold, ok := thresholds[item.StationID]
		if !ok {
			return &ConfigurationError{StationID: item.StationID, Reason: "unknown station for escalation threshold"}
		}

		if !IsOverdue(item.ReceivedAt, item.EstimatedMinutes, threshold, now) {
			return errNoChange
		}

		item.Alert = true
		return nil
	})
}

func (s *Sweeper) stationThresholds(ctx context.Context) (map[StationID]int, error) {
	stations, err := s.stations.List(ctx, false)
	if err != nil {
		return nil, err
	}
	thresholds := make(map[StationID]int, len(stations))
	for i := range stations {
		thresholds[stations[i].ID] = stations[i].AlertThresholdMinutes
	}
	return thresholds, nil
}

func (s *Sweeper) persist(ctx context.Context, item *ItemInstance) {
	if s.repo == nil {
		return
	}
	if err := s.repo.Update(ctx, item); err != nil {
		s.logger.Error("cannot persist alert flag", "item_id", item.ID.String(), "error", err)
	}
}

// announce emits the dedicated alert-raised kind so displays can trigger
// audible escalation distinctly from ordinary state changes.
func (s *Sweeper) announce(ctx context.Context, item *ItemInstance) {
	evt := item.Event(event.KindAlertRaised, "", time.Now().UTC())

	if s.gateway != nil {
		s.gateway.Publish(item.StationID.String(), evt)
	}
	if s.publisher != nil {
		payload, _ := json.Marshal(evt)
		if err := s.publisher.Publish(ctx, event.ItemsTopic, payload); err != nil {
			s.logger.Errorf("Failed to publish alert-raised event: %v", err)
		}
	}
}
