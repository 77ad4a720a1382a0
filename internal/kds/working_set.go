package kds

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/events"
	"github.com/appetiteclub/kds/pkg/enums/itemstate"
	"github.com/appetiteclub/kds/pkg/event"
	"github.com/google/uuid"
)

// errNoChange signals a Mutate callback that inspected the item and decided
// to leave it alone. Mutate returns nil item and nil error in that case.
var errNoChange = errors.New("no change")

// itemEntry pairs an item with its own mutex so validate-then-write is
// linearizable per item without a global write lock on the hot path.
type itemEntry struct {
	mu   sync.Mutex
	item *ItemInstance
}

// WorkingSet maintains the in-memory working set of item instances, indexed
// by station and order for board queries. It is the source of truth for the
// live board; Mongo is the durable record behind it.
type WorkingSet struct {
	mu sync.RWMutex
	// items indexed by item id
	items map[ItemID]*itemEntry
	// index by station id -> item ids
	byStation map[StationID][]ItemID
	// index by order id -> item ids
	byOrder map[OrderID][]ItemID

	stream events.StreamConsumer // For event replay on startup
	repo   ItemRepository        // Fallback to MongoDB if stream unavailable
	logger apt.Logger
}

// NewWorkingSet creates an empty working set.
func NewWorkingSet(stream events.StreamConsumer, repo ItemRepository, logger apt.Logger) *WorkingSet {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &WorkingSet{
		items:     make(map[ItemID]*itemEntry),
		byStation: make(map[StationID][]ItemID),
		byOrder:   make(map[OrderID][]ItemID),
		stream:    stream,
		repo:      repo,
		logger:    logger,
	}
}

// Warm rebuilds the working set using event replay from the persistent
// stream, falling back to a repository scan when no stream is configured or
// the replay fails.
func (s *WorkingSet) Warm(ctx context.Context) error {
	if s.stream != nil {
		if err := s.warmFromStream(ctx); err != nil {
			s.logger.Info("stream replay failed, falling back to repository", "error", err)
		} else {
			return nil
		}
	}

	if s.repo == nil {
		s.logger.Info("neither stream nor repo configured, working set remains empty")
		return nil
	}

	return s.warmFromRepo(ctx)
}

func (s *WorkingSet) warmFromStream(ctx context.Context) error {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Info("stream panic recovered, falling back to repository", "panic", r)
		}
	}()

	s.logger.Info("warming working set from event stream")

	messages, err := s.stream.Fetch(ctx, 10000)
	if err != nil {
		return err
	}

	for _, msg := range messages {
		s.applyEvent(msg.Data)
	}

	s.logger.Info("working set warmed from stream", "items", s.Count())
	return nil
}

func (s *WorkingSet) warmFromRepo(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Info("repository panic recovered, working set will remain empty", "panic", r)
			err = nil
		}
	}()

	s.logger.Info("warming working set from repository")

	items, dbErr := s.repo.List(ctx, ItemFilter{})
	if dbErr != nil {
		s.logger.Info("failed to warm working set from repository, it will remain empty", "error", dbErr)
		return nil
	}

	for i := range items {
		s.Insert(items[i].Clone())
	}

	s.logger.Info("working set warmed from repository", "count", len(items))
	return nil
}

// applyEvent folds one replayed kds.items event into the set. Item events
// carry the full item state, so last-event-wins reconstruction suffices.
func (s *WorkingSet) applyEvent(data []byte) {
	var evt event.ItemEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		s.logger.Error("failed to unmarshal replayed item event", "error", err)
		return
	}

	itemID, err := uuid.Parse(evt.ItemID)
	if err != nil {
		return
	}
	orderID, _ := uuid.Parse(evt.OrderID)
	lineItemID, _ := uuid.Parse(evt.LineItemID)
	stationID, _ := uuid.Parse(evt.StationID)
	productID, _ := uuid.Parse(evt.ProductID)

	item := &ItemInstance{
		ID:                itemID,
		OrderID:           orderID,
		LineItemID:        lineItemID,
		StationID:         stationID,
		ProductID:         productID,
		ProductName:       evt.ProductName,
		Quantity:          evt.Quantity,
		Notes:             evt.Notes,
		State:             evt.State,
		Priority:          evt.Priority,
		EstimatedMinutes:  evt.EstimatedMinutes,
		ReceivedAt:        evt.ReceivedAt,
		StartedAt:         evt.StartedAt,
		CompletedAt:       evt.CompletedAt,
		Alert:             evt.Alert,
		RequiresAttention: evt.RequiresAttention,
		TableNumber:       evt.TableNumber,
		ServerName:        evt.ServerName,
	}
	if evt.PreparerID != "" {
		if preparerID, err := uuid.Parse(evt.PreparerID); err == nil {
			item.PreparerID = &preparerID
		}
	}
	if evt.PositionOverride != nil {
		p := *evt.PositionOverride
		item.PositionOverride = &p
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.items[itemID]; ok {
		existing.mu.Lock()
		existing.item = item
		existing.mu.Unlock()
		return
	}
	s.insertLocked(item)
}

// Insert adds a freshly routed item to the set. Items are never removed;
// terminal ones simply stop appearing in live projections.
func (s *WorkingSet) Insert(item *ItemInstance) {
	if item == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[item.ID]; ok {
		return
	}
	s.insertLocked(item)
}

func (s *WorkingSet) insertLocked(item *ItemInstance) {
	s.items[item.ID] = &itemEntry{item: item}
	s.byStation[item.StationID] = append(s.byStation[item.StationID], item.ID)
	s.byOrder[item.OrderID] = append(s.byOrder[item.OrderID], item.ID)
}

// Get returns a copy of the item, or nil when unknown.
func (s *WorkingSet) Get(id ItemID) *ItemInstance {
	s.mu.RLock()
	entry := s.items[id]
	s.mu.RUnlock()
	if entry == nil {
		return nil
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.item.Clone()
}

// Mutate runs fn on the item under its per-item lock. fn validates against
// the current state and mutates in place; returning errNoChange leaves the
// item untouched and yields (nil, nil). The returned item is a copy taken
// while still holding the lock.
func (s *WorkingSet) Mutate(id ItemID, fn func(*ItemInstance) error) (*ItemInstance, error) {
	s.mu.RLock()
	entry := s.items[id]
	s.mu.RUnlock()
	if entry == nil {
		return nil, ErrNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if err := fn(entry.item); err != nil {
		if errors.Is(err, errNoChange) {
			return nil, nil
		}
		return nil, err
	}
	return entry.item.Clone(), nil
}

// ByStation returns copies of all items owned by a station.
func (s *WorkingSet) ByStation(stationID StationID) []ItemInstance {
	s.mu.RLock()
	ids := append([]ItemID(nil), s.byStation[stationID]...)
	s.mu.RUnlock()
	return s.collect(ids)
}

// ByOrder returns copies of all instances created for an order.
func (s *WorkingSet) ByOrder(orderID OrderID) []ItemInstance {
	s.mu.RLock()
	ids := append([]ItemID(nil), s.byOrder[orderID]...)
	s.mu.RUnlock()
	return s.collect(ids)
}

// All returns copies of every item, live and terminal.
func (s *WorkingSet) All() []ItemInstance {
	s.mu.RLock()
	ids := make([]ItemID, 0, len(s.items))
	for id := range s.items {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	return s.collect(ids)
}

// LiveIDs snapshots the ids of non-terminal items. The escalation sweep
// iterates this snapshot and re-validates each item under its own lock, so
// a slow item never delays the rest of the scan.
func (s *WorkingSet) LiveIDs() []ItemID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]ItemID, 0, len(s.items))
	for id, entry := range s.items {
		entry.mu.Lock()
		live := itemstate.IsLive(entry.item.State)
		entry.mu.Unlock()
		if live {
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *WorkingSet) collect(ids []ItemID) []ItemInstance {
	result := make([]ItemInstance, 0, len(ids))
	for _, id := range ids {
		s.mu.RLock()
		entry := s.items[id]
		s.mu.RUnlock()
		if entry == nil {
			continue
		}
		entry.mu.Lock()
		result = append(result, *entry.item.Clone())
		entry.mu.Unlock()
	}
	return result
}

// Count returns the number of items in the working set.
func (s *WorkingSet) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
