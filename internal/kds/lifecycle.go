package kds

import (
	"context"
	"encoding/json"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/events"
	"github.com/appetiteclub/kds/pkg/enums/itemstate"
	"github.com/appetiteclub/kds/pkg/event"
	"github.com/google/uuid"
)

// Lifecycle owns every mutation of an item instance after routing: state
// transitions, priority, the attention flag, and the bulk order-ready
// operation. All writes go through the working set's per-item lock, then
// are persisted best-effort and broadcast to the owning station's group.
type Lifecycle struct {
	set       *WorkingSet
	repo      ItemRepository
	gateway   *Gateway
	publisher events.Publisher
	logger    apt.Logger
}

func NewLifecycle(set *WorkingSet, repo ItemRepository, gateway *Gateway, publisher events.Publisher, logger apt.Logger) *Lifecycle {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &Lifecycle{
		set:       set,
		repo:      repo,
		gateway:   gateway,
		publisher: publisher,
		logger:    logger,
	}
}

// Transition moves an item to target if the edge is legal, applying the
// timestamp side effects. Re-entering a state never resets a timestamp.
func (l *Lifecycle) Transition(ctx context.Context, itemID ItemID, target string, preparerID *uuid.UUID) (*ItemInstance, error) {
	if itemstate.ByName(target) == nil {
		return nil, &InvalidTransitionError{Current: "", Target: target}
	}

	var previous string
	item, err := l.set.Mutate(itemID, func(item *ItemInstance) error {
		if !itemstate.CanTransition(item.State, target) {
			return &InvalidTransitionError{Current: item.State, Target: target}
		}
		previous = item.State
		l.applyTransition(item, target, preparerID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.persist(ctx, item)
	l.emit(ctx, item, event.KindStateChanged, previous)
	return item, nil
}

// applyTransition applies target and its side effects. Caller holds the
// item lock and has already validated the edge.
func (l *Lifecycle) applyTransition(item *ItemInstance, target string, preparerID *uuid.UUID) {
	now := time.Now().UTC()

	switch target {
	case itemstate.States.InProgress.Name:
		if item.StartedAt == nil {
			item.StartedAt = &now
		}
		if preparerID != nil {
			item.PreparerID = preparerID
		}
	case itemstate.States.Ready.Name:
		if item.StartedAt == nil {
			// Direct pending->ready keeps the started<=completed invariant.
			item.StartedAt = &now
		}
		if item.CompletedAt == nil {
			item.CompletedAt = &now
		}
	}

	item.State = target
	if target != itemstate.States.Pending.Name && target != itemstate.States.InProgress.Name {
		// An alert is only meaningful while the item is still being worked.
		item.Alert = false
	}
}

// SetPriority is always legal regardless of lifecycle state. Repeating the
// same value is a no-op in effect but still emits an event.
func (l *Lifecycle) SetPriority(ctx context.Context, itemID ItemID, priority int) (*ItemInstance, error) {
	item, err := l.set.Mutate(itemID, func(item *ItemInstance) error {
		item.Priority = priority
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.persist(ctx, item)
	l.emit(ctx, item, event.KindPriorityChanged, "")
	return item, nil
}

// SetRequiresAttention toggles the human-set flag; legal in any state.
func (l *Lifecycle) SetRequiresAttention(ctx context.Context, itemID ItemID, flag bool) (*ItemInstance, error) {
	item, err := l.set.Mutate(itemID, func(item *ItemInstance) error {
		item.RequiresAttention = flag
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.persist(ctx, item)
	l.emit(ctx, item, event.KindAttentionChanged, "")
	return item, nil
}

// MarkOrderReady transitions every PENDING or IN_PROGRESS instance of the
// order to READY. Returns ErrNoEligibleItems when nothing qualifies so the
// caller can surface a meaningful message instead of silently succeeding.
func (l *Lifecycle) MarkOrderReady(ctx context.Context, orderID OrderID) ([]ItemInstance, error) {
	instances := l.set.ByOrder(orderID)
	if len(instances) == 0 {
		return nil, ErrNotFound
	}

	var updated []ItemInstance
	for _, candidate := range instances {
		var previous string
		item, err := l.set.Mutate(candidate.ID, func(item *ItemInstance) error {
			if item.State != itemstate.States.Pending.Name && item.State != itemstate.States.InProgress.Name {
				return errNoChange
			}
			previous = item.State
			l.applyTransition(item, itemstate.States.Ready.Name, nil)
			return nil
		})
		if err != nil {
			l.logger.Error("cannot mark item ready", "item_id", candidate.ID.String(), "error", err)
			continue
		}
		if item == nil {
			continue
		}

		l.persist(ctx, item)
		l.emit(ctx, item, event.KindStateChanged, previous)
		updated = append(updated, *item)
	}

	if len(updated) == 0 {
		return nil, ErrNoEligibleItems
	}
	return updated, nil
}

// persist writes the mutated item to durable storage. The working set
// already holds the new state, so storage failures are logged, not rolled
// back; the board stays consistent for subscribers either way.
func (l *Lifecycle) persist(ctx context.Context, item *ItemInstance) {
	if l.repo == nil || item == nil {
		return
	}
	if err := l.repo.Update(ctx, item); err != nil {
		l.logger.Error("cannot persist item mutation", "item_id", item.ID.String(), "error", err)
	}
}

// emit fans the mutation out to the station group and the persistent
// stream. Both paths are best-effort.
func (l *Lifecycle) emit(ctx context.Context, item *ItemInstance, kind, previousState string) {
	if item == nil {
		return
	}
	evt := item.Event(kind, previousState, time.Now().UTC())

	if l.gateway != nil {
		l.gateway.Publish(item.StationID.String(), evt)
	}
	if l.publisher != nil {
		payload, _ := json.Marshal(evt)
		if err := l.publisher.Publish(ctx, event.ItemsTopic, payload); err != nil {
			l.logger.Errorf("Failed to publish %s event: %v", kind, err)
		}
	}
}
