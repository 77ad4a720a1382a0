package kds

import (
	"sync"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/kds/pkg/event"
)

// OperatorGroup is the privileged all-stations group. Its subscribers
// receive every event regardless of station.
const OperatorGroup = "all"

const subscriberBuffer = 100

// Gateway maintains the per-station subscriber groups. Fan-out is
// fire-and-forget: a full subscriber channel drops the event rather than
// stalling the mutation that produced it.
type Gateway struct {
	logger apt.Logger

	mu sync.RWMutex
	// group name (station id or OperatorGroup) -> subscriber id -> channel
	groups map[string]map[string]chan *event.ItemEvent
}

func NewGateway(logger apt.Logger) *Gateway {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &Gateway{
		logger: logger,
		groups: make(map[string]map[string]chan *event.ItemEvent),
	}
}

// Subscribe joins a group and returns the subscriber's event channel. A
// client views one station at a time; switching stations is a fresh
// Subscribe after Unsubscribe.
func (g *Gateway) Subscribe(group, subscriberID string) <-chan *event.ItemEvent {
	ch := make(chan *event.ItemEvent, subscriberBuffer)

	g.mu.Lock()
	subscribers := g.groups[group]
	if subscribers == nil {
		subscribers = make(map[string]chan *event.ItemEvent)
		g.groups[group] = subscribers
	}
	subscribers[subscriberID] = ch
	g.mu.Unlock()

	g.logger.Info("subscriber joined group", "group", group, "subscriber_id", subscriberID)
	return ch
}

// Unsubscribe removes the subscriber and closes its channel. Closing after
// releasing the lock is safe: a concurrent Publish either completed its
// sends while holding the read lock or no longer sees the channel.
func (g *Gateway) Unsubscribe(group, subscriberID string) {
	g.mu.Lock()
	var ch chan *event.ItemEvent
	if subscribers := g.groups[group]; subscribers != nil {
		ch = subscribers[subscriberID]
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(g.groups, group)
		}
	}
	g.mu.Unlock()

	if ch != nil {
		close(ch)
		g.logger.Info("subscriber left group", "group", group, "subscriber_id", subscriberID)
	}
}

// Publish delivers an event to every subscriber of the station's group and
// of the operator group. Clients in other groups never see it.
func (g *Gateway) Publish(stationID string, evt *event.ItemEvent) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	g.deliverLocked(stationID, evt)
	if stationID != OperatorGroup {
		g.deliverLocked(OperatorGroup, evt)
	}
}

func (g *Gateway) deliverLocked(group string, evt *event.ItemEvent) {
	for subscriberID, ch := range g.groups[group] {
		select {
		case ch <- evt:
		default:
			// Subscriber too slow; drop rather than block the mutation.
			g.logger.Info("subscriber channel full, dropping event", "group", group, "subscriber_id", subscriberID)
		}
	}
}

// GroupSize returns the number of subscribers in a group.
func (g *Gateway) GroupSize(group string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.groups[group])
}
