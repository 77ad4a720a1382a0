package kds

import (
	"context"
	"errors"
	"sync"

	"github.com/appetiteclub/apt/events"
	"github.com/google/uuid"
)

// MockItemRepository is a test mock for ItemRepository
type MockItemRepository struct {
	mu         sync.Mutex
	items      map[uuid.UUID]*ItemInstance
	CreateFunc func(ctx context.Context, item *ItemInstance) error
	UpdateFunc func(ctx context.Context, item *ItemInstance) error
	FindFunc   func(ctx context.Context, id ItemID) (*ItemInstance, error)
	ListFunc   func(ctx context.Context, filter ItemFilter) ([]ItemInstance, error)
}

func NewMockItemRepository() *MockItemRepository {
	return &MockItemRepository{
		items: make(map[uuid.UUID]*ItemInstance),
	}
}

func (m *MockItemRepository) Create(ctx context.Context, item *ItemInstance) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, item)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[item.ID] = item.Clone()
	return nil
}

func (m *MockItemRepository) Update(ctx context.Context, item *ItemInstance) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, item)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.items[item.ID]; !exists {
		return errors.New("item not found")
	}
	m.items[item.ID] = item.Clone()
	return nil
}

func (m *MockItemRepository) FindByID(ctx context.Context, id ItemID) (*ItemInstance, error) {
	if m.FindFunc != nil {
		return m.FindFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	item, exists := m.items[id]
	if !exists {
		return nil, errors.New("item not found")
	}
	return item.Clone(), nil
}

func (m *MockItemRepository) List(ctx context.Context, filter ItemFilter) ([]ItemInstance, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, filter)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]ItemInstance, 0, len(m.items))
	for _, item := range m.items {
		if filter.StationID != nil && item.StationID != *filter.StationID {
			continue
		}
		if filter.OrderID != nil && item.OrderID != *filter.OrderID {
			continue
		}
		if filter.State != nil && item.State != *filter.State {
			continue
		}
		result = append(result, *item.Clone())
	}
	return result, nil
}

// StoredItem returns the last persisted version of an item, or nil.
func (m *MockItemRepository) StoredItem(id ItemID) *ItemInstance {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, exists := m.items[id]
	if !exists {
		return nil
	}
	return item.Clone()
}

// MockStationRepository is a test mock for StationRepository
type MockStationRepository struct {
	stations map[uuid.UUID]*Station
	ListFunc func(ctx context.Context, activeOnly bool) ([]Station, error)
	FindFunc func(ctx context.Context, id StationID) (*Station, error)
}

func NewMockStationRepository() *MockStationRepository {
	return &MockStationRepository{
		stations: make(map[uuid.UUID]*Station),
	}
}

func (m *MockStationRepository) Create(ctx context.Context, station *Station) error {
	m.stations[station.ID] = station
	return nil
}

func (m *MockStationRepository) Update(ctx context.Context, station *Station) error {
	if _, exists := m.stations[station.ID]; !exists {
		return ErrNotFound
	}
	m.stations[station.ID] = station
	return nil
}

func (m *MockStationRepository) FindByID(ctx context.Context, id StationID) (*Station, error) {
	if m.FindFunc != nil {
		return m.FindFunc(ctx, id)
	}
	station, exists := m.stations[id]
	if !exists {
		return nil, ErrNotFound
	}
	return station, nil
}

func (m *MockStationRepository) List(ctx context.Context, activeOnly bool) ([]Station, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, activeOnly)
	}
	result := make([]Station, 0, len(m.stations))
	for _, station := range m.stations {
		if activeOnly && !station.Active {
			continue
		}
		result = append(result, *station)
	}
	return result, nil
}

// AddStation is a helper to seed the mock repository
func (m *MockStationRepository) AddStation(station *Station) {
	m.stations[station.ID] = station
}

// MockPublisher is a test mock for events.Publisher
type MockPublisher struct {
	mu              sync.Mutex
	PublishedEvents []PublishedEvent
	PublishFunc     func(ctx context.Context, topic string, data []byte) error
}

type PublishedEvent struct {
	Topic string
	Data  []byte
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{
		PublishedEvents: make([]PublishedEvent, 0),
	}
}

func (m *MockPublisher) Publish(ctx context.Context, topic string, data []byte) error {
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, topic, data)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PublishedEvents = append(m.PublishedEvents, PublishedEvent{Topic: topic, Data: data})
	return nil
}

func (m *MockPublisher) Published() []PublishedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PublishedEvent(nil), m.PublishedEvents...)
}

// MockStreamConsumer is a test mock for events.StreamConsumer
type MockStreamConsumer struct {
	messages            []events.StreamMessage
	FetchFunc           func(ctx context.Context, maxMessages int) ([]events.StreamMessage, error)
	SubscribeStreamFunc func(ctx context.Context, handler events.HandlerFunc) error
}

func NewMockStreamConsumer() *MockStreamConsumer {
	return &MockStreamConsumer{
		messages: make([]events.StreamMessage, 0),
	}
}

func (m *MockStreamConsumer) Fetch(ctx context.Context, maxMessages int) ([]events.StreamMessage, error) {
	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, maxMessages)
	}
	return m.messages, nil
}

func (m *MockStreamConsumer) SubscribeStream(ctx context.Context, handler events.HandlerFunc) error {
	if m.SubscribeStreamFunc != nil {
		return m.SubscribeStreamFunc(ctx, handler)
	}
	return nil
}

func (m *MockStreamConsumer) AddMessage(data []byte) {
	m.messages = append(m.messages, events.StreamMessage{Data: data})
}
