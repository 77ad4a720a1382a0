package kds

import "context"

type ItemFilter struct {
	StationID  *StationID
	OrderID    *OrderID
	LineItemID *LineItemID
	State      *string
	Limit      int
	Offset     int
}

type ItemRepository interface {
	Create(ctx context.Context, item *ItemInstance) error
	Update(ctx context.Context, item *ItemInstance) error
	FindByID(ctx context.Context, id ItemID) (*ItemInstance, error)
	List(ctx context.Context, filter ItemFilter) ([]ItemInstance, error)
}

type StationRepository interface {
	Create(ctx context.Context, station *Station) error
	Update(ctx context.Context, station *Station) error
	FindByID(ctx context.Context, id StationID) (*Station, error)
	List(ctx context.Context, activeOnly bool) ([]Station, error)
}
