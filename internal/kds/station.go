package kds

import (
	"time"

	"github.com/google/uuid"
)

const CurrentStationSchemaVersion = 1

// Station is a preparation point (grill, bar, expo...) that owns a subset
// of routed line items and one board of display subscribers.
type Station struct {
	ID           uuid.UUID `json:"id" bson:"_id"`
	Name         string    `json:"name" bson:"name"`
	ColorTag     string    `json:"color_tag,omitempty" bson:"color_tag,omitempty"`
	DisplayOrder int       `json:"display_order" bson:"display_order"`

	// ReceivesAll short-circuits filtering. FilterEnabled distinguishes "a
	// filter is configured" from "no filter was ever set up": the latter is
	// always fail-open so a fresh station does not silently receive nothing.
	ReceivesAll       bool        `json:"receives_all" bson:"receives_all"`
	FilterEnabled     bool        `json:"filter_enabled" bson:"filter_enabled"`
	CategoryFilter    []uuid.UUID `json:"category_filter,omitempty" bson:"category_filter,omitempty"`
	ProductTypeFilter []uuid.UUID `json:"product_type_filter,omitempty" bson:"product_type_filter,omitempty"`

	AlertThresholdMinutes int `json:"alert_threshold_minutes" bson:"alert_threshold_minutes"`
	PageSize              int `json:"page_size,omitempty" bson:"page_size,omitempty"`

	// Soft-disabled stations keep their history but stop receiving routes.
	Active bool `json:"active" bson:"active"`

	SchemaVersion int       `json:"schema_version" bson:"schema_version"`
	CreatedAt     time.Time `json:"created_at" bson:"created_at"`
	CreatedBy     string    `json:"created_by,omitempty" bson:"created_by,omitempty"`
	UpdatedAt     time.Time `json:"updated_at" bson:"updated_at"`
	UpdatedBy     string    `json:"updated_by,omitempty" bson:"updated_by,omitempty"`
}

func (s *Station) EnsureID() {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
}

func (s *Station) BeforeCreate() {
	now := time.Now().UTC()
	s.CreatedAt = now
	s.UpdatedAt = now
	s.SchemaVersion = CurrentStationSchemaVersion
	s.Active = true
}

func (s *Station) BeforeUpdate() {
	s.UpdatedAt = time.Now().UTC()
}

// Matches decides whether a line item with the given category and product
// type routes to this station. failOpen governs the empty-filter case only;
// an unconfigured filter always matches.
func (s *Station) Matches(categoryID, productTypeID uuid.UUID, failOpen bool) bool {
	if s.ReceivesAll {
		return true
	}
	if !s.FilterEnabled {
		return true
	}
	if len(s.CategoryFilter) == 0 && len(s.ProductTypeFilter) == 0 {
		return failOpen
	}
	return containsID(s.CategoryFilter, categoryID) || containsID(s.ProductTypeFilter, productTypeID)
}

// CoversCategory reports whether this station would receive items of the
// given category. Used by the advisory coverage check on soft-disable.
func (s *Station) CoversCategory(categoryID uuid.UUID) bool {
	if s.ReceivesAll || !s.FilterEnabled {
		return true
	}
	return containsID(s.CategoryFilter, categoryID)
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	if id == uuid.Nil {
		return false
	}
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
