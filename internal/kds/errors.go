package kds

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a station or item id is unknown.
var ErrNotFound = errors.New("not found")

// ErrNoEligibleItems is returned by MarkOrderReady when no instance of the
// order is in a state the bulk operation can advance.
var ErrNoEligibleItems = errors.New("no eligible items")

// InvalidTransitionError rejects an illegal lifecycle edge. This is an
// expected error path (UI double-taps race each other), so it carries both
// states for the client to reconcile its view.
type InvalidTransitionError struct {
	Current string
	Target  string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %s to %s", e.Current, e.Target)
}

// ConfigurationError flags a station whose routing or escalation config
// cannot be applied. It is logged and skipped, never surfaced as a failure.
type ConfigurationError struct {
	StationID uuid.UUID
	Reason    string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("station %s misconfigured: %s", e.StationID, e.Reason)
}
