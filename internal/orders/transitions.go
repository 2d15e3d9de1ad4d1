package orders

import (
	"fmt"

	"github.com/imrishuroy/go-jewelry-orders/internal/apperr"
)

// transitions lists the legal target statuses for each source status.
// cancelled and refunded are terminal.
var transitions = map[Status][]Status{
	StatusPending:    {StatusConfirmed, StatusCancelled},
	StatusConfirmed:  {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusDelivered, StatusRefunded},
	StatusDelivered:  {StatusRefunded},
	StatusCancelled:  nil,
	StatusRefunded:   nil,
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	return s == StatusCancelled || s == StatusRefunded
}

// NextStatuses returns the statuses reachable from s in one step.
func (s Status) NextStatuses() []Status {
	return append([]Status(nil), transitions[s]...)
}

// CanTransition reports whether from -> to is in the transition table.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// checkTransition validates from -> to. With enforce=false any move to a
// different known status is accepted, except out of a terminal status.
func checkTransition(from, to Status, enforce bool) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown status %q", apperr.ErrValidation, to)
	}
	if from.IsTerminal() {
		return fmt.Errorf("%w: %s is terminal", apperr.ErrInvalidTransition, from)
	}
	if from == to {
		return fmt.Errorf("%w: order is already %s", apperr.ErrInvalidTransition, to)
	}
	if enforce && !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", apperr.ErrInvalidTransition, from, to)
	}
	return nil
}
