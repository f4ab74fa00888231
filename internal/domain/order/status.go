package order

import (
	"slices"
	"time"
)

// Status is the fulfillment state of an order.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusPreparing Status = "PREPARING"
	StatusReady     Status = "READY"
	StatusPickedUp  Status = "PICKED_UP"
	StatusCancelled Status = "CANCELLED"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{
	StatusPending,
	StatusConfirmed,
	StatusPreparing,
	StatusReady,
	StatusPickedUp,
	StatusCancelled,
}

// transitions is the only definition of the order state machine.
var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusPreparing, StatusCancelled},
	StatusPreparing: {StatusReady, StatusCancelled},
	StatusReady:     {StatusPickedUp, StatusCancelled},
	StatusPickedUp:  {},
	StatusCancelled: {},
}

var customerMessages = map[Status]string{
	StatusConfirmed: "Your order has been confirmed",
	StatusPreparing: "Your order is being prepared",
	StatusReady:     "Your order is ready for pickup!",
	StatusPickedUp:  "Your order has been picked up. Thank you!",
	StatusCancelled: "Your order has been cancelled",
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

// AllowedNext returns the statuses reachable from s in one step.
func AllowedNext(s Status) []Status {
	return slices.Clone(transitions[s])
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to Status) bool {
	return slices.Contains(transitions[from], to)
}

// CustomerMessage returns the customer-facing text for entering s.
func CustomerMessage(s Status) string {
	if msg, ok := customerMessages[s]; ok {
		return msg
	}
	return "Your order status is now " + string(s)
}

// transition moves o to the target status or returns an
// *InvalidTransitionError leaving o untouched.
func (o *Order) transition(to Status, now time.Time) error {
	if !CanTransition(o.Status, to) {
		return &InvalidTransitionError{
			From:    o.Status,
			To:      to,
			Allowed: AllowedNext(o.Status),
		}
	}
	o.Status = to
	o.UpdatedAt = now
	return nil
}
