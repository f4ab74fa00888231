package order

import (
	"fmt"
	"strings"

	"github.com/go-faster/errors"
)

// Sentinel errors for fulfillment operations.
var (
	ErrInvalidRequest      = errors.New("invalid request")
	ErrNotFound            = errors.New("order not found")
	ErrForbidden           = errors.New("forbidden")
	ErrStoreInactive       = errors.New("store is not accepting orders")
	ErrCrossStoreViolation = errors.New("all products must belong to the same store")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrOrderClosed         = errors.New("order is closed")
	ErrAlreadyCheckedIn    = errors.New("customer already checked in")
	ErrInvalidPickupCode   = errors.New("invalid pickup code")
	ErrNoItemsAvailable    = errors.New("none of the items are currently available")
	ErrDuplicatePromotion  = errors.New("a promotion has already been applied to this order")
)

// InvalidTransitionError names a disallowed status change and the statuses
// that would have been accepted.
type InvalidTransitionError struct {
	From    Status
	To      Status
	Allowed []Status
}

func (e *InvalidTransitionError) Error() string {
	allowed := make([]string, len(e.Allowed))
	for i, s := range e.Allowed {
		allowed[i] = string(s)
	}
	return fmt.Sprintf("cannot transition from %s to %s. Allowed: [%s]", e.From, e.To, strings.Join(allowed, ", "))
}

// Is makes InvalidTransitionError match ErrInvalidTransition.
func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// ProductsNotFoundError lists requested products that are missing or
// inactive.
type ProductsNotFoundError struct {
	ProductIDs []string
}

func (e *ProductsNotFoundError) Error() string {
	return fmt.Sprintf("products not found or inactive: %s", strings.Join(e.ProductIDs, ", "))
}

// Is makes ProductsNotFoundError match ErrNotFound.
func (e *ProductsNotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// requestError is an ErrInvalidRequest with a message fit for the caller.
type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

func (e *requestError) Is(target error) bool {
	return target == ErrInvalidRequest
}

func invalidRequest(format string, args ...any) error {
	return &requestError{msg: fmt.Sprintf(format, args...)}
}
