package store

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a store does not exist.
var ErrNotFound = errors.New("store not found")

// Store is the subset of a marketplace store the fulfillment core needs.
type Store struct {
	ID      string
	OwnerID string
	Name    string
	Active  bool
}

// Reader looks up stores by id.
type Reader interface {
	Get(ctx context.Context, id string) (*Store, error)
}
