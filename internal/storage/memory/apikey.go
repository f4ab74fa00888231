package memory

import (
	"context"
	"fmt"
	"slices"

	"github.com/cornermart/pickup/internal/domain/auth"
	"github.com/cornermart/pickup/internal/domain/notify"
)

var _ auth.Repository = (*APIKeys)(nil)

// APIKeys implements auth.Repository on a DB.
type APIKeys struct {
	db *DB
}

// APIKeys returns the API key view of db.
func (db *DB) APIKeys() *APIKeys {
	return &APIKeys{db: db}
}

// PutAPIKey stores k under its hash.
func (r *APIKeys) PutAPIKey(ctx context.Context, k auth.APIKeyInfo) {
	defer r.db.lock(ctx)()
	r.db.state.apiKeys[k.KeyHash] = k
}

// FindByHash returns the key stored under hash.
func (r *APIKeys) FindByHash(ctx context.Context, hash string) (*auth.APIKeyInfo, error) {
	defer r.db.lock(ctx)()

	k, ok := r.db.state.apiKeys[hash]
	if !ok {
		return nil, fmt.Errorf("api key not found: %w", auth.ErrUnauthorized)
	}
	return &k, nil
}

// Notify appends n to the in-memory inbox.
func (db *DB) Notify(ctx context.Context, n notify.Notification) error {
	defer db.lock(ctx)()
	db.state.notifications = append(db.state.notifications, n)
	return nil
}

// Notifications returns the notifications addressed to userID, oldest first.
func (db *DB) Notifications(ctx context.Context, userID string) []notify.Notification {
	defer db.lock(ctx)()
	return slices.DeleteFunc(slices.Clone(db.state.notifications), func(n notify.Notification) bool {
		return n.UserID != userID
	})
}
