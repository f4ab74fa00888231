package handler

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"slices"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/cornermart/pickup/internal/domain/auth"
)

// APIKeyHeader carries the caller's API key.
const APIKeyHeader = "X-API-Key"

// Authenticator resolves API keys to caller identities. Keys are stored as
// HMAC-SHA256 hashes under a server-side pepper.
type Authenticator struct {
	apikeys auth.Repository
	pepper  []byte
}

// NewAuthenticator creates an Authenticator with the given API key
// repository and HMAC pepper.
func NewAuthenticator(apikeys auth.Repository, pepper []byte) *Authenticator {
	return &Authenticator{
		apikeys: apikeys,
		pepper:  pepper,
	}
}

// Authenticate returns the identity bound to key.
func (a *Authenticator) Authenticate(ctx context.Context, key string) (auth.Identity, error) {
	if key == "" {
		return auth.Identity{}, auth.ErrUnauthorized
	}
	hexHash := auth.HashKey(key, a.pepper)

	info, err := a.apikeys.FindByHash(ctx, hexHash)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthorized) {
			return auth.Identity{}, auth.ErrUnauthorized
		}
		return auth.Identity{}, errors.Wrap(err, "find api key")
	}

	// The repository matched on the hash; compare again in constant time in
	// case it returned a different row.
	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil {
		return auth.Identity{}, auth.ErrUnauthorized
	}
	computed, _ := hex.DecodeString(hexHash)
	if subtle.ConstantTimeCompare(computed, stored) != 1 {
		return auth.Identity{}, auth.ErrUnauthorized
	}

	id := info.Identity()
	if id.UserID == "" || !id.Role.Valid() {
		return auth.Identity{}, auth.ErrUnauthorized
	}
	return id, nil
}

// Middleware rejects requests without a valid API key and stores the
// caller identity in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id, err := a.Authenticate(ctx, r.Header.Get(APIKeyHeader))
		if err != nil {
			if !errors.Is(err, auth.ErrUnauthorized) {
				writeError(ctx, w, err)
				return
			}
			writeMessage(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		ctx = auth.WithIdentity(ctx, id)
		ctx = zctx.With(ctx, zap.String("user.id", id.UserID), zap.String("user.role", string(id.Role)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole allows only callers with one of roles through.
func RequireRole(roles ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := auth.FromContext(r.Context())
			if !ok {
				writeMessage(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if !slices.Contains(roles, id.Role) {
				writeMessage(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
