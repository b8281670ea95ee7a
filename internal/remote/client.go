// Package remote implements the HTTP/JSON client for the farmkeeper backend.
// Every method classifies transport and status failures into the sentinel
// errors of this package and of common, so callers route on errors.Is
// instead of inspecting status codes.
package remote

import (
	"context"

	"github.com/farmkeeper/farmkeeper/internal/models"
)

// Client is the remote API surface the sync layer talks to. Implementations
// must be safe for concurrent use.
type Client interface {
	// Login authenticates and installs a session token on the client.
	// organizationID is 0 unless the caller is answering an
	// OrgSelectionError from a previous attempt.
	Login(ctx context.Context, email string, password []byte, organizationID int64) (*models.Profile, error)

	// Register creates a new account. It does not log in.
	Register(ctx context.Context, email, fullName string, password []byte) error

	// Ping probes reachability without touching any data.
	Ping(ctx context.Context) error

	// List fetches every record of a kind visible to the session.
	List(ctx context.Context, kind models.Kind) ([]Item, error)

	// Create pushes a new record. A replayed create (recognized by the
	// idempotency token) resolves to the record the server already holds.
	Create(ctx context.Context, rec models.Record, parentServerID int64) (*Item, error)

	// Update replaces the domain fields of an existing record.
	Update(ctx context.Context, serverID int64, rec models.Record, parentServerID int64) (*Item, error)

	// Delete removes a record. Deleting an id the server no longer has
	// returns an error matching common.ErrNotFound.
	Delete(ctx context.Context, kind models.Kind, serverID int64) error

	// Authenticated reports whether the client holds a live session token.
	Authenticated() bool

	// Logout drops the session token.
	Logout()
}
