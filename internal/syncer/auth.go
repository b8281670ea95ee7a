package syncer

import (
	"context"
	"errors"
	"fmt"

	"github.com/farmkeeper/farmkeeper/internal/common"
	"github.com/farmkeeper/farmkeeper/internal/models"
	"github.com/farmkeeper/farmkeeper/internal/remote"
)

// Login authenticates: against the backend when reachable (caching the
// credential for later offline logins), against the vault otherwise.
// organizationID is 0 unless the caller is answering an OrgSelectionError
// from a previous attempt. A wrong password resolves to ErrUnauthorized on
// both paths.
func (o *Orchestrator) Login(ctx context.Context, email string, password []byte, organizationID int64) (*models.Profile, error) {
	if o.Online() {
		var profile *models.Profile
		err := o.api.Do(ctx, func(ctx context.Context) error {
			var err error
			profile, err = o.remote.Login(ctx, email, password, organizationID)
			return err
		})

		var orgErr *remote.OrgSelectionError
		switch {
		case err == nil:
			if vErr := o.vault.Store(ctx, email, password, profile); vErr != nil {
				// The session works either way; only the next offline
				// login suffers.
				o.log.Warn(ctx, "failed to cache credential", "error", vErr)
			}
			o.setProfile(profile)
			o.RequestSync()
			return profile, nil
		case errors.As(err, &orgErr):
			return nil, err
		case !retryable(err):
			return nil, err
		default:
			o.log.Warn(ctx, "remote login unavailable, trying offline vault", "error", err)
			o.noteFailure(err)
		}
	}

	profile, err := o.vault.Validate(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, fmt.Errorf("offline login for %s: %w", email, common.ErrUnauthorized)
	}
	o.setProfile(profile)
	o.log.Info(ctx, "logged in offline", "email", email)
	return profile, nil
}

// Register creates an account on the backend. There is no offline path: an
// account that never logged in online has nothing cached to validate
// against.
func (o *Orchestrator) Register(ctx context.Context, email, fullName string, password []byte) error {
	if !o.Online() {
		return fmt.Errorf("registration needs a connection: %w", remote.ErrUnavailable)
	}
	return o.api.Do(ctx, func(ctx context.Context) error {
		return o.remote.Register(ctx, email, fullName, password)
	})
}

// Logout drops the session token, the cached credential and every cached
// read. Local data and the sync queue stay; pending changes replay on the
// next online login.
func (o *Orchestrator) Logout(ctx context.Context) error {
	o.remote.Logout()
	o.setProfile(nil)
	o.cache.InvalidateAll()
	return o.vault.Clear(ctx)
}

// LoggedIn reports an active session, whichever path established it.
func (o *Orchestrator) LoggedIn() bool {
	return o.Profile() != nil
}
