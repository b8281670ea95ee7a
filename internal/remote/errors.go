package remote

import (
	"errors"
	"fmt"

	"github.com/farmkeeper/farmkeeper/internal/models"
)

var (
	// ErrUnavailable marks transport failures and server-side errors worth
	// retrying later: connection refused, timeouts, 5xx responses.
	ErrUnavailable = errors.New("server unavailable")

	// ErrValidation marks 4xx rejections that will not succeed on retry.
	ErrValidation = errors.New("rejected by server")
)

// OrgSelectionError is returned by Login when the account belongs to more
// than one organization and the caller has to pick one and log in again
// with its id.
type OrgSelectionError struct {
	Organizations []models.Organization
}

func (e *OrgSelectionError) Error() string {
	return fmt.Sprintf("account belongs to %d organizations, selection required", len(e.Organizations))
}
