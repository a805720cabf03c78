package contact

import (
	"fmt"

	types "github.com/yungbote/careline-backend/internal/domain/triage"
	pkgerrors "github.com/yungbote/careline-backend/internal/pkg/errors"
)

// ValidationError is recoverable: the user is re-prompted.
type ValidationError struct {
	Field       types.ContactField `json:"field"`
	Message     string             `json:"message"`
	Suggestions []string           `json:"suggestions,omitempty"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// ConsentRequiredError blocks collection until consent exists.
type ConsentRequiredError struct {
	ConsentType string
	Purpose     string
}

func (e *ConsentRequiredError) Error() string {
	return fmt.Sprintf("consent required for %s (purpose %s)", e.ConsentType, e.Purpose)
}

func (e *ConsentRequiredError) Is(target error) bool {
	return target == pkgerrors.ErrConsentRequired
}
