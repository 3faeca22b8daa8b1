package product

import (
	"fmt"

	"github.com/go-faster/errors"
)

// ErrUpstream marks failures of an external collaborator such as the image
// store. Callers match it with errors.Is.
var ErrUpstream = errors.New("upstream failure")

// ValidationError indicates a missing or malformed input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
