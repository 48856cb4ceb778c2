package usecase

import (
	"errors"
	"fmt"

	"github.com/xavierca1/leadflow/internal/entity"
)

// ValidationError rejects a payload before anything is written. The values
// below are comparable, so errors.Is matches them.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var (
	ErrMissingCompany = ValidationError{Field: "company", Message: "missing required field"}
	ErrInvalidEmail   = ValidationError{Field: "email", Message: "invalid email"}
	ErrInvalidStage   = ValidationError{Field: "stage", Message: "invalid stage"}
)

// ErrLeadNotFound is returned by Update and UpdateStage for an unknown id.
var ErrLeadNotFound = entity.ErrLeadNotFound

var (
	ErrEmptyCSV  = errors.New("csv is empty")
	ErrCSVHeader = errors.New("csv header could not be read")
)

func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}
