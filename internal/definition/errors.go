package definition

import (
	"fmt"

	dErrors "schemaregistry/pkg/domain-errors"
)

var (
	ErrDefinitionAlreadyExists = dErrors.New(dErrors.CodeConflict, "definition already exists")
	ErrDefinitionNotValid      = dErrors.New(dErrors.CodeInvariantViolation, "definition is not valid")
	ErrDefinitionNotActive     = dErrors.New(dErrors.CodeInvariantViolation, "definition is not active")
	ErrDefinitionNotFound      = dErrors.New(dErrors.CodeNotFound, "definition not found")
)

// NotInProperStateError reports a command that needs the definition in a
// specific status.
type NotInProperStateError struct {
	Expected Status
	Actual   Status
}

func (e *NotInProperStateError) Error() string {
	return fmt.Sprintf("definition not in proper state: expected %s, actual %s", e.Expected, e.Actual)
}

func (e *NotInProperStateError) Unwrap() error {
	return dErrors.New(dErrors.CodeInvariantViolation, e.Error())
}
