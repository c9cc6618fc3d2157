package entity

import (
	"fmt"
	"strings"

	"schemaregistry/internal/schema"
	dErrors "schemaregistry/pkg/domain-errors"
)

var ErrEntityNotFound = dErrors.New(dErrors.CodeNotFound, "entity not found")

// JSONSchemaError reports a body that does not conform to its definition's
// schema. Message joins every violation; Violations keeps them in order.
type JSONSchemaError struct {
	EntityType string
	Message    string
	Violations []schema.Violation
}

func newJSONSchemaError(entityType string, violations []schema.Violation) *JSONSchemaError {
	parts := make([]string, len(violations))
	for i, v := range violations {
		parts[i] = v.String()
	}
	return &JSONSchemaError{
		EntityType: entityType,
		Message:    strings.Join(parts, "; "),
		Violations: violations,
	}
}

func (e *JSONSchemaError) Error() string {
	return fmt.Sprintf("%s does not conform to its schema: %s", e.EntityType, e.Message)
}

// Messages returns each violation as its own string.
func (e *JSONSchemaError) Messages() []string {
	out := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		out[i] = v.String()
	}
	return out
}

func (e *JSONSchemaError) Unwrap() error {
	return dErrors.New(dErrors.CodeValidation, e.Error())
}
