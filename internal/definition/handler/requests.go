package handler

import (
	"bytes"
	"encoding/json"
	"strings"

	dErrors "schemaregistry/pkg/domain-errors"
)

const maxTitleLength = 128

// CreateRequest is the body of POST /definitions. Schema may be a JSON
// object or a string holding the schema text.
type CreateRequest struct {
	Title      string          `json:"title"`
	Schema     json.RawMessage `json:"schema"`
	SourceFile string          `json:"source_file,omitempty"`

	schemaText string
}

// Validate implements httputil.Validatable.
func (r *CreateRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Title = strings.TrimSpace(r.Title)
	if r.Title == "" {
		return dErrors.New(dErrors.CodeValidation, "title is required")
	}
	if len(r.Title) > maxTitleLength {
		return dErrors.New(dErrors.CodeValidation, "title must be at most 128 characters")
	}
	text, err := schemaText(r.Schema)
	if err != nil {
		return err
	}
	r.schemaText = text
	r.SourceFile = strings.TrimSpace(r.SourceFile)
	return nil
}

// SchemaText is the schema as stored on the definition.
func (r *CreateRequest) SchemaText() string { return r.schemaText }

// UpdateSchemaRequest is the body of PUT /definitions/{title}/schema.
type UpdateSchemaRequest struct {
	Schema json.RawMessage `json:"schema"`

	schemaText string
}

func (r *UpdateSchemaRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	text, err := schemaText(r.Schema)
	if err != nil {
		return err
	}
	r.schemaText = text
	return nil
}

func (r *UpdateSchemaRequest) SchemaText() string { return r.schemaText }

// schemaText accepts either an embedded JSON document or a JSON string. A
// string is stored verbatim so malformed schemas can still be recorded and
// rejected at validation.
func schemaText(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", dErrors.New(dErrors.CodeValidation, "schema is required")
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", dErrors.New(dErrors.CodeBadRequest, "schema must be a JSON document or a string")
		}
		return s, nil
	}
	return string(raw), nil
}
