package handler

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"schemaregistry/internal/definition"
	"schemaregistry/internal/projection"
)

type DefinitionResponse struct {
	ID               uuid.UUID `json:"id"`
	Title            string    `json:"title"`
	Status           string    `json:"status"`
	Schema           any       `json:"schema,omitempty"`
	SourceFile       string    `json:"source_file,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	CreatedBy        string    `json:"created_by,omitempty"`
	UpdatedAt        time.Time `json:"updated_at"`
	UpdatedBy        string    `json:"updated_by,omitempty"`
	ActivatedBy      string    `json:"activated_by,omitempty"`
	ValidationErrors []string  `json:"validation_errors,omitempty"`
	Version          int64     `json:"version"`
}

// FromState renders the schema inline when it is well-formed JSON and as a
// string otherwise.
func FromState(st definition.State) DefinitionResponse {
	var schema any
	if st.Schema != "" {
		if json.Valid([]byte(st.Schema)) {
			schema = json.RawMessage(st.Schema)
		} else {
			schema = st.Schema
		}
	}
	return DefinitionResponse{
		ID:               st.ID,
		Title:            st.Title,
		Status:           string(st.Status),
		Schema:           schema,
		SourceFile:       st.SourceFile,
		CreatedAt:        st.CreatedAt,
		CreatedBy:        st.CreatedBy,
		UpdatedAt:        st.UpdatedAt,
		UpdatedBy:        st.UpdatedBy,
		ActivatedBy:      st.ActivatedBy,
		ValidationErrors: st.ValidationErrors,
		Version:          st.Version,
	}
}

type AttributeResponse struct {
	Name       string `json:"name"`
	Column     string `json:"column"`
	Type       string `json:"type"`
	Expression string `json:"expression"`
}

type DDLResponse struct {
	Table      string              `json:"table"`
	Statements []string            `json:"statements"`
	Attributes []AttributeResponse `json:"attributes"`
}

func FromSynthesis(s *projection.Synthesis) DDLResponse {
	attrs := make([]AttributeResponse, len(s.Attributes))
	for i, a := range s.Attributes {
		attrs[i] = AttributeResponse{Name: a.Name, Column: a.Column(), Type: string(a.Type), Expression: a.Expression}
	}
	return DDLResponse{
		Table:      s.Table,
		Statements: s.Statements(),
		Attributes: attrs,
	}
}
