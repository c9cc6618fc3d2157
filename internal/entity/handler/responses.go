package handler

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"schemaregistry/internal/entity"
	"schemaregistry/internal/schema"
)

type EntityResponse struct {
	ID                 uuid.UUID       `json:"id"`
	EntityType         string          `json:"entity_type"`
	RegistryDefID      uuid.UUID       `json:"registry_def_id"`
	RegistryDefVersion int64           `json:"registry_def_version"`
	Body               json.RawMessage `json:"entity_body,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	CreatedBy          string          `json:"created_by,omitempty"`
	UpdatedAt          time.Time       `json:"updated_at"`
	UpdatedBy          string          `json:"updated_by,omitempty"`
	Deleted            bool            `json:"deleted,omitempty"`
	Version            int64           `json:"version"`
}

func FromState(st entity.State) EntityResponse {
	resp := EntityResponse{
		ID:                 st.ID,
		EntityType:         st.EntityType,
		RegistryDefID:      st.RegistryDefID,
		RegistryDefVersion: st.RegistryDefVersion,
		CreatedAt:          st.CreatedAt,
		CreatedBy:          st.CreatedBy,
		UpdatedAt:          st.UpdatedAt,
		UpdatedBy:          st.UpdatedBy,
		Deleted:            st.Deleted,
		Version:            st.Version,
	}
	if !st.Deleted {
		resp.Body = json.RawMessage(st.Body.String())
	}
	return resp
}

type ViolationResponse struct {
	Location string `json:"location"`
	Field    string `json:"field,omitempty"`
	Value    string `json:"value,omitempty"`
	Message  string `json:"message"`
}

// SchemaErrorResponse extends the standard error body with each violation.
type SchemaErrorResponse struct {
	Error       string              `json:"error"`
	Description string              `json:"error_description"`
	Violations  []ViolationResponse `json:"violations"`
}

func FromSchemaError(e *entity.JSONSchemaError) SchemaErrorResponse {
	out := make([]ViolationResponse, len(e.Violations))
	for i, v := range e.Violations {
		out[i] = fromViolation(v)
	}
	return SchemaErrorResponse{
		Error:       "validation_error",
		Description: e.Error(),
		Violations:  out,
	}
}

func fromViolation(v schema.Violation) ViolationResponse {
	return ViolationResponse{Location: v.Location, Field: v.Field, Value: v.Value, Message: v.Message}
}
