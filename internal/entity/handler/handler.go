package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"schemaregistry/internal/entity"
	jwttoken "schemaregistry/internal/jwt_token"
	"schemaregistry/internal/platform/middleware"
	dErrors "schemaregistry/pkg/domain-errors"
	"schemaregistry/pkg/platform/httputil"
	"schemaregistry/pkg/requestcontext"
)

const maxBodyBytes = 1 << 20

// Service is the entity command and query surface.
type Service interface {
	Create(ctx context.Context, entityType string, body []byte, actor string) (entity.State, error)
	Modify(ctx context.Context, entityType string, id uuid.UUID, body []byte, actor string) (entity.State, error)
	Delete(ctx context.Context, entityType string, id uuid.UUID, actor string) (entity.State, error)
	Get(ctx context.Context, entityType string, id uuid.UUID) (entity.State, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts entity endpoints. The request body of create and modify is
// the entity document itself.
func (h *Handler) Register(r chi.Router) {
	r.Get("/entities/{type}/{id}", h.HandleGet)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireScope(jwttoken.ScopeEntitiesWrite, h.logger))
		r.Post("/entities/{type}", h.HandleCreate)
		r.Put("/entities/{type}/{id}", h.HandleModify)
		r.Delete("/entities/{type}/{id}", h.HandleDelete)
	})
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, ctx)
	if !ok {
		return
	}
	entityType := chi.URLParam(r, "type")
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	st, err := h.service.Create(ctx, entityType, body, actor)
	if err != nil {
		h.fail(ctx, w, "create", entityType, err)
		return
	}
	h.logger.InfoContext(ctx, "entity created",
		"request_id", requestcontext.RequestID(ctx),
		"entity_type", st.EntityType,
		"entity_id", st.ID,
	)
	httputil.WriteJSON(w, http.StatusCreated, FromState(st))
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entityType := chi.URLParam(r, "type")
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	st, err := h.service.Get(ctx, entityType, id)
	if err != nil {
		h.fail(ctx, w, "get", entityType, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromState(st))
}

func (h *Handler) HandleModify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, ctx)
	if !ok {
		return
	}
	entityType := chi.URLParam(r, "type")
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	st, err := h.service.Modify(ctx, entityType, id, body, actor)
	if err != nil {
		h.fail(ctx, w, "modify", entityType, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromState(st))
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(w, ctx)
	if !ok {
		return
	}
	entityType := chi.URLParam(r, "type")
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	st, err := h.service.Delete(ctx, entityType, id, actor)
	if err != nil {
		h.fail(ctx, w, "delete", entityType, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromState(st))
}

func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "cannot read request body"))
		return nil, false
	}
	if len(body) > maxBodyBytes {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "request body too large"))
		return nil, false
	}
	return body, true
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, op, entityType string, err error) {
	var schemaErr *entity.JSONSchemaError
	if errors.As(err, &schemaErr) {
		httputil.WriteJSON(w, http.StatusUnprocessableEntity, FromSchemaError(schemaErr))
		return
	}
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "entity request failed",
			"request_id", requestcontext.RequestID(ctx),
			"operation", op,
			"entity_type", entityType,
			"error", err,
		)
	}
	httputil.WriteError(w, err)
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "id must be a UUID"))
		return uuid.Nil, false
	}
	return id, true
}

func requireActor(w http.ResponseWriter, ctx context.Context) (string, bool) {
	actor := requestcontext.Actor(ctx)
	if actor == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return "", false
	}
	return actor, true
}
