package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"schemaregistry/internal/definition"
	jwttoken "schemaregistry/internal/jwt_token"
	"schemaregistry/internal/platform/middleware"
	"schemaregistry/internal/projection"
	dErrors "schemaregistry/pkg/domain-errors"
	"schemaregistry/pkg/platform/httputil"
	"schemaregistry/pkg/requestcontext"
)

// Service is the definition command and query surface.
type Service interface {
	Create(ctx context.Context, title, schemaText, actor string) (definition.State, error)
	Load(ctx context.Context, title, schemaText, sourceFile, actor string) (definition.State, error)
	Update(ctx context.Context, title, schemaText, actor string) (definition.State, error)
	Validate(ctx context.Context, title, actor string) (definition.State, error)
	Activate(ctx context.Context, title, actor string) (definition.State, error)
	Deactivate(ctx context.Context, title, actor string) (definition.State, error)
	Delete(ctx context.Context, title, actor string) (definition.State, error)
	Get(ctx context.Context, title string) (definition.State, error)
	DDL(ctx context.Context, title string) (*projection.Synthesis, error)
}

// Handler wires definition endpoints to the service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts definition endpoints. Mutations need the
// definitions:write scope.
func (h *Handler) Register(r chi.Router) {
	r.Get("/definitions/{title}", h.HandleGet)
	r.Get("/definitions/{title}/ddl", h.HandleDDL)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireScope(jwttoken.ScopeDefinitionsWrite, h.logger))
		r.Post("/definitions", h.HandleCreate)
		r.Put("/definitions/{title}/schema", h.HandleUpdateSchema)
		r.Post("/definitions/{title}/validate", h.transition("validate", Service.Validate))
		r.Post("/definitions/{title}/activate", h.transition("activate", Service.Activate))
		r.Post("/definitions/{title}/deactivate", h.transition("deactivate", Service.Deactivate))
		r.Delete("/definitions/{title}", h.transition("delete", Service.Delete))
	})
}

// HandleCreate handles POST /definitions. A source_file in the body records
// the definition as loaded from that file.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	actor, ok := requireActor(w, ctx)
	if !ok {
		return
	}

	req, ok := httputil.DecodeAndPrepare[CreateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	var (
		st  definition.State
		err error
	)
	if req.SourceFile != "" {
		st, err = h.service.Load(ctx, req.Title, req.SchemaText(), req.SourceFile, actor)
	} else {
		st, err = h.service.Create(ctx, req.Title, req.SchemaText(), actor)
	}
	if err != nil {
		h.fail(ctx, w, "create", req.Title, err)
		return
	}

	h.logger.InfoContext(ctx, "definition created",
		"request_id", requestID,
		"title", st.Title,
		"definition_id", st.ID,
	)
	httputil.WriteJSON(w, http.StatusCreated, FromState(st))
}

// HandleGet handles GET /definitions/{title}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	title := chi.URLParam(r, "title")
	st, err := h.service.Get(ctx, title)
	if err != nil {
		h.fail(ctx, w, "get", title, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromState(st))
}

// HandleUpdateSchema handles PUT /definitions/{title}/schema.
func (h *Handler) HandleUpdateSchema(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	actor, ok := requireActor(w, ctx)
	if !ok {
		return
	}
	title := chi.URLParam(r, "title")

	req, ok := httputil.DecodeAndPrepare[UpdateSchemaRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	st, err := h.service.Update(ctx, title, req.SchemaText(), actor)
	if err != nil {
		h.fail(ctx, w, "update", title, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromState(st))
}

// HandleDDL handles GET /definitions/{title}/ddl.
func (h *Handler) HandleDDL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	title := chi.URLParam(r, "title")
	synth, err := h.service.DDL(ctx, title)
	if err != nil {
		h.fail(ctx, w, "ddl", title, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromSynthesis(synth))
}

type transitionFunc func(s Service, ctx context.Context, title, actor string) (definition.State, error)

// transition serves the body-less lifecycle commands.
func (h *Handler) transition(name string, run transitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actor, ok := requireActor(w, ctx)
		if !ok {
			return
		}
		title := chi.URLParam(r, "title")
		st, err := run(h.service, ctx, title, actor)
		if err != nil {
			h.fail(ctx, w, name, title, err)
			return
		}
		h.logger.InfoContext(ctx, "definition "+name,
			"request_id", requestcontext.RequestID(ctx),
			"title", st.Title,
			"status", st.Status,
		)
		httputil.WriteJSON(w, http.StatusOK, FromState(st))
	}
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, op, title string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "definition request failed",
			"request_id", requestcontext.RequestID(ctx),
			"operation", op,
			"title", title,
			"error", err,
		)
	}
	httputil.WriteError(w, err)
}

func requireActor(w http.ResponseWriter, ctx context.Context) (string, bool) {
	actor := requestcontext.Actor(ctx)
	if actor == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return "", false
	}
	return actor, true
}
