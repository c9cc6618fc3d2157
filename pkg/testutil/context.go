package testutil

import (
	"net/http"

	"schemaregistry/pkg/requestcontext"
)

// WithActor simulates what the auth middleware does for an authenticated
// caller holding scopes.
func WithActor(req *http.Request, actor string, scopes ...string) *http.Request {
	ctx := requestcontext.WithActor(req.Context(), actor)
	ctx = requestcontext.WithScopes(ctx, scopes)
	return req.WithContext(ctx)
}
