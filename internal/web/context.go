package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/tablestore/internal/core"
	mw "github.com/JonMunkholm/tablestore/internal/web/middleware"
)

// WithRequestMetadata adds IP and User-Agent to context for audit logging.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	ctx = core.ContextWithIPAddress(ctx, mw.ClientIP(r))
	ctx = core.ContextWithUserAgent(ctx, r.UserAgent())
	return ctx
}

// requestMetadata applies WithRequestMetadata to every request.
func requestMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(WithRequestMetadata(r.Context(), r)))
	})
}

// actorFrom returns the authenticated actor placed by mw.Authenticate.
func actorFrom(r *http.Request) (core.Actor, error) {
	a, ok := core.ActorFromContext(r.Context())
	if !ok {
		return core.Actor{}, core.Unauthorized("Authentication required")
	}
	return a, nil
}
