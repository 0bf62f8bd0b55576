package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/JonMunkholm/tablestore/internal/auth"
	"github.com/JonMunkholm/tablestore/internal/core"
	"github.com/JonMunkholm/tablestore/internal/logging"
)

// TokenVerifier validates a bearer token.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// ActorResolver loads the current identity of a token subject.
type ActorResolver interface {
	ResolveActor(ctx context.Context, userID string) (core.Actor, error)
}

type claimsKey struct{}

// ClaimsFromContext returns the verified claims of the request's token.
func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*auth.Claims)
	return c, ok
}

// Authenticate requires a valid, unrevoked bearer token and attaches the
// resolved core.Actor and the claims to the request context.
func Authenticate(tokens TokenVerifier, revoker auth.Revoker, actors ActorResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, string(core.KindUnauthorized), "Missing bearer token")
				return
			}

			claims, err := tokens.Verify(raw)
			if err != nil {
				slog.Debug("auth: token rejected", "path", r.URL.Path, "error", err)
				writeError(w, http.StatusUnauthorized, string(core.KindUnauthorized), "Invalid or expired token")
				return
			}

			revoked, err := revoker.IsRevoked(r.Context(), claims.ID)
			if err != nil {
				logging.FromContext(r.Context()).Error("auth: revocation check failed", "error", err)
				writeError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Authentication is temporarily unavailable")
				return
			}
			if revoked {
				writeError(w, http.StatusUnauthorized, string(core.KindUnauthorized), "Token has been revoked")
				return
			}

			actor, err := actors.ResolveActor(r.Context(), claims.Subject)
			if err != nil {
				var de *core.Error
				if errors.As(err, &de) && de.Kind == core.KindUnauthorized {
					writeError(w, http.StatusUnauthorized, string(core.KindUnauthorized), de.Message)
					return
				}
				logging.FromContext(r.Context()).Error("auth: resolve actor failed", "error", err)
				writeError(w, http.StatusInternalServerError, string(core.KindInternal), "Something went wrong")
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey{}, claims)
			ctx = core.ContextWithActor(ctx, actor)
			ctx = logging.WithUserID(ctx, actor.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
