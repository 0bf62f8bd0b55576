package web

import (
	"net/http"
	"time"

	"github.com/JonMunkholm/tablestore/internal/core"
	mw "github.com/JonMunkholm/tablestore/internal/web/middleware"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expiresAt"`
	User      *core.User `json:"user"`
}

// handleRegister creates an account and signs the new user in.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in core.NewUser
	if err := decodeJSON(w, r, &in); err != nil {
		s.respondError(w, r, err)
		return
	}

	u, err := s.service.Register(r.Context(), in)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondToken(w, r, http.StatusCreated, u)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := decodeJSON(w, r, &in); err != nil {
		s.respondError(w, r, err)
		return
	}

	u, err := s.service.Authenticate(r.Context(), in.Email, in.Password)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondToken(w, r, http.StatusOK, u)
}

func (s *Server) respondToken(w http.ResponseWriter, r *http.Request, status int, u *core.User) {
	token, claims, err := s.tokens.Issue(u)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSONStatus(w, status, authResponse{Token: token, ExpiresAt: claims.ExpiresAt.Time, User: u})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	u, err := s.service.Me(r.Context(), actor)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"user": u})
}

// handleLogout revokes the presented token until it expires.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims, ok := mw.ClaimsFromContext(r.Context())
	if !ok {
		s.respondError(w, r, core.Unauthorized("Authentication required"))
		return
	}
	if err := s.revoker.Revoke(r.Context(), claims.ID, claims.ExpiresAt.Time); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
