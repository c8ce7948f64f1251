// Package gateway holds the HTTP handlers for the core's own surface: the
// identity echo endpoint, the refresh exchange, and the admin rate-limit
// operations.
package gateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/castellan-api/castellan/internal/httputil"
	"github.com/castellan-api/castellan/internal/identity"
	"github.com/castellan-api/castellan/internal/ratelimit"
)

type Handler struct {
	resolver *identity.Resolver
	limiter  *ratelimit.Limiter
	logger   *slog.Logger
}

func NewHandler(resolver *identity.Resolver, limiter *ratelimit.Limiter, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{resolver: resolver, limiter: limiter, logger: logger}
}

// meResponse mirrors the resolved AuthContext without any credential
// material.
type meResponse struct {
	AuthType     string   `json:"auth_type"`
	IdentityID   string   `json:"identity_id"`
	IdentityKind string   `json:"identity_kind"`
	Role         string   `json:"role,omitempty"`
	OrgID        string   `json:"org_id,omitempty"`
	Scopes       []string `json:"scopes,omitempty"`
}

// Me echoes the authenticated identity.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")

	ac, ok := identity.AuthFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthenticated(w, reqID, "Authentication required")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(meResponse{
		AuthType:     string(ac.AuthType),
		IdentityID:   ac.IdentityID,
		IdentityKind: string(ac.Kind),
		Role:         string(ac.Role),
		OrgID:        ac.OrgID,
		Scopes:       ac.Scopes,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh exchanges a valid refresh token for a new access+refresh pair.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")

	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		httputil.WriteBadRequestError(w, reqID, "Body must be JSON with a refresh_token field")
		return
	}

	pair, err := h.resolver.RefreshTokens(r.Context(), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrUpstreamUnavailable):
			httputil.WriteUpstreamUnavailable(w, reqID, "Authentication backend temporarily unavailable")
		default:
			httputil.WriteInvalidCredential(w, reqID, "Invalid or expired refresh token")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	json.NewEncoder(w).Encode(pair)
}

// RateLimitStats reports a key's current window usage.
func (h *Handler) RateLimitStats(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.limiter.Stats(key))
}

// RateLimitReset clears a key's recorded requests.
func (h *Handler) RateLimitReset(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	h.limiter.Reset(key)
	h.logger.Info("rate limit reset", "key", key)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "reset", "key": key})
}

type setLimitRequest struct {
	PerMinute int `json:"per_minute"`
	PerHour   int `json:"per_hour"`
}

// RateLimitSet overrides a key's limits. A zero per_hour derives the hour
// limit as 60x the minute limit.
func (h *Handler) RateLimitSet(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	key := chi.URLParam(r, "key")

	var req setLimitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PerMinute <= 0 {
		httputil.WriteBadRequestError(w, reqID, "Body must be JSON with a positive per_minute field")
		return
	}

	h.limiter.SetLimit(key, req.PerMinute, req.PerHour)
	h.logger.Info("rate limit override set", "key", key, "per_minute", req.PerMinute, "per_hour", req.PerHour)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.limiter.Stats(key))
}
