// Package oauth exposes the OAuth2 client-credentials token endpoint and
// token introspection. Token issuance is gated by the client's approved
// grants: a client with no approved subscriptions gets access_denied, and a
// requested scope outside the granted set gets invalid_scope with no token
// issued.
package oauth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/castellan-api/castellan/internal/audit"
	"github.com/castellan-api/castellan/internal/credential"
	"github.com/castellan-api/castellan/internal/httputil"
	"github.com/castellan-api/castellan/internal/identity"
	"github.com/castellan-api/castellan/internal/ratelimit"
	"github.com/castellan-api/castellan/internal/telemetry"
	"github.com/castellan-api/castellan/internal/token"
)

// ClientRecord is the stored view of an OAuth client: the public client_id
// presented on the wire and the keyed hash of its secret.
type ClientRecord struct {
	ID         string // internal app client id
	ClientID   string // public OAuth client_id
	SecretHash string
	OrgID      string
	IsActive   bool
}

// ClientStore looks up OAuth clients by their public client_id. A nil
// record with a nil error means "not found".
type ClientStore interface {
	LookupOAuthClient(ctx context.Context, clientID string) (*ClientRecord, error)
}

// TokenResponse is the success body of the token endpoint.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope,omitempty"`
}

// IntrospectionResponse follows RFC 7662: inactive tokens get
// {"active": false} with a 200, never an error status.
type IntrospectionResponse struct {
	Active    bool   `json:"active"`
	ClientID  string `json:"client_id,omitempty"`
	Scope     string `json:"scope,omitempty"`
	TokenType string `json:"token_type,omitempty"`
	Exp       int64  `json:"exp,omitempty"`
	Iat       int64  `json:"iat,omitempty"`
}

// Handler serves /oauth/token and /oauth/introspect.
type Handler struct {
	clients ClientStore
	scopes  identity.ScopeSource
	tokens  *token.Service
	codec   *credential.Codec
	limiter *ratelimit.Limiter
	metrics *telemetry.Metrics
	emitter audit.Emitter
	logger  *slog.Logger
}

func NewHandler(clients ClientStore, scopes identity.ScopeSource, tokens *token.Service, codec *credential.Codec, limiter *ratelimit.Limiter, metrics *telemetry.Metrics, emitter audit.Emitter, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		clients: clients,
		scopes:  scopes,
		tokens:  tokens,
		codec:   codec,
		limiter: limiter,
		metrics: metrics,
		emitter: emitter,
		logger:  logger,
	}
}

// Token implements the client_credentials grant.
func (h *Handler) Token(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")

	if err := r.ParseForm(); err != nil {
		httputil.WriteOAuthError(w, http.StatusBadRequest, "invalid_request", "Malformed form body")
		return
	}

	grantType := r.PostFormValue("grant_type")
	clientID := r.PostFormValue("client_id")
	clientSecret := r.PostFormValue("client_secret")
	scopeParam := r.PostFormValue("scope")

	// Token requests are rate limited per client_id before any credential
	// work happens.
	if h.limiter != nil {
		result := h.limiter.Check("oauth:token:" + clientID)
		ratelimit.SetHeaders(w, result)
		if !result.Allowed {
			h.record("rate_limited")
			h.deny(r, reqID, clientID, "rate_limited")
			httputil.WriteRateLimitError(w, reqID, "Too many token requests")
			return
		}
	}

	if grantType != "client_credentials" {
		h.record("unsupported_grant_type")
		h.deny(r, reqID, clientID, "unsupported_grant_type")
		httputil.WriteOAuthError(w, http.StatusBadRequest, "unsupported_grant_type",
			"Only 'client_credentials' grant type is supported")
		return
	}

	if clientID == "" || clientSecret == "" {
		h.record("invalid_client")
		h.deny(r, reqID, clientID, "missing_credentials")
		httputil.WriteOAuthError(w, http.StatusUnauthorized, "invalid_client", "Client credentials required")
		return
	}

	client, err := h.clients.LookupOAuthClient(r.Context(), clientID)
	if err != nil {
		h.logger.Error("oauth client lookup failed", "error", err, "client_id", clientID)
		httputil.WriteUpstreamUnavailable(w, reqID, "Authentication backend temporarily unavailable")
		return
	}
	if client == nil {
		h.record("invalid_client")
		h.deny(r, reqID, clientID, "client_not_found")
		httputil.WriteOAuthError(w, http.StatusUnauthorized, "invalid_client", "Client not found")
		return
	}
	if !client.IsActive {
		h.record("invalid_client")
		h.deny(r, reqID, clientID, "client_inactive")
		httputil.WriteOAuthError(w, http.StatusUnauthorized, "invalid_client", "Client is inactive")
		return
	}

	if !h.codec.Verify(clientSecret, client.SecretHash) {
		h.record("invalid_client")
		h.deny(r, reqID, clientID, "invalid_secret")
		httputil.WriteOAuthError(w, http.StatusUnauthorized, "invalid_client", "Invalid client credentials")
		return
	}

	granted, err := h.scopes.GrantedScopes(r.Context(), client.ID)
	if err != nil {
		h.logger.Error("granted scopes lookup failed", "error", err, "client_id", clientID)
		httputil.WriteUpstreamUnavailable(w, reqID, "Authentication backend temporarily unavailable")
		return
	}
	if len(granted) == 0 {
		h.record("access_denied")
		h.deny(r, reqID, clientID, "no_approved_grants")
		httputil.WriteOAuthError(w, http.StatusForbidden, "access_denied",
			"No approved subscriptions. Request API access first.")
		return
	}

	tokenScopes := granted
	if scopeParam != "" {
		requested := strings.Fields(scopeParam)
		if invalid := subtract(requested, granted); len(invalid) > 0 {
			h.record("invalid_scope")
			h.deny(r, reqID, clientID, "scope_not_granted: "+strings.Join(invalid, " "))
			httputil.WriteOAuthError(w, http.StatusBadRequest, "invalid_scope",
				"Requested scopes not granted: "+strings.Join(invalid, " "))
			return
		}
		tokenScopes = requested
	}

	accessToken, err := h.tokens.IssueOAuth(client.ClientID, tokenScopes)
	if err != nil {
		h.logger.Error("oauth token issuance failed", "error", err, "client_id", clientID)
		httputil.WriteInternalError(w, reqID, "Failed to issue token")
		return
	}

	h.record("issued")
	if h.metrics != nil {
		h.metrics.RecordTokenIssued(string(token.TypeOAuthClient))
	}
	if h.emitter != nil {
		h.emitter.Emit(r.Context(), audit.Decision{
			Action:    "oauth.token",
			ActorID:   clientID,
			ActorType: string(identity.KindAppClient),
			Resource:  "oauth",
			Decision:  "allowed",
			RequestID: reqID,
			At:        time.Now().UTC(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	json.NewEncoder(w).Encode(TokenResponse{
		AccessToken: accessToken,
		TokenType:   "bearer",
		ExpiresIn:   int(h.tokens.OAuthTTL().Seconds()),
		Scope:       strings.Join(tokenScopes, " "),
	})
}

// Introspect reports whether a token is active and, when it is, its claims.
// An undecodable or expired token is simply inactive; this endpoint never
// returns an error status for a bad token.
func (h *Handler) Introspect(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		httputil.WriteOAuthError(w, http.StatusBadRequest, "invalid_request", "Malformed form body")
		return
	}

	w.Header().Set("Content-Type", "application/json")

	claims, err := h.tokens.Decode(r.PostFormValue("token"))
	if err != nil {
		json.NewEncoder(w).Encode(IntrospectionResponse{Active: false})
		return
	}

	resp := IntrospectionResponse{
		Active:    true,
		ClientID:  claims.Subject,
		Scope:     strings.Join(claims.Scopes, " "),
		TokenType: "bearer",
	}
	if claims.ExpiresAt != nil {
		resp.Exp = claims.ExpiresAt.Unix()
	}
	if claims.IssuedAt != nil {
		resp.Iat = claims.IssuedAt.Unix()
	}
	json.NewEncoder(w).Encode(resp)
}

func (h *Handler) record(outcome string) {
	if h.metrics != nil {
		h.metrics.RecordOAuthTokenRequest(outcome)
	}
}

func (h *Handler) deny(r *http.Request, reqID, clientID, reason string) {
	if h.emitter == nil {
		return
	}
	h.emitter.Emit(r.Context(), audit.Decision{
		Action:    "oauth.token",
		ActorID:   clientID,
		ActorType: string(identity.KindAppClient),
		Resource:  "oauth",
		Decision:  "denied",
		Reason:    reason,
		RequestID: reqID,
		At:        time.Now().UTC(),
	})
}

// subtract returns the members of a that are not in b.
func subtract(a, b []string) []string {
	set := make(map[string]struct{}, len(b))
	for _, s := range b {
		set[s] = struct{}{}
	}
	var out []string
	for _, s := range a {
		if _, ok := set[s]; !ok {
			out = append(out, s)
		}
	}
	return out
}
