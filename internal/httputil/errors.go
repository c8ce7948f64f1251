package httputil

import (
	"encoding/json"
	"net/http"
)

// APIError is the JSON error envelope returned by every gateway endpoint
// except the OAuth2 token endpoint, which uses the RFC 6749 vocabulary.
type APIError struct {
	Error APIErrorBody `json:"error"`
}

type APIErrorBody struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

func WriteError(w http.ResponseWriter, requestID string, statusCode int, errType, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(APIError{
		Error: APIErrorBody{
			Message:   message,
			Type:      errType,
			Code:      code,
			RequestID: requestID,
		},
	})
}

// WriteUnauthenticated reports that no usable credential was presented.
func WriteUnauthenticated(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusUnauthorized, "authentication_error", "authentication_required", message)
}

// WriteInvalidCredential reports a credential that was presented but is
// malformed, expired, revoked or inactive. Distinct from absence: a bad
// credential is never silently treated as no credential.
func WriteInvalidCredential(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusUnauthorized, "authentication_error", "invalid_credential", message)
}

// WriteForbidden reports an authenticated identity with insufficient role
// or scopes.
func WriteForbidden(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusForbidden, "permission_error", "forbidden", message)
}

func WriteRateLimitError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusTooManyRequests, "rate_limit_error", "rate_limit_exceeded", message)
}

// WriteUpstreamUnavailable reports a collaborator failure (credential
// store, scope source). Never mapped to 401: a store outage does not make
// the caller unauthenticated.
func WriteUpstreamUnavailable(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusServiceUnavailable, "server_error", "upstream_unavailable", message)
}

func WriteBadRequestError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusBadRequest, "invalid_request_error", "invalid_request", message)
}

func WriteInternalError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusInternalServerError, "server_error", "internal_error", message)
}

// OAuthError is the RFC 6749 error body used by the token endpoint.
type OAuthError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// WriteOAuthError writes a standard OAuth2 error response
// (unsupported_grant_type, invalid_client, access_denied, invalid_scope).
func WriteOAuthError(w http.ResponseWriter, statusCode int, errCode, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(OAuthError{
		Error:            errCode,
		ErrorDescription: description,
	})
}
