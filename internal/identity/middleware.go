package identity

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/castellan-api/castellan/internal/httputil"
	"github.com/castellan-api/castellan/internal/telemetry"
)

// APIKeyHeader carries a static API key credential.
const APIKeyHeader = "X-API-Key"

// Middleware returns chi middleware that resolves the request's credentials
// into an AuthContext. Requests without any usable credential are rejected
// with 401 before reaching the handler; collaborator outages surface as 503.
func Middleware(resolver *Resolver, metrics *telemetry.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := w.Header().Get("X-Request-ID")

			bearer := bearerToken(r)
			apiKey := r.Header.Get(APIKeyHeader)

			start := time.Now()
			ac, err := resolver.Resolve(r.Context(), bearer, apiKey)
			elapsed := time.Since(start)

			if err != nil {
				scheme := "none"
				if apiKey != "" {
					scheme = string(AuthTypeAPIKey)
				}
				switch {
				case errors.Is(err, ErrUpstreamUnavailable):
					if metrics != nil {
						metrics.RecordAuthDecision(scheme, "upstream_unavailable")
					}
					httputil.WriteUpstreamUnavailable(w, reqID, "Authentication backend temporarily unavailable")
				case errors.Is(err, ErrInvalidCredential):
					if metrics != nil {
						metrics.RecordAuthDecision(scheme, "invalid_credential")
					}
					httputil.WriteInvalidCredential(w, reqID, "Invalid credential")
				default:
					if metrics != nil {
						metrics.RecordAuthDecision(scheme, "unauthenticated")
					}
					httputil.WriteUnauthenticated(w, reqID,
						"Authentication required. Use: Authorization: Bearer <token> or "+APIKeyHeader+": <api-key>")
				}
				return
			}

			if metrics != nil {
				metrics.RecordAuthDecision(string(ac.AuthType), "allowed")
				metrics.ObserveResolveDuration(string(ac.AuthType), float64(elapsed.Microseconds())/1000.0)
			}

			ctx := ContextWithAuth(r.Context(), ac)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the token from an "Authorization: Bearer x" header.
// A header of another form is treated as absent; the resolver decides what
// absence means.
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	tok := strings.TrimPrefix(h, "Bearer ")
	if tok == h {
		return ""
	}
	return tok
}
