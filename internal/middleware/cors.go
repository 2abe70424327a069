// Package middleware provides HTTP middleware for the gateway.
package middleware

import (
	"net/http"
	"strings"

	"github.com/chassisworks/chassis/internal/domain"
)

// CORSMiddleware handles Cross-Origin Resource Sharing for the gateway
// endpoints. The allow-header list always carries the schema addressing
// headers and the token headers, otherwise browsers strip them from
// cross-origin calls.
type CORSMiddleware struct {
	allowedOrigins []string
	allowAll       bool
	allowHeaders   string
	exposeHeaders  string
}

// NewCORSMiddleware creates a new CORS middleware.
func NewCORSMiddleware(allowedOrigins []string) *CORSMiddleware {
	allowAll := len(allowedOrigins) == 0
	for _, origin := range allowedOrigins {
		if origin == "*" {
			allowAll = true
			break
		}
	}

	headers := append([]string{"Content-Type", "Authorization"}, domain.SchemaHeaders()...)
	headers = append(headers, domain.TokenHeaders()...)

	return &CORSMiddleware{
		allowedOrigins: allowedOrigins,
		allowAll:       allowAll,
		allowHeaders:   strings.Join(headers, ", "),
		exposeHeaders:  strings.Join(domain.TokenHeaders(), ", "),
	}
}

// Handler returns the CORS middleware handler. Preflight requests are
// answered here and never reach the dispatcher.
func (m *CORSMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		if m.allowAll || m.isOriginAllowed(origin) {
			allowed := origin
			if m.allowAll && allowed == "" {
				allowed = "*"
			}
			w.Header().Set("Access-Control-Allow-Origin", allowed)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, HEAD, OPTIONS, TRACE")
			w.Header().Set("Access-Control-Allow-Headers", m.allowHeaders)
			w.Header().Set("Access-Control-Expose-Headers", m.exposeHeaders)
			w.Header().Set("Access-Control-Max-Age", "3600")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// isOriginAllowed checks if an origin is in the allowed list.
func (m *CORSMiddleware) isOriginAllowed(origin string) bool {
	for _, allowed := range m.allowedOrigins {
		if allowed == origin || strings.HasSuffix(origin, allowed) {
			return true
		}
	}
	return false
}
