package http

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"evrental-backend/internal/config"
	"evrental-backend/internal/logger"
	"evrental-backend/internal/security"
)

type contextKey string

const claimsKey contextKey = "claims"

// AuthMiddleware enforces the security level configured for each route.
type AuthMiddleware struct {
	tokenManager security.TokenManager
}

func NewAuthMiddleware(tm security.TokenManager) *AuthMiddleware {
	return &AuthMiddleware{tokenManager: tm}
}

func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tmpl := ""
		if route := mux.CurrentRoute(r); route != nil {
			tmpl, _ = route.GetPathTemplate()
		}
		level := config.RequiredSecurityLevel(r.Method, tmpl)

		// Public endpoint - skip auth
		if level == config.SecurityPublic {
			next.ServeHTTP(w, r)
			return
		}

		token := extractToken(r)
		if token == "" {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "authorization token is not provided", Code: "UNAUTHENTICATED"})
			return
		}
		claims, err := m.tokenManager.ValidateToken(token)
		if err != nil {
			writeError(w, err)
			return
		}
		if level == config.SecurityStaff && !claims.HasRole(security.RoleStaff) {
			writeJSON(w, http.StatusForbidden, errorResponse{Error: "staff role required", Code: "FORBIDDEN"})
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
	})
}

// extractToken reads the bearer token. Browsers cannot set headers on a
// websocket handshake, so the access_token query parameter is accepted too.
func extractToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		// Remove Bearer prefix if present
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return r.URL.Query().Get("access_token")
}

func claimsFromContext(ctx context.Context) *security.CustomerClaims {
	claims, _ := ctx.Value(claimsKey).(*security.CustomerClaims)
	return claims
}

// customerScope returns the customer id a request is restricted to. Staff
// see every reservation.
func customerScope(r *http.Request) string {
	claims := claimsFromContext(r.Context())
	if claims == nil || claims.HasRole(security.RoleStaff) {
		return ""
	}
	return claims.CustomerID
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades pass through the recorder.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	s.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }

// LoggingMiddleware logs one line per request.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info("HTTP request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
	})
}
