package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/capmd/capmd/internal/logger"
	"github.com/capmd/capmd/pkg/capability"
	"github.com/capmd/capmd/pkg/clientip"
	"github.com/capmd/capmd/pkg/models"
	"github.com/capmd/capmd/pkg/pathutil"
)

type contextKey string

const (
	sessionContextKey contextKey = "session"
	apiKeyContextKey  contextKey = "api_key"
)

// clientContext resolves the client IP under the configured proxy-trust
// policy and seeds the per-request log context.
func clientContext(policy clientip.Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientip.Resolve(r.Header, r.RemoteAddr, policy)
			lc := logger.NewLogContext(ip)
			lc.RequestID = middleware.GetReqID(r.Context())
			next.ServeHTTP(w, r.WithContext(logger.WithContext(r.Context(), lc)))
		})
	}
}

// requestLogger logs one line per request. Health probes log at DEBUG so
// orchestrator polling does not drown the log.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		args := []any{
			logger.Method(r.Method),
			logger.Path(r.URL.Path),
			logger.Status(ww.Status()),
			logger.DurationMs(float64(time.Since(start).Microseconds()) / 1000),
		}
		if isHealthPath(r.URL.Path) {
			logger.DebugCtx(r.Context(), "request", args...)
			return
		}
		logger.InfoCtx(r.Context(), "request", args...)
	})
}

func isHealthPath(path string) bool {
	return path == "/health" || strings.HasPrefix(path, "/health/")
}

// measure records request count and latency per chi route pattern.
func (s *handlers) measure(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		s.metrics.requestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(ww.Status())).Inc()
		s.metrics.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// rawPathGuard rejects requests whose undecoded path carries traversal or
// control sequences. Decoding happens exactly once, in the router; this
// check sees the raw form so double-encoding cannot slip through.
func rawPathGuard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if pathutil.RawTraversal(r.URL.EscapedPath()) {
			writeCodeError(w, http.StatusBadRequest, models.CodeInvalidPath, "invalid path")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ownerAuth requires a valid owner access token in the Authorization header.
func (s *handlers) ownerAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearerToken(r)
		if token == "" {
			writeCodeError(w, http.StatusUnauthorized, models.CodeUnauthorized, "missing bearer token")
			return
		}
		claims, err := s.svc.JWT.ValidateAccessToken(token)
		if err != nil {
			writeCodeError(w, http.StatusUnauthorized, models.CodeUnauthorized, "invalid or expired token")
			return
		}
		ctx := context.WithValue(r.Context(), sessionContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// apiKeyAuth requires an sk_ API key granting the given scope.
func (s *handlers) apiKeyAuth(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearerToken(r)
			if token == "" {
				writeCodeError(w, http.StatusUnauthorized, models.CodeUnauthorized, "missing API key")
				return
			}
			key, err := s.svc.Resolver.ResolveAPIKey(r.Context(), token, scope)
			if err != nil {
				writeCodeError(w, http.StatusUnauthorized, models.CodeUnauthorized, "invalid API key")
				return
			}
			ctx := context.WithValue(r.Context(), apiKeyContextKey, key)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractBearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}

func sessionFromContext(ctx context.Context) *SessionClaims {
	claims, _ := ctx.Value(sessionContextKey).(*SessionClaims)
	return claims
}

func apiKeyFromContext(ctx context.Context) *models.APIKey {
	key, _ := ctx.Value(apiKeyContextKey).(*models.APIKey)
	return key
}

// annotate enriches the request log context once a capability resolved.
func annotate(r *http.Request, auth *capability.Authorization) {
	if lc := logger.FromContext(r.Context()); lc != nil {
		lc.Workspace = auth.WorkspaceID
		lc.KeyPrefix = auth.Prefix
	}
}
