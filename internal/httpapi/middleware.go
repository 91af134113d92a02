package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/claude/ingestd/internal/apperr"
	"github.com/claude/ingestd/internal/auth"
)

type contextKey int

const identityKey contextKey = iota

// identityFromContext returns the authenticated caller's identity,
// attached by the authenticate middleware.
func identityFromContext(ctx context.Context) (auth.Identity, bool) {
	id, ok := ctx.Value(identityKey).(auth.Identity)
	return id, ok
}

// authenticate parses the bearer header through the gate, or fails the
// request with the matching taxonomy code before any handler runs.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := s.gate.Authenticate(r.Context(), r.Header.Get("Authorization"))
		if err != nil {
			code := apperr.CodeOf(err)
			s.metrics.AuthFailure(string(code))
			writeError(w, statusForCode(code), code, err.Error())
			return
		}
		ctx := context.WithValue(r.Context(), identityKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// rateLimit enforces the per-user, per-hour request budget assigned to each
// API key, deferring the actual counting to the external ratelimit.Limiter
// collaborator.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := identityFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusInternalServerError, apperr.CodeInternalError, "no authenticated identity in request context")
			return
		}
		allowed, err := s.limiter.Allow(r.Context(), identity.UserID, identity.BudgetPerHour)
		if err != nil {
			s.log.Error("rate limiter error, failing open", "user_id", identity.UserID, "error", err)
			next.ServeHTTP(w, r)
			return
		}
		if !allowed {
			writeError(w, http.StatusTooManyRequests, apperr.CodeRateLimited, "request budget exceeded for this hour")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequestLogging logs one structured line per request using the same
// slog key/value form as this repo's other packages.
func RequestLogging(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			log.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"duration", time.Since(start).String(),
			)
		})
	}
}

// statusWriter captures the status code written so RequestLogging can
// report it.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
