package api

import (
	"net/http"
	"strings"
	"time"

	"mayagen/internal/infra/metrics"
	"mayagen/internal/infra/redis"
)

// adminGuard provides simple Bearer token authentication for admin routes.
func (s *Server) adminGuard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" {
			s.log.Error().Msg("admin API key is not configured")
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || !strings.EqualFold(tokenParts[0], "bearer") {
			writeError(w, http.StatusUnauthorized, "malformed token")
			return
		}

		if tokenParts[1] != s.apiKey {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// throttle limits write endpoints per user with a fixed redis window.
// A nil limiter disables throttling; a redis outage fails open.
func (s *Server) throttle(route string, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s.limiter == nil || limit <= 0 {
				next.ServeHTTP(w, r)
				return
			}
			key := redis.UserRouteKey(userID(r), route)
			ok, err := s.limiter.Allow(r.Context(), key, limit, window)
			if err != nil {
				s.log.Warn().Err(err).Msg("rate limiter unavailable")
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				metrics.IncRateLimited(route)
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// userID extracts the caller identity. Full authentication is out of scope;
// callers identify themselves with a header and fall back to a shared
// anonymous bucket.
func userID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get("X-User-ID")); id != "" {
		return id
	}
	return "anonymous"
}
