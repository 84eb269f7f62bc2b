package easysave

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/easysave/easysave/pkg/models"
)

type contextKey string

const requesterKey contextKey = "requester"

// Endpoints reachable without credentials. Everything else under /api
// goes through authMiddleware.
var authExclusions = map[string]bool{
	"/api/create_user": true,
	"/api/login":       true,
	"/api/health":      true,
}

// authMiddleware verifies the caller's (username, access key) pair before
// any protected handler runs. Unknown username and wrong key collapse to
// the same response so a caller cannot probe which one failed. The
// resolved user is attached to the request context; handlers derive the
// namespace root from it and never from request input.
func (a *App) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if authExclusions[r.URL.Path] || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		username := r.Header.Get("RequesterUsername")
		accessKey := r.Header.Get("RequesterAccessKey")
		if username == "" || accessKey == "" {
			respondError(w, http.StatusUnauthorized, "Authorization credentials required.")
			return
		}

		user, err := a.store.VerifyCredentials(r.Context(), username, accessKey)
		if err != nil {
			a.log.Error().Err(err).Msg("credential verification failed")
			respondError(w, http.StatusInternalServerError, "Internal server error.")
			return
		}
		if user == nil {
			respondError(w, http.StatusUnauthorized, "Authorization credentials invalid.")
			return
		}

		ctx := context.WithValue(r.Context(), requesterKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requester returns the authenticated user attached by authMiddleware.
func requester(r *http.Request) *models.User {
	user, _ := r.Context().Value(requesterKey).(*models.User)
	return user
}

func (a *App) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, RequesterUsername, RequesterAccessKey")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

func (a *App) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The events endpoint hijacks the connection for the WebSocket
		// upgrade; wrapping its ResponseWriter would break the upgrade.
		if r.URL.Path == "/api/events" {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		requestID := uuid.NewString()
		w.Header().Set("X-Request-Id", requestID)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		a.log.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
