package database

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// ScopeSource hands out request scopes. *DB is the production source.
type ScopeSource interface {
	Acquire(ctx context.Context) (*Scope, error)
}

// WithScope wraps an authenticated handler so it runs with a pooled
// connection in its context. The connection goes back to the pool when the
// handler returns. A request that cannot get a connection before its context
// ends receives 503.
func WithScope(source ScopeSource, logger *zap.Logger) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			scope, err := source.Acquire(r.Context())
			if err != nil {
				logger.Error("Failed to acquire database connection",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Error(err))
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error":   "database_unavailable",
					"message": "Database connection error",
				})
				return
			}
			defer scope.Close()

			next(w, r.WithContext(SetScope(r.Context(), scope)))
		}
	}
}

var _ ScopeSource = (*DB)(nil)
