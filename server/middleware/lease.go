package middleware

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ebalan/recordlock/auth"
	"github.com/ebalan/recordlock/service"
)

// RequireLease guards record-mutation endpoints. The client guard is
// advisory and fail-open, so the write path re-validates lock ownership
// against the lease store before the wrapped handler may commit anything.
// extract pulls the record's identifying filter fields out of the request.
func RequireLease(svc *service.Service, scope string, extract func(*http.Request) map[string]any, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := GetActor(r.Context())
			if !ok {
				sendErrorResponse(w, logger, auth.ErrAuthenticationFailed, http.StatusUnauthorized)
				return
			}

			err := svc.CheckOwnership(r.Context(), scope, extract(r), actor.HolderValue)
			if err != nil {
				if errors.Is(err, service.ErrLockHeld) {
					logger.Info("Mutation rejected: record locked",
						zap.String("scope", scope),
						zap.String("actor_id", actor.ID))
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusLocked)
					if _, err := w.Write([]byte(`{"code":"LOCK_HELD","message":"record is locked by another session"}`)); err != nil {
						logger.Error("Failed to write lock error response", zap.Error(err))
					}
					return
				}
				// Store failures on the write path are not fail-open; the
				// mutation cannot proceed on unknown lock state.
				logger.Error("Ownership check failed", zap.Error(err))
				sendErrorResponse(w, logger, err, http.StatusInternalServerError)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
