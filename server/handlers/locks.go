package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/ebalan/recordlock/auth"
	"github.com/ebalan/recordlock/server/middleware"
	"github.com/ebalan/recordlock/service"
)

const maxRequestBody = 64 * 1024

// V1LockHandler handles POST /v1/locks: one claim, release, or status
// operation per call. The access value defaults to the authenticated
// actor's role-derived holder value when the request omits it.
func V1LockHandler(svc *service.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := middleware.GetActor(r.Context())
		if !ok {
			SendErrorResponse(w, logger, auth.ErrAuthenticationFailed, http.StatusUnauthorized)
			return
		}

		var req service.Request
		decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
		if err := decoder.Decode(&req); err != nil {
			SendErrorResponse(w, logger, &customError{message: "invalid request body"}, http.StatusBadRequest)
			return
		}

		if req.Access == 0 {
			req.Access = actor.HolderValue
		}

		resp, err := svc.Handle(r.Context(), req)
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}

		logger.Debug("Lock operation handled",
			zap.String("action", req.Action),
			zap.Strings("scopes", req.Scopes),
			zap.String("actor_id", actor.ID),
			zap.Int("access", req.Access),
			zap.Bool("success", resp.Success))

		SendJSONResponse(w, resp)
	}
}
