package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/forgeworks/genbatch/internal/api/shared"
)

// RequesterIDHeader carries the caller's identity. Authentication happens
// upstream of this service; here the header is trusted but must parse.
const RequesterIDHeader = "X-Requester-ID"

// RequesterMiddleware extracts the requester identity from the
// X-Requester-ID header and places it in the request context. Requests
// without a parseable identity are rejected with 400 before reaching a
// handler.
func RequesterMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(RequesterIDHeader)
		if raw == "" {
			shared.RespondWithError(w, r, http.StatusBadRequest,
				"Missing "+RequesterIDHeader+" header")
			return
		}

		requesterID, err := uuid.Parse(raw)
		if err != nil || requesterID == uuid.Nil {
			shared.RespondWithError(w, r, http.StatusBadRequest,
				"Invalid "+RequesterIDHeader+" header")
			return
		}

		ctx := context.WithValue(r.Context(), shared.RequesterIDContextKey, requesterID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
