package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/artivo/restyle-api/internal/api/shared"
)

// OwnerIDHeader carries the caller's account identity, injected by the
// authenticating proxy in front of this service. Token validation itself
// is out of scope here.
const OwnerIDHeader = "X-Owner-ID"

// OwnerMiddleware extracts the owner ID from the request header and places
// it in the request context. Requests without a valid owner ID are
// rejected before reaching the handlers.
func OwnerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ownerID, err := uuid.Parse(r.Header.Get(OwnerIDHeader))
		if err != nil || ownerID == uuid.Nil {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Missing or invalid owner identity")
			return
		}

		ctx := context.WithValue(r.Context(), shared.OwnerIDContextKey, ownerID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
