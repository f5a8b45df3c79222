package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	platformlogging "github.com/zenGate-Global/palmyra-contracts/platform/go/logging"
	"github.com/zenGate-Global/palmyra-contracts/platform/go/requesttrace"
)

// RequestTrace populates the context with request-scoped AuditInfo so services can stamp their logs.
// It should run after chi's RequestID and the request logger.
func RequestTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.GetReqID(r.Context())
		audit := requesttrace.Anonymous(requesttrace.SourceHTTP, requestID)

		ctx := requesttrace.IntoContext(r.Context(), audit)
		if logger := platformlogging.FromRequest(r, nil); logger != nil {
			ctx = platformlogging.WithLogger(ctx, logger.With(audit.Fields()...))
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
