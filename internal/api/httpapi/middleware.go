package httpapi

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/permitdesk/folio/internal/logger"
)

// requestIDHeader carries the request identifier back to the caller.
const requestIDHeader = "X-Request-Id"

// requestID assigns every request a UUID, echoes it in the response, and
// scopes the request logger with it.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}

		w.Header().Set(requestIDHeader, id)

		ctx := logger.WithKV(r.Context(), "request_id", id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
