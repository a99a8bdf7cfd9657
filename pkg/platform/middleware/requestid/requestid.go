// Package requestid assigns every request an identifier for log correlation.
package requestid

import (
	"net/http"

	"github.com/google/uuid"

	"nomina/pkg/requestcontext"
)

// Header is the request/response header carrying the request ID.
const Header = "X-Request-ID"

// Middleware reuses an inbound X-Request-ID when present, otherwise mints a
// new one, stores it in the context, and echoes it on the response.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(Header)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		w.Header().Set(Header, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
