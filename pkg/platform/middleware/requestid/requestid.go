// Package requestid assigns every request a correlation ID.
package requestid

import (
	"net/http"

	"github.com/google/uuid"

	"braza/pkg/requestcontext"
)

// Header carries the request ID on both request and response.
const Header = "X-Request-ID"

// Middleware reuses an incoming request ID or mints one, storing it in the
// context and echoing it on the response.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(Header)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(Header, id)
		ctx := requestcontext.WithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
