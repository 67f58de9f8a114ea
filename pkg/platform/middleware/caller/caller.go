// Package caller extracts the authenticated caller identity the host
// runtime attaches to every invocation. The gateway in front of this
// service verifies signatures; by the time a request arrives here the
// X-Caller-Address header is trusted.
package caller

import (
	"net/http"

	dErrors "braza/pkg/domain-errors"
	"braza/pkg/domain"
	"braza/pkg/platform/httputil"
	"braza/pkg/requestcontext"
)

// Header carries the authenticated caller address.
const Header = "X-Caller-Address"

// Middleware parses the caller header into the request context. A missing
// header passes through (views need no caller); a malformed one is
// rejected before any handler runs.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(Header)
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}
		addr, err := domain.ParseAddress(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidArgument, "invalid caller address"))
			return
		}
		ctx := requestcontext.WithCaller(r.Context(), addr)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
