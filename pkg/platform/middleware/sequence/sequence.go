// Package sequence pins the ledger sequence for the whole request, so
// every vesting and daily-window computation inside one invocation sees
// the same clock value.
package sequence

import (
	"net/http"
	"time"

	"braza/pkg/domain"
	"braza/pkg/requestcontext"
)

// Middleware derives the current ledger sequence from wall time at request
// start and stores it in the context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seq := domain.SequenceAt(time.Now())
		ctx := requestcontext.WithSequence(r.Context(), seq)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
