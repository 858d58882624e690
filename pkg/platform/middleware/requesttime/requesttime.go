// Package requesttime pins one "now" per request so that every timestamp a
// transition writes (record, history event, audit line) agrees.
package requesttime

import (
	"net/http"
	"time"

	"loankyc/pkg/requestcontext"
)

// Middleware pins the wall clock, in UTC.
func Middleware(next http.Handler) http.Handler {
	return WithClock(time.Now)(next)
}

// WithClock pins whatever now returns at the start of the request.
func WithClock(now func() time.Time) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := requestcontext.WithTime(r.Context(), now().UTC())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
