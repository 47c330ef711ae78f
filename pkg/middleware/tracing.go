package middleware

import (
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/search-index-core/pkg/tracing"
)

// Tracing opens a root span per request, named by its route and keyed by
// the request id. It must run inside RequestID.
func Tracing(sampler tracing.Sampler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := tracing.StartSpan(r.Context(), r.Method+" "+r.URL.Path, GetRequestID(r.Context()), sampler.Sample())
			defer span.Finish()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
