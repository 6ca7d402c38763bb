package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"vouchsafe/pkg/requestcontext"
)

// RequestID assigns every request an id (honoring X-Request-ID from trusted
// proxies) and pins the request time so all downstream timestamps within one
// call agree.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		ctx = requestcontext.WithTime(ctx, time.Now())

		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
