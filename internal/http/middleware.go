package http

import (
	"net/http"
	"time"

	"github.com/chainguard-dev/clog"
	m "github.com/go-chi/chi/v5/middleware"
)

// RequestLogger puts a request-scoped clog logger into the context and logs
// one line per completed request.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := clog.FromContext(r.Context()).
			With("request_id", m.GetReqID(r.Context())).
			With("method", r.Method).
			With("path", r.URL.Path)
		ctx := clog.WithLogger(r.Context(), log)

		ww := m.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r.WithContext(ctx))

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		log = log.With("status", status).With("bytes", ww.BytesWritten()).With("duration", time.Since(start))
		if status >= http.StatusInternalServerError {
			log.Warnf("request failed")
			return
		}
		log.Debugf("request served")
	})
}
