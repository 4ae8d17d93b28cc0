package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(p []byte) (int, error) {
	n, err := s.ResponseWriter.Write(p)
	s.bytes += n
	return n, err
}

// Logger writes one access line per request. Health and metrics probes are
// logged at debug, 4xx at warn and 5xx at error.
func Logger(l zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			var evt *zerolog.Event
			switch {
			case rec.status >= http.StatusInternalServerError:
				evt = l.Error()
			case rec.status >= http.StatusBadRequest:
				evt = l.Warn()
			case isProbe(r.URL.Path):
				evt = l.Debug()
			default:
				evt = l.Info()
			}
			evt.Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", rec.status).
				Int("bytes", rec.bytes).
				Dur("duration", time.Since(start)).
				Str("client_ip", ClientIP(r)).
				Str("user_id", r.Header.Get("X-User-ID")).
				Str("request_id", RequestIDFromContext(r.Context())).
				Msg("http: request")
		})
	}
}

func isProbe(path string) bool {
	return path == "/metrics" || strings.HasSuffix(path, "/healthz")
}
