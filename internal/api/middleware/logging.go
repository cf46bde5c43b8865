// SPDX-License-Identifier: MIT

package middleware

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/jbqubit/ndsp-highfinesse/internal/log"
)

// AccessLog writes one structured line per request. Server errors log at
// warn level, the rest at info.
func AccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(sw, r)

		logger := log.WithComponentFromContext(r.Context(), "http")
		var ev *zerolog.Event
		if sw.statusCode >= http.StatusInternalServerError {
			ev = logger.Warn()
		} else {
			ev = logger.Info()
		}
		ev.Str(log.FieldEvent, "http.request").
			Str("http_method", r.Method).
			Str(log.FieldPath, r.URL.Path).
			Int(log.FieldStatus, sw.statusCode).
			Int("bytes", sw.bytesWritten).
			Str(log.FieldRemoteAddr, r.RemoteAddr).
			Dur("duration", time.Since(start)).
			Msg("request served")
	})
}
