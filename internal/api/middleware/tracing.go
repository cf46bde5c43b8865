// SPDX-License-Identifier: MIT

package middleware

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Trace starts a server span per request. The span is renamed to the matched
// route once routing is done, so /api/v1/readings/3 and /api/v1/readings/4
// share the name "GET /api/v1/readings/{channel}".
func Trace(service string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		named := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)
			trace.SpanFromContext(r.Context()).SetName(r.Method + " " + routePattern(r))
		})
		return otelhttp.NewHandler(named, service,
			otelhttp.WithTracerProvider(otel.GetTracerProvider()),
			otelhttp.WithFilter(shouldTrace),
			otelhttp.WithSpanNameFormatter(spanNameFormatter),
		)
	}
}

// shouldTrace keeps probe and scrape traffic out of the trace stream.
func shouldTrace(r *http.Request) bool {
	return !isProbe(r)
}

// spanNameFormatter names the span before routing; Trace replaces it with
// the route pattern afterwards.
func spanNameFormatter(_ string, r *http.Request) string {
	return r.Method + " " + r.URL.Path
}
