// SPDX-License-Identifier: MIT

package middleware

import "net/http"

// isProbe reports whether r targets a liveness, readiness or scrape
// endpoint. Probes are neither traced nor rate limited.
func isProbe(r *http.Request) bool {
	switch r.URL.Path {
	case "/healthz", "/readyz", "/metrics":
		return true
	}
	return false
}
