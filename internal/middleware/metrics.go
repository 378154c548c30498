package middleware

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"contactlink/internal/metrics"
)

// Metrics counts requests by route template and status code. Requests that
// matched no route are counted under "unmatched".
func Metrics(m *metrics.Metrics) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := wrap(w)
			next.ServeHTTP(sw, r)

			route := "unmatched"
			if cur := mux.CurrentRoute(r); cur != nil {
				if tpl, err := cur.GetPathTemplate(); err == nil {
					route = tpl
				}
			}
			m.IncrementHTTPRequest(route, strconv.Itoa(sw.status))
		})
	}
}
