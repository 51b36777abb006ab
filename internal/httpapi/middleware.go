package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/llNABSll/product-api/internal/metrics"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// metricsMiddleware records request count and latency. Paths are
// normalized so ids do not explode the label cardinality.
func metricsMiddleware(m *metrics.Metrics, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		path := normalizePath(r.URL.Path)
		m.RequestCount.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
		m.RequestLatency.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) == 0 || parts[0] != "products" {
		return path
	}
	switch len(parts) {
	case 1:
		return "/products"
	case 2:
		if parts[1] == "upsert" {
			return "/products/upsert"
		}
		return "/products/{id}"
	case 3:
		if parts[1] == "sku" {
			return "/products/sku/{sku}"
		}
		return "/products/{id}/" + parts[2]
	default:
		return path
	}
}
