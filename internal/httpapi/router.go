package httpapi

import (
	"net/http"

	"github.com/llNABSll/product-api/internal/metrics"
)

// NewRouter wires the REST routes, the prometheus endpoint and the metrics
// middleware into one handler
func NewRouter(api *API, m *metrics.Metrics, gatherer http.Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /products", api.handleCreate)
	mux.HandleFunc("GET /products", api.handleList)
	mux.HandleFunc("PUT /products/upsert", api.handleUpsert)
	mux.HandleFunc("GET /products/sku/{sku}", api.handleGetBySKU)
	mux.HandleFunc("GET /products/{id}", api.handleGet)
	mux.HandleFunc("PUT /products/{id}", api.handleUpdate)
	mux.HandleFunc("DELETE /products/{id}", api.handleDelete)
	mux.HandleFunc("PATCH /products/{id}/stock", api.handleAdjustStock)
	mux.HandleFunc("PATCH /products/{id}/active", api.handleSetActive)

	mux.Handle("GET /metrics", gatherer)

	return metricsMiddleware(m, mux)
}
