package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/llNABSll/product-api/internal/repo"
	"github.com/llNABSll/product-api/internal/stock"
)

// validationError marks a request that failed input validation (422)
type validationError struct {
	msg string
}

func (e *validationError) Error() string { return e.msg }

func invalidRequest(msg string) error { return &validationError{msg: msg} }

// writeError maps domain errors to HTTP statuses:
// not-found -> 404; duplicate sku, version conflict and insufficient
// stock -> 409; validation -> 422; anything else -> 500.
func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	var ve *validationError

	status := http.StatusInternalServerError
	message := "internal server error"

	switch {
	case errors.Is(err, repo.ErrProductNotFound):
		status = http.StatusNotFound
		message = "product not found"
	case errors.Is(err, repo.ErrDuplicateSKU):
		status = http.StatusConflict
		message = "sku already exists"
	case errors.Is(err, repo.ErrVersionConflict):
		status = http.StatusConflict
		message = "product has been modified elsewhere, reload and retry"
	case errors.Is(err, stock.ErrInsufficientStock):
		status = http.StatusConflict
		message = "insufficient stock"
	case errors.As(err, &ve):
		status = http.StatusUnprocessableEntity
		message = ve.msg
	default:
		log.Error("request failed", zap.Error(err))
	}

	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
