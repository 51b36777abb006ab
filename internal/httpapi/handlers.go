package httpapi

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/llNABSll/product-api/internal/db"
	"github.com/llNABSll/product-api/internal/repo"
	"github.com/llNABSll/product-api/internal/service"
)

// API is the thin REST facade over ProductService. Routing, validation and
// status mapping only; business rules live in the service layer.
type API struct {
	svc *service.ProductService
	log *zap.Logger
}

// NewAPI creates the REST handlers
func NewAPI(svc *service.ProductService, log *zap.Logger) *API {
	return &API{svc: svc, log: log}
}

// productRequest is the write payload for create/update/upsert. Pointer
// fields distinguish omitted from zero-valued on partial updates.
type productRequest struct {
	SKU         *string  `json:"sku"`
	Name        *string  `json:"name"`
	Description *string  `json:"description"`
	Price       *float64 `json:"price"`
	Quantity    *int     `json:"quantity"`
	Unit        *string  `json:"unit"`
	Brand       *string  `json:"brand"`
	Category    *string  `json:"category"`
	VATRate     *float64 `json:"vat_rate"`
	WeightGram  *int     `json:"weight_gram"`
	VolumeML    *int     `json:"volume_ml"`
	IsActive    *bool    `json:"is_active"`
}

func (r *productRequest) validate(requireIdentity bool) error {
	if requireIdentity {
		if r.SKU == nil || *r.SKU == "" || len(*r.SKU) > 64 {
			return invalidRequest("sku is required and must be 1-64 characters")
		}
		if r.Name == nil || *r.Name == "" || len(*r.Name) > 255 {
			return invalidRequest("name is required and must be 1-255 characters")
		}
	}
	if r.SKU != nil && (*r.SKU == "" || len(*r.SKU) > 64) {
		return invalidRequest("sku must be 1-64 characters")
	}
	if r.Name != nil && (*r.Name == "" || len(*r.Name) > 255) {
		return invalidRequest("name must be 1-255 characters")
	}
	if r.Price != nil && (!isFinite(*r.Price) || *r.Price < 0) {
		return invalidRequest("price must be a finite number >= 0")
	}
	if r.Quantity != nil && *r.Quantity < 0 {
		return invalidRequest("quantity must be >= 0")
	}
	if r.VATRate != nil && (!isFinite(*r.VATRate) || *r.VATRate < 0 || *r.VATRate > 1) {
		return invalidRequest("vat_rate must be a finite number between 0 and 1")
	}
	return nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func (r *productRequest) toModel() *db.Product {
	p := &db.Product{
		SKU:      strVal(r.SKU),
		Name:     strVal(r.Name),
		IsActive: true,
	}
	if r.Description != nil {
		p.Description = *r.Description
	}
	if r.Price != nil {
		p.Price = *r.Price
	}
	if r.Quantity != nil {
		p.Quantity = *r.Quantity
	}
	if r.Unit != nil {
		p.Unit = *r.Unit
	}
	if r.Brand != nil {
		p.Brand = *r.Brand
	}
	if r.Category != nil {
		p.Category = *r.Category
	}
	if r.VATRate != nil {
		p.VATRate = *r.VATRate
	}
	p.WeightGram = r.WeightGram
	p.VolumeML = r.VolumeML
	if r.IsActive != nil {
		p.IsActive = *r.IsActive
	}
	return p
}

func (r *productRequest) toPatch() repo.ProductPatch {
	return repo.ProductPatch{
		SKU:         r.SKU,
		Name:        r.Name,
		Description: r.Description,
		Price:       r.Price,
		Quantity:    r.Quantity,
		Unit:        r.Unit,
		Brand:       r.Brand,
		Category:    r.Category,
		VATRate:     r.VATRate,
		WeightGram:  r.WeightGram,
		VolumeML:    r.VolumeML,
		IsActive:    r.IsActive,
	}
}

func strVal(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func decodeRequest(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return invalidRequest("invalid JSON body")
	}
	return nil
}

func pathID(r *http.Request) (uint, error) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, invalidRequest("id must be a positive integer")
	}
	return uint(id), nil
}

// handleCreate creates a product (201)
func (a *API) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, a.log, err)
		return
	}
	if err := req.validate(true); err != nil {
		writeError(w, a.log, err)
		return
	}

	product, err := a.svc.Create(r.Context(), req.toModel())
	if err != nil {
		writeError(w, a.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, product)
}

// handleList returns the filtered, paginated product list
func (a *API) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := repo.ListFilter{
		Query:      q.Get("q"),
		Category:   q.Get("category"),
		Brand:      q.Get("brand"),
		OnlyActive: true,
		SortBy:     q.Get("sort_by"),
		SortDir:    q.Get("sort_dir"),
		Limit:      10,
	}
	if v := q.Get("only_active"); v != "" {
		onlyActive, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, a.log, invalidRequest("only_active must be a boolean"))
			return
		}
		filter.OnlyActive = onlyActive
	}
	if v := q.Get("min_price"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			writeError(w, a.log, invalidRequest("min_price must be a number >= 0"))
			return
		}
		filter.MinPrice = &f
	}
	if v := q.Get("max_price"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			writeError(w, a.log, invalidRequest("max_price must be a number >= 0"))
			return
		}
		filter.MaxPrice = &f
	}
	if v := q.Get("skip"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, a.log, invalidRequest("skip must be an integer >= 0"))
			return
		}
		filter.Offset = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			writeError(w, a.log, invalidRequest("limit must be between 1 and 100"))
			return
		}
		filter.Limit = n
	}

	products, total, err := a.svc.List(r.Context(), filter)
	if err != nil {
		writeError(w, a.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": products,
		"total": total,
	})
}

// handleGet returns a product by id
func (a *API) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, a.log, err)
		return
	}

	product, err := a.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, a.log, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

// handleGetBySKU returns a product by exact SKU
func (a *API) handleGetBySKU(w http.ResponseWriter, r *http.Request) {
	product, err := a.svc.GetBySKU(r.Context(), r.PathValue("sku"))
	if err != nil {
		writeError(w, a.log, err)
		return
	}
	if product == nil {
		writeError(w, a.log, repo.ErrProductNotFound)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

// handleUpdate applies a partial update; the If-Match header carries the
// expected version for optimistic locking
func (a *API) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, a.log, err)
		return
	}

	var req productRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, a.log, err)
		return
	}
	if err := req.validate(false); err != nil {
		writeError(w, a.log, err)
		return
	}

	var expectedVersion *int
	if ifMatch := r.Header.Get("If-Match"); ifMatch != "" {
		v, err := strconv.Atoi(ifMatch)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "If-Match must be an integer version"})
			return
		}
		expectedVersion = &v
	}

	product, err := a.svc.Update(r.Context(), id, req.toPatch(), expectedVersion)
	if err != nil {
		writeError(w, a.log, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

// handleDelete removes a product and returns the deleted row
func (a *API) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, a.log, err)
		return
	}

	product, err := a.svc.Delete(r.Context(), id)
	if err != nil {
		writeError(w, a.log, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

// handleAdjustStock applies a signed stock delta (?delta=-3 or +5)
func (a *API) handleAdjustStock(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, a.log, err)
		return
	}

	rawDelta := r.URL.Query().Get("delta")
	delta, err := strconv.Atoi(rawDelta)
	if err != nil {
		writeError(w, a.log, invalidRequest("delta must be a signed integer"))
		return
	}

	product, err := a.svc.AdjustStock(r.Context(), id, delta)
	if err != nil {
		writeError(w, a.log, err)
		return
	}

	a.log.Info("stock adjusted via API",
		zap.Uint("id", id),
		zap.Int("delta", delta),
		zap.Int("quantity", product.Quantity),
	)
	writeJSON(w, http.StatusOK, product)
}

// handleSetActive flips the active flag (?is_active=true|false)
func (a *API) handleSetActive(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, a.log, err)
		return
	}

	isActive, err := strconv.ParseBool(r.URL.Query().Get("is_active"))
	if err != nil {
		writeError(w, a.log, invalidRequest("is_active must be a boolean"))
		return
	}

	product, err := a.svc.SetActive(r.Context(), id, isActive)
	if err != nil {
		writeError(w, a.log, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

// handleUpsert creates or fully updates a product keyed by SKU
func (a *API) handleUpsert(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, a.log, err)
		return
	}
	if err := req.validate(true); err != nil {
		writeError(w, a.log, err)
		return
	}

	product, err := a.svc.UpsertBySKU(r.Context(), req.toModel())
	if err != nil {
		writeError(w, a.log, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}
