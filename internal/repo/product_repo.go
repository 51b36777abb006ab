package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/llNABSll/product-api/internal/db"
)

var (
	// ErrProductNotFound is returned when a product is not found
	ErrProductNotFound = errors.New("product not found")

	// ErrDuplicateSKU is returned when a create or rename collides with an existing SKU
	ErrDuplicateSKU = errors.New("sku already exists")

	// ErrVersionConflict is returned when an update lost the optimistic-lock race
	ErrVersionConflict = errors.New("product version conflict")
)

// ProductRepository handles product persistence
type ProductRepository struct {
	db  *db.DB
	log *zap.Logger
}

// NewProductRepository creates a new product repository
func NewProductRepository(database *db.DB, logger *zap.Logger) *ProductRepository {
	return &ProductRepository{
		db:  database,
		log: logger,
	}
}

// ProductPatch carries a partial update; only non-nil fields are applied.
type ProductPatch struct {
	SKU         *string
	Name        *string
	Description *string
	Price       *float64
	Quantity    *int
	Unit        *string
	Brand       *string
	Category    *string
	VATRate     *float64
	WeightGram  *int
	VolumeML    *int
	IsActive    *bool

	// ReplaceDimensions writes weight_gram and volume_ml even when the
	// pointers are nil, clearing the columns. Set by upsert, which replaces
	// the whole row rather than patching it.
	ReplaceDimensions bool
}

func (p ProductPatch) changes() map[string]interface{} {
	updates := make(map[string]interface{})
	if p.SKU != nil {
		updates["sku"] = *p.SKU
	}
	if p.Name != nil {
		updates["name"] = *p.Name
	}
	if p.Description != nil {
		updates["description"] = *p.Description
	}
	if p.Price != nil {
		updates["price"] = *p.Price
	}
	if p.Quantity != nil {
		updates["quantity"] = *p.Quantity
	}
	if p.Unit != nil {
		updates["unit"] = *p.Unit
	}
	if p.Brand != nil {
		updates["brand"] = *p.Brand
	}
	if p.Category != nil {
		updates["category"] = *p.Category
	}
	if p.VATRate != nil {
		updates["vat_rate"] = *p.VATRate
	}
	if p.ReplaceDimensions {
		updates["weight_gram"] = p.WeightGram
		updates["volume_ml"] = p.VolumeML
	} else {
		if p.WeightGram != nil {
			updates["weight_gram"] = *p.WeightGram
		}
		if p.VolumeML != nil {
			updates["volume_ml"] = *p.VolumeML
		}
	}
	if p.IsActive != nil {
		updates["is_active"] = *p.IsActive
	}
	return updates
}

// ListFilter describes the optional filters, sort and pagination for List
type ListFilter struct {
	Query      string
	Category   string
	Brand      string
	MinPrice   *float64
	MaxPrice   *float64
	OnlyActive bool
	SortBy     string
	SortDir    string
	Offset     int
	Limit      int
}

// Whitelisted sort columns; unknown values fall back to id to avoid injection.
var sortColumns = map[string]string{
	"id":         "id",
	"sku":        "sku",
	"name":       "name",
	"price":      "price",
	"quantity":   "quantity",
	"created_at": "created_at",
	"updated_at": "updated_at",
}

func resolveSort(sortBy, sortDir string) string {
	col, ok := sortColumns[sortBy]
	if !ok {
		col = "id"
	}
	dir := "ASC"
	if strings.EqualFold(sortDir, "desc") {
		dir = "DESC"
	}
	return col + " " + dir
}

// Get retrieves a product by id
func (r *ProductRepository) Get(ctx context.Context, id uint) (*db.Product, error) {
	var product db.Product
	err := r.db.WithContext(ctx).First(&product, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		r.log.Error("Failed to get product", zap.Uint("id", id), zap.Error(err))
		return nil, err
	}
	return &product, nil
}

// GetBySKU retrieves a product by SKU. Returns (nil, nil) when absent so
// callers can probe for existence without treating absence as a failure.
func (r *ProductRepository) GetBySKU(ctx context.Context, sku string) (*db.Product, error) {
	var product db.Product
	err := r.db.WithContext(ctx).Where("sku = ?", sku).First(&product).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.log.Error("Failed to get product by sku", zap.String("sku", sku), zap.Error(err))
		return nil, err
	}
	return &product, nil
}

// List returns a filtered, sorted and paginated list of products plus the total count
func (r *ProductRepository) List(ctx context.Context, filter ListFilter) ([]db.Product, int64, error) {
	query := r.db.WithContext(ctx).Model(&db.Product{})

	if filter.Query != "" {
		query = query.Where("lower(name) LIKE ?", "%"+strings.ToLower(filter.Query)+"%")
	}
	if filter.Category != "" {
		query = query.Where("category = ?", filter.Category)
	}
	if filter.Brand != "" {
		query = query.Where("brand = ?", filter.Brand)
	}
	if filter.MinPrice != nil {
		query = query.Where("price >= ?", *filter.MinPrice)
	}
	if filter.MaxPrice != nil {
		query = query.Where("price <= ?", *filter.MaxPrice)
	}
	if filter.OnlyActive {
		query = query.Where("is_active = ?", true)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		r.log.Error("Failed to count products", zap.Error(err))
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 10
	}

	var products []db.Product
	err := query.
		Order(resolveSort(filter.SortBy, filter.SortDir)).
		Offset(filter.Offset).
		Limit(limit).
		Find(&products).Error
	if err != nil {
		r.log.Error("Failed to list products", zap.Error(err))
		return nil, 0, err
	}

	return products, total, nil
}

// Create inserts a new product with version 1
func (r *ProductRepository) Create(ctx context.Context, product *db.Product) error {
	existing, err := r.GetBySKU(ctx, product.SKU)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrDuplicateSKU
	}

	product.Version = 1
	if err := r.db.WithContext(ctx).Create(product).Error; err != nil {
		// A concurrent insert can still slip past the probe; the unique
		// constraint closes that race.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateSKU
		}
		r.log.Error("Failed to create product", zap.String("sku", product.SKU), zap.Error(err))
		return err
	}

	r.log.Info("Product created", zap.Uint("id", product.ID), zap.String("sku", product.SKU))
	return nil
}

// Update applies a partial patch to a product.
//
// Concurrency contract: when expectedVersion is supplied it is checked
// against the current row before anything is written, and the UPDATE itself
// is always conditioned on the version that was read. Zero affected rows
// means another writer got there first and surfaces as ErrVersionConflict.
func (r *ProductRepository) Update(ctx context.Context, id uint, patch ProductPatch, expectedVersion *int) (*db.Product, error) {
	current, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if expectedVersion != nil && *expectedVersion != current.Version {
		r.log.Warn("Version conflict on pre-check",
			zap.Uint("id", id),
			zap.Int("expected", *expectedVersion),
			zap.Int("actual", current.Version),
		)
		return nil, ErrVersionConflict
	}

	if patch.SKU != nil && *patch.SKU != current.SKU {
		other, err := r.GetBySKU(ctx, *patch.SKU)
		if err != nil {
			return nil, err
		}
		if other != nil && other.ID != id {
			return nil, ErrDuplicateSKU
		}
	}

	updates := patch.changes()
	if len(updates) == 0 {
		return current, nil
	}
	updates["version"] = current.Version + 1

	result := r.db.WithContext(ctx).
		Model(&db.Product{}).
		Where("id = ? AND version = ?", id, current.Version).
		Updates(updates)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateSKU
		}
		r.log.Error("Failed to update product", zap.Uint("id", id), zap.Error(result.Error))
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		r.log.Warn("Version conflict on write",
			zap.Uint("id", id),
			zap.Int("version", current.Version),
		)
		return nil, ErrVersionConflict
	}

	updated, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	r.log.Info("Product updated",
		zap.Uint("id", id),
		zap.Int("version", updated.Version),
	)
	return updated, nil
}

// Delete removes a product and returns the deleted row
func (r *ProductRepository) Delete(ctx context.Context, id uint) (*db.Product, error) {
	product, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := r.db.WithContext(ctx).Delete(&db.Product{}, id).Error; err != nil {
		r.log.Error("Failed to delete product", zap.Uint("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to delete product: %w", err)
	}

	r.log.Info("Product deleted", zap.Uint("id", id), zap.String("sku", product.SKU))
	return product, nil
}
