package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/llNABSll/product-api/internal/db"
	"github.com/llNABSll/product-api/internal/repo"
	"github.com/llNABSll/product-api/internal/stock"
)

// Publisher is the narrow message-publish capability the service depends
// on. The concrete RabbitMQ adapter and test doubles both implement it.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload map[string]interface{}) error
}

// ProductService orchestrates the repository, the stock ledger and event
// publication. Every mutating call either fully succeeds (persisted, then
// published) or fully fails with no persisted change.
type ProductService struct {
	repo *repo.ProductRepository
	mq   Publisher
	log  *zap.Logger
}

// NewProductService creates a new product service
func NewProductService(repository *repo.ProductRepository, mq Publisher, logger *zap.Logger) *ProductService {
	return &ProductService{
		repo: repository,
		mq:   mq,
		log:  logger,
	}
}

// Get retrieves a product by id
func (s *ProductService) Get(ctx context.Context, id uint) (*db.Product, error) {
	return s.repo.Get(ctx, id)
}

// GetBySKU retrieves a product by SKU, nil when absent
func (s *ProductService) GetBySKU(ctx context.Context, sku string) (*db.Product, error) {
	return s.repo.GetBySKU(ctx, sku)
}

// List returns a filtered, paginated product list plus the total count
func (s *ProductService) List(ctx context.Context, filter repo.ListFilter) ([]db.Product, int64, error) {
	return s.repo.List(ctx, filter)
}

// Create persists a new product and publishes product.created
func (s *ProductService) Create(ctx context.Context, product *db.Product) (*db.Product, error) {
	if err := s.repo.Create(ctx, product); err != nil {
		return nil, err
	}

	s.publish(ctx, EventProductCreated, map[string]interface{}{
		"id":    product.ID,
		"sku":   product.SKU,
		"name":  product.Name,
		"price": product.Price,
	})

	s.log.Info("product created", zap.Uint("id", product.ID), zap.String("sku", product.SKU))
	return product, nil
}

// Update applies a partial patch with optional optimistic-lock expectation
// and publishes product.updated
func (s *ProductService) Update(ctx context.Context, id uint, patch repo.ProductPatch, expectedVersion *int) (*db.Product, error) {
	product, err := s.repo.Update(ctx, id, patch, expectedVersion)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, EventProductUpdated, map[string]interface{}{
		"id":       product.ID,
		"sku":      product.SKU,
		"name":     product.Name,
		"price":    product.Price,
		"quantity": product.Quantity,
		"version":  product.Version,
	})

	s.log.Info("product updated",
		zap.Uint("id", product.ID),
		zap.String("sku", product.SKU),
		zap.Int("version", product.Version),
	)
	return product, nil
}

// Delete removes a product and publishes product.deleted
func (s *ProductService) Delete(ctx context.Context, id uint) (*db.Product, error) {
	product, err := s.repo.Delete(ctx, id)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, EventProductDeleted, map[string]interface{}{
		"id":  product.ID,
		"sku": product.SKU,
	})

	s.log.Info("product deleted", zap.Uint("id", product.ID), zap.String("sku", product.SKU))
	return product, nil
}

// AdjustStock applies a signed quantity delta under optimistic locking.
//
// The read-decide-write sequence holds no lock: the update is conditioned
// on the version that was read, so a concurrent writer surfaces as
// repo.ErrVersionConflict rather than a lost update. A zero delta is a
// no-op: no write, no event.
func (s *ProductService) AdjustStock(ctx context.Context, id uint, delta int) (*db.Product, error) {
	if delta == 0 {
		return s.repo.Get(ctx, id)
	}

	product, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	newQuantity, err := stock.Decide(product.Quantity, delta)
	if err != nil {
		s.log.Warn("stock adjustment rejected",
			zap.Uint("id", id),
			zap.Int("quantity", product.Quantity),
			zap.Int("delta", delta),
		)
		return nil, err
	}

	expected := product.Version
	return s.Update(ctx, id, repo.ProductPatch{Quantity: &newQuantity}, &expected)
}

// SetActive flips the active flag and publishes product.activated or
// product.deactivated in addition to product.updated
func (s *ProductService) SetActive(ctx context.Context, id uint, isActive bool) (*db.Product, error) {
	product, err := s.Update(ctx, id, repo.ProductPatch{IsActive: &isActive}, nil)
	if err != nil {
		return nil, err
	}

	event := EventProductDeactivated
	if isActive {
		event = EventProductActivated
	}
	s.publish(ctx, event, map[string]interface{}{
		"id":  product.ID,
		"sku": product.SKU,
	})

	s.log.Info("product active flag changed",
		zap.Uint("id", product.ID),
		zap.Bool("is_active", isActive),
	)
	return product, nil
}

// UpsertBySKU creates the product when the SKU is unknown, otherwise fully
// updates the existing row
func (s *ProductService) UpsertBySKU(ctx context.Context, product *db.Product) (*db.Product, error) {
	existing, err := s.repo.GetBySKU(ctx, product.SKU)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return s.Create(ctx, product)
	}

	patch := repo.ProductPatch{
		SKU:         &product.SKU,
		Name:        &product.Name,
		Description: &product.Description,
		Price:       &product.Price,
		Quantity:    &product.Quantity,
		Unit:        &product.Unit,
		Brand:       &product.Brand,
		Category:    &product.Category,
		VATRate:     &product.VATRate,
		IsActive:    &product.IsActive,

		// Dimensions are replaced, not patched: an upsert omitting them
		// clears the persisted values like every other field.
		WeightGram:        product.WeightGram,
		VolumeML:          product.VolumeML,
		ReplaceDimensions: true,
	}
	return s.Update(ctx, existing.ID, patch, nil)
}

// publish sends a domain event best-effort: the entity change is already
// committed, so a broker failure is logged rather than unwound.
func (s *ProductService) publish(ctx context.Context, routingKey string, payload map[string]interface{}) {
	if s.mq == nil {
		return
	}
	if err := s.mq.Publish(ctx, routingKey, payload); err != nil {
		s.log.Warn("failed to publish event",
			zap.String("routing_key", routingKey),
			zap.Error(err),
		)
	}
}
