package repo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/llNABSll/product-api/internal/db"
	"github.com/llNABSll/product-api/pkg/logger"
)

func setupTestDB(t *testing.T) *db.DB {
	gormDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
	})
	require.NoError(t, err)

	err = gormDB.AutoMigrate(&db.Product{})
	require.NoError(t, err)

	return &db.DB{DB: gormDB}
}

func setupRepo(t *testing.T) *ProductRepository {
	return NewProductRepository(setupTestDB(t), logger.NewLogger("test", "error"))
}

func createProduct(t *testing.T, r *ProductRepository, sku string, quantity int) *db.Product {
	product := &db.Product{
		SKU:      sku,
		Name:     "Product " + sku,
		Price:    9.99,
		Quantity: quantity,
		IsActive: true,
	}
	require.NoError(t, r.Create(context.Background(), product))
	return product
}

func TestCreateProduct(t *testing.T) {
	r := setupRepo(t)
	ctx := context.Background()

	product := createProduct(t, r, "SKU-001", 10)
	assert.NotZero(t, product.ID)
	assert.Equal(t, 1, product.Version)

	retrieved, err := r.Get(ctx, product.ID)
	assert.NoError(t, err)
	assert.Equal(t, "SKU-001", retrieved.SKU)
	assert.Equal(t, 10, retrieved.Quantity)
	assert.Equal(t, 1, retrieved.Version)
}

func TestCreateDuplicateSKU(t *testing.T) {
	r := setupRepo(t)
	ctx := context.Background()

	createProduct(t, r, "SKU-002", 5)

	err := r.Create(ctx, &db.Product{SKU: "SKU-002", Name: "Duplicate", IsActive: true})
	assert.ErrorIs(t, err, ErrDuplicateSKU)
}

func TestGetNotFound(t *testing.T) {
	r := setupRepo(t)

	_, err := r.Get(context.Background(), 9999)
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestGetBySKUAbsentReturnsNil(t *testing.T) {
	r := setupRepo(t)

	product, err := r.GetBySKU(context.Background(), "NOPE")
	assert.NoError(t, err)
	assert.Nil(t, product)
}

func TestUpdatePartialPatch(t *testing.T) {
	r := setupRepo(t)
	ctx := context.Background()

	product := createProduct(t, r, "SKU-003", 10)

	newName := "Renamed"
	newPrice := 19.99
	updated, err := r.Update(ctx, product.ID, ProductPatch{Name: &newName, Price: &newPrice}, nil)
	assert.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, 19.99, updated.Price)
	assert.Equal(t, 10, updated.Quantity, "unsupplied fields must not change")
	assert.Equal(t, 2, updated.Version)
}

func TestUpdateVersionIncrementsByOne(t *testing.T) {
	r := setupRepo(t)
	ctx := context.Background()

	product := createProduct(t, r, "SKU-004", 10)

	for i := 0; i < 3; i++ {
		qty := 10 + i
		updated, err := r.Update(ctx, product.ID, ProductPatch{Quantity: &qty}, nil)
		require.NoError(t, err)
		assert.Equal(t, 2+i, updated.Version)
	}
}

func TestUpdateVersionConflictPreCheck(t *testing.T) {
	r := setupRepo(t)
	ctx := context.Background()

	product := createProduct(t, r, "SKU-005", 10)

	stale := product.Version + 5
	qty := 3
	_, err := r.Update(ctx, product.ID, ProductPatch{Quantity: &qty}, &stale)
	assert.ErrorIs(t, err, ErrVersionConflict)

	current, err := r.Get(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, current.Quantity, "failed update must not touch storage")
	assert.Equal(t, 1, current.Version)
}

func TestUpdateLostRace(t *testing.T) {
	r := setupRepo(t)
	ctx := context.Background()

	// Product at version 1, quantity 10. Writer A reads it.
	product := createProduct(t, r, "SKU-006", 10)
	readByA := product.Version

	// Writer B decrements quantity to 8 (version becomes 2).
	qtyB := 8
	updatedByB, err := r.Update(ctx, product.ID, ProductPatch{Quantity: &qtyB}, nil)
	require.NoError(t, err)
	require.Equal(t, 2, updatedByB.Version)

	// Writer A asserts the version it read and must lose.
	qtyA := 4
	_, err = r.Update(ctx, product.ID, ProductPatch{Quantity: &qtyA}, &readByA)
	assert.ErrorIs(t, err, ErrVersionConflict)

	current, err := r.Get(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, current.Quantity)
	assert.Equal(t, 2, current.Version)
}

func TestUpdateSKURenameConflict(t *testing.T) {
	r := setupRepo(t)
	ctx := context.Background()

	createProduct(t, r, "SKU-007", 1)
	other := createProduct(t, r, "SKU-008", 1)

	taken := "SKU-007"
	_, err := r.Update(ctx, other.ID, ProductPatch{SKU: &taken}, nil)
	assert.ErrorIs(t, err, ErrDuplicateSKU)
}

func TestUpdateReplaceDimensionsClears(t *testing.T) {
	r := setupRepo(t)
	ctx := context.Background()

	weight := 500
	product := &db.Product{SKU: "SKU-011", Name: "Boxed", Quantity: 1, WeightGram: &weight, IsActive: true}
	require.NoError(t, r.Create(ctx, product))

	volume := 750
	updated, err := r.Update(ctx, product.ID, ProductPatch{
		VolumeML:          &volume,
		ReplaceDimensions: true,
	}, nil)
	assert.NoError(t, err)
	assert.Nil(t, updated.WeightGram, "omitted dimension must be cleared on replace")
	require.NotNil(t, updated.VolumeML)
	assert.Equal(t, 750, *updated.VolumeML)
}

func TestUpdateEmptyPatchIsNoOp(t *testing.T) {
	r := setupRepo(t)
	ctx := context.Background()

	product := createProduct(t, r, "SKU-009", 7)

	updated, err := r.Update(ctx, product.ID, ProductPatch{}, nil)
	assert.NoError(t, err)
	assert.Equal(t, 1, updated.Version, "empty patch must not advance the version")
}

func TestDeleteProduct(t *testing.T) {
	r := setupRepo(t)
	ctx := context.Background()

	product := createProduct(t, r, "SKU-010", 1)

	deleted, err := r.Delete(ctx, product.ID)
	assert.NoError(t, err)
	assert.Equal(t, "SKU-010", deleted.SKU)

	_, err = r.Get(ctx, product.ID)
	assert.ErrorIs(t, err, ErrProductNotFound)

	_, err = r.Delete(ctx, product.ID)
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestListFilters(t *testing.T) {
	r := setupRepo(t)
	ctx := context.Background()

	products := []*db.Product{
		{SKU: "L-1", Name: "Olive Oil", Category: "pantry", Brand: "acme", Price: 8, Quantity: 5, IsActive: true},
		{SKU: "L-2", Name: "Olive Tapenade", Category: "pantry", Brand: "other", Price: 4, Quantity: 2, IsActive: true},
		{SKU: "L-3", Name: "Dish Soap", Category: "household", Brand: "acme", Price: 2, Quantity: 9, IsActive: false},
	}
	for _, p := range products {
		require.NoError(t, r.Create(ctx, p))
	}

	rows, total, err := r.List(ctx, ListFilter{OnlyActive: false})
	assert.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, rows, 3)

	rows, total, err = r.List(ctx, ListFilter{OnlyActive: true})
	assert.NoError(t, err)
	assert.Equal(t, int64(2), total)

	rows, total, err = r.List(ctx, ListFilter{Category: "pantry", OnlyActive: false})
	assert.NoError(t, err)
	assert.Equal(t, int64(2), total)

	rows, total, err = r.List(ctx, ListFilter{Query: "olive", OnlyActive: false})
	assert.NoError(t, err)
	assert.Equal(t, int64(2), total)

	minPrice := 5.0
	rows, total, err = r.List(ctx, ListFilter{MinPrice: &minPrice, OnlyActive: false})
	assert.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, rows, 1)
	assert.Equal(t, "L-1", rows[0].SKU)

	rows, _, err = r.List(ctx, ListFilter{OnlyActive: false, SortBy: "price", SortDir: "desc", Limit: 2})
	assert.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "L-1", rows[0].SKU)
	assert.Equal(t, "L-2", rows[1].SKU)
}
