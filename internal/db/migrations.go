package db

import (
	"gorm.io/gorm"
)

// RunMigrations runs all database migrations
func RunMigrations(db *DB) error {
	if err := db.AutoMigrate(&Product{}); err != nil {
		return err
	}

	return createIndexes(db.DB)
}

func createIndexes(db *gorm.DB) error {
	// Case-insensitive index on name for partial search, PostgreSQL only
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_products_name_ci ON products (lower(name))`,
		`CREATE INDEX IF NOT EXISTS idx_products_active_category ON products(is_active, category) WHERE is_active = true`,
	}

	for _, indexSQL := range indexes {
		if err := db.Exec(indexSQL).Error; err != nil {
			return err
		}
	}

	return nil
}
