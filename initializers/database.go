package initializers

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pkgb-in/pkgvault/db/models"
)

// DB is the shared gorm handle, set by InitDatabase.
var DB *gorm.DB

// InitDatabase opens the postgres connection and migrates the five
// collections. Unique and lookup indices come from the model tags; the two
// cache tables are swept by the expiry reaper rather than a database TTL.
func InitDatabase(url string) error {
	db, err := gorm.Open(postgres.Open(url), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	if err := db.AutoMigrate(
		&models.Package{},
		&models.Chunk{},
		&models.CachedResponse{},
		&models.CachedEmbedding{},
		&models.SecurityEvent{},
	); err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}

	DB = db
	return nil
}
