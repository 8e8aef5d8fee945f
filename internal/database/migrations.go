package database

import (
	"gorm.io/gorm"

	"github.com/tallerco/shopcore/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Tenant{},
		&models.TenantMembership{},
		&models.Notification{},
		&models.ScheduledNotification{},
		&models.NotificationPreference{},
	)
}

// SeedData populates the default tenant used by single-tenant deployments.
func SeedData(db *gorm.DB) error {
	defaultTenant := models.Tenant{
		BaseModel: models.BaseModel{ID: "default"},
		Name:      "Default Store",
		Slug:      "default",
	}
	return db.Where(models.Tenant{Slug: defaultTenant.Slug}).
		Attrs(defaultTenant).
		FirstOrCreate(&models.Tenant{}).Error
}
