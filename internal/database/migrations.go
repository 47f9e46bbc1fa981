package database

import (
	"errors"

	"gorm.io/gorm"

	"github.com/noticeboardhq/noticeboard/internal/models"
	"github.com/noticeboardhq/noticeboard/pkg/crypto"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Post{},
		&models.Comment{},
		&models.Ticket{},
		&models.Reply{},
		&models.Product{},
		&models.Order{},
	)
}

// SeedData ensures an initial admin account exists so the admin surface is
// reachable on a fresh database. The password must be rotated on first login.
func SeedData(db *gorm.DB) error {
	if db == nil {
		return errors.New("nil database handle")
	}

	var count int64
	if err := db.Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := crypto.HashPassword("changeme")
	if err != nil {
		return err
	}

	admin := models.User{
		Username:     "admin",
		Email:        "admin@localhost",
		PasswordHash: hash,
		Role:         models.RoleAdmin,
	}
	return db.Where(models.User{Username: admin.Username}).Attrs(admin).FirstOrCreate(&models.User{}).Error
}
