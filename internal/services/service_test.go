package services

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noticeboardhq/noticeboard/internal/auth"
	"github.com/noticeboardhq/noticeboard/internal/cache"
	"github.com/noticeboardhq/noticeboard/internal/database"
	"github.com/noticeboardhq/noticeboard/internal/models"
)

// testEnv bundles the shared fixtures every service test needs.
type testEnv struct {
	db    *database.Facade
	store *cache.FileStore
	inv   *cache.Invalidator
}

func openServiceTestEnv(t *testing.T) testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Post{},
		&models.Comment{},
		&models.Ticket{},
		&models.Reply{},
		&models.Product{},
		&models.Order{},
	))

	facade, err := database.NewFacade(db)
	require.NoError(t, err)

	store, err := cache.NewFileStore(t.TempDir())
	require.NoError(t, err)

	return testEnv{
		db:    facade,
		store: store,
		inv:   cache.NewInvalidator(store, InvalidationRules()),
	}
}

func memberIdentity(id uint) auth.Identity {
	return auth.Identity{UserID: id, Username: "member", Role: models.RoleMember}
}

func adminIdentity(id uint) auth.Identity {
	return auth.Identity{UserID: id, Username: "root", Role: models.RoleAdmin}
}
