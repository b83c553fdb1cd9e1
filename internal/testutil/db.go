// Package testutil provides in-memory databases and fixtures for tests.
package testutil

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/kerem-kaynak/tablecat/internal/entity"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB opens a private in-memory sqlite database with every model migrated.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(entity.Models()...))
	return db
}

// CreateUser inserts a user with the given name.
func CreateUser(t testing.TB, db *gorm.DB, first, last string) *entity.User {
	t.Helper()

	u := &entity.User{
		Email:     fmt.Sprintf("%s.%s@example.com", first, last),
		FirstName: first,
		LastName:  last,
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

// CreateDataset inserts a bare dataset owned by creator.
func CreateDataset(t testing.TB, db *gorm.DB, creator *entity.User, slug string) *entity.Dataset {
	t.Helper()

	ds := &entity.Dataset{
		Slug:      slug,
		Name:      slug,
		CreatorID: creator.ID,
	}
	require.NoError(t, db.Omit("Categories").Create(ds).Error)
	return ds
}
