// Package testutil holds shared fixtures for package tests.
package testutil

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"wishbucket/internal/database"
	"wishbucket/internal/models"
)

var nameReplacer = strings.NewReplacer("/", "_", " ", "_", "#", "_")

// NewDB opens a migrated in-memory SQLite database private to t.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", nameReplacer.Replace(t.Name()), time.Now().UnixNano())
	db, err := database.Open(dsn)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// CreateUser inserts a user with the given id and referral code.
func CreateUser(t testing.TB, db *gorm.DB, id int64, code string) models.User {
	t.Helper()
	u := models.User{
		TelegramID:    id,
		FirstName:     fmt.Sprintf("User%d", id),
		Username:      fmt.Sprintf("user%d", id),
		ReferralCode:  code,
		PremiumStatus: models.PremiumFree,
	}
	require.NoError(t, db.Create(&u).Error)
	return u
}

// ReloadUser reads the current row for id.
func ReloadUser(t testing.TB, db *gorm.DB, id int64) models.User {
	t.Helper()
	var u models.User
	require.NoError(t, db.First(&u, "telegram_id = ?", id).Error)
	return u
}
