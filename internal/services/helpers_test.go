package services

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rohits-web03/nimbus/internal/models"
	"github.com/rohits-web03/nimbus/internal/observability"
	"github.com/rohits-web03/nimbus/internal/repositories"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, repositories.Migrate(db))
	require.NoError(t, repositories.SeedPackages(db))
	return db
}

func newTestMetrics() *observability.Metrics {
	return observability.NewMetrics(prometheus.NewRegistry())
}

func packageByName(t *testing.T, db *gorm.DB, name string) *models.Package {
	t.Helper()
	var pkg models.Package
	require.NoError(t, db.Where("name = ?", name).First(&pkg).Error)
	return &pkg
}

// createUser inserts a user on the named package, "" for no package.
func createUser(t *testing.T, db *gorm.DB, username, pkgName string) *models.User {
	t.Helper()
	user := &models.User{Username: username, Email: username + "@example.com", Password: "x"}
	if pkgName != "" {
		pkg := packageByName(t, db, pkgName)
		user.PackageID = &pkg.ID
	}
	require.NoError(t, db.Omit("Package").Create(user).Error)
	require.NoError(t, db.Preload("Package").First(user, "id = ?", user.ID).Error)
	return user
}

// withPackage creates a custom tier with the given cap and moves user onto it.
func withPackage(t *testing.T, db *gorm.DB, user *models.User, name string, maxBytes int64) {
	t.Helper()
	pkg := &models.Package{Name: name, MaxUploadSize: maxBytes}
	require.NoError(t, db.Create(pkg).Error)
	require.NoError(t, db.Model(&models.User{}).Where("id = ?", user.ID).Update("package_id", pkg.ID).Error)
	user.PackageID = &pkg.ID
	user.Package = pkg
}
