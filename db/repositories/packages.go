package repositories

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pkgb-in/pkgvault/db/models"
)

type PackageRepository struct {
	db *gorm.DB
}

func NewPackageRepository(db *gorm.DB) *PackageRepository {
	return &PackageRepository{db: db}
}

func (r *PackageRepository) GetByNameVersion(name, version string) (models.Package, error) {
	var pkg models.Package
	result := r.db.First(&pkg, "name = ? AND version = ?", name, version)
	return pkg, result.Error
}

// Upsert overwrites the record for (name, version); a re-download after a
// successful re-verification replaces the prior outcome.
func (r *PackageRepository) Upsert(pkg *models.Package) error {
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "name"}, {Name: "version"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"integrity", "algorithm", "cached_path", "verified", "verified_at", "updated_at",
		}),
	}).Create(pkg).Error
}

// RecordAccess bumps the hit or miss counter for a cached tarball.
func (r *PackageRepository) RecordAccess(name, version string, hit bool) error {
	column := "cache_miss"
	if hit {
		column = "cache_hit"
	}
	return r.db.Model(&models.Package{}).
		Where("name = ? AND version = ?", name, version).
		UpdateColumn(column, gorm.Expr(column+" + 1")).Error
}

// HasVerified reports whether a verified record exists for the given cached
// path. Used by startup reclamation: files without one are deleted.
func (r *PackageRepository) HasVerified(cachedPath string) (bool, error) {
	var count int64
	err := r.db.Model(&models.Package{}).
		Where("cached_path = ? AND verified = true", cachedPath).
		Count(&count).Error
	return count > 0, err
}

func (r *PackageRepository) DeleteByNames(names []string) error {
	return r.db.Where("name IN ?", names).Delete(&models.Package{}).Error
}

func (r *PackageRepository) TotalServed() (int64, error) {
	var total struct {
		Total int64
	}
	result := r.db.Model(&models.Package{}).
		Select("COALESCE(SUM(cache_hit + cache_miss), 0) as total").
		Scan(&total)
	return total.Total, result.Error
}

func (r *PackageRepository) Count() (int64, error) {
	var total int64
	err := r.db.Model(&models.Package{}).Count(&total).Error
	return total, err
}

// Touch refreshes UpdatedAt without changing verification state.
func (r *PackageRepository) Touch(name, version string) error {
	return r.db.Model(&models.Package{}).
		Where("name = ? AND version = ?", name, version).
		UpdateColumn("updated_at", time.Now()).Error
}
