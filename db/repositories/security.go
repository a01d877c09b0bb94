package repositories

import (
	"context"

	"gorm.io/gorm"

	"github.com/pkgb-in/pkgvault/db/models"
)

// SecurityEventRepository is the append-only audit log of verification
// attempts. Events are never updated or deleted.
type SecurityEventRepository struct {
	db *gorm.DB
}

func NewSecurityEventRepository(db *gorm.DB) *SecurityEventRepository {
	return &SecurityEventRepository{db: db}
}

func (r *SecurityEventRepository) Append(ctx context.Context, event *models.SecurityEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

// VerificationTotals aggregates event counts by kind.
type VerificationTotals struct {
	Total    int64
	Success  int64
	Threats  int64
	Failures int64
}

func (r *SecurityEventRepository) Totals(ctx context.Context) (VerificationTotals, error) {
	var totals VerificationTotals
	rows := []struct {
		Kind  string
		Count int64
	}{}
	err := r.db.WithContext(ctx).Model(&models.SecurityEvent{}).
		Select("kind, COUNT(*) as count").
		Group("kind").
		Scan(&rows).Error
	if err != nil {
		return totals, err
	}
	for _, row := range rows {
		totals.Total += row.Count
		switch row.Kind {
		case models.EventSuccess:
			totals.Success = row.Count
		case models.EventThreatDetected:
			totals.Threats = row.Count
		case models.EventFailure:
			totals.Failures = row.Count
		}
	}
	return totals, nil
}

// Recent returns the newest n events, newest first.
func (r *SecurityEventRepository) Recent(ctx context.Context, n int) ([]models.SecurityEvent, error) {
	var events []models.SecurityEvent
	err := r.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Limit(n).
		Find(&events).Error
	return events, err
}
