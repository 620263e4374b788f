package services

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/rohits-web03/nimbus/internal/apperr"
	"github.com/rohits-web03/nimbus/internal/models"
	"github.com/rohits-web03/nimbus/internal/observability"
	"gorm.io/gorm"
)

// Usage is a storage snapshot for one user.
type Usage struct {
	UsedBytes      int64   `json:"usedBytes"`
	TotalBytes     int64   `json:"totalBytes"`
	RemainingBytes int64   `json:"remainingBytes"`
	UsedPercentage float64 `json:"usedPercentage"`
}

// Quota enforces the package storage cap. Callers that write must hold the
// user's storage lock between CheckUpload and recording the file.
type Quota struct {
	db      *gorm.DB
	metrics *observability.Metrics
}

func NewQuota(db *gorm.DB, metrics *observability.Metrics) *Quota {
	return &Quota{db: db, metrics: metrics}
}

// Limit is the byte cap of the user's package, 0 without a package.
func Limit(user *models.User) int64 {
	if user.Package == nil {
		return 0
	}
	return user.Package.MaxUploadSize
}

// Used sums the sizes of every file the user owns.
func (q *Quota) Used(ctx context.Context, userID uuid.UUID) (int64, error) {
	var used int64
	err := q.db.WithContext(ctx).Model(&models.File{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(size), 0)").
		Scan(&used).Error
	if err != nil {
		return 0, fmt.Errorf("sum file sizes: %w", err)
	}
	return used, nil
}

func (q *Quota) CheckUpload(ctx context.Context, user *models.User, candidate int64) error {
	used, err := q.Used(ctx, user.ID)
	if err != nil {
		return err
	}
	return q.check(Limit(user), used, candidate)
}

func (q *Quota) check(limit, used, candidate int64) error {
	if candidate > limit {
		q.metrics.QuotaRejections.WithLabelValues("single_file").Inc()
		return apperr.QuotaExceeded("single file exceeds package limit")
	}
	if used+candidate > limit {
		q.metrics.QuotaRejections.WithLabelValues("quota").Inc()
		return apperr.QuotaExceeded("quota exceeded")
	}
	return nil
}

func (q *Quota) Usage(ctx context.Context, user *models.User) (Usage, error) {
	used, err := q.Used(ctx, user.ID)
	if err != nil {
		return Usage{}, err
	}
	return usageOf(used, Limit(user)), nil
}

func usageOf(used, total int64) Usage {
	u := Usage{UsedBytes: used, TotalBytes: total, RemainingBytes: max(total-used, 0)}
	if total > 0 {
		u.UsedPercentage = math.Round(float64(used)/float64(total)*10000) / 100
	}
	return u
}
