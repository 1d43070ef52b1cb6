package persistence

import (
	"context"

	"EchoDesk/internal/modules/knowledge/domain/file"
	"EchoDesk/internal/modules/knowledge/domain/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type usageRepositoryImpl struct {
	db *gorm.DB
}

func NewUsageRepository(db *gorm.DB) repository.UsageRepository {
	return &usageRepositoryImpl{db: db}
}

func (r *usageRepositoryImpl) Record(ctx context.Context, rec *file.UsageRecord) error {
	if rec == nil {
		return nil
	}
	// 同一 dedup_key 重复上报按幂等处理
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(rec).Error
}

func (r *usageRepositoryImpl) TotalByKind(ctx context.Context, orgID string) (map[string]int64, error) {
	type row struct {
		Kind  string
		Total int64
	}
	var rows []row
	err := r.db.WithContext(ctx).Model(&file.UsageRecord{}).
		Select("kind, SUM(amount) AS total").
		Where("org_id = ?", orgID).
		Group("kind").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	totals := make(map[string]int64, len(rows))
	for _, r := range rows {
		totals[r.Kind] = r.Total
	}
	return totals, nil
}
