package persistence

import (
	"context"
	"errors"
	"time"

	"EchoDesk/internal/modules/knowledge/domain/file"
	"EchoDesk/internal/modules/knowledge/domain/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type tombstoneRepositoryImpl struct {
	db *gorm.DB
}

func NewTombstoneRepository(db *gorm.DB) repository.TombstoneRepository {
	return &tombstoneRepositoryImpl{db: db}
}

func (r *tombstoneRepositoryImpl) Upsert(ctx context.Context, ts *file.FileTombstone) error {
	if ts == nil {
		return nil
	}
	// 重复删除请求命中唯一键时只刷新时间，不重置清扫进度
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "namespace"}, {Name: "group_key"}},
		DoUpdates: clause.Assignments(map[string]any{"updated_at": time.Now()}),
	}).Create(ts).Error
}

func (r *tombstoneRepositoryImpl) GetByGroupKey(ctx context.Context, namespace, groupKey string) (*file.FileTombstone, error) {
	var ts file.FileTombstone
	err := r.db.WithContext(ctx).Where("namespace = ? AND group_key = ?", namespace, groupKey).Take(&ts).Error
	if err == nil {
		return &ts, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return nil, err
}

func (r *tombstoneRepositoryImpl) PendingGroupKeys(ctx context.Context, namespace string) ([]string, error) {
	var keys []string
	err := r.db.WithContext(ctx).Model(&file.FileTombstone{}).
		Where("namespace = ? AND status = ?", namespace, file.TombstoneStatusPending).
		Pluck("group_key", &keys).Error
	return keys, err
}

func (r *tombstoneRepositoryImpl) ListPending(ctx context.Context, now time.Time, limit int) ([]file.FileTombstone, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []file.FileTombstone
	err := r.db.WithContext(ctx).
		Where("status = ?", file.TombstoneStatusPending).
		Where("(next_sweep_at IS NULL OR next_sweep_at <= ?)", now).
		Order("id ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *tombstoneRepositoryImpl) AdvancePass(ctx context.Context, id int64, nextSweepAt time.Time) error {
	updates := map[string]any{
		"sweep_passes":  gorm.Expr("sweep_passes + 1"),
		"next_sweep_at": nextSweepAt,
		"updated_at":    time.Now(),
	}
	return r.db.WithContext(ctx).Model(&file.FileTombstone{}).Where("id = ?", id).Updates(updates).Error
}

func (r *tombstoneRepositoryImpl) MarkSwept(ctx context.Context, id int64) error {
	updates := map[string]any{
		"status":     file.TombstoneStatusSwept,
		"updated_at": time.Now(),
	}
	return r.db.WithContext(ctx).Model(&file.FileTombstone{}).Where("id = ?", id).Updates(updates).Error
}
