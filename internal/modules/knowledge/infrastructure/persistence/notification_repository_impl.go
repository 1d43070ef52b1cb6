package persistence

import (
	"context"
	"time"

	"EchoDesk/internal/modules/knowledge/domain/file"
	"EchoDesk/internal/modules/knowledge/domain/repository"

	"gorm.io/gorm"
)

type notificationRepositoryImpl struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) repository.NotificationRepository {
	return &notificationRepositoryImpl{db: db}
}

func (r *notificationRepositoryImpl) Create(ctx context.Context, notif *file.Notification) error {
	if notif == nil {
		return nil
	}
	return r.db.WithContext(ctx).Create(notif).Error
}

func (r *notificationRepositoryImpl) ListByOrg(ctx context.Context, orgID string, limit int) ([]file.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []file.Notification
	err := r.db.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("id DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *notificationRepositoryImpl) ClaimPending(ctx context.Context, limit int) ([]file.Notification, error) {
	if limit <= 0 {
		limit = 100
	}

	var out []file.Notification
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var notifs []file.Notification
		if err := tx.Model(&file.Notification{}).
			Where("status = ?", file.NotificationStatusPending).
			Order("id ASC").
			Limit(limit).
			Find(&notifs).Error; err != nil {
			return err
		}
		if len(notifs) == 0 {
			out = []file.Notification{}
			return nil
		}

		ids := make([]int64, 0, len(notifs))
		for i := range notifs {
			ids = append(ids, notifs[i].Id)
		}
		if err := tx.Model(&file.Notification{}).
			Where("id IN ?", ids).
			Update("attempts", gorm.Expr("attempts + 1")).Error; err != nil {
			return err
		}

		out = notifs
		return nil
	})
	return out, err
}

func (r *notificationRepositoryImpl) MarkDelivered(ctx context.Context, notificationID string) error {
	now := time.Now()
	updates := map[string]any{
		"status":       file.NotificationStatusDelivered,
		"delivered_at": now,
	}
	return r.db.WithContext(ctx).Model(&file.Notification{}).
		Where("notification_id = ? AND status = ?", notificationID, file.NotificationStatusPending).
		Updates(updates).Error
}

func (r *notificationRepositoryImpl) DeleteStaleProcessing(ctx context.Context, orgID, fileName string) error {
	return r.db.WithContext(ctx).
		Where("org_id = ? AND file_name = ? AND kind = ?", orgID, fileName, file.NotificationKindFileProcessing).
		Delete(&file.Notification{}).Error
}

func (r *notificationRepositoryImpl) MarkRead(ctx context.Context, orgID, notificationID string) error {
	now := time.Now()
	updates := map[string]any{
		"status":  file.NotificationStatusRead,
		"read_at": now,
	}
	return r.db.WithContext(ctx).Model(&file.Notification{}).
		Where("org_id = ? AND notification_id = ?", orgID, notificationID).
		Updates(updates).Error
}
