package repository

import (
	"context"

	"EchoDesk/internal/modules/knowledge/domain/file"
)

type NotificationRepository interface {
	Create(ctx context.Context, notif *file.Notification) error
	ListByOrg(ctx context.Context, orgID string, limit int) ([]file.Notification, error)
	// ClaimPending watchdog 批量取待投递通知并累加尝试次数
	ClaimPending(ctx context.Context, limit int) ([]file.Notification, error)
	MarkDelivered(ctx context.Context, notificationID string) error
	MarkRead(ctx context.Context, orgID, notificationID string) error
	// DeleteStaleProcessing 文件终态落定后清掉同名的 processing 通知
	DeleteStaleProcessing(ctx context.Context, orgID, fileName string) error
}
