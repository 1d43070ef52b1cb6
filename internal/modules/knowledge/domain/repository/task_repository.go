package repository

import (
	"context"
	"time"

	"EchoDesk/internal/modules/knowledge/domain/file"
)

// IngestTaskRepository 摄取任务 outbox 仓储。
// 发布侧（relay）与消费侧（worker）各自推进独立的状态列
type IngestTaskRepository interface {
	Create(ctx context.Context, task *file.IngestTask) error
	ClaimForPublish(ctx context.Context, now time.Time, limit int) ([]file.IngestTask, error)
	MarkPublished(ctx context.Context, id int64, topic string, partition int, offset int64, publishedAt time.Time) error
	MarkPublishFailed(ctx context.Context, id int64, nextRetryAt time.Time, errMsg string) error
	GetByID(ctx context.Context, id int64) (*file.IngestTask, error)
	TryMarkProcessing(ctx context.Context, id int64, now time.Time) (bool, error)
	MarkSucceeded(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, errMsg string) error
	// Requeue 让已失败或需续跑的任务重新进入发布流程，payload 可替换
	Requeue(ctx context.Context, id int64, payloadJson string, nextRetryAt time.Time) error
}
