package repository

import (
	"context"
	"time"

	"EchoDesk/internal/modules/knowledge/domain/file"
)

type TombstoneRepository interface {
	// Upsert 同一 namespace+groupKey 已有墓碑时保持幂等
	Upsert(ctx context.Context, ts *file.FileTombstone) error
	GetByGroupKey(ctx context.Context, namespace, groupKey string) (*file.FileTombstone, error)
	// PendingGroupKeys 检索与列表过滤用：该命名空间下所有待清理的分组键
	PendingGroupKeys(ctx context.Context, namespace string) ([]string, error)
	ListPending(ctx context.Context, now time.Time, limit int) ([]file.FileTombstone, error)
	// AdvancePass 记录一轮清扫，未达上限时安排下一轮
	AdvancePass(ctx context.Context, id int64, nextSweepAt time.Time) error
	MarkSwept(ctx context.Context, id int64) error
}
