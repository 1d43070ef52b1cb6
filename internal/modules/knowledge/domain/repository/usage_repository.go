package repository

import (
	"context"

	"EchoDesk/internal/modules/knowledge/domain/file"
)

type UsageRepository interface {
	// Record 写入一条用量流水，dedup_key 冲突时静默忽略
	Record(ctx context.Context, rec *file.UsageRecord) error
	TotalByKind(ctx context.Context, orgID string) (map[string]int64, error)
}
