package repository

import (
	"context"

	"EchoDesk/internal/modules/knowledge/domain/file"
)

// BlobStore 原始文件存储。摄取 worker 按 storageID 取回字节
type BlobStore interface {
	Save(ctx context.Context, blob *file.BlobObject) error
	Get(ctx context.Context, storageID string) (*file.BlobObject, error)
	// Stat 只取元信息不加载文件内容
	Stat(ctx context.Context, storageID string) (*file.BlobObject, error)
	Delete(ctx context.Context, storageID string) error
}
