package persistence

import (
	"context"
	"errors"

	"EchoDesk/internal/modules/knowledge/domain/file"
	"EchoDesk/internal/modules/knowledge/domain/repository"

	"gorm.io/gorm"
)

// blobStoreImpl 把原始文件字节放在 MySQL longblob 里，
// 单机部署够用，换对象存储时只需替换本实现
type blobStoreImpl struct {
	db *gorm.DB
}

func NewBlobStore(db *gorm.DB) repository.BlobStore {
	return &blobStoreImpl{db: db}
}

func (r *blobStoreImpl) Save(ctx context.Context, blob *file.BlobObject) error {
	if blob == nil {
		return nil
	}
	return r.db.WithContext(ctx).Create(blob).Error
}

func (r *blobStoreImpl) Get(ctx context.Context, storageID string) (*file.BlobObject, error) {
	var blob file.BlobObject
	err := r.db.WithContext(ctx).Where("storage_id = ?", storageID).Take(&blob).Error
	if err == nil {
		return &blob, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return nil, err
}

func (r *blobStoreImpl) Stat(ctx context.Context, storageID string) (*file.BlobObject, error) {
	var blob file.BlobObject
	err := r.db.WithContext(ctx).
		Select("id", "storage_id", "org_id", "filename", "mime_type", "size_bytes", "created_at").
		Where("storage_id = ?", storageID).Take(&blob).Error
	if err == nil {
		return &blob, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return nil, err
}

func (r *blobStoreImpl) Delete(ctx context.Context, storageID string) error {
	return r.db.WithContext(ctx).Where("storage_id = ?", storageID).Delete(&file.BlobObject{}).Error
}
