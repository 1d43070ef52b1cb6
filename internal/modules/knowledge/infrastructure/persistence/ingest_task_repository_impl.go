package persistence

import (
	"context"
	"errors"
	"strings"
	"time"

	"EchoDesk/internal/modules/knowledge/domain/file"
	"EchoDesk/internal/modules/knowledge/domain/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ingestTaskRepositoryImpl struct {
	db *gorm.DB
}

func NewIngestTaskRepository(db *gorm.DB) repository.IngestTaskRepository {
	return &ingestTaskRepositoryImpl{db: db}
}

func (r *ingestTaskRepositoryImpl) Create(ctx context.Context, task *file.IngestTask) error {
	if task == nil {
		return nil
	}
	return r.db.WithContext(ctx).Create(task).Error
}

func (r *ingestTaskRepositoryImpl) GetByID(ctx context.Context, id int64) (*file.IngestTask, error) {
	var task file.IngestTask
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&task).Error
	if err == nil {
		return &task, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return nil, err
}

func (r *ingestTaskRepositoryImpl) ClaimForPublish(ctx context.Context, now time.Time, limit int) ([]file.IngestTask, error) {
	if limit <= 0 {
		limit = 100
	}

	var out []file.IngestTask
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var tasks []file.IngestTask
		q := tx.Model(&file.IngestTask{}).
			Where("(publish_status = ? OR publish_status = ?)", file.PublishStatusPending, file.PublishStatusFailed).
			Where("(next_retry_at IS NULL OR next_retry_at <= ?)", now).
			Order("id ASC").
			Limit(limit).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		if err := q.Find(&tasks).Error; err != nil {
			return err
		}
		if len(tasks) == 0 {
			out = []file.IngestTask{}
			return nil
		}

		ids := make([]int64, 0, len(tasks))
		for i := range tasks {
			ids = append(ids, tasks[i].Id)
		}
		if err := tx.Model(&file.IngestTask{}).
			Where("id IN ?", ids).
			Updates(map[string]any{"publish_status": file.PublishStatusPublishing, "updated_at": now}).Error; err != nil {
			return err
		}

		out = tasks
		return nil
	})
	return out, err
}

func (r *ingestTaskRepositoryImpl) MarkPublished(ctx context.Context, id int64, topic string, partition int, offset int64, publishedAt time.Time) error {
	topic = strings.TrimSpace(topic)
	updates := map[string]any{
		"publish_status":  file.PublishStatusPublished,
		"kafka_topic":     topic,
		"kafka_partition": partition,
		"kafka_offset":    offset,
		"published_at":    publishedAt,
		"last_error":      "",
		"updated_at":      time.Now(),
	}
	return r.db.WithContext(ctx).Model(&file.IngestTask{}).Where("id = ?", id).Updates(updates).Error
}

func (r *ingestTaskRepositoryImpl) MarkPublishFailed(ctx context.Context, id int64, nextRetryAt time.Time, errMsg string) error {
	errMsg = strings.TrimSpace(errMsg)
	if len(errMsg) > 255 {
		errMsg = errMsg[:255]
	}
	updates := map[string]any{
		"publish_status": file.PublishStatusFailed,
		"retry_count":    gorm.Expr("retry_count + 1"),
		"next_retry_at":  nextRetryAt,
		"last_error":     errMsg,
		"updated_at":     time.Now(),
	}
	return r.db.WithContext(ctx).Model(&file.IngestTask{}).Where("id = ?", id).Updates(updates).Error
}

func (r *ingestTaskRepositoryImpl) TryMarkProcessing(ctx context.Context, id int64, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&file.IngestTask{}).
		Where("id = ? AND status IN ?", id, []int8{file.TaskStatusPending, file.TaskStatusFailed}).
		Updates(map[string]any{"status": file.TaskStatusProcessing, "last_error": "", "updated_at": now})

	return res.RowsAffected > 0, res.Error
}

func (r *ingestTaskRepositoryImpl) MarkSucceeded(ctx context.Context, id int64) error {
	updates := map[string]any{"status": file.TaskStatusSucceeded, "last_error": "", "updated_at": time.Now()}
	return r.db.WithContext(ctx).Model(&file.IngestTask{}).Where("id = ?", id).Updates(updates).Error
}

func (r *ingestTaskRepositoryImpl) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	errMsg = strings.TrimSpace(errMsg)
	if len(errMsg) > 255 {
		errMsg = errMsg[:255]
	}
	updates := map[string]any{
		"status":      file.TaskStatusFailed,
		"retry_count": gorm.Expr("retry_count + ?", 1),
		"last_error":  errMsg,
		"updated_at":  time.Now(),
	}
	return r.db.WithContext(ctx).Model(&file.IngestTask{}).Where("id = ?", id).Updates(updates).Error
}

func (r *ingestTaskRepositoryImpl) Requeue(ctx context.Context, id int64, payloadJson string, nextRetryAt time.Time) error {
	updates := map[string]any{
		"publish_status": file.PublishStatusPending,
		"status":         file.TaskStatusPending,
		"next_retry_at":  nextRetryAt,
		"last_error":     "",
		"updated_at":     time.Now(),
	}
	if strings.TrimSpace(payloadJson) != "" {
		updates["payload_json"] = payloadJson
	}
	return r.db.WithContext(ctx).Model(&file.IngestTask{}).Where("id = ?", id).Updates(updates).Error
}
