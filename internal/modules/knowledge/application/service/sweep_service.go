package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"EchoDesk/internal/modules/knowledge/domain/entry"
	"EchoDesk/internal/modules/knowledge/domain/file"
	"EchoDesk/internal/modules/knowledge/domain/repository"
	"EchoDesk/pkg/redis"
	"EchoDesk/pkg/util"
	"EchoDesk/pkg/zlog"

	"go.uber.org/zap"
)

// SweepService delete_sweep 任务的执行者。逻辑删除在墓碑落库时已生效，
// 这里只负责把索引条目和底层 blob 物理清掉。
// 墓碑存在与否是"文件是否还在删除中"的唯一事实
type SweepService struct {
	store     repository.NamespaceStore
	tombRepo  repository.TombstoneRepository
	blobStore repository.BlobStore
	notifRepo repository.NotificationRepository
	changes   *ChangeNotifier

	batchSize int
	maxPasses int
}

func NewSweepService(
	store repository.NamespaceStore,
	tombRepo repository.TombstoneRepository,
	blobStore repository.BlobStore,
	notifRepo repository.NotificationRepository,
	changes *ChangeNotifier,
	batchSize, maxPasses int,
) *SweepService {
	if batchSize <= 0 {
		batchSize = 200
	}
	if maxPasses <= 0 {
		maxPasses = 5
	}
	return &SweepService{
		store:     store,
		tombRepo:  tombRepo,
		blobStore: blobStore,
		notifRepo: notifRepo,
		changes:   changes,
		batchSize: batchSize,
		maxPasses: maxPasses,
	}
}

func (s *SweepService) Process(ctx context.Context, task *file.IngestTask) error {
	var p file.DeleteSweepPayload
	if err := json.Unmarshal([]byte(task.PayloadJson), &p); err != nil {
		return fmt.Errorf("invalid delete_sweep payload: %w", err)
	}
	if strings.TrimSpace(p.Namespace) == "" {
		return errors.New("delete_sweep payload missing namespace")
	}

	if strings.TrimSpace(p.GroupKey) == "" {
		return s.purgeNamespace(ctx, task.OrgId, p.Namespace)
	}
	return s.SweepGroup(ctx, task.OrgId, p.Namespace, p.GroupKey)
}

// RunSweeper 周期兜底：把到期未完成的墓碑重新清扫。
// 任务投递丢失或清扫中途失败都由这条路径追平
func (s *SweepService) RunSweeper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		pending, err := s.tombRepo.ListPending(ctx, time.Now(), 50)
		if err != nil {
			zlog.Warn("sweeper list pending failed", zap.Error(err))
			continue
		}
		for i := range pending {
			ts := pending[i]
			if ts.SweepPasses >= s.maxPasses {
				// 墓碑保留，文件保持隐藏，不再消耗清扫配额
				continue
			}
			if err := s.SweepGroup(ctx, ts.OrgId, ts.Namespace, ts.GroupKey); err != nil {
				zlog.Warn("sweep pass failed",
					zap.String("namespace", ts.Namespace),
					zap.String("group_key", ts.GroupKey),
					zap.Int("passes", ts.SweepPasses),
					zap.Error(err))
			}
		}
	}
}

// SweepGroup 对单个文件做一轮完整的命名空间扫描。
// 扫描必须走到头，大命名空间里匹配条目可能很稀疏
func (s *SweepService) SweepGroup(ctx context.Context, orgID, namespace, groupKey string) error {
	// 多实例部署时同一个文件只让一个实例扫，拿不到锁的直接让行，
	// 墓碑还在，下个周期自然会再来
	if redis.IsConnected() {
		lockKey := "kb:sweep:" + namespace + ":" + groupKey
		got, err := redis.Lock(ctx, lockKey, 2*time.Minute)
		if err != nil {
			zlog.Warn("acquire sweep lock failed", zap.String("key", lockKey), zap.Error(err))
		} else if !got {
			return nil
		} else {
			defer func() {
				if err := redis.Unlock(context.Background(), lockKey); err != nil {
					zlog.Warn("release sweep lock failed", zap.String("key", lockKey), zap.Error(err))
				}
			}()
		}
	}

	ts, err := s.tombRepo.GetByGroupKey(ctx, namespace, groupKey)
	if err != nil {
		return err
	}

	sweepErr := s.sweepScan(ctx, orgID, namespace, groupKey)
	if sweepErr != nil {
		if ts != nil {
			next := time.Now().Add(time.Duration(ts.SweepPasses+1) * time.Minute)
			if err := s.tombRepo.AdvancePass(ctx, ts.Id, next); err != nil {
				zlog.Warn("advance sweep pass failed", zap.Int64("tombstone_id", ts.Id), zap.Error(err))
			}
		} else {
			// 没有墓碑兜底，周期 sweeper 不会再来，失败必须留痕
			zlog.Error("sweep failed with no tombstone to retry",
				zap.String("namespace", namespace),
				zap.String("group_key", groupKey),
				zap.Error(sweepErr))
		}
		return sweepErr
	}

	// 扫描走完才算完成：blob 删除、墓碑移除、通知
	if ts != nil {
		if strings.TrimSpace(ts.StorageId) != "" {
			if err := s.blobStore.Delete(ctx, ts.StorageId); err != nil {
				zlog.Warn("delete blob failed", zap.String("storage_id", ts.StorageId), zap.Error(err))
			}
		}
		if err := s.tombRepo.MarkSwept(ctx, ts.Id); err != nil {
			return err
		}

		notif := &file.Notification{
			NotificationId: util.GenerateUUID(),
			OrgId:          orgID,
			Kind:           file.NotificationKindFileDeleted,
			FileName:       ts.DisplayName,
			Namespace:      namespace,
			Message:        ts.DisplayName + " has been deleted",
			CreatedAt:      time.Now(),
		}
		if err := s.notifRepo.Create(ctx, notif); err != nil {
			zlog.Warn("create deletion notification failed", zap.Error(err))
		}
	}

	s.changes.TrackChange(orgID, namespace, groupKey, ChangeFileDeleted)
	zlog.Info("sweep completed",
		zap.String("namespace", namespace),
		zap.String("group_key", groupKey))
	return nil
}

func (s *SweepService) sweepScan(ctx context.Context, orgID, namespace, groupKey string) error {
	// 游标是偏移量，边删边翻页会把后移的条目翻漏。先只读扫完收集
	// 全部受害者，再分批删除
	cursor := ""
	var victims []string
	for {
		page, err := s.store.List(ctx, namespace, cursor, s.batchSize)
		if err != nil {
			return err
		}
		for _, e := range page.Entries {
			if entry.GroupKeyOf(e) == groupKey {
				victims = append(victims, e.ID)
			}
		}
		if page.IsDone {
			break
		}
		cursor = page.ContinueCursor
	}

	for len(victims) > 0 {
		batch := victims
		if len(batch) > s.batchSize {
			batch = victims[:s.batchSize]
		}
		if err := s.store.Delete(ctx, namespace, batch); err != nil {
			return err
		}
		victims = victims[len(batch):]
		s.changes.TrackChange(orgID, namespace, groupKey, ChangeSweepProgress)
	}
	return nil
}

// purgeNamespace 知识库删除后的整库清理：索引条目、底层 blob、
// 残留墓碑一起了结
func (s *SweepService) purgeNamespace(ctx context.Context, orgID, namespace string) error {
	storageIDs := make(map[string]struct{})
	for {
		page, err := s.store.List(ctx, namespace, "", s.batchSize)
		if err != nil {
			return err
		}
		if len(page.Entries) == 0 {
			break
		}

		ids := make([]string, 0, len(page.Entries))
		for _, e := range page.Entries {
			ids = append(ids, e.ID)
			if sid := strings.TrimSpace(e.Metadata.StorageID); sid != "" {
				storageIDs[sid] = struct{}{}
			}
		}
		if err := s.store.Delete(ctx, namespace, ids); err != nil {
			return err
		}

		if page.IsDone {
			break
		}
	}

	// 单文件删除留下的墓碑也要收口，它们的 blob 可能已不在索引里
	pending, err := s.tombRepo.PendingGroupKeys(ctx, namespace)
	if err != nil {
		zlog.Warn("list pending tombstones failed", zap.String("namespace", namespace), zap.Error(err))
	}
	for _, gk := range pending {
		ts, err := s.tombRepo.GetByGroupKey(ctx, namespace, gk)
		if err != nil || ts == nil {
			continue
		}
		if sid := strings.TrimSpace(ts.StorageId); sid != "" {
			storageIDs[sid] = struct{}{}
		}
		if err := s.tombRepo.MarkSwept(ctx, ts.Id); err != nil {
			zlog.Warn("mark tombstone swept failed", zap.Int64("tombstone_id", ts.Id), zap.Error(err))
		}
	}

	for sid := range storageIDs {
		if err := s.blobStore.Delete(ctx, sid); err != nil {
			zlog.Warn("delete blob failed", zap.String("storage_id", sid), zap.Error(err))
		}
	}

	s.changes.TrackChange(orgID, namespace, "", ChangeFileDeleted)
	zlog.Info("namespace purged",
		zap.String("namespace", namespace),
		zap.Int("blobs", len(storageIDs)))
	return nil
}
