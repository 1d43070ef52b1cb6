package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"EchoDesk/internal/modules/knowledge/domain/entry"
	"EchoDesk/internal/modules/knowledge/domain/file"
	"EchoDesk/internal/modules/knowledge/domain/repository"
	"EchoDesk/internal/modules/knowledge/infrastructure/chunking"
	"EchoDesk/internal/modules/knowledge/infrastructure/extract"
	"EchoDesk/pkg/util"
	"EchoDesk/pkg/xerr"
	"EchoDesk/pkg/zlog"

	"go.uber.org/zap"
)

// IngestService process_file 任务的编排：取字节、抽取、分块、写索引。
// 任何阶段失败都收敛成一条 error 条目，placeholder 从不悬空
type IngestService struct {
	blobStore repository.BlobStore
	store     repository.NamespaceStore
	notifRepo repository.NotificationRepository
	usageRepo repository.UsageRepository
	extractor *extract.Extractor
	chunker   chunking.Chunker
	changes   *ChangeNotifier
	vectorDim int
}

func NewIngestService(
	blobStore repository.BlobStore,
	store repository.NamespaceStore,
	notifRepo repository.NotificationRepository,
	usageRepo repository.UsageRepository,
	extractor *extract.Extractor,
	chunker chunking.Chunker,
	changes *ChangeNotifier,
	vectorDim int,
) *IngestService {
	return &IngestService{
		blobStore: blobStore,
		store:     store,
		notifRepo: notifRepo,
		usageRepo: usageRepo,
		extractor: extractor,
		chunker:   chunker,
		changes:   changes,
		vectorDim: vectorDim,
	}
}

func (s *IngestService) Process(ctx context.Context, task *file.IngestTask) error {
	var p file.ProcessFilePayload
	if err := json.Unmarshal([]byte(task.PayloadJson), &p); err != nil {
		return fmt.Errorf("invalid process_file payload: %w", err)
	}
	if strings.TrimSpace(p.Namespace) == "" || strings.TrimSpace(p.StorageID) == "" {
		return errors.New("process_file payload missing namespace/storage_id")
	}

	if err := s.processFile(ctx, task, p); err != nil {
		s.convertToError(ctx, task.OrgId, p, err)
		return err
	}
	return nil
}

func (s *IngestService) processFile(ctx context.Context, task *file.IngestTask, p file.ProcessFilePayload) error {
	blob, err := s.blobStore.Get(ctx, p.StorageID)
	if err != nil {
		return err
	}
	if blob == nil {
		return fmt.Errorf("stored file %s not found", p.StorageID)
	}

	s.recordUsage(ctx, task.OrgId, file.UsageStorageBytes, blob.SizeBytes, "bytes",
		"storage:"+strconv.FormatInt(task.Id, 10))

	text, err := s.extractor.Extract(ctx, extract.FileDescriptor{
		StorageID: p.StorageID,
		Filename:  blob.Filename,
		MimeType:  blob.MimeType,
		OrgID:     task.OrgId,
		Bytes:     blob.Data,
	})
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return errors.New("no text content extracted")
	}

	chunks, err := s.chunker.Chunk(ctx, text)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return errors.New("chunking produced no chunks")
	}

	groupKey := entry.GroupKey(p.StorageID, p.DisplayName, p.KBUuid, p.SourceType)

	entries := make([]entry.Entry, 0, len(chunks))
	var embedTokens int64
	for i, c := range chunks {
		entries = append(entries, entry.Entry{
			Namespace:   p.Namespace,
			Key:         entry.ChunkKey(p.DisplayName, i, len(chunks)),
			Title:       p.DisplayName,
			Content:     c.Text,
			ContentHash: util.Sha256Hex([]byte(c.Text)),
			Status:      entry.Ready{},
			Metadata: entry.Metadata{
				StorageID:        p.StorageID,
				UploadedBy:       p.UploadedBy,
				DisplayName:      p.DisplayName,
				OriginalFilename: p.Filename,
				Category:         p.Category,
				KnowledgeBaseID:  p.KBUuid,
				SourceType:       p.SourceType,
				ChunkIndex:       i,
				TotalChunks:      len(chunks),
			},
			CreatedAt: time.Now(),
		})
		embedTokens += int64((len(c.Text) + 3) / 4)
	}

	s.recordUsage(ctx, task.OrgId, file.UsageVectorStorageBytes,
		int64(len(chunks)*s.vectorDim*4), "bytes",
		"vector:"+strconv.FormatInt(task.Id, 10))
	s.recordUsage(ctx, task.OrgId, file.UsageEmbeddingTokens, embedTokens, "tokens",
		"embed:"+strconv.FormatInt(task.Id, 10))

	// 重试场景：同一文件的旧条目（含旧分块和旧 error 标记）先清掉
	if err := s.deleteGroupEntries(ctx, p.Namespace, groupKey, p.EntryID); err != nil {
		return err
	}

	if _, err := s.store.AddBatch(ctx, entries); err != nil {
		// 分块写入失败不允许留下半截索引
		s.purgeGroupBestEffort(ctx, p.Namespace, groupKey, p.EntryID)
		return err
	}

	if err := s.store.Delete(ctx, p.Namespace, []string{p.EntryID}); err != nil {
		zlog.Warn("delete placeholder failed",
			zap.String("namespace", p.Namespace),
			zap.String("entry_id", p.EntryID),
			zap.Error(err))
	}

	s.finalize(ctx, task.OrgId, p, file.NotificationKindFileReady,
		p.DisplayName+" is ready", ChangeFileReady)

	zlog.Info("file ingested",
		zap.String("org_id", task.OrgId),
		zap.String("namespace", p.Namespace),
		zap.String("storage_id", p.StorageID),
		zap.Int("chunks", len(chunks)))
	return nil
}

// convertToError 失败收敛：placeholder 删除，留一条 error 条目
func (s *IngestService) convertToError(ctx context.Context, orgID string, p file.ProcessFilePayload, cause error) {
	msg := userFacingError(cause)

	if err := s.store.Delete(ctx, p.Namespace, []string{p.EntryID}); err != nil {
		zlog.Warn("delete placeholder on failure failed",
			zap.String("entry_id", p.EntryID), zap.Error(err))
	}

	errEntry := entry.Entry{
		Namespace: p.Namespace,
		Key:       p.DisplayName,
		Title:     p.DisplayName,
		Status:    entry.Failed{Message: msg},
		Metadata: entry.Metadata{
			StorageID:        p.StorageID,
			UploadedBy:       p.UploadedBy,
			DisplayName:      p.DisplayName,
			OriginalFilename: p.Filename,
			Category:         p.Category,
			KnowledgeBaseID:  p.KBUuid,
			SourceType:       p.SourceType,
		},
		CreatedAt: time.Now(),
	}
	if _, err := s.store.Add(ctx, errEntry); err != nil {
		zlog.Error("write error entry failed",
			zap.String("namespace", p.Namespace),
			zap.String("storage_id", p.StorageID),
			zap.Error(err))
	}

	s.finalize(ctx, orgID, p, file.NotificationKindFileError, msg, ChangeFileError)
}

func (s *IngestService) finalize(ctx context.Context, orgID string, p file.ProcessFilePayload, kind, msg, changeType string) {
	if err := s.notifRepo.DeleteStaleProcessing(ctx, orgID, p.DisplayName); err != nil {
		zlog.Warn("delete stale processing notification failed", zap.Error(err))
	}
	notif := &file.Notification{
		NotificationId: util.GenerateUUID(),
		OrgId:          orgID,
		Kind:           kind,
		FileName:       p.DisplayName,
		Namespace:      p.Namespace,
		Message:        msg,
		CreatedAt:      time.Now(),
	}
	if err := s.notifRepo.Create(ctx, notif); err != nil {
		zlog.Warn("create notification failed", zap.String("kind", kind), zap.Error(err))
	}
	s.changes.TrackChange(orgID, p.Namespace,
		entry.GroupKey(p.StorageID, p.DisplayName, p.KBUuid, p.SourceType), changeType)
}

// deleteGroupEntries 全量扫描命名空间，删除同组的旧条目。keepID 保留
func (s *IngestService) deleteGroupEntries(ctx context.Context, namespace, groupKey, keepID string) error {
	// 游标是偏移量，边删边翻页会漏掉后移的条目。先扫完再删
	cursor := ""
	var victims []string
	for {
		page, err := s.store.List(ctx, namespace, cursor, listBatchSize)
		if err != nil {
			return err
		}
		for _, e := range page.Entries {
			if e.ID == keepID {
				continue
			}
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
		if len(batch) > listBatchSize {
			batch = victims[:listBatchSize]
		}
		if err := s.store.Delete(ctx, namespace, batch); err != nil {
			return err
		}
		victims = victims[len(batch):]
	}
	return nil
}

func (s *IngestService) purgeGroupBestEffort(ctx context.Context, namespace, groupKey, keepID string) {
	if err := s.deleteGroupEntries(ctx, namespace, groupKey, keepID); err != nil {
		zlog.Warn("purge partial chunks failed",
			zap.String("namespace", namespace),
			zap.String("group_key", groupKey),
			zap.Error(err))
	}
}

func (s *IngestService) recordUsage(ctx context.Context, orgID, kind string, amount int64, unit, dedupKey string) {
	if s.usageRepo == nil || amount <= 0 {
		return
	}
	rec := &file.UsageRecord{
		OrgId:     orgID,
		Kind:      kind,
		Amount:    amount,
		Unit:      unit,
		DedupKey:  dedupKey,
		CreatedAt: time.Now(),
	}
	if err := s.usageRepo.Record(ctx, rec); err != nil {
		zlog.Warn("usage record failed", zap.String("kind", kind), zap.Error(err))
	}
}

// userFacingError 给仪表盘看的短消息，预定义错误原样透出
func userFacingError(err error) string {
	if err == nil {
		return ""
	}
	var ce *xerr.CodeError
	if errors.As(err, &ce) {
		return ce.Message
	}
	msg := strings.TrimSpace(err.Error())
	if len(msg) > 255 {
		msg = msg[:255]
	}
	return "Failed to process file: " + msg
}
