package service

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"EchoDesk/internal/modules/knowledge/application/dto/request"
	"EchoDesk/internal/modules/knowledge/application/dto/respond"
	"EchoDesk/internal/modules/knowledge/domain/entry"
	"EchoDesk/internal/modules/knowledge/domain/file"
	"EchoDesk/internal/modules/knowledge/domain/kb"
	"EchoDesk/internal/modules/knowledge/domain/repository"
	"EchoDesk/pkg/util"
	"EchoDesk/pkg/xerr"
	"EchoDesk/pkg/zlog"

	"go.uber.org/zap"
)

const (
	defaultTargetUnique = 100
	listBatchSize       = 200
)

// UploadCommand 上传参数。字节已由接口层读出
type UploadCommand struct {
	KBUuid      string
	DisplayName string
	Category    string
	Filename    string
	MimeType    string
	Data        []byte
}

// FileService 文件生命周期：上传受理、按文件聚合列表、删除与重试。
// 实际的抽取与分块在后台任务里完成，上传路径只做落库和调度
type FileService interface {
	Upload(ctx context.Context, orgID, userID string, cmd UploadCommand) (*respond.UploadRespond, error)
	List(ctx context.Context, orgID string, req request.ListFilesRequest) (*respond.ListFilesRespond, error)
	DeleteFile(ctx context.Context, orgID, userID string, req request.DeleteFileRequest) error
	RetryFileProcessing(ctx context.Context, orgID, userID string, req request.RetryFileRequest) error
}

type fileServiceImpl struct {
	kbRepo    repository.KnowledgeBaseRepository
	blobStore repository.BlobStore
	store     repository.NamespaceStore
	taskRepo  repository.IngestTaskRepository
	tombRepo  repository.TombstoneRepository
	notifRepo repository.NotificationRepository
	changes   *ChangeNotifier

	targetUniqueFloor int
	minScan           int
	maxScan           int
}

func NewFileService(
	kbRepo repository.KnowledgeBaseRepository,
	blobStore repository.BlobStore,
	store repository.NamespaceStore,
	taskRepo repository.IngestTaskRepository,
	tombRepo repository.TombstoneRepository,
	notifRepo repository.NotificationRepository,
	changes *ChangeNotifier,
	minScan, maxScan int,
) FileService {
	if minScan <= 0 {
		minScan = 1000
	}
	if maxScan <= 0 {
		maxScan = 5000
	}
	return &fileServiceImpl{
		kbRepo:            kbRepo,
		blobStore:         blobStore,
		store:             store,
		taskRepo:          taskRepo,
		tombRepo:          tombRepo,
		notifRepo:         notifRepo,
		changes:           changes,
		targetUniqueFloor: defaultTargetUnique,
		minScan:           minScan,
		maxScan:           maxScan,
	}
}

func (s *fileServiceImpl) resolveKB(ctx context.Context, orgID, kbUuid string) (*kb.KnowledgeBase, error) {
	base, err := s.kbRepo.GetByUuid(ctx, strings.TrimSpace(orgID), strings.TrimSpace(kbUuid))
	if err != nil {
		return nil, err
	}
	if base == nil {
		return nil, xerr.New(xerr.NotFound, "knowledge base not found")
	}
	return base, nil
}

func (s *fileServiceImpl) Upload(ctx context.Context, orgID, userID string, cmd UploadCommand) (*respond.UploadRespond, error) {
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return nil, xerr.New(xerr.Unauthorized, "missing organization")
	}
	if len(cmd.Data) == 0 {
		return nil, xerr.New(xerr.BadRequest, "file is empty")
	}
	filename := strings.TrimSpace(cmd.Filename)
	if filename == "" {
		return nil, xerr.New(xerr.BadRequest, "filename is required")
	}
	displayName := strings.TrimSpace(cmd.DisplayName)
	if displayName == "" {
		displayName = filename
	}

	base, err := s.resolveKB(ctx, orgID, cmd.KBUuid)
	if err != nil {
		return nil, err
	}

	storageID := util.GenerateUUID()
	blob := &file.BlobObject{
		StorageId: storageID,
		OrgId:     orgID,
		Filename:  filename,
		MimeType:  strings.TrimSpace(cmd.MimeType),
		SizeBytes: int64(len(cmd.Data)),
		Data:      cmd.Data,
		CreatedAt: time.Now(),
	}
	if err := s.blobStore.Save(ctx, blob); err != nil {
		return nil, err
	}

	// 零内容 placeholder，上传路径不做抽取
	placeholder := entry.Entry{
		Namespace: base.Namespace,
		Key:       displayName,
		Title:     displayName,
		Status:    entry.Processing{},
		Metadata: entry.Metadata{
			StorageID:        storageID,
			UploadedBy:       strings.TrimSpace(userID),
			DisplayName:      displayName,
			OriginalFilename: filename,
			Category:         strings.TrimSpace(cmd.Category),
			KnowledgeBaseID:  base.Uuid,
			SourceType:       kb.SourceTypeUploaded,
		},
		CreatedAt: time.Now(),
	}
	entryID, err := s.store.Add(ctx, placeholder)
	if err != nil {
		return nil, err
	}

	notif := &file.Notification{
		NotificationId: util.GenerateUUID(),
		OrgId:          orgID,
		Kind:           file.NotificationKindFileProcessing,
		FileName:       displayName,
		Namespace:      base.Namespace,
		Message:        "Processing " + displayName,
		CreatedAt:      time.Now(),
	}
	if err := s.notifRepo.Create(ctx, notif); err != nil {
		zlog.Warn("create processing notification failed", zap.Error(err))
	}

	payload, err := json.Marshal(file.ProcessFilePayload{
		StorageID:   storageID,
		EntryID:     entryID,
		Namespace:   base.Namespace,
		KBUuid:      base.Uuid,
		Filename:    filename,
		MimeType:    strings.TrimSpace(cmd.MimeType),
		DisplayName: displayName,
		Category:    strings.TrimSpace(cmd.Category),
		SourceType:  kb.SourceTypeUploaded,
		UploadedBy:  strings.TrimSpace(userID),
	})
	if err != nil {
		return nil, err
	}
	task := &file.IngestTask{
		TaskType:    file.TaskTypeProcessFile,
		OrgId:       orgID,
		Namespace:   base.Namespace,
		DedupKey:    "process:" + storageID,
		PayloadJson: string(payload),
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	if err := s.taskRepo.Create(ctx, task); err != nil {
		// 任务没排上，placeholder 不能悬着
		_ = s.store.Delete(ctx, base.Namespace, []string{entryID})
		return nil, err
	}

	s.changes.TrackChange(orgID, base.Namespace, entry.GroupKeyOf(placeholder), ChangeFileUploaded)
	zlog.Info("file upload accepted",
		zap.String("org_id", orgID),
		zap.String("storage_id", storageID),
		zap.String("namespace", base.Namespace),
		zap.Int64("size_bytes", blob.SizeBytes))

	return &respond.UploadRespond{StorageID: storageID, EntryID: entryID, TaskID: task.Id}, nil
}

type fileGroup struct {
	best entry.Entry
}

func (s *fileServiceImpl) List(ctx context.Context, orgID string, req request.ListFilesRequest) (*respond.ListFilesRespond, error) {
	base, err := s.resolveKB(ctx, orgID, req.KBUuid)
	if err != nil {
		return nil, err
	}

	targetUnique := req.NumItems
	if targetUnique < s.targetUniqueFloor {
		targetUnique = s.targetUniqueFloor
	}

	groups := make(map[string]*fileGroup)
	scanned := 0
	truncated := false
	cursor := ""

	for {
		page, err := s.store.List(ctx, base.Namespace, cursor, listBatchSize)
		if err != nil {
			return nil, err
		}
		scanned += len(page.Entries)

		for _, e := range page.Entries {
			key := entry.GroupKeyOf(e)
			g, ok := groups[key]
			if !ok {
				groups[key] = &fileGroup{best: e}
				continue
			}
			if better(e, g.best) {
				g.best = e
			}
		}

		if page.IsDone {
			break
		}
		// 扫描足够多且凑够了目标数量就停，限制大命名空间的列表成本
		if len(groups) >= targetUnique && scanned >= s.minScan {
			truncated = true
			break
		}
		if scanned >= s.maxScan {
			truncated = true
			break
		}
		cursor = page.ContinueCursor
	}

	tombstoned, err := s.tombRepo.PendingGroupKeys(ctx, base.Namespace)
	if err != nil {
		return nil, err
	}
	hidden := make(map[string]struct{}, len(tombstoned))
	for _, k := range tombstoned {
		hidden[k] = struct{}{}
	}

	category := strings.TrimSpace(req.Category)
	items := make([]respond.FileItemRespond, 0, len(groups))
	for key, g := range groups {
		if category != "" && g.best.Metadata.Category != category {
			continue
		}
		item := summarize(key, g.best)
		// 墓碑覆盖的文件组整体呈现为 deleting，真实状态和错误信息不再外露
		if _, gone := hidden[key]; gone {
			item.Status = entry.StatusDeleting
			item.ErrorMessage = ""
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })

	return &respond.ListFilesRespond{Files: items, Truncated: truncated}, nil
}

// better ready > error > processing，同级取 chunk index 最小的那条做代表
func better(a, b entry.Entry) bool {
	ra, rb := statusRank(a), statusRank(b)
	if ra != rb {
		return ra > rb
	}
	return a.Metadata.ChunkIndex < b.Metadata.ChunkIndex
}

func statusRank(e entry.Entry) int {
	if e.Status == nil {
		return 0
	}
	return e.Status.Rank()
}

func summarize(groupKey string, e entry.Entry) respond.FileItemRespond {
	item := respond.FileItemRespond{
		EntryID:         e.ID,
		GroupKey:        groupKey,
		DisplayName:     e.Metadata.DisplayName,
		Filename:        e.Metadata.OriginalFilename,
		Category:        e.Metadata.Category,
		StorageID:       e.Metadata.StorageID,
		KnowledgeBaseID: e.Metadata.KnowledgeBaseID,
		SourceType:      e.Metadata.SourceType,
		TotalChunks:     e.Metadata.TotalChunks,
		CreatedAt:       e.CreatedAt,
	}
	if item.DisplayName == "" {
		item.DisplayName = e.Title
	}
	if e.Status != nil {
		item.Status = e.Status.Kind()
		if failed, ok := e.Status.(entry.Failed); ok {
			item.ErrorMessage = failed.Message
		}
	} else {
		item.Status = entry.StatusProcessing
	}
	return item
}

func (s *fileServiceImpl) DeleteFile(ctx context.Context, orgID, userID string, req request.DeleteFileRequest) error {
	base, err := s.resolveKB(ctx, orgID, req.KBUuid)
	if err != nil {
		return err
	}

	e, err := s.store.Get(ctx, base.Namespace, strings.TrimSpace(req.EntryID))
	if err != nil {
		return err
	}
	if e == nil {
		return xerr.New(xerr.NotFound, "entry not found")
	}

	groupKey := entry.GroupKeyOf(*e)
	storageID := strings.TrimSpace(e.Metadata.StorageID)

	// 非上传来源没有底层 blob，同步删掉条目即可
	if storageID == "" {
		if err := s.store.Delete(ctx, base.Namespace, []string{e.ID}); err != nil {
			return err
		}
		s.changes.TrackChange(orgID, base.Namespace, groupKey, ChangeFileDeleted)
		return nil
	}

	ts := &file.FileTombstone{
		OrgId:       strings.TrimSpace(orgID),
		Namespace:   base.Namespace,
		GroupKey:    groupKey,
		DisplayName: e.Metadata.DisplayName,
		StorageId:   storageID,
		RequestedBy: strings.TrimSpace(userID),
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	if err := s.tombRepo.Upsert(ctx, ts); err != nil {
		return err
	}

	payload, _ := json.Marshal(file.DeleteSweepPayload{Namespace: base.Namespace, GroupKey: groupKey})
	task := &file.IngestTask{
		TaskType:    file.TaskTypeDeleteSweep,
		OrgId:       strings.TrimSpace(orgID),
		Namespace:   base.Namespace,
		DedupKey:    "sweep:" + base.Namespace + ":" + groupKey,
		PayloadJson: string(payload),
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	if err := s.taskRepo.Create(ctx, task); err != nil {
		// 墓碑已落，文件已从列表消失，清扫由周期 sweeper 兜底
		zlog.Warn("schedule sweep task failed",
			zap.String("namespace", base.Namespace),
			zap.String("group_key", groupKey),
			zap.Error(err))
	}

	s.changes.TrackChange(orgID, base.Namespace, groupKey, ChangeFileDeleting)
	return nil
}

func (s *fileServiceImpl) RetryFileProcessing(ctx context.Context, orgID, userID string, req request.RetryFileRequest) error {
	base, err := s.resolveKB(ctx, orgID, req.KBUuid)
	if err != nil {
		return err
	}

	e, err := s.store.Get(ctx, base.Namespace, strings.TrimSpace(req.EntryID))
	if err != nil {
		return err
	}
	if e == nil {
		return xerr.New(xerr.NotFound, "entry not found")
	}

	storageID := strings.TrimSpace(e.Metadata.StorageID)
	if storageID == "" {
		return xerr.New(xerr.BadRequest, "entry has no stored file to reprocess")
	}
	blob, err := s.blobStore.Stat(ctx, storageID)
	if err != nil {
		return err
	}
	if blob == nil {
		return xerr.New(xerr.NotFound, "original file no longer stored")
	}

	// 旧条目先删，同一展示身份重新走一遍完整摄取
	if err := s.store.Delete(ctx, base.Namespace, []string{e.ID}); err != nil {
		return err
	}

	placeholder := entry.Entry{
		Namespace: base.Namespace,
		Key:       e.Metadata.DisplayName,
		Title:     e.Metadata.DisplayName,
		Status:    entry.Processing{},
		Metadata: entry.Metadata{
			StorageID:        storageID,
			UploadedBy:       e.Metadata.UploadedBy,
			DisplayName:      e.Metadata.DisplayName,
			OriginalFilename: e.Metadata.OriginalFilename,
			Category:         e.Metadata.Category,
			KnowledgeBaseID:  e.Metadata.KnowledgeBaseID,
			SourceType:       e.Metadata.SourceType,
		},
		CreatedAt: time.Now(),
	}
	entryID, err := s.store.Add(ctx, placeholder)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(file.ProcessFilePayload{
		StorageID:   storageID,
		EntryID:     entryID,
		Namespace:   base.Namespace,
		KBUuid:      base.Uuid,
		Filename:    blob.Filename,
		MimeType:    blob.MimeType,
		DisplayName: e.Metadata.DisplayName,
		Category:    e.Metadata.Category,
		SourceType:  e.Metadata.SourceType,
		UploadedBy:  strings.TrimSpace(userID),
	})
	if err != nil {
		return err
	}
	task := &file.IngestTask{
		TaskType:    file.TaskTypeProcessFile,
		OrgId:       strings.TrimSpace(orgID),
		Namespace:   base.Namespace,
		DedupKey:    "process:" + storageID + ":retry:" + util.GenerateShortUUID(),
		PayloadJson: string(payload),
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	if err := s.taskRepo.Create(ctx, task); err != nil {
		_ = s.store.Delete(ctx, base.Namespace, []string{entryID})
		return err
	}

	s.changes.TrackChange(orgID, base.Namespace, entry.GroupKeyOf(placeholder), ChangeFileUploaded)
	return nil
}
