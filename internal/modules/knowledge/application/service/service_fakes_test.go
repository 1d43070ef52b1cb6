package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"EchoDesk/internal/modules/knowledge/domain/file"
	"EchoDesk/internal/modules/knowledge/domain/kb"
	"EchoDesk/internal/modules/knowledge/domain/repository"
	"EchoDesk/internal/modules/knowledge/infrastructure/vectordb"

	"github.com/cloudwego/eino/components/embedding"
)

// stubEmbedder 已知文本给定向量，其余落到 fallback。
// 测试里用正交向量控制相似度得分
type stubEmbedder struct {
	vectors  map[string][]float64
	fallback []float64
}

func (s *stubEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		if v, ok := s.vectors[t]; ok {
			out[i] = v
		} else if s.fallback != nil {
			out[i] = s.fallback
		} else {
			out[i] = []float64{0, 0, 1}
		}
	}
	return out, nil
}

func newStubStore(vectors map[string][]float64) *vectordb.MemoryNamespaceStore {
	return vectordb.NewMemoryNamespaceStore(&stubEmbedder{vectors: vectors})
}

type fakeKBRepo struct {
	mu    sync.Mutex
	bases []kb.KnowledgeBase
}

func (r *fakeKBRepo) Create(_ context.Context, base *kb.KnowledgeBase) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	base.Id = int64(len(r.bases) + 1)
	r.bases = append(r.bases, *base)
	return nil
}

func (r *fakeKBRepo) GetByUuid(_ context.Context, orgID, uuid string) (*kb.KnowledgeBase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.bases {
		if r.bases[i].OrgId == orgID && r.bases[i].Uuid == uuid {
			b := r.bases[i]
			return &b, nil
		}
	}
	return nil, nil
}

func (r *fakeKBRepo) GetByNamespace(_ context.Context, namespace string) (*kb.KnowledgeBase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.bases {
		if r.bases[i].Namespace == namespace {
			b := r.bases[i]
			return &b, nil
		}
	}
	return nil, nil
}

func (r *fakeKBRepo) ListByOrg(_ context.Context, orgID string) ([]kb.KnowledgeBase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []kb.KnowledgeBase
	for _, b := range r.bases {
		if b.OrgId == orgID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *fakeKBRepo) Rename(_ context.Context, orgID, uuid, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.bases {
		if r.bases[i].OrgId == orgID && r.bases[i].Uuid == uuid {
			r.bases[i].Name = name
		}
	}
	return nil
}

func (r *fakeKBRepo) Delete(_ context.Context, orgID, uuid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.bases[:0]
	for _, b := range r.bases {
		if !(b.OrgId == orgID && b.Uuid == uuid) {
			kept = append(kept, b)
		}
	}
	r.bases = kept
	return nil
}

func seedKB(repo *fakeKBRepo, orgID, uuid string) *kb.KnowledgeBase {
	base := &kb.KnowledgeBase{
		Uuid:      uuid,
		OrgId:     orgID,
		Name:      "kb-" + uuid,
		Namespace: orgID + "_" + uuid,
		Status:    1,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	_ = repo.Create(context.Background(), base)
	return base
}

type fakeBotRepo struct {
	mu   sync.Mutex
	bots []kb.Chatbot
}

func (r *fakeBotRepo) Create(_ context.Context, bot *kb.Chatbot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	bot.Id = int64(len(r.bots) + 1)
	r.bots = append(r.bots, *bot)
	return nil
}

func (r *fakeBotRepo) GetByUuid(_ context.Context, uuid string) (*kb.Chatbot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.bots {
		if r.bots[i].Uuid == uuid {
			b := r.bots[i]
			return &b, nil
		}
	}
	return nil, nil
}

func (r *fakeBotRepo) ListByOrg(_ context.Context, orgID string) ([]kb.Chatbot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []kb.Chatbot
	for _, b := range r.bots {
		if b.OrgId == orgID {
			out = append(out, b)
		}
	}
	return out, nil
}

type fakeConvRepo struct {
	mu    sync.Mutex
	convs []kb.Conversation
}

func (r *fakeConvRepo) Create(_ context.Context, conv *kb.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv.Id = int64(len(r.convs) + 1)
	r.convs = append(r.convs, *conv)
	return nil
}

func (r *fakeConvRepo) GetByUuid(_ context.Context, uuid string) (*kb.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.convs {
		if r.convs[i].Uuid == uuid {
			c := r.convs[i]
			return &c, nil
		}
	}
	return nil, nil
}

type fakeBlobStore struct {
	mu      sync.Mutex
	blobs   map[string]*file.BlobObject
	saveErr error
	deleted []string
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{blobs: make(map[string]*file.BlobObject)}
}

func (s *fakeBlobStore) Save(_ context.Context, blob *file.BlobObject) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *blob
	s.blobs[blob.StorageId] = &cp
	return nil
}

func (s *fakeBlobStore) Get(_ context.Context, storageID string) (*file.BlobObject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blobs[storageID]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (s *fakeBlobStore) Stat(_ context.Context, storageID string) (*file.BlobObject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blobs[storageID]
	if !ok {
		return nil, nil
	}
	cp := *b
	cp.Data = nil
	return &cp, nil
}

func (s *fakeBlobStore) Delete(_ context.Context, storageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, storageID)
	s.deleted = append(s.deleted, storageID)
	return nil
}

type fakeTaskRepo struct {
	mu        sync.Mutex
	tasks     []*file.IngestTask
	createErr error
}

func (r *fakeTaskRepo) Create(_ context.Context, task *file.IngestTask) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	task.Id = int64(len(r.tasks) + 1)
	cp := *task
	r.tasks = append(r.tasks, &cp)
	return nil
}

func (r *fakeTaskRepo) ClaimForPublish(_ context.Context, now time.Time, limit int) ([]file.IngestTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []file.IngestTask
	for _, t := range r.tasks {
		if len(out) >= limit {
			break
		}
		if t.PublishStatus != file.PublishStatusPending && t.PublishStatus != file.PublishStatusFailed {
			continue
		}
		if t.NextRetryAt.Valid && t.NextRetryAt.Time.After(now) {
			continue
		}
		t.PublishStatus = file.PublishStatusPublishing
		out = append(out, *t)
	}
	return out, nil
}

func (r *fakeTaskRepo) MarkPublished(_ context.Context, id int64, topic string, partition int, offset int64, publishedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t := r.find(id); t != nil {
		t.PublishStatus = file.PublishStatusPublished
		t.KafkaTopic = topic
		t.KafkaPartition = partition
		t.KafkaOffset = offset
	}
	return nil
}

func (r *fakeTaskRepo) MarkPublishFailed(_ context.Context, id int64, nextRetryAt time.Time, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t := r.find(id); t != nil {
		t.PublishStatus = file.PublishStatusFailed
		t.RetryCount++
		t.LastError = errMsg
	}
	return nil
}

func (r *fakeTaskRepo) GetByID(_ context.Context, id int64) (*file.IngestTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t := r.find(id); t != nil {
		cp := *t
		return &cp, nil
	}
	return nil, nil
}

func (r *fakeTaskRepo) TryMarkProcessing(_ context.Context, id int64, _ time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.find(id)
	if t == nil || t.Status != file.TaskStatusPending {
		return false, nil
	}
	t.Status = file.TaskStatusProcessing
	return true, nil
}

func (r *fakeTaskRepo) MarkSucceeded(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t := r.find(id); t != nil {
		t.Status = file.TaskStatusSucceeded
	}
	return nil
}

func (r *fakeTaskRepo) MarkFailed(_ context.Context, id int64, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t := r.find(id); t != nil {
		t.Status = file.TaskStatusFailed
		t.LastError = errMsg
	}
	return nil
}

func (r *fakeTaskRepo) Requeue(_ context.Context, id int64, payloadJson string, nextRetryAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t := r.find(id); t != nil {
		t.Status = file.TaskStatusPending
		t.PublishStatus = file.PublishStatusPending
		if payloadJson != "" {
			t.PayloadJson = payloadJson
		}
	}
	return nil
}

func (r *fakeTaskRepo) find(id int64) *file.IngestTask {
	for _, t := range r.tasks {
		if t.Id == id {
			return t
		}
	}
	return nil
}

func (r *fakeTaskRepo) byType(taskType string) []*file.IngestTask {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*file.IngestTask
	for _, t := range r.tasks {
		if t.TaskType == taskType {
			out = append(out, t)
		}
	}
	return out
}

type fakeTombRepo struct {
	mu    sync.Mutex
	tombs []*file.FileTombstone
}

func (r *fakeTombRepo) Upsert(_ context.Context, ts *file.FileTombstone) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tombs {
		if t.Namespace == ts.Namespace && t.GroupKey == ts.GroupKey && t.Status == file.TombstoneStatusPending {
			return nil
		}
	}
	ts.Id = int64(len(r.tombs) + 1)
	cp := *ts
	r.tombs = append(r.tombs, &cp)
	return nil
}

func (r *fakeTombRepo) GetByGroupKey(_ context.Context, namespace, groupKey string) (*file.FileTombstone, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tombs {
		if t.Namespace == namespace && t.GroupKey == groupKey && t.Status == file.TombstoneStatusPending {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeTombRepo) PendingGroupKeys(_ context.Context, namespace string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var keys []string
	for _, t := range r.tombs {
		if t.Namespace == namespace && t.Status == file.TombstoneStatusPending {
			keys = append(keys, t.GroupKey)
		}
	}
	return keys, nil
}

func (r *fakeTombRepo) ListPending(_ context.Context, now time.Time, limit int) ([]file.FileTombstone, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []file.FileTombstone
	for _, t := range r.tombs {
		if len(out) >= limit {
			break
		}
		if t.Status != file.TombstoneStatusPending {
			continue
		}
		if t.NextSweepAt.Valid && t.NextSweepAt.Time.After(now) {
			continue
		}
		out = append(out, *t)
	}
	return out, nil
}

func (r *fakeTombRepo) AdvancePass(_ context.Context, id int64, nextSweepAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tombs {
		if t.Id == id {
			t.SweepPasses++
			t.NextSweepAt.Valid = true
			t.NextSweepAt.Time = nextSweepAt
		}
	}
	return nil
}

func (r *fakeTombRepo) MarkSwept(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tombs {
		if t.Id == id {
			t.Status = file.TombstoneStatusSwept
		}
	}
	return nil
}

type fakeNotifRepo struct {
	mu     sync.Mutex
	notifs []*file.Notification
}

func (r *fakeNotifRepo) Create(_ context.Context, notif *file.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	notif.Id = int64(len(r.notifs) + 1)
	cp := *notif
	r.notifs = append(r.notifs, &cp)
	return nil
}

func (r *fakeNotifRepo) ListByOrg(_ context.Context, orgID string, limit int) ([]file.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []file.Notification
	for i := len(r.notifs) - 1; i >= 0 && len(out) < limit; i-- {
		if r.notifs[i].OrgId == orgID {
			out = append(out, *r.notifs[i])
		}
	}
	return out, nil
}

func (r *fakeNotifRepo) ClaimPending(_ context.Context, limit int) ([]file.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []file.Notification
	for _, n := range r.notifs {
		if len(out) >= limit {
			break
		}
		if n.Status != file.NotificationStatusPending {
			continue
		}
		n.Attempts++
		out = append(out, *n)
	}
	return out, nil
}

func (r *fakeNotifRepo) MarkDelivered(_ context.Context, notificationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.notifs {
		if n.NotificationId == notificationID {
			n.Status = file.NotificationStatusDelivered
		}
	}
	return nil
}

func (r *fakeNotifRepo) MarkRead(_ context.Context, orgID, notificationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.notifs {
		if n.OrgId == orgID && n.NotificationId == notificationID {
			n.Status = file.NotificationStatusRead
		}
	}
	return nil
}

func (r *fakeNotifRepo) DeleteStaleProcessing(_ context.Context, orgID, fileName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.notifs[:0]
	for _, n := range r.notifs {
		if n.OrgId == orgID && n.FileName == fileName && n.Kind == file.NotificationKindFileProcessing {
			continue
		}
		kept = append(kept, n)
	}
	r.notifs = kept
	return nil
}

func (r *fakeNotifRepo) byKind(kind string) []file.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []file.Notification
	for _, n := range r.notifs {
		if n.Kind == kind {
			out = append(out, *n)
		}
	}
	return out
}

type fakeUsageRepo struct {
	mu      sync.Mutex
	records []file.UsageRecord
	dedup   map[string]struct{}
}

func newFakeUsageRepo() *fakeUsageRepo {
	return &fakeUsageRepo{dedup: make(map[string]struct{})}
}

func (r *fakeUsageRepo) Record(_ context.Context, rec *file.UsageRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec.DedupKey != "" {
		if _, dup := r.dedup[rec.DedupKey]; dup {
			return nil
		}
		r.dedup[rec.DedupKey] = struct{}{}
	}
	r.records = append(r.records, *rec)
	return nil
}

func (r *fakeUsageRepo) TotalByKind(_ context.Context, orgID string) (map[string]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	totals := make(map[string]int64)
	for _, rec := range r.records {
		if rec.OrgId == orgID {
			totals[rec.Kind] += rec.Amount
		}
	}
	return totals, nil
}

// listAll 测试断言用：读出命名空间里的全部条目
func listAll(t *testing.T, store repository.NamespaceStore, namespace string) []string {
	t.Helper()
	var ids []string
	cursor := ""
	for {
		page, err := store.List(context.Background(), namespace, cursor, 50)
		if err != nil {
			t.Fatalf("list namespace %s: %v", namespace, err)
		}
		for _, e := range page.Entries {
			ids = append(ids, e.ID)
		}
		if page.IsDone {
			return ids
		}
		cursor = page.ContinueCursor
	}
}
