package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"EchoDesk/internal/modules/knowledge/domain/entry"
	"EchoDesk/internal/modules/knowledge/domain/file"
	"EchoDesk/internal/modules/knowledge/infrastructure/chunking"
	"EchoDesk/internal/modules/knowledge/infrastructure/extract"
	"EchoDesk/internal/modules/knowledge/infrastructure/vectordb"
	"EchoDesk/pkg/util"
	"EchoDesk/pkg/xerr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ingestFixture struct {
	svc       *IngestService
	blobStore *fakeBlobStore
	store     *vectordb.MemoryNamespaceStore
	notifRepo *fakeNotifRepo
	usageRepo *fakeUsageRepo
	namespace string
}

func newIngestFixture(t *testing.T) *ingestFixture {
	t.Helper()
	blobStore := newFakeBlobStore()
	store := newStubStore(nil)
	notifRepo := &fakeNotifRepo{}
	usageRepo := newFakeUsageRepo()
	svc := NewIngestService(
		blobStore, store, notifRepo, usageRepo,
		extract.NewExtractor(nil, nil, nil, "", "", 0),
		chunking.NewFixedChunker(2000, 0),
		NewChangeNotifier(nil),
		3,
	)
	return &ingestFixture{
		svc:       svc,
		blobStore: blobStore,
		store:     store,
		notifRepo: notifRepo,
		usageRepo: usageRepo,
		namespace: "org-1_kb-1",
	}
}

func (fx *ingestFixture) seedPlaceholder(t *testing.T, storageID, displayName string) string {
	t.Helper()
	id, err := fx.store.Add(context.Background(), entry.Entry{
		Namespace: fx.namespace,
		Key:       displayName,
		Title:     displayName,
		Status:    entry.Processing{},
		Metadata:  entry.Metadata{StorageID: storageID, DisplayName: displayName},
	})
	require.NoError(t, err)
	return id
}

func (fx *ingestFixture) processTask(t *testing.T, storageID, entryID, displayName string) (*file.IngestTask, error) {
	t.Helper()
	payload, err := json.Marshal(file.ProcessFilePayload{
		StorageID:   storageID,
		EntryID:     entryID,
		Namespace:   fx.namespace,
		KBUuid:      "kb-1",
		Filename:    displayName + ".txt",
		MimeType:    "text/plain",
		DisplayName: displayName,
		SourceType:  "uploaded",
		UploadedBy:  "user-1",
	})
	require.NoError(t, err)
	task := &file.IngestTask{
		Id:          7,
		TaskType:    file.TaskTypeProcessFile,
		OrgId:       "org-1",
		Namespace:   fx.namespace,
		PayloadJson: string(payload),
		CreatedAt:   time.Now(),
	}
	return task, fx.svc.Process(context.Background(), task)
}

func TestProcessFileIngestsChunksAndRemovesPlaceholder(t *testing.T) {
	fx := newIngestFixture(t)
	ctx := context.Background()
	content := "Refunds are accepted within thirty days. Contact support for anything else."

	require.NoError(t, fx.blobStore.Save(ctx, &file.BlobObject{
		StorageId: "sA", OrgId: "org-1", Filename: "policy.txt", MimeType: "text/plain",
		SizeBytes: int64(len(content)), Data: []byte(content),
	}))
	placeholderID := fx.seedPlaceholder(t, "sA", "Policy")

	// 同名 processing 通知先挂着，终态落定后应被清掉
	require.NoError(t, fx.notifRepo.Create(ctx, &file.Notification{
		NotificationId: util.GenerateUUID(), OrgId: "org-1",
		Kind: file.NotificationKindFileProcessing, FileName: "Policy",
	}))

	_, err := fx.processTask(t, "sA", placeholderID, "Policy")
	require.NoError(t, err)

	ids := listAll(t, fx.store, fx.namespace)
	require.Len(t, ids, 1)
	assert.NotContains(t, ids, placeholderID)

	chunk, err := fx.store.Get(ctx, fx.namespace, ids[0])
	require.NoError(t, err)
	require.NotNil(t, chunk)
	assert.Equal(t, "Policy", chunk.Key)
	assert.Equal(t, entry.StatusReady, chunk.Status.Kind())
	assert.Equal(t, content, chunk.Content)
	assert.Equal(t, util.Sha256Hex([]byte(content)), chunk.ContentHash)
	assert.Equal(t, 1, chunk.Metadata.TotalChunks)

	assert.Empty(t, fx.notifRepo.byKind(file.NotificationKindFileProcessing))
	assert.Len(t, fx.notifRepo.byKind(file.NotificationKindFileReady), 1)

	totals, err := fx.usageRepo.TotalByKind(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), totals[file.UsageStorageBytes])
	assert.Equal(t, int64((len(content)+3)/4), totals[file.UsageEmbeddingTokens])
	assert.Equal(t, int64(1*3*4), totals[file.UsageVectorStorageBytes])
}

func TestProcessFileMissingBlobConvergesToErrorEntry(t *testing.T) {
	fx := newIngestFixture(t)
	ctx := context.Background()
	placeholderID := fx.seedPlaceholder(t, "sMissing", "Lost")

	_, err := fx.processTask(t, "sMissing", placeholderID, "Lost")
	require.Error(t, err)

	ids := listAll(t, fx.store, fx.namespace)
	require.Len(t, ids, 1)
	assert.NotContains(t, ids, placeholderID)

	e, err := fx.store.Get(ctx, fx.namespace, ids[0])
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "Lost", e.Key)
	failed, ok := e.Status.(entry.Failed)
	require.True(t, ok)
	assert.Contains(t, failed.Message, "not found")

	assert.Len(t, fx.notifRepo.byKind(file.NotificationKindFileError), 1)
}

func TestProcessFileUnsupportedMimeSurfacesCleanMessage(t *testing.T) {
	fx := newIngestFixture(t)
	ctx := context.Background()

	require.NoError(t, fx.blobStore.Save(ctx, &file.BlobObject{
		StorageId: "sBin", OrgId: "org-1", Filename: "blob.bin",
		MimeType: "application/octet-stream", SizeBytes: 4, Data: []byte{0, 1, 2, 3},
	}))
	placeholderID := fx.seedPlaceholder(t, "sBin", "Binary")

	payload, _ := json.Marshal(file.ProcessFilePayload{
		StorageID: "sBin", EntryID: placeholderID, Namespace: fx.namespace,
		MimeType: "application/octet-stream", DisplayName: "Binary",
	})
	task := &file.IngestTask{Id: 9, OrgId: "org-1", PayloadJson: string(payload)}
	require.Error(t, fx.svc.Process(ctx, task))

	ids := listAll(t, fx.store, fx.namespace)
	require.Len(t, ids, 1)
	e, err := fx.store.Get(ctx, fx.namespace, ids[0])
	require.NoError(t, err)
	failed, ok := e.Status.(entry.Failed)
	require.True(t, ok)
	// 预定义错误消息原样透出，不带包装前缀
	assert.Contains(t, failed.Message, "unsupported MIME type")
	assert.NotContains(t, failed.Message, "Failed to process file")
}

func TestProcessFileRetryReplacesOldGroupEntries(t *testing.T) {
	fx := newIngestFixture(t)
	ctx := context.Background()
	content := "New content after the retry run."

	require.NoError(t, fx.blobStore.Save(ctx, &file.BlobObject{
		StorageId: "sA", OrgId: "org-1", Filename: "doc.txt", MimeType: "text/plain",
		SizeBytes: int64(len(content)), Data: []byte(content),
	}))

	// 上一轮留下的旧分块和 error 标记
	for _, key := range []string{"Doc (part 1/2)", "Doc (part 2/2)", "Doc"} {
		_, err := fx.store.Add(ctx, entry.Entry{
			Namespace: fx.namespace, Key: key, Title: "Doc", Content: "old",
			Status:   entry.Ready{},
			Metadata: entry.Metadata{StorageID: "sA", DisplayName: "Doc"},
		})
		require.NoError(t, err)
	}
	placeholderID := fx.seedPlaceholder(t, "sA", "Doc")

	_, err := fx.processTask(t, "sA", placeholderID, "Doc")
	require.NoError(t, err)

	ids := listAll(t, fx.store, fx.namespace)
	require.Len(t, ids, 1)
	e, err := fx.store.Get(ctx, fx.namespace, ids[0])
	require.NoError(t, err)
	assert.Equal(t, content, e.Content)
	assert.Equal(t, entry.StatusReady, e.Status.Kind())
}

func TestProcessFileRetryPurgesOldChunksAcrossPages(t *testing.T) {
	fx := newIngestFixture(t)
	ctx := context.Background()
	content := "Replacement content."

	require.NoError(t, fx.blobStore.Save(ctx, &file.BlobObject{
		StorageId: "sA", OrgId: "org-1", Filename: "doc.txt", MimeType: "text/plain",
		SizeBytes: int64(len(content)), Data: []byte(content),
	}))

	// 旧分块数量超过单页扫描量，逐页清理不能漏
	total := listBatchSize + 50
	for i := 0; i < total; i++ {
		_, err := fx.store.Add(ctx, entry.Entry{
			Namespace: fx.namespace, Key: entry.ChunkKey("Doc", i, total), Title: "Doc",
			Content: "old", Status: entry.Ready{},
			Metadata: entry.Metadata{StorageID: "sA", DisplayName: "Doc", ChunkIndex: i, TotalChunks: total},
		})
		require.NoError(t, err)
	}
	placeholderID := fx.seedPlaceholder(t, "sA", "Doc")

	_, err := fx.processTask(t, "sA", placeholderID, "Doc")
	require.NoError(t, err)

	ids := listAll(t, fx.store, fx.namespace)
	require.Len(t, ids, 1)
	e, err := fx.store.Get(ctx, fx.namespace, ids[0])
	require.NoError(t, err)
	assert.Equal(t, content, e.Content)
}

func TestProcessFileRejectsBadPayload(t *testing.T) {
	fx := newIngestFixture(t)
	ctx := context.Background()

	err := fx.svc.Process(ctx, &file.IngestTask{Id: 1, PayloadJson: "{not json"})
	assert.Error(t, err)

	payload, _ := json.Marshal(file.ProcessFilePayload{StorageID: "", Namespace: ""})
	err = fx.svc.Process(ctx, &file.IngestTask{Id: 2, PayloadJson: string(payload)})
	assert.Error(t, err)
}

func TestUserFacingError(t *testing.T) {
	assert.Empty(t, userFacingError(nil))
	assert.Equal(t, "file too large", userFacingError(xerr.New(xerr.BadRequest, "file too large")))
	assert.Equal(t, "Failed to process file: boom", userFacingError(errors.New("boom")))

	long := strings.Repeat("x", 300)
	got := userFacingError(errors.New(long))
	assert.Equal(t, "Failed to process file: "+strings.Repeat("x", 255), got)
}
